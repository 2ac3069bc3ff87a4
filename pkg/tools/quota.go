package tools

import (
	"context"

	"github.com/iasted/iasted/pkg/dispatcher"
)

func decrementQuestionsDefinition(deps Deps) dispatcher.Definition {
	return dispatcher.Definition{
		Name:        "decrement_questions",
		Description: "Décompte une question du quota des visiteurs anonymes.",
		Handler: func(ctx context.Context, args map[string]interface{}) (dispatcher.Result, error) {
			if !deps.anonymous() {
				// Authenticated callers have no quota to spend.
				return dispatcher.Succeed("questions illimitées").
					With("remaining", -1), nil
			}

			remaining, exhausted := deps.State.DecrementQuestions(deps.SessionID, deps.QuestionAllowance)

			if exhausted {
				// Crossing to zero surfaces the upsell exactly once; the
				// sticky-zero behavior of the store keeps repeats silent.
				deps.Notify.Toast("warning", "Quota de questions épuisé. Créez un compte pour continuer.")
				if deps.Metrics != nil {
					deps.Metrics.QuotaExhaustedTotal.Inc()
				}
			}

			return dispatcher.Succeed("question décomptée").
				With("remaining", remaining), nil
		},
	}
}
