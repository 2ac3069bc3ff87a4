package tools

import (
	"context"
	"fmt"

	"github.com/iasted/iasted/pkg/dispatcher"
)

// The fixed voice set offered by the realtime provider, split into the two
// genders the toggle alternates between.
var voiceGenders = map[string]string{
	"coral":   "female",
	"sage":    "female",
	"shimmer": "female",
	"ash":     "male",
	"echo":    "male",
	"verse":   "male",
}

const (
	defaultFemaleVoice = "coral"
	defaultMaleVoice   = "ash"
)

// KnownVoice reports whether id is one of the supported voice identifiers.
func KnownVoice(id string) bool {
	_, ok := voiceGenders[id]
	return ok
}

func changeVoiceDefinition(deps Deps) dispatcher.Definition {
	return dispatcher.Definition{
		Name:        "change_voice",
		Description: "Change la voix de l'assistant. Sans argument, bascule entre voix féminine et masculine.",
		Parameters: []dispatcher.Parameter{
			{Name: "voice", Type: "string", Description: "Identifiant de voix explicite"},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (dispatcher.Result, error) {
			requested, _ := args["voice"].(string)

			target := requested
			if target == "" {
				// No explicit id: deterministic gender toggle.
				if voiceGenders[deps.Voice.CurrentVoice()] == "female" {
					target = defaultMaleVoice
				} else {
					target = defaultFemaleVoice
				}
			}

			if !KnownVoice(target) {
				return dispatcher.Fail(fmt.Sprintf("voix inconnue: %s", target)), nil
			}

			if err := deps.Voice.SetVoice(target); err != nil {
				return dispatcher.Result{}, err
			}
			if err := deps.State.SetVoicePreference(deps.DeviceID, target); err != nil {
				// The voice changed; a failed preference write only costs
				// persistence across sessions.
				return dispatcher.Succeed("voix changée (préférence non enregistrée)").
					With("voice", target), nil
			}

			return dispatcher.Succeed(fmt.Sprintf("Voix changée: %s", target)).
				With("voice", target).
				With("gender", voiceGenders[target]), nil
		},
	}
}
