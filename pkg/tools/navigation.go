package tools

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/iasted/iasted/pkg/dispatcher"
)

func scrollToSectionDefinition(deps Deps) dispatcher.Definition {
	return dispatcher.Definition{
		Name:        "scroll_to_section",
		Description: "Fait défiler la page courante jusqu'à une ancre.",
		Parameters: []dispatcher.Parameter{
			{Name: "section_id", Type: "string", Description: "Identifiant de l'ancre cible", Required: true},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (dispatcher.Result, error) {
			sectionID, _ := args["section_id"].(string)
			if sectionID == "" {
				return dispatcher.Fail("identifiant de section manquant"), nil
			}

			if err := deps.UI.ScrollTo(sectionID); err != nil {
				// Soft failure: the section simply is not on this page.
				deps.Notify.Toast("error", fmt.Sprintf("Section %q introuvable sur cette page", sectionID))
				return dispatcher.Fail(fmt.Sprintf("section introuvable: %s", sectionID)), nil
			}

			return dispatcher.Succeed(fmt.Sprintf("Défilement vers %s", sectionID)).
				With("section", sectionID), nil
		},
	}
}

func globalNavigateDefinition(deps Deps) dispatcher.Definition {
	return dispatcher.Definition{
		Name:        "global_navigate",
		Description: "Navigue vers une page du portail à partir d'une description libre.",
		Parameters: []dispatcher.Parameter{
			{Name: "query", Type: "string", Description: "Destination demandée par l'utilisateur", Required: true},
			{Name: "section_id", Type: "string", Description: "Ancre à atteindre après la navigation"},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (dispatcher.Result, error) {
			query, _ := args["query"].(string)

			path, ok := deps.Routes.Resolve(query)
			if !ok {
				// Explicit failure, and no navigation is issued.
				return dispatcher.Fail(fmt.Sprintf("aucune page ne correspond à %q", query)), nil
			}

			deps.Nav.Navigate(path, nil)
			log.Debug().Str("query", query).Str("path", path).Msg("Voice navigation")

			result := dispatcher.Succeed(fmt.Sprintf("Navigation vers %s", path)).
				With("path", path)

			if sectionID, _ := args["section_id"].(string); sectionID != "" {
				// The route change needs a moment to settle before the anchor
				// exists.
				deps.Schedule.AfterFunc(ScrollSettleDelay, func() {
					if err := deps.UI.ScrollTo(sectionID); err != nil {
						log.Debug().Str("section", sectionID).Msg("Post-navigation scroll target absent")
					}
				})
				result = result.With("section", sectionID)
			}

			return result, nil
		},
	}
}
