package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/iasted/iasted/pkg/dispatcher"
	"github.com/iasted/iasted/pkg/events"
)

func setThemeDefinition(deps Deps) dispatcher.Definition {
	return dispatcher.Definition{
		Name:        "set_theme",
		Description: "Change le thème visuel. Sans argument, bascule clair/sombre.",
		Parameters: []dispatcher.Parameter{
			{Name: "theme", Type: "string", Description: "Thème cible", Enum: []string{"light", "dark"}},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (dispatcher.Result, error) {
			requested, _ := args["theme"].(string)

			var applied string
			if requested == "" {
				applied = deps.UI.ToggleTheme()
			} else {
				if err := deps.UI.SetTheme(requested); err != nil {
					return dispatcher.Result{}, err
				}
				applied = requested
			}

			// Confirmation lands after the visual transition, not during it.
			deps.Schedule.AfterFunc(ThemeConfirmDelay, func() {
				deps.Notify.Toast("success", fmt.Sprintf("Thème %s activé", applied))
			})

			return dispatcher.Succeed(fmt.Sprintf("Thème changé: %s", applied)).
				With("theme", applied), nil
		},
	}
}

func adjustSpeechRateDefinition(deps Deps) dispatcher.Definition {
	return dispatcher.Definition{
		Name:        "adjust_speech_rate",
		Description: "Ajuste la vitesse de parole de l'assistant (0.5 à 2.0).",
		Parameters: []dispatcher.Parameter{
			{Name: "rate", Type: "number", Description: "Vitesse souhaitée", Required: true},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (dispatcher.Result, error) {
			rate, ok := args["rate"].(float64)
			if !ok {
				return dispatcher.Fail("vitesse invalide"), nil
			}

			applied := deps.Voice.SetSpeechRate(rate)

			return dispatcher.Succeed(fmt.Sprintf("Vitesse réglée à %.2g", applied)).
				With("rate", applied), nil
		},
	}
}

func toggleSidebarDefinition(deps Deps) dispatcher.Definition {
	return dispatcher.Definition{
		Name:        "toggle_sidebar",
		Description: "Ouvre ou ferme le menu latéral.",
		Parameters: []dispatcher.Parameter{
			{Name: "open", Type: "boolean", Description: "Forcer l'état ouvert ou fermé"},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (dispatcher.Result, error) {
			var open *bool
			if v, ok := args["open"].(bool); ok {
				open = &v
			}

			deps.Bus.Emit(events.TypeSidebarToggle, events.SidebarTogglePayload{
				Open:      open,
				Timestamp: time.Now(),
			})

			return dispatcher.Succeed("Menu latéral basculé"), nil
		},
	}
}
