package tools

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/iasted/iasted/pkg/dispatcher"
)

// RegisterAll installs the full tool vocabulary and the unknown-tool fallback
// on a dispatcher. The handler set is bound to one session's Deps.
func RegisterAll(d *dispatcher.Dispatcher, deps Deps) error {
	if deps.Bus == nil || deps.Forms == nil || deps.Routes == nil || deps.State == nil {
		return fmt.Errorf("bus, form store, route resolver and client state are required")
	}
	if deps.Voice == nil || deps.UI == nil || deps.Nav == nil || deps.Auth == nil ||
		deps.Notify == nil || deps.Authorize == nil || deps.Services == nil || deps.Schedule == nil {
		return fmt.Errorf("all collaborator interfaces are required")
	}

	defs := []dispatcher.Definition{
		changeVoiceDefinition(deps),
		signOutDefinition(deps),
		promptLoginDefinition(deps),
		decrementQuestionsDefinition(deps),
		setThemeDefinition(deps),
		adjustSpeechRateDefinition(deps),
		toggleSidebarDefinition(deps),
		scrollToSectionDefinition(deps),
		globalNavigateDefinition(deps),
		fillFieldDefinition(deps),
		navigateFormStepDefinition(deps),
		submitFormDefinition(deps),
		generateDocumentDefinition(deps),
		scheduleAppointmentDefinition(deps),
		lookupServiceDefinition(deps),
		consularRequestDefinition(deps),
		securityOverrideDefinition(deps),
	}

	for _, def := range defs {
		if err := d.Register(def); err != nil {
			return fmt.Errorf("failed to register %s: %w", def.Name, err)
		}
	}

	// Tools the agent provider introduces before this application knows them
	// are acknowledged rather than rejected.
	d.SetFallback(func(ctx context.Context, args map[string]interface{}) (dispatcher.Result, error) {
		log.Info().Msg("Unhandled tool acknowledged")
		return dispatcher.Succeed("outil pris en charge côté fournisseur"), nil
	})

	log.Info().Int("tools", len(defs)).Msg("Tool vocabulary registered")
	return nil
}
