package tools

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/iasted/iasted/pkg/dispatcher"
	"github.com/iasted/iasted/pkg/events"
)

func securityOverrideDefinition(deps Deps) dispatcher.Definition {
	return dispatcher.Definition{
		Name:        "activate_security_override",
		Description: "Active le mode de supervision étendu pour les agents habilités.",
		Parameters: []dispatcher.Parameter{
			{Name: "active", Type: "boolean", Description: "État souhaité du mode"},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (dispatcher.Result, error) {
			// The flag is device-local, but flipping it is a privileged
			// operation: the caller's role must be confirmed first.
			if err := deps.Authorize.AuthorizeOverride(ctx, deps.UserRole); err != nil {
				log.Warn().Str("role", deps.UserRole).Err(err).Msg("Security override refused")
				return dispatcher.Fail("opération réservée aux agents habilités"), nil
			}

			active := true
			if v, ok := args["active"].(bool); ok {
				active = v
			}

			if err := deps.State.SetSecurityOverride(deps.DeviceID, active); err != nil {
				return dispatcher.Result{}, err
			}

			deps.Bus.Emit(events.TypeSecurityOverride, events.SecurityOverridePayload{
				DeviceID:  deps.DeviceID,
				Active:    active,
				Timestamp: time.Now(),
			})

			message := "Mode de supervision activé"
			if !active {
				message = "Mode de supervision désactivé"
			}
			return dispatcher.Succeed(message).With("active", active), nil
		},
	}
}
