package tools

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/iasted/iasted/pkg/clientstate"
	"github.com/iasted/iasted/pkg/dispatcher"
)

func signOutDefinition(deps Deps) dispatcher.Definition {
	return dispatcher.Definition{
		Name:        "sign_out",
		Description: "Déconnecte l'utilisateur puis revient à l'accueil.",
		Handler: func(ctx context.Context, args map[string]interface{}) (dispatcher.Result, error) {
			if deps.anonymous() {
				return dispatcher.Fail("aucun utilisateur connecté"), nil
			}

			deps.Notify.Toast("info", "Déconnexion en cours…")

			// Deferred so the acknowledgment above can render first.
			deps.Schedule.AfterFunc(SignOutDelay, func() {
				if err := deps.Auth.SignOut(); err != nil {
					log.Warn().Err(err).Msg("Sign-out failed")
					deps.Notify.Toast("error", "La déconnexion a échoué")
					return
				}
				deps.Nav.Navigate("/", nil)
			})

			return dispatcher.Succeed("Déconnexion programmée").With("delayed", true), nil
		},
	}
}

func promptLoginDefinition(deps Deps) dispatcher.Definition {
	return dispatcher.Definition{
		Name:        "prompt_login",
		Description: "Invite l'utilisateur à se connecter, en mémorisant la page de retour.",
		Parameters: []dispatcher.Parameter{
			{Name: "redirect", Type: "string", Description: "Chemin de retour après connexion"},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (dispatcher.Result, error) {
			redirect, _ := args["redirect"].(string)
			if redirect == "" {
				redirect = "/"
			}

			// The login page reads the target back after authentication;
			// session-scoped so it dies with the browser session.
			deps.State.SetSession(deps.SessionID, clientstate.KeyRedirectTarget, redirect)
			deps.Notify.Toast("info", "Connectez-vous pour continuer")

			deps.Schedule.AfterFunc(LoginRedirectDelay, func() {
				deps.Nav.Navigate("/login", nil)
			})

			return dispatcher.Succeed("Redirection vers la connexion").
				With("redirect", redirect), nil
		},
	}
}
