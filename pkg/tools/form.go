package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/iasted/iasted/pkg/dispatcher"
	"github.com/iasted/iasted/pkg/events"
)

func fillFieldDefinition(deps Deps) dispatcher.Definition {
	return dispatcher.Definition{
		Name:        "fillField",
		Description: "Renseigne un champ du formulaire en cours pour l'utilisateur.",
		Parameters: []dispatcher.Parameter{
			{Name: "field", Type: "string", Description: "Nom du champ", Required: true},
			{Name: "value", Type: "string", Description: "Valeur dictée", Required: true},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (dispatcher.Result, error) {
			field, _ := args["field"].(string)
			value, _ := args["value"].(string)
			if field == "" {
				return dispatcher.Fail("nom de champ manquant"), nil
			}

			// Upsert then notify: the mounted form reacts to the bus event
			// emitted by the store.
			deps.Forms.SetField(field, value, "assistant")

			return dispatcher.Succeed(fmt.Sprintf("Champ %s renseigné", field)).
				With("field", field).
				With("value", value), nil
		},
	}
}

func navigateFormStepDefinition(deps Deps) dispatcher.Definition {
	return dispatcher.Definition{
		Name:        "navigateFormStep",
		Description: "Change d'étape dans le formulaire en cours (suivant, précédent ou numéro).",
		Parameters: []dispatcher.Parameter{
			{Name: "direction", Type: "string", Description: "Sens du déplacement", Required: true, Enum: []string{"next", "previous", "goto"}},
			{Name: "step", Type: "integer", Description: "Étape cible pour goto"},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (dispatcher.Result, error) {
			direction, _ := args["direction"].(string)

			current := deps.Forms.CurrentStep()
			var target int
			switch direction {
			case "next":
				target = current + 1
			case "previous":
				target = current - 1
			case "goto":
				step, ok := args["step"].(float64)
				if !ok {
					return dispatcher.Fail("étape cible manquante pour goto"), nil
				}
				target = int(step)
			default:
				return dispatcher.Fail(fmt.Sprintf("direction inconnue: %s", direction)), nil
			}

			// The store clamps; overshooting an edge is not an error.
			applied := deps.Forms.SetCurrentStep(target)

			return dispatcher.Succeed(fmt.Sprintf("Étape %d", applied)).
				With("step", applied).
				With("direction", direction), nil
		},
	}
}

func submitFormDefinition(deps Deps) dispatcher.Definition {
	return dispatcher.Definition{
		Name:        "submitForm",
		Description: "Demande au formulaire en cours de se soumettre.",
		Handler: func(ctx context.Context, args map[string]interface{}) (dispatcher.Result, error) {
			formID := deps.Forms.ActiveForm()
			if formID == "" {
				return dispatcher.Fail("aucun formulaire actif"), nil
			}

			// The hosting form owns validation and persistence; this only
			// asks it to run its submit handler now.
			deps.Bus.Emit(events.TypeSubmitForm, events.SubmitFormPayload{
				FormID:    formID,
				Timestamp: time.Now(),
			})

			return dispatcher.Succeed("Soumission du formulaire demandée").
				With("form_id", formID), nil
		},
	}
}
