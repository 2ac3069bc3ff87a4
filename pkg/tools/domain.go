package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/iasted/iasted/pkg/dispatcher"
)

// Domain actions validate their arguments, hand off to the relevant page with
// the arguments attached as navigation state, and confirm in plain language.
// The receiving page performs the actual domain operation.

func generateDocumentDefinition(deps Deps) dispatcher.Definition {
	return dispatcher.Definition{
		Name:        "generate_document",
		Description: "Prépare la génération d'un document officiel (attestation, acte, certificat).",
		Parameters: []dispatcher.Parameter{
			{Name: "document_type", Type: "string", Description: "Type de document demandé", Required: true},
			{Name: "reference", Type: "string", Description: "Référence de dossier éventuelle"},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (dispatcher.Result, error) {
			docType := strings.TrimSpace(fmt.Sprint(args["document_type"]))
			if docType == "" {
				return dispatcher.Fail("type de document manquant"), nil
			}

			if err := deps.Services.ValidateDocumentType(ctx, docType); err != nil {
				return dispatcher.Fail(fmt.Sprintf("document non disponible: %v", err)), nil
			}

			deps.Nav.Navigate("/documents", map[string]interface{}{
				"action":        "generate",
				"document_type": docType,
				"reference":     args["reference"],
			})

			return dispatcher.Succeed(fmt.Sprintf("Préparation du document %q; la page Documents prend le relais", docType)).
				With("document_type", docType), nil
		},
	}
}

func scheduleAppointmentDefinition(deps Deps) dispatcher.Definition {
	return dispatcher.Definition{
		Name:        "schedule_appointment",
		Description: "Ouvre la prise de rendez-vous pour un service municipal.",
		Parameters: []dispatcher.Parameter{
			{Name: "service", Type: "string", Description: "Service concerné", Required: true},
			{Name: "preferred_date", Type: "string", Description: "Date souhaitée (libre)"},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (dispatcher.Result, error) {
			service := strings.TrimSpace(fmt.Sprint(args["service"]))
			if service == "" {
				return dispatcher.Fail("service manquant"), nil
			}

			slot, err := deps.Services.NextAvailableSlot(ctx, service)
			if err != nil {
				return dispatcher.Fail(fmt.Sprintf("impossible de consulter les disponibilités: %v", err)), nil
			}

			deps.Nav.Navigate("/appointments", map[string]interface{}{
				"action":         "schedule",
				"service":        service,
				"preferred_date": args["preferred_date"],
				"suggested_slot": slot,
			})

			message := fmt.Sprintf("Prise de rendez-vous pour %s ouverte", service)
			if slot != "" {
				message = fmt.Sprintf("%s; prochain créneau: %s", message, slot)
			}
			return dispatcher.Succeed(message).
				With("service", service).
				With("suggested_slot", slot), nil
		},
	}
}

func lookupServiceDefinition(deps Deps) dispatcher.Definition {
	return dispatcher.Definition{
		Name:        "lookup_service",
		Description: "Recherche un service ou une démarche dans l'annuaire municipal.",
		Parameters: []dispatcher.Parameter{
			{Name: "query", Type: "string", Description: "Service recherché", Required: true},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (dispatcher.Result, error) {
			query := strings.TrimSpace(fmt.Sprint(args["query"]))
			if query == "" {
				return dispatcher.Fail("recherche vide"), nil
			}

			description, found, err := deps.Services.LookupService(ctx, query)
			if err != nil {
				return dispatcher.Fail(fmt.Sprintf("l'annuaire est indisponible: %v", err)), nil
			}
			if !found {
				return dispatcher.Fail(fmt.Sprintf("aucun service ne correspond à %q", query)), nil
			}

			deps.Nav.Navigate("/services", map[string]interface{}{
				"action": "lookup",
				"query":  query,
			})

			return dispatcher.Succeed(description).
				With("query", query), nil
		},
	}
}

func consularRequestDefinition(deps Deps) dispatcher.Definition {
	return dispatcher.Definition{
		Name:        "consular_request",
		Description: "Démarre une démarche consulaire (visa, passeport, état civil).",
		Parameters: []dispatcher.Parameter{
			{Name: "request_type", Type: "string", Description: "Type de démarche", Required: true},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (dispatcher.Result, error) {
			requestType := strings.TrimSpace(fmt.Sprint(args["request_type"]))
			if requestType == "" {
				return dispatcher.Fail("type de démarche manquant"), nil
			}

			deps.Nav.Navigate("/consular", map[string]interface{}{
				"action":       "request",
				"request_type": requestType,
			})

			return dispatcher.Succeed(fmt.Sprintf("Démarche consulaire %q ouverte", requestType)).
				With("request_type", requestType), nil
		},
	}
}
