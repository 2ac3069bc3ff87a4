package daemon

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// roleAuthorizer gates the security override tool on a configured role
// allowlist.
type roleAuthorizer struct {
	allowed map[string]bool
}

func newRoleAuthorizer(roles []string) *roleAuthorizer {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[strings.ToLower(strings.TrimSpace(r))] = true
	}
	return &roleAuthorizer{allowed: allowed}
}

func (a *roleAuthorizer) AuthorizeOverride(_ context.Context, role string) error {
	if a.allowed[strings.ToLower(strings.TrimSpace(role))] {
		return nil
	}
	return fmt.Errorf("role %q is not entitled to the security override", role)
}

// portalServices backs the domain action tools: document validation,
// appointment slots and the service directory. The receiving pages perform
// the actual operations; this layer only validates and describes.
type portalServices struct {
	documentTypes map[string]bool
	directory     map[string]string
}

func newPortalServices() *portalServices {
	return &portalServices{
		documentTypes: map[string]bool{
			"attestation de résidence": true,
			"acte de naissance":        true,
			"casier judiciaire":        true,
			"certificat de célibat":    true,
			"carte consulaire":         true,
			"passeport":                true,
			"procuration":              true,
		},
		directory: map[string]string{
			"état civil": "Guichet état civil, accueil principal de la mairie",
			"urbanisme":  "Service urbanisme, 2e étage de la mairie",
			"social":     "Centre communal d'action sociale",
			"consulat":   "Section consulaire, sur rendez-vous uniquement",
			"cartes":     "Bureau des cartes et titres d'identité",
		},
	}
}

func (s *portalServices) ValidateDocumentType(_ context.Context, docType string) error {
	if s.documentTypes[strings.ToLower(strings.TrimSpace(docType))] {
		return nil
	}
	return fmt.Errorf("type de document inconnu: %s", docType)
}

// NextAvailableSlot proposes the next weekday morning slot. The appointments
// page confirms the actual booking.
func (s *portalServices) NextAvailableSlot(_ context.Context, _ string) (string, error) {
	slot := time.Now().Add(24 * time.Hour)
	for slot.Weekday() == time.Saturday || slot.Weekday() == time.Sunday {
		slot = slot.Add(24 * time.Hour)
	}
	return slot.Format("02/01/2006") + " à 10h00", nil
}

func (s *portalServices) LookupService(_ context.Context, query string) (string, bool, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	if desc, ok := s.directory[q]; ok {
		return desc, true, nil
	}
	for name, desc := range s.directory {
		if strings.Contains(q, name) || strings.Contains(name, q) {
			return desc, true, nil
		}
	}
	return "", false, nil
}
