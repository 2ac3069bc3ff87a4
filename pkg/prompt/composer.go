// Package prompt builds the system instructions sent to the conversational
// agent at connection time. Composition is a pure function of its inputs so it
// can be unit tested without a connection.
package prompt

import (
	"fmt"
	"sort"
	"strings"

	"github.com/iasted/iasted/pkg/formstate"
)

// Inputs is everything the composer may substitute into the template.
type Inputs struct {
	RoleTitle          string // "citoyen", "agent de mairie", ...
	TimeOfDay          string // "morning", "afternoon", "evening"
	IdentificationMode string // "authenticated" or "anonymous"
	QuestionsRemaining int    // meaningful only when anonymous
	RouteContext       string // current portal path
	FormSnapshot       formstate.Snapshot
}

// Composer renders system instructions from a fixed template. The form
// assistance block is appended only when the current route is one of the
// monitored form routes.
type Composer struct {
	template        string
	monitoredRoutes map[string]bool
}

// NewComposer creates a composer. An empty template uses the default; the
// monitored set lists the route paths whose forms the assistant helps fill.
func NewComposer(template string, monitoredRoutes []string) *Composer {
	if strings.TrimSpace(template) == "" {
		template = defaultTemplate
	}
	monitored := make(map[string]bool, len(monitoredRoutes))
	for _, r := range monitoredRoutes {
		monitored[r] = true
	}
	return &Composer{template: template, monitoredRoutes: monitored}
}

// Compose renders the instructions. Deterministic: same inputs, same output.
func (c *Composer) Compose(in Inputs) string {
	greeting := greetingFor(in.TimeOfDay)

	quota := "illimitées"
	if in.IdentificationMode == "anonymous" {
		quota = fmt.Sprintf("%d restantes", in.QuestionsRemaining)
	}

	out := strings.NewReplacer(
		"{{role}}", orDefault(in.RoleTitle, "visiteur"),
		"{{greeting}}", greeting,
		"{{identification}}", orDefault(in.IdentificationMode, "anonymous"),
		"{{questions}}", quota,
		"{{route}}", orDefault(in.RouteContext, "/"),
	).Replace(c.template)

	if c.monitoredRoutes[in.RouteContext] {
		out += c.formBlock(in.FormSnapshot)
	}
	return out
}

// formBlock describes the active step and known field values so the agent
// asks only for the missing information.
func (c *Composer) formBlock(snap formstate.Snapshot) string {
	var b strings.Builder
	b.WriteString("\n\n## Assistance formulaire\n")
	if snap.FormID == "" {
		b.WriteString("Aucun formulaire actif pour le moment.\n")
		return b.String()
	}

	fmt.Fprintf(&b, "Formulaire actif: %s (étape %d sur %d).\n", snap.FormID, snap.CurrentStep, snap.MaxSteps)

	if len(snap.Fields) == 0 {
		b.WriteString("Aucun champ rempli pour l'instant.\n")
		return b.String()
	}

	b.WriteString("Champs déjà renseignés:\n")
	names := make([]string, 0, len(snap.Fields))
	for name := range snap.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&b, "- %s: %s\n", name, snap.Fields[name])
	}
	b.WriteString("Ne redemande pas ces informations; demande uniquement les champs manquants.\n")
	return b.String()
}

func greetingFor(timeOfDay string) string {
	switch timeOfDay {
	case "morning":
		return "Bonjour"
	case "evening":
		return "Bonsoir"
	default:
		return "Bonjour"
	}
}

func orDefault(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}

const defaultTemplate = `Tu es iAsted, l'assistant vocal officiel du portail municipal et consulaire.

{{greeting}}. Tu parles avec un utilisateur dont le profil est: {{role}} ({{identification}}, questions {{questions}}).
L'utilisateur se trouve actuellement sur la page {{route}}.

Règles:
- Réponds de façon brève et polie, en français par défaut.
- Utilise les outils mis à ta disposition pour naviguer, remplir les formulaires et déclencher les démarches; ne décris jamais une action que tu peux exécuter.
- Si une demande dépasse tes outils, oriente l'utilisateur vers la page d'aide.`
