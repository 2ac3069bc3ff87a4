// Package routes maps free-text destination queries ("show me my
// appointments", "dossier étranger") to internal portal paths.
package routes

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// Route is one navigable destination in the portal.
type Route struct {
	Path     string   `json:"path"`
	Title    string   `json:"title"`
	Keywords []string `json:"keywords"`
}

// Resolver performs deterministic lookup over a fixed route table. Resolution
// never errors: a query that matches nothing returns ok=false and the caller
// decides how to surface that.
type Resolver struct {
	mu     sync.RWMutex
	routes []Route
}

// NewResolver creates a resolver over the given table. An empty table falls
// back to the built-in portal routes.
func NewResolver(routes []Route) *Resolver {
	if len(routes) == 0 {
		routes = DefaultTable()
	}
	return &Resolver{routes: routes}
}

// Load replaces the table from a JSON file.
func (r *Resolver) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read routes table: %w", err)
	}

	var routes []Route
	if err := json.Unmarshal(data, &routes); err != nil {
		return fmt.Errorf("failed to parse routes table: %w", err)
	}
	if len(routes) == 0 {
		return fmt.Errorf("routes table %s is empty", path)
	}

	r.mu.Lock()
	r.routes = routes
	r.mu.Unlock()

	log.Info().Str("path", path).Int("routes", len(routes)).Msg("Route table loaded")
	return nil
}

// Routes returns a copy of the current table.
func (r *Resolver) Routes() []Route {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Route, len(r.routes))
	copy(out, r.routes)
	return out
}

// Resolve maps a free-text query to a path. The best-scoring route wins;
// ties break on table order so resolution stays deterministic.
func (r *Resolver) Resolve(query string) (string, bool) {
	tokens := tokenize(query)
	if len(tokens) == 0 {
		return "", false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	bestScore := 0
	bestPath := ""
	for _, route := range r.routes {
		score := scoreRoute(route, tokens)
		if score > bestScore {
			bestScore = score
			bestPath = route.Path
		}
	}

	if bestScore == 0 {
		return "", false
	}
	return bestPath, true
}

// scoreRoute counts query tokens matched by the route's title and keywords.
// An exact keyword hit outweighs a substring hit.
func scoreRoute(route Route, tokens []string) int {
	haystack := normalize(route.Title)
	keywords := make([]string, 0, len(route.Keywords))
	for _, kw := range route.Keywords {
		keywords = append(keywords, normalize(kw))
	}

	score := 0
	for _, tok := range tokens {
		for _, kw := range keywords {
			if kw == tok {
				score += 3
			} else if strings.Contains(kw, tok) || strings.Contains(tok, kw) {
				score += 1
			}
		}
		if strings.Contains(haystack, tok) {
			score += 2
		}
	}
	return score
}

func tokenize(query string) []string {
	fields := strings.Fields(normalize(query))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		// Articles and filler words carry no routing signal.
		if len(f) < 3 {
			continue
		}
		out = append(out, f)
	}
	return out
}

// normalize lowercases and strips the accented characters common in the
// portal's French route names.
func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	replacer := strings.NewReplacer(
		"é", "e", "è", "e", "ê", "e", "ë", "e",
		"à", "a", "â", "a",
		"î", "i", "ï", "i",
		"ô", "o", "ö", "o",
		"ù", "u", "û", "u", "ü", "u",
		"ç", "c",
	)
	return replacer.Replace(s)
}

// DefaultTable is the built-in portal route table.
func DefaultTable() []Route {
	return []Route{
		{Path: "/", Title: "Accueil", Keywords: []string{"accueil", "home", "portail"}},
		{Path: "/services", Title: "Services municipaux", Keywords: []string{"services", "demarches", "prestations"}},
		{Path: "/citizen/registration", Title: "Inscription citoyen", Keywords: []string{"citoyen", "inscription", "enregistrement", "citizen"}},
		{Path: "/foreigner/registration", Title: "Enregistrement étranger", Keywords: []string{"etranger", "foreigner", "sejour", "immigration"}},
		{Path: "/cv-builder", Title: "Créateur de CV", Keywords: []string{"curriculum", "emploi", "resume"}},
		{Path: "/organizations", Title: "Annuaire des organisations", Keywords: []string{"organisations", "annuaire", "associations", "entreprises"}},
		{Path: "/appointments", Title: "Rendez-vous", Keywords: []string{"rendez-vous", "rdv", "appointment", "reservation"}},
		{Path: "/documents", Title: "Mes documents", Keywords: []string{"documents", "attestation", "certificat", "acte"}},
		{Path: "/consular", Title: "Services consulaires", Keywords: []string{"consulat", "consulaire", "visa", "passeport"}},
		{Path: "/mairie/dashboard", Title: "Tableau de bord mairie", Keywords: []string{"mairie", "dashboard", "tableau", "back-office"}},
		{Path: "/mairie/arretes", Title: "Arrêtés municipaux", Keywords: []string{"arretes", "arrete"}},
		{Path: "/mairie/deliberations", Title: "Délibérations", Keywords: []string{"deliberations", "deliberation", "conseil"}},
		{Path: "/mairie/urbanisme", Title: "Permis d'urbanisme", Keywords: []string{"urbanisme", "permis", "construction"}},
		{Path: "/profile", Title: "Mon profil", Keywords: []string{"profil", "compte", "parametres"}},
		{Path: "/help", Title: "Aide", Keywords: []string{"aide", "help", "assistance", "faq"}},
	}
}
