package routes

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolver_Resolve(t *testing.T) {
	r := NewResolver(nil)

	tests := []struct {
		name  string
		query string
		want  string
	}{
		{name: "exact keyword", query: "rendez-vous", want: "/appointments"},
		{name: "english alias", query: "book an appointment", want: "/appointments"},
		{name: "accented query", query: "enregistrement étranger", want: "/foreigner/registration"},
		{name: "unaccented query", query: "etranger", want: "/foreigner/registration"},
		{name: "title words", query: "tableau de bord mairie", want: "/mairie/dashboard"},
		{name: "cv builder", query: "je veux faire mon curriculum", want: "/cv-builder"},
		{name: "urbanism", query: "permis de construction", want: "/mairie/urbanisme"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path, ok := r.Resolve(tt.query)
			require.True(t, ok, "query %q should resolve", tt.query)
			assert.Equal(t, tt.want, path)
		})
	}
}

func TestResolver_Resolve_NoMatch(t *testing.T) {
	r := NewResolver(nil)

	for _, query := range []string{"", "   ", "xyzzy plugh", "le la un"} {
		path, ok := r.Resolve(query)
		assert.False(t, ok, "query %q should not resolve", query)
		assert.Empty(t, path)
	}
}

func TestResolver_Resolve_Deterministic(t *testing.T) {
	r := NewResolver([]Route{
		{Path: "/a", Title: "Alpha", Keywords: []string{"shared"}},
		{Path: "/b", Title: "Beta", Keywords: []string{"shared"}},
	})

	// Equal scores break ties on table order, every time.
	for i := 0; i < 10; i++ {
		path, ok := r.Resolve("shared")
		require.True(t, ok)
		assert.Equal(t, "/a", path)
	}
}

func TestResolver_Load(t *testing.T) {
	dir := t.TempDir()
	tablePath := filepath.Join(dir, "routes.json")
	require.NoError(t, os.WriteFile(tablePath, []byte(`[
		{"path": "/custom", "title": "Custom page", "keywords": ["custom"]}
	]`), 0644))

	r := NewResolver(nil)
	require.NoError(t, r.Load(tablePath))

	path, ok := r.Resolve("custom")
	require.True(t, ok)
	assert.Equal(t, "/custom", path)

	_, ok = r.Resolve("rendez-vous")
	assert.False(t, ok, "load replaces the table")
}

func TestResolver_Load_Invalid(t *testing.T) {
	dir := t.TempDir()

	badJSON := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(badJSON, []byte("{not json"), 0644))

	empty := filepath.Join(dir, "empty.json")
	require.NoError(t, os.WriteFile(empty, []byte("[]"), 0644))

	r := NewResolver(nil)
	assert.Error(t, r.Load(filepath.Join(dir, "missing.json")))
	assert.Error(t, r.Load(badJSON))
	assert.Error(t, r.Load(empty))

	// Failed loads keep the previous table intact.
	_, ok := r.Resolve("rendez-vous")
	assert.True(t, ok)
}
