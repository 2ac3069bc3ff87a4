package assistant

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iasted/iasted/pkg/clientstate"
	"github.com/iasted/iasted/pkg/events"
	"github.com/iasted/iasted/pkg/formstate"
	"github.com/iasted/iasted/pkg/routes"
)

type stubCollaborators struct{}

func (stubCollaborators) Navigate(string, map[string]interface{})            {}
func (stubCollaborators) SignOut() error                                     { return nil }
func (stubCollaborators) Toast(string, string)                               {}
func (stubCollaborators) AuthorizeOverride(context.Context, string) error    { return nil }
func (stubCollaborators) SetTheme(string) error                              { return nil }
func (stubCollaborators) ToggleTheme() string                                { return "dark" }
func (stubCollaborators) ScrollTo(string) error                              { return nil }
func (stubCollaborators) CurrentVoice() string                               { return "coral" }
func (stubCollaborators) SetVoice(string) error                              { return nil }
func (stubCollaborators) SetSpeechRate(rate float64) float64                 { return rate }
func (stubCollaborators) ValidateDocumentType(context.Context, string) error { return nil }
func (stubCollaborators) NextAvailableSlot(context.Context, string) (string, error) {
	return "", nil
}
func (stubCollaborators) LookupService(context.Context, string) (string, bool, error) {
	return "", false, nil
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()

	state, err := clientstate.NewStore(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { state.Close() })

	bus := events.NewBus()
	m, err := NewManager(ManagerOptions{
		TransportFactory:  func() Transport { return newFakeTransport() },
		QuestionAllowance: 3,
		Bus:               bus,
		Forms:             formstate.NewStore(bus),
		Routes:            routes.NewResolver(nil),
		State:             state,
		Logger:            zerolog.Nop(),
	})
	require.NoError(t, err)
	return m
}

func testCollaborators() Collaborators {
	c := stubCollaborators{}
	return Collaborators{
		Voice:     c,
		UI:        c,
		Nav:       c,
		Auth:      c,
		Notify:    c,
		Authorize: c,
		Services:  c,
	}
}

func TestManager_CreateAndRemove(t *testing.T) {
	m := newTestManager(t)

	s, err := m.Create(SessionParams{
		SessionID:      "sess-1",
		DeviceID:       "dev-1",
		Identification: "anonymous",
	}, testCollaborators())
	require.NoError(t, err)
	assert.Equal(t, 1, m.Count())

	got, ok := m.Get("sess-1")
	require.True(t, ok)
	assert.Same(t, s, got)

	m.Remove("sess-1")
	assert.Equal(t, 0, m.Count())
	_, ok = m.Get("sess-1")
	assert.False(t, ok)
}

func TestManager_DuplicateSessionRejected(t *testing.T) {
	m := newTestManager(t)

	_, err := m.Create(SessionParams{SessionID: "sess-1"}, testCollaborators())
	require.NoError(t, err)

	_, err = m.Create(SessionParams{SessionID: "sess-1"}, testCollaborators())
	assert.Error(t, err)
}

func TestManager_RemoveKeepsClientState(t *testing.T) {
	m := newTestManager(t)

	_, err := m.Create(SessionParams{
		SessionID:      "sess-1",
		ClientID:       "tab-1",
		Identification: "anonymous",
	}, testCollaborators())
	require.NoError(t, err)

	m.state.SetSession("tab-1", clientstate.KeyRedirectTarget, "/appointments")
	m.state.DecrementQuestions("tab-1", 3)
	m.Remove("sess-1")

	// The tab is still attached: its redirect and quota outlive the
	// assistant session.
	target, ok := m.state.GetSession("tab-1", clientstate.KeyRedirectTarget)
	require.True(t, ok, "client-scoped state survives session removal")
	assert.Equal(t, "/appointments", target)
	assert.Equal(t, 2, m.state.QuestionsRemaining("tab-1", 3))
}

func TestManager_RequiresTransportFactory(t *testing.T) {
	_, err := NewManager(ManagerOptions{})
	assert.Error(t, err)
}
