package tools

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iasted/iasted/pkg/clientstate"
	"github.com/iasted/iasted/pkg/dispatcher"
	"github.com/iasted/iasted/pkg/events"
	"github.com/iasted/iasted/pkg/formstate"
	"github.com/iasted/iasted/pkg/routes"
)

type navCall struct {
	path  string
	state map[string]interface{}
}

type fakeNav struct {
	calls []navCall
}

func (n *fakeNav) Navigate(path string, state map[string]interface{}) {
	n.calls = append(n.calls, navCall{path: path, state: state})
}

type fakeAuth struct {
	signedOut bool
	err       error
}

func (a *fakeAuth) SignOut() error {
	if a.err != nil {
		return a.err
	}
	a.signedOut = true
	return nil
}

type toast struct {
	level   string
	message string
}

type fakeNotifier struct {
	toasts []toast
}

func (n *fakeNotifier) Toast(level, message string) {
	n.toasts = append(n.toasts, toast{level: level, message: message})
}

type fakeUI struct {
	theme    string
	sections map[string]bool
	scrolled []string
}

func (u *fakeUI) SetTheme(theme string) error {
	u.theme = theme
	return nil
}

func (u *fakeUI) ToggleTheme() string {
	if u.theme == "dark" {
		u.theme = "light"
	} else {
		u.theme = "dark"
	}
	return u.theme
}

func (u *fakeUI) ScrollTo(sectionID string) error {
	if !u.sections[sectionID] {
		return fmt.Errorf("no element %q", sectionID)
	}
	u.scrolled = append(u.scrolled, sectionID)
	return nil
}

type fakeVoice struct {
	voice string
	rate  float64
}

func (v *fakeVoice) CurrentVoice() string { return v.voice }

func (v *fakeVoice) SetVoice(voice string) error {
	v.voice = voice
	return nil
}

func (v *fakeVoice) SetSpeechRate(rate float64) float64 {
	if rate < 0.5 {
		rate = 0.5
	}
	if rate > 2.0 {
		rate = 2.0
	}
	v.rate = rate
	return rate
}

type fakeAuthorizer struct {
	allow bool
}

func (a *fakeAuthorizer) AuthorizeOverride(_ context.Context, role string) error {
	if !a.allow {
		return errors.New("role not entitled")
	}
	return nil
}

type fakeServices struct {
	slot      string
	slotErr   error
	docErr    error
	directory map[string]string
}

func (s *fakeServices) ValidateDocumentType(_ context.Context, docType string) error {
	return s.docErr
}

func (s *fakeServices) NextAvailableSlot(_ context.Context, service string) (string, error) {
	return s.slot, s.slotErr
}

func (s *fakeServices) LookupService(_ context.Context, query string) (string, bool, error) {
	desc, ok := s.directory[query]
	return desc, ok, nil
}

// syncScheduler runs deferred callbacks immediately, making the UX pacing
// delays observable synchronously.
type syncScheduler struct {
	fired int
}

func (s *syncScheduler) AfterFunc(_ time.Duration, fn func()) {
	s.fired++
	fn()
}

type fixture struct {
	deps      Deps
	d         *dispatcher.Dispatcher
	bus       *events.Bus
	forms     *formstate.Store
	state     *clientstate.Store
	nav       *fakeNav
	auth      *fakeAuth
	notify    *fakeNotifier
	ui        *fakeUI
	voice     *fakeVoice
	authorize *fakeAuthorizer
	services  *fakeServices
	schedule  *syncScheduler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	state, err := clientstate.NewStore(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { state.Close() })

	bus := events.NewBus()

	f := &fixture{
		bus:       bus,
		forms:     formstate.NewStore(bus),
		state:     state,
		nav:       &fakeNav{},
		auth:      &fakeAuth{},
		notify:    &fakeNotifier{},
		ui:        &fakeUI{theme: "light", sections: map[string]bool{"contact": true}},
		voice:     &fakeVoice{voice: "coral", rate: 1.0},
		authorize: &fakeAuthorizer{},
		services: &fakeServices{
			slot:      "mardi 10h",
			directory: map[string]string{"état civil": "Guichet état civil, bâtiment A"},
		},
		schedule: &syncScheduler{},
	}

	f.deps = Deps{
		SessionID:         "sess-1",
		DeviceID:          "dev-1",
		UserRole:          "citoyen",
		Identification:    "authenticated",
		QuestionAllowance: 3,
		Bus:               bus,
		Forms:             f.forms,
		Routes:            routes.NewResolver(nil),
		State:             state,
		Voice:             f.voice,
		UI:                f.ui,
		Nav:               f.nav,
		Auth:              f.auth,
		Notify:            f.notify,
		Authorize:         f.authorize,
		Services:          f.services,
		Schedule:          f.schedule,
	}

	f.d = dispatcher.New(0, nil)
	require.NoError(t, RegisterAll(f.d, f.deps))
	return f
}

func newAnonymousFixture(t *testing.T) *fixture {
	t.Helper()

	f := newFixture(t)
	f.deps.Identification = "anonymous"
	f.d = dispatcher.New(0, nil)
	require.NoError(t, RegisterAll(f.d, f.deps))
	return f
}

func (f *fixture) dispatch(name string, args map[string]interface{}) dispatcher.Result {
	return f.d.Dispatch(context.Background(), dispatcher.Invocation{Name: name, Arguments: args})
}

func TestChangeVoice_Explicit(t *testing.T) {
	f := newFixture(t)

	result := f.dispatch("change_voice", map[string]interface{}{"voice": "echo"})

	require.True(t, result.Success)
	assert.Equal(t, "echo", f.voice.voice)
	assert.Equal(t, "echo", f.state.VoicePreference("dev-1", "coral"), "preference persisted")
}

func TestChangeVoice_GenderToggle(t *testing.T) {
	f := newFixture(t)

	// coral is female, so the toggle lands on the male default.
	result := f.dispatch("change_voice", nil)
	require.True(t, result.Success)
	assert.Equal(t, "ash", f.voice.voice)

	// And back.
	result = f.dispatch("change_voice", nil)
	require.True(t, result.Success)
	assert.Equal(t, "coral", f.voice.voice)
}

func TestChangeVoice_Unknown(t *testing.T) {
	f := newFixture(t)

	result := f.dispatch("change_voice", map[string]interface{}{"voice": "darth"})
	assert.False(t, result.Success)
	assert.Equal(t, "coral", f.voice.voice, "voice unchanged")
}

func TestSignOut_Authenticated(t *testing.T) {
	f := newFixture(t)

	result := f.dispatch("sign_out", nil)

	require.True(t, result.Success)
	assert.True(t, f.auth.signedOut, "delayed sign-out ran (scheduler is synchronous)")
	require.Len(t, f.nav.calls, 1)
	assert.Equal(t, "/", f.nav.calls[0].path)
	assert.Equal(t, 1, f.schedule.fired, "sign-out is deferred for UX pacing")
}

func TestSignOut_Anonymous(t *testing.T) {
	f := newAnonymousFixture(t)

	result := f.dispatch("sign_out", nil)
	assert.False(t, result.Success)
	assert.False(t, f.auth.signedOut)
}

func TestPromptLogin_StoresRedirect(t *testing.T) {
	f := newFixture(t)

	result := f.dispatch("prompt_login", map[string]interface{}{"redirect": "/appointments"})

	require.True(t, result.Success)
	target, ok := f.state.GetSession("sess-1", clientstate.KeyRedirectTarget)
	require.True(t, ok)
	assert.Equal(t, "/appointments", target)
	require.Len(t, f.nav.calls, 1)
	assert.Equal(t, "/login", f.nav.calls[0].path)
}

func TestDecrementQuestions_Sequence(t *testing.T) {
	f := newAnonymousFixture(t)

	var remainings []interface{}
	for i := 0; i < 3; i++ {
		result := f.dispatch("decrement_questions", nil)
		require.True(t, result.Success)
		v, _ := result.Field("remaining")
		remainings = append(remainings, v)
	}

	assert.Equal(t, []interface{}{2, 1, 0}, remainings)
	require.Len(t, f.notify.toasts, 1, "upsell surfaced exactly once")
	assert.Equal(t, "warning", f.notify.toasts[0].level)

	// Sticky zero: no error, no further side effects.
	result := f.dispatch("decrement_questions", nil)
	require.True(t, result.Success)
	v, _ := result.Field("remaining")
	assert.Equal(t, 0, v)
	assert.Len(t, f.notify.toasts, 1)
}

func TestDecrementQuestions_Authenticated(t *testing.T) {
	f := newFixture(t)

	result := f.dispatch("decrement_questions", nil)
	require.True(t, result.Success)
	v, _ := result.Field("remaining")
	assert.Equal(t, -1, v)
	assert.Empty(t, f.notify.toasts)
}

func TestSetTheme_ExplicitAndToggle(t *testing.T) {
	f := newFixture(t)

	result := f.dispatch("set_theme", map[string]interface{}{"theme": "dark"})
	require.True(t, result.Success)
	assert.Equal(t, "dark", f.ui.theme)
	require.Len(t, f.notify.toasts, 1, "confirmation after the transition delay")
	assert.Contains(t, f.notify.toasts[0].message, "dark")

	result = f.dispatch("set_theme", nil)
	require.True(t, result.Success)
	assert.Equal(t, "light", f.ui.theme, "no argument toggles")
}

func TestAdjustSpeechRate_Clamped(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		in   float64
		want float64
	}{
		{in: 1.2, want: 1.2},
		{in: 0.1, want: 0.5},
		{in: 9.0, want: 2.0},
	}

	for _, tt := range tests {
		result := f.dispatch("adjust_speech_rate", map[string]interface{}{"rate": tt.in})
		require.True(t, result.Success)
		v, _ := result.Field("rate")
		assert.Equal(t, tt.want, v)
		assert.Equal(t, tt.want, f.voice.rate)
	}
}

func TestToggleSidebar_EmitsEvent(t *testing.T) {
	f := newFixture(t)

	var got *events.SidebarTogglePayload
	f.bus.Subscribe(events.TypeSidebarToggle, func(payload interface{}) {
		p := payload.(events.SidebarTogglePayload)
		got = &p
	})

	result := f.dispatch("toggle_sidebar", map[string]interface{}{"open": true})
	require.True(t, result.Success)
	require.NotNil(t, got)
	require.NotNil(t, got.Open)
	assert.True(t, *got.Open)
}

func TestScrollToSection(t *testing.T) {
	f := newFixture(t)

	result := f.dispatch("scroll_to_section", map[string]interface{}{"section_id": "contact"})
	require.True(t, result.Success)
	assert.Equal(t, []string{"contact"}, f.ui.scrolled)

	result = f.dispatch("scroll_to_section", map[string]interface{}{"section_id": "missing"})
	assert.False(t, result.Success, "absent anchor fails softly")
	require.NotEmpty(t, f.notify.toasts, "user sees the miss")
}

func TestGlobalNavigate_Resolved(t *testing.T) {
	f := newFixture(t)

	result := f.dispatch("global_navigate", map[string]interface{}{"query": "rendez-vous"})

	require.True(t, result.Success)
	require.Len(t, f.nav.calls, 1)
	assert.Equal(t, "/appointments", f.nav.calls[0].path)
}

func TestGlobalNavigate_Unresolved(t *testing.T) {
	f := newFixture(t)

	result := f.dispatch("global_navigate", map[string]interface{}{"query": "xyzzy"})

	assert.False(t, result.Success)
	assert.Empty(t, f.nav.calls, "no navigation issued on resolution failure")
}

func TestGlobalNavigate_PostNavigationScroll(t *testing.T) {
	f := newFixture(t)

	result := f.dispatch("global_navigate", map[string]interface{}{
		"query":      "rendez-vous",
		"section_id": "contact",
	})

	require.True(t, result.Success)
	assert.Equal(t, []string{"contact"}, f.ui.scrolled, "scroll after the settle delay")
}

func TestFillField(t *testing.T) {
	f := newFixture(t)
	f.forms.SetCurrentForm("foreigner-registration", 6)

	result := f.dispatch("fillField", map[string]interface{}{
		"field": "firstName",
		"value": "Jean",
	})

	require.True(t, result.Success)
	field, _ := result.Field("field")
	value, _ := result.Field("value")
	assert.Equal(t, "firstName", field)
	assert.Equal(t, "Jean", value)
	assert.Equal(t, "Jean", f.forms.FormData()["firstName"])
	assert.Equal(t, "assistant", f.forms.FilledBy("firstName"))
}

func TestFillField_UserEditClearsIndicator(t *testing.T) {
	f := newFixture(t)
	f.forms.SetCurrentForm("foreigner-registration", 6)

	f.dispatch("fillField", map[string]interface{}{"field": "firstName", "value": "Jean"})
	assert.Equal(t, "assistant", f.forms.FilledBy("firstName"))

	// A manual edit goes through the store as a user write.
	f.forms.SetField("firstName", "Jeanne", "user")
	assert.Equal(t, "user", f.forms.FilledBy("firstName"), "auto-filled indicator cleared")
}

func TestNavigateFormStep_Clamping(t *testing.T) {
	f := newFixture(t)
	f.forms.SetCurrentForm("foreigner-registration", 6)

	f.forms.SetCurrentStep(6)
	result := f.dispatch("navigateFormStep", map[string]interface{}{"direction": "next"})
	require.True(t, result.Success)
	v, _ := result.Field("step")
	assert.Equal(t, 6, v, "no overflow past the last step")

	f.forms.SetCurrentStep(1)
	result = f.dispatch("navigateFormStep", map[string]interface{}{"direction": "previous"})
	require.True(t, result.Success)
	v, _ = result.Field("step")
	assert.Equal(t, 1, v, "no underflow past the first step")

	result = f.dispatch("navigateFormStep", map[string]interface{}{"direction": "goto", "step": float64(4)})
	require.True(t, result.Success)
	v, _ = result.Field("step")
	assert.Equal(t, 4, v)
}

func TestNavigateFormStep_BadDirective(t *testing.T) {
	f := newFixture(t)

	result := f.dispatch("navigateFormStep", map[string]interface{}{"direction": "sideways"})
	assert.False(t, result.Success)

	result = f.dispatch("navigateFormStep", map[string]interface{}{"direction": "goto"})
	assert.False(t, result.Success, "goto needs a step")
}

func TestSubmitForm(t *testing.T) {
	f := newFixture(t)

	result := f.dispatch("submitForm", nil)
	assert.False(t, result.Success, "no active form")

	f.forms.SetCurrentForm("cv-builder", 6)

	var got *events.SubmitFormPayload
	f.bus.Subscribe(events.TypeSubmitForm, func(payload interface{}) {
		p := payload.(events.SubmitFormPayload)
		got = &p
	})

	result = f.dispatch("submitForm", nil)
	require.True(t, result.Success)
	require.NotNil(t, got)
	assert.Equal(t, "cv-builder", got.FormID)
}

func TestGenerateDocument(t *testing.T) {
	f := newFixture(t)

	result := f.dispatch("generate_document", map[string]interface{}{"document_type": "attestation de résidence"})

	require.True(t, result.Success)
	require.Len(t, f.nav.calls, 1)
	assert.Equal(t, "/documents", f.nav.calls[0].path)
	assert.Equal(t, "attestation de résidence", f.nav.calls[0].state["document_type"])
}

func TestGenerateDocument_Rejected(t *testing.T) {
	f := newFixture(t)
	f.services.docErr = errors.New("type inconnu")

	result := f.dispatch("generate_document", map[string]interface{}{"document_type": "brevet"})
	assert.False(t, result.Success)
	assert.Empty(t, f.nav.calls)
}

func TestScheduleAppointment(t *testing.T) {
	f := newFixture(t)

	result := f.dispatch("schedule_appointment", map[string]interface{}{"service": "état civil"})

	require.True(t, result.Success)
	assert.Contains(t, result.Message, "mardi 10h")
	require.Len(t, f.nav.calls, 1)
	assert.Equal(t, "/appointments", f.nav.calls[0].path)
	assert.Equal(t, "mardi 10h", f.nav.calls[0].state["suggested_slot"])
}

func TestLookupService(t *testing.T) {
	f := newFixture(t)

	result := f.dispatch("lookup_service", map[string]interface{}{"query": "état civil"})
	require.True(t, result.Success)
	assert.Contains(t, result.Message, "Guichet état civil")

	result = f.dispatch("lookup_service", map[string]interface{}{"query": "inconnu"})
	assert.False(t, result.Success)
}

func TestSecurityOverride_RequiresAuthorization(t *testing.T) {
	f := newFixture(t)

	var broadcast int
	f.bus.Subscribe(events.TypeSecurityOverride, func(interface{}) { broadcast++ })

	result := f.dispatch("activate_security_override", nil)
	assert.False(t, result.Success, "unauthorized caller refused")
	assert.False(t, f.state.SecurityOverride("dev-1"))
	assert.Equal(t, 0, broadcast)

	f.authorize.allow = true
	result = f.dispatch("activate_security_override", nil)
	require.True(t, result.Success)
	assert.True(t, f.state.SecurityOverride("dev-1"))
	assert.Equal(t, 1, broadcast)
}

func TestUnknownTool_Fallback(t *testing.T) {
	f := newFixture(t)

	result := f.dispatch("tool_from_the_future", map[string]interface{}{"anything": 1})
	assert.True(t, result.Success, "unknown tools degrade gracefully")
}
