// Package tools implements the assistant's tool vocabulary: the side-effecting
// handlers the dispatcher routes agent-issued calls to. Handlers reach the
// rest of the application only through the narrow collaborator interfaces
// declared here, so the vocabulary can be exercised end to end in tests.
package tools

import (
	"context"
	"time"

	"github.com/iasted/iasted/internal/metrics"
	"github.com/iasted/iasted/pkg/clientstate"
	"github.com/iasted/iasted/pkg/events"
	"github.com/iasted/iasted/pkg/formstate"
	"github.com/iasted/iasted/pkg/routes"
)

// UX pacing delays. These exist so a visual acknowledgment can render before
// the follow-up action lands; they are not a correctness mechanism, and tests
// drive them synchronously through a fake Scheduler.
const (
	SignOutDelay       = 2 * time.Second
	LoginRedirectDelay = 1500 * time.Millisecond
	ThemeConfirmDelay  = 300 * time.Millisecond
	ScrollSettleDelay  = 600 * time.Millisecond
)

// Navigator is the routing capability of the hosting application.
type Navigator interface {
	// Navigate changes the current route. state is attached as navigation
	// state for the receiving page; it may be nil.
	Navigate(path string, state map[string]interface{})
}

// Authenticator is the identity capability of the hosting application.
type Authenticator interface {
	SignOut() error
}

// Notifier surfaces transient user-visible notifications.
type Notifier interface {
	Toast(level, message string)
}

// Authorizer confirms privileged operations against the caller's resolved
// role. The security override tool refuses to run without it.
type Authorizer interface {
	AuthorizeOverride(ctx context.Context, role string) error
}

// UIController mutates the visual shell: theme and in-page scrolling.
type UIController interface {
	SetTheme(theme string) error
	// ToggleTheme flips light/dark and returns the theme now active.
	ToggleTheme() string
	// ScrollTo scrolls to an in-page anchor; it reports an error when the
	// target id is not present on the current page.
	ScrollTo(sectionID string) error
}

// VoiceController is the slice of the connection manager the voice tools
// touch.
type VoiceController interface {
	CurrentVoice() string
	SetVoice(voice string) error
	// SetSpeechRate clamps the input to the supported range and returns the
	// rate actually applied.
	SetSpeechRate(rate float64) float64
}

// Services is the opaque CRUD/service layer for documents, appointments, and
// consular requests. Handlers only validate and enrich confirmations with it;
// the receiving page performs the actual domain operation.
type Services interface {
	ValidateDocumentType(ctx context.Context, docType string) error
	NextAvailableSlot(ctx context.Context, service string) (string, error)
	LookupService(ctx context.Context, query string) (description string, found bool, err error)
}

// Scheduler defers a callback. The production implementation wraps
// time.AfterFunc; tests substitute a synchronous one.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func())
}

// TimerScheduler is the production Scheduler.
type TimerScheduler struct{}

// AfterFunc schedules fn after d on a timer.
func (TimerScheduler) AfterFunc(d time.Duration, fn func()) {
	time.AfterFunc(d, fn)
}

// Deps carries everything the handlers of one session need. A handler set is
// registered per session, so per-caller facts (identity, device) are plain
// fields rather than call arguments.
type Deps struct {
	SessionID         string
	DeviceID          string
	UserRole          string
	Identification    string // "authenticated" or "anonymous"
	QuestionAllowance int

	Bus     *events.Bus
	Forms   *formstate.Store
	Routes  *routes.Resolver
	State   *clientstate.Store
	Metrics *metrics.Metrics

	Voice     VoiceController
	UI        UIController
	Nav       Navigator
	Auth      Authenticator
	Notify    Notifier
	Authorize Authorizer
	Services  Services
	Schedule  Scheduler
}

func (d Deps) anonymous() bool {
	return d.Identification != "authenticated"
}
