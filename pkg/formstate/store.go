// Package formstate holds the shared state that coordinates voice-driven form
// filling across independently mounted components: which multi-step form is
// active, the current step, and every field value set so far.
package formstate

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/iasted/iasted/pkg/events"
)

// DefaultMaxSteps is the step count of the portal's registration wizards.
const DefaultMaxSteps = 6

// Store is the process-wide form assistance state. All mutators update state
// under the lock, then notify the bus after releasing it. Mutators never fail:
// out-of-range steps are clamped, field writes always upsert.
type Store struct {
	bus *events.Bus

	mu          sync.RWMutex
	activeForm  string
	currentStep int
	maxSteps    int
	defaultMax  int
	fields      map[string]string
	filledBy    map[string]string // field -> "assistant" | "user"
}

// NewStore creates an empty store bound to the notification bus.
func NewStore(bus *events.Bus) *Store {
	return &Store{
		bus:         bus,
		currentStep: 1,
		maxSteps:    DefaultMaxSteps,
		defaultMax:  DefaultMaxSteps,
		fields:      make(map[string]string),
		filledBy:    make(map[string]string),
	}
}

// SetDefaultMaxSteps overrides the step count assumed when a form mounts
// without declaring its own. Non-positive values are ignored.
func (s *Store) SetDefaultMaxSteps(n int) {
	if n <= 0 {
		return
	}
	s.mu.Lock()
	s.defaultMax = n
	s.mu.Unlock()
}

// SetCurrentForm activates a form: step resets to 1 and all fields are
// cleared. Called whenever a form-bearing page mounts.
func (s *Store) SetCurrentForm(formID string, maxSteps int) {
	s.mu.Lock()
	if maxSteps <= 0 {
		maxSteps = s.defaultMax
	}
	s.activeForm = formID
	s.currentStep = 1
	s.maxSteps = maxSteps
	s.fields = make(map[string]string)
	s.filledBy = make(map[string]string)
	s.mu.Unlock()

	log.Debug().Str("form_id", formID).Int("max_steps", maxSteps).Msg("Active form changed")
}

// ActiveForm returns the active form identifier, empty when none.
func (s *Store) ActiveForm() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeForm
}

// CurrentStep returns the 1-indexed current step.
func (s *Store) CurrentStep() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentStep
}

// MaxSteps returns the active form's declared step count.
func (s *Store) MaxSteps() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.maxSteps
}

// SetCurrentStep writes the current step, clamped to [1, maxSteps], and
// notifies subscribers. The clamp is deliberate: voice-driven navigation must
// survive agent mistakes, so out-of-range requests are corrected, not
// rejected. Returns the step actually applied.
func (s *Store) SetCurrentStep(step int) int {
	s.mu.Lock()
	applied := clamp(step, 1, s.maxSteps)
	s.currentStep = applied
	formID := s.activeForm
	s.mu.Unlock()

	s.bus.Emit(events.TypeNavigateStep, events.NavigateStepPayload{
		FormID:    formID,
		Step:      applied,
		Timestamp: time.Now(),
	})
	return applied
}

// SetField upserts a field value on behalf of source ("assistant" or "user")
// and notifies subscribers. Keys are never removed; later writes win.
func (s *Store) SetField(name, value, source string) {
	s.mu.Lock()
	s.fields[name] = value
	s.filledBy[name] = source
	formID := s.activeForm
	s.mu.Unlock()

	s.bus.Emit(events.TypeFillField, events.FillFieldPayload{
		FormID:    formID,
		Field:     name,
		Value:     value,
		Source:    source,
		Timestamp: time.Now(),
	})
}

// Field returns a single field value.
func (s *Store) Field(name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.fields[name]
	return v, ok
}

// FilledBy reports which source last wrote the field. The form renders its
// "auto-filled" indicator only while this is "assistant"; a user edit clears
// it.
func (s *Store) FilledBy(name string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filledBy[name]
}

// FormData returns a copy of the known field values.
func (s *Store) FormData() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]string, len(s.fields))
	for k, v := range s.fields {
		out[k] = v
	}
	return out
}

// Snapshot captures the store for prompt composition.
type Snapshot struct {
	FormID      string
	CurrentStep int
	MaxSteps    int
	Fields      map[string]string
}

// Snapshot returns a consistent copy of the whole store.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fields := make(map[string]string, len(s.fields))
	for k, v := range s.fields {
		fields[k] = v
	}
	return Snapshot{
		FormID:      s.activeForm,
		CurrentStep: s.currentStep,
		MaxSteps:    s.maxSteps,
		Fields:      fields,
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
