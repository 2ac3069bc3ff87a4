// Package events provides the process-wide typed notification bus that lets
// independently mounted components (the assistant, the form wizard, the
// gateway fanout) communicate without holding references to each other.
package events

import (
	"sync"
	"time"
)

// Type enumerates the closed set of cross-component signals.
type Type string

const (
	// TypeFillField is emitted when the assistant upserts a form field.
	TypeFillField Type = "fill-field"
	// TypeNavigateStep is emitted when the active form's step changes.
	TypeNavigateStep Type = "navigate-step"
	// TypeSubmitForm asks the hosting form to run its submit handler.
	TypeSubmitForm Type = "submit-form"
	// TypeSidebarToggle asks the shell layout to toggle its sidebar.
	TypeSidebarToggle Type = "sidebar-toggle"
	// TypeSecurityOverride announces the device-wide override flag flipped.
	TypeSecurityOverride Type = "security-override-activated"
	// TypeConnectionState announces a session connection state change.
	TypeConnectionState Type = "connection-state"
	// TypeVoiceState announces a session voice sub-state change.
	TypeVoiceState Type = "voice-state"
)

// FillFieldPayload carries a single field upsert.
type FillFieldPayload struct {
	FormID    string    `json:"form_id"`
	Field     string    `json:"field"`
	Value     string    `json:"value"`
	Source    string    `json:"source"` // "assistant" or "user"
	Timestamp time.Time `json:"timestamp"`
}

// NavigateStepPayload carries a form step change.
type NavigateStepPayload struct {
	FormID    string    `json:"form_id"`
	Step      int       `json:"step"`
	Direction string    `json:"direction,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// SubmitFormPayload asks the currently mounted form to submit itself.
type SubmitFormPayload struct {
	FormID    string    `json:"form_id"`
	Timestamp time.Time `json:"timestamp"`
}

// SidebarTogglePayload carries a sidebar visibility request.
type SidebarTogglePayload struct {
	Open      *bool     `json:"open,omitempty"` // nil means toggle
	Timestamp time.Time `json:"timestamp"`
}

// SecurityOverridePayload announces the override flag change.
type SecurityOverridePayload struct {
	DeviceID  string    `json:"device_id"`
	Active    bool      `json:"active"`
	Timestamp time.Time `json:"timestamp"`
}

// StatePayload carries a connection or voice state transition.
type StatePayload struct {
	SessionID string    `json:"session_id"`
	State     string    `json:"state"`
	Timestamp time.Time `json:"timestamp"`
}

// Handler receives an event payload.
type Handler func(payload interface{})

// Bus broadcasts typed events to subscribers. Delivery is synchronous so a
// mutate-then-notify sequence is observable in order by every subscriber.
type Bus struct {
	mu        sync.RWMutex
	seq       int
	listeners map[Type]map[int]Handler
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{
		listeners: make(map[Type]map[int]Handler),
	}
}

// Subscribe registers a handler for an event type and returns an unsubscribe
// function.
func (b *Bus) Subscribe(t Type, h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	id := b.seq
	if b.listeners[t] == nil {
		b.listeners[t] = make(map[int]Handler)
	}
	b.listeners[t][id] = h

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.listeners[t], id)
	}
}

// Emit delivers payload to every subscriber of t before returning. Relative
// delivery order between subscribers is unspecified.
func (b *Bus) Emit(t Type, payload interface{}) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.listeners[t]))
	for _, h := range b.listeners[t] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(payload)
	}
}

// ListenerCount returns the number of subscribers for an event type.
func (b *Bus) ListenerCount(t Type) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners[t])
}

// Reset removes all listeners.
func (b *Bus) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = make(map[Type]map[int]Handler)
}
