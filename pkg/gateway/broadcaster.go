package gateway

import (
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/iasted/iasted/pkg/events"
)

// Broadcaster fans bus events out to all authenticated clients.
type Broadcaster struct {
	clients *ClientRegistry
	logger  zerolog.Logger
	seq     int64

	unsubscribes []func()
}

// NewBroadcaster creates a broadcaster over the given registry.
func NewBroadcaster(clients *ClientRegistry, logger zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		clients: clients,
		logger:  logger.With().Str("component", "gateway").Logger(),
	}
}

// Attach subscribes the broadcaster to every cross-component signal so
// attached UI clients observe fills, step changes, submits, sidebar and
// override flips, and session state transitions.
func (b *Broadcaster) Attach(bus *events.Bus) {
	types := []events.Type{
		events.TypeFillField,
		events.TypeNavigateStep,
		events.TypeSubmitForm,
		events.TypeSidebarToggle,
		events.TypeSecurityOverride,
		events.TypeConnectionState,
		events.TypeVoiceState,
	}
	for _, t := range types {
		eventName := string(t)
		unsub := bus.Subscribe(t, func(payload interface{}) {
			b.Broadcast(eventName, payload)
		})
		b.unsubscribes = append(b.unsubscribes, unsub)
	}
}

// Detach removes the bus subscriptions.
func (b *Broadcaster) Detach() {
	for _, unsub := range b.unsubscribes {
		unsub()
	}
	b.unsubscribes = nil
}

// Broadcast sends an event frame to every authenticated client.
func (b *Broadcaster) Broadcast(event string, data interface{}) {
	msg := EventMessage{
		Type:      "event",
		Event:     event,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
		Seq:       atomic.AddInt64(&b.seq, 1),
	}

	clients := b.clients.GetAuthenticatedClients()
	for _, client := range clients {
		if err := client.WriteJSON(msg); err != nil {
			b.logger.Warn().
				Err(err).
				Str("client_id", client.ID).
				Str("event", event).
				Msg("failed to broadcast to client")
		}
	}
}

// SendTo sends an event frame to one client.
func (b *Broadcaster) SendTo(client *Client, event string, data interface{}) {
	msg := EventMessage{
		Type:      "event",
		Event:     event,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
		Seq:       atomic.AddInt64(&b.seq, 1),
	}
	if err := client.WriteJSON(msg); err != nil {
		b.logger.Warn().
			Err(err).
			Str("client_id", client.ID).
			Str("event", event).
			Msg("failed to send to client")
	}
}
