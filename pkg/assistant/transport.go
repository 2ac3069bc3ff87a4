package assistant

import (
	"context"

	"github.com/iasted/iasted/pkg/dispatcher"
)

// EventKind enumerates the inbound signals a realtime transport can produce.
type EventKind string

const (
	// EventOpened reports that the channel is established and the agent is live.
	EventOpened EventKind = "opened"
	// EventError carries a channel failure. Errors are always fatal for the
	// session; recovery is a fresh Connect.
	EventError EventKind = "error"
	// EventAudioStart reports the agent started speaking.
	EventAudioStart EventKind = "audio_start"
	// EventAudioEnd reports the agent finished speaking.
	EventAudioEnd EventKind = "audio_end"
	// EventToolCall carries a function call issued by the agent.
	EventToolCall EventKind = "tool_call"
	// EventClosed reports an orderly channel shutdown.
	EventClosed EventKind = "closed"
)

// ToolCall is an agent-issued function call taken off the wire.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]interface{}
}

// Event is one inbound transport signal.
type Event struct {
	Kind EventKind
	Err  error
	Call *ToolCall
}

// OpenOptions parameterize channel establishment. Tools is the session's
// vocabulary; the transport advertises it to the agent so function calls can
// come back.
type OpenOptions struct {
	Voice        string
	Instructions string
	Tools        []dispatcher.Definition
}

// Transport is the realtime channel a session speaks over. Open returns the
// inbound event stream; the stream is closed when the channel ends. SendResult
// relays a tool result back on the channel, and SetSpeechRate applies a
// playback rate that the caller has already clamped.
type Transport interface {
	Open(ctx context.Context, opts OpenOptions) (<-chan Event, error)
	SendResult(callID string, payload []byte) error
	SetSpeechRate(rate float64) error
	Close() error
}

// TransportFactory builds one transport per session.
type TransportFactory func() Transport
