package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/iasted/iasted/pkg/dispatcher"
)

// DefaultRealtimeURL is the provider's realtime websocket endpoint.
const DefaultRealtimeURL = "wss://api.openai.com/v1/realtime"

// RealtimeTransport speaks the provider's realtime websocket protocol and
// normalizes its messages into Events.
type RealtimeTransport struct {
	endpoint string
	apiKey   string
	model    string
	log      zerolog.Logger

	wmu       sync.Mutex
	conn      *websocket.Conn
	closeOnce sync.Once
}

// NewRealtimeTransport builds a transport for the given provider credentials.
// endpoint is optional and defaults to DefaultRealtimeURL.
func NewRealtimeTransport(apiKey, endpoint, model string, log zerolog.Logger) *RealtimeTransport {
	if endpoint == "" {
		endpoint = DefaultRealtimeURL
	}
	return &RealtimeTransport{
		endpoint: endpoint,
		apiKey:   apiKey,
		model:    model,
		log:      log.With().Str("component", "realtime").Logger(),
	}
}

// Open dials the realtime endpoint, pushes the session configuration and
// starts the read loop. The returned channel closes when the socket ends.
func (t *RealtimeTransport) Open(ctx context.Context, opts OpenOptions) (<-chan Event, error) {
	u, err := url.Parse(t.endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid realtime endpoint: %w", err)
	}
	q := u.Query()
	q.Set("model", t.model)
	u.RawQuery = q.Encode()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+t.apiKey)
	header.Set("OpenAI-Beta", "realtime=v1")

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return nil, fmt.Errorf("failed to dial realtime endpoint: %w", err)
	}
	t.conn = conn

	update := map[string]interface{}{
		"type": "session.update",
		"session": map[string]interface{}{
			"voice":        opts.Voice,
			"instructions": opts.Instructions,
			"modalities":   []string{"audio", "text"},
			"tools":        realtimeTools(opts.Tools),
			"tool_choice":  "auto",
		},
	}
	if err := t.write(update); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to configure realtime session: %w", err)
	}

	events := make(chan Event, 8)
	go t.readLoop(events)
	return events, nil
}

// SendResult relays a tool result as a function call output and asks the
// agent to continue the turn.
func (t *RealtimeTransport) SendResult(callID string, payload []byte) error {
	item := map[string]interface{}{
		"type": "conversation.item.create",
		"item": map[string]interface{}{
			"type":    "function_call_output",
			"call_id": callID,
			"output":  string(payload),
		},
	}
	if err := t.write(item); err != nil {
		return fmt.Errorf("failed to send tool result: %w", err)
	}
	return t.write(map[string]interface{}{"type": "response.create"})
}

// SetSpeechRate pushes an output speed update to the live session.
func (t *RealtimeTransport) SetSpeechRate(rate float64) error {
	return t.write(map[string]interface{}{
		"type": "session.update",
		"session": map[string]interface{}{
			"speed": rate,
		},
	})
}

// Close tears the socket down. Safe to call more than once.
func (t *RealtimeTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		if t.conn != nil {
			err = t.conn.Close()
		}
	})
	return err
}

// realtimeTools encodes the tool vocabulary in the provider's session format:
// one function entry per definition with a JSON-schema parameters object.
func realtimeTools(defs []dispatcher.Definition) []map[string]interface{} {
	tools := make([]map[string]interface{}, 0, len(defs))
	for _, def := range defs {
		properties := make(map[string]interface{}, len(def.Parameters))
		required := []string{}
		for _, p := range def.Parameters {
			prop := map[string]interface{}{
				"type":        p.Type,
				"description": p.Description,
			}
			if len(p.Enum) > 0 {
				prop["enum"] = p.Enum
			}
			properties[p.Name] = prop
			if p.Required {
				required = append(required, p.Name)
			}
		}
		parameters := map[string]interface{}{
			"type":       "object",
			"properties": properties,
		}
		if len(required) > 0 {
			parameters["required"] = required
		}
		tools = append(tools, map[string]interface{}{
			"type":        "function",
			"name":        def.Name,
			"description": def.Description,
			"parameters":  parameters,
		})
	}
	return tools
}

func (t *RealtimeTransport) write(v interface{}) error {
	t.wmu.Lock()
	defer t.wmu.Unlock()
	if t.conn == nil {
		return fmt.Errorf("realtime socket not open")
	}
	return t.conn.WriteJSON(v)
}

// serverMessage is the subset of the provider's wire format we act on.
type serverMessage struct {
	Type   string `json:"type"`
	CallID string `json:"call_id"`
	Name   string `json:"name"`
	// Arguments is a JSON object encoded as a string on function call frames.
	Arguments string `json:"arguments"`
	Error     struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (t *RealtimeTransport) readLoop(events chan<- Event) {
	defer close(events)

	for {
		_, raw, err := t.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				events <- Event{Kind: EventClosed}
			} else {
				events <- Event{Kind: EventError, Err: err}
			}
			return
		}

		var msg serverMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			t.log.Warn().Err(err).Msg("unreadable realtime frame")
			continue
		}

		switch msg.Type {
		case "session.created":
			events <- Event{Kind: EventOpened}
		case "output_audio_buffer.started":
			events <- Event{Kind: EventAudioStart}
		case "output_audio_buffer.stopped":
			events <- Event{Kind: EventAudioEnd}
		case "response.function_call_arguments.done":
			args := map[string]interface{}{}
			if msg.Arguments != "" {
				if err := json.Unmarshal([]byte(msg.Arguments), &args); err != nil {
					t.log.Warn().Err(err).Str("tool", msg.Name).Msg("unreadable tool arguments")
				}
			}
			events <- Event{Kind: EventToolCall, Call: &ToolCall{
				ID:        msg.CallID,
				Name:      msg.Name,
				Arguments: args,
			}}
		case "error":
			events <- Event{Kind: EventError, Err: fmt.Errorf("realtime error: %s", msg.Error.Message)}
			return
		}
	}
}
