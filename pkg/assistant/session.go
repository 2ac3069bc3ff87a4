package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/iasted/iasted/internal/metrics"
	"github.com/iasted/iasted/pkg/dispatcher"
	"github.com/iasted/iasted/pkg/events"
)

// State is a session's connection state.
type State string

const (
	StateIdle          State = "idle"
	StateConnecting    State = "connecting"
	StateConnected     State = "connected"
	StateDisconnecting State = "disconnecting"
)

// VoiceState is the speaking sub-state, meaningful only while connected.
type VoiceState string

const (
	VoiceIdle      VoiceState = "idle"
	VoiceListening VoiceState = "listening"
	VoiceThinking  VoiceState = "thinking"
	VoiceSpeaking  VoiceState = "speaking"
)

const (
	minSpeechRate = 0.5
	maxSpeechRate = 2.0
)

// Session owns one realtime conversation: the transport, its connection state
// machine, and the dispatch of inbound tool calls. A single goroutine consumes
// the transport stream, so tool calls are processed to completion in arrival
// order with no concurrent dispatch on the same session.
type Session struct {
	ID string

	mu         sync.Mutex
	state      State
	voiceState VoiceState
	speechRate float64
	transport  Transport
	cancelLoop context.CancelFunc
	loopDone   chan struct{}

	dispatcher *dispatcher.Dispatcher
	bus        *events.Bus
	metrics    *metrics.Metrics
	log        zerolog.Logger
}

// NewSession wires a session around its transport and per-session dispatcher.
// The dispatcher must already carry the tool vocabulary bound to this session.
func NewSession(id string, transport Transport, d *dispatcher.Dispatcher, bus *events.Bus, m *metrics.Metrics, log zerolog.Logger) *Session {
	return &Session{
		ID:         id,
		state:      StateIdle,
		voiceState: VoiceIdle,
		speechRate: 1.0,
		transport:  transport,
		dispatcher: d,
		bus:        bus,
		metrics:    m,
		log:        log.With().Str("component", "assistant").Str("session_id", id).Logger(),
	}
}

// State returns the current connection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// VoiceState returns the current voice sub-state.
func (s *Session) VoiceState() VoiceState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.voiceState
}

// Connect establishes the realtime channel. Calling it in any state other
// than idle is a no-op; a channel that fails to open surfaces the error and
// leaves the session idle, ready for a manual retry.
func (s *Session) Connect(ctx context.Context, voice, instructions string) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return nil
	}
	p := s.setStateLocked(StateConnecting)
	s.mu.Unlock()
	s.emitState(p)

	stream, err := s.transport.Open(ctx, OpenOptions{
		Voice:        voice,
		Instructions: instructions,
		Tools:        s.dispatcher.Definitions(),
	})
	if err != nil {
		s.mu.Lock()
		p := s.setStateLocked(StateIdle)
		s.mu.Unlock()
		s.emitState(p)
		s.countConnection("error")
		return fmt.Errorf("failed to open realtime channel: %w", err)
	}

	// The channel is only live once the transport confirms it.
	select {
	case ev, ok := <-stream:
		if !ok || ev.Kind == EventError || ev.Kind == EventClosed {
			s.mu.Lock()
			p := s.setStateLocked(StateIdle)
			s.mu.Unlock()
			s.emitState(p)
			s.countConnection("error")
			if ev.Err != nil {
				return fmt.Errorf("realtime channel rejected: %w", ev.Err)
			}
			return fmt.Errorf("realtime channel closed before opening")
		}
		if ev.Kind != EventOpened {
			// Transports confirm before emitting anything else.
			s.mu.Lock()
			p := s.setStateLocked(StateIdle)
			s.mu.Unlock()
			s.emitState(p)
			s.countConnection("error")
			_ = s.transport.Close()
			return fmt.Errorf("unexpected first channel event %q", ev.Kind)
		}
	case <-ctx.Done():
		s.mu.Lock()
		p := s.setStateLocked(StateIdle)
		s.mu.Unlock()
		s.emitState(p)
		s.countConnection("error")
		_ = s.transport.Close()
		return ctx.Err()
	}

	loopCtx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	ps := s.setStateLocked(StateConnected)
	pv := s.setVoiceStateLocked(VoiceIdle)
	s.cancelLoop = cancel
	s.loopDone = make(chan struct{})
	s.mu.Unlock()
	s.emitState(ps)
	s.emitVoiceState(pv)

	s.countConnection("connected")
	if s.metrics != nil {
		s.metrics.SessionsActive.Inc()
	}
	s.log.Info().Str("voice", voice).Msg("realtime channel connected")

	go s.consume(loopCtx, stream)
	return nil
}

// Disconnect tears the channel down. It is idempotent and safe from any
// state; the session always lands in idle.
func (s *Session) Disconnect() {
	s.mu.Lock()
	if s.state == StateIdle || s.state == StateDisconnecting {
		s.mu.Unlock()
		return
	}
	wasConnected := s.state == StateConnected
	p := s.setStateLocked(StateDisconnecting)
	cancel := s.cancelLoop
	done := s.loopDone
	s.mu.Unlock()
	s.emitState(p)

	_ = s.transport.Close()
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	s.mu.Lock()
	var ps, pv *events.StatePayload
	if s.state != StateIdle {
		ps = s.setStateLocked(StateIdle)
		pv = s.setVoiceStateLocked(VoiceIdle)
	}
	s.mu.Unlock()
	s.emitState(ps)
	s.emitVoiceState(pv)

	if wasConnected && s.metrics != nil {
		s.metrics.SessionsActive.Dec()
	}
	s.log.Info().Msg("realtime channel disconnected")
}

// SetSpeechRate applies a playback rate while connected. Out-of-range inputs
// are clamped to [0.5, 2.0] rather than rejected; outside the connected state
// the call leaves the rate untouched and reports the current value.
func (s *Session) SetSpeechRate(rate float64) float64 {
	s.mu.Lock()
	if s.state != StateConnected {
		current := s.speechRate
		s.mu.Unlock()
		return current
	}
	if rate < minSpeechRate {
		rate = minSpeechRate
	}
	if rate > maxSpeechRate {
		rate = maxSpeechRate
	}
	s.speechRate = rate
	s.mu.Unlock()

	if err := s.transport.SetSpeechRate(rate); err != nil {
		s.log.Warn().Err(err).Msg("failed to apply speech rate")
	}
	return rate
}

// SpeechRate returns the last applied playback rate.
func (s *Session) SpeechRate() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speechRate
}

// consume is the single owner of the inbound stream. Each tool call is
// dispatched and its result relayed before the next event is read.
func (s *Session) consume(ctx context.Context, stream <-chan Event) {
	defer close(s.loopDone)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-stream:
			if !ok {
				s.finish(nil)
				return
			}
			switch ev.Kind {
			case EventAudioStart:
				s.setVoiceState(VoiceSpeaking)
			case EventAudioEnd:
				s.setVoiceState(VoiceListening)
			case EventToolCall:
				s.handleToolCall(ctx, ev.Call)
			case EventError:
				s.log.Error().Err(ev.Err).Msg("realtime channel error")
				s.finish(ev.Err)
				return
			case EventClosed:
				s.finish(nil)
				return
			}
		}
	}
}

func (s *Session) handleToolCall(ctx context.Context, call *ToolCall) {
	if call == nil {
		return
	}
	s.setVoiceState(VoiceThinking)

	// The dispatcher tracks the in-flight gauge itself.
	result := s.dispatcher.Dispatch(ctx, dispatcher.Invocation{
		ID:        call.ID,
		Name:      call.Name,
		Arguments: call.Arguments,
	})

	payload, err := json.Marshal(result)
	if err != nil {
		s.log.Error().Err(err).Str("tool", call.Name).Msg("failed to encode tool result")
		payload = []byte(`{"success":false,"message":"erreur interne"}`)
	}
	if err := s.transport.SendResult(call.ID, payload); err != nil {
		s.log.Error().Err(err).Str("tool", call.Name).Msg("failed to relay tool result")
	}

	s.setVoiceState(VoiceListening)
}

// finish lands the session in idle after the stream ends, whether orderly or
// not. A non-nil err marks the teardown as a channel failure.
func (s *Session) finish(err error) {
	s.mu.Lock()
	wasConnected := s.state == StateConnected
	ps := s.setStateLocked(StateIdle)
	pv := s.setVoiceStateLocked(VoiceIdle)
	s.mu.Unlock()
	s.emitState(ps)
	s.emitVoiceState(pv)

	_ = s.transport.Close()
	if wasConnected && s.metrics != nil {
		s.metrics.SessionsActive.Dec()
	}
	if err != nil {
		s.countConnection("dropped")
	}
}

// setStateLocked records the transition and returns the payload to emit. The
// caller emits it after releasing the lock, so bus subscribers are free to
// read the session back.
func (s *Session) setStateLocked(state State) *events.StatePayload {
	if s.state == state {
		return nil
	}
	s.state = state
	return &events.StatePayload{
		SessionID: s.ID,
		State:     string(state),
		Timestamp: time.Now(),
	}
}

func (s *Session) setVoiceStateLocked(vs VoiceState) *events.StatePayload {
	if s.voiceState == vs {
		return nil
	}
	s.voiceState = vs
	return &events.StatePayload{
		SessionID: s.ID,
		State:     string(vs),
		Timestamp: time.Now(),
	}
}

func (s *Session) emitState(p *events.StatePayload) {
	if p != nil {
		s.bus.Emit(events.TypeConnectionState, *p)
	}
}

func (s *Session) emitVoiceState(p *events.StatePayload) {
	if p != nil {
		s.bus.Emit(events.TypeVoiceState, *p)
	}
}

func (s *Session) setVoiceState(vs VoiceState) {
	s.mu.Lock()
	if s.state != StateConnected {
		s.mu.Unlock()
		return
	}
	p := s.setVoiceStateLocked(vs)
	s.mu.Unlock()
	s.emitVoiceState(p)
}

func (s *Session) countConnection(outcome string) {
	if s.metrics != nil {
		s.metrics.ConnectionsTotal.WithLabelValues(outcome).Inc()
	}
}
