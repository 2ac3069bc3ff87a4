package assistant

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/iasted/iasted/internal/metrics"
	"github.com/iasted/iasted/pkg/clientstate"
	"github.com/iasted/iasted/pkg/dispatcher"
	"github.com/iasted/iasted/pkg/events"
	"github.com/iasted/iasted/pkg/formstate"
	"github.com/iasted/iasted/pkg/routes"
	"github.com/iasted/iasted/pkg/tools"
)

// SessionParams identify one caller attaching to the assistant. ClientID is
// the stable id of the attached gateway client (the browser tab); it keys the
// session-scoped client state so quota and redirect survive an assistant
// reconnect on the same tab.
type SessionParams struct {
	SessionID      string
	ClientID       string
	DeviceID       string
	UserRole       string
	Identification string
}

// Collaborators are the client-facing capabilities a session's tools act
// through. The gateway supplies implementations that forward to the attached
// browser client.
type Collaborators struct {
	Voice     tools.VoiceController
	UI        tools.UIController
	Nav       tools.Navigator
	Auth      tools.Authenticator
	Notify    tools.Notifier
	Authorize tools.Authorizer
	Services  tools.Services
}

// ManagerOptions configure a session manager.
type ManagerOptions struct {
	TransportFactory  TransportFactory
	DispatchTimeout   time.Duration
	QuestionAllowance int
	Bus               *events.Bus
	Forms             *formstate.Store
	Routes            *routes.Resolver
	State             *clientstate.Store
	Metrics           *metrics.Metrics
	Logger            zerolog.Logger
	Scheduler         tools.Scheduler
}

// Manager owns the live sessions. Each session gets its own transport and its
// own dispatcher carrying the tool vocabulary bound to that caller.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session

	factory           TransportFactory
	dispatchTimeout   time.Duration
	questionAllowance int
	bus               *events.Bus
	forms             *formstate.Store
	routes            *routes.Resolver
	state             *clientstate.Store
	metrics           *metrics.Metrics
	scheduler         tools.Scheduler
	log               zerolog.Logger
}

// NewManager validates options and builds an empty manager.
func NewManager(opts ManagerOptions) (*Manager, error) {
	if opts.TransportFactory == nil {
		return nil, fmt.Errorf("transport factory is required")
	}
	if opts.Bus == nil || opts.Forms == nil || opts.Routes == nil || opts.State == nil {
		return nil, fmt.Errorf("bus, form store, route resolver and client state are required")
	}
	scheduler := opts.Scheduler
	if scheduler == nil {
		scheduler = tools.TimerScheduler{}
	}
	return &Manager{
		sessions:          make(map[string]*Session),
		factory:           opts.TransportFactory,
		dispatchTimeout:   opts.DispatchTimeout,
		questionAllowance: opts.QuestionAllowance,
		bus:               opts.Bus,
		forms:             opts.Forms,
		routes:            opts.Routes,
		state:             opts.State,
		metrics:           opts.Metrics,
		scheduler:         scheduler,
		log:               opts.Logger.With().Str("component", "assistant").Logger(),
	}, nil
}

// Create builds a session for the given caller. It fails if a session with
// the same id already exists.
func (m *Manager) Create(p SessionParams, c Collaborators) (*Session, error) {
	if p.SessionID == "" {
		return nil, fmt.Errorf("session id is required")
	}

	stateKey := p.ClientID
	if stateKey == "" {
		stateKey = p.SessionID
	}

	d := dispatcher.New(m.dispatchTimeout, m.metrics)
	err := tools.RegisterAll(d, tools.Deps{
		SessionID:         stateKey,
		DeviceID:          p.DeviceID,
		UserRole:          p.UserRole,
		Identification:    p.Identification,
		QuestionAllowance: m.questionAllowance,
		Bus:               m.bus,
		Forms:             m.forms,
		Routes:            m.routes,
		State:             m.state,
		Metrics:           m.metrics,
		Voice:             c.Voice,
		UI:                c.UI,
		Nav:               c.Nav,
		Auth:              c.Auth,
		Notify:            c.Notify,
		Authorize:         c.Authorize,
		Services:          c.Services,
		Schedule:          m.scheduler,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}

	session := NewSession(p.SessionID, m.factory(), d, m.bus, m.metrics, m.log)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sessions[p.SessionID]; exists {
		return nil, fmt.Errorf("session %s already exists", p.SessionID)
	}
	m.sessions[p.SessionID] = session
	return session, nil
}

// QuestionAllowance returns the anonymous question allowance sessions are
// created with.
func (m *Manager) QuestionAllowance() int {
	return m.questionAllowance
}

// Get returns a live session by id.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Remove disconnects and drops a session. Browser-session scoped state (quota
// counter, redirect target) is keyed by the client and left in place, so it
// survives an assistant reconnect; the gateway clears it when the client
// itself detaches.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return
	}
	s.Disconnect()
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Shutdown disconnects every session.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range all {
		s.Disconnect()
	}
}
