package gateway

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/iasted/iasted/internal/metrics"
	"github.com/iasted/iasted/pkg/assistant"
	"github.com/iasted/iasted/pkg/clientstate"
	"github.com/iasted/iasted/pkg/events"
	"github.com/iasted/iasted/pkg/formstate"
	"github.com/iasted/iasted/pkg/prompt"
	"github.com/iasted/iasted/pkg/routes"
	"github.com/iasted/iasted/pkg/tools"
)

// Config holds gateway configuration.
type Config struct {
	Host          string
	Port          int
	SharedSecret  string
	IdleAfter     time.Duration
	SweepSchedule string

	// DefaultVoice is the fallback when a device has no stored preference.
	// Voices, when set, is the closed list set_voice accepts.
	DefaultVoice string
	Voices       []string

	Manager   *assistant.Manager
	Minter    *assistant.Minter
	Composer  *prompt.Composer
	Bus       *events.Bus
	Forms     *formstate.Store
	Routes    *routes.Resolver
	State     *clientstate.Store
	Metrics   *metrics.Metrics
	Authorize tools.Authorizer
	Services  tools.Services
	Logger    zerolog.Logger
}

// Server is the websocket gateway the portal UI attaches to.
type Server struct {
	cfg         Config
	server      *http.Server
	upgrader    websocket.Upgrader
	clients     *ClientRegistry
	router      *Router
	authHandler *AuthHandler
	broadcaster *Broadcaster
	sweeper     *cron.Cron
	logger      zerolog.Logger

	shutdownMu     sync.RWMutex
	isShuttingDown bool
}

// NewServer validates the config and builds a gateway server.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Port <= 0 {
		return nil, fmt.Errorf("invalid port: %d", cfg.Port)
	}
	if cfg.SharedSecret == "" {
		return nil, fmt.Errorf("shared secret is required")
	}
	if cfg.Manager == nil {
		return nil, fmt.Errorf("session manager is required")
	}
	if cfg.Composer == nil {
		return nil, fmt.Errorf("prompt composer is required")
	}
	if cfg.Bus == nil || cfg.Forms == nil || cfg.Routes == nil || cfg.State == nil {
		return nil, fmt.Errorf("bus, form store, route resolver and client state are required")
	}
	if cfg.Authorize == nil || cfg.Services == nil {
		return nil, fmt.Errorf("authorizer and services are required")
	}
	if cfg.IdleAfter <= 0 {
		cfg.IdleAfter = 30 * time.Minute
	}
	if cfg.SweepSchedule == "" {
		cfg.SweepSchedule = "@every 5m"
	}
	if cfg.DefaultVoice == "" {
		cfg.DefaultVoice = "coral"
	}

	clients := NewClientRegistry()
	logger := cfg.Logger.With().Str("component", "gateway").Logger()

	s := &Server{
		cfg:         cfg,
		clients:     clients,
		router:      NewRouter(),
		authHandler: NewAuthHandler(cfg.SharedSecret),
		broadcaster: NewBroadcaster(clients, cfg.Logger),
		logger:      logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	s.registerMethods()
	return s, nil
}

// Start begins serving and wires the bus fanout and the idle sweep.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	if s.cfg.Metrics != nil {
		mux.Handle("/metrics", s.cfg.Metrics.Handler())
	}
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	s.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler: mux,
	}

	s.broadcaster.Attach(s.cfg.Bus)

	s.sweeper = cron.New()
	if _, err := s.sweeper.AddFunc(s.cfg.SweepSchedule, s.sweepIdle); err != nil {
		return fmt.Errorf("invalid sweep schedule: %w", err)
	}
	s.sweeper.Start()

	s.logger.Info().Int("port", s.cfg.Port).Msg("starting gateway")

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("gateway server error")
		}
	}()
	return nil
}

// Stop gracefully stops the gateway.
func (s *Server) Stop() error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	s.logger.Info().Msg("shutting down gateway")

	if s.sweeper != nil {
		<-s.sweeper.Stop().Done()
	}
	s.broadcaster.Broadcast("server.shutdown", map[string]interface{}{
		"message": "server is shutting down",
	})
	s.broadcaster.Detach()

	for _, client := range s.clients.GetAll() {
		s.detachClient(client)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.logger.Info().Msg("gateway stopped")
	return nil
}

// ClientCount returns the number of attached clients.
func (s *Server) ClientCount() int {
	return s.clients.Count()
}

// Clients returns the reporting view of attached clients.
func (s *Server) Clients() []ClientInfo {
	return s.clients.Infos(s.cfg.IdleAfter)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.shutdownMu.RLock()
	if s.isShuttingDown {
		s.shutdownMu.RUnlock()
		http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
		return
	}
	s.shutdownMu.RUnlock()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to upgrade connection")
		return
	}

	clientID, _ := gonanoid.New()
	client := &Client{
		ID:           clientID,
		Conn:         conn,
		State:        StateConnecting,
		ConnectedAt:  time.Now(),
		LastActivity: time.Now(),
		IPAddress:    r.RemoteAddr,
	}
	s.clients.Add(client)
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.GatewayClientsActive.Inc()
	}

	s.logger.Info().Str("client_id", clientID).Str("ip", r.RemoteAddr).Msg("client connected")

	if err := s.sendAuthChallenge(client); err != nil {
		s.logger.Error().Err(err).Str("client_id", clientID).Msg("failed to send auth challenge")
		s.detachClient(client)
		return
	}

	go s.handleClient(client)
}

func (s *Server) sendAuthChallenge(client *Client) error {
	challenge, err := s.authHandler.GenerateChallenge()
	if err != nil {
		return err
	}
	client.Challenge = challenge
	client.State = StateAuthenticating
	return client.WriteJSON(AuthChallenge{
		Event:     "auth.challenge",
		Challenge: challenge,
	})
}

func (s *Server) handleClient(client *Client) {
	defer s.detachClient(client)

	for {
		_, data, err := client.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn().Err(err).Str("client_id", client.ID).Msg("client read error")
			}
			return
		}

		s.clients.UpdateActivity(client.ID)
		if s.cfg.Metrics != nil {
			s.cfg.Metrics.GatewayMessagesTotal.WithLabelValues("in").Inc()
		}

		req, parseErr := s.router.ParseRequest(data)
		if parseErr != nil {
			_ = client.WriteJSON(Response{Error: parseErr})
			continue
		}

		if !client.Authenticated {
			if req.Method != "auth.response" {
				_ = client.WriteJSON(Response{
					ID:    req.ID,
					Error: &Error{Code: AuthenticationRequired, Message: "authentication required"},
				})
				continue
			}
			if !s.handleAuth(client, req) {
				return
			}
			continue
		}

		resp := s.router.Route(client, req)
		if s.cfg.Metrics != nil {
			s.cfg.Metrics.GatewayMessagesTotal.WithLabelValues("out").Inc()
		}
		if err := client.WriteJSON(resp); err != nil {
			s.logger.Warn().Err(err).Str("client_id", client.ID).Msg("failed to write response")
			return
		}
	}
}

// handleAuth verifies a signed challenge. It returns false when the client
// must be dropped.
func (s *Server) handleAuth(client *Client, req *Request) bool {
	signature, _ := req.Params["signature"].(string)
	result := s.authHandler.HandleAuthResponse(client, signature)
	_ = client.WriteJSON(result)

	if !result.Success {
		if s.cfg.Metrics != nil {
			s.cfg.Metrics.GatewayAuthFailuresTotal.Inc()
		}
		s.logger.Warn().Str("client_id", client.ID).Str("reason", result.Message).Msg("authentication failed")
		// Re-challenge unless the attempt budget is spent.
		if client.AuthAttempts >= 3 {
			return false
		}
		if err := s.sendAuthChallenge(client); err != nil {
			return false
		}
		return true
	}

	s.logger.Info().Str("client_id", client.ID).Msg("client authenticated")
	return true
}

// detachClient tears down a client and its assistant session.
func (s *Server) detachClient(client *Client) {
	if _, exists := s.clients.Get(client.ID); !exists {
		return
	}
	s.clients.Remove(client.ID)
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.GatewayClientsActive.Dec()
	}
	if client.SessionID != "" {
		s.cfg.Manager.Remove(client.SessionID)
	}
	// The tab is gone: its quota counter and redirect target die with it.
	s.cfg.State.EndSession(client.ID)
	_ = client.Conn.Close()
	s.logger.Info().Str("client_id", client.ID).Msg("client disconnected")
}

// sweepIdle drops clients that have been silent too long and expires
// session-scoped client state.
func (s *Server) sweepIdle() {
	idle := s.clients.IdleClients(s.cfg.IdleAfter)
	for _, client := range idle {
		s.logger.Info().Str("client_id", client.ID).Msg("sweeping idle client")
		s.detachClient(client)
	}
	swept := s.cfg.State.SweepIdle(s.cfg.IdleAfter)
	if len(idle) > 0 || swept > 0 {
		s.logger.Info().Int("clients", len(idle)).Int("sessions", swept).Msg("idle sweep complete")
	}
}
