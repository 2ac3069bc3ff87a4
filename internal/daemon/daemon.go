package daemon

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/iasted/iasted/internal/config"
	"github.com/iasted/iasted/internal/logger"
	"github.com/iasted/iasted/internal/metrics"
	"github.com/iasted/iasted/pkg/assistant"
	"github.com/iasted/iasted/pkg/clientstate"
	"github.com/iasted/iasted/pkg/events"
	"github.com/iasted/iasted/pkg/formstate"
	"github.com/iasted/iasted/pkg/gateway"
	"github.com/iasted/iasted/pkg/prompt"
	"github.com/iasted/iasted/pkg/routes"
)

// Daemon is the iAsted orchestration service: it owns the shared stores, the
// assistant session manager and the gateway the portal UI attaches to.
type Daemon struct {
	config *config.Config
	logger *logger.Logger

	bus      *events.Bus
	forms    *formstate.Store
	resolver *routes.Resolver
	watcher  *routes.Watcher
	state    *clientstate.Store
	metrics  *metrics.Metrics
	manager  *assistant.Manager
	gateway  *gateway.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	startTime time.Time
	running   bool
	mu        sync.RWMutex
}

// New wires the daemon from its configuration.
func New(cfg *config.Config, log *logger.Logger) (*Daemon, error) {
	ctx, cancel := context.WithCancel(context.Background())

	d := &Daemon{
		config: cfg,
		logger: log,
		ctx:    ctx,
		cancel: cancel,
	}

	if err := d.initialize(); err != nil {
		cancel()
		return nil, err
	}
	return d, nil
}

func (d *Daemon) initialize() error {
	zl := d.logger.GetZerolog()

	d.bus = events.NewBus()
	d.forms = formstate.NewStore(d.bus)
	d.forms.SetDefaultMaxSteps(d.config.Assistant.MaxFormSteps)
	d.metrics = metrics.New()

	d.resolver = routes.NewResolver(nil)
	if d.config.RoutesPath != "" {
		// NewWatcher loads the table once and then reloads it on change.
		watcher, err := routes.NewWatcher(d.resolver, d.config.RoutesPath, 0)
		if err != nil {
			return fmt.Errorf("failed to watch route table: %w", err)
		}
		d.watcher = watcher
	}

	if err := os.MkdirAll(d.config.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	state, err := clientstate.NewStore(filepath.Join(d.config.DataDir, "state.db"))
	if err != nil {
		return fmt.Errorf("failed to open client state store: %w", err)
	}
	d.state = state

	manager, err := assistant.NewManager(assistant.ManagerOptions{
		TransportFactory: func() assistant.Transport {
			return assistant.NewRealtimeTransport(
				d.config.Realtime.APIKey,
				d.config.Realtime.Endpoint,
				d.config.Realtime.Model,
				zl,
			)
		},
		DispatchTimeout:   time.Duration(d.config.Assistant.DispatchTimeout) * time.Second,
		QuestionAllowance: d.config.Quota.AnonymousQuestions,
		Bus:               d.bus,
		Forms:             d.forms,
		Routes:            d.resolver,
		State:             d.state,
		Metrics:           d.metrics,
		Logger:            zl,
	})
	if err != nil {
		return fmt.Errorf("failed to build session manager: %w", err)
	}
	d.manager = manager

	var minter *assistant.Minter
	if d.config.Realtime.MintCredentials {
		minter = assistant.NewMinter(
			d.config.Realtime.APIKey,
			d.config.Realtime.BaseURL,
			d.config.Realtime.Model,
		)
	}

	composer := prompt.NewComposer(d.config.Assistant.PromptTemplate, d.config.Assistant.MonitoredFormRoutes)

	gw, err := gateway.NewServer(gateway.Config{
		Host:          d.config.Gateway.Host,
		Port:          d.config.Gateway.Port,
		SharedSecret:  d.config.Gateway.SharedSecret,
		IdleAfter:     time.Duration(d.config.Gateway.IdleMinutes) * time.Minute,
		SweepSchedule: d.config.Gateway.SweepSchedule,
		DefaultVoice:  d.config.Assistant.DefaultVoice,
		Voices:        d.config.Assistant.Voices,
		Manager:       d.manager,
		Minter:        minter,
		Composer:      composer,
		Bus:           d.bus,
		Forms:         d.forms,
		Routes:        d.resolver,
		State:         d.state,
		Metrics:       d.metrics,
		Authorize:     newRoleAuthorizer(d.config.Assistant.OverrideRoles),
		Services:      newPortalServices(),
		Logger:        zl,
	})
	if err != nil {
		return fmt.Errorf("failed to build gateway: %w", err)
	}
	d.gateway = gw

	return nil
}

// Start brings the daemon up.
func (d *Daemon) Start() error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon already running")
	}
	d.running = true
	d.startTime = time.Now()
	d.mu.Unlock()

	d.logger.Info().
		Int("port", d.config.Gateway.Port).
		Str("model", d.config.Realtime.Model).
		Msg("starting iasted daemon")

	if err := d.gateway.Start(); err != nil {
		return fmt.Errorf("failed to start gateway: %w", err)
	}

	d.wg.Add(1)
	go d.maintenanceLoop()

	d.logger.Info().Msg("daemon started")
	return nil
}

// Stop shuts the daemon down gracefully.
func (d *Daemon) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = false
	d.mu.Unlock()

	d.logger.Info().Msg("stopping daemon")

	d.cancel()

	if err := d.gateway.Stop(); err != nil {
		d.logger.Error().Err(err).Msg("failed to stop gateway")
	}
	d.manager.Shutdown()
	if d.watcher != nil {
		d.watcher.Stop()
	}
	d.wg.Wait()

	if err := d.state.Close(); err != nil {
		d.logger.Error().Err(err).Msg("failed to close client state store")
	}

	d.logger.Info().Msg("daemon stopped")
	return nil
}

// Status describes the running daemon.
type Status struct {
	Running   bool          `json:"running"`
	Uptime    time.Duration `json:"uptime"`
	Clients   int           `json:"clients"`
	Sessions  int           `json:"sessions"`
	StartTime time.Time     `json:"start_time"`
}

// Status returns a snapshot of daemon state.
func (d *Daemon) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()

	st := Status{
		Running:   d.running,
		StartTime: d.startTime,
	}
	if d.running {
		st.Uptime = time.Since(d.startTime)
		st.Clients = d.gateway.ClientCount()
		st.Sessions = d.manager.Count()
	}
	return st
}

// Wait blocks until the daemon context ends.
func (d *Daemon) Wait() {
	<-d.ctx.Done()
}

// maintenanceLoop periodically logs session statistics.
func (d *Daemon) maintenanceLoop() {
	defer d.wg.Done()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.logger.Debug().
				Int("clients", d.gateway.ClientCount()).
				Int("sessions", d.manager.Count()).
				Int("tracked_sessions", d.state.SessionCount()).
				Msg("maintenance tick")
		}
	}
}
