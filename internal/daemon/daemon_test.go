package daemon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iasted/iasted/internal/config"
	"github.com/iasted/iasted/internal/logger"
)

func testDaemon(t *testing.T) *Daemon {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Realtime.APIKey = "sk-test"
	cfg.Gateway.SharedSecret = "test-secret"
	cfg.DataDir = t.TempDir()

	log, err := logger.New(logger.Config{Level: "error", Console: false})
	require.NoError(t, err)
	t.Cleanup(func() { log.Close() })

	d, err := New(cfg, log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Stop() })
	return d
}

func TestNew_WiresEverything(t *testing.T) {
	d := testDaemon(t)

	assert.NotNil(t, d.bus)
	assert.NotNil(t, d.forms)
	assert.NotNil(t, d.resolver)
	assert.NotNil(t, d.state)
	assert.NotNil(t, d.manager)
	assert.NotNil(t, d.gateway)
}

func TestStatus_NotRunning(t *testing.T) {
	d := testDaemon(t)

	st := d.Status()
	assert.False(t, st.Running)
	assert.Zero(t, st.Uptime)
}

func TestRouteResolution_DefaultTable(t *testing.T) {
	d := testDaemon(t)

	path, found := d.resolver.Resolve("rendez-vous")
	require.True(t, found)
	assert.Equal(t, "/appointments", path)
}
