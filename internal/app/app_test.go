package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/gmsas95/medicamenta/internal/commands"
	"github.com/gmsas95/medicamenta/internal/config"
)

func testConfig(t *testing.T, backend string) *config.Config {
	t.Helper()
	cfg, err := config.Load("", t.TempDir())
	require.NoError(t, err)
	cfg.Storage.Backend = backend
	cfg.Storage.InMemory = true
	cfg.Sweep.Enabled = false
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	a, err := New(context.Background(), cfg, zap.NewNop(), level, "test")
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func TestNew(t *testing.T) {
	for _, backend := range []string{"sqlite", "badger"} {
		t.Run(backend, func(t *testing.T) {
			a := newTestApp(t, testConfig(t, backend))

			assert.Equal(t, "test", a.Version)
			assert.Equal(t, "closed", a.StoreState())
			assert.Nil(t, a.Sweep)

			res, err := a.Handler.Add(context.Background(), commands.AddMedication{
				UserID:    "alice",
				Name:      "Omeprazol",
				Dosage:    "20mg",
				Frequency: "diário",
				StartTime: "07:00",
			})
			require.NoError(t, err)
			require.NotNil(t, res.Medication)

			meds, err := a.Handler.List(context.Background(), "alice", false)
			require.NoError(t, err)
			assert.Len(t, meds, 1)
			assert.NotNil(t, a.NewServer().App())
		})
	}
}

func TestNew_WithSweep(t *testing.T) {
	cfg := testConfig(t, "badger")
	cfg.Sweep.Enabled = true
	cfg.Sweep.Spec = "@hourly"

	a := newTestApp(t, cfg)
	require.NotNil(t, a.Sweep)

	report, err := a.Sweep.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Owners)
}

func TestNew_RedisUnavailable(t *testing.T) {
	cfg := testConfig(t, "badger")
	cfg.Lock.Backend = "redis"
	cfg.Lock.RedisURL = "not-a-url"

	_, err := New(context.Background(), cfg, zap.NewNop(), zap.NewAtomicLevel(), "test")
	assert.Error(t, err)
}

func TestReload_ChangesLogLevel(t *testing.T) {
	a := newTestApp(t, testConfig(t, "badger"))

	next := *a.Config
	next.Log.Level = "debug"
	a.Reload(&next)
	assert.Equal(t, zapcore.DebugLevel, a.Level.Level())

	bad := *a.Config
	bad.Log.Level = "loud"
	a.Reload(&bad)
	assert.Equal(t, zapcore.DebugLevel, a.Level.Level())
}

func TestNewLogger(t *testing.T) {
	logger, level, err := NewLogger(config.LogConfig{Development: true, Level: "warn"})
	require.NoError(t, err)
	assert.NotNil(t, logger)
	assert.Equal(t, zapcore.WarnLevel, level.Level())

	_, _, err = NewLogger(config.LogConfig{Level: "chatty"})
	assert.Error(t, err)
}

func TestClose_Idempotent(t *testing.T) {
	a := newTestApp(t, testConfig(t, "badger"))
	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
}
