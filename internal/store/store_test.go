package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gmsas95/medicamenta/internal/config"
	apperrors "github.com/gmsas95/medicamenta/internal/errors"
	"github.com/gmsas95/medicamenta/internal/medication"
)

func setupSQLStore(t *testing.T) Backend {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	s, err := NewSQLStore(db, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func setupBadgerStore(t *testing.T) Backend {
	db, err := OpenBadger("", true)
	require.NoError(t, err)
	s := NewBadgerStore(db, zap.NewNop())
	t.Cleanup(func() { s.Close() })
	return s
}

func newMedication(t *testing.T, id, owner, frequency string, stock int) *medication.Medication {
	t.Helper()
	m, err := medication.New(medication.NewParams{
		ID:           id,
		UserID:       owner,
		Name:         "Med " + id,
		Dosage:       "10mg",
		Frequency:    frequency,
		StartTime:    "08:00",
		CurrentStock: stock,
		StockUnit:    "comprimidos",
	})
	require.NoError(t, err)
	return m
}

func backends() map[string]func(*testing.T) Backend {
	return map[string]func(*testing.T) Backend{
		"sqlite": setupSQLStore,
		"badger": setupBadgerStore,
	}
}

func TestBackend_SaveAndFind(t *testing.T) {
	for name, setup := range backends() {
		t.Run(name, func(t *testing.T) {
			s := setup(t)
			ctx := context.Background()

			m := newMedication(t, "m1", "alice", "8/8h", 10)
			_, err := m.RecordDoseTaken("08:00", medication.Administrator{ID: "alice", Name: "Alice"}, "ok", true)
			require.NoError(t, err)

			_, err = s.Save(ctx, m)
			require.NoError(t, err)

			got, err := s.FindByID(ctx, "m1", "alice")
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, m.Name(), got.Name())
			assert.Equal(t, 9, got.CurrentStock())
			assert.True(t, m.Schedule().Equal(got.Schedule()))

			// another owner never sees it
			other, err := s.FindByID(ctx, "m1", "bob")
			require.NoError(t, err)
			assert.Nil(t, other)

			ok, err := s.Exists(ctx, "m1", "alice")
			require.NoError(t, err)
			assert.True(t, ok)
			ok, err = s.Exists(ctx, "m1", "bob")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestBackend_SaveOverwrites(t *testing.T) {
	for name, setup := range backends() {
		t.Run(name, func(t *testing.T) {
			s := setup(t)
			ctx := context.Background()

			m := newMedication(t, "m1", "alice", "diário", 10)
			_, err := s.Save(ctx, m)
			require.NoError(t, err)

			require.NoError(t, m.UpdateStock(0))
			require.NoError(t, m.Archive())
			_, err = s.Save(ctx, m)
			require.NoError(t, err)

			got, err := s.FindByID(ctx, "m1", "alice")
			require.NoError(t, err)
			assert.True(t, got.IsArchived())
			assert.NotNil(t, got.ArchivedAt())
			assert.Equal(t, 0, got.CurrentStock())
		})
	}
}

func TestBackend_ListLowStockAndOwners(t *testing.T) {
	for name, setup := range backends() {
		t.Run(name, func(t *testing.T) {
			s := setup(t)
			ctx := context.Background()

			archived := newMedication(t, "a0", "alice", "diário", 0)
			require.NoError(t, archived.Archive())

			for _, m := range []*medication.Medication{
				newMedication(t, "a1", "alice", "diário", 3),
				newMedication(t, "a2", "alice", "diário", 50),
				archived,
				newMedication(t, "b1", "bob", "diário", 1),
			} {
				_, err := s.Save(ctx, m)
				require.NoError(t, err)
			}

			active, err := s.FindByUserID(ctx, "alice", false)
			require.NoError(t, err)
			assert.Len(t, active, 2)

			all, err := s.FindByUserID(ctx, "alice", true)
			require.NoError(t, err)
			assert.Len(t, all, 3)

			low, err := s.FindLowStock(ctx, "alice", medication.DefaultLowStockThreshold)
			require.NoError(t, err)
			require.Len(t, low, 1)
			assert.Equal(t, "a1", low[0].ID())

			owners, err := s.Owners(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"alice", "bob"}, owners)

			require.NoError(t, s.Delete(ctx, "a1", "alice"))
			gone, err := s.FindByID(ctx, "a1", "alice")
			require.NoError(t, err)
			assert.Nil(t, gone)

			empty, err := s.FindByUserID(ctx, "carol", true)
			require.NoError(t, err)
			assert.Empty(t, empty)
		})
	}
}

func TestOpen_InMemoryBackends(t *testing.T) {
	for _, backend := range []string{"sqlite", "badger"} {
		t.Run(backend, func(t *testing.T) {
			s, err := Open(config.StorageConfig{
				Backend:  backend,
				InMemory: true,
				Breaker:  config.BreakerConfig{Enabled: true, MaxFailures: 3, OpenTimeout: time.Second},
			}, zap.NewNop())
			require.NoError(t, err)
			defer s.Close()

			_, isBreaker := s.(*BreakerRepository)
			assert.True(t, isBreaker)

			_, err = s.Save(context.Background(), newMedication(t, "m1", "alice", "12/12h", 4))
			require.NoError(t, err)
			got, err := s.FindByID(context.Background(), "m1", "alice")
			require.NoError(t, err)
			require.NotNil(t, got)
		})
	}
}

func TestOpen_UnknownBackend(t *testing.T) {
	_, err := Open(config.StorageConfig{Backend: "postgres"}, zap.NewNop())
	assert.Error(t, err)
}

// flakyBackend fails every call while down is set
type flakyBackend struct {
	Backend
	down  bool
	calls int
}

var errDiskGone = errors.New("disk gone")

func (f *flakyBackend) FindByID(ctx context.Context, id, ownerID string) (*medication.Medication, error) {
	f.calls++
	if f.down {
		return nil, errDiskGone
	}
	return f.Backend.FindByID(ctx, id, ownerID)
}

func TestBreakerRepository_OpensAfterConsecutiveFailures(t *testing.T) {
	flaky := &flakyBackend{Backend: setupBadgerStore(t), down: true}
	b := NewBreakerRepository(flaky, BreakerSettings{MaxFailures: 2, OpenTimeout: time.Hour}, zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := b.FindByID(ctx, "m1", "alice")
		assert.ErrorIs(t, err, errDiskGone)
	}
	assert.Equal(t, gobreaker.StateOpen, b.State())

	_, err := b.FindByID(ctx, "m1", "alice")
	assert.ErrorIs(t, err, apperrors.ErrStoreUnavailable)
	assert.Equal(t, 2, flaky.calls, "an open breaker must not reach the backend")
}

func TestBreakerRepository_DomainErrorsDoNotTrip(t *testing.T) {
	b := NewBreakerRepository(setupBadgerStore(t), BreakerSettings{MaxFailures: 1, OpenTimeout: time.Hour}, zap.NewNop())
	ctx := context.Background()

	m, err := b.FindByID(ctx, "missing", "alice")
	require.NoError(t, err)
	assert.Nil(t, m)

	_, err = b.Save(ctx, newMedication(t, "m1", "alice", "diário", 1))
	require.NoError(t, err)
	assert.Equal(t, gobreaker.StateClosed, b.State())
}
