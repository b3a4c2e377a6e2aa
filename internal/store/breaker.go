package store

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	apperrors "github.com/gmsas95/medicamenta/internal/errors"
	"github.com/gmsas95/medicamenta/internal/medication"
)

// Backend is a medication repository that can also enumerate owners and be closed
type Backend interface {
	medication.Repository
	medication.OwnerLister
	Close() error
}

// BreakerSettings tunes BreakerRepository
type BreakerSettings struct {
	Name        string
	MaxFailures uint32
	OpenTimeout time.Duration
}

// BreakerRepository fails fast with ErrStoreUnavailable once the wrapped backend keeps
// failing. Domain errors and caller cancellations do not count as failures.
type BreakerRepository struct {
	next   Backend
	cb     *gobreaker.CircuitBreaker[any]
	logger *zap.Logger
}

func NewBreakerRepository(next Backend, s BreakerSettings, logger *zap.Logger) *BreakerRepository {
	if s.MaxFailures == 0 {
		s.MaxFailures = 5
	}
	if s.OpenTimeout == 0 {
		s.OpenTimeout = 30 * time.Second
	}
	if s.Name == "" {
		s.Name = "medication-store"
	}

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: 1,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.MaxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil ||
				apperrors.IsAppError(err) ||
				errors.Is(err, context.Canceled) ||
				errors.Is(err, context.DeadlineExceeded)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Store circuit breaker changed state",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return &BreakerRepository{next: next, cb: cb, logger: logger}
}

// State exposes the breaker state for health reporting.
func (b *BreakerRepository) State() gobreaker.State {
	return b.cb.State()
}

func (b *BreakerRepository) execute(fn func() (any, error)) (any, error) {
	v, err := b.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, apperrors.Wrap(err, apperrors.ErrStoreUnavailable.Code, apperrors.ErrStoreUnavailable.Message)
	}
	return v, err
}

func (b *BreakerRepository) FindByID(ctx context.Context, id, ownerID string) (*medication.Medication, error) {
	v, err := b.execute(func() (any, error) { return b.next.FindByID(ctx, id, ownerID) })
	return asMedication(v), err
}

func (b *BreakerRepository) FindByUserID(ctx context.Context, ownerID string, includeArchived bool) ([]*medication.Medication, error) {
	v, err := b.execute(func() (any, error) { return b.next.FindByUserID(ctx, ownerID, includeArchived) })
	return asMedications(v), err
}

func (b *BreakerRepository) Save(ctx context.Context, m *medication.Medication) (*medication.Medication, error) {
	v, err := b.execute(func() (any, error) { return b.next.Save(ctx, m) })
	return asMedication(v), err
}

func (b *BreakerRepository) Delete(ctx context.Context, id, ownerID string) error {
	_, err := b.execute(func() (any, error) { return nil, b.next.Delete(ctx, id, ownerID) })
	return err
}

func (b *BreakerRepository) FindLowStock(ctx context.Context, ownerID string, threshold int) ([]*medication.Medication, error) {
	v, err := b.execute(func() (any, error) { return b.next.FindLowStock(ctx, ownerID, threshold) })
	return asMedications(v), err
}

func (b *BreakerRepository) Exists(ctx context.Context, id, ownerID string) (bool, error) {
	v, err := b.execute(func() (any, error) { return b.next.Exists(ctx, id, ownerID) })
	ok, _ := v.(bool)
	return ok, err
}

func (b *BreakerRepository) Owners(ctx context.Context) ([]string, error) {
	v, err := b.execute(func() (any, error) { return b.next.Owners(ctx) })
	owners, _ := v.([]string)
	return owners, err
}

func (b *BreakerRepository) Close() error {
	return b.next.Close()
}

func asMedication(v any) *medication.Medication {
	m, _ := v.(*medication.Medication)
	return m
}

func asMedications(v any) []*medication.Medication {
	meds, _ := v.([]*medication.Medication)
	return meds
}
