// Package sweep runs the periodic restock sweep over every owner's medications
package sweep

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/gmsas95/medicamenta/internal/forecast"
	"github.com/gmsas95/medicamenta/internal/medication"
	"github.com/gmsas95/medicamenta/internal/metrics"
)

// DefaultTimeout bounds one full sweep.
const DefaultTimeout = 5 * time.Minute

var urgencies = []forecast.Urgency{
	forecast.UrgencyCritical,
	forecast.UrgencyHigh,
	forecast.UrgencyMedium,
	forecast.UrgencyLow,
}

// Recommender produces the restock list for one owner
type Recommender interface {
	RestockRecommendations(ctx context.Context, userID string) ([]forecast.Recommendation, error)
}

// Report summarizes one sweep
type Report struct {
	Owners          int
	Failed          int
	Recommendations int
	ByUrgency       map[forecast.Urgency]int
}

// Runner schedules RunOnce on a cron spec
type Runner struct {
	spec    string
	owners  medication.OwnerLister
	rec     Recommender
	metrics *metrics.Metrics
	logger  *zap.Logger
	timeout time.Duration

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

func NewRunner(spec string, owners medication.OwnerLister, rec Recommender, m *metrics.Metrics, logger *zap.Logger) *Runner {
	return &Runner{
		spec:    spec,
		owners:  owners,
		rec:     rec,
		metrics: m,
		logger:  logger,
		timeout: DefaultTimeout,
	}
}

// Start parses the cron schedule and begins running sweeps. Overlapping runs are skipped.
func (r *Runner) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return fmt.Errorf("sweep runner already running")
	}

	cl := cronLogger{r.logger.Sugar()}
	c := cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))
	if _, err := c.AddFunc(r.spec, r.tick); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", r.spec, err)
	}
	c.Start()

	r.cron = c
	r.running = true
	r.logger.Info("Restock sweep scheduled", zap.String("spec", r.spec))
	return nil
}

// Stop waits for a sweep in progress to finish.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	c := r.cron
	r.mu.Unlock()

	<-c.Stop().Done()
	r.logger.Info("Restock sweep stopped")
}

func (r *Runner) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *Runner) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	_, _ = r.RunOnce(ctx)
}

// RunOnce sweeps every owner. A failing owner is logged and skipped; the joined
// failures are returned alongside the partial report.
func (r *Runner) RunOnce(ctx context.Context) (Report, error) {
	start := time.Now()
	report := Report{ByUrgency: make(map[forecast.Urgency]int, len(urgencies))}

	owners, err := r.owners.Owners(ctx)
	if err != nil {
		r.logger.Error("Restock sweep could not list owners", zap.Error(err))
		r.record(report, err)
		return report, err
	}

	var errs []error
	for _, owner := range owners {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		report.Owners++

		recs, err := r.rec.RestockRecommendations(ctx, owner)
		if err != nil {
			report.Failed++
			errs = append(errs, fmt.Errorf("owner %s: %w", owner, err))
			r.logger.Warn("Restock sweep failed for owner", zap.String("user_id", owner), zap.Error(err))
			continue
		}
		for _, rec := range recs {
			report.ByUrgency[rec.Urgency]++
		}
		report.Recommendations += len(recs)

		if len(recs) > 0 {
			r.logger.Info("Medications need restocking",
				zap.String("user_id", owner),
				zap.Int("count", len(recs)),
				zap.String("most_urgent", string(recs[0].Urgency)))
		}
	}

	err = errors.Join(errs...)
	r.record(report, err)
	r.logger.Info("Restock sweep finished",
		zap.Int("owners", report.Owners),
		zap.Int("failed", report.Failed),
		zap.Int("recommendations", report.Recommendations),
		zap.Duration("duration", time.Since(start)))
	return report, err
}

func (r *Runner) record(report Report, err error) {
	if r.metrics == nil {
		return
	}
	counts := make(map[string]int, len(report.ByUrgency))
	labels := make([]string, 0, len(urgencies))
	for _, u := range urgencies {
		counts[string(u)] = report.ByUrgency[u]
		labels = append(labels, string(u))
	}
	r.metrics.SetRestockRecommendations(counts, labels)
	r.metrics.RecordSweep(err)
}

// cronLogger routes the scheduler's own messages into zap.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
