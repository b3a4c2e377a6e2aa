// Package commands is the application layer: it loads medication aggregates, runs the
// domain operations on them under a per-medication lock and persists the outcome.
package commands

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	apperrors "github.com/gmsas95/medicamenta/internal/errors"
	"github.com/gmsas95/medicamenta/internal/forecast"
	"github.com/gmsas95/medicamenta/internal/lock"
	"github.com/gmsas95/medicamenta/internal/medication"
	"github.com/gmsas95/medicamenta/internal/metrics"
	"github.com/gmsas95/medicamenta/internal/validation"
)

const tracerName = "github.com/gmsas95/medicamenta/internal/commands"

// DefaultForecastDays is the simulation length used when Forecast gets no horizon
const DefaultForecastDays = 30

// Handler executes commands against a medication repository
type Handler struct {
	repo     medication.Repository
	forecast *forecast.Service
	locker   lock.Locker
	metrics  *metrics.Metrics
	tracer   trace.Tracer
	logger   *zap.Logger
	lowStock int
	newID    func() string
}

type Option func(*Handler)

func WithLocker(l lock.Locker) Option {
	return func(h *Handler) { h.locker = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

// WithLowStockThreshold sets the unit count at or below which dose and stock commands warn.
func WithLowStockThreshold(units int) Option {
	return func(h *Handler) { h.lowStock = units }
}

func WithIDGenerator(fn func() string) Option {
	return func(h *Handler) { h.newID = fn }
}

func NewHandler(repo medication.Repository, fc *forecast.Service, logger *zap.Logger, opts ...Option) *Handler {
	h := &Handler{
		repo:     repo,
		forecast: fc,
		locker:   lock.NewLocal(0),
		tracer:   otel.Tracer(tracerName),
		logger:   logger,
		lowStock: medication.DefaultLowStockThreshold,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// start opens the command span; the returned func closes it and records the outcome.
func (h *Handler) start(ctx context.Context, command string, attrs ...attribute.KeyValue) (context.Context, func(*error)) {
	ctx, span := h.tracer.Start(ctx, "commands."+command, trace.WithAttributes(attrs...))
	began := time.Now()
	return ctx, func(errp *error) {
		err := *errp
		if err != nil {
			span.RecordError(err)
			span.SetStatus(otelcodes.Error, err.Error())
		}
		span.End()
		if h.metrics != nil {
			h.metrics.ObserveCommand(command, err, time.Since(began))
		}
	}
}

func refAttrs(ref Ref) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("medication.id", ref.MedicationID),
		attribute.String("user.id", ref.UserID),
	}
}

func (h *Handler) countIssues(r validation.Result) {
	if h.metrics == nil {
		return
	}
	for _, i := range r.Issues() {
		h.metrics.RecordValidationIssue(string(i.Severity), string(i.Code))
	}
}

func (h *Handler) load(ctx context.Context, ref Ref) (*medication.Medication, error) {
	if ref.MedicationID == "" || ref.UserID == "" {
		return nil, apperrors.ErrIdentityRequired
	}
	m, err := h.repo.FindByID(ctx, ref.MedicationID, ref.UserID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, apperrors.ErrNotFound.WithMessage("medication %s not found", ref.MedicationID)
	}
	return m, nil
}

// mutate runs fn on the freshly loaded aggregate while holding the medication lock and
// saves it when fn asks to.
func (h *Handler) mutate(ctx context.Context, ref Ref, fn func(m *medication.Medication) (save bool, err error)) (*medication.Medication, error) {
	if ref.MedicationID == "" || ref.UserID == "" {
		return nil, apperrors.ErrIdentityRequired
	}
	unlock, err := h.locker.Lock(ctx, "medication:"+ref.MedicationID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	m, err := h.load(ctx, ref)
	if err != nil {
		return nil, err
	}
	save, err := fn(m)
	if err != nil || !save {
		return m, err
	}
	return h.repo.Save(ctx, m)
}

// Add validates the input, creates the medication with a fresh id and stores it.
// Blocking validation issues come back in the result with a nil medication and no error.
func (h *Handler) Add(ctx context.Context, cmd AddMedication) (res MedicationResult, err error) {
	ctx, done := h.start(ctx, "add", attribute.String("user.id", cmd.UserID))
	defer done(&err)

	if cmd.UserID == "" {
		return res, apperrors.ErrIdentityRequired
	}

	draft := validation.ValidateDraft(validation.Draft{
		Name:         cmd.Name,
		Dosage:       cmd.Dosage,
		Frequency:    cmd.Frequency,
		StartTime:    cmd.StartTime,
		CurrentStock: cmd.CurrentStock,
	})
	if !draft.Valid {
		h.countIssues(draft)
		return MedicationResult{Validation: draft}, nil
	}

	m, err := medication.New(medication.NewParams{
		ID:           h.newID(),
		UserID:       cmd.UserID,
		Name:         cmd.Name,
		Dosage:       cmd.Dosage,
		Frequency:    cmd.Frequency,
		StartTime:    cmd.StartTime,
		Notes:        cmd.Notes,
		CurrentStock: cmd.CurrentStock,
		StockUnit:    cmd.StockUnit,
	})
	if err != nil {
		return res, err
	}

	existing, err := h.repo.FindByUserID(ctx, cmd.UserID, false)
	if err != nil {
		return res, err
	}
	result := validation.Combine(
		draft,
		validation.ValidateMedication(m),
		validation.ValidateSchedule(m.Schedule().Doses()),
		validation.ValidateMedicationList(append(existing, m)),
	).Unique()
	h.countIssues(result)
	if !result.Valid {
		return MedicationResult{Validation: result}, nil
	}

	saved, err := h.repo.Save(ctx, m)
	if err != nil {
		return res, err
	}

	h.logger.Info("Medication added",
		zap.String("medication_id", saved.ID()),
		zap.String("user_id", saved.UserID()),
		zap.Strings("times", saved.Schedule().Times()))

	return MedicationResult{Medication: saved, Validation: result}, nil
}

// Update applies a partial update. The medication is saved only when validation passes.
func (h *Handler) Update(ctx context.Context, cmd UpdateMedication) (res MedicationResult, err error) {
	ref := Ref{MedicationID: cmd.MedicationID, UserID: cmd.UserID}
	ctx, done := h.start(ctx, "update", refAttrs(ref)...)
	defer done(&err)

	var result validation.Result
	m, err := h.mutate(ctx, ref, func(m *medication.Medication) (bool, error) {
		if err := m.UpdateDetails(cmd.Updates); err != nil {
			return false, err
		}
		if cmd.Active != nil {
			if *cmd.Active {
				if err := m.Activate(); err != nil {
					return false, err
				}
			} else {
				m.Deactivate()
			}
		}
		if cmd.RegenerateSchedule {
			if err := m.RegenerateSchedule(); err != nil {
				return false, err
			}
		}

		checks := []validation.Result{
			validation.ValidateMedication(m),
			validation.ValidateSchedule(m.Schedule().Doses()),
		}
		if cmd.Updates.Dosage != nil {
			checks = append(checks, validation.ValidateDosageFormat(*cmd.Updates.Dosage))
		}
		if cmd.Updates.Frequency != nil {
			checks = append(checks, validation.ValidateFrequencyFormat(*cmd.Updates.Frequency))
		}
		result = validation.Combine(checks...).Unique()
		return result.Valid, nil
	})
	if err != nil {
		return res, err
	}
	h.countIssues(result)
	if !result.Valid {
		return MedicationResult{Validation: result}, nil
	}

	h.logger.Info("Medication updated",
		zap.String("medication_id", m.ID()),
		zap.Bool("schedule_regenerated", cmd.RegenerateSchedule))

	return MedicationResult{Medication: m, Validation: result}, nil
}

// RecordDose marks a scheduled dose as taken or missed.
func (h *Handler) RecordDose(ctx context.Context, cmd RecordDose) (res DoseResult, err error) {
	ref := Ref{MedicationID: cmd.MedicationID, UserID: cmd.UserID}
	attrs := append(refAttrs(ref), attribute.String("dose.time", cmd.Time), attribute.String("dose.status", string(cmd.Status)))
	ctx, done := h.start(ctx, "record_dose", attrs...)
	defer done(&err)

	if !medication.IsValidTimeOfDay(cmd.Time) {
		return res, apperrors.ErrInvalidTime.WithMessage("invalid dose time %q: expected HH:MM", cmd.Time)
	}
	if cmd.Status != medication.StatusTaken && cmd.Status != medication.StatusMissed {
		return res, apperrors.ErrInvalidDoseStatus.WithMessage("status must be taken or missed, got %q", cmd.Status)
	}
	if cmd.AdministeredBy.ID == "" && cmd.AdministeredBy.Name == "" {
		return res, apperrors.ErrAdministratorRequired
	}

	var dose *medication.Dose
	m, err := h.mutate(ctx, ref, func(m *medication.Medication) (bool, error) {
		var err error
		if cmd.Status == medication.StatusTaken {
			dose, err = m.RecordDoseTaken(cmd.Time, cmd.AdministeredBy, cmd.Notes, cmd.decreaseStock())
		} else {
			dose, err = m.RecordDoseMissed(cmd.Time, cmd.AdministeredBy, cmd.Notes)
		}
		if err != nil {
			return false, err
		}
		if dose == nil {
			return false, apperrors.ErrDoseNotInSchedule.WithMessage("no dose scheduled at %s", cmd.Time)
		}
		return true, nil
	})
	if err != nil {
		return res, err
	}

	if h.metrics != nil {
		h.metrics.RecordDose(string(cmd.Status))
	}
	h.logger.Info("Dose recorded",
		zap.String("medication_id", m.ID()),
		zap.String("time", cmd.Time),
		zap.String("status", string(cmd.Status)),
		zap.Int("stock", m.CurrentStock()))

	return DoseResult{Medication: m, Dose: dose, StockWarning: h.stockWarning(m)}, nil
}

// ResetDose puts a recorded dose back to upcoming. Stock is not restored.
func (h *Handler) ResetDose(ctx context.Context, cmd ResetDose) (res DoseResult, err error) {
	ref := Ref{MedicationID: cmd.MedicationID, UserID: cmd.UserID}
	ctx, done := h.start(ctx, "reset_dose", append(refAttrs(ref), attribute.String("dose.time", cmd.Time))...)
	defer done(&err)

	if !medication.IsValidTimeOfDay(cmd.Time) {
		return res, apperrors.ErrInvalidTime.WithMessage("invalid dose time %q: expected HH:MM", cmd.Time)
	}

	var dose *medication.Dose
	m, err := h.mutate(ctx, ref, func(m *medication.Medication) (bool, error) {
		var err error
		dose, err = m.ResetDose(cmd.Time)
		if err != nil {
			return false, err
		}
		if dose == nil {
			return false, apperrors.ErrDoseNotInSchedule.WithMessage("no dose scheduled at %s", cmd.Time)
		}
		return true, nil
	})
	if err != nil {
		return res, err
	}
	return DoseResult{Medication: m, Dose: dose}, nil
}

// AdjustStock sets, increases or decreases the stock count.
func (h *Handler) AdjustStock(ctx context.Context, cmd AdjustStock) (res DoseResult, err error) {
	ref := Ref{MedicationID: cmd.MedicationID, UserID: cmd.UserID}
	ctx, done := h.start(ctx, "adjust_stock", append(refAttrs(ref), attribute.String("stock.operation", string(cmd.Operation)))...)
	defer done(&err)

	m, err := h.mutate(ctx, ref, func(m *medication.Medication) (bool, error) {
		switch cmd.Operation {
		case StockSet:
			return true, m.UpdateStock(cmd.Amount)
		case StockIncrease:
			return true, m.IncreaseStock(cmd.Amount)
		case StockDecrease:
			return true, m.DecreaseStock(cmd.Amount)
		}
		return false, apperrors.ErrBadRequest.WithMessage("unknown stock operation %q", cmd.Operation)
	})
	if err != nil {
		return res, err
	}

	h.logger.Info("Stock adjusted",
		zap.String("medication_id", m.ID()),
		zap.String("operation", string(cmd.Operation)),
		zap.Int("amount", cmd.Amount),
		zap.Int("stock", m.CurrentStock()))

	return DoseResult{Medication: m, StockWarning: h.stockWarning(m)}, nil
}

// Archive soft-deletes a medication with empty stock.
func (h *Handler) Archive(ctx context.Context, ref Ref) (m *medication.Medication, err error) {
	ctx, done := h.start(ctx, "archive", refAttrs(ref)...)
	defer done(&err)

	return h.mutate(ctx, ref, func(m *medication.Medication) (bool, error) {
		return true, m.Archive()
	})
}

// Unarchive restores an archived medication as inactive.
func (h *Handler) Unarchive(ctx context.Context, ref Ref) (m *medication.Medication, err error) {
	ctx, done := h.start(ctx, "unarchive", refAttrs(ref)...)
	defer done(&err)

	return h.mutate(ctx, ref, func(m *medication.Medication) (bool, error) {
		m.Unarchive()
		return true, nil
	})
}

// Delete removes the medication. Confirmation is checked before anything is loaded.
func (h *Handler) Delete(ctx context.Context, cmd DeleteMedication) (err error) {
	ref := Ref{MedicationID: cmd.MedicationID, UserID: cmd.UserID}
	ctx, done := h.start(ctx, "delete", refAttrs(ref)...)
	defer done(&err)

	if !cmd.ConfirmDeletion {
		return apperrors.ErrDeletionNotConfirmed
	}

	_, err = h.mutate(ctx, ref, func(m *medication.Medication) (bool, error) {
		if cmd.MedicationName != "" && !strings.EqualFold(strings.TrimSpace(cmd.MedicationName), m.Name()) {
			return false, apperrors.ErrNameMismatch.WithMessage("medication name %q does not match %q", cmd.MedicationName, m.Name())
		}
		return false, h.repo.Delete(ctx, m.ID(), m.UserID())
	})
	if err != nil {
		return err
	}

	h.logger.Info("Medication deleted",
		zap.String("medication_id", cmd.MedicationID),
		zap.String("user_id", cmd.UserID))
	return nil
}

func (h *Handler) Get(ctx context.Context, ref Ref) (m *medication.Medication, err error) {
	ctx, done := h.start(ctx, "get", refAttrs(ref)...)
	defer done(&err)

	return h.load(ctx, ref)
}

func (h *Handler) List(ctx context.Context, userID string, includeArchived bool) (meds []*medication.Medication, err error) {
	ctx, done := h.start(ctx, "list", attribute.String("user.id", userID), attribute.Bool("include_archived", includeArchived))
	defer done(&err)

	if userID == "" {
		return nil, apperrors.ErrIdentityRequired
	}
	return h.repo.FindByUserID(ctx, userID, includeArchived)
}

// ValidateList runs every per-medication check plus the cross-medication checks over
// the owner's non-archived medications.
func (h *Handler) ValidateList(ctx context.Context, userID string) (res validation.Result, err error) {
	ctx, done := h.start(ctx, "validate_list", attribute.String("user.id", userID))
	defer done(&err)

	meds, err := h.List(ctx, userID, false)
	if err != nil {
		return res, err
	}
	checks := make([]validation.Result, 0, len(meds)+1)
	for _, m := range meds {
		checks = append(checks, validation.ValidateMedication(m), validation.ValidateSchedule(m.Schedule().Doses()))
	}
	checks = append(checks, validation.ValidateMedicationList(meds))
	return validation.Combine(checks...), nil
}

// Forecast analyzes one medication's stock and simulates it for days (DefaultForecastDays when not positive).
func (h *Handler) Forecast(ctx context.Context, ref Ref, days int) (res ForecastResult, err error) {
	ctx, done := h.start(ctx, "forecast", append(refAttrs(ref), attribute.Int("days", days))...)
	defer done(&err)

	if days <= 0 {
		days = DefaultForecastDays
	}
	m, err := h.load(ctx, ref)
	if err != nil {
		return res, err
	}
	return ForecastResult{
		Analysis:   h.forecast.AnalyzeStock(m),
		Simulation: h.forecast.SimulateConsumption(m, days),
	}, nil
}

// RestockRecommendations lists the owner's medications running out within the configured horizon.
func (h *Handler) RestockRecommendations(ctx context.Context, userID string) (recs []forecast.Recommendation, err error) {
	ctx, done := h.start(ctx, "restock", attribute.String("user.id", userID))
	defer done(&err)

	meds, err := h.List(ctx, userID, false)
	if err != nil {
		return nil, err
	}
	return h.forecast.RestockRecommendations(meds, h.forecast.ThresholdDays()), nil
}

// Adherence summarizes dose statuses per active medication and overall.
func (h *Handler) Adherence(ctx context.Context, userID string) (res AdherenceSummary, err error) {
	ctx, done := h.start(ctx, "adherence", attribute.String("user.id", userID))
	defer done(&err)

	meds, err := h.List(ctx, userID, false)
	if err != nil {
		return AdherenceSummary{}, err
	}

	res = AdherenceSummary{UserID: userID, Medications: make([]MedicationAdherence, 0, len(meds)), OverallRate: 100}
	scheduled := 0
	for _, m := range meds {
		c := m.Schedule().CountByStatus()
		res.Medications = append(res.Medications, MedicationAdherence{
			MedicationID:   m.ID(),
			MedicationName: m.Name(),
			Counts:         c,
			Rate:           m.Schedule().AdherenceRate(),
		})
		res.Totals.Upcoming += c.Upcoming
		res.Totals.Taken += c.Taken
		res.Totals.Missed += c.Missed
		scheduled += m.Schedule().Len()
	}
	if scheduled > 0 {
		res.OverallRate = int(math.Round(float64(res.Totals.Taken) / float64(scheduled) * 100))
	}
	return res, nil
}

// stockWarning is the message shown after a command leaves the stock low or empty.
func (h *Handler) stockWarning(m *medication.Medication) string {
	if m.IsArchived() {
		return ""
	}
	unit := m.StockUnit()
	if unit == "" {
		unit = "unidade(s)"
	}
	switch {
	case m.CurrentStock() == 0:
		return fmt.Sprintf("Estoque de %s esgotado", m.Name())
	case m.NeedsRestocking(h.lowStock):
		return fmt.Sprintf("Estoque baixo de %s: restam %d %s", m.Name(), m.CurrentStock(), unit)
	}
	return ""
}
