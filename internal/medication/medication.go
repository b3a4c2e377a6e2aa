package medication

import (
	"strings"
	"time"
	"unicode/utf8"

	apperrors "github.com/gmsas95/medicamenta/internal/errors"
)

const (
	// MaxNameLength bounds the trimmed medication name, in characters
	MaxNameLength = 200
	// DefaultLowStockThreshold is the unit count at or below which a medication needs restocking
	DefaultLowStockThreshold = 5
)

// Medication is the aggregate root: it owns the schedule, the stock and the life cycle.
// It is mutated in place and is not safe for concurrent use; callers serialize access per id.
type Medication struct {
	id           string
	userID       string
	name         string
	dosage       string
	frequency    string
	time         string
	notes        string
	active       bool
	currentStock int
	stockUnit    string
	schedule     Schedule
	isArchived   bool
	archivedAt   *time.Time
	lastModified time.Time
	createdAt    time.Time
}

// NewParams holds the inputs of the medication factory
type NewParams struct {
	ID           string
	UserID       string
	Name         string
	Dosage       string
	Frequency    string
	StartTime    string
	Notes        string
	CurrentStock int
	StockUnit    string
}

// New creates an active medication and generates its initial schedule.
func New(p NewParams) (*Medication, error) {
	if p.ID == "" || p.UserID == "" {
		return nil, apperrors.ErrIdentityRequired
	}
	name, err := normalizeName(p.Name)
	if err != nil {
		return nil, err
	}
	if p.CurrentStock < 0 {
		return nil, apperrors.ErrNegativeStock
	}
	if p.StartTime == "" {
		p.StartTime = DefaultStartTime
	}
	p.Frequency = strings.TrimSpace(p.Frequency)
	schedule, err := GenerateSchedule(p.Frequency, p.StartTime)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	return &Medication{
		id:           p.ID,
		userID:       p.UserID,
		name:         name,
		dosage:       strings.TrimSpace(p.Dosage),
		frequency:    p.Frequency,
		time:         p.StartTime,
		notes:        p.Notes,
		active:       true,
		currentStock: p.CurrentStock,
		stockUnit:    p.StockUnit,
		schedule:     schedule,
		lastModified: now,
		createdAt:    now,
	}, nil
}

func normalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", apperrors.ErrNameRequired
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return "", apperrors.ErrNameTooLong
	}
	return name, nil
}

func (m *Medication) ID() string              { return m.id }
func (m *Medication) UserID() string          { return m.userID }
func (m *Medication) Name() string            { return m.name }
func (m *Medication) Dosage() string          { return m.dosage }
func (m *Medication) Frequency() string       { return m.frequency }
func (m *Medication) Time() string            { return m.time }
func (m *Medication) Notes() string           { return m.notes }
func (m *Medication) Active() bool            { return m.active }
func (m *Medication) CurrentStock() int       { return m.currentStock }
func (m *Medication) StockUnit() string       { return m.stockUnit }
func (m *Medication) Schedule() Schedule      { return m.schedule }
func (m *Medication) IsArchived() bool        { return m.isArchived }
func (m *Medication) LastModified() time.Time { return m.lastModified }
func (m *Medication) CreatedAt() time.Time    { return m.createdAt }

func (m *Medication) ArchivedAt() *time.Time {
	if m.archivedAt == nil {
		return nil
	}
	t := *m.archivedAt
	return &t
}

func (m *Medication) touch() {
	m.lastModified = time.Now()
}

// DetailsUpdate is a partial update; nil fields are left untouched
type DetailsUpdate struct {
	Name      *string `json:"name,omitempty"`
	Dosage    *string `json:"dosage,omitempty"`
	Frequency *string `json:"frequency,omitempty"`
	Time      *string `json:"time,omitempty"`
	Notes     *string `json:"notes,omitempty"`
	StockUnit *string `json:"stockUnit,omitempty"`
}

// UpdateDetails applies the present fields. The schedule is not regenerated; see RegenerateSchedule.
func (m *Medication) UpdateDetails(u DetailsUpdate) error {
	if m.isArchived {
		return apperrors.ErrArchived
	}

	next := *m
	if u.Name != nil {
		name, err := normalizeName(*u.Name)
		if err != nil {
			return err
		}
		next.name = name
	}
	if u.Time != nil {
		if !IsValidTimeOfDay(*u.Time) {
			return apperrors.ErrInvalidTime.WithMessage("invalid start time %q: expected HH:MM", *u.Time)
		}
		next.time = *u.Time
	}
	if u.Dosage != nil {
		next.dosage = strings.TrimSpace(*u.Dosage)
	}
	if u.Frequency != nil {
		next.frequency = strings.TrimSpace(*u.Frequency)
	}
	if u.Notes != nil {
		next.notes = *u.Notes
	}
	if u.StockUnit != nil {
		next.stockUnit = *u.StockUnit
	}

	*m = next
	m.touch()
	return nil
}

// RegenerateSchedule rebuilds the schedule from the current frequency and start time.
// Recorded doses are discarded.
func (m *Medication) RegenerateSchedule() error {
	if m.isArchived {
		return apperrors.ErrArchived
	}
	schedule, err := GenerateSchedule(m.frequency, m.time)
	if err != nil {
		return err
	}
	m.schedule = schedule
	m.touch()
	return nil
}

// UpdateStock sets the stock to an absolute count.
func (m *Medication) UpdateStock(n int) error {
	if n < 0 {
		return apperrors.ErrNegativeStock
	}
	m.currentStock = n
	m.touch()
	return nil
}

func (m *Medication) IncreaseStock(amount int) error {
	if amount <= 0 {
		return apperrors.ErrInvalidAmount
	}
	m.currentStock += amount
	m.touch()
	return nil
}

func (m *Medication) DecreaseStock(amount int) error {
	if amount <= 0 {
		return apperrors.ErrInvalidAmount
	}
	if amount > m.currentStock {
		return apperrors.ErrInsufficientStock.WithMessage("cannot remove %d units, only %d left", amount, m.currentStock)
	}
	m.currentStock -= amount
	m.touch()
	return nil
}

func (m *Medication) Activate() error {
	if m.isArchived {
		return apperrors.ErrActivateArchived
	}
	m.active = true
	m.touch()
	return nil
}

func (m *Medication) Deactivate() {
	m.active = false
	m.touch()
}

// Archive is the soft form of deletion and needs an empty stock.
func (m *Medication) Archive() error {
	if m.currentStock != 0 {
		return apperrors.ErrArchiveWithStock.WithMessage("cannot archive with %d units in stock", m.currentStock)
	}
	now := time.Now()
	m.isArchived = true
	m.archivedAt = &now
	m.active = false
	m.lastModified = now
	return nil
}

// Unarchive clears the archive flag; the medication stays inactive until activated.
func (m *Medication) Unarchive() {
	m.isArchived = false
	m.archivedAt = nil
	m.touch()
}

// RecordDoseTaken marks the dose at t as taken. It returns nil when no dose is scheduled at t.
// With decreaseStock one unit is consumed; an empty stock stays at zero so dose logging
// never fails on inventory bookkeeping.
func (m *Medication) RecordDoseTaken(t string, by Administrator, notes string, decreaseStock bool) (*Dose, error) {
	dose, ok := m.schedule.Find(t)
	if !ok {
		return nil, nil
	}
	taken, err := dose.MarkAsTaken(by, notes)
	if err != nil {
		return nil, err
	}
	if err := m.replaceDose(t, taken); err != nil {
		return nil, err
	}
	if decreaseStock && m.currentStock > 0 {
		m.currentStock--
	}
	return &taken, nil
}

// RecordDoseMissed marks the dose at t as missed. Stock is never touched.
func (m *Medication) RecordDoseMissed(t string, by Administrator, notes string) (*Dose, error) {
	dose, ok := m.schedule.Find(t)
	if !ok {
		return nil, nil
	}
	missed, err := dose.MarkAsMissed(by, notes)
	if err != nil {
		return nil, err
	}
	if err := m.replaceDose(t, missed); err != nil {
		return nil, err
	}
	return &missed, nil
}

// ResetDose puts the dose at t back to upcoming.
func (m *Medication) ResetDose(t string) (*Dose, error) {
	dose, ok := m.schedule.Find(t)
	if !ok {
		return nil, nil
	}
	reset := dose.ResetToUpcoming()
	if err := m.replaceDose(t, reset); err != nil {
		return nil, err
	}
	return &reset, nil
}

func (m *Medication) replaceDose(t string, d Dose) error {
	schedule, err := m.schedule.UpdateDose(t, d)
	if err != nil {
		return err
	}
	m.schedule = schedule
	m.touch()
	return nil
}

// NeedsRestocking reports a stock at or below threshold units. Archived medications never need it.
func (m *Medication) NeedsRestocking(threshold int) bool {
	return m.currentStock <= threshold && !m.isArchived
}

func (m *Medication) AdherenceRate() int {
	return m.schedule.AdherenceRate()
}

// NextDose returns the first upcoming dose in schedule order.
func (m *Medication) NextDose() (Dose, bool) {
	for _, d := range m.schedule.doses {
		if d.status == StatusUpcoming {
			return d, true
		}
	}
	return Dose{}, false
}

var continuousMarkers = []string{"continuo", "diario", "diariamente", "8/8h", "12/12h", "8 em 8", "12 em 12"}

// IsContinuous is a substring heuristic over the frequency text, not an authoritative answer.
func (m *Medication) IsContinuous() bool {
	f := NormalizeText(m.frequency)
	for _, marker := range continuousMarkers {
		if strings.Contains(f, marker) {
			return true
		}
	}
	return false
}
