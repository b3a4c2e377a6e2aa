package medication

import (
	"time"

	apperrors "github.com/gmsas95/medicamenta/internal/errors"
)

// PlainDose is the serializable form of a Dose
type PlainDose struct {
	Time           string         `json:"time" yaml:"time"`
	Status         DoseStatus     `json:"status" yaml:"status"`
	AdministeredBy *Administrator `json:"administeredBy,omitempty" yaml:"administeredBy,omitempty"`
	Notes          string         `json:"notes,omitempty" yaml:"notes,omitempty"`
	Timestamp      *time.Time     `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`
}

// Plain is the serializable form of a Medication, used by stores and transports
type Plain struct {
	ID           string      `json:"id" yaml:"id"`
	UserID       string      `json:"userId" yaml:"userId"`
	Name         string      `json:"name" yaml:"name"`
	Dosage       string      `json:"dosage" yaml:"dosage"`
	Frequency    string      `json:"frequency" yaml:"frequency"`
	Time         string      `json:"time" yaml:"time"`
	Notes        string      `json:"notes,omitempty" yaml:"notes,omitempty"`
	Active       bool        `json:"active" yaml:"active"`
	CurrentStock int         `json:"currentStock" yaml:"currentStock"`
	StockUnit    string      `json:"stockUnit,omitempty" yaml:"stockUnit,omitempty"`
	Schedule     []PlainDose `json:"schedule" yaml:"schedule"`
	IsArchived   bool        `json:"isArchived" yaml:"isArchived"`
	ArchivedAt   *time.Time  `json:"archivedAt,omitempty" yaml:"archivedAt,omitempty"`
	LastModified time.Time   `json:"lastModified" yaml:"lastModified"`
	CreatedAt    time.Time   `json:"createdAt" yaml:"createdAt"`
}

// ToPlain snapshots the aggregate.
func (m *Medication) ToPlain() Plain {
	doses := make([]PlainDose, 0, len(m.schedule.doses))
	for _, d := range m.schedule.doses {
		doses = append(doses, PlainDose{
			Time:           d.time,
			Status:         d.status,
			AdministeredBy: d.AdministeredBy(),
			Notes:          d.notes,
			Timestamp:      d.Timestamp(),
		})
	}
	return Plain{
		ID:           m.id,
		UserID:       m.userID,
		Name:         m.name,
		Dosage:       m.dosage,
		Frequency:    m.frequency,
		Time:         m.time,
		Notes:        m.notes,
		Active:       m.active,
		CurrentStock: m.currentStock,
		StockUnit:    m.stockUnit,
		Schedule:     doses,
		IsArchived:   m.isArchived,
		ArchivedAt:   m.ArchivedAt(),
		LastModified: m.lastModified,
		CreatedAt:    m.createdAt,
	}
}

// FromPlain restores an aggregate, re-checking every structural invariant.
// The archived anomaly with stock left is accepted here and reported by validation instead.
func FromPlain(p Plain) (*Medication, error) {
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
	if p.IsArchived && p.Active {
		return nil, apperrors.ErrArchivedActive
	}
	if p.Time == "" {
		p.Time = DefaultStartTime
	}
	if !IsValidTimeOfDay(p.Time) {
		return nil, apperrors.ErrInvalidTime.WithMessage("invalid start time %q: expected HH:MM", p.Time)
	}

	doses := make([]Dose, 0, len(p.Schedule))
	for _, pd := range p.Schedule {
		d, err := RestoreDose(DoseProps{
			Time:           pd.Time,
			Status:         pd.Status,
			AdministeredBy: pd.AdministeredBy,
			Notes:          pd.Notes,
			Timestamp:      pd.Timestamp,
		})
		if err != nil {
			return nil, err
		}
		doses = append(doses, d)
	}
	schedule, err := NewSchedule(p.Frequency, p.Time, doses)
	if err != nil {
		return nil, err
	}

	m := &Medication{
		id:           p.ID,
		userID:       p.UserID,
		name:         name,
		dosage:       p.Dosage,
		frequency:    p.Frequency,
		time:         p.Time,
		notes:        p.Notes,
		active:       p.Active,
		currentStock: p.CurrentStock,
		stockUnit:    p.StockUnit,
		schedule:     schedule,
		isArchived:   p.IsArchived,
		lastModified: p.LastModified,
		createdAt:    p.CreatedAt,
	}
	if p.ArchivedAt != nil {
		t := *p.ArchivedAt
		m.archivedAt = &t
	}
	return m, nil
}
