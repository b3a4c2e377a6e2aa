package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gmsas95/medicamenta/internal/medication"
)

// MedicationRecord is the SQL row of a medication. The schedule is kept as a JSON column.
type MedicationRecord struct {
	ID           string     `gorm:"primaryKey" json:"id"`
	UserID       string     `gorm:"primaryKey;index:idx_user_archived" json:"user_id"`
	Name         string     `json:"name"`
	Dosage       string     `json:"dosage"`
	Frequency    string     `json:"frequency"`
	StartTime    string     `json:"start_time"`
	Notes        string     `json:"notes"`
	Active       bool       `json:"active"`
	CurrentStock int        `gorm:"index" json:"current_stock"`
	StockUnit    string     `json:"stock_unit"`
	ScheduleJSON string     `gorm:"type:text" json:"-"`
	IsArchived   bool       `gorm:"index:idx_user_archived" json:"is_archived"`
	ArchivedAt   *time.Time `json:"archived_at"`
	LastModified time.Time  `json:"last_modified"`
	CreatedAt    time.Time  `json:"created_at"`
}

func (MedicationRecord) TableName() string {
	return "medications"
}

func recordFromPlain(p medication.Plain) (*MedicationRecord, error) {
	schedule, err := json.Marshal(p.Schedule)
	if err != nil {
		return nil, fmt.Errorf("failed to encode schedule: %w", err)
	}
	return &MedicationRecord{
		ID:           p.ID,
		UserID:       p.UserID,
		Name:         p.Name,
		Dosage:       p.Dosage,
		Frequency:    p.Frequency,
		StartTime:    p.Time,
		Notes:        p.Notes,
		Active:       p.Active,
		CurrentStock: p.CurrentStock,
		StockUnit:    p.StockUnit,
		ScheduleJSON: string(schedule),
		IsArchived:   p.IsArchived,
		ArchivedAt:   p.ArchivedAt,
		LastModified: p.LastModified,
		CreatedAt:    p.CreatedAt,
	}, nil
}

func (r *MedicationRecord) toPlain() (medication.Plain, error) {
	p := medication.Plain{
		ID:           r.ID,
		UserID:       r.UserID,
		Name:         r.Name,
		Dosage:       r.Dosage,
		Frequency:    r.Frequency,
		Time:         r.StartTime,
		Notes:        r.Notes,
		Active:       r.Active,
		CurrentStock: r.CurrentStock,
		StockUnit:    r.StockUnit,
		IsArchived:   r.IsArchived,
		ArchivedAt:   r.ArchivedAt,
		LastModified: r.LastModified,
		CreatedAt:    r.CreatedAt,
	}
	if r.ScheduleJSON != "" {
		if err := json.Unmarshal([]byte(r.ScheduleJSON), &p.Schedule); err != nil {
			return medication.Plain{}, fmt.Errorf("failed to decode schedule of %s: %w", r.ID, err)
		}
	}
	return p, nil
}

func (r *MedicationRecord) toMedication() (*medication.Medication, error) {
	p, err := r.toPlain()
	if err != nil {
		return nil, err
	}
	return medication.FromPlain(p)
}
