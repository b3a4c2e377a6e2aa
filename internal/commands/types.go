package commands

import (
	"github.com/gmsas95/medicamenta/internal/forecast"
	"github.com/gmsas95/medicamenta/internal/medication"
	"github.com/gmsas95/medicamenta/internal/validation"
)

// Ref addresses one medication of one owner
type Ref struct {
	MedicationID string `json:"medicationId"`
	UserID       string `json:"userId"`
}

type AddMedication struct {
	UserID       string `json:"userId"`
	Name         string `json:"name"`
	Dosage       string `json:"dosage"`
	Frequency    string `json:"frequency"`
	StartTime    string `json:"startTime,omitempty"`
	Notes        string `json:"notes,omitempty"`
	CurrentStock int    `json:"currentStock,omitempty"`
	StockUnit    string `json:"stockUnit,omitempty"`
}

// UpdateMedication applies a partial update. RegenerateSchedule rebuilds the schedule
// from the resulting frequency and start time, discarding recorded doses.
type UpdateMedication struct {
	MedicationID       string                   `json:"medicationId"`
	UserID             string                   `json:"userId"`
	Updates            medication.DetailsUpdate `json:"updates"`
	Active             *bool                    `json:"active,omitempty"`
	RegenerateSchedule bool                     `json:"regenerateSchedule,omitempty"`
}

type RecordDose struct {
	MedicationID   string                   `json:"medicationId"`
	UserID         string                   `json:"userId"`
	Time           string                   `json:"time"`
	Status         medication.DoseStatus    `json:"status"`
	AdministeredBy medication.Administrator `json:"administeredBy"`
	Notes          string                   `json:"notes,omitempty"`
	// DecreaseStock defaults to true when nil.
	DecreaseStock *bool `json:"decreaseStock,omitempty"`
}

func (c RecordDose) decreaseStock() bool {
	return c.DecreaseStock == nil || *c.DecreaseStock
}

type ResetDose struct {
	MedicationID string `json:"medicationId"`
	UserID       string `json:"userId"`
	Time         string `json:"time"`
}

// StockOperation selects how AdjustStock applies its amount
type StockOperation string

const (
	StockSet      StockOperation = "set"
	StockIncrease StockOperation = "increase"
	StockDecrease StockOperation = "decrease"
)

type AdjustStock struct {
	MedicationID string         `json:"medicationId"`
	UserID       string         `json:"userId"`
	Operation    StockOperation `json:"operation"`
	Amount       int            `json:"amount"`
}

// DeleteMedication removes a medication permanently. ConfirmDeletion must be true;
// MedicationName, when given, must match the stored name.
type DeleteMedication struct {
	MedicationID    string `json:"medicationId"`
	UserID          string `json:"userId"`
	MedicationName  string `json:"medicationName"`
	ConfirmDeletion bool   `json:"confirmDeletion"`
}

// MedicationResult carries the medication after a command together with the business
// validation outcome. Medication is nil when validation blocked the command.
type MedicationResult struct {
	Medication *medication.Medication `json:"-"`
	Validation validation.Result      `json:"validation"`
}

// DoseResult is returned by dose and stock commands. StockWarning is empty while stock is healthy.
type DoseResult struct {
	Medication   *medication.Medication `json:"-"`
	Dose         *medication.Dose       `json:"-"`
	StockWarning string                 `json:"stockWarning,omitempty"`
}

type ForecastResult struct {
	Analysis   forecast.Analysis     `json:"analysis"`
	Simulation []forecast.StockPoint `json:"simulation"`
}

// MedicationAdherence is one medication's share of an AdherenceSummary.
type MedicationAdherence struct {
	MedicationID   string                  `json:"medicationId"`
	MedicationName string                  `json:"medicationName"`
	Counts         medication.StatusCounts `json:"counts"`
	Rate           int                     `json:"rate"`
}

// AdherenceSummary aggregates today's dose statuses over an owner's active medications.
// OverallRate is taken doses over scheduled doses, 100 when nothing is scheduled.
type AdherenceSummary struct {
	UserID      string                  `json:"userId"`
	Medications []MedicationAdherence   `json:"medications"`
	Totals      medication.StatusCounts `json:"totals"`
	OverallRate int                     `json:"overallRate"`
}
