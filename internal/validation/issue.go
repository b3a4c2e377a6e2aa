// Package validation holds the stateless business rule checks for medications. Checks return
// a Result listing blocking errors and informational warnings; they never fail.
package validation

// Severity tells whether an issue blocks the operation.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Code identifies the rule that produced an issue. The set is closed so presentation layers
// can localize on it.
type Code string

const (
	CodeRequired          Code = "required"
	CodeTooLong           Code = "too-long"
	CodeNegativeStock     Code = "negative-stock"
	CodeArchivedActive    Code = "archived-active"
	CodeArchivedWithStock Code = "archived-with-stock"
	CodeEmptySchedule     Code = "empty-schedule"
	CodeLowStock          Code = "low-stock"
	CodeDuplicateTime     Code = "duplicate-time"
	CodeInvalidDose       Code = "invalid-dose"
	CodeDosesTooClose     Code = "doses-too-close"
	CodeDuplicateName     Code = "duplicate-name"
	CodeCrowdedTime       Code = "crowded-time"
	CodeDosageFormat      Code = "dosage-format"
	CodeFrequencyFormat   Code = "frequency-format"
	CodeTimeFormat        Code = "time-format"
)

// Issue is a single finding. Field names the offending input so callers can target it.
type Issue struct {
	Field    string   `json:"field"`
	Code     Code     `json:"code"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}
