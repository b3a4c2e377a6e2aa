package medication

import (
	"math"
	"regexp"
	"strconv"
	"time"

	apperrors "github.com/gmsas95/medicamenta/internal/errors"
)

// DoseStatus is the life-cycle state of a single dose
type DoseStatus string

const (
	StatusUpcoming DoseStatus = "upcoming"
	StatusTaken    DoseStatus = "taken"
	StatusMissed   DoseStatus = "missed"
)

// DefaultOnTimeTolerance is how far from the scheduled time a dose still counts as on time
const DefaultOnTimeTolerance = 30 * time.Minute

var timeOfDayPattern = regexp.MustCompile(`^([01]\d|2[0-3]):([0-5]\d)$`)

// IsValidTimeOfDay reports whether s is a zero-padded 24h HH:MM string.
func IsValidTimeOfDay(s string) bool {
	return timeOfDayPattern.MatchString(s)
}

// Administrator identifies who gave or skipped a dose (patient, carer, nurse)
type Administrator struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Dose is one scheduled administration. It is immutable: every transition returns a new value.
type Dose struct {
	time           string
	status         DoseStatus
	administeredBy *Administrator
	notes          string
	timestamp      *time.Time
}

// DoseProps is the full state of a dose, used to restore persisted doses
type DoseProps struct {
	Time           string
	Status         DoseStatus
	AdministeredBy *Administrator
	Notes          string
	Timestamp      *time.Time
}

// NewDose creates an upcoming dose at the given HH:MM.
func NewDose(at string) (Dose, error) {
	return RestoreDose(DoseProps{Time: at, Status: StatusUpcoming})
}

// RestoreDose rebuilds a dose from its props, enforcing the dose invariants.
// A completed dose without a timestamp is stamped with the current time instead of rejected.
func RestoreDose(p DoseProps) (Dose, error) {
	if !IsValidTimeOfDay(p.Time) {
		return Dose{}, apperrors.ErrInvalidTime.WithMessage("invalid dose time %q: expected HH:MM", p.Time)
	}

	switch p.Status {
	case StatusUpcoming:
		if p.AdministeredBy != nil {
			return Dose{}, apperrors.ErrAdministratorForbidden
		}
	case StatusTaken, StatusMissed:
		if p.AdministeredBy == nil {
			return Dose{}, apperrors.ErrAdministratorRequired
		}
		if p.Timestamp == nil {
			now := time.Now()
			p.Timestamp = &now
		}
	default:
		return Dose{}, apperrors.ErrInvalidDoseStatus.WithMessage("unknown dose status %q", p.Status)
	}

	d := Dose{
		time:   p.Time,
		status: p.Status,
		notes:  p.Notes,
	}
	if p.AdministeredBy != nil {
		by := *p.AdministeredBy
		d.administeredBy = &by
	}
	if p.Timestamp != nil {
		ts := *p.Timestamp
		d.timestamp = &ts
	}
	return d, nil
}

func (d Dose) Time() string       { return d.time }
func (d Dose) Status() DoseStatus { return d.status }
func (d Dose) Notes() string      { return d.notes }

// AdministeredBy returns a copy of the administrator, nil for upcoming doses.
func (d Dose) AdministeredBy() *Administrator {
	if d.administeredBy == nil {
		return nil
	}
	by := *d.administeredBy
	return &by
}

// Timestamp returns when the dose was taken or missed, nil for upcoming doses.
func (d Dose) Timestamp() *time.Time {
	if d.timestamp == nil {
		return nil
	}
	ts := *d.timestamp
	return &ts
}

// Props exposes the dose state for serialization.
func (d Dose) Props() DoseProps {
	return DoseProps{
		Time:           d.time,
		Status:         d.status,
		AdministeredBy: d.AdministeredBy(),
		Notes:          d.notes,
		Timestamp:      d.Timestamp(),
	}
}

// Hour returns the hour component of the dose time.
func (d Dose) Hour() int {
	h, _ := strconv.Atoi(d.time[:2])
	return h
}

// Minutes returns the dose time as minutes since midnight.
func (d Dose) Minutes() int {
	m, _ := strconv.Atoi(d.time[3:])
	return d.Hour()*60 + m
}

// MarkAsTaken records the dose as taken now.
func (d Dose) MarkAsTaken(by Administrator, notes string) (Dose, error) {
	if d.status == StatusTaken {
		return Dose{}, apperrors.ErrDoseAlreadyTaken.WithMessage("dose at %s already marked as taken", d.time)
	}
	now := time.Now()
	return Dose{
		time:           d.time,
		status:         StatusTaken,
		administeredBy: &by,
		notes:          notes,
		timestamp:      &now,
	}, nil
}

// MarkAsMissed records the dose as missed now. A taken dose must be reset first.
func (d Dose) MarkAsMissed(by Administrator, notes string) (Dose, error) {
	switch d.status {
	case StatusMissed:
		return Dose{}, apperrors.ErrDoseAlreadyMissed.WithMessage("dose at %s already marked as missed", d.time)
	case StatusTaken:
		return Dose{}, apperrors.ErrTakenDoseToMissed
	}
	now := time.Now()
	return Dose{
		time:           d.time,
		status:         StatusMissed,
		administeredBy: &by,
		notes:          notes,
		timestamp:      &now,
	}, nil
}

// ResetToUpcoming clears the completion data.
func (d Dose) ResetToUpcoming() Dose {
	return Dose{time: d.time, status: StatusUpcoming}
}

func (d Dose) IsCompleted() bool {
	return d.status == StatusTaken || d.status == StatusMissed
}

// ScheduledOn anchors the dose time to the calendar day of day, in day's location.
func (d Dose) ScheduledOn(day time.Time) time.Time {
	h, m := d.Hour(), d.Minutes()%60
	return time.Date(day.Year(), day.Month(), day.Day(), h, m, 0, 0, day.Location())
}

// WasTakenOnTime reports whether the dose was taken within tolerance of scheduled.
// A zero tolerance means DefaultOnTimeTolerance.
func (d Dose) WasTakenOnTime(scheduled time.Time, tolerance time.Duration) bool {
	if d.status != StatusTaken || d.timestamp == nil {
		return false
	}
	if tolerance == 0 {
		tolerance = DefaultOnTimeTolerance
	}
	diff := d.timestamp.Sub(scheduled)
	if diff < 0 {
		diff = -diff
	}
	return diff <= tolerance
}

// DelayMinutes returns how late (positive) or early (negative) the dose was taken.
// ok is false unless the dose was taken.
func (d Dose) DelayMinutes(scheduled time.Time) (minutes int, ok bool) {
	if d.status != StatusTaken || d.timestamp == nil {
		return 0, false
	}
	return int(math.Round(d.timestamp.Sub(scheduled).Minutes())), true
}

// Equal compares doses by value.
func (d Dose) Equal(o Dose) bool {
	if d.time != o.time || d.status != o.status || d.notes != o.notes {
		return false
	}
	if (d.administeredBy == nil) != (o.administeredBy == nil) {
		return false
	}
	if d.administeredBy != nil && *d.administeredBy != *o.administeredBy {
		return false
	}
	if (d.timestamp == nil) != (o.timestamp == nil) {
		return false
	}
	return d.timestamp == nil || d.timestamp.Equal(*o.timestamp)
}
