package medication

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	apperrors "github.com/gmsas95/medicamenta/internal/errors"
)

// DefaultStartTime anchors schedules created without an explicit first-dose time
const DefaultStartTime = "08:00"

var continuousSlots = []string{"08:00", "14:00", "20:00"}

// Schedule is the ordered, duplicate-free set of doses of one medication together with the
// parameters that generated it. Schedules are values: every change returns a new Schedule.
type Schedule struct {
	frequency string
	startTime string
	doses     []Dose
}

// StatusCounts tallies doses per status
type StatusCounts struct {
	Upcoming int `json:"upcoming"`
	Taken    int `json:"taken"`
	Missed   int `json:"missed"`
}

// GenerateSchedule expands a frequency expression into upcoming doses anchored at startTime.
func GenerateSchedule(frequency, startTime string) (Schedule, error) {
	if startTime == "" {
		startTime = DefaultStartTime
	}
	if !IsValidTimeOfDay(startTime) {
		return Schedule{}, apperrors.ErrInvalidTime.WithMessage("invalid start time %q: expected HH:MM", startTime)
	}

	times := doseTimes(ParseFrequency(frequency), startTime)
	doses := make([]Dose, 0, len(times))
	seen := make(map[string]bool, len(times))
	for _, t := range times {
		if seen[t] {
			continue
		}
		seen[t] = true
		d, err := NewDose(t)
		if err != nil {
			return Schedule{}, err
		}
		doses = append(doses, d)
	}
	sortDoses(doses)

	return Schedule{frequency: frequency, startTime: startTime, doses: doses}, nil
}

// doseTimes returns the raw (possibly repeated, unsorted) HH:MM list for f.
func doseTimes(f Frequency, startTime string) []string {
	startHour, _ := strconv.Atoi(startTime[:2])
	startMinute, _ := strconv.Atoi(startTime[3:])

	switch f.Kind {
	case FrequencyHourly:
		perDay := 24 / f.IntervalHours
		if perDay < 1 {
			// longer than a day between doses: one slot at the anchor
			return []string{startTime}
		}
		times := make([]string, 0, perDay)
		for i := 0; i < perDay; i++ {
			times = append(times, formatTime((startHour+i*f.IntervalHours)%24, startMinute))
		}
		return times

	case FrequencyTimesPerDay:
		switch n := f.TimesPerDay; {
		case n <= 1:
			return []string{startTime}
		case n == 2:
			return []string{startTime, "20:00"}
		case n == 3:
			return []string{startTime, "14:00", "20:00"}
		case n == 4:
			return []string{"08:00", "12:00", "16:00", "20:00"}
		default:
			steps, interval := n, 24.0/float64(n)
			if n >= 24 {
				// every hour is already taken once the spacing drops to an hour or less
				steps, interval = 24, 1
			}
			times := make([]string, 0, steps)
			for i := 0; i < steps; i++ {
				hour := (startHour + int(math.Floor(float64(i)*interval))) % 24
				times = append(times, formatTime(hour, startMinute))
			}
			return times
		}

	case FrequencyContinuous:
		return append([]string(nil), continuousSlots...)
	}

	// daily and unrecognized text: a single dose at the anchor
	return []string{startTime}
}

func formatTime(hour, minute int) string {
	return fmt.Sprintf("%02d:%02d", hour, minute)
}

func sortDoses(doses []Dose) {
	// zero-padded HH:MM sorts correctly as a string
	sort.SliceStable(doses, func(i, j int) bool { return doses[i].time < doses[j].time })
}

// NewSchedule builds a schedule from existing doses, rejecting duplicate times.
// Doses are sorted by time.
func NewSchedule(frequency, startTime string, doses []Dose) (Schedule, error) {
	seen := make(map[string]bool, len(doses))
	for _, d := range doses {
		if !IsValidTimeOfDay(d.time) {
			return Schedule{}, apperrors.ErrInvalidTime.WithMessage("invalid dose time %q", d.time)
		}
		if seen[d.time] {
			return Schedule{}, apperrors.ErrDuplicateDoseTime.WithMessage("duplicate dose at %s", d.time)
		}
		seen[d.time] = true
	}
	cp := append([]Dose(nil), doses...)
	sortDoses(cp)
	return Schedule{frequency: frequency, startTime: startTime, doses: cp}, nil
}

func (s Schedule) Frequency() string { return s.frequency }
func (s Schedule) StartTime() string { return s.startTime }
func (s Schedule) Len() int          { return len(s.doses) }
func (s Schedule) IsEmpty() bool     { return len(s.doses) == 0 }

// Doses returns a copy of the dose list.
func (s Schedule) Doses() []Dose {
	return append([]Dose(nil), s.doses...)
}

// Times returns the HH:MM of every dose in order.
func (s Schedule) Times() []string {
	out := make([]string, len(s.doses))
	for i, d := range s.doses {
		out[i] = d.time
	}
	return out
}

// Find returns the dose scheduled exactly at t.
func (s Schedule) Find(t string) (Dose, bool) {
	for _, d := range s.doses {
		if d.time == t {
			return d, true
		}
	}
	return Dose{}, false
}

// NextDose returns the first upcoming dose at or after now's time of day. When every upcoming
// dose is earlier it wraps to the first one (tomorrow). ok is false when nothing is upcoming.
func (s Schedule) NextDose(now time.Time) (Dose, bool) {
	current := now.Format("15:04")
	var first *Dose
	for i := range s.doses {
		d := s.doses[i]
		if d.status != StatusUpcoming {
			continue
		}
		if first == nil {
			first = &s.doses[i]
		}
		if d.time >= current {
			return d, true
		}
	}
	if first == nil {
		return Dose{}, false
	}
	return *first, true
}

// OverdueDoses returns upcoming doses earlier than now whose hour has already been reached today.
func (s Schedule) OverdueDoses(now time.Time) []Dose {
	current := now.Format("15:04")
	var out []Dose
	for _, d := range s.doses {
		if d.status == StatusUpcoming && d.time < current && d.Hour() <= now.Hour() {
			out = append(out, d)
		}
	}
	return out
}

// AdherenceRate is the rounded percentage of taken doses; an empty schedule scores 100.
func (s Schedule) AdherenceRate() int {
	if len(s.doses) == 0 {
		return 100
	}
	return int(math.Round(float64(s.CountByStatus().Taken) / float64(len(s.doses)) * 100))
}

func (s Schedule) CountByStatus() StatusCounts {
	var c StatusCounts
	for _, d := range s.doses {
		switch d.status {
		case StatusUpcoming:
			c.Upcoming++
		case StatusTaken:
			c.Taken++
		case StatusMissed:
			c.Missed++
		}
	}
	return c
}

// UpdateDose returns a copy with the dose at t replaced by d.
func (s Schedule) UpdateDose(t string, d Dose) (Schedule, error) {
	idx := -1
	for i, existing := range s.doses {
		if existing.time == t {
			idx = i
			break
		}
	}
	if idx < 0 {
		return Schedule{}, apperrors.ErrDoseNotInSchedule.WithMessage("no dose scheduled at %s", t)
	}
	doses := s.Doses()
	doses[idx] = d
	return NewSchedule(s.frequency, s.startTime, doses)
}

// ResetAll returns a copy with every dose back to upcoming.
func (s Schedule) ResetAll() Schedule {
	doses := make([]Dose, len(s.doses))
	for i, d := range s.doses {
		doses[i] = d.ResetToUpcoming()
	}
	return Schedule{frequency: s.frequency, startTime: s.startTime, doses: doses}
}

// Equal compares schedules by value.
func (s Schedule) Equal(o Schedule) bool {
	if s.frequency != o.frequency || s.startTime != o.startTime || len(s.doses) != len(o.doses) {
		return false
	}
	for i := range s.doses {
		if !s.doses[i].Equal(o.doses[i]) {
			return false
		}
	}
	return true
}
