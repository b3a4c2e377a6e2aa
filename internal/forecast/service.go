// Package forecast projects medication stock forward in time. Everything is derived from the
// current aggregate state on demand; nothing here mutates or caches a medication.
package forecast

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/gmsas95/medicamenta/internal/medication"
)

const (
	DefaultThresholdDays = 7
	DefaultTargetDays    = 30
	// MaxSimulationDays caps SimulateConsumption.
	MaxSimulationDays = 3650
	// restock quantities are rounded up to a multiple of this
	packRounding = 10
)

// Urgency is the restock priority tier.
type Urgency string

const (
	UrgencyCritical Urgency = "critical"
	UrgencyHigh     Urgency = "high"
	UrgencyMedium   Urgency = "medium"
	UrgencyLow      Urgency = "low"
)

// Rank orders tiers, most urgent first.
func (u Urgency) Rank() int {
	switch u {
	case UrgencyCritical:
		return 0
	case UrgencyHigh:
		return 1
	case UrgencyMedium:
		return 2
	}
	return 3
}

// UrgencyFor maps remaining days of stock to a tier.
func UrgencyFor(daysRemaining int) Urgency {
	switch {
	case daysRemaining <= 0:
		return UrgencyCritical
	case daysRemaining <= 2:
		return UrgencyHigh
	case daysRemaining <= 5:
		return UrgencyMedium
	}
	return UrgencyLow
}

// Recommendation is one entry of a restock list
type Recommendation struct {
	MedicationID      string    `json:"medicationId"`
	MedicationName    string    `json:"medicationName"`
	CurrentStock      int       `json:"currentStock"`
	StockUnit         string    `json:"stockUnit,omitempty"`
	DailyConsumption  int       `json:"dailyConsumption"`
	DaysRemaining     int       `json:"daysRemaining"`
	DepletionDate     time.Time `json:"depletionDate"`
	RecommendedAmount int       `json:"recommendedAmount"`
	Urgency           Urgency   `json:"urgency"`
	Reason            string    `json:"reason"`
}

// StockPoint is one day of a consumption simulation
type StockPoint struct {
	Date  time.Time `json:"date"`
	Stock int       `json:"stock"`
}

// Analysis summarizes the stock outlook of one medication. DaysRemaining and DepletionDate
// are nil when the medication is never consumed.
type Analysis struct {
	MedicationID     string     `json:"medicationId"`
	MedicationName   string     `json:"medicationName"`
	CurrentStock     int        `json:"currentStock"`
	StockUnit        string     `json:"stockUnit,omitempty"`
	DailyConsumption int        `json:"dailyConsumption"`
	DaysRemaining    *int       `json:"daysRemaining"`
	DepletionDate    *time.Time `json:"depletionDate"`
	NeedsRestocking  bool       `json:"needsRestocking"`
	RestockAmount    int        `json:"restockAmount"`
	Urgency          Urgency    `json:"urgency,omitempty"`
}

// Service computes forecasts. The zero value is not usable; use NewService.
type Service struct {
	now           func() time.Time
	thresholdDays int
	targetDays    int
}

type Option func(*Service)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithThresholdDays sets the horizon AnalyzeStock uses for NeedsRestocking.
func WithThresholdDays(days int) Option {
	return func(s *Service) { s.thresholdDays = days }
}

// WithTargetDays sets how many days of stock a recommended restock should cover.
func WithTargetDays(days int) Option {
	return func(s *Service) { s.targetDays = days }
}

func NewService(opts ...Option) *Service {
	s := &Service{now: time.Now, thresholdDays: DefaultThresholdDays, targetDays: DefaultTargetDays}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ThresholdDays is the restock horizon used when the caller has none of its own.
func (s *Service) ThresholdDays() int { return s.thresholdDays }

func (s *Service) today() time.Time {
	return startOfDay(s.now())
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// DailyConsumption is the number of units used per day. An explicit count in the frequency
// text wins ("8 em 8 horas" is 3, "2 vezes ao dia" is 2); otherwise the schedule size is used,
// and an empty schedule counts as one dose a day.
func (s *Service) DailyConsumption(m *medication.Medication) int {
	if n, ok := medication.ParseFrequency(m.Frequency()).DosesPerDay(); ok {
		return n
	}
	if n := m.Schedule().Len(); n > 0 {
		return n
	}
	return 1
}

// DaysRemaining returns whole days of stock left, or nil when nothing is consumed.
func (s *Service) DaysRemaining(m *medication.Medication) *int {
	daily := s.DailyConsumption(m)
	if daily == 0 {
		return nil
	}
	days := 0
	if m.CurrentStock() > 0 {
		days = m.CurrentStock() / daily
	}
	return &days
}

func (s *Service) DepletionDate(m *medication.Medication) *time.Time {
	days := s.DaysRemaining(m)
	if days == nil {
		return nil
	}
	d := s.today().AddDate(0, 0, *days)
	return &d
}

// NeedsRestocking reports stock lasting thresholdDays or fewer. Archived medications and
// medications that are never consumed never need it.
func (s *Service) NeedsRestocking(m *medication.Medication, thresholdDays int) bool {
	if m.IsArchived() {
		return false
	}
	days := s.DaysRemaining(m)
	return days != nil && *days <= thresholdDays
}

// RestockAmount is the quantity to buy to cover targetDays, rounded up to a multiple of ten.
func (s *Service) RestockAmount(m *medication.Medication, targetDays int) int {
	missing := targetDays*s.DailyConsumption(m) - m.CurrentStock()
	if missing <= 0 {
		return 0
	}
	return int(math.Ceil(float64(missing)/packRounding)) * packRounding
}

// RestockRecommendations lists non-archived medications running out within thresholdDays,
// most urgent first. Ties keep the input order. Amounts cover the configured target days.
func (s *Service) RestockRecommendations(meds []*medication.Medication, thresholdDays int) []Recommendation {
	out := make([]Recommendation, 0)
	today := s.today()
	for _, m := range meds {
		if m.IsArchived() {
			continue
		}
		days := s.DaysRemaining(m)
		if days == nil || *days > thresholdDays {
			continue
		}
		out = append(out, Recommendation{
			MedicationID:      m.ID(),
			MedicationName:    m.Name(),
			CurrentStock:      m.CurrentStock(),
			StockUnit:         m.StockUnit(),
			DailyConsumption:  s.DailyConsumption(m),
			DaysRemaining:     *days,
			DepletionDate:     today.AddDate(0, 0, *days),
			RecommendedAmount: s.RestockAmount(m, s.targetDays),
			Urgency:           UrgencyFor(*days),
			Reason:            reason(*days),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Urgency.Rank() < out[j].Urgency.Rank()
	})
	return out
}

func reason(days int) string {
	switch days {
	case 0:
		return "Estoque esgotado"
	case 1:
		return "Estoque termina amanhã"
	}
	return fmt.Sprintf("Estoque termina em %d dias", days)
}

// SimulateConsumption returns days+1 daily samples starting today, with days clamped to
// [0, MaxSimulationDays]. Stock never goes below zero.
func (s *Service) SimulateConsumption(m *medication.Medication, days int) []StockPoint {
	if days < 0 {
		days = 0
	}
	if days > MaxSimulationDays {
		days = MaxSimulationDays
	}
	daily := s.DailyConsumption(m)
	today := s.today()
	stock := m.CurrentStock()
	points := make([]StockPoint, 0, days+1)
	for i := 0; i <= days; i++ {
		points = append(points, StockPoint{Date: today.AddDate(0, 0, i), Stock: stock})
		stock -= daily
		if stock < 0 {
			stock = 0
		}
	}
	return points
}

// CanLastUntil reports whether the stock covers every day up to target.
func (s *Service) CanLastUntil(m *medication.Medication, target time.Time) bool {
	days := s.DaysRemaining(m)
	if days == nil {
		return true
	}
	return *days >= daysBetween(s.today(), startOfDay(target))
}

func daysBetween(from, to time.Time) int {
	return int(math.Round(to.Sub(from).Hours() / 24))
}

// RequiredStock is the quantity consumed over days.
func (s *Service) RequiredStock(m *medication.Medication, days int) int {
	return s.DailyConsumption(m) * days
}

// AnalyzeStock bundles the single-medication figures using the configured horizons.
func (s *Service) AnalyzeStock(m *medication.Medication) Analysis {
	a := Analysis{
		MedicationID:     m.ID(),
		MedicationName:   m.Name(),
		CurrentStock:     m.CurrentStock(),
		StockUnit:        m.StockUnit(),
		DailyConsumption: s.DailyConsumption(m),
		DaysRemaining:    s.DaysRemaining(m),
		DepletionDate:    s.DepletionDate(m),
		NeedsRestocking:  s.NeedsRestocking(m, s.thresholdDays),
		RestockAmount:    s.RestockAmount(m, s.targetDays),
	}
	if a.DaysRemaining != nil {
		a.Urgency = UrgencyFor(*a.DaysRemaining)
	}
	return a
}
