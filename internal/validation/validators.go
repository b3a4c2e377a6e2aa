package validation

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/gmsas95/medicamenta/internal/medication"
)

const (
	// MinDoseGapMinutes is the spacing below which neighbouring doses are flagged
	MinDoseGapMinutes = 60
	// MaxMedicationsPerSlot is how many active medications may share a dose time unflagged
	MaxMedicationsPerSlot = 3
)

var dosagePattern = regexp.MustCompile(
	`^\d+(?:[.,]\d+)?\s*(?:mg|mcg|µg|g|ml|l|ui|%|gotas?|comprimidos?|capsulas?|cps?|caps|ampolas?|sache?s?|jatos?|puffs?|unidades?)`)

// ValidateMedication checks a medication aggregate against the business rules.
func ValidateMedication(m *medication.Medication) Result {
	r := NewResult()

	if strings.TrimSpace(m.Name()) == "" {
		r.AddError("name", CodeRequired, "O nome do medicamento é obrigatório")
	}
	if strings.TrimSpace(m.Dosage()) == "" {
		r.AddWarning("dosage", CodeRequired, "A dosagem não foi informada")
	}
	if strings.TrimSpace(m.Frequency()) == "" {
		r.AddError("frequency", CodeRequired, "A frequência é obrigatória")
	}
	if m.CurrentStock() < 0 {
		r.AddError("currentStock", CodeNegativeStock, "O estoque não pode ser negativo")
	}
	if m.IsArchived() && m.Active() {
		r.AddError("isArchived", CodeArchivedActive, "Um medicamento arquivado não pode estar ativo")
	}
	if m.IsArchived() && m.CurrentStock() > 0 {
		r.AddWarning("currentStock", CodeArchivedWithStock,
			"Medicamento arquivado ainda possui %d unidade(s) em estoque", m.CurrentStock())
	}
	if m.Schedule().IsEmpty() {
		r.AddWarning("schedule", CodeEmptySchedule, "Nenhum horário de dose definido")
	}
	if m.NeedsRestocking(medication.DefaultLowStockThreshold) {
		r.AddWarning("currentStock", CodeLowStock, "Estoque baixo: restam %d unidade(s)", m.CurrentStock())
	}
	return r
}

// Draft is unvalidated input for a new medication.
type Draft struct {
	Name         string
	Dosage       string
	Frequency    string
	StartTime    string
	CurrentStock int
}

// ValidateDraft checks input before an aggregate is built from it, so rule violations come
// back as issues instead of constructor errors. An empty start time means the default.
func ValidateDraft(d Draft) Result {
	r := NewResult()

	name := strings.TrimSpace(d.Name)
	switch {
	case name == "":
		r.AddError("name", CodeRequired, "O nome do medicamento é obrigatório")
	case utf8.RuneCountInString(name) > medication.MaxNameLength:
		r.AddError("name", CodeTooLong, "O nome deve ter no máximo %d caracteres", medication.MaxNameLength)
	}
	if d.CurrentStock < 0 {
		r.AddError("currentStock", CodeNegativeStock, "O estoque não pode ser negativo")
	}

	checks := []Result{r, ValidateDosageFormat(d.Dosage), ValidateFrequencyFormat(d.Frequency)}
	if strings.TrimSpace(d.Dosage) == "" {
		missing := NewResult()
		missing.AddWarning("dosage", CodeRequired, "A dosagem não foi informada")
		checks = append(checks, missing)
	}
	if d.StartTime != "" {
		checks = append(checks, ValidateTimeFormat(d.StartTime))
	}
	return Combine(checks...)
}

// ValidateSchedule checks a dose list: duplicate times and malformed doses are errors,
// neighbours closer than MinDoseGapMinutes are warnings.
func ValidateSchedule(doses []medication.Dose) Result {
	r := NewResult()

	seen := make(map[string]bool, len(doses))
	valid := make([]medication.Dose, 0, len(doses))
	for i, d := range doses {
		if _, err := medication.RestoreDose(d.Props()); err != nil {
			r.AddError("schedule", CodeInvalidDose, "Dose %d inválida: %v", i+1, err)
			continue
		}
		if seen[d.Time()] {
			r.AddError("schedule", CodeDuplicateTime, "Horário duplicado: %s", d.Time())
			continue
		}
		seen[d.Time()] = true
		valid = append(valid, d)
	}

	sort.Slice(valid, func(i, j int) bool { return valid[i].Time() < valid[j].Time() })
	for i := 1; i < len(valid); i++ {
		gap := valid[i].Minutes() - valid[i-1].Minutes()
		if gap < MinDoseGapMinutes {
			r.AddWarning("schedule", CodeDosesTooClose,
				"Doses às %s e %s têm apenas %d minutos de intervalo", valid[i-1].Time(), valid[i].Time(), gap)
		}
	}
	return r
}

// ValidateMedicationList runs the cross-medication checks: repeated names (case-insensitive)
// and dose times shared by more than MaxMedicationsPerSlot active medications.
func ValidateMedicationList(meds []*medication.Medication) Result {
	r := NewResult()

	nameCount := make(map[string]int)
	var keys, display []string
	for _, m := range meds {
		key := strings.ToLower(strings.TrimSpace(m.Name()))
		if nameCount[key] == 0 {
			keys = append(keys, key)
			display = append(display, m.Name())
		}
		nameCount[key]++
	}
	for i, key := range keys {
		if n := nameCount[key]; n > 1 {
			r.AddWarning("name", CodeDuplicateName, "O medicamento \"%s\" aparece %d vezes", display[i], n)
		}
	}

	slotCount := make(map[string]int)
	for _, m := range meds {
		if m.IsArchived() {
			continue
		}
		for _, t := range m.Schedule().Times() {
			slotCount[t]++
		}
	}
	slots := make([]string, 0, len(slotCount))
	for t := range slotCount {
		slots = append(slots, t)
	}
	sort.Strings(slots)
	for _, t := range slots {
		if n := slotCount[t]; n > MaxMedicationsPerSlot {
			r.AddWarning("schedule", CodeCrowdedTime, "%d medicamentos agendados para %s", n, t)
		}
	}
	return r
}

// ValidateDosageFormat warns when a non-empty dosage does not look like "<amount> <unit>".
func ValidateDosageFormat(dosage string) Result {
	r := NewResult()
	d := medication.NormalizeText(dosage)
	if d == "" {
		return r
	}
	if !dosagePattern.MatchString(d) {
		r.AddWarning("dosage", CodeDosageFormat, "Formato de dosagem incomum: %q (ex.: 500mg, 10 gotas)", dosage)
	}
	return r
}

// ValidateFrequencyFormat rejects an empty frequency and warns on text no rule understands.
func ValidateFrequencyFormat(frequency string) Result {
	r := NewResult()
	if strings.TrimSpace(frequency) == "" {
		r.AddError("frequency", CodeRequired, "A frequência é obrigatória")
		return r
	}
	if !medication.ParseFrequency(frequency).IsRecognized() {
		r.AddWarning("frequency", CodeFrequencyFormat,
			"Frequência não reconhecida: %q (ex.: 8/8h, 3x ao dia, diário)", frequency)
	}
	return r
}

// ValidateTimeFormat requires a zero-padded 24h HH:MM time.
func ValidateTimeFormat(t string) Result {
	r := NewResult()
	if !medication.IsValidTimeOfDay(t) {
		r.AddError("time", CodeTimeFormat, "Horário inválido: %q (use HH:MM)", t)
	}
	return r
}
