package medication

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/gmsas95/medicamenta/internal/errors"
)

func newTestMedication(t *testing.T, frequency string, stock int) *Medication {
	t.Helper()
	m, err := New(NewParams{
		ID:           "med-1",
		UserID:       "user-1",
		Name:         "  Losartana  ",
		Dosage:       "50mg",
		Frequency:    frequency,
		StartTime:    "08:00",
		CurrentStock: stock,
		StockUnit:    "comprimidos",
	})
	require.NoError(t, err)
	return m
}

func TestNew(t *testing.T) {
	m := newTestMedication(t, "12/12h", 30)

	assert.Equal(t, "Losartana", m.Name())
	assert.True(t, m.Active())
	assert.False(t, m.IsArchived())
	assert.Nil(t, m.ArchivedAt())
	assert.Equal(t, []string{"08:00", "20:00"}, m.Schedule().Times())
	assert.False(t, m.CreatedAt().IsZero())
}

func TestNew_Invariants(t *testing.T) {
	_, err := New(NewParams{UserID: "u", Name: "x"})
	assert.ErrorIs(t, err, apperrors.ErrIdentityRequired)

	_, err = New(NewParams{ID: "m", UserID: "u", Name: "   "})
	assert.ErrorIs(t, err, apperrors.ErrNameRequired)

	_, err = New(NewParams{ID: "m", UserID: "u", Name: strings.Repeat("á", MaxNameLength+1)})
	assert.ErrorIs(t, err, apperrors.ErrNameTooLong)

	_, err = New(NewParams{ID: "m", UserID: "u", Name: strings.Repeat("á", MaxNameLength)})
	assert.NoError(t, err)

	_, err = New(NewParams{ID: "m", UserID: "u", Name: "x", CurrentStock: -1})
	assert.ErrorIs(t, err, apperrors.ErrNegativeStock)

	_, err = New(NewParams{ID: "m", UserID: "u", Name: "x", StartTime: "8h"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidTime)
}

func TestMedication_RecordDoseTakenDecrementsStock(t *testing.T) {
	m := newTestMedication(t, "12/12h", 1)

	d, err := m.RecordDoseTaken("08:00", nurse, "", true)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, StatusTaken, d.Status())
	assert.Equal(t, 0, m.CurrentStock())

	// stock floors at zero instead of failing
	d, err = m.RecordDoseTaken("20:00", nurse, "", true)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, 0, m.CurrentStock())
}

func TestMedication_RecordDoseTakenWithoutDecrease(t *testing.T) {
	m := newTestMedication(t, "12/12h", 10)
	_, err := m.RecordDoseTaken("08:00", nurse, "", false)
	require.NoError(t, err)
	assert.Equal(t, 10, m.CurrentStock())
}

func TestMedication_RecordDoseUnknownTime(t *testing.T) {
	m := newTestMedication(t, "12/12h", 10)
	d, err := m.RecordDoseTaken("09:00", nurse, "", true)
	assert.NoError(t, err)
	assert.Nil(t, d)
	assert.Equal(t, 10, m.CurrentStock())

	d, err = m.RecordDoseMissed("09:00", nurse, "")
	assert.NoError(t, err)
	assert.Nil(t, d)

	d, err = m.ResetDose("09:00")
	assert.NoError(t, err)
	assert.Nil(t, d)
}

func TestMedication_TakenThenReset(t *testing.T) {
	m := newTestMedication(t, "12/12h", 10)
	before := m.Schedule()

	_, err := m.RecordDoseTaken("08:00", nurse, "ok", false)
	require.NoError(t, err)
	_, err = m.RecordDoseTaken("08:00", nurse, "", false)
	assert.ErrorIs(t, err, apperrors.ErrDoseAlreadyTaken)

	_, err = m.ResetDose("08:00")
	require.NoError(t, err)
	assert.True(t, m.Schedule().Equal(before))
}

func TestMedication_RecordDoseMissed(t *testing.T) {
	m := newTestMedication(t, "12/12h", 10)
	d, err := m.RecordDoseMissed("20:00", nurse, "dormiu")
	require.NoError(t, err)
	assert.Equal(t, StatusMissed, d.Status())
	assert.Equal(t, 10, m.CurrentStock())
}

func TestMedication_Stock(t *testing.T) {
	m := newTestMedication(t, "diário", 5)

	assert.ErrorIs(t, m.IncreaseStock(0), apperrors.ErrInvalidAmount)
	require.NoError(t, m.IncreaseStock(10))
	assert.Equal(t, 15, m.CurrentStock())

	assert.ErrorIs(t, m.DecreaseStock(-2), apperrors.ErrInvalidAmount)
	assert.ErrorIs(t, m.DecreaseStock(16), apperrors.ErrInsufficientStock)
	require.NoError(t, m.DecreaseStock(15))
	assert.Equal(t, 0, m.CurrentStock())

	assert.ErrorIs(t, m.UpdateStock(-1), apperrors.ErrNegativeStock)
	require.NoError(t, m.UpdateStock(3))
	assert.Equal(t, 3, m.CurrentStock())
}

func TestMedication_ArchiveRules(t *testing.T) {
	m := newTestMedication(t, "diário", 3)

	err := m.Archive()
	assert.ErrorIs(t, err, apperrors.ErrArchiveWithStock)
	assert.False(t, m.IsArchived())

	require.NoError(t, m.UpdateStock(0))
	require.NoError(t, m.Archive())
	assert.True(t, m.IsArchived())
	assert.False(t, m.Active())
	assert.NotNil(t, m.ArchivedAt())
	assert.False(t, m.NeedsRestocking(DefaultLowStockThreshold))

	assert.ErrorIs(t, m.Activate(), apperrors.ErrActivateArchived)
	name := "Outro"
	assert.ErrorIs(t, m.UpdateDetails(DetailsUpdate{Name: &name}), apperrors.ErrArchived)
	assert.ErrorIs(t, m.RegenerateSchedule(), apperrors.ErrArchived)

	m.Unarchive()
	assert.False(t, m.IsArchived())
	assert.Nil(t, m.ArchivedAt())
	assert.False(t, m.Active())
	require.NoError(t, m.Activate())
	assert.True(t, m.Active())
}

func TestMedication_UpdateDetails(t *testing.T) {
	m := newTestMedication(t, "12/12h", 10)

	bad := "25:00"
	assert.ErrorIs(t, m.UpdateDetails(DetailsUpdate{Time: &bad}), apperrors.ErrInvalidTime)
	assert.Equal(t, "08:00", m.Time())

	empty := " "
	newDosage := "100mg"
	err := m.UpdateDetails(DetailsUpdate{Name: &empty, Dosage: &newDosage})
	assert.ErrorIs(t, err, apperrors.ErrNameRequired)
	assert.Equal(t, "50mg", m.Dosage(), "a failed update must not apply any field")

	freq := "8/8h"
	start := "06:00"
	require.NoError(t, m.UpdateDetails(DetailsUpdate{Frequency: &freq, Time: &start, Dosage: &newDosage}))
	assert.Equal(t, "100mg", m.Dosage())
	assert.Equal(t, []string{"08:00", "20:00"}, m.Schedule().Times(), "details update keeps the schedule")

	require.NoError(t, m.RegenerateSchedule())
	assert.Equal(t, []string{"06:00", "14:00", "22:00"}, m.Schedule().Times())
}

func TestMedication_NeedsRestocking(t *testing.T) {
	m := newTestMedication(t, "diário", 5)
	assert.True(t, m.NeedsRestocking(DefaultLowStockThreshold))
	require.NoError(t, m.UpdateStock(6))
	assert.False(t, m.NeedsRestocking(DefaultLowStockThreshold))
}

func TestMedication_AdherenceAndNextDose(t *testing.T) {
	m := newTestMedication(t, "3x ao dia", 10)
	next, ok := m.NextDose()
	require.True(t, ok)
	assert.Equal(t, "08:00", next.Time())

	_, _ = m.RecordDoseTaken("08:00", nurse, "", false)
	_, _ = m.RecordDoseTaken("14:00", nurse, "", false)
	_, _ = m.RecordDoseMissed("20:00", nurse, "")
	assert.Equal(t, 67, m.AdherenceRate())

	_, ok = m.NextDose()
	assert.False(t, ok)
}

func TestMedication_IsContinuous(t *testing.T) {
	for freq, want := range map[string]bool{
		"Uso contínuo":  true,
		"Diário":        true,
		"8/8h":          true,
		"de 12 em 12 h": true,
		"6/6h":          false,
		"3x ao dia":     false,
	} {
		m := newTestMedication(t, freq, 1)
		assert.Equal(t, want, m.IsContinuous(), freq)
	}
}

func TestPlainRoundTrip(t *testing.T) {
	m := newTestMedication(t, "3x ao dia", 4)
	_, err := m.RecordDoseTaken("14:00", nurse, "após almoço", true)
	require.NoError(t, err)

	raw, err := json.Marshal(m.ToPlain())
	require.NoError(t, err)
	var p Plain
	require.NoError(t, json.Unmarshal(raw, &p))

	restored, err := FromPlain(p)
	require.NoError(t, err)
	assert.Equal(t, m.ToPlain().Schedule[1].Notes, restored.ToPlain().Schedule[1].Notes)
	assert.True(t, m.Schedule().Equal(restored.Schedule()))
	assert.Equal(t, m.CurrentStock(), restored.CurrentStock())
	assert.Equal(t, m.Name(), restored.Name())
	assert.True(t, m.CreatedAt().Equal(restored.CreatedAt()))
}

func TestFromPlain_Invariants(t *testing.T) {
	base := newTestMedication(t, "12/12h", 0).ToPlain()

	p := base
	p.Active = true
	p.IsArchived = true
	_, err := FromPlain(p)
	assert.ErrorIs(t, err, apperrors.ErrArchivedActive)

	p = base
	p.Schedule = append(p.Schedule, p.Schedule[0])
	_, err = FromPlain(p)
	assert.ErrorIs(t, err, apperrors.ErrDuplicateDoseTime)

	p = base
	p.CurrentStock = -4
	_, err = FromPlain(p)
	assert.ErrorIs(t, err, apperrors.ErrNegativeStock)

	for _, bad := range []string{"25:00", "8:00", "08h00"} {
		p = base
		p.Time = bad
		_, err = FromPlain(p)
		assert.ErrorIs(t, err, apperrors.ErrInvalidTime, bad)
	}

	// archived with stock left is restorable; validation reports it
	p = base
	p.Active = false
	p.IsArchived = true
	p.CurrentStock = 3
	m, err := FromPlain(p)
	require.NoError(t, err)
	assert.True(t, m.IsArchived())
}
