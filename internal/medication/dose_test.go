package medication

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/gmsas95/medicamenta/internal/errors"
)

var nurse = Administrator{ID: "u1", Name: "Ana"}

func TestNewDose_AcceptsEveryValidTime(t *testing.T) {
	for h := 0; h < 24; h++ {
		for m := 0; m < 60; m++ {
			at := fmt.Sprintf("%02d:%02d", h, m)
			d, err := NewDose(at)
			require.NoError(t, err, at)
			assert.Equal(t, StatusUpcoming, d.Status())
		}
	}
}

func TestNewDose_RejectsMalformedTime(t *testing.T) {
	for _, at := range []string{"", "8:00", "24:00", "23:60", "08:0", "0800", "08-00", "ab:cd", " 08:00", "08:00 ", "-1:00", "123:00"} {
		t.Run(at, func(t *testing.T) {
			_, err := NewDose(at)
			assert.ErrorIs(t, err, apperrors.ErrInvalidTime)
		})
	}
}

func TestRestoreDose_Invariants(t *testing.T) {
	_, err := RestoreDose(DoseProps{Time: "08:00", Status: StatusTaken})
	assert.ErrorIs(t, err, apperrors.ErrAdministratorRequired)

	_, err = RestoreDose(DoseProps{Time: "08:00", Status: StatusUpcoming, AdministeredBy: &nurse})
	assert.ErrorIs(t, err, apperrors.ErrAdministratorForbidden)

	_, err = RestoreDose(DoseProps{Time: "08:00", Status: "skipped"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidDoseStatus)
}

func TestRestoreDose_StampsCompletedDoseWithoutTimestamp(t *testing.T) {
	before := time.Now()
	d, err := RestoreDose(DoseProps{Time: "08:00", Status: StatusMissed, AdministeredBy: &nurse})
	require.NoError(t, err)
	require.NotNil(t, d.Timestamp())
	assert.False(t, d.Timestamp().Before(before))
}

func TestDose_MarkAsTaken(t *testing.T) {
	d, _ := NewDose("08:00")

	taken, err := d.MarkAsTaken(nurse, "com água")
	require.NoError(t, err)
	assert.Equal(t, StatusTaken, taken.Status())
	assert.Equal(t, "com água", taken.Notes())
	assert.Equal(t, &nurse, taken.AdministeredBy())
	assert.NotNil(t, taken.Timestamp())
	assert.True(t, taken.IsCompleted())

	// the original value is untouched
	assert.Equal(t, StatusUpcoming, d.Status())
	assert.Nil(t, d.Timestamp())

	_, err = taken.MarkAsTaken(nurse, "")
	assert.ErrorIs(t, err, apperrors.ErrDoseAlreadyTaken)
}

func TestDose_MarkAsMissed(t *testing.T) {
	d, _ := NewDose("08:00")

	missed, err := d.MarkAsMissed(nurse, "")
	require.NoError(t, err)
	assert.Equal(t, StatusMissed, missed.Status())

	_, err = missed.MarkAsMissed(nurse, "")
	assert.ErrorIs(t, err, apperrors.ErrDoseAlreadyMissed)

	// missed can still be corrected to taken
	taken, err := missed.MarkAsTaken(nurse, "")
	require.NoError(t, err)

	_, err = taken.MarkAsMissed(nurse, "")
	assert.ErrorIs(t, err, apperrors.ErrTakenDoseToMissed)
}

func TestDose_TakenThenResetEqualsOriginal(t *testing.T) {
	d, _ := NewDose("21:30")
	taken, err := d.MarkAsTaken(nurse, "notes")
	require.NoError(t, err)

	reset := taken.ResetToUpcoming()
	assert.True(t, reset.Equal(d))
	assert.Nil(t, reset.AdministeredBy())
	assert.Nil(t, reset.Timestamp())
	assert.Empty(t, reset.Notes())
}

func TestDose_WasTakenOnTimeAndDelay(t *testing.T) {
	scheduled := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	ts := scheduled.Add(20 * time.Minute)
	d, err := RestoreDose(DoseProps{Time: "08:00", Status: StatusTaken, AdministeredBy: &nurse, Timestamp: &ts})
	require.NoError(t, err)

	assert.True(t, d.WasTakenOnTime(scheduled, 0))
	assert.False(t, d.WasTakenOnTime(scheduled, 10*time.Minute))

	delay, ok := d.DelayMinutes(scheduled)
	assert.True(t, ok)
	assert.Equal(t, 20, delay)

	early := scheduled.Add(-45 * time.Minute)
	d, _ = RestoreDose(DoseProps{Time: "08:00", Status: StatusTaken, AdministeredBy: &nurse, Timestamp: &early})
	delay, ok = d.DelayMinutes(scheduled)
	assert.True(t, ok)
	assert.Equal(t, -45, delay)
	assert.False(t, d.WasTakenOnTime(scheduled, 0))

	upcoming, _ := NewDose("08:00")
	_, ok = upcoming.DelayMinutes(scheduled)
	assert.False(t, ok)
	assert.False(t, upcoming.WasTakenOnTime(scheduled, 0))
}

func TestDose_ScheduledOn(t *testing.T) {
	d, _ := NewDose("14:45")
	day := time.Date(2026, 1, 2, 9, 13, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 1, 2, 14, 45, 0, 0, time.UTC), d.ScheduledOn(day))
	assert.Equal(t, 14, d.Hour())
	assert.Equal(t, 14*60+45, d.Minutes())
}
