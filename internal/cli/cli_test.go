package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gmsas95/medicamenta/internal/commands"
	"github.com/gmsas95/medicamenta/internal/forecast"
	"github.com/gmsas95/medicamenta/internal/medication"
	"github.com/gmsas95/medicamenta/internal/store"
)

func setupEnv(t *testing.T, table bool) (Env, *bytes.Buffer) {
	t.Helper()
	db, err := store.OpenBadger("", true)
	require.NoError(t, err)
	backend := store.NewBadgerStore(db, zap.NewNop())
	t.Cleanup(func() { backend.Close() })

	h := commands.NewHandler(backend, forecast.NewService(), zap.NewNop())
	out := &bytes.Buffer{}
	return Env{Handler: h, Repo: backend, Out: out, Table: table}, out
}

func seed(t *testing.T, env Env, owner, name, frequency string, stock int) *medication.Medication {
	t.Helper()
	res, err := env.Handler.Add(context.Background(), commands.AddMedication{
		UserID:       owner,
		Name:         name,
		Dosage:       "10mg",
		Frequency:    frequency,
		StartTime:    "08:00",
		CurrentStock: stock,
		StockUnit:    "comprimidos",
	})
	require.NoError(t, err)
	require.NotNil(t, res.Medication)
	return res.Medication
}

func TestForecastCommand_JSON(t *testing.T) {
	env, out := setupEnv(t, false)
	seed(t, env, "alice", "Losartana", "12/12h", 10)

	require.NoError(t, HandleForecastCommand(context.Background(), env, []string{"-user", "alice", "-days", "2"}))

	var results []commands.ForecastResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &results))
	require.Len(t, results, 1)
	assert.Equal(t, "Losartana", results[0].Analysis.MedicationName)
	assert.Equal(t, 2, results[0].Analysis.DailyConsumption)
	assert.Len(t, results[0].Simulation, 3)
}

func TestForecastCommand_Table(t *testing.T) {
	env, out := setupEnv(t, true)
	seed(t, env, "alice", "Losartana", "12/12h", 3)

	require.NoError(t, HandleForecastCommand(context.Background(), env, []string{"-user", "alice"}))
	assert.Contains(t, out.String(), "MEDICAMENTO")
	assert.Contains(t, out.String(), "Losartana")
	assert.Contains(t, out.String(), "3 comprimidos")
}

func TestForecastCommand_Empty(t *testing.T) {
	env, out := setupEnv(t, true)

	require.NoError(t, HandleForecastCommand(context.Background(), env, []string{"-user", "bob"}))
	assert.Contains(t, out.String(), "Nenhum medicamento ativo")
}

func TestCommands_RequireUser(t *testing.T) {
	env, _ := setupEnv(t, false)
	ctx := context.Background()

	assert.Error(t, HandleForecastCommand(ctx, env, nil))
	assert.Error(t, HandleRestockCommand(ctx, env, nil))
	assert.Error(t, HandleExportCommand(ctx, env, []string{"-user", " "}))
	assert.Error(t, HandleImportCommand(ctx, env, []string{"-user", "alice"}))
}

func TestRestockCommand(t *testing.T) {
	env, out := setupEnv(t, false)
	seed(t, env, "alice", "Losartana", "diário", 1)
	seed(t, env, "alice", "Sinvastatina", "diário", 200)

	require.NoError(t, HandleRestockCommand(context.Background(), env, []string{"-user", "alice"}))

	var recs []forecast.Recommendation
	require.NoError(t, json.Unmarshal(out.Bytes(), &recs))
	require.Len(t, recs, 1)
	assert.Equal(t, "Losartana", recs[0].MedicationName)
	assert.Equal(t, forecast.UrgencyHigh, recs[0].Urgency)
	assert.Equal(t, 30, recs[0].RecommendedAmount)
}

func TestExportImport(t *testing.T) {
	env, out := setupEnv(t, false)
	ctx := context.Background()
	m := seed(t, env, "alice", "Losartana", "12/12h", 8)
	_, err := env.Handler.RecordDose(ctx, commands.RecordDose{
		MedicationID:   m.ID(),
		UserID:         "alice",
		Time:           "08:00",
		Status:         medication.StatusTaken,
		AdministeredBy: medication.Administrator{ID: "alice", Name: "Alice"},
	})
	require.NoError(t, err)

	file := filepath.Join(t.TempDir(), "alice.yaml")
	require.NoError(t, HandleExportCommand(ctx, env, []string{"-user", "alice", "-o", file}))
	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), "name: Losartana")

	out.Reset()
	require.NoError(t, HandleImportCommand(ctx, env, []string{"-user", "carol", "-i", file}))
	assert.Contains(t, out.String(), "1 medicamento(s)")

	imported, err := env.Handler.Get(ctx, commands.Ref{MedicationID: m.ID(), UserID: "carol"})
	require.NoError(t, err)
	assert.Equal(t, 7, imported.CurrentStock())
	assert.Equal(t, "carol", imported.UserID())
	d, ok := imported.Schedule().Find("08:00")
	require.True(t, ok)
	assert.Equal(t, medication.StatusTaken, d.Status())
}

func TestImportCommand_RejectsBadRecord(t *testing.T) {
	env, _ := setupEnv(t, false)
	file := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(file, []byte("- id: x1\n  name: Ok\n  frequency: diário\n- id: x2\n  name: ''\n"), 0644))

	err := HandleImportCommand(context.Background(), env, []string{"-user", "alice", "-i", file})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record 2")

	meds, err := env.Handler.List(context.Background(), "alice", true)
	require.NoError(t, err)
	assert.Empty(t, meds)
}

func TestPrintHelp(t *testing.T) {
	var buf bytes.Buffer
	PrintHelp(&buf)
	assert.Contains(t, buf.String(), "forecast")
}
