// Package cli implements the offline subcommands that run against the local store
package cli

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"

	"github.com/gmsas95/medicamenta/internal/commands"
	"github.com/gmsas95/medicamenta/internal/forecast"
	"github.com/gmsas95/medicamenta/internal/medication"
)

// Env is what a subcommand runs against
type Env struct {
	Handler *commands.Handler
	Repo    medication.Repository
	Out     io.Writer
	// Table selects human-readable output; otherwise JSON is written.
	Table bool
}

var urgencyStyles = map[forecast.Urgency]lipgloss.Style{
	forecast.UrgencyCritical: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9")),
	forecast.UrgencyHigh:     lipgloss.NewStyle().Foreground(lipgloss.Color("208")),
	forecast.UrgencyMedium:   lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
	forecast.UrgencyLow:      lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
}

var headerStyle = lipgloss.NewStyle().Bold(true)

func styleUrgency(u forecast.Urgency) string {
	if u == "" {
		return "-"
	}
	if s, ok := urgencyStyles[u]; ok {
		return s.Render(string(u))
	}
	return string(u)
}

func requireUser(fs *flag.FlagSet, user string) error {
	user = strings.TrimSpace(user)
	if user == "" {
		return fmt.Errorf("%s: -user is required", fs.Name())
	}
	return nil
}

// HandleForecastCommand prints the stock analysis of every active medication of a user.
func HandleForecastCommand(ctx context.Context, env Env, args []string) error {
	fs := flag.NewFlagSet("forecast", flag.ContinueOnError)
	fs.SetOutput(env.Out)
	user := fs.String("user", "", "Owner user id")
	days := fs.Int("days", commands.DefaultForecastDays, "Days to simulate")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireUser(fs, *user); err != nil {
		return err
	}

	meds, err := env.Handler.List(ctx, *user, false)
	if err != nil {
		return err
	}
	results := make([]commands.ForecastResult, 0, len(meds))
	for _, m := range meds {
		res, err := env.Handler.Forecast(ctx, commands.Ref{MedicationID: m.ID(), UserID: *user}, *days)
		if err != nil {
			return err
		}
		results = append(results, res)
	}

	if !env.Table {
		return writeJSON(env.Out, results)
	}
	if len(results) == 0 {
		fmt.Fprintf(env.Out, "Nenhum medicamento ativo para %s\n", *user)
		return nil
	}

	tw := tabwriter.NewWriter(env.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, headerStyle.Render("MEDICAMENTO")+"\tESTOQUE\tPOR DIA\tDIAS\tESGOTA EM\tURGÊNCIA")
	for _, r := range results {
		a := r.Analysis
		days, depletion := "-", "-"
		if a.DaysRemaining != nil {
			days = fmt.Sprintf("%d", *a.DaysRemaining)
		}
		if a.DepletionDate != nil {
			depletion = a.DepletionDate.Format("02/01/2006")
		}
		fmt.Fprintf(tw, "%s\t%d %s\t%d\t%s\t%s\t%s\n",
			a.MedicationName, a.CurrentStock, a.StockUnit, a.DailyConsumption, days, depletion, styleUrgency(a.Urgency))
	}
	return tw.Flush()
}

// HandleRestockCommand prints the restock list of a user, most urgent first.
func HandleRestockCommand(ctx context.Context, env Env, args []string) error {
	fs := flag.NewFlagSet("restock", flag.ContinueOnError)
	fs.SetOutput(env.Out)
	user := fs.String("user", "", "Owner user id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireUser(fs, *user); err != nil {
		return err
	}

	recs, err := env.Handler.RestockRecommendations(ctx, *user)
	if err != nil {
		return err
	}
	if !env.Table {
		return writeJSON(env.Out, recs)
	}
	if len(recs) == 0 {
		fmt.Fprintln(env.Out, "Nenhuma reposição necessária")
		return nil
	}

	tw := tabwriter.NewWriter(env.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, headerStyle.Render("MEDICAMENTO")+"\tESTOQUE\tCOMPRAR\tURGÊNCIA\tMOTIVO")
	for _, r := range recs {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\n",
			r.MedicationName, r.CurrentStock, r.RecommendedAmount, styleUrgency(r.Urgency), r.Reason)
	}
	return tw.Flush()
}

// HandleExportCommand writes every medication of a user, archived ones included, as YAML.
func HandleExportCommand(ctx context.Context, env Env, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	fs.SetOutput(env.Out)
	user := fs.String("user", "", "Owner user id")
	output := fs.String("o", "", "Output file (default stdout)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireUser(fs, *user); err != nil {
		return err
	}

	meds, err := env.Handler.List(ctx, *user, true)
	if err != nil {
		return err
	}
	plain := make([]medication.Plain, 0, len(meds))
	for _, m := range meds {
		plain = append(plain, m.ToPlain())
	}

	w := env.Out
	if *output != "" {
		f, err := os.Create(*output)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", *output, err)
		}
		defer f.Close()
		w = f
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(plain); err != nil {
		return err
	}
	return enc.Close()
}

// HandleImportCommand restores medications from an export. Records are re-owned by -user;
// a record that fails to load aborts the import before anything is written.
func HandleImportCommand(ctx context.Context, env Env, args []string) error {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	fs.SetOutput(env.Out)
	user := fs.String("user", "", "Owner user id")
	input := fs.String("i", "", "Input file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireUser(fs, *user); err != nil {
		return err
	}
	if *input == "" {
		return fmt.Errorf("import: -i is required")
	}

	data, err := os.ReadFile(*input)
	if err != nil {
		return err
	}
	var plain []medication.Plain
	if err := yaml.Unmarshal(data, &plain); err != nil {
		return fmt.Errorf("failed to parse %s: %w", *input, err)
	}

	meds := make([]*medication.Medication, 0, len(plain))
	for i, p := range plain {
		p.UserID = *user
		m, err := medication.FromPlain(p)
		if err != nil {
			return fmt.Errorf("record %d (%s): %w", i+1, p.Name, err)
		}
		meds = append(meds, m)
	}
	for _, m := range meds {
		if _, err := env.Repo.Save(ctx, m); err != nil {
			return err
		}
	}
	fmt.Fprintf(env.Out, "%d medicamento(s) importado(s) para %s\n", len(meds), *user)
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// PrintHelp lists the subcommands.
func PrintHelp(w io.Writer) {
	fmt.Fprintln(w, "Usage: medicamenta [flags] [command] [command flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve                       Run the HTTP API (default)")
	fmt.Fprintln(w, "  forecast -user ID [-days N] Stock forecast per medication")
	fmt.Fprintln(w, "  restock -user ID            Restock recommendations")
	fmt.Fprintln(w, "  export -user ID [-o FILE]   Export medications as YAML")
	fmt.Fprintln(w, "  import -user ID -i FILE     Import medications from an export")
	fmt.Fprintln(w, "  version                     Print the version")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config FILE   Path to config file")
	fmt.Fprintln(w, "  -data DIR      Path to data directory")
}
