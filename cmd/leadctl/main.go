// Command leadctl runs lead searches and logs calls from the terminal.
//
// Usage:
//
//	leadctl search -location 10001 [-radius 10] [-days 14] [-verticals Plumbing,Cafe] [-exclude-called] [-high-income] [-top 50] [-csv]
//	leadctl call -lead node/123 -outcome "No Answer"
//	leadctl history -lead node/123
//	leadctl check-income -zip 10001
//
// Configuration comes from the same environment variables as the service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/couchcryptid/lead-finder/internal/app"
	"github.com/couchcryptid/lead-finder/internal/config"
	"github.com/couchcryptid/lead-finder/internal/export"
	"github.com/couchcryptid/lead-finder/internal/income"
	"github.com/couchcryptid/lead-finder/internal/observability"
	"github.com/couchcryptid/lead-finder/internal/pipeline"
)

var errUsage = errors.New("usage: leadctl <search|call|history|check-income> [flags]")

func main() {
	_ = godotenv.Load(".env")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if errors.Is(err, errUsage) || errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, args := args[0], args[1:]

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	// Logs go to stderr so -csv output can be piped.
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	if cmd == "check-income" {
		return checkIncome(cfg, args, stdout)
	}

	a, err := app.New(ctx, cfg, logger, observability.NewLocalMetrics())
	if err != nil {
		return err
	}
	defer a.Close() //nolint:errcheck // exiting anyway

	switch cmd {
	case "search":
		return search(ctx, a.Pipeline, args, stdout)
	case "call":
		return call(ctx, a.Pipeline, args, stdout)
	case "history":
		return history(ctx, a.Pipeline, args, stdout)
	default:
		return fmt.Errorf("unknown command %q: %w", cmd, errUsage)
	}
}

func search(ctx context.Context, p *pipeline.Pipeline, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("search", flag.ContinueOnError)
	location := fs.String("location", "", "ZIP code or place name")
	radius := fs.Int("radius", pipeline.DefaultRadiusMiles, "search radius in miles (10, 15 or 25)")
	days := fs.Int("days", pipeline.DefaultDays, "opened within this many days (1-30)")
	verticals := fs.String("verticals", "", "comma-separated vertical names (default: first three)")
	excludeCalled := fs.Bool("exclude-called", false, "hide leads that were already called")
	highIncome := fs.Bool("high-income", false, "only High income ZIPs")
	top := fs.Int("top", 0, "maximum leads to show")
	asCSV := fs.Bool("csv", false, "write CSV instead of a table")
	if err := fs.Parse(args); err != nil {
		return err
	}

	q := pipeline.Query{
		Location:       *location,
		RadiusMiles:    *radius,
		Days:           *days,
		Verticals:      splitList(*verticals),
		ExcludeCalled:  *excludeCalled,
		HighIncomeOnly: *highIncome,
		TopN:           *top,
	}
	res, err := p.Search(ctx, q)
	if err != nil {
		return err
	}

	if *asCSV {
		return export.WriteCSV(stdout, res.Leads)
	}

	fmt.Fprintf(stdout, "%s (%.4f, %.4f), %d miles, last %d days, %s\n",
		res.Location.DisplayName, res.Location.Lat, res.Location.Lon,
		res.RadiusMiles, res.Days, strings.Join(res.Verticals, ", "))
	if len(res.Leads) == 0 {
		fmt.Fprintln(stdout, "No leads found.")
		return nil
	}
	export.WriteTable(stdout, res.Leads)
	fmt.Fprintf(stdout, "SMS for top lead: %s\n", res.Leads[0].SMS())
	return nil
}

func call(ctx context.Context, p *pipeline.Pipeline, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("call", flag.ContinueOnError)
	lead := fs.String("lead", "", "lead id, e.g. node/123")
	outcome := fs.String("outcome", "", "Connected, Voicemail, No Answer or Uncalled")
	if err := fs.Parse(args); err != nil {
		return err
	}

	rec, err := p.RecordOutcome(ctx, *lead, *outcome)
	if err != nil {
		return err
	}
	if rec == nil {
		fmt.Fprintln(stdout, "Nothing recorded.")
		return nil
	}
	fmt.Fprintf(stdout, "Recorded %s for %s at %s\n", rec.Outcome, rec.LeadID, rec.CalledAt.Format("2006-01-02 15:04:05"))
	return nil
}

func history(ctx context.Context, p *pipeline.Pipeline, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	lead := fs.String("lead", "", "lead id, e.g. node/123")
	if err := fs.Parse(args); err != nil {
		return err
	}

	calls, err := p.History(ctx, *lead)
	if err != nil {
		return err
	}
	if len(calls) == 0 {
		fmt.Fprintf(stdout, "No calls logged for %s.\n", *lead)
		return nil
	}
	export.WriteCalls(stdout, calls)
	return nil
}

func checkIncome(cfg *config.Config, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("check-income", flag.ContinueOnError)
	zip := fs.String("zip", "", "ZIP code")
	if err := fs.Parse(args); err != nil {
		return err
	}

	table, err := income.LoadFile(cfg.IncomeCSV)
	if err != nil {
		return err
	}
	median, ok := table.Median(*zip)
	if !ok {
		fmt.Fprintf(stdout, "%s: no income data (tier %s)\n", *zip, table.Tier(*zip))
		return nil
	}
	fmt.Fprintf(stdout, "%s: median household income $%d (tier %s)\n", *zip, median, table.Tier(*zip))
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
