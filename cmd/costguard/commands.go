package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/costguard/costguard/internal/models"
	"github.com/costguard/costguard/internal/report"
	"github.com/costguard/costguard/internal/version"
)

// collectTimeout bounds one detection cycle end to end.
const collectTimeout = 5 * time.Minute

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "costguard",
		Short: "Cost Guardian — AWS cost anomaly detection with feedback-aware alerting",
	}
	root.PersistentFlags().String("config", "", "Config file path (default: ~/.config/costguard/config.yaml)")
	root.PersistentFlags().String("profile", "", "AWS profile name (default: configured or credential chain)")

	root.AddCommand(newCollectCmd())
	root.AddCommand(newBackfillCmd())
	root.AddCommand(newReportCmd())
	root.AddCommand(newChangelogCmd())
	root.AddCommand(newServeCmd())
	root.AddCommand(newDoctorCmd())
	root.AddCommand(newVersionCmd())
	return root
}

func appFromFlags(cmd *cobra.Command) (*app, error) {
	cfgPath, _ := cmd.Flags().GetString("config")
	profile, _ := cmd.Flags().GetString("profile")
	return newApp(cmd.Context(), cfgPath, profile)
}

// yesterday is the default collection target: Cost Explorer data for the
// current day is incomplete until the day closes.
func yesterday() string {
	return time.Now().UTC().AddDate(0, 0, -1).Format("2006-01-02")
}

func newCollectCmd() *cobra.Command {
	var (
		date   string
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Run one detection cycle: collect costs, detect anomalies, alert",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := appFromFlags(cmd)
			if err != nil {
				return err
			}
			eng, err := a.newEngine(cmd.Context(), dryRun)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), collectTimeout)
			defer cancel()

			if date == "" {
				date = yesterday()
			}
			result, err := eng.RunCycle(ctx, date)
			if err != nil {
				return fmt.Errorf("collection cycle for %s: %w", date, err)
			}

			switch {
			case result.AlreadyCollected:
				fmt.Printf("%s already collected, nothing to do\n", date)
			case result.NoData:
				fmt.Printf("no billing data for %s yet, try again later\n", date)
			default:
				fmt.Printf("Collected %s: $%.2f across %d services\n",
					date, result.Snapshot.TotalCost, len(result.Snapshot.CostByService))
				fmt.Printf("Anomalies: %d surfaced, %d suppressed\n",
					len(result.Surfaced), result.Suppressed)
				for _, a := range result.Surfaced {
					fmt.Printf("  [%s] %-40s $%+.2f (%+.0f%%)\n",
						a.Severity, a.Service, a.Amount, a.PercentChange)
				}
				if n := len(result.ChangeScan.Resolved) + len(result.ChangeScan.Expired); n > 0 {
					fmt.Printf("Change log: %d resolved, %d expired\n",
						len(result.ChangeScan.Resolved), len(result.ChangeScan.Expired))
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "Day to collect, YYYY-MM-DD (default: yesterday)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Detect and persist but send no alerts")
	return cmd
}

func newBackfillCmd() *cobra.Command {
	var start, end string

	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Seed historical snapshots from Cost Explorer without detection",
		RunE: func(cmd *cobra.Command, args []string) error {
			if start == "" || end == "" {
				return fmt.Errorf("--start and --end are required")
			}
			a, err := appFromFlags(cmd)
			if err != nil {
				return err
			}
			eng, err := a.newEngine(cmd.Context(), true)
			if err != nil {
				return err
			}

			result, err := eng.Backfill(cmd.Context(), start, end)
			if err != nil {
				return err
			}
			fmt.Printf("Backfilled %d days (%d already present)\n", result.Seeded, result.Skipped)
			return nil
		},
	}

	cmd.Flags().StringVar(&start, "start", "", "First day to backfill, YYYY-MM-DD")
	cmd.Flags().StringVar(&end, "end", "", "Day after the last day to backfill, YYYY-MM-DD (exclusive)")
	return cmd
}

func newReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Build cost summary reports from stored snapshots",
	}
	cmd.AddCommand(newReportDailyCmd())
	cmd.AddCommand(newReportWeeklyCmd())
	return cmd
}

func newReportDailyCmd() *cobra.Command {
	var (
		date string
		post bool
	)

	cmd := &cobra.Command{
		Use:   "daily",
		Short: "Summarise one day of spend",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := appFromFlags(cmd)
			if err != nil {
				return err
			}
			if date == "" {
				date = yesterday()
			}
			d, err := a.reports.Daily(cmd.Context(), a.profile.AccountID, date)
			if err != nil {
				return err
			}

			if post {
				return a.notifier.Send(cmd.Context(), models.SeverityInfo, report.DailyMessage(d))
			}
			printDaily(d)
			return nil
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "Day to report, YYYY-MM-DD (default: yesterday)")
	cmd.Flags().BoolVar(&post, "post", false, "Post the report to Slack instead of stdout")
	return cmd
}

func newReportWeeklyCmd() *cobra.Command {
	var (
		end  string
		post bool
	)

	cmd := &cobra.Command{
		Use:   "weekly",
		Short: "Summarise the 7 days ending at a date",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := appFromFlags(cmd)
			if err != nil {
				return err
			}
			if end == "" {
				end = yesterday()
			}
			w, err := a.reports.Weekly(cmd.Context(), a.profile.AccountID, end)
			if err != nil {
				return err
			}

			if post {
				return a.notifier.Send(cmd.Context(), models.SeverityInfo, report.WeeklyMessage(w))
			}
			printWeekly(w)
			return nil
		},
	}

	cmd.Flags().StringVar(&end, "end", "", "Last day of the week to report, YYYY-MM-DD (default: yesterday)")
	cmd.Flags().BoolVar(&post, "post", false, "Post the report to Slack instead of stdout")
	return cmd
}

func newChangelogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "changelog",
		Short: "Inspect and maintain acknowledged cost changes",
	}
	cmd.AddCommand(newChangelogListCmd())
	cmd.AddCommand(newChangelogScanCmd())
	cmd.AddCommand(newChangelogResolveCmd())
	return cmd
}

func newChangelogListCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List active change log entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := appFromFlags(cmd)
			if err != nil {
				return err
			}
			active, err := a.store.ActiveChanges(cmd.Context())
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(active)
			}
			if len(active) == 0 {
				fmt.Println("No active changes.")
				return nil
			}
			fmt.Printf("%-40s  %-14s  %10s  %8s  %-10s  %s\n",
				"SERVICE", "TYPE", "BASELINE", "CHANGE", "UNTIL", "ACKNOWLEDGED BY")
			for _, e := range active {
				until := e.ExpectedEndDate
				if until == "" {
					until = "ongoing"
				}
				fmt.Printf("%-40s  %-14s  $%9.2f  %+7.0f%%  %-10s  %s\n",
					e.Service, e.ChangeType, e.BaselineCost, e.PercentChange, until, e.AcknowledgedBy)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newChangelogScanCmd() *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Resolve and expire stale change log entries against a day's costs",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := appFromFlags(cmd)
			if err != nil {
				return err
			}
			if date == "" {
				date = yesterday()
			}
			snap, err := a.store.GetSnapshot(cmd.Context(), date, models.PeriodDaily, a.profile.AccountID)
			if err != nil {
				return fmt.Errorf("no snapshot for %s, collect first: %w", date, err)
			}

			result, err := a.tracker.Scan(cmd.Context(), snap)
			if err != nil {
				return err
			}
			fmt.Printf("Scanned %d active changes: %d resolved, %d expired\n",
				result.Scanned, len(result.Resolved), len(result.Expired))
			for _, e := range result.Resolved {
				fmt.Printf("  resolved %s (%s)\n", e.Service, e.ResolutionNotes)
			}
			for _, e := range result.Expired {
				fmt.Printf("  expired  %s (%s)\n", e.Service, e.ResolutionNotes)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "Snapshot day to scan against, YYYY-MM-DD (default: yesterday)")
	return cmd
}

func newChangelogResolveCmd() *cobra.Command {
	var (
		service string
		notes   string
	)

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Manually resolve a service's active change",
		RunE: func(cmd *cobra.Command, args []string) error {
			if service == "" {
				return fmt.Errorf("--service is required")
			}
			a, err := appFromFlags(cmd)
			if err != nil {
				return err
			}

			entries, err := a.store.ChangesForService(cmd.Context(), service)
			if err != nil {
				return err
			}
			for i := range entries {
				if entries[i].Status != models.ChangeActive {
					continue
				}
				if err := a.tracker.Resolve(cmd.Context(), &entries[i], notes); err != nil {
					return err
				}
				fmt.Printf("Resolved change %s for %s\n", entries[i].ChangeID, service)
				return nil
			}
			return fmt.Errorf("no active change for service %q", service)
		},
	}

	cmd.Flags().StringVar(&service, "service", "", "Service whose active change to resolve")
	cmd.Flags().StringVar(&notes, "notes", "", "Resolution notes for the audit trail")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprint(cmd.OutOrStdout(), version.Info())
		},
	}
}

func printDaily(d *report.Daily) {
	fmt.Printf("Daily Cost Report — %s", d.Date)
	if d.UsedFallback {
		fmt.Print(" (latest available day)")
	}
	fmt.Println()
	fmt.Printf("Total: $%.2f", d.TotalCost)
	if d.TrendPercent != nil {
		fmt.Printf(" (%+.0f%% vs trailing 7-day average)", *d.TrendPercent)
	}
	fmt.Println()

	if len(d.TopServices) > 0 {
		fmt.Println("\nTop services:")
		for _, sc := range d.TopServices {
			fmt.Printf("  %-40s  $%.2f\n", sc.Service, sc.Cost)
		}
	}
	if d.BudgetStatus != nil {
		fmt.Printf("\nBudget: $%.2f of $%.2f (%.0f%%)\n",
			d.BudgetStatus.MonthlySpent, d.BudgetStatus.MonthlyBudget, d.BudgetStatus.MonthlyPercent)
	}
	if d.Forecast != nil {
		fmt.Printf("Forecast: $%.2f end of month (%s confidence)\n",
			d.Forecast.EndOfMonth, d.Forecast.Confidence)
	}
	fmt.Printf("\nAnomalies: %d surfaced (%d critical), %d suppressed\n",
		d.AnomalyCount, d.CriticalCount, d.SuppressedHint)
}

func printWeekly(w *report.Weekly) {
	fmt.Printf("Weekly Cost Report — %s to %s (%d days)\n", w.StartDate, w.EndDate, w.Days)
	fmt.Printf("Total: $%.2f ($%.2f/day average)", w.TotalCost, w.DailyAverage)
	if w.WeekOverWeekPercent != nil {
		fmt.Printf(", %+.0f%% week over week", *w.WeekOverWeekPercent)
	}
	fmt.Println()

	if len(w.TopServices) > 0 {
		fmt.Println("\nTop services this week:")
		for _, sc := range w.TopServices {
			fmt.Printf("  %-40s  $%.2f\n", sc.Service, sc.Cost)
		}
	}
	if w.BudgetStatus != nil {
		fmt.Printf("\nBudget: $%.2f of $%.2f (%.0f%%)\n",
			w.BudgetStatus.MonthlySpent, w.BudgetStatus.MonthlyBudget, w.BudgetStatus.MonthlyPercent)
	}
	fmt.Printf("\nAnomalies: %d this week (%d critical)\n", w.AnomalyCount, w.CriticalCount)
}
