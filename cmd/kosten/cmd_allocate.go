package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var (
	allocateMetric string
	allocateFrom   string
	allocateTo     string
	allocateOutput string
)

// allocateCmd represents the allocate command
var allocateCmd = &cobra.Command{
	Use:   "allocate",
	Short: "Manage cost allocation by business unit",
	Long: `Assign resources to business units by rule and report spend per unit.

Allocation rules are CEL predicates evaluated in file order; the first
match wins, anything unmatched lands in the unallocated bucket.
Requires rules_file in the configuration.`,
}

var allocateRunCmd = &cobra.Command{
	Use:     "run",
	Short:   "Reevaluate allocation for every live resource",
	Example: `  kosten allocate run`,
	RunE:    runAllocateRun,
}

var allocateSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Report cost totals per business unit",
	Example: `  kosten allocate summary --metric cost.daily
  kosten allocate summary --metric cost.daily --from 2026-08-01 --to 2026-08-23`,
	RunE: runAllocateSummary,
}

func init() {
	rootCmd.AddCommand(allocateCmd)
	allocateCmd.AddCommand(allocateRunCmd)
	allocateCmd.AddCommand(allocateSummaryCmd)

	allocateSummaryCmd.Flags().StringVarP(&allocateMetric, "metric", "m", "cost.daily", "Cost metric name to sum")
	allocateSummaryCmd.Flags().StringVar(&allocateFrom, "from", "", "Window start (YYYY-MM-DD, default 30 days ago)")
	allocateSummaryCmd.Flags().StringVar(&allocateTo, "to", "", "Window end (YYYY-MM-DD, default now)")
	allocateSummaryCmd.Flags().StringVarP(&allocateOutput, "output", "o", "table", "Output format: table, json")
}

func runAllocateRun(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if a.allocator == nil {
		return fmt.Errorf("no rules_file configured")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	updated, err := a.allocator.ReevaluateAll(ctx)
	if err != nil {
		return fmt.Errorf("reevaluate allocations: %w", err)
	}
	fmt.Printf("Reevaluated %d resource(s)\n", updated)
	return nil
}

func runAllocateSummary(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if a.allocator == nil {
		return fmt.Errorf("no rules_file configured")
	}

	from, to, err := summaryWindow(allocateFrom, allocateTo)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	totals, err := a.allocator.CostSummary(ctx, allocateMetric, from, to)
	if err != nil {
		return fmt.Errorf("cost summary: %w", err)
	}

	if allocateOutput == "json" {
		return json.NewEncoder(os.Stdout).Encode(totals)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "BUSINESS UNIT\tRESOURCES\tTOTAL")
	for _, unit := range totals {
		fmt.Fprintf(w, "%s\t%d\t%s\n", unit.BusinessUnit, unit.Resources, unit.Total.StringFixed(2))
	}
	return w.Flush()
}

func summaryWindow(fromStr, toStr string) (time.Time, time.Time, error) {
	to := time.Now().UTC()
	if toStr != "" {
		parsed, err := time.Parse("2006-01-02", toStr)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --to: %w", err)
		}
		to = parsed
	}
	from := to.AddDate(0, 0, -30)
	if fromStr != "" {
		parsed, err := time.Parse("2006-01-02", fromStr)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --from: %w", err)
		}
		from = parsed
	}
	if !from.Before(to) {
		return time.Time{}, time.Time{}, fmt.Errorf("--from must be before --to")
	}
	return from, to, nil
}
