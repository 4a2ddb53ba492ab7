package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/isdmx/plotbox/config"
	"github.com/isdmx/plotbox/storage"
	"github.com/isdmx/plotbox/storage/sqlite"
)

var (
	statusFilter string
	limitFlag    int
)

var runsCmd = &cobra.Command{
	Use:   "runs [run-id]",
	Short: "List recorded runs, or show one",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runRuns,
}

func init() {
	rootCmd.AddCommand(runsCmd)

	runsCmd.Flags().StringVar(&statusFilter, "status", "", "Filter by status (success, rejected, failed)")
	runsCmd.Flags().IntVar(&limitFlag, "limit", 20, "Max runs to show")
}

func openLedger() (storage.Store, error) {
	cfg, err := config.Load(configFlag)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return sqlite.OpenFromConfig(cfg)
}

func runRuns(cmd *cobra.Command, args []string) error {
	ledger, err := openLedger()
	if err != nil {
		return err
	}
	defer ledger.Close()

	out := cmd.OutOrStdout()

	if len(args) == 1 {
		run, err := ledger.GetRun(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	}

	runs, err := ledger.ListRuns(cmd.Context(), storage.ListOptions{Status: statusFilter, Limit: limitFlag})
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs found.")
		return nil
	}

	fmt.Fprintf(out, "%-36s %-8s %-9s %-18s %-8s %s\n", "ID", "LANG", "STATUS", "KIND", "TOOK", "CREATED")
	fmt.Fprintln(out, strings.Repeat("─", 100))
	for _, r := range runs {
		fmt.Fprintf(out, "%-36s %-8s %-9s %-18s %-8s %s\n",
			r.ID, r.Language, r.Status, r.ErrorKind, r.Duration.Round(time.Millisecond), r.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	}
	return nil
}
