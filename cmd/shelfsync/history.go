package main

import (
	"context"
	"fmt"
	"io"
	"shelfsync/internal/adapters/tracker"
	"shelfsync/internal/core/domain/ports"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newHistoryCmd(configFile *string) *cobra.Command {
	var (
		limit int
		runID string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List past import runs from the ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, *configFile)
			if err != nil {
				return err
			}
			if cfg.LedgerPath == "" {
				return fmt.Errorf("no ledger configured")
			}

			ledger, err := tracker.NewLedger(cfg.LedgerPath)
			if err != nil {
				return err
			}
			defer ledger.Close()

			if runID != "" {
				return printRows(cmd.Context(), cmd.OutOrStdout(), ledger, runID)
			}
			return printRuns(cmd.Context(), cmd.OutOrStdout(), ledger, limit)
		},
	}

	cmd.Flags().String("ledger", "", "Run ledger database")
	cmd.Flags().IntVar(&limit, "limit", 10, "Number of runs to list")
	cmd.Flags().StringVar(&runID, "run", "", "Show the row outcomes of one run")

	return cmd
}

func printRuns(ctx context.Context, out io.Writer, ledger ports.RunLedger, limit int) error {
	runs, err := ledger.ListRuns(ctx, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tSTARTED\tACTOR\tSOURCE\tDRY RUN\tTOTAL\tSUBMITTED\tSKIPPED\tFAILED\tEXCLUDED")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%d\t%d\t%d\t%d\t%d\n",
			r.ID, r.StartedAt.Local().Format(time.DateTime), r.ActorDID, r.Source, r.DryRun,
			r.Total, r.Submitted, r.Skipped, r.Failed, r.Excluded)
	}
	return w.Flush()
}

func printRows(ctx context.Context, out io.Writer, ledger ports.RunLedger, runID string) error {
	rows, err := ledger.ListRows(ctx, runID)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("no rows recorded for run %s", runID)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ROW\tBOOK\tRESULT\tKEY\tRECORD")
	for _, r := range rows {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", r.Index, r.Label, r.Result, r.Key, r.RecordURI)
	}
	return w.Flush()
}
