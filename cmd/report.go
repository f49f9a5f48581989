package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/attribution-engine/internal/audit"
	"github.com/sells-group/attribution-engine/internal/report"
)

var reportCmd = &cobra.Command{
	Use:       "report [attribution|confidence|coverage|consistency]",
	Short:     "Print derived attribution reports",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"attribution", "confidence", "coverage", "consistency"},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		svc := report.NewService(st).WithTrustGate(audit.TrustGate{
			MinAverageCoverage: cfg.Audit.MinCoverage,
		}).WithConsistencyThreshold(cfg.Audit.ConsistencyThreshold)

		var out any
		switch args[0] {
		case "attribution":
			out, err = svc.Attribution(ctx)
		case "confidence":
			out, err = svc.Confidence(ctx)
		case "coverage":
			out, err = svc.Coverage(ctx)
		case "consistency":
			out, err = svc.Consistency(ctx)
		}
		if err != nil {
			return eris.Wrapf(err, "report %s", args[0])
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show per-source sync checkpoints",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		cps, err := report.NewService(st).SyncStatus(ctx)
		if err != nil {
			return err
		}
		for _, cp := range cps {
			line := fmt.Sprintf("%-10s %-12s processed=%d", cp.Source, cp.Status, cp.ProcessedCount)
			if !cp.LastAttemptAt.IsZero() {
				line += " last=" + cp.LastAttemptAt.Format("2006-01-02 15:04:05")
			}
			if cp.LastError != "" {
				line += " error=" + cp.LastError
			}
			fmt.Println(line)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(statusCmd)
}
