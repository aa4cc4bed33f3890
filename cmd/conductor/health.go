package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/xraph/conductor/engine"
	"github.com/xraph/conductor/health"
)

func newHealthCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Print queue health and scaling recommendations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger, err := newLogger(cmd, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			asJSON, _ := cmd.Flags().GetBool("json")

			eng, err := engine.Build(cfg, engine.WithLogger(logger))
			if err != nil {
				return err
			}
			if err := eng.Store().Ping(cmd.Context()); err != nil {
				return fmt.Errorf("store unreachable: %w", err)
			}
			snaps, err := eng.Monitor().SnapshotAll(cmd.Context())
			if err != nil {
				return err
			}
			recs := make([]health.Recommendation, len(snaps))
			for i, s := range snaps {
				recs[i] = eng.Monitor().Advisor().Recommend(s)
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(recs)
			}
			return printRecommendations(cmd.OutOrStdout(), recs)
		},
	}
	cmd.Flags().Bool("json", false, "Print recommendations as JSON")
	return cmd
}

func printRecommendations(w io.Writer, recs []health.Recommendation) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TYPE\tSTATUS\tWAITING\tACTIVE\tCONGESTION\tFAILURE\tACTION\tWORKERS")
	for _, r := range recs {
		s := r.Snapshot
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%.2f\t%.2f\t%s\t%d→%d\n",
			s.JobType, s.Status, s.Counts.Waiting, s.Counts.Active,
			s.CongestionRatio, s.FailureRate, r.Action, r.CurrentWorkers, r.RecommendedWorkers)
	}
	return tw.Flush()
}
