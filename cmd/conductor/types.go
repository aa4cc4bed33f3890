package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/xraph/conductor/jobtype"
)

func newTypesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List the job type registry",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TYPE\tQUEUE\tCONCURRENCY\tATTEMPTS\tBACKOFF")
			for _, t := range jobtype.All {
				spec := jobtype.MustLookup(t)
				conc := spec.DefaultConcurrency
				if n, ok := cfg.Concurrency[t.String()]; ok {
					conc = n
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s %s\n",
					t, spec.Queue, conc, spec.MaxAttempts, spec.Backoff.Type, spec.Backoff.BaseDelay)
			}
			return tw.Flush()
		},
	}
}
