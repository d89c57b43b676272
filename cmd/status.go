package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show per-source ingestion state",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		states, err := env.Store.GetAllSourceStates(cmd.Context())
		if err != nil {
			return err
		}
		stats, err := env.Store.GetPermitStats(cmd.Context())
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SOURCE\tRUNNING\tFETCHED\tUPSERTED\tERRORS\tCURSOR\tSTATUS")
		for _, st := range states {
			cursor := "-"
			if st.LastMaxRecordID != nil {
				cursor = fmt.Sprintf("%d", *st.LastMaxRecordID)
			} else if st.LastIssueDate != nil {
				cursor = *st.LastIssueDate
			}
			fmt.Fprintf(w, "%d\t%v\t%d\t%d\t%d\t%s\t%s\n",
				st.SourceID, st.IsRunning, st.RowsFetched, st.RowsUpserted,
				st.Errors, cursor, st.StatusMessage)
		}
		if err := w.Flush(); err != nil {
			return err
		}

		fmt.Printf("\npermits: %d total, %d with coordinates, %d roofing\n",
			stats.Total, stats.WithCoordinates, stats.Roofing)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
