package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/user/composablestudio/internal/types"
)

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().Int("limit", 50, "number of most recent entries to show (0 for all)")
}

var historyCmd = &cobra.Command{
	Use:   "history <composition-id>",
	Short: "Show the audit log of a composition",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		svc, closeFn, err := localStudio()
		if err != nil {
			return err
		}
		defer closeFn()

		entries, err := svc.History(context.Background(), types.CompositionID(args[0]), limit)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("No history recorded.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SEQ\tTIME\tACTION\tDESCRIPTION")
		for _, e := range entries {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n",
				e.Seq,
				e.Timestamp.Format("2006-01-02 15:04:05"),
				e.Action,
				e.Description,
			)
		}
		return w.Flush()
	},
}
