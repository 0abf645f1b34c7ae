package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/user/composablestudio/internal/compose"
	"github.com/user/composablestudio/internal/studio"
	"github.com/user/composablestudio/internal/types"
)

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionNewCmd, sessionListCmd, sessionShowCmd, sessionAdvanceCmd, sessionResetCmd, sessionDeleteCmd)
}

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage composition sessions",
}

var sessionNewCmd = &cobra.Command{
	Use:   "new <name>",
	Short: "Start a new composition",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, closeFn, err := localStudio()
		if err != nil {
			return err
		}
		defer closeFn()

		snap, err := svc.Create(context.Background(), strings.Join(args, " "))
		if err != nil {
			return errors.Wrap(err, "create composition")
		}
		fmt.Fprintf(os.Stdout, "Composition %s created (%s).\n", snap.Composition.ID, snap.Composition.Name)
		return nil
	},
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all compositions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, closeFn, err := localStudio()
		if err != nil {
			return err
		}
		defer closeFn()

		list, err := svc.List(context.Background())
		if err != nil {
			return errors.Wrap(err, "list compositions")
		}
		if len(list) == 0 {
			fmt.Println("No compositions found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tSTEP\tUPDATED")
		for _, c := range list {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				c.ID,
				c.Name,
				c.Step,
				c.UpdatedAt.Format("2006-01-02 15:04:05"),
			)
		}
		return w.Flush()
	},
}

var sessionShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print the full snapshot of a composition as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, closeFn, err := localStudio()
		if err != nil {
			return err
		}
		defer closeFn()

		snap, err := svc.Snapshot(context.Background(), types.CompositionID(args[0]))
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	},
}

var sessionAdvanceCmd = &cobra.Command{
	Use:   "advance <id> <step>",
	Short: "Move a composition to the next step of the guided flow",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, closeFn, err := localStudio()
		if err != nil {
			return err
		}
		defer closeFn()

		id := types.CompositionID(args[0])
		snap, err := svc.Advance(context.Background(), id, types.Step(args[1]))
		if compose.IsInvalidTransition(err) {
			current, getErr := svc.Snapshot(context.Background(), id)
			if getErr == nil {
				return errors.Errorf("%v (allowed: %s)", err, allowedSteps(current))
			}
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Composition %s is now at %s.\n", id, snap.State.Step)
		return nil
	},
}

func allowedSteps(snap *studio.Snapshot) string {
	next := compose.AllowedNext(snap.State.Step)
	if len(next) == 0 {
		return "none"
	}
	names := make([]string, len(next))
	for i, s := range next {
		names[i] = string(s)
	}
	return strings.Join(names, ", ")
}

var sessionResetCmd = &cobra.Command{
	Use:   "reset <id>",
	Short: "Return a composition to the start of the guided flow",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, closeFn, err := localStudio()
		if err != nil {
			return err
		}
		defer closeFn()

		if _, err := svc.Reset(context.Background(), types.CompositionID(args[0])); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Composition %s reset.\n", args[0])
		return nil
	},
}

var sessionDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a composition (its history is kept)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, closeFn, err := localStudio()
		if err != nil {
			return err
		}
		defer closeFn()

		if err := svc.Delete(context.Background(), types.CompositionID(args[0])); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Composition %s deleted.\n", args[0])
		return nil
	},
}
