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

	"github.com/user/composablestudio/internal/types"
)

func init() {
	rootCmd.AddCommand(contentCmd)
	contentCmd.AddCommand(contentModelCmd, contentEntryCmd)
	contentModelCmd.AddCommand(contentModelImportCmd, contentModelListCmd, contentModelRemoveCmd)
	contentEntryCmd.AddCommand(contentEntryAddCmd, contentEntryListCmd)

	contentModelImportCmd.Flags().String("composition", "", "record the import in this composition's history")
	contentEntryAddCmd.Flags().String("composition", "", "composition the entry is created for (required)")
	contentEntryAddCmd.Flags().String("data", "", "entry data as a JSON object (required)")
	_ = contentEntryAddCmd.MarkFlagRequired("composition")
	_ = contentEntryAddCmd.MarkFlagRequired("data")
}

var contentCmd = &cobra.Command{
	Use:   "content",
	Short: "Manage content models and entries",
}

var contentModelCmd = &cobra.Command{
	Use:   "model",
	Short: "Manage content models",
}

var contentEntryCmd = &cobra.Command{
	Use:   "entry",
	Short: "Manage content entries",
}

var contentModelImportCmd = &cobra.Command{
	Use:   "import <file.yaml>",
	Short: "Create content models from a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		composition, _ := cmd.Flags().GetString("composition")

		models, err := loadModelFile(args[0])
		if err != nil {
			return err
		}

		svc, closeFn, err := localStudio()
		if err != nil {
			return err
		}
		defer closeFn()

		ctx := context.Background()
		for _, m := range models {
			var created *types.ContentModel
			if composition != "" {
				created, _, err = svc.CreateContentModel(ctx, types.CompositionID(composition), m)
			} else {
				created, err = svc.DefineContentModel(ctx, m)
			}
			if err != nil {
				return errors.Wrapf(err, "import model %q", m.Name)
			}
			fmt.Fprintf(os.Stdout, "Model %q imported as %s (%d fields).\n", created.Name, created.ID, len(created.Fields))
		}
		return nil
	},
}

var contentModelListCmd = &cobra.Command{
	Use:   "list",
	Short: "List content models",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, closeFn, err := localStudio()
		if err != nil {
			return err
		}
		defer closeFn()

		models, err := svc.ListContentModels(context.Background())
		if err != nil {
			return errors.Wrap(err, "list models")
		}
		if len(models) == 0 {
			fmt.Println("No content models found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tFIELDS\tCREATED")
		for _, m := range models {
			names := make([]string, len(m.Fields))
			for i, f := range m.Fields {
				names[i] = f.Name
				if f.Required {
					names[i] += "*"
				}
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				m.ID,
				m.Name,
				strings.Join(names, ", "),
				m.CreatedAt.Format("2006-01-02 15:04:05"),
			)
		}
		return w.Flush()
	},
}

var contentModelRemoveCmd = &cobra.Command{
	Use:   "remove <model-id>",
	Short: "Delete a content model and all of its entries",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, closeFn, err := localStudio()
		if err != nil {
			return err
		}
		defer closeFn()

		if err := svc.DeleteContentModel(context.Background(), types.ModelID(args[0])); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Model %s removed.\n", args[0])
		return nil
	},
}

var contentEntryAddCmd = &cobra.Command{
	Use:   "add <model-id>",
	Short: "Create a content entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		composition, _ := cmd.Flags().GetString("composition")
		raw, _ := cmd.Flags().GetString("data")

		var data map[string]any
		if err := json.Unmarshal([]byte(raw), &data); err != nil {
			return errors.Wrap(err, "parse --data")
		}

		svc, closeFn, err := localStudio()
		if err != nil {
			return err
		}
		defer closeFn()

		entry, _, err := svc.CreateContentEntry(context.Background(), types.CompositionID(composition), types.ModelID(args[0]), data)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Entry %s created.\n", entry.ID)
		return nil
	},
}

var contentEntryListCmd = &cobra.Command{
	Use:   "list <model-id>",
	Short: "List the entries of a content model as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, closeFn, err := localStudio()
		if err != nil {
			return err
		}
		defer closeFn()

		entries, err := svc.ListContentEntries(context.Background(), types.ModelID(args[0]))
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	},
}
