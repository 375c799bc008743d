// File: cmd/models.go
package cmd

import (
	"encoding/csv"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/lancet/internal/models"
)

// newModelsCmd groups the method-flow table inspection commands.
func newModelsCmd() *cobra.Command {
	modelsCmd := &cobra.Command{
		Use:   "models",
		Short: "Inspect method-flow model tables",
	}
	modelsCmd.AddCommand(newModelsListCmd())
	modelsCmd.AddCommand(newModelsCheckCmd())
	return modelsCmd
}

func newModelsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print the effective model table",
		Long: `Prints the builtin method-flow table with any configured extra tables
layered on top, in the same CSV layout the loader accepts.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig()
			if err != nil {
				return err
			}
			modelStore, err := models.NewDefaultStore(cfg.Analysis.ModelPaths...)
			if err != nil {
				return err
			}

			w := csv.NewWriter(cmd.OutOrStdout())
			if err := w.Write([]string{"namespace", "type", "subtypes", "name", "signature", "arguments"}); err != nil {
				return err
			}
			for _, row := range modelStore.Rows() {
				record := []string{
					row.Namespace,
					row.Type,
					strconv.FormatBool(row.Subtypes),
					row.Name,
					row.Signature,
					row.Arguments,
				}
				if err := w.Write(record); err != nil {
					return err
				}
			}
			w.Flush()
			return w.Error()
		},
	}
}

func newModelsCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <table.csv>",
		Short: "Validate a method-flow table",
		Long: `Loads a table the way a scan would and reports each row whose arguments
column will be ignored: it neither parses as Argument[x] or Argument[x..y]
nor is empty. Such a row still matches calls, and by matching suppresses the
builtin rules, but it flows nothing.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rows, err := models.LoadFile(args[0])
			if err != nil {
				return err
			}

			warnings := 0
			for _, row := range rows {
				// An empty arguments column is a deliberate suppression row.
				if row.Arguments == "" {
					continue
				}
				if _, ok := row.ArgumentRange(); !ok {
					warnings++
					cmd.Printf("warning: %s %s: arguments %q not recognized, row matches without flowing anything\n",
						row.FullyQualifiedType(), row.MatcherName(), row.Arguments)
				}
			}
			cmd.Printf("%s: %d row(s), %d warning(s)\n", args[0], len(rows), warnings)
			return nil
		},
	}
}
