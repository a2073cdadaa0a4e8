package cli

import (
	"fmt"
	"os"

	"github.com/ppiankov/uicheck/internal/decl"
	"github.com/ppiankov/uicheck/internal/facts"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// forestCmd represents the forest command
var forestCmd = &cobra.Command{
	Use:   "forest <spec.dl> <facts-dir>",
	Short: "Print the view containment forest",
	Long: `Forest prints every root view and, indented below it, the views it
contains, annotated with their id names and classes. A view reachable along
more than one path is expanded once and marked with "..." afterwards.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		spec, err := decl.Parse(args[0])
		if err != nil {
			return fmt.Errorf("parse spec: %w", err)
		}
		index, err := facts.Load(args[1], spec, facts.Options{
			Ext:         cfg.Facts.Ext,
			TextContent: cfg.Facts.TextContent,
			Logger:      logger,
		})
		if err != nil {
			return fmt.Errorf("load facts: %w", err)
		}
		logger.Debug("facts loaded", zap.Any("rows", index.Stats()))

		return index.Forest(os.Stdout, func(s string) string { return idStyle.Render(s) })
	},
}

func init() {
	rootCmd.AddCommand(forestCmd)
}
