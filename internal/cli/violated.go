package cli

import (
	"fmt"
	"io"

	"github.com/ppiankov/uicheck/internal/tuple"
	"github.com/spf13/cobra"
)

var violatedExt string

// violatedCmd represents the violated command
var violatedCmd = &cobra.Command{
	Use:   "violated <output-dir>",
	Short: "List relations with at least one tuple",
	Long: `Violated lists every relation file in a Soufflé output directory that
holds at least one tuple. No explanation is computed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ext := cfg.Report.TupleExt
		if violatedExt != "" {
			ext = violatedExt
		}
		return listViolated(cmd.OutOrStdout(), args[0], ext)
	},
}

func init() {
	rootCmd.AddCommand(violatedCmd)
	violatedCmd.Flags().StringVar(&violatedExt, "ext", "", "tuple file extension (default: report.tuple_ext)")
}

func listViolated(w io.Writer, dir, ext string) error {
	files, err := tuple.List(dir, ext)
	if err != nil {
		return err
	}

	var violated []string
	for _, f := range files {
		ok, err := tuple.NonEmpty(f.Path)
		if err != nil {
			return err
		}
		if ok {
			violated = append(violated, f.Relation)
		}
	}

	if len(violated) == 0 {
		_, err := fmt.Fprintln(w, okStyle.Render("No violated relations"))
		return err
	}
	if _, err := fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("Violated (%d):", len(violated)))); err != nil {
		return err
	}
	for _, name := range violated {
		if _, err := fmt.Fprintln(w, "  "+violatedStyle.Render(name)); err != nil {
			return err
		}
	}
	return nil
}
