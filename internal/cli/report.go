package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ppiankov/uicheck/internal/cache"
	"github.com/ppiankov/uicheck/internal/explain"
	"github.com/ppiankov/uicheck/internal/model"
	"github.com/ppiankov/uicheck/internal/report"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	reportPrefixes []string
	reportPath     string
	noCache        bool
)

// reportCmd represents the report command
var reportCmd = &cobra.Command{
	Use:   "report <facts-dir> <spec.dl> <output-dir>",
	Short: "Explain violated relations of one Soufflé run",
	Long: `Report reads the relations Soufflé wrote to <output-dir>, samples up to
report.sample_limit tuples of every relation whose name starts with one of the
prefixes, resolves view identities from <facts-dir>, and asks Soufflé's explain
mode for the derivation of each tuple.

The report is written to <output-dir>/report.json. An existing report is left
untouched; delete it to rebuild.

Example:
  uicheck report app.facts rules/ui.dl out --prefixes unsafe,leak
  UICHECK_EXPLAIN_BINARY=/opt/souffle/bin/souffle uicheck report app.facts rules/ui.dl out -p unsafe`,
	Args: cobra.ExactArgs(3),
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().StringSliceVarP(&reportPrefixes, "prefixes", "p", nil, "relation name prefixes to report (default: report.prefixes)")
	reportCmd.Flags().StringVar(&reportPath, "report", "", "report path (default: <output-dir>/report.json)")
	reportCmd.Flags().BoolVar(&noCache, "no-cache", false, "do not consult the explanation cache")
}

func runReport(cmd *cobra.Command, args []string) error {
	factsDir, specPath, outputDir := args[0], args[1], args[2]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("prefixes") {
		cfg.Report.Prefixes = reportPrefixes
	}
	if noCache {
		cfg.Cache.Enabled = false
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := report.OptionsFrom(cfg, factsDir, specPath, outputDir)
	if reportPath != "" {
		opts.ReportPath = reportPath
	}
	if len(opts.Prefixes) == 0 {
		logger.Warn("no relation prefixes configured, the report will be empty")
	}

	b := report.NewBuilder(opts, newOpener(cfg), logger)
	res, err := b.Build(ctx)
	if err != nil {
		return err
	}

	if res.Skipped {
		fmt.Printf("%s report already exists: %s\n", mutedStyle.Render("-"), res.ReportPath)
		return nil
	}
	return printSummary(res)
}

// newOpener returns the explain session opener for cfg, fronted by the
// explanation cache when enabled
func newOpener(cfg *model.Config) explain.Opener {
	open := explain.NewOpener(explain.ConfigFrom(cfg.Explain, "", ""), logger)
	if !cfg.Cache.Enabled {
		return open
	}
	c := cache.NewLayeredCache(cfg.Cache.MemoryTTL, cfg.Cache.Dir, cfg.Cache.DiskTTL)
	logger.Debug("explanation cache enabled", zap.String("dir", cfg.Cache.Dir))
	return cache.WrapOpener(open, c, cfg.Cache.DiskTTL, logger)
}

func printSummary(res *report.Result) error {
	rep, err := report.ReadJSON(res.ReportPath)
	if err != nil {
		return fmt.Errorf("read back report: %w", err)
	}

	fmt.Println(headerStyle.Render(fmt.Sprintf("%d violated relations, %d sampled tuples", res.Relations, res.Entries)))
	if err := report.NewRenderer().WriteSummary(os.Stdout, rep); err != nil {
		return err
	}
	fmt.Printf("\n%s Wrote %s (%s)\n", okStyle.Render("✓"), res.ReportPath, res.Duration.Round(time.Millisecond))
	return nil
}

