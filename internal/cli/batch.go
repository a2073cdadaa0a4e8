package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ppiankov/uicheck/internal/report"
	"github.com/ppiankov/uicheck/internal/worker"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var concurrency int

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch <jobs.yaml>",
	Short: "Build reports for many Soufflé runs in parallel",
	Long: `Batch builds one report per job listed in a YAML file:

  jobs:
    - name: calculator
      facts_dir: apps/calculator.facts
      spec: rules/ui.dl
      output_dir: out/calculator
      prefixes: [unsafe]

Relative paths are resolved against the jobs file. Each job runs its own
Soufflé explain session; session launches are throttled by
batch.launches_per_second. A failing job does not stop the others.

Example:
  uicheck batch jobs.yaml --concurrency 4`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().IntVar(&concurrency, "concurrency", 0, "number of concurrent builds (default: batch.concurrency)")
	batchCmd.Flags().BoolVar(&noCache, "no-cache", false, "do not consult the explanation cache")
}

func runBatch(cmd *cobra.Command, args []string) error {
	file := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if concurrency > 0 {
		cfg.Batch.Concurrency = concurrency
	}
	if noCache {
		cfg.Cache.Enabled = false
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	limiter := worker.NewLaunchLimiter(cfg.Batch.LaunchesPerSecond, cfg.Batch.Burst)
	open := limiter.Throttle(newOpener(cfg))

	factory := func(job worker.BatchJob) worker.Builder {
		opts := report.OptionsFrom(cfg, job.FactsDir, job.Spec, job.OutputDir)
		if len(job.Prefixes) > 0 {
			opts.Prefixes = job.Prefixes
		}
		return report.NewBuilder(opts, open, logger.With(zap.String("job", job.Name)))
	}

	processor := worker.NewBatchProcessor(factory, cfg.Batch.Concurrency, logger)
	results, err := processor.ProcessFile(ctx, file)
	if err != nil {
		return err
	}

	failures := 0
	for _, r := range results {
		switch {
		case r.Error != nil:
			failures++
			fmt.Printf("%s %s: %v\n", failStyle.Render("✗"), r.Job.Name, r.Error)
		case r.Report.Skipped:
			fmt.Printf("%s %s: report exists (%s)\n", mutedStyle.Render("-"), r.Job.Name, r.Report.ReportPath)
		default:
			fmt.Printf("%s %s: %d relations, %d tuples, %d unexplained\n",
				okStyle.Render("✓"), r.Job.Name, r.Report.Relations, r.Report.Entries, r.Report.Unexplained)
		}
	}

	fmt.Printf("\n%s\n", headerStyle.Render(fmt.Sprintf("%d jobs, %d failed", len(results), failures)))
	if failures > 0 {
		return fmt.Errorf("%d of %d jobs failed", failures, len(results))
	}
	return nil
}
