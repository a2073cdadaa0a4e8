package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ppiankov/uicheck/internal/model"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Version is set at build time with -ldflags "-X ...cli.Version=..."
var Version = "v0.3.0"

var (
	cfgFile string
	verbose bool
	logger  = zap.NewNop()
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "uicheck",
	Short: "uicheck - explain UI rule violations found by Soufflé",
	Long: `uicheck turns the output of a Soufflé run over Android UI facts into a
report of violated rules.

For every violated relation it samples a handful of tuples, names the views
involved (directly or through their containing views), and asks Soufflé's
explain mode why each tuple was derived.`,
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		l, err := newLogger(cfg.Log, verbose)
		if err != nil {
			return fmt.Errorf("initialize logger: %w", err)
		}
		logger = l
		if f := viper.ConfigFileUsed(); f != "" {
			logger.Debug("using config file", zap.String("path", f))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("uicheck " + Version)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.uicheck/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	rootCmd.AddCommand(versionCmd)
}

// initConfig reads in config file and ENV variables
func initConfig() {
	setDefaults(viper.GetViper(), model.DefaultConfig())

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			return
		}
		viper.AddConfigPath(filepath.Join(home, ".uicheck"))
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// UICHECK_EXPLAIN_LAUNCH_TIMEOUT overrides explain.launch_timeout
	viper.SetEnvPrefix("UICHECK")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	_ = viper.ReadInConfig()
}

// setDefaults registers every configuration key so environment variables
// can override keys absent from the config file
func setDefaults(v *viper.Viper, d *model.Config) {
	v.SetDefault("explain.binary", d.Explain.Binary)
	v.SetDefault("explain.args", d.Explain.Args)
	v.SetDefault("explain.prompt", d.Explain.Prompt)
	v.SetDefault("explain.launch_timeout", d.Explain.LaunchTimeout)
	v.SetDefault("explain.prompt_timeout", d.Explain.PromptTimeout)
	v.SetDefault("explain.flush_query", d.Explain.FlushQuery)
	v.SetDefault("explain.scratch_dir", d.Explain.ScratchDir)
	v.SetDefault("explain.temp_dir", d.Explain.TempDir)

	v.SetDefault("report.prefixes", d.Report.Prefixes)
	v.SetDefault("report.sample_limit", d.Report.SampleLimit)
	v.SetDefault("report.tuple_ext", d.Report.TupleExt)
	v.SetDefault("report.file_name", d.Report.FileName)
	v.SetDefault("report.identity_types", d.Report.IdentityTypes)
	v.SetDefault("report.progress_interval", d.Report.ProgressInterval)

	v.SetDefault("facts.ext", d.Facts.Ext)
	v.SetDefault("facts.text_content", d.Facts.TextContent)

	v.SetDefault("cache.enabled", d.Cache.Enabled)
	v.SetDefault("cache.dir", d.Cache.Dir)
	v.SetDefault("cache.memory_ttl", d.Cache.MemoryTTL)
	v.SetDefault("cache.disk_ttl", d.Cache.DiskTTL)

	v.SetDefault("batch.concurrency", d.Batch.Concurrency)
	v.SetDefault("batch.launches_per_second", d.Batch.LaunchesPerSecond)
	v.SetDefault("batch.burst", d.Batch.Burst)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// loadConfig returns the effective configuration: defaults, then the config
// file, then UICHECK_* variables
func loadConfig() (*model.Config, error) {
	return decodeConfig(viper.GetViper())
}

// decodeConfig starts from a zero Config: every key has a registered
// default, and decoding into pre-filled slices would keep stale elements
func decodeConfig(v *viper.Viper) (*model.Config, error) {
	cfg := &model.Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// newLogger builds the process logger: JSON on stderr, or the development
// encoder when log.format is "console"
func newLogger(c model.LogConfig, debug bool) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	if c.Format == "console" {
		config = zap.NewDevelopmentConfig()
	}

	level := zapcore.InfoLevel
	if c.Level != "" {
		l, err := zapcore.ParseLevel(c.Level)
		if err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
		level = l
	}
	if debug {
		level = zapcore.DebugLevel
	}
	config.Level = zap.NewAtomicLevelAt(level)

	return config.Build()
}
