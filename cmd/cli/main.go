package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"metabostat/adapters/excel"
	"metabostat/adapters/rng"
	"metabostat/app"
	"metabostat/internal"
	"metabostat/internal/config"
	"metabostat/internal/errors"
	"metabostat/internal/metrics"
)

// runtimeEnv holds everything the subcommands share once flags and config are resolved
type runtimeEnv struct {
	cfg      *config.Config
	logger   *internal.Logger
	loader   *excel.DatasetLoader
	recorder *metrics.Recorder
	service  *app.SignificanceService
}

var (
	configPath  string
	envPath     string
	logLevel    string
	sheet       string
	workers     int
	metricsPath string

	env *runtimeEnv
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error [%s]: %v\n", errors.Classify(err), err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "metabostat",
		Short:         "Peak-wise ANOVA, two-stage FDR correction and permutation nulls for metabolomics tables",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			env, err = setup(cmd)
			return err
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if env == nil || metricsPath == "" {
				return nil
			}
			return writeMetrics(metricsPath, env.recorder)
		},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML analysis configuration file")
	rootCmd.PersistentFlags().StringVar(&envPath, "env", ".env", "dotenv file loaded before reading the environment")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "ERROR|WARN|INFO|DEBUG|TRACE (overrides LOG_LEVEL)")
	rootCmd.PersistentFlags().StringVar(&sheet, "sheet", "", "xlsx sheet to read (default: first sheet)")
	rootCmd.PersistentFlags().IntVar(&workers, "workers", 0, "concurrent peak fits (default: METABOSTAT_WORKERS or one per CPU)")
	rootCmd.PersistentFlags().StringVar(&metricsPath, "metrics", "", "write Prometheus metrics in text format to this file after the run")

	rootCmd.AddCommand(
		newFormulaCmd(),
		newAnovaCmd(),
		newPermuteCmd(),
		newPreprocessCmd(),
	)

	return rootCmd
}

func setup(cmd *cobra.Command) (*runtimeEnv, error) {
	config.LoadDotEnv(envPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("workers") {
		cfg.Runtime.Workers = workers
	}
	if logLevel != "" {
		cfg.Runtime.LogLevel = logLevel
	}
	if sheet != "" {
		cfg.Analysis.Sheet = sheet
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := internal.NewLoggerTo(os.Stderr, internal.ParseLogLevel(cfg.Runtime.LogLevel))
	loader := excel.NewDatasetLoader(excel.ReaderConfig{Sheet: cfg.Analysis.Sheet}, logger)
	recorder := metrics.NewRecorder()

	return &runtimeEnv{
		cfg:      cfg,
		logger:   logger,
		loader:   loader,
		recorder: recorder,
		service:  app.NewSignificanceService(cfg, loader, loader, rng.NewAdapter(), recorder, logger),
	}, nil
}
