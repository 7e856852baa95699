// Package cli provides the command-line interface for starting and watching
// extraction runs.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/timmy/reportextract/internal/client"
	"github.com/timmy/reportextract/internal/config"
	"github.com/timmy/reportextract/internal/logger"
	"github.com/timmy/reportextract/internal/tracker"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	configPath string
	interval   time.Duration
	noWatch    bool
	verbose    bool

	cfg       *config.Config
	appLogger *logger.Logger
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "extract",
	Short: "Start and watch data extraction runs",
	Long: `Extract starts data extraction runs for iModels, or for every iModel
feeding a report, and watches them until they finish.

Run states are polled at most once per tracker.status_check_interval;
the watch loop asks for them every --interval.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" {
			return nil
		}

		logCfg := logger.LoadFromEnv("extract")
		logCfg.Output = os.Stderr
		if os.Getenv("LOG_FORMAT") == "" {
			logCfg.Format = "text"
		}
		if verbose {
			logCfg.Level = "debug"
		}
		appLogger = logger.New(logCfg)
		logger.SetDefaultLogger(appLogger)

		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		if !cmd.Flags().Changed("interval") && cfg.Tracker.PollInterval > 0 {
			interval = cfg.Tracker.PollInterval
		}
		if interval <= 0 {
			return fmt.Errorf("--interval must be positive")
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Sync()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")
	rootCmd.PersistentFlags().DurationVarP(&interval, "interval", "i", 2*time.Second, "how often to query run states while watching")
	rootCmd.PersistentFlags().BoolVar(&noWatch, "no-watch", false, "start runs and exit without watching them")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(reportsCmd)
	rootCmd.AddCommand(imodelsCmd)
}

// newTracker wires the REST clients from cfg into a Tracker.
func newTracker() *tracker.Tracker {
	token := client.StaticToken(cfg.Auth.Token)
	extraction := client.NewExtractionClient(&client.Config{
		BaseURL: cfg.Extraction.BaseURL,
		Timeout: cfg.Extraction.Timeout,
		Token:   token,
	})
	reports := client.NewReportsClient(&client.Config{
		BaseURL: cfg.Reports.BaseURL,
		Timeout: cfg.Reports.Timeout,
		Token:   token,
	})

	opts := []tracker.Option{tracker.WithLogger(appLogger)}
	if cfg.Tracker.StatusCheckInterval > 0 {
		opts = append(opts, tracker.WithStatusCheckInterval(cfg.Tracker.StatusCheckInterval))
	}
	return tracker.New(extraction, reports, opts...)
}

// commandContext returns a context cancelled on SIGINT/SIGTERM.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = appLogger.WithContext(ctx)
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}
