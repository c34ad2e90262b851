// Package cmd defines and implements the CLI commands for the batchfetch
// executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/webharvest/batchfetch/internal/batch"
	"github.com/webharvest/batchfetch/internal/config"
	"github.com/webharvest/batchfetch/internal/fetcher"
	"github.com/webharvest/batchfetch/internal/fetcher/collyfetch"
	"github.com/webharvest/batchfetch/internal/fetcher/fetchcache"
	"github.com/webharvest/batchfetch/internal/fetcher/httpfetch"
	"github.com/webharvest/batchfetch/internal/logging"
	"github.com/webharvest/batchfetch/internal/metrics"
	"github.com/webharvest/batchfetch/internal/progress"
)

var (
	cfgFile string
	devMode bool
)

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batchfetch",
		Short: "Bounded-concurrency, rate-limited batch URL fetcher",
		Long: `batchfetch retrieves many URLs under a shared concurrency and rate
budget, isolating per-item failures so one bad URL never aborts the batch,
and reports per-item results alongside aggregate statistics.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML)")
	cmd.PersistentFlags().BoolVar(&devMode, "dev", false, "enable development logging")

	cmd.AddCommand(newFetchCmd())
	cmd.AddCommand(newServeCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadServices builds the logger, config, and batch runner shared by the
// fetch and serve commands.
func loadServices() (config.Config, *zap.Logger, *batch.Runner, *progress.Hub, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return config.Config{}, nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(logging.Options{
		Development: devMode || cfg.Logging.Development,
		Level:       cfg.Logging.Level,
	})
	if err != nil {
		return config.Config{}, nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}

	metrics.Init()

	f, err := buildFetcher(cfg)
	if err != nil {
		return config.Config{}, nil, nil, nil, err
	}

	hub := progress.NewHub(logger, progress.NewLogSink(logger), progress.PrometheusSink{})
	runner := batch.New(f, logger, hub)
	return cfg, logger, runner, hub, nil
}

func buildFetcher(cfg config.Config) (fetcher.Fetcher, error) {
	var f fetcher.Fetcher
	switch cfg.Fetch.Fetcher {
	case "colly":
		f = collyfetch.New(collyfetch.Config{
			UserAgent: cfg.Fetch.UserAgent,
			Timeout:   cfg.Fetch.Timeout(),
		})
	case "http", "":
		f = httpfetch.New(httpfetch.Config{UserAgent: cfg.Fetch.UserAgent})
	default:
		return nil, fmt.Errorf("unknown fetcher %q", cfg.Fetch.Fetcher)
	}

	if cfg.Cache.Enabled {
		f = fetchcache.New(f, fetchcache.Config{
			Capacity: cfg.Cache.Capacity,
			TTL:      cfg.Cache.TTL(),
		})
	}
	return f, nil
}
