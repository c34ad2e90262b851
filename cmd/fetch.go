package cmd

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/webharvest/batchfetch/internal/batch"
)

type fetchFlags struct {
	file           string
	maxConcurrent  int
	ratePerSecond  int
	timeoutSeconds int
	failFast       bool
}

// newFetchCmd creates the 'fetch' subcommand: run one batch and print the
// report as JSON.
func newFetchCmd() *cobra.Command {
	flags := &fetchFlags{}
	cmd := &cobra.Command{
		Use:   "fetch [urls...]",
		Short: "Fetch a batch of URLs and print the report",
		Long: `Fetches the given URLs (or those listed one-per-line in --file) under
the configured concurrency and rate budget, then prints the per-item
results and aggregate statistics as JSON on stdout.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetchCommand(cmd, args, flags)
		},
	}

	cmd.Flags().StringVar(&flags.file, "file", "", "file with one URL per line")
	cmd.Flags().IntVar(&flags.maxConcurrent, "max-concurrent", 0, "max in-flight fetches (0 = config default)")
	cmd.Flags().IntVar(&flags.ratePerSecond, "rate", -1, "requests per second, 0 disables (-1 = config default)")
	cmd.Flags().IntVar(&flags.timeoutSeconds, "timeout", 0, "per-item timeout in seconds (0 = config default)")
	cmd.Flags().BoolVar(&flags.failFast, "fail-fast", false, "fail the whole batch on the first item failure")

	return cmd
}

func runFetchCommand(cmd *cobra.Command, args []string, flags *fetchFlags) error {
	cfg, logger, runner, hub, err := loadServices()
	if err != nil {
		return err
	}
	defer func() {
		hub.Close()
		_ = logger.Sync()
	}()

	urls, err := collectURLs(args, flags.file)
	if err != nil {
		return err
	}

	opts := batch.Options{
		MaxConcurrent:  cfg.Fetch.MaxConcurrent,
		RatePerSecond:  batch.Rate(cfg.Fetch.RatePerSecond),
		PerItemTimeout: cfg.Fetch.Timeout(),
		FailFast:       cfg.Fetch.FailFast || flags.failFast,
	}
	if flags.maxConcurrent > 0 {
		opts.MaxConcurrent = flags.maxConcurrent
	}
	if flags.ratePerSecond >= 0 {
		opts.RatePerSecond = batch.Rate(flags.ratePerSecond)
	}
	if flags.timeoutSeconds > 0 {
		opts.PerItemTimeout = time.Duration(flags.timeoutSeconds) * time.Second
	}

	report, err := runner.Run(cmd.Context(), urls, opts)
	if err != nil {
		var ffErr *batch.FailFastError
		if errors.As(err, &ffErr) {
			logger.Warn("batch failed fast", zap.String("url", ffErr.URL))
		}
		return fmt.Errorf("run batch: %w", err)
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(report); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}

func collectURLs(args []string, file string) ([]string, error) {
	urls := append([]string(nil), args...)
	if file == "" {
		if len(urls) == 0 {
			return nil, errors.New("no URLs given: pass them as arguments or via --file")
		}
		return urls, nil
	}

	f, err := os.Open(file)
	if err != nil {
		return nil, fmt.Errorf("open url file: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read url file: %w", err)
	}
	if len(urls) == 0 {
		return nil, errors.New("no URLs given: pass them as arguments or via --file")
	}
	return urls, nil
}
