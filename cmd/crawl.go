package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"curatorscan/internal/clock/system"
	"curatorscan/internal/config"
	"curatorscan/internal/coordinator"
	"curatorscan/internal/crawl"
	"curatorscan/internal/csvstore"
	"curatorscan/internal/extract"
	"curatorscan/internal/logging"
	"curatorscan/internal/merge"
	"curatorscan/internal/metrics"
	"curatorscan/internal/navigator"
	"curatorscan/internal/progress"
	"curatorscan/internal/queue"
)

type crawlFlags struct {
	seedsFile      string
	inputCSV       string
	outputFile     string
	exportNewOnly  bool
	newOnlyFile    string
	concurrency    int
	noHeadless     bool
	scrollUntilEnd bool
	static         bool
	resume         string
	metricsAddr    string
}

func newCrawlCmd() *cobra.Command {
	flags := &crawlFlags{}
	cmd := &cobra.Command{
		Use:   "crawl [SEED...]",
		Short: "Crawl profile pages and merge the results into the result set",
		Long: `Visits each seed's profile page with a pool of navigation handles,
extracts the public contact surface, and merges the records into the prior
result set. Seeds are identifiers expanded through the configured URL
template, or full http(s) URLs used as-is.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCrawl(cmd, flags, args)
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.seedsFile, "seeds-file", "", "file with one seed identifier per line ('#' comments allowed)")
	f.StringVar(&flags.inputCSV, "input-csv", "", "prior result set to merge into (default: the output file)")
	f.StringVar(&flags.outputFile, "output-file", "", "merged result set destination")
	f.BoolVar(&flags.exportNewOnly, "export-new-only", false, "also write the records absent from the prior set")
	f.StringVar(&flags.newOnlyFile, "new-only-file", "", "destination for the new-only subset")
	f.IntVar(&flags.concurrency, "concurrency", 0, "navigation handles and workers")
	f.BoolVar(&flags.noHeadless, "no-headless", false, "run the browser with a visible window")
	f.BoolVar(&flags.scrollUntilEnd, "scroll-until-end", false, "scroll until the page stops growing instead of a fixed number of rounds")
	f.BoolVar(&flags.static, "static", false, "fetch with plain HTTP instead of a browser")
	f.StringVar(&flags.resume, "resume", "", "skip seeds before this identifier")
	f.StringVar(&flags.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	return cmd
}

func runCrawl(cmd *cobra.Command, flags *crawlFlags, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	applyFlagOverrides(cmd, flags, cfg)
	if cfg.Output.ExportNewOnly && cfg.Output.NewOnlyFile == "" {
		cfg.Output.NewOnlyFile = deriveNewOnlyPath(cfg.Output.OutputFile)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	metrics.Init()
	if cfg.Metrics.ListenAddr != "" {
		go serveMetrics(cfg.Metrics.ListenAddr, logger)
	}

	var seeds []string
	if flags.seedsFile != "" {
		lines, err := queue.ReadLines(flags.seedsFile)
		if err != nil {
			return err
		}
		seeds = append(seeds, lines...)
	}
	seeds = append(seeds, args...)

	load, err := queue.Load(seeds, queue.Options{
		URLTemplate: cfg.Crawl.URLTemplate,
		Resume:      cfg.Crawl.Resume,
	})
	if err != nil {
		return err
	}
	for _, inv := range load.Invalid {
		logger.Warn("invalid seed", zap.String("seed", inv.TargetID), zap.String("reason", inv.Reason))
	}

	inputPath := cfg.Output.InputCSV
	if inputPath == "" {
		inputPath = cfg.Output.OutputFile
	}
	previous, err := csvstore.Read(inputPath)
	if err != nil {
		return fmt.Errorf("load prior result set: %w", err)
	}
	logger.Info("prior result set loaded",
		zap.String("path", inputPath),
		zap.Int("records", len(previous)),
		zap.Int("targets", len(load.Targets)))

	factory, closeNav, mode, err := buildNavigation(cfg, logger)
	if err != nil {
		return err
	}
	defer closeNav()

	pool, err := navigator.NewHandlePool(cfg.Crawl.Concurrency, factory, logger)
	if err != nil {
		return err
	}

	hub := progress.NewHub(progress.DefaultDepth)
	defer hub.Close()
	go mirrorProgress(hub.Subscribe(context.Background()), logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	coord := coordinator.New(coordinator.Config{
		Concurrency: cfg.Crawl.Concurrency,
		Mode:        mode,
		Retry: coordinator.RetryPolicy{
			MaxAttempts: cfg.Crawl.MaxAttempts,
			BaseDelay:   cfg.Crawl.RetryBaseDelay,
			MaxDelay:    cfg.Crawl.RetryMaxDelay,
		},
		InflightGrace: cfg.Crawl.InflightGrace,
	}, pool, extract.New(), system.New(), hub, logger)

	run := coord.Start(ctx, load.Targets)
	summary, err := run.Wait(context.Background())
	if err != nil {
		return err
	}
	foldQueueOutcome(&summary, load)

	closeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := pool.Close(closeCtx); err != nil {
		logger.Warn("closing handle pool", zap.Error(err))
	}

	merged, newOnly := merge.Merge(previous, run.Records())
	metrics.ObserveDiscovered(len(newOnly))
	metrics.SetResultSetSize(len(merged))

	if err := csvstore.Write(cfg.Output.OutputFile, merged); err != nil {
		return fmt.Errorf("write result set: %w", err)
	}
	if cfg.Output.ExportNewOnly {
		if err := csvstore.Write(cfg.Output.NewOnlyFile, newOnly); err != nil {
			return fmt.Errorf("write new-only set: %w", err)
		}
	}

	logSummary(logger, summary, len(newOnly), len(merged), cfg.Output.OutputFile)
	return nil
}

func applyFlagOverrides(cmd *cobra.Command, flags *crawlFlags, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("concurrency") {
		cfg.Crawl.Concurrency = flags.concurrency
	}
	if f.Changed("input-csv") {
		cfg.Output.InputCSV = flags.inputCSV
	}
	if f.Changed("output-file") {
		cfg.Output.OutputFile = flags.outputFile
	}
	if f.Changed("export-new-only") {
		cfg.Output.ExportNewOnly = flags.exportNewOnly
	}
	if f.Changed("new-only-file") {
		cfg.Output.NewOnlyFile = flags.newOnlyFile
		cfg.Output.ExportNewOnly = true
	}
	if f.Changed("no-headless") {
		cfg.Browser.Headless = !flags.noHeadless
	}
	if f.Changed("scroll-until-end") {
		cfg.Browser.ScrollUntilEnd = flags.scrollUntilEnd
	}
	if f.Changed("static") {
		cfg.Browser.Static = flags.static
	}
	if f.Changed("resume") {
		cfg.Crawl.Resume = flags.resume
	}
	if f.Changed("metrics-addr") {
		cfg.Metrics.ListenAddr = flags.metricsAddr
	}
}

// buildNavigation picks the handle factory for the configured mode and
// returns its teardown.
func buildNavigation(cfg *config.Config, logger *zap.Logger) (navigator.Factory, func(), string, error) {
	if cfg.Browser.Static {
		client := navigator.NewStatic(navigator.StaticConfig{
			UserAgent: cfg.Browser.UserAgent,
			Timeout:   cfg.Browser.NavigationTimeout,
			QPS:       cfg.Browser.QPS,
		})
		return client.NewHandle, func() { _ = client.Close() }, "static", nil
	}

	browser, err := navigator.NewBrowser(navigator.BrowserConfig{
		Headless:          cfg.Browser.Headless,
		UserAgent:         cfg.Browser.UserAgent,
		NavigationTimeout: cfg.Browser.NavigationTimeout,
		ScrollUntilEnd:    cfg.Browser.ScrollUntilEnd,
		MaxScrolls:        cfg.Browser.MaxScrolls,
		QPS:               cfg.Browser.QPS,
	}, logger)
	if err != nil {
		return nil, nil, "", fmt.Errorf("start browser: %w", err)
	}
	return browser.NewHandle, func() { _ = browser.Close() }, "headless", nil
}

// mirrorProgress drains the hub into debug logs so the live feed is visible
// with -v logging without duplicating the coordinator's own output.
func mirrorProgress(events <-chan progress.Event, logger *zap.Logger) {
	for ev := range events {
		logger.Debug("progress",
			zap.String("level", string(ev.Level)),
			zap.String("target", ev.TargetID),
			zap.String("msg", ev.Message))
	}
}

func logSummary(logger *zap.Logger, summary crawl.RunSummary, discovered, total int, output string) {
	logger.Info("crawl summary",
		zap.String("run_id", summary.RunID),
		zap.Duration("elapsed", summary.Elapsed),
		zap.Int("attempted", summary.Attempted),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped),
		zap.Int("new_records", discovered),
		zap.Int("result_set", total),
		zap.String("output", output))
	for _, f := range summary.Failures {
		logger.Warn("target failed",
			zap.String("target", f.TargetID),
			zap.String("kind", string(f.Kind)),
			zap.Int("attempts", f.Attempts),
			zap.String("reason", f.Reason))
	}
}

// foldQueueOutcome accounts for seeds that never reached the coordinator:
// malformed seeds and resume skips join the attempted count so the summary
// partition (attempted = succeeded + failed + skipped) still holds.
func foldQueueOutcome(summary *crawl.RunSummary, load queue.Result) {
	summary.Attempted += len(load.Invalid) + load.Skipped
	summary.Failed += len(load.Invalid)
	summary.Failures = append(summary.Failures, load.Invalid...)
	summary.Skipped += load.Skipped
	for range load.Invalid {
		metrics.ObserveTarget("failed")
	}
	for i := 0; i < load.Skipped; i++ {
		metrics.ObserveTarget("skipped")
	}
}

func deriveNewOnlyPath(output string) string {
	if strings.HasSuffix(output, ".csv") {
		return strings.TrimSuffix(output, ".csv") + ".new.csv"
	}
	return output + ".new"
}

func serveMetrics(addr string, logger *zap.Logger) {
	logger.Info("metrics endpoint listening", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, metrics.Router()); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Warn("metrics endpoint stopped", zap.Error(err))
	}
}
