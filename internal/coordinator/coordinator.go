// Package coordinator drives a crawl run: it fans targets out to a bounded
// worker group, runs the per-target retry machine, and assembles the
// RunSummary.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"curatorscan/internal/crawl"
	"curatorscan/internal/metrics"
	"curatorscan/internal/progress"
)

// Config controls run execution.
type Config struct {
	Concurrency int
	// Mode labels navigation metrics: "headless" or "static".
	Mode  string
	Retry RetryPolicy
	// InflightGrace is how long in-flight attempts may keep running after
	// the run context is cancelled before they are hard-cancelled.
	InflightGrace time.Duration
}

// Coordinator executes crawl runs against a handle pool.
type Coordinator struct {
	cfg       Config
	pool      crawl.Pool
	extractor crawl.Extractor
	clock     crawl.Clock
	hub       *progress.Hub
	logger    *zap.Logger
}

// New builds a Coordinator. Zero config fields fall back to defaults.
func New(cfg Config, pool crawl.Pool, extractor crawl.Extractor, clock crawl.Clock, hub *progress.Hub, logger *zap.Logger) *Coordinator {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryPolicy()
	}
	if cfg.InflightGrace <= 0 {
		cfg.InflightGrace = 45 * time.Second
	}
	if cfg.Mode == "" {
		cfg.Mode = "headless"
	}
	return &Coordinator{
		cfg:       cfg,
		pool:      pool,
		extractor: extractor,
		clock:     clock,
		hub:       hub,
		logger:    logger,
	}
}

// Run is a started crawl. Wait blocks for the summary; Records is valid
// once Wait has returned.
type Run struct {
	done    chan struct{}
	records []crawl.Record
	summary crawl.RunSummary
}

// Start launches the run and returns immediately.
func (c *Coordinator) Start(ctx context.Context, targets []crawl.Target) *Run {
	r := &Run{done: make(chan struct{})}
	go func() {
		defer close(r.done)
		r.records, r.summary = c.execute(ctx, targets)
	}()
	return r
}

// Wait blocks until the run finishes and returns its summary. Pass a
// context independent of the run's: a cancelled run still ends with a
// partial summary worth collecting.
func (r *Run) Wait(ctx context.Context) (crawl.RunSummary, error) {
	select {
	case <-r.done:
		return r.summary, nil
	case <-ctx.Done():
		return crawl.RunSummary{}, fmt.Errorf("waiting for run: %w", ctx.Err())
	}
}

// Records returns the successful records in seed order. Nil until the run
// has finished.
func (r *Run) Records() []crawl.Record {
	select {
	case <-r.done:
		return r.records
	default:
		return nil
	}
}

type outcome struct {
	rec     crawl.Record
	ok      bool
	failure crawl.Failure
	done    bool
}

func (c *Coordinator) execute(ctx context.Context, targets []crawl.Target) ([]crawl.Record, crawl.RunSummary) {
	metrics.Init()
	start := c.clock.Now()
	summary := crawl.RunSummary{
		RunID:     uuid.NewString(),
		StartedAt: start,
		Attempted: len(targets),
	}
	c.hub.Info("", fmt.Sprintf("run started (%d targets)", len(targets)))
	c.logger.Info("run started",
		zap.String("run_id", summary.RunID),
		zap.Int("targets", len(targets)),
		zap.Int("concurrency", c.cfg.Concurrency))

	// Cancelling the run context stops dispatch but gives in-flight
	// attempts a grace window before the work context hard-cancels them.
	workCtx, cancelWork := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWork()
	finished := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			select {
			case <-time.After(c.cfg.InflightGrace):
				cancelWork()
			case <-finished:
			}
		case <-finished:
		}
	}()

	// Outcomes are indexed by seed position so the returned records keep
	// seed order regardless of completion order.
	outcomes := make([]outcome, len(targets))
	jobs := make(chan int)

	var eg errgroup.Group
	for w := 0; w < c.cfg.Concurrency; w++ {
		eg.Go(func() error {
			for i := range jobs {
				rec, failure := c.processTarget(workCtx, ctx, targets[i])
				if failure == nil {
					outcomes[i] = outcome{rec: rec, ok: true, done: true}
				} else {
					outcomes[i] = outcome{failure: *failure, done: true}
				}
			}
			return nil
		})
	}

dispatch:
	for i := range targets {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break dispatch
		}
	}
	close(jobs)
	_ = eg.Wait()
	close(finished)

	var records []crawl.Record
	for i := range outcomes {
		switch {
		case outcomes[i].ok:
			summary.Succeeded++
			records = append(records, outcomes[i].rec)
		case outcomes[i].done:
			summary.Failed++
			summary.Failures = append(summary.Failures, outcomes[i].failure)
		default:
			summary.Skipped++
			metrics.ObserveTarget("skipped")
		}
	}
	summary.Elapsed = c.clock.Now().Sub(start)

	c.hub.Info("", fmt.Sprintf("run finished: %d succeeded, %d failed, %d skipped",
		summary.Succeeded, summary.Failed, summary.Skipped))
	c.logger.Info("run finished",
		zap.String("run_id", summary.RunID),
		zap.Duration("elapsed", summary.Elapsed),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped))
	return records, summary
}

// processTarget runs the retry machine for one target. ctx is the work
// context attempts run under; runCtx gates whether another attempt may
// start and aborts the backoff wait between attempts.
func (c *Coordinator) processTarget(ctx, runCtx context.Context, t crawl.Target) (crawl.Record, *crawl.Failure) {
	c.hub.Info(t.ID, "fetching "+t.URL)
	for attempt := 1; ; attempt++ {
		rec, err := c.attempt(ctx, t)
		if err == nil {
			c.hub.Info(t.ID, "extracted "+rec.Key)
			metrics.ObserveTarget("succeeded")
			return rec, nil
		}

		if runCtx.Err() != nil || !c.cfg.Retry.ShouldRetry(err, attempt) {
			return crawl.Record{}, c.giveUp(t, attempt, err)
		}

		metrics.ObserveRetry()
		delay := c.cfg.Retry.Backoff(attempt)
		c.hub.Warn(t.ID, fmt.Sprintf("attempt %d failed, retrying in %s: %v", attempt, delay, err))
		c.logger.Warn("attempt failed, retrying",
			zap.String("target", t.ID),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err))
		if sleepErr := sleepCtx(ctx, runCtx, delay); sleepErr != nil {
			return crawl.Record{}, c.giveUp(t, attempt, err)
		}
	}
}

func (c *Coordinator) giveUp(t crawl.Target, attempts int, err error) *crawl.Failure {
	c.hub.Error(t.ID, fmt.Sprintf("giving up after %d attempt(s): %v", attempts, err))
	c.logger.Error("target failed",
		zap.String("target", t.ID),
		zap.Int("attempts", attempts),
		zap.Error(err))
	metrics.ObserveTarget("failed")
	return &crawl.Failure{
		TargetID: t.ID,
		Attempts: attempts,
		Kind:     crawl.Classify(err),
		Reason:   err.Error(),
	}
}

// attempt is one acquire-navigate-extract cycle. A corrupted handle is
// reported unhealthy on release so the pool replaces it.
func (c *Coordinator) attempt(ctx context.Context, t crawl.Target) (crawl.Record, error) {
	h, err := c.pool.Acquire(ctx)
	if err != nil {
		return crawl.Record{}, fmt.Errorf("acquire handle: %w", err)
	}
	metrics.IncHandlesInUse()

	navStart := time.Now()
	page, err := h.Navigate(ctx, t)
	metrics.ObserveNavigation(c.cfg.Mode, time.Since(navStart))

	c.pool.Release(h, !errors.Is(err, crawl.ErrHandleCorrupted))
	metrics.DecHandlesInUse()
	if err != nil {
		return crawl.Record{}, err
	}

	extractStart := time.Now()
	rec, err := c.extractor.Extract(page)
	metrics.ObserveExtraction(time.Since(extractStart))
	if err != nil {
		return crawl.Record{}, err
	}
	rec.DiscoveredAt = c.clock.Now()
	return rec, nil
}
