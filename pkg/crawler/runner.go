// Package crawler orchestrates whole crawl runs: it opens a surface per
// target, restores the session, collects with a run-level retry and records
// the outcome.
package crawler

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"feedcrawler/pkg/checkpoint"
	"feedcrawler/pkg/collector"
	"feedcrawler/pkg/config"
	ferrors "feedcrawler/pkg/errors"
	"feedcrawler/pkg/ledger"
	"feedcrawler/pkg/logger"
	"feedcrawler/pkg/models"
	"feedcrawler/pkg/ratelimit"
	"feedcrawler/pkg/retry"
	"feedcrawler/pkg/session"
	"feedcrawler/pkg/submission"
	"feedcrawler/pkg/surface"
)

// SurfaceFactory opens a fresh surface for one target
type SurfaceFactory func(ctx context.Context) (surface.Surface, error)

// Options configure a Runner
type Options struct {
	BundlePath      string
	Session         session.Options
	RestoreAttempts int
	RestoreDelay    time.Duration

	Collector collector.Options

	// RunAttempts bounds how often a target is collected again after a
	// surface fault the collector could not recover from
	RunAttempts   int
	RunRetryDelay time.Duration
	Parallelism   int
}

// OptionsFromConfig maps the loaded configuration onto runner options
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		BundlePath: cfg.Session.BundlePath,
		Session: session.Options{
			Origin:        cfg.Session.Origin,
			PrimaryDomain: cfg.Session.PrimaryDomain,
			ProbePattern:  cfg.Session.ProbePattern,
			ProbeTimeout:  cfg.Session.ProbeTimeout,
			SettleDelay:   cfg.Session.SettleDelay,
		},
		RestoreAttempts: cfg.Session.Attempts,
		RestoreDelay:    cfg.Session.RetryDelay,
		Collector: collector.Options{
			ContainerPattern: cfg.Crawl.ContainerPattern,
			ContainerTimeout: cfg.Crawl.ContainerTimeout,
			AnchorPatterns:   cfg.AnchorPatterns(),
			LinkAttribute:    cfg.Crawl.LinkAttribute,
			ScrollStep:       cfg.Crawl.ScrollStep,
			SettleMin:        cfg.Crawl.SettleMin,
			SettleMax:        cfg.Crawl.SettleMax,
			StaleBound:       cfg.Crawl.StaleBound,
			StaleBackoff:     cfg.Crawl.StaleBackoff,
			ReloadSettle:     cfg.Crawl.ReloadSettle,
			MaxRecoveries:    cfg.Crawl.MaxRecoveries,
			DeliveryAttempts: cfg.Submission.MaxAttempts,
			DeliveryBackoff:  retry.NewBackoff(cfg.Submission.RetryPolicy, cfg.Submission.RetryDelay),
		},
		RunAttempts:   cfg.Crawl.RunAttempts,
		RunRetryDelay: cfg.Crawl.RunRetryDelay,
		Parallelism:   cfg.Crawl.Parallelism,
	}
}

// Runner crawls a list of targets
type Runner struct {
	factory   SurfaceFactory
	claims    *claims
	deliverer submission.Deliverer
	pacer     ratelimit.Limiter
	opts      Options

	logger   logger.Logger
	reporter collector.Reporter
	history  *checkpoint.Manager
	onResult func(models.RunResult)
	sleep    ratelimit.SleepFunc

	// pacer is shared by every target, so concurrent targets queue on it
	paceMu sync.Mutex
}

// Option customizes a Runner
type Option func(*Runner)

// WithLogger sets the logger
func WithLogger(l logger.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithReporter forwards collector progress to rep. Given more than once,
// every reporter receives every event.
func WithReporter(rep collector.Reporter) Option {
	return func(r *Runner) {
		if rep == nil {
			return
		}
		switch cur := r.reporter.(type) {
		case nil, collector.NopReporter:
			r.reporter = rep
		case collector.MultiReporter:
			r.reporter = append(cur[:len(cur):len(cur)], rep)
		default:
			r.reporter = collector.MultiReporter{cur, rep}
		}
	}
}

// WithHistory records every finished target in h
func WithHistory(h *checkpoint.Manager) Option {
	return func(r *Runner) {
		r.history = h
	}
}

// WithResultHandler calls fn once per finished target
func WithResultHandler(fn func(models.RunResult)) Option {
	return func(r *Runner) {
		r.onResult = fn
	}
}

// WithSleep replaces the clock for every wait the runner and its
// collectors perform
func WithSleep(sleep ratelimit.SleepFunc) Option {
	return func(r *Runner) {
		if sleep != nil {
			r.sleep = sleep
		}
	}
}

// New creates a runner. Every target gets its own surface from factory;
// the ledger, deliverer and pacer are shared. The runner does not close l.
func New(factory SurfaceFactory, l ledger.Ledger, d submission.Deliverer, pacer ratelimit.Limiter, opts Options, options ...Option) *Runner {
	if pacer == nil {
		pacer = ratelimit.None{}
	}
	if opts.RestoreAttempts < 1 {
		opts.RestoreAttempts = 1
	}
	if opts.RunAttempts < 1 {
		opts.RunAttempts = 1
	}
	if opts.Parallelism < 1 {
		opts.Parallelism = 1
	}

	r := &Runner{
		factory:   factory,
		claims:    newClaims(l),
		deliverer: d,
		opts:      opts,
		logger:    logger.NewNopLogger(),
		reporter:  collector.NopReporter{},
		sleep:     ratelimit.Sleep,
	}
	for _, o := range options {
		o(r)
	}
	r.logger = r.logger.WithField("component", "crawler")
	r.pacer = &serialLimiter{mu: &r.paceMu, inner: pacer}
	return r
}

// Run crawls every target and returns one result per target in input
// order. A failing target does not stop the others; their errors are
// joined into the returned error.
func (r *Runner) Run(ctx context.Context, targets []config.TargetConfig) ([]models.RunResult, error) {
	if len(targets) == 0 {
		return nil, ferrors.New(ferrors.ErrorTypeConfiguration, "no targets configured")
	}

	logger.LogComponentStart(r.logger, "crawler", map[string]interface{}{
		"targets":      len(targets),
		"parallelism":  r.opts.Parallelism,
		"run_attempts": r.opts.RunAttempts,
	})

	results := make([]models.RunResult, len(targets))
	var g errgroup.Group
	g.SetLimit(r.opts.Parallelism)

	for i, target := range targets {
		g.Go(func() error {
			results[i] = r.RunTarget(ctx, target)
			return nil
		})
	}
	_ = g.Wait()

	var errs []error
	delivered := 0
	for _, res := range results {
		delivered += res.Delivered
		if res.Err != nil {
			errs = append(errs, res.Err)
		}
	}

	r.logger.InfoWithFields("Crawl finished", map[string]interface{}{
		"targets":   len(targets),
		"delivered": delivered,
		"failed":    len(errs),
	})
	return results, errors.Join(errs...)
}

// RunTarget crawls a single target on its own surface
func (r *Runner) RunTarget(ctx context.Context, target config.TargetConfig) models.RunResult {
	log := r.logger.WithField("target", target.URL)
	res := r.runTarget(ctx, target, log)

	if r.history != nil {
		if _, err := r.history.Record(res); err != nil {
			log.WithError(err).Warn("Failed to record run history")
		}
	}
	if r.onResult != nil {
		r.onResult(res)
	}
	return res
}

func (r *Runner) runTarget(ctx context.Context, target config.TargetConfig, log logger.Logger) models.RunResult {
	started := time.Now()
	failed := func(err error) models.RunResult {
		return models.RunResult{
			Target:     target.URL,
			StartedAt:  started,
			FinishedAt: time.Now(),
			Err:        err,
		}
	}

	if target.MaxItems < 0 {
		return failed(ferrors.Newf(ferrors.ErrorTypeConfiguration, "max items must not be negative, got %d", target.MaxItems))
	}

	s, err := r.factory(ctx)
	if err != nil {
		return failed(ferrors.Wrap(ferrors.ErrorTypeSurface, "failed to open surface", err))
	}
	defer func() {
		if err := s.Close(); err != nil {
			log.WithError(err).Warn("Failed to close surface")
		}
	}()

	restorer := session.NewRestorer(s, r.opts.Session, log).WithSleep(r.sleep)
	if err := restorer.RestoreWithRetry(ctx, r.opts.BundlePath, r.opts.RestoreAttempts, r.opts.RestoreDelay); err != nil {
		log.WithError(err).Error("Session restore failed")
		return failed(err)
	}

	c := collector.New(s, r.claims.view(), r.deliverer, r.pacer, r.opts.Collector,
		collector.WithLogger(log),
		collector.WithReporter(r.reporter),
		collector.WithSleep(r.sleep),
	)

	var total models.RunResult
	for attempt := 1; ; attempt++ {
		remaining := target.MaxItems - total.Delivered
		res := c.Run(ctx, target.URL, remaining)
		if attempt == 1 {
			total = res
		} else {
			total = total.Merge(res)
		}

		if res.Err == nil || !ferrors.IsType(res.Err, ferrors.ErrorTypeSurface) || ctx.Err() != nil {
			break
		}
		if attempt >= r.opts.RunAttempts || total.Delivered >= target.MaxItems {
			break
		}

		log.WithError(res.Err).WarnWithFields("Run failed, retrying", map[string]interface{}{
			"attempt":   attempt,
			"remaining": target.MaxItems - total.Delivered,
		})
		if err := r.sleep(ctx, r.opts.RunRetryDelay); err != nil {
			total.Err = err
			break
		}
	}
	return total
}

// serialLimiter lets concurrent targets share one pacer without
// interleaving their waits
type serialLimiter struct {
	mu    *sync.Mutex
	inner ratelimit.Limiter
}

func (s *serialLimiter) Wait(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.Wait(ctx)
}

func (s *serialLimiter) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inner.Reset()
}
