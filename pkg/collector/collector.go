// Package collector drives a feed surface: it scrolls, reads the item links
// that appear, and delivers each new one exactly once.
package collector

import (
	"context"
	"fmt"
	"time"

	ferrors "feedcrawler/pkg/errors"
	"feedcrawler/pkg/ledger"
	"feedcrawler/pkg/logger"
	"feedcrawler/pkg/models"
	"feedcrawler/pkg/ratelimit"
	"feedcrawler/pkg/retry"
	"feedcrawler/pkg/submission"
	"feedcrawler/pkg/surface"
)

// Options tune the scroll loop
type Options struct {
	ContainerPattern string
	ContainerTimeout time.Duration
	// AnchorPatterns are tried in order; the first that matches anything wins
	AnchorPatterns []string
	LinkAttribute  string

	ScrollStep float64
	SettleMin  time.Duration
	SettleMax  time.Duration

	// StaleBound is how many consecutive scrolls without growth or new
	// links end the run
	StaleBound   int
	StaleBackoff time.Duration

	ReloadSettle  time.Duration
	MaxRecoveries int

	DeliveryAttempts int
	DeliveryBackoff  retry.BackoffStrategy
}

// Collector runs one target at a time on its surface
type Collector struct {
	surface   surface.Surface
	ledger    ledger.Ledger
	deliverer submission.Deliverer
	pacer     ratelimit.Limiter
	opts      Options

	logger   logger.Logger
	reporter Reporter
	sleep    ratelimit.SleepFunc
	settle   *ratelimit.Jitter
}

// Option customizes a Collector
type Option func(*Collector)

// WithLogger sets the logger
func WithLogger(l logger.Logger) Option {
	return func(c *Collector) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithReporter sets the progress reporter
func WithReporter(r Reporter) Option {
	return func(c *Collector) {
		if r != nil {
			c.reporter = r
		}
	}
}

// WithSleep replaces the clock used for settle, backoff and recovery waits
func WithSleep(sleep ratelimit.SleepFunc) Option {
	return func(c *Collector) {
		c.sleep = sleep
	}
}

// New creates a collector bound to s
func New(s surface.Surface, l ledger.Ledger, d submission.Deliverer, pacer ratelimit.Limiter, opts Options, options ...Option) *Collector {
	if pacer == nil {
		pacer = ratelimit.None{}
	}
	if opts.LinkAttribute == "" {
		opts.LinkAttribute = "href"
	}
	if opts.StaleBound < 1 {
		opts.StaleBound = 1
	}
	if opts.DeliveryAttempts < 1 {
		opts.DeliveryAttempts = 1
	}
	if opts.DeliveryBackoff == nil {
		opts.DeliveryBackoff = &retry.ConstantBackoff{Delay: 2 * time.Second}
	}

	c := &Collector{
		surface:   s,
		ledger:    l,
		deliverer: d,
		pacer:     pacer,
		opts:      opts,
		logger:    logger.NewNopLogger(),
		reporter:  NopReporter{},
		sleep:     ratelimit.Sleep,
	}
	for _, o := range options {
		o(c)
	}
	c.logger = c.logger.WithField("component", "collector")
	c.settle = ratelimit.NewJitter(opts.SettleMin, opts.SettleMax).WithSleep(c.sleep)
	return c
}

// Collect delivers up to maxItems new references from target and returns
// how many were delivered. Zero is a valid outcome.
func (c *Collector) Collect(ctx context.Context, target string, maxItems int) (int, error) {
	res := c.Run(ctx, target, maxItems)
	return res.Delivered, res.Err
}

// Run is Collect with the full run summary
func (c *Collector) Run(ctx context.Context, target string, maxItems int) models.RunResult {
	sess := models.NewCollectionSession(target, maxItems)
	if maxItems < 0 {
		return sess.Result(ferrors.Newf(ferrors.ErrorTypeConfiguration, "max items must not be negative, got %d", maxItems))
	}
	if maxItems == 0 {
		return sess.Result(nil)
	}

	log := c.logger.WithField("target", target)
	log.InfoWithFields("Collection run started", map[string]interface{}{"max_items": maxItems})
	c.reporter.RunStarted(target, maxItems)

	err := c.loop(ctx, sess, log)

	res := sess.Result(err)
	if err != nil {
		log.WithError(err).Error("Collection run failed")
	}
	logger.LogRunSummary(log, target, res.Delivered, res.Dropped, res.Iterations, res.Recoveries, res.Duration())
	c.reporter.RunFinished(res)
	return res
}

func (c *Collector) loop(ctx context.Context, sess *models.CollectionSession, log logger.Logger) error {
	if err := c.surface.Navigate(ctx, sess.Target); err != nil {
		return c.surfaceErr(ctx, "failed to open target", err)
	}
	if err := c.awaitContainer(ctx); err != nil {
		return err
	}
	extent, err := c.surface.CurrentExtent(ctx)
	if err != nil {
		return c.surfaceErr(ctx, "failed to read page extent", err)
	}
	sess.LastObservedSurfaceExtent = extent

	working := make(map[models.Reference]bool)

	for !sess.Done(c.opts.StaleBound) {
		if err := ctx.Err(); err != nil {
			return err
		}
		sess.Iterations++

		err := c.iterate(ctx, sess, working, log)
		if err == nil {
			continue
		}
		if !ferrors.IsType(err, ferrors.ErrorTypeSurface) || ctx.Err() != nil {
			return err
		}
		if rerr := c.recover(ctx, sess, err, log); rerr != nil {
			return rerr
		}
	}

	if sess.ConsecutiveStaleScrolls >= c.opts.StaleBound {
		log.InfoWithFields("Feed stopped yielding new items", map[string]interface{}{
			"stale_scrolls": sess.ConsecutiveStaleScrolls,
		})
	}
	return nil
}

// iterate runs one query, extract, scroll and progress cycle
func (c *Collector) iterate(ctx context.Context, sess *models.CollectionSession, working map[models.Reference]bool, log logger.Logger) error {
	anchors, err := c.queryAnchors(ctx)
	if err != nil {
		return err
	}

	newSeen := 0
	for _, anchor := range anchors {
		if sess.CollectedCount >= sess.MaxItems {
			return nil
		}

		raw, err := anchor.Attribute(ctx, c.opts.LinkAttribute)
		if err != nil {
			if surface.IsStale(err) {
				log.Debug("Skipping detached anchor")
				continue
			}
			return c.surfaceErr(ctx, "failed to read anchor", err)
		}

		ref := models.Canonicalize(raw)
		if ref.IsZero() || working[ref] {
			continue
		}
		working[ref] = true
		newSeen++
		sess.Discovered++
		c.reporter.ItemDiscovered(sess.Target, ref)

		if err := c.process(ctx, sess, ref, log); err != nil {
			return err
		}
	}
	if sess.CollectedCount >= sess.MaxItems {
		return nil
	}

	if err := c.surface.ScrollBy(ctx, c.opts.ScrollStep); err != nil {
		return c.surfaceErr(ctx, "failed to scroll", err)
	}
	if err := c.settle.Wait(ctx); err != nil {
		return err
	}
	extent, err := c.surface.CurrentExtent(ctx)
	if err != nil {
		return c.surfaceErr(ctx, "failed to read page extent", err)
	}

	if extent == sess.LastObservedSurfaceExtent && newSeen == 0 {
		sess.ConsecutiveStaleScrolls++
		log.DebugWithFields("No progress after scroll", map[string]interface{}{
			"extent": extent,
			"stale":  sess.ConsecutiveStaleScrolls,
		})
		c.reporter.ScrollCompleted(sess.Target, extent, sess.ConsecutiveStaleScrolls)
		if sess.ConsecutiveStaleScrolls < c.opts.StaleBound {
			if err := c.sleep(ctx, c.opts.StaleBackoff); err != nil {
				return err
			}
		}
		return nil
	}

	sess.ConsecutiveStaleScrolls = 0
	sess.LastObservedSurfaceExtent = extent
	c.reporter.ScrollCompleted(sess.Target, extent, 0)
	return nil
}

// queryAnchors returns the matches of the first pattern that has any
func (c *Collector) queryAnchors(ctx context.Context) ([]surface.Element, error) {
	for _, pattern := range c.opts.AnchorPatterns {
		elems, err := c.surface.FindAll(ctx, pattern)
		if err != nil {
			return nil, c.surfaceErr(ctx, "failed to query anchors", err)
		}
		if len(elems) > 0 {
			return elems, nil
		}
	}
	return nil, nil
}

// process delivers ref unless the ledger already has it
func (c *Collector) process(ctx context.Context, sess *models.CollectionSession, ref models.Reference, log logger.Logger) error {
	delivered, err := c.ledger.Contains(ctx, ref)
	if err != nil {
		return asLedgerErr("lookup", err)
	}
	if delivered {
		log.DebugWithFields("Already delivered", map[string]interface{}{"ref": string(ref)})
		return nil
	}

	attempts := 0
	err = retry.Do(func() error {
		attempts++
		return c.deliverer.Deliver(ctx, ref).Err()
	}, &retry.Config{
		Operation:   "deliver",
		MaxAttempts: c.opts.DeliveryAttempts,
		Backoff:     c.opts.DeliveryBackoff,
		Context:     ctx,
		Logger:      log.WithField("ref", string(ref)),
	})
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}

	if err != nil {
		sess.Dropped++
		logger.LogDelivery(log, sess.Target, string(ref), attempts, err)
		c.reporter.ItemDropped(sess.Target, ref, err)
	} else {
		sess.CollectedCount++
		logger.LogDelivery(log, sess.Target, string(ref), attempts, nil)
		c.reporter.ItemDelivered(sess.Target, ref, sess.CollectedCount)

		if err := c.ledger.Record(ctx, ref); err != nil {
			return asLedgerErr("record", err)
		}
	}

	return c.pacer.Wait(ctx)
}

// recover reloads the page after a surface fault
func (c *Collector) recover(ctx context.Context, sess *models.CollectionSession, cause error, log logger.Logger) error {
	sess.Recoveries++
	if sess.Recoveries > c.opts.MaxRecoveries {
		return ferrors.Wrap(ferrors.ErrorTypeSurface,
			fmt.Sprintf("surface still failing after %d recoveries", c.opts.MaxRecoveries), cause)
	}

	log.WithError(cause).WarnWithFields("Surface fault, reloading", map[string]interface{}{
		"recovery": sess.Recoveries,
	})

	if err := c.surface.Reload(ctx); err != nil {
		return c.surfaceErr(ctx, "recovery reload failed", err)
	}
	if err := c.sleep(ctx, c.opts.ReloadSettle); err != nil {
		return err
	}
	if err := c.awaitContainer(ctx); err != nil {
		return err
	}
	extent, err := c.surface.CurrentExtent(ctx)
	if err != nil {
		return c.surfaceErr(ctx, "failed to read page extent", err)
	}
	sess.LastObservedSurfaceExtent = extent

	c.reporter.Recovered(sess.Target, sess.Recoveries, cause)
	return nil
}

func (c *Collector) awaitContainer(ctx context.Context) error {
	if c.opts.ContainerPattern == "" {
		return nil
	}
	if _, err := c.surface.WaitFor(ctx, c.opts.ContainerPattern, c.opts.ContainerTimeout); err != nil {
		return c.surfaceErr(ctx, "feed container did not appear", err)
	}
	return nil
}

// surfaceErr wraps a driver error, passing context errors through
func (c *Collector) surfaceErr(ctx context.Context, msg string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return ferrors.Wrap(ferrors.ErrorTypeSurface, msg, err)
}

func asLedgerErr(op string, err error) error {
	if ferrors.IsType(err, ferrors.ErrorTypeLedger) {
		return err
	}
	return ferrors.Wrap(ferrors.ErrorTypeLedger, "ledger "+op+" failed", err)
}
