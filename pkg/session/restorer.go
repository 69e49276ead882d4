// Package session authenticates a surface by replaying a saved credential
// bundle, and captures new bundles from an interactive login.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"feedcrawler/pkg/cookies"
	ferrors "feedcrawler/pkg/errors"
	"feedcrawler/pkg/logger"
	"feedcrawler/pkg/ratelimit"
	"feedcrawler/pkg/retry"
	"feedcrawler/pkg/surface"
)

// Options locate the site and its logged-in marker
type Options struct {
	Origin        string
	PrimaryDomain string
	ProbePattern  string
	ProbeTimeout  time.Duration
	SettleDelay   time.Duration
}

// Restorer loads a bundle into a surface and verifies the login
type Restorer struct {
	surface surface.Surface
	opts    Options
	logger  logger.Logger
	sleep   ratelimit.SleepFunc
}

// NewRestorer binds a restorer to s
func NewRestorer(s surface.Surface, opts Options, log logger.Logger) *Restorer {
	if log == nil {
		log = logger.NewNopLogger()
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = 10 * time.Second
	}
	return &Restorer{
		surface: s,
		opts:    opts,
		logger:  log.WithField("component", "session"),
		sleep:   ratelimit.Sleep,
	}
}

// WithSleep replaces the clock, for tests
func (r *Restorer) WithSleep(sleep ratelimit.SleepFunc) *Restorer {
	r.sleep = sleep
	return r
}

// Restore replays the bundle at path and probes for the logged-in marker.
//
// A missing or record-less bundle fails with a configuration error before
// the surface is touched. A probe that never matches yields (false, nil).
// Surface faults while navigating or reloading yield (false, err).
func (r *Restorer) Restore(ctx context.Context, path string) (bool, error) {
	bundle, err := cookies.LoadBundle(path, r.opts.PrimaryDomain, r.logger)
	if err != nil {
		return false, err
	}

	if err := r.surface.Navigate(ctx, r.opts.Origin); err != nil {
		return false, ferrors.Wrap(ferrors.ErrorTypeSurface, "failed to open origin", err)
	}
	if err := r.sleep(ctx, r.opts.SettleDelay); err != nil {
		return false, err
	}

	if err := r.surface.ClearCookies(ctx); err != nil {
		return false, ferrors.Wrap(ferrors.ErrorTypeSurface, "failed to clear cookies", err)
	}

	injected := 0
	for _, rec := range bundle.Records {
		if err := r.surface.SetCookie(ctx, rec); err != nil {
			r.logger.WithError(err).WarnWithFields("Cookie rejected", map[string]interface{}{
				"name":   rec.Name,
				"domain": rec.Domain,
			})
			continue
		}
		injected++
	}
	r.logger.InfoWithFields("Cookies injected", map[string]interface{}{
		"injected": injected,
		"total":    len(bundle.Records),
		"skipped":  len(bundle.Skipped),
	})

	if err := r.surface.Reload(ctx); err != nil {
		return false, ferrors.Wrap(ferrors.ErrorTypeSurface, "failed to reload origin", err)
	}

	if _, err := r.surface.WaitFor(ctx, r.opts.ProbePattern, r.opts.ProbeTimeout); err != nil {
		if surface.IsTimeout(err) {
			r.logger.Warn("Login marker not found after restoring cookies")
			return false, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
		return false, ferrors.Wrap(ferrors.ErrorTypeSurface, "login probe failed", err)
	}

	r.logger.Info("Session restored")
	return true, nil
}

// RestoreWithRetry calls Restore up to attempts times, delay apart. A false
// result counts as a retryable authentication failure; configuration errors
// are returned at once.
func (r *Restorer) RestoreWithRetry(ctx context.Context, path string, attempts int, delay time.Duration) error {
	return retry.Do(func() error {
		ok, err := r.Restore(ctx, path)
		if err != nil {
			return err
		}
		if !ok {
			return ferrors.New(ferrors.ErrorTypeAuthentication, "login marker not found")
		}
		return nil
	}, &retry.Config{
		Operation:   "session restore",
		MaxAttempts: attempts,
		Backoff:     &retry.ConstantBackoff{Delay: delay},
		Context:     ctx,
		Logger:      r.logger,
	})
}

// Capture opens the origin, waits for confirm to return (the user logs in
// by hand meanwhile), then saves the surface's cookies to path.
func Capture(ctx context.Context, s surface.Surface, origin, path string, confirm func() error, log logger.Logger) (int, error) {
	if log == nil {
		log = logger.NewNopLogger()
	}

	if err := s.Navigate(ctx, origin); err != nil {
		return 0, ferrors.Wrap(ferrors.ErrorTypeSurface, "failed to open origin", err)
	}
	if err := confirm(); err != nil {
		return 0, fmt.Errorf("capture aborted: %w", err)
	}

	recs, err := s.Cookies(ctx)
	if err != nil {
		return 0, ferrors.Wrap(ferrors.ErrorTypeSurface, "failed to read cookies", err)
	}
	if len(recs) == 0 {
		return 0, errors.New("browser holds no cookies; log in before confirming")
	}

	if missing := cookies.MissingEssential(recs); len(missing) > 0 {
		log.WarnWithFields("Captured session lacks essential cookies", map[string]interface{}{
			"missing": missing,
		})
	}

	if err := cookies.SaveBundle(path, recs); err != nil {
		return 0, err
	}
	log.InfoWithFields("Cookie bundle saved", map[string]interface{}{
		"path":    path,
		"cookies": len(recs),
	})
	return len(recs), nil
}
