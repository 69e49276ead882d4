package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter paces outgoing work
type Limiter interface {
	// Wait blocks until the next action may proceed or ctx is done
	Wait(ctx context.Context) error
	// Reset clears any accumulated state
	Reset()
}

// SleepFunc waits d or until ctx is done
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the real-clock SleepFunc
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Jitter waits a uniformly random duration in [Min, Max] on every call
type Jitter struct {
	min, max time.Duration
	sleep    SleepFunc

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewJitter returns a Jitter pacing between min and max. A max below min
// is raised to min.
func NewJitter(min, max time.Duration) *Jitter {
	if max < min {
		max = min
	}
	return &Jitter{
		min:   min,
		max:   max,
		sleep: Sleep,
		rnd:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// WithSleep replaces the clock, for tests
func (j *Jitter) WithSleep(sleep SleepFunc) *Jitter {
	j.sleep = sleep
	return j
}

// Next draws the next delay without waiting
func (j *Jitter) Next() time.Duration {
	if j.max == j.min {
		return j.min
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.min + time.Duration(j.rnd.Int63n(int64(j.max-j.min)+1))
}

// Wait sleeps for the next random delay
func (j *Jitter) Wait(ctx context.Context) error {
	return j.sleep(ctx, j.Next())
}

// Reset is a no-op; Jitter is stateless between calls
func (j *Jitter) Reset() {}

// Throttle caps throughput with a token bucket refilled requestsPerMinute
// times a minute.
type Throttle struct {
	limiter *rate.Limiter
	perMin  int
	burst   int
}

// NewThrottle creates a throttle; requestsPerMinute <= 0 means unlimited
func NewThrottle(requestsPerMinute, burst int) *Throttle {
	if burst < 1 {
		burst = 1
	}
	limit := rate.Inf
	if requestsPerMinute > 0 {
		limit = rate.Limit(float64(requestsPerMinute) / 60.0)
	}
	return &Throttle{
		limiter: rate.NewLimiter(limit, burst),
		perMin:  requestsPerMinute,
		burst:   burst,
	}
}

// Wait blocks until a token is available
func (t *Throttle) Wait(ctx context.Context) error {
	return t.limiter.Wait(ctx)
}

// Reset refills the bucket. It must not race with Wait.
func (t *Throttle) Reset() {
	t.limiter = rate.NewLimiter(t.limiter.Limit(), t.burst)
}

// Chain waits on each limiter in order
type Chain []Limiter

func (c Chain) Wait(ctx context.Context) error {
	for _, l := range c {
		if err := l.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (c Chain) Reset() {
	for _, l := range c {
		l.Reset()
	}
}

// None never waits
type None struct{}

func (None) Wait(ctx context.Context) error { return ctx.Err() }
func (None) Reset()                         {}

// NewPacer builds the delivery pacer: jitter in [paceMin, paceMax], then the
// throttle when requestsPerMinute is positive.
func NewPacer(paceMin, paceMax time.Duration, requestsPerMinute, burst int) Limiter {
	chain := Chain{NewJitter(paceMin, paceMax)}
	if requestsPerMinute > 0 {
		chain = append(chain, NewThrottle(requestsPerMinute, burst))
	}
	return chain
}
