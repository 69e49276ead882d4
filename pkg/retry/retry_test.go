package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	errs "feedcrawler/pkg/errors"
	"feedcrawler/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExponentialBackoff(t *testing.T) {
	backoff := &ExponentialBackoff{
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   1 * time.Second,
		Multiplier: 2.0,
	}

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 0},
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, 1 * time.Second},
		{9, 1 * time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, backoff.NextDelay(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestExponentialBackoffJitterStaysInRange(t *testing.T) {
	backoff := &ExponentialBackoff{BaseDelay: 100 * time.Millisecond, Multiplier: 2.0, JitterFactor: 0.3}
	for i := 0; i < 50; i++ {
		d := backoff.NextDelay(2)
		assert.GreaterOrEqual(t, d, 140*time.Millisecond)
		assert.LessOrEqual(t, d, 260*time.Millisecond)
	}
}

func TestNewBackoff(t *testing.T) {
	assert.IsType(t, &ConstantBackoff{}, NewBackoff("fixed", time.Second))
	assert.IsType(t, &ExponentialBackoff{}, NewBackoff("exponential", time.Second))
	assert.Equal(t, time.Second, NewBackoff("", time.Second).NextDelay(3))
}

func TestDoSucceedsAfterFailures(t *testing.T) {
	attempts := 0
	var waits []time.Duration

	err := Do(func() error {
		attempts++
		if attempts < 3 {
			return errors.New("temporary error")
		}
		return nil
	}, &Config{
		MaxAttempts: 3,
		Backoff:     &ConstantBackoff{Delay: time.Millisecond},
		OnRetry:     func(attempt int, err error, delay time.Duration) { waits = append(waits, delay) },
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Len(t, waits, 2)
}

func TestDoExhaustion(t *testing.T) {
	attempts := 0
	retries := 0
	cause := errs.New(errs.ErrorTypeTransport, "connection refused")
	log := logger.NewTestLogger()

	err := Do(func() error {
		attempts++
		return cause
	}, &Config{
		Operation:   "deliver",
		MaxAttempts: 3,
		Backoff:     &ConstantBackoff{Delay: time.Millisecond},
		OnRetry:     func(int, error, time.Duration) { retries++ },
		Logger:      log,
	})

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, "deliver", exhausted.Operation)
	assert.Equal(t, 3, exhausted.Attempts)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "deliver failed after 3 attempts")

	assert.Equal(t, 3, attempts)
	// no wait after the final attempt
	assert.Equal(t, 2, retries)
	assert.Len(t, log.GetMessagesByLevel("WARN"), 2)
	assert.Len(t, log.GetMessagesByLevel("ERROR"), 1)
}

func TestDoNoSleepAfterFinalAttempt(t *testing.T) {
	start := time.Now()
	err := Do(func() error { return errors.New("always") }, &Config{
		MaxAttempts: 1,
		Backoff:     &ConstantBackoff{Delay: time.Hour},
	})
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestDoMaxAttemptsBelowOne(t *testing.T) {
	attempts := 0
	err := Do(func() error {
		attempts++
		return errors.New("fail")
	}, &Config{MaxAttempts: 0})

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 1, exhausted.Attempts)
}

func TestDoNonRetryable(t *testing.T) {
	attempts := 0
	cause := errs.New(errs.ErrorTypeConfiguration, "bundle missing")

	err := Do(func() error {
		attempts++
		return cause
	}, &Config{MaxAttempts: 5, Backoff: &ConstantBackoff{Delay: time.Millisecond}})

	assert.Same(t, cause, err)
	assert.Equal(t, 1, attempts)
}

func TestDoContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0

	err := Do(func() error {
		attempts++
		cancel()
		return errors.New("fail")
	}, &Config{
		MaxAttempts: 3,
		Backoff:     &ConstantBackoff{Delay: time.Hour},
		Context:     ctx,
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Contains(t, err.Error(), "retry cancelled")
	assert.Equal(t, 1, attempts)
}

func TestDefaultRetryIf(t *testing.T) {
	assert.False(t, DefaultRetryIf(nil))
	assert.False(t, DefaultRetryIf(context.Canceled))
	assert.False(t, DefaultRetryIf(context.DeadlineExceeded))
	assert.True(t, DefaultRetryIf(errors.New("unknown")))
	assert.True(t, DefaultRetryIf(errs.New(errs.ErrorTypeRejected, "503")))
	assert.True(t, DefaultRetryIf(errs.New(errs.ErrorTypeAuthentication, "probe failed")))
	assert.False(t, DefaultRetryIf(errs.New(errs.ErrorTypeLedger, "disk full")))
}

func TestWait(t *testing.T) {
	assert.NoError(t, Wait(context.Background(), 0))
	assert.NoError(t, Wait(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Wait(ctx, time.Hour), context.Canceled)
	assert.ErrorIs(t, Wait(ctx, 0), context.Canceled)
}
