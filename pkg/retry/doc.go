// Package retry runs fallible actions a bounded number of times.
//
// Every caller names a finite attempt ceiling; there is no unlimited mode.
// Between failures the configured BackoffStrategy decides the wait, which is
// cut short by context cancellation. After the last failure Do returns an
// *ExhaustedError naming the operation and attempt count and wrapping the
// final error.
//
//	err := retry.Do(func() error {
//		return client.Deliver(ctx, ref).Err()
//	}, &retry.Config{
//		Operation:   "deliver",
//		MaxAttempts: 3,
//		Backoff:     &retry.ConstantBackoff{Delay: 2 * time.Second},
//		Context:     ctx,
//		Logger:      log,
//	})
//
// DefaultRetryIf retries transport, rejected, surface and authentication
// errors from pkg/errors and any untyped error, and never retries context
// cancellation.
package retry
