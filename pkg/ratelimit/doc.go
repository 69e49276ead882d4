// Package ratelimit paces deliveries to the ingestion endpoint.
//
// Two limiters are provided and can be combined with Chain:
//
// Jitter:
//   - Waits a uniformly random delay between a minimum and a maximum
//   - Spreads requests so they do not arrive at a fixed cadence
//   - Default pacer, 0.5s to 1.5s
//
// Throttle:
//   - Token bucket from golang.org/x/time/rate
//   - Caps requests per minute with a configurable burst
//   - Off unless submission.requests_per_minute is set
//
// All limiters implement the Limiter interface and honor context
// cancellation while waiting.
package ratelimit
