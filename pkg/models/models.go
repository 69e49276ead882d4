package models

import (
	"strings"
	"time"
)

// Reference is the canonical identifier of one feed item: its link with the
// query string removed.
type Reference string

// Canonicalize cuts raw at the first '?' and trims surrounding whitespace.
// It is idempotent, and links differing only in their query map to the same
// Reference.
func Canonicalize(raw string) Reference {
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		raw = raw[:i]
	}
	return Reference(strings.TrimSpace(raw))
}

func (r Reference) String() string { return string(r) }

// IsZero reports whether r is the empty reference, which is never delivered
func (r Reference) IsZero() bool { return r == "" }

// CollectionSession is the mutable state of one Collect call
type CollectionSession struct {
	Target                    string
	MaxItems                  int
	CollectedCount            int
	ConsecutiveStaleScrolls   int
	LastObservedSurfaceExtent float64

	Iterations int
	Recoveries int
	Discovered int
	Dropped    int
	StartedAt  time.Time
}

// NewCollectionSession starts a session for target with the given budget
func NewCollectionSession(target string, maxItems int) *CollectionSession {
	return &CollectionSession{
		Target:    target,
		MaxItems:  maxItems,
		StartedAt: time.Now(),
	}
}

// Done reports whether the budget is spent or the stale bound reached
func (s *CollectionSession) Done(staleBound int) bool {
	return s.Remaining() == 0 || s.ConsecutiveStaleScrolls >= staleBound
}

// Remaining returns how many more items the session may deliver
func (s *CollectionSession) Remaining() int {
	if n := s.MaxItems - s.CollectedCount; n > 0 {
		return n
	}
	return 0
}

// Result summarizes the session
func (s *CollectionSession) Result(err error) RunResult {
	return RunResult{
		Target:     s.Target,
		Delivered:  s.CollectedCount,
		Discovered: s.Discovered,
		Dropped:    s.Dropped,
		Iterations: s.Iterations,
		Recoveries: s.Recoveries,
		Attempts:   1,
		StartedAt:  s.StartedAt,
		FinishedAt: time.Now(),
		Exhausted:  s.ConsecutiveStaleScrolls > 0 && s.CollectedCount < s.MaxItems && err == nil,
		Err:        err,
	}
}

// RunResult is the outcome of crawling one target, possibly over several
// run-level attempts.
type RunResult struct {
	Target     string    `json:"target"`
	Delivered  int       `json:"delivered"`
	Discovered int       `json:"discovered"`
	Dropped    int       `json:"dropped"`
	Iterations int       `json:"iterations"`
	Recoveries int       `json:"recoveries"`
	Attempts   int       `json:"attempts"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	// Exhausted is set when the feed stopped yielding before the budget was met
	Exhausted bool  `json:"exhausted"`
	Err       error `json:"-"`
}

// Duration returns the wall time of the run
func (r RunResult) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Merge folds a later attempt into r
func (r RunResult) Merge(next RunResult) RunResult {
	r.Delivered += next.Delivered
	r.Discovered += next.Discovered
	r.Dropped += next.Dropped
	r.Iterations += next.Iterations
	r.Recoveries += next.Recoveries
	r.Attempts += next.Attempts
	r.FinishedAt = next.FinishedAt
	r.Exhausted = next.Exhausted
	r.Err = next.Err
	return r
}
