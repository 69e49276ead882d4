package crawler

import (
	"context"
	"sync"

	"feedcrawler/pkg/ledger"
	"feedcrawler/pkg/models"
)

// claims tracks which target run is currently delivering each reference,
// so two runs in parallel never deliver the same one. Runs are told apart
// by view, not by URL, since a target may be listed more than once.
type claims struct {
	ledger ledger.Ledger

	mu    sync.Mutex
	next  int
	owner map[models.Reference]int
}

func newClaims(l ledger.Ledger) *claims {
	return &claims{ledger: l, owner: make(map[models.Reference]int)}
}

// view returns the ledger as seen by one target run
func (c *claims) view() ledger.Ledger {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next++
	return &claimedLedger{claims: c, id: c.next}
}

// claimedLedger reports a reference claimed by another run as already
// delivered. A claim lasts for the rest of the crawl, even when that
// run drops the reference; the next crawl picks it up again.
type claimedLedger struct {
	claims *claims
	id     int
}

func (l *claimedLedger) Contains(ctx context.Context, ref models.Reference) (bool, error) {
	c := l.claims
	c.mu.Lock()
	defer c.mu.Unlock()

	if owner, ok := c.owner[ref]; ok && owner != l.id {
		return true, nil
	}
	found, err := c.ledger.Contains(ctx, ref)
	if err != nil || found {
		return found, err
	}
	c.owner[ref] = l.id
	return false, nil
}

func (l *claimedLedger) Record(ctx context.Context, ref models.Reference) error {
	return l.claims.ledger.Record(ctx, ref)
}

func (l *claimedLedger) List(ctx context.Context) ([]models.Reference, error) {
	return l.claims.ledger.List(ctx)
}

func (l *claimedLedger) Len(ctx context.Context) (int, error) {
	return l.claims.ledger.Len(ctx)
}

// Close is a no-op; the runner's caller owns the shared ledger
func (l *claimedLedger) Close() error { return nil }
