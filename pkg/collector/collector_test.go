package collector

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	ferrors "feedcrawler/pkg/errors"
	"feedcrawler/pkg/ledger"
	"feedcrawler/pkg/logger"
	"feedcrawler/pkg/models"
	"feedcrawler/pkg/ratelimit"
	"feedcrawler/pkg/retry"
	"feedcrawler/pkg/submission"
	"feedcrawler/pkg/surface/surfacetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	container = "//div[@role='main']"
	anchor    = "//div[@role='main']//a[contains(@href,'/posts/')]"
	target    = "https://www.facebook.com/groups/42"
)

func noSleep(ctx context.Context, d time.Duration) error { return ctx.Err() }

func testOptions() Options {
	return Options{
		ContainerPattern: container,
		ContainerTimeout: time.Second,
		AnchorPatterns:   []string{anchor},
		LinkAttribute:    "href",
		ScrollStep:       1,
		StaleBound:       3,
		StaleBackoff:     2 * time.Second,
		ReloadSettle:     5 * time.Second,
		MaxRecoveries:    2,
		DeliveryAttempts: 3,
		DeliveryBackoff:  &retry.ConstantBackoff{Delay: time.Millisecond},
	}
}

// scriptedDeliverer answers from a per-reference queue of outcomes and
// delivers once the queue is empty.
type scriptedDeliverer struct {
	mu      sync.Mutex
	script  map[models.Reference][]submission.Outcome
	calls   map[models.Reference]int
	order   []models.Reference
	onCall  func(ref models.Reference)
	failAll bool
}

func newDeliverer() *scriptedDeliverer {
	return &scriptedDeliverer{
		script: map[models.Reference][]submission.Outcome{},
		calls:  map[models.Reference]int{},
	}
}

func (d *scriptedDeliverer) then(ref models.Reference, outs ...submission.Outcome) *scriptedDeliverer {
	d.script[ref] = append(d.script[ref], outs...)
	return d
}

func (d *scriptedDeliverer) Deliver(ctx context.Context, ref models.Reference) submission.Outcome {
	d.mu.Lock()
	d.calls[ref]++
	d.order = append(d.order, ref)
	var out submission.Outcome
	if q := d.script[ref]; len(q) > 0 {
		out, d.script[ref] = q[0], q[1:]
	} else if d.failAll {
		out = transportFailure()
	} else {
		out = submission.Outcome{Kind: submission.Delivered, Status: 200}
	}
	hook := d.onCall
	d.mu.Unlock()

	if hook != nil {
		hook(ref)
	}
	return out
}

func (d *scriptedDeliverer) total() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.order)
}

func transportFailure() submission.Outcome {
	return submission.Outcome{Kind: submission.TransportFailure, Cause: errors.New("connection refused")}
}

func post(n string) string { return "https://www.facebook.com/groups/42/posts/" + n }

func newFake(frames ...surfacetest.Frame) *surfacetest.Fake {
	return surfacetest.New(anchor, frames...).WithPresent(container)
}

func newCollector(fake *surfacetest.Fake, l ledger.Ledger, d submission.Deliverer, opts Options, extra ...Option) *Collector {
	options := append([]Option{WithSleep(noSleep)}, extra...)
	return New(fake, l, d, ratelimit.None{}, opts, options...)
}

func TestCollectDeduplicatesWithinRun(t *testing.T) {
	fake := newFake(surfacetest.Frame{
		Links:  []string{post("1") + "?comment_id=9", post("2"), post("1") + "?__cft__=x"},
		Extent: 1000,
	})
	d := newDeliverer()
	l := ledger.NewMemory()

	n, err := newCollector(fake, l, d, testOptions()).Collect(context.Background(), target, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []models.Reference{models.Reference(post("1")), models.Reference(post("2"))}, d.order)

	recorded, err := l.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, recorded, 2)
}

func TestCollectRetriesTransportFailures(t *testing.T) {
	ref := models.Reference(post("1"))
	fake := newFake(surfacetest.Frame{Links: []string{post("1")}, Extent: 1000})
	d := newDeliverer().then(ref, transportFailure(), transportFailure())
	l := ledger.NewMemory()

	n, err := newCollector(fake, l, d, testOptions()).Collect(context.Background(), target, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 3, d.calls[ref])

	ok, err := l.Contains(context.Background(), ref)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCollectDropsAfterExhaustingAttempts(t *testing.T) {
	first := models.Reference(post("1"))
	fake := newFake(surfacetest.Frame{Links: []string{post("1"), post("2")}, Extent: 1000})
	d := newDeliverer().then(first, transportFailure(), transportFailure())
	l := ledger.NewMemory()

	opts := testOptions()
	opts.DeliveryAttempts = 2
	log := logger.NewTestLogger()

	res := newCollector(fake, l, d, opts, WithLogger(log)).Run(context.Background(), target, 5)
	require.NoError(t, res.Err)
	assert.Equal(t, 1, res.Delivered)
	assert.Equal(t, 1, res.Dropped)
	assert.Equal(t, 2, d.calls[first])
	assert.True(t, log.HasMessage("Reference dropped"))

	ok, err := l.Contains(context.Background(), first)
	require.NoError(t, err)
	assert.False(t, ok, "a dropped reference must not be recorded")
}

func TestCollectRejectedResponseIsRetried(t *testing.T) {
	ref := models.Reference(post("1"))
	fake := newFake(surfacetest.Frame{Links: []string{post("1")}, Extent: 1000})
	d := newDeliverer().then(ref, submission.Outcome{Kind: submission.RejectedByServer, Status: 503})

	n, err := newCollector(fake, ledger.NewMemory(), d, testOptions()).Collect(context.Background(), target, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 2, d.calls[ref])
}

func TestCollectStopsAfterStaleScrolls(t *testing.T) {
	fake := newFake(surfacetest.Frame{Links: []string{post("1")}, Extent: 1000})
	d := newDeliverer()

	var slept []time.Duration
	sleep := func(ctx context.Context, dur time.Duration) error {
		slept = append(slept, dur)
		return nil
	}

	res := New(fake, ledger.NewMemory(), d, ratelimit.None{}, testOptions(), WithSleep(sleep)).
		Run(context.Background(), target, 50)
	require.NoError(t, res.Err)
	assert.Equal(t, 1, res.Delivered)
	assert.True(t, res.Exhausted)

	// one productive scroll, then three without growth
	assert.Equal(t, 4, fake.Calls("ScrollBy"))
	assert.Equal(t, 4, res.Iterations)

	backoffs := 0
	for _, s := range slept {
		if s == 2*time.Second {
			backoffs++
		}
	}
	assert.Equal(t, 2, backoffs, "no backoff after the bound is reached")
}

func TestCollectGrowingFeedResetsStaleCounter(t *testing.T) {
	fake := newFake(
		surfacetest.Frame{Links: []string{post("1")}, Extent: 1000},
		surfacetest.Frame{Links: []string{post("1")}, Extent: 1000},
		surfacetest.Frame{Links: []string{post("1")}, Extent: 1000},
		surfacetest.Frame{Links: []string{post("1"), post("2")}, Extent: 2000},
	)
	d := newDeliverer()

	n, err := newCollector(fake, ledger.NewMemory(), d, testOptions()).Collect(context.Background(), target, 50)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestCollectRespectsBudget(t *testing.T) {
	fake := newFake(surfacetest.Frame{
		Links:  []string{post("1"), post("2"), post("3"), post("4"), post("5")},
		Extent: 1000,
	})
	d := newDeliverer()

	n, err := newCollector(fake, ledger.NewMemory(), d, testOptions()).Collect(context.Background(), target, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 3, d.total())
	assert.Equal(t, 0, fake.Calls("ScrollBy"))
}

func TestCollectZeroBudget(t *testing.T) {
	fake := newFake()
	n, err := newCollector(fake, ledger.NewMemory(), newDeliverer(), testOptions()).Collect(context.Background(), target, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 0, fake.Calls("Navigate"))
}

func TestCollectNegativeBudget(t *testing.T) {
	_, err := newCollector(newFake(), ledger.NewMemory(), newDeliverer(), testOptions()).Collect(context.Background(), target, -1)
	assert.True(t, ferrors.IsType(err, ferrors.ErrorTypeConfiguration))
}

func TestCollectSkipsAlreadyDelivered(t *testing.T) {
	fake := newFake(surfacetest.Frame{Links: []string{post("1"), post("2")}, Extent: 1000})
	d := newDeliverer()
	l := ledger.NewMemory(models.Reference(post("1")))

	n, err := newCollector(fake, l, d, testOptions()).Collect(context.Background(), target, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 0, d.calls[models.Reference(post("1"))])
}

func TestCollectNeverDeliversTwiceAcrossRuns(t *testing.T) {
	frame := surfacetest.Frame{Links: []string{post("1"), post("2"), post("3")}, Extent: 1000}
	d := newDeliverer()
	l := ledger.NewMemory()

	n, err := newCollector(newFake(frame), l, d, testOptions()).Collect(context.Background(), target, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = newCollector(newFake(frame), l, d, testOptions()).Collect(context.Background(), target, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	for ref, calls := range d.calls {
		assert.Equal(t, 1, calls, ref)
	}
}

func TestCollectSkipsStaleAnchors(t *testing.T) {
	fake := newFake(surfacetest.Frame{
		Links:  []string{post("1"), post("2")},
		Extent: 1000,
		Stale:  map[int]bool{0: true},
	})
	d := newDeliverer()

	n, err := newCollector(fake, ledger.NewMemory(), d, testOptions()).Collect(context.Background(), target, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []models.Reference{models.Reference(post("2"))}, d.order)
}

func TestCollectFallsBackToNextAnchorPattern(t *testing.T) {
	fallback := "//a[contains(@href,'/posts/')]"
	fake := surfacetest.New(fallback, surfacetest.Frame{Links: []string{post("7")}, Extent: 1000}).WithPresent(container)

	opts := testOptions()
	opts.AnchorPatterns = []string{anchor, fallback}

	n, err := newCollector(fake, ledger.NewMemory(), newDeliverer(), opts).Collect(context.Background(), target, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCollectRecoversFromSurfaceFault(t *testing.T) {
	fake := newFake(
		surfacetest.Frame{Links: []string{post("1")}, Extent: 1000},
		surfacetest.Frame{Links: []string{post("1"), post("2")}, Extent: 2000},
	).Inject(surfacetest.Fault{Op: "FindAll", Call: 2, Err: errors.New("Cannot find context with specified id")})

	log := logger.NewTestLogger()
	res := newCollector(fake, ledger.NewMemory(), newDeliverer(), testOptions(), WithLogger(log)).
		Run(context.Background(), target, 2)
	require.NoError(t, res.Err)
	assert.Equal(t, 2, res.Delivered)
	assert.Equal(t, 1, res.Recoveries)
	assert.Equal(t, 1, fake.Calls("Reload"))
	assert.True(t, log.HasMessage("Surface fault, reloading"))
}

func TestCollectGivesUpAfterMaxRecoveries(t *testing.T) {
	boom := errors.New("Target closed")
	fake := newFake(surfacetest.Frame{Links: []string{post("1")}, Extent: 1000}).Inject(
		surfacetest.Fault{Op: "FindAll", Call: 1, Err: boom},
		surfacetest.Fault{Op: "FindAll", Call: 2, Err: boom},
		surfacetest.Fault{Op: "FindAll", Call: 3, Err: boom},
	)

	res := newCollector(fake, ledger.NewMemory(), newDeliverer(), testOptions()).Run(context.Background(), target, 5)
	require.Error(t, res.Err)
	assert.True(t, ferrors.IsType(res.Err, ferrors.ErrorTypeSurface))
	assert.ErrorIs(t, res.Err, boom)
	assert.Equal(t, 2, fake.Calls("Reload"))
	assert.Equal(t, 0, res.Delivered)
}

func TestCollectMissingContainerFails(t *testing.T) {
	fake := surfacetest.New(anchor, surfacetest.Frame{Links: []string{post("1")}})

	_, err := newCollector(fake, ledger.NewMemory(), newDeliverer(), testOptions()).Collect(context.Background(), target, 5)
	assert.True(t, ferrors.IsType(err, ferrors.ErrorTypeSurface))
	assert.Equal(t, 0, fake.Calls("FindAll"))
}

type brokenLedger struct {
	*ledger.Memory
	err error
}

func (b *brokenLedger) Record(ctx context.Context, ref models.Reference) error { return b.err }

func TestCollectLedgerFailureIsFatal(t *testing.T) {
	fake := newFake(surfacetest.Frame{Links: []string{post("1"), post("2")}, Extent: 1000})
	d := newDeliverer()
	l := &brokenLedger{Memory: ledger.NewMemory(), err: errors.New("disk full")}

	n, err := newCollector(fake, l, d, testOptions()).Collect(context.Background(), target, 5)
	require.Error(t, err)
	assert.True(t, ferrors.IsType(err, ferrors.ErrorTypeLedger))
	assert.Equal(t, 1, n, "the unrecorded delivery still counts")
	assert.Equal(t, 1, d.total())
	assert.Equal(t, 0, fake.Calls("Reload"))
}

func TestCollectCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fake := newFake(surfacetest.Frame{Links: []string{post("1"), post("2"), post("3")}, Extent: 1000})
	d := newDeliverer()
	d.onCall = func(models.Reference) { cancel() }

	n, err := newCollector(fake, ledger.NewMemory(), d, testOptions()).Collect(ctx, target, 10)
	assert.ErrorIs(t, err, context.Canceled)
	assert.LessOrEqual(t, n, 1)
	assert.Equal(t, 1, d.total())
}

type recordingReporter struct {
	NopReporter
	events []string
	result models.RunResult
}

func (r *recordingReporter) RunStarted(string, int) { r.events = append(r.events, "start") }
func (r *recordingReporter) ItemDiscovered(string, models.Reference) {
	r.events = append(r.events, "discovered")
}
func (r *recordingReporter) ItemDelivered(string, models.Reference, int) {
	r.events = append(r.events, "delivered")
}
func (r *recordingReporter) ItemDropped(string, models.Reference, error) {
	r.events = append(r.events, "dropped")
}
func (r *recordingReporter) RunFinished(res models.RunResult) {
	r.events = append(r.events, "finished")
	r.result = res
}

func TestCollectReportsProgress(t *testing.T) {
	fake := newFake(surfacetest.Frame{Links: []string{post("1"), post("2")}, Extent: 1000})
	d := newDeliverer()
	d.failAll = true

	opts := testOptions()
	opts.DeliveryAttempts = 1
	rep := &recordingReporter{}
	d.then(models.Reference(post("1")), submission.Outcome{Kind: submission.Delivered})

	newCollector(fake, ledger.NewMemory(), d, opts, WithReporter(rep)).Run(context.Background(), target, 1)

	assert.Equal(t, []string{"start", "discovered", "delivered", "finished"}, rep.events)
	assert.Equal(t, 1, rep.result.Delivered)
	assert.Equal(t, target, rep.result.Target)
}

func TestMultiReporterFansOut(t *testing.T) {
	a, b := &recordingReporter{}, &recordingReporter{}
	m := MultiReporter{a, b}
	m.RunStarted(target, 1)
	m.ItemDropped(target, "x", errors.New("no"))
	assert.Equal(t, []string{"start", "dropped"}, a.events)
	assert.Equal(t, a.events, b.events)
}
