// Package surfacetest provides a scripted in-memory Surface for tests.
//
// A Fake holds a sequence of Frames. Each frame lists the links visible
// and the document extent; every ScrollBy advances to the next frame and
// the last frame repeats forever, which models a feed that stopped loading.
package surfacetest

import (
	"context"
	"errors"
	"sync"
	"time"

	"feedcrawler/pkg/cookies"
	"feedcrawler/pkg/surface"
)

// Frame is what the surface shows between two scrolls
type Frame struct {
	Links  []string
	Extent float64
	// Stale marks link indexes whose Attribute call returns ErrStale
	Stale map[int]bool
}

// Fault injects an error into the n-th call (1-based) of an operation
type Fault struct {
	Op   string
	Call int
	Err  error
}

// Fake is a scripted surface. The zero value is not usable; call New.
type Fake struct {
	mu sync.Mutex

	frames []Frame
	pos    int

	// Patterns that FindAll answers; others return no elements
	anchorPatterns map[string]bool
	// Patterns that WaitFor finds; others time out
	present map[string]bool

	faults map[string]map[int]error
	calls  map[string]int

	jar       map[string]cookies.Record
	rejectSet map[string]bool
	// loginCookie must be present for the login probe to be found
	loginCookie string
	probe       string

	visited []string
	closed  bool
}

// New creates a fake whose anchors are answered for anchorPattern
func New(anchorPattern string, frames ...Frame) *Fake {
	if len(frames) == 0 {
		frames = []Frame{{}}
	}
	return &Fake{
		frames:         frames,
		anchorPatterns: map[string]bool{anchorPattern: true},
		present:        map[string]bool{},
		faults:         map[string]map[int]error{},
		calls:          map[string]int{},
		jar:            map[string]cookies.Record{},
		rejectSet:      map[string]bool{},
	}
}

// WithPresent makes WaitFor succeed for pattern
func (f *Fake) WithPresent(patterns ...string) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range patterns {
		f.present[p] = true
	}
	return f
}

// WithAnchorPattern adds another pattern FindAll answers
func (f *Fake) WithAnchorPattern(pattern string) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.anchorPatterns[pattern] = true
	return f
}

// WithLogin makes WaitFor(probe) succeed only once a cookie named
// cookieName has been set and the page reloaded or navigated.
func (f *Fake) WithLogin(probe, cookieName string) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probe = probe
	f.loginCookie = cookieName
	return f
}

// RejectCookie makes SetCookie fail for name
func (f *Fake) RejectCookie(name string) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejectSet[name] = true
	return f
}

// WithCookies preloads the jar
func (f *Fake) WithCookies(recs ...cookies.Record) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range recs {
		f.jar[r.Name] = r
	}
	return f
}

// Inject schedules faults
func (f *Fake) Inject(faults ...Fault) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ft := range faults {
		if f.faults[ft.Op] == nil {
			f.faults[ft.Op] = map[int]error{}
		}
		f.faults[ft.Op][ft.Call] = ft.Err
	}
	return f
}

// Calls returns how many times op was invoked
func (f *Fake) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// Visited returns every URL passed to Navigate
func (f *Fake) Visited() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.visited...)
}

// Jar returns a copy of the current cookies
func (f *Fake) Jar() map[string]cookies.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]cookies.Record, len(f.jar))
	for k, v := range f.jar {
		out[k] = v
	}
	return out
}

// Closed reports whether Close was called
func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// enter counts a call and returns its injected fault. Caller holds mu.
func (f *Fake) enter(op string) error {
	f.calls[op]++
	if errs, ok := f.faults[op]; ok {
		if err, ok := errs[f.calls[op]]; ok {
			return err
		}
	}
	return nil
}

func (f *Fake) frame() Frame {
	return f.frames[f.pos]
}

func (f *Fake) Navigate(ctx context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("Navigate"); err != nil {
		return err
	}
	f.visited = append(f.visited, url)
	f.pos = 0
	return ctx.Err()
}

// Reload keeps the current frame; a real feed re-renders near where it was
func (f *Fake) Reload(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("Reload"); err != nil {
		return err
	}
	return ctx.Err()
}

func (f *Fake) CurrentExtent(ctx context.Context) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("CurrentExtent"); err != nil {
		return 0, err
	}
	return f.frame().Extent, nil
}

func (f *Fake) ScrollBy(ctx context.Context, delta float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("ScrollBy"); err != nil {
		return err
	}
	if f.pos < len(f.frames)-1 {
		f.pos++
	}
	return nil
}

func (f *Fake) FindAll(ctx context.Context, pattern string) ([]surface.Element, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("FindAll"); err != nil {
		return nil, err
	}
	if !f.anchorPatterns[pattern] {
		return nil, nil
	}

	fr := f.frame()
	elems := make([]surface.Element, 0, len(fr.Links))
	for i, link := range fr.Links {
		elems = append(elems, &element{href: link, stale: fr.Stale[i]})
	}
	return elems, nil
}

func (f *Fake) WaitFor(ctx context.Context, pattern string, timeout time.Duration) (surface.Element, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("WaitFor"); err != nil {
		return nil, err
	}
	if pattern == f.probe && f.probe != "" {
		if _, ok := f.jar[f.loginCookie]; ok {
			return &element{}, nil
		}
		return nil, surface.ErrTimeout
	}
	if f.present[pattern] {
		return &element{}, nil
	}
	return nil, surface.ErrTimeout
}

func (f *Fake) Cookies(ctx context.Context) ([]cookies.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("Cookies"); err != nil {
		return nil, err
	}
	out := make([]cookies.Record, 0, len(f.jar))
	for _, r := range f.jar {
		out = append(out, r)
	}
	return out, nil
}

func (f *Fake) SetCookie(ctx context.Context, rec cookies.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("SetCookie"); err != nil {
		return err
	}
	if f.rejectSet[rec.Name] {
		return errors.New("cookie rejected by browser")
	}
	f.jar[rec.Name] = rec
	return nil
}

func (f *Fake) ClearCookies(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("ClearCookies"); err != nil {
		return err
	}
	f.jar = map[string]cookies.Record{}
	return nil
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

type element struct {
	href  string
	stale bool
}

func (e *element) Attribute(ctx context.Context, name string) (string, error) {
	if e.stale {
		return "", surface.ErrStale
	}
	if name != "href" {
		return "", nil
	}
	return e.href, nil
}

var _ surface.Surface = (*Fake)(nil)
