// Package surface defines the page capability the crawler drives: a
// scrollable rendered document that can be queried with XPath patterns and
// carries a cookie jar.
package surface

import (
	"context"
	"errors"
	"time"

	"feedcrawler/pkg/cookies"
)

var (
	// ErrStale means an element was detached from the document before it
	// could be read. Callers skip the element.
	ErrStale = errors.New("element is no longer attached to the document")

	// ErrTimeout means a wait elapsed without a match
	ErrTimeout = errors.New("timed out waiting for element")
)

// Element is a node matched by a pattern
type Element interface {
	// Attribute returns the named attribute, ErrStale if the node is gone,
	// or "" when the attribute is absent.
	Attribute(ctx context.Context, name string) (string, error)
}

// Surface is one rendered page
type Surface interface {
	Navigate(ctx context.Context, url string) error
	Reload(ctx context.Context) error

	// CurrentExtent returns the scrollable height of the document
	CurrentExtent(ctx context.Context) (float64, error)
	// ScrollBy scrolls the viewport down by delta pixels
	ScrollBy(ctx context.Context, delta float64) error

	FindAll(ctx context.Context, pattern string) ([]Element, error)
	// WaitFor blocks until pattern matches, returning ErrTimeout after timeout
	WaitFor(ctx context.Context, pattern string, timeout time.Duration) (Element, error)

	Cookies(ctx context.Context) ([]cookies.Record, error)
	SetCookie(ctx context.Context, rec cookies.Record) error
	ClearCookies(ctx context.Context) error

	Close() error
}

// IsStale reports whether err marks a detached element
func IsStale(err error) bool {
	return errors.Is(err, ErrStale)
}

// IsTimeout reports whether err is a wait timeout
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}
