package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"feedcrawler/pkg/cookies"
	"feedcrawler/pkg/logger"
	"feedcrawler/pkg/surface"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// Page is a Chrome tab driven as a feed surface
type Page struct {
	page       *rod.Page
	router     *rod.HijackRouter
	navTimeout time.Duration
	logger     logger.Logger
}

var _ surface.Surface = (*Page)(nil)

func (p *Page) Navigate(ctx context.Context, url string) error {
	navCtx, cancel := context.WithTimeout(ctx, p.navTimeout)
	defer cancel()

	pg := p.page.Context(navCtx)
	if err := pg.Navigate(url); err != nil {
		return fmt.Errorf("browser: navigate %s: %w", url, err)
	}
	if err := pg.WaitLoad(); err != nil {
		p.logger.WithError(err).WarnWithFields("Page load did not settle", map[string]interface{}{"url": url})
	}
	return nil
}

func (p *Page) Reload(ctx context.Context) error {
	navCtx, cancel := context.WithTimeout(ctx, p.navTimeout)
	defer cancel()

	pg := p.page.Context(navCtx)
	if err := pg.Reload(); err != nil {
		return fmt.Errorf("browser: reload: %w", err)
	}
	if err := pg.WaitLoad(); err != nil {
		p.logger.WithError(err).Warn("Page load did not settle after reload")
	}
	return nil
}

func (p *Page) CurrentExtent(ctx context.Context) (float64, error) {
	res, err := p.page.Context(ctx).Eval(`() => document.body.scrollHeight`)
	if err != nil {
		return 0, fmt.Errorf("browser: read scroll height: %w", err)
	}
	return res.Value.Num(), nil
}

func (p *Page) ScrollBy(ctx context.Context, delta float64) error {
	if _, err := p.page.Context(ctx).Eval(`(d) => window.scrollBy(0, d)`, delta); err != nil {
		return fmt.Errorf("browser: scroll: %w", err)
	}
	return nil
}

func (p *Page) FindAll(ctx context.Context, pattern string) ([]surface.Element, error) {
	elems, err := p.page.Context(ctx).ElementsX(pattern)
	if err != nil {
		return nil, fmt.Errorf("browser: query %s: %w", pattern, err)
	}
	out := make([]surface.Element, len(elems))
	for i, el := range elems {
		out[i] = element{el}
	}
	return out, nil
}

func (p *Page) WaitFor(ctx context.Context, pattern string, timeout time.Duration) (surface.Element, error) {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	el, err := p.page.Context(waitCtx).ElementX(pattern)
	if err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s after %s", surface.ErrTimeout, pattern, timeout)
		}
		return nil, fmt.Errorf("browser: wait for %s: %w", pattern, err)
	}
	return element{el}, nil
}

func (p *Page) Cookies(ctx context.Context) ([]cookies.Record, error) {
	raw, err := p.page.Context(ctx).Cookies(nil)
	if err != nil {
		return nil, fmt.Errorf("browser: read cookies: %w", err)
	}
	out := make([]cookies.Record, 0, len(raw))
	for _, c := range raw {
		out = append(out, fromNetworkCookie(c))
	}
	return out, nil
}

func (p *Page) SetCookie(ctx context.Context, rec cookies.Record) error {
	if err := p.page.Context(ctx).SetCookies([]*proto.NetworkCookieParam{toCookieParam(rec)}); err != nil {
		return fmt.Errorf("browser: set cookie %s: %w", rec.Name, err)
	}
	return nil
}

func (p *Page) ClearCookies(ctx context.Context) error {
	if err := (proto.NetworkClearBrowserCookies{}).Call(p.page.Context(ctx)); err != nil {
		return fmt.Errorf("browser: clear cookies: %w", err)
	}
	return nil
}

func (p *Page) Close() error {
	if p.router != nil {
		if err := p.router.Stop(); err != nil {
			p.logger.WithError(err).Debug("Failed to stop request router")
		}
	}
	return p.page.Close()
}

type element struct {
	el *rod.Element
}

func (e element) Attribute(ctx context.Context, name string) (string, error) {
	v, err := e.el.Context(ctx).Attribute(name)
	if err != nil {
		return "", mapElementErr(err)
	}
	if v == nil {
		return "", nil
	}
	return *v, nil
}

// detachedMarkers are CDP messages for nodes that left the document
var detachedMarkers = []string{
	"Could not find node",
	"Cannot find context",
	"Node is detached",
	"No node with given id",
	"Cannot find object with id",
}

func mapElementErr(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	for _, m := range detachedMarkers {
		if strings.Contains(msg, m) {
			return fmt.Errorf("%w: %v", surface.ErrStale, err)
		}
	}
	return fmt.Errorf("browser: read attribute: %w", err)
}

func toCookieParam(rec cookies.Record) *proto.NetworkCookieParam {
	param := &proto.NetworkCookieParam{
		Name:   rec.Name,
		Value:  rec.Value,
		Domain: rec.Domain,
		Path:   rec.Path,
		Secure: rec.Secure,
	}
	if param.Path == "" {
		param.Path = "/"
	}
	if rec.Expiry != nil {
		param.Expires = proto.TimeSinceEpoch(rec.Expiry.Unix())
	}
	return param
}

func fromNetworkCookie(c *proto.NetworkCookie) cookies.Record {
	rec := cookies.Record{
		Name:   c.Name,
		Value:  c.Value,
		Domain: c.Domain,
		Path:   c.Path,
		Secure: c.Secure,
	}
	if !c.Session && c.Expires > 0 {
		t := time.Unix(int64(c.Expires), 0).UTC()
		rec.Expiry = &t
	}
	return rec
}
