// Package submission forwards references to the ingestion endpoint.
package submission

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	ferrors "feedcrawler/pkg/errors"
	"feedcrawler/pkg/logger"
	"feedcrawler/pkg/models"

	"github.com/PuerkitoBio/goquery"
)

const maxBodyBytes = 64 * 1024

// Kind classifies a delivery attempt
type Kind int

const (
	Delivered Kind = iota
	RejectedByServer
	TransportFailure
)

func (k Kind) String() string {
	switch k {
	case Delivered:
		return "delivered"
	case RejectedByServer:
		return "rejected"
	case TransportFailure:
		return "transport_failure"
	default:
		return "unknown"
	}
}

// Outcome is the result of one POST
type Outcome struct {
	Kind   Kind
	Status int
	// Body holds the response text, condensed when it is HTML
	Body  string
	Cause error
}

// Err converts the outcome to an error: nil when delivered, a rejected
// error carrying the status code, or a transport error wrapping the cause.
func (o Outcome) Err() error {
	switch o.Kind {
	case Delivered:
		return nil
	case RejectedByServer:
		return &ferrors.Error{
			Type:    ferrors.ErrorTypeRejected,
			Message: fmt.Sprintf("endpoint answered %d: %s", o.Status, truncate(o.Body, 200)),
			Code:    o.Status,
		}
	default:
		return ferrors.Wrap(ferrors.ErrorTypeTransport, "request failed", o.Cause)
	}
}

// Deliverer sends one reference downstream
type Deliverer interface {
	Deliver(ctx context.Context, ref models.Reference) Outcome
}

// Options configures a Client
type Options struct {
	Endpoint  string
	Timeout   time.Duration
	Token     string
	UserAgent string
}

// Client posts references as {"url": ref}
type Client struct {
	httpClient *http.Client
	opts       Options
	logger     logger.Logger
}

// NewClient creates a submission client
func NewClient(opts Options, log logger.Logger) *Client {
	if log == nil {
		log = logger.NewNopLogger()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: opts.Timeout},
		opts:       opts,
		logger:     log.WithField("component", "submission"),
	}
}

// WithHTTPClient replaces the transport, for tests
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

type payload struct {
	URL string `json:"url"`
}

// Deliver performs a single POST; retries belong to the caller
func (c *Client) Deliver(ctx context.Context, ref models.Reference) Outcome {
	body, err := json.Marshal(payload{URL: string(ref)})
	if err != nil {
		return Outcome{Kind: TransportFailure, Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.Endpoint, bytes.NewReader(body))
	if err != nil {
		return Outcome{Kind: TransportFailure, Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.opts.UserAgent != "" {
		req.Header.Set("User-Agent", c.opts.UserAgent)
	}
	if c.opts.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.opts.Token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.WarnWithFields("Submission request failed", map[string]interface{}{
			"ref":      string(ref),
			"error":    err.Error(),
			"duration": time.Since(start),
		})
		return Outcome{Kind: TransportFailure, Cause: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	logger.LogRequest(c.logger, req.Method, c.opts.Endpoint, resp.StatusCode, time.Since(start))
	if err != nil {
		return Outcome{Kind: TransportFailure, Status: resp.StatusCode, Cause: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Outcome{
			Kind:   RejectedByServer,
			Status: resp.StatusCode,
			Body:   summarize(resp.Header.Get("Content-Type"), raw),
		}
	}

	c.logResponse(ref, raw)
	return Outcome{Kind: Delivered, Status: resp.StatusCode, Body: string(raw)}
}

// logResponse records the endpoint's answer; non-JSON answers still count
// as delivered
func (c *Client) logResponse(ref models.Reference, raw []byte) {
	var parsed interface{}
	if len(raw) > 0 && json.Unmarshal(raw, &parsed) == nil {
		c.logger.DebugWithFields("Endpoint response", map[string]interface{}{
			"ref":      string(ref),
			"response": parsed,
		})
		return
	}
	c.logger.WarnWithFields("Endpoint response is not JSON", map[string]interface{}{
		"ref":  string(ref),
		"body": truncate(string(raw), 200),
	})
}

// summarize reduces an HTML error page to its title and visible text
func summarize(contentType string, raw []byte) string {
	text := strings.TrimSpace(string(raw))
	if !strings.Contains(contentType, "html") && !strings.HasPrefix(strings.ToLower(text), "<!doctype html") && !strings.HasPrefix(strings.ToLower(text), "<html") {
		return truncate(text, 512)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return truncate(text, 512)
	}
	doc.Find("script, style, noscript").Remove()

	title := strings.TrimSpace(doc.Find("title").First().Text())
	bodyText := strings.Join(strings.Fields(doc.Find("body").Text()), " ")

	switch {
	case title != "" && bodyText != "" && !strings.HasPrefix(bodyText, title):
		return truncate(title+": "+bodyText, 512)
	case bodyText != "":
		return truncate(bodyText, 512)
	default:
		return truncate(title, 512)
	}
}

// truncate caps s at n bytes without splitting a UTF-8 sequence
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
