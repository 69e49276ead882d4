package submission

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	ferrors "feedcrawler/pkg/errors"
	"feedcrawler/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeliverSuccess(t *testing.T) {
	var got payload
	var auth, agent, contentType string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		auth = r.Header.Get("Authorization")
		agent = r.Header.Get("User-Agent")
		contentType = r.Header.Get("Content-Type")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer server.Close()

	log := logger.NewTestLogger()
	c := NewClient(Options{Endpoint: server.URL, Token: "t0k", UserAgent: "feedcrawler/test"}, log)

	out := c.Deliver(context.Background(), "https://x.com/groups/1/posts/2")
	assert.Equal(t, Delivered, out.Kind)
	assert.Equal(t, 200, out.Status)
	assert.NoError(t, out.Err())

	assert.Equal(t, "https://x.com/groups/1/posts/2", got.URL)
	assert.Equal(t, "Bearer t0k", auth)
	assert.Equal(t, "feedcrawler/test", agent)
	assert.Equal(t, "application/json", contentType)
	assert.True(t, log.HasMessage("Endpoint response"))
}

func TestDeliverWithoutTokenSendsNoAuthorization(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	out := NewClient(Options{Endpoint: server.URL}, nil).Deliver(context.Background(), "https://x.com/p/1")
	assert.Equal(t, Delivered, out.Kind)
}

func TestDeliverNonJSONSuccessStillDelivered(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("saved"))
	}))
	defer server.Close()

	log := logger.NewTestLogger()
	out := NewClient(Options{Endpoint: server.URL}, log).Deliver(context.Background(), "https://x.com/p/1")
	assert.Equal(t, Delivered, out.Kind)
	assert.True(t, log.HasMessage("Endpoint response is not JSON"))
}

func TestDeliverRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("maintenance"))
	}))
	defer server.Close()

	out := NewClient(Options{Endpoint: server.URL}, nil).Deliver(context.Background(), "https://x.com/p/1")
	assert.Equal(t, RejectedByServer, out.Kind)
	assert.Equal(t, 503, out.Status)
	assert.Equal(t, "maintenance", out.Body)

	err := out.Err()
	require.Error(t, err)
	assert.True(t, ferrors.IsType(err, ferrors.ErrorTypeRejected))
	var typed *ferrors.Error
	require.ErrorAs(t, err, &typed)
	assert.Equal(t, 503, typed.Code)
}

func TestDeliverRejectedHTMLIsSummarized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`<!DOCTYPE html><html><head><title>502 Bad Gateway</title>
<style>body{color:red}</style></head>
<body><h1>Bad Gateway</h1>
<script>var x=1;</script>
<p>upstream   timed out</p></body></html>`))
	}))
	defer server.Close()

	out := NewClient(Options{Endpoint: server.URL}, nil).Deliver(context.Background(), "https://x.com/p/1")
	assert.Equal(t, RejectedByServer, out.Kind)
	assert.Equal(t, "502 Bad Gateway: Bad Gateway upstream timed out", out.Body)
}

func TestDeliverRejectedLongBodyStaysValidUTF8(t *testing.T) {
	body := strings.Repeat("Lỗi máy chủ nội bộ, vui lòng thử lại sau. ", 40)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(body))
	}))
	defer server.Close()

	out := NewClient(Options{Endpoint: server.URL}, nil).Deliver(context.Background(), "https://x.com/p/1")
	assert.Equal(t, RejectedByServer, out.Kind)
	assert.True(t, strings.HasSuffix(out.Body, "..."))
	assert.LessOrEqual(t, len(out.Body), 512+len("..."))
	assert.True(t, utf8.ValidString(out.Body), "body cut inside a rune: %q", out.Body)
	assert.True(t, utf8.ValidString(out.Err().Error()))
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab...", truncate("abcdef", 2))
	// "ỗ" is three bytes, so a cut at byte 2 falls inside it
	assert.Equal(t, "L...", truncate("Lỗi", 2))
	assert.Equal(t, "...", truncate("ỗ", 1))
}

func TestDeliverTransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	out := NewClient(Options{Endpoint: url, Timeout: time.Second}, nil).Deliver(context.Background(), "https://x.com/p/1")
	assert.Equal(t, TransportFailure, out.Kind)
	require.Error(t, out.Cause)
	assert.True(t, ferrors.IsType(out.Err(), ferrors.ErrorTypeTransport))
	assert.True(t, ferrors.IsRetryable(ferrors.TypeOf(out.Err())))
}

func TestDeliverTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	out := NewClient(Options{Endpoint: server.URL, Timeout: 20 * time.Millisecond}, nil).Deliver(context.Background(), "https://x.com/p/1")
	assert.Equal(t, TransportFailure, out.Kind)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "delivered", Delivered.String())
	assert.Equal(t, "rejected", RejectedByServer.String())
	assert.Equal(t, "transport_failure", TransportFailure.String())
}
