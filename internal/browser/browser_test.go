package browser

import (
	"errors"
	"testing"
	"time"

	"feedcrawler/pkg/config"
	"feedcrawler/pkg/cookies"
	"feedcrawler/pkg/surface"

	"github.com/go-rod/rod/lib/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShouldBlock(t *testing.T) {
	blockSet := map[string]bool{"images": true, "fonts": true, "xhr": true}

	tests := []struct {
		resType string
		want    bool
	}{
		{"Image", true},
		{"Font", true},
		{"Stylesheet", false},
		{"Media", false},
		{"XHR", true},
		{"Document", false},
	}
	for _, tt := range tests {
		t.Run(tt.resType, func(t *testing.T) {
			assert.Equal(t, tt.want, shouldBlock(blockSet, tt.resType))
		})
	}
}

func TestMapElementErr(t *testing.T) {
	assert.NoError(t, mapElementErr(nil))

	stale := mapElementErr(errors.New("{-32000 Could not find node with given id }"))
	assert.True(t, surface.IsStale(stale))

	stale = mapElementErr(errors.New("Cannot find context with specified id"))
	assert.True(t, surface.IsStale(stale))

	other := mapElementErr(errors.New("websocket: close 1006"))
	assert.False(t, surface.IsStale(other))
	assert.ErrorContains(t, other, "read attribute")
}

func TestCookieConversion(t *testing.T) {
	exp := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	rec := cookies.Record{Name: "xs", Value: "abc", Domain: ".facebook.com", Secure: true, Expiry: &exp}

	param := toCookieParam(rec)
	assert.Equal(t, "/", param.Path)
	assert.Equal(t, proto.TimeSinceEpoch(exp.Unix()), param.Expires)
	assert.True(t, param.Secure)

	back := fromNetworkCookie(&proto.NetworkCookie{
		Name:    "xs",
		Value:   "abc",
		Domain:  ".facebook.com",
		Path:    "/",
		Secure:  true,
		Expires: param.Expires,
	})
	require.NotNil(t, back.Expiry)
	assert.True(t, exp.Equal(*back.Expiry))

	session := fromNetworkCookie(&proto.NetworkCookie{Name: "presence", Session: true, Expires: -1})
	assert.Nil(t, session.Expiry)
}

func TestSessionCookieHasNoExpires(t *testing.T) {
	param := toCookieParam(cookies.Record{Name: "datr", Value: "1", Domain: ".facebook.com", Path: "/x"})
	assert.Equal(t, "/x", param.Path)
	assert.Zero(t, param.Expires)
}

func TestNewManagerDefaults(t *testing.T) {
	m := NewManager(config.BrowserConfig{}, nil)
	assert.Equal(t, 30*time.Second, m.cfg.NavigationTimeout)
	require.NoError(t, m.Close())

	_, err := m.NewSurface(t.Context())
	assert.ErrorContains(t, err, "manager is closed")
}
