package logger

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"feedcrawler/pkg/config"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		cfg     *config.LoggingConfig
		wantErr bool
	}{
		{"info console", &config.LoggingConfig{Level: "info", Console: true}, false},
		{"debug console", &config.LoggingConfig{Level: "debug", Console: true}, false},
		{"invalid level", &config.LoggingConfig{Level: "loud"}, true},
		{"file only", &config.LoggingConfig{Level: "info", File: filepath.Join(dir, "logs", "crawl.log")}, false},
		{"file and console", &config.LoggingConfig{Level: "warn", File: filepath.Join(dir, "both.log"), Console: true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, err := New(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, log)
			assert.NoError(t, Close(log))
		})
	}
}

func TestFileOutputReceivesEvents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feedcrawler.log")
	log, err := New(&config.LoggingConfig{Level: "info", File: path})
	require.NoError(t, err)

	log.WithField("target", "https://example.com/groups/1").Info("Collection run started")
	require.NoError(t, Close(log))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"Collection run started"`)
	assert.Contains(t, string(data), `"app":"feedcrawler"`)
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		level    string
		expected zerolog.Level
		wantErr  bool
	}{
		{"debug", zerolog.DebugLevel, false},
		{"DEBUG", zerolog.DebugLevel, false},
		{"info", zerolog.InfoLevel, false},
		{"", zerolog.InfoLevel, false},
		{"warning", zerolog.WarnLevel, false},
		{"error", zerolog.ErrorLevel, false},
		{"disabled", zerolog.Disabled, false},
		{"invalid", zerolog.InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			level, err := parseLogLevel(tt.level)
			if (err != nil) != tt.wantErr {
				t.Errorf("parseLogLevel() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if level != tt.expected {
				t.Errorf("parseLogLevel() = %v, want %v", level, tt.expected)
			}
		})
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, zerolog.WarnLevel)

	log.Info("hidden")
	log.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestFieldChaining(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, zerolog.DebugLevel)

	log.
		WithField("target", "t1").
		WithFields(map[string]interface{}{"delivered": 4, "stale": true}).
		InfoWithFields("chained fields", map[string]interface{}{"elapsed": 2 * time.Second})

	output := buf.String()
	assert.Contains(t, output, "chained fields")
	assert.Contains(t, output, `"target":"t1"`)
	assert.Contains(t, output, `"delivered":4`)
	assert.Contains(t, output, `"stale":true`)
	assert.Contains(t, output, `"elapsed":`)
}

func TestWithFieldsDoesNotLeakIntoParent(t *testing.T) {
	var buf bytes.Buffer
	parent := NewWithWriter(&buf, zerolog.InfoLevel)
	_ = parent.WithField("child_only", "x")

	parent.Info("parent message")
	assert.NotContains(t, buf.String(), "child_only")
}

func TestWithError(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, zerolog.InfoLevel)

	assert.Same(t, log, log.WithError(nil))

	log.WithError(errors.New("connection refused")).Error("delivery failed")
	assert.Contains(t, buf.String(), "connection refused")
}

func TestLogRequestLevels(t *testing.T) {
	tl := NewTestLogger()

	LogRequest(tl, "POST", "https://ingest.example/api", 200, 15*time.Millisecond)
	LogRequest(tl, "POST", "https://ingest.example/api", 429, 15*time.Millisecond)
	LogRequest(tl, "POST", "https://ingest.example/api", 503, 15*time.Millisecond)

	assert.Len(t, tl.GetMessagesByLevel("DEBUG"), 1)
	assert.Len(t, tl.GetMessagesByLevel("WARN"), 1)
	assert.Len(t, tl.GetMessagesByLevel("ERROR"), 1)
}

func TestLogDelivery(t *testing.T) {
	tl := NewTestLogger()

	LogDelivery(tl, "feed", "https://x/groups/1/posts/2", 1, nil)
	LogDelivery(tl, "feed", "https://x/groups/1/posts/3", 3, errors.New("exhausted"))

	msgs := tl.GetMessages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "INFO", msgs[0].Level)
	assert.Equal(t, "WARN", msgs[1].Level)
	assert.EqualError(t, msgs[1].Error, "exhausted")
	assert.Equal(t, 3, msgs[1].Fields["attempts"])
}

func TestTestLoggerSharesSinkAcrossChildren(t *testing.T) {
	tl := NewTestLogger()
	tl.WithField("a", 1).WithError(errors.New("boom")).Warn("child")
	tl.Info("root")

	assert.True(t, tl.HasMessage("child"))
	assert.True(t, tl.HasMessage("root"))
	assert.Len(t, tl.GetMessages(), 2)

	tl.Clear()
	assert.Empty(t, tl.GetMessages())
}

func TestNopLogger(t *testing.T) {
	log := NewNopLogger()
	log.WithField("k", "v").WithError(errors.New("x")).Info("ignored")
	assert.Nil(t, log.GetZerolog())
}
