package logger

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// LogRequest logs an ingestion request by status class
func LogRequest(l Logger, method, url string, statusCode int, duration time.Duration) {
	fields := map[string]interface{}{
		"method":      method,
		"url":         url,
		"status_code": statusCode,
		"duration_ms": float64(duration.Microseconds()) / 1000,
	}

	switch {
	case statusCode >= 200 && statusCode < 300:
		l.DebugWithFields("HTTP request completed", fields)
	case statusCode >= 400 && statusCode < 500:
		l.WarnWithFields("HTTP request client error", fields)
	default:
		l.ErrorWithFields("HTTP request server error", fields)
	}
}

// LogDelivery logs the final outcome of one reference
func LogDelivery(l Logger, target, ref string, attempts int, err error) {
	entry := l.WithFields(map[string]interface{}{
		"target":   target,
		"ref":      ref,
		"attempts": attempts,
	})

	if err != nil {
		entry.WithError(err).Warn("Reference dropped")
		return
	}
	entry.Info("Reference delivered")
}

// LogRunSummary logs the end of a collection run
func LogRunSummary(l Logger, target string, delivered, dropped, iterations, recoveries int, elapsed time.Duration) {
	l.WithFields(map[string]interface{}{
		"target":     target,
		"delivered":  delivered,
		"dropped":    dropped,
		"iterations": iterations,
		"recoveries": recoveries,
		"elapsed":    elapsed,
	}).Info("Collection run finished")
}

// LogComponentStart logs when a component starts
func LogComponentStart(l Logger, component string, config map[string]interface{}) {
	entry := l.WithField("component", component)
	if len(config) > 0 {
		entry = entry.WithFields(config)
	}
	entry.Info("Component started")
}

// NewNopLogger creates a no-operation logger for testing
func NewNopLogger() Logger {
	return &nopLogger{}
}

type nopLogger struct{}

func (n *nopLogger) Debug(msg string)                                          {}
func (n *nopLogger) Info(msg string)                                           {}
func (n *nopLogger) Warn(msg string)                                           {}
func (n *nopLogger) Error(msg string)                                          {}
func (n *nopLogger) WithField(key string, value interface{}) Logger            { return n }
func (n *nopLogger) WithFields(fields map[string]interface{}) Logger           { return n }
func (n *nopLogger) WithError(err error) Logger                                { return n }
func (n *nopLogger) WithContext(ctx context.Context) Logger                    { return n }
func (n *nopLogger) DebugWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) InfoWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) WarnWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) ErrorWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) GetZerolog() *zerolog.Logger                               { return nil }
