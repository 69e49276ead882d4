// Package logger provides the structured logging interface used across the
// feed crawler.
//
// It wraps zerolog behind a small Logger interface. Loggers are created once
// in the command layer and passed to each component; there is no package
// level instance.
//
//	log, err := logger.New(&cfg.Logging)
//	if err != nil {
//	    return err
//	}
//	defer logger.Close(log)
//
//	log.WithField("target", target).Info("Collection run started")
//	logger.LogDelivery(log, target, ref, attempts, err)
//
// Tests use NewTestLogger to capture and assert on messages, or NewNopLogger
// to discard them.
package logger
