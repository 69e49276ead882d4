// Package ledger records which references have been delivered so that no
// reference is submitted twice, across runs and across concurrent targets.
//
// Membership only grows: once Record returns nil for a reference, Contains
// reports it for the lifetime of the store, including after reopening.
package ledger

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"feedcrawler/pkg/config"
	ferrors "feedcrawler/pkg/errors"
	"feedcrawler/pkg/logger"
	"feedcrawler/pkg/models"
)

// Ledger is the durable delivered-reference set. Implementations are safe
// for concurrent use.
type Ledger interface {
	Contains(ctx context.Context, ref models.Reference) (bool, error)
	// Record marks ref delivered. Recording an existing reference is a no-op.
	Record(ctx context.Context, ref models.Reference) error
	List(ctx context.Context) ([]models.Reference, error)
	Len(ctx context.Context) (int, error)
	Close() error
}

const (
	BackendFile     = "file"
	BackendBolt     = "bolt"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Open builds the backend selected by cfg. Backends that need a path fall
// back to a file under dataDir.
func Open(ctx context.Context, cfg config.LedgerConfig, dataDir string, log logger.Logger) (Ledger, error) {
	if log == nil {
		log = logger.NewNopLogger()
	}
	log = log.WithField("component", "ledger")

	path := cfg.Path
	defaultPath := func(name string) string {
		if path != "" {
			return path
		}
		return filepath.Join(dataDir, name)
	}

	var (
		l   Ledger
		err error
	)
	switch cfg.Backend {
	case BackendFile, "":
		l, err = OpenFile(defaultPath("ledger.txt"), log)
	case BackendBolt:
		l, err = OpenBolt(defaultPath("ledger.db"))
	case BackendSQLite:
		l, err = OpenSQLite(ctx, defaultPath("ledger.sqlite"))
	case BackendPostgres:
		l, err = OpenPostgres(ctx, cfg.DSN)
	case BackendMemory:
		l = NewMemory()
	default:
		return nil, ferrors.Newf(ferrors.ErrorTypeConfiguration, "unknown ledger backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}

	log.DebugWithFields("Ledger opened", map[string]interface{}{
		"backend": cfg.Backend,
	})
	return l, nil
}

// validate rejects references that cannot be stored one per line
func validate(ref models.Reference) error {
	if ref.IsZero() {
		return ferrors.New(ferrors.ErrorTypeLedger, "empty reference")
	}
	if strings.ContainsAny(string(ref), "\r\n") {
		return ferrors.Newf(ferrors.ErrorTypeLedger, "reference %q contains a line break", string(ref))
	}
	return nil
}

func ledgerErr(op string, err error) error {
	return ferrors.Wrap(ferrors.ErrorTypeLedger, fmt.Sprintf("ledger %s failed", op), err)
}
