package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"feedcrawler/pkg/models"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS deliveries (
	ref          TEXT PRIMARY KEY,
	delivered_at TEXT NOT NULL
)`

// SQLiteLedger stores references in a single SQLite table
type SQLiteLedger struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at path in WAL mode
func OpenSQLite(ctx context.Context, path string) (*SQLiteLedger, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, ledgerErr("open", fmt.Errorf("failed to create ledger directory: %w", err))
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, ledgerErr("open", err)
	}
	// one writer keeps busy errors out of concurrent Record calls
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = FULL",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, ledgerErr("open", fmt.Errorf("%s: %w", p, err))
		}
	}

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, ledgerErr("migrate", err)
	}

	return &SQLiteLedger{db: db}, nil
}

func (l *SQLiteLedger) Contains(ctx context.Context, ref models.Reference) (bool, error) {
	var one int
	err := l.db.QueryRowContext(ctx, `SELECT 1 FROM deliveries WHERE ref = ?`, string(ref)).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, ledgerErr("lookup", err)
	}
	return true, nil
}

func (l *SQLiteLedger) Record(ctx context.Context, ref models.Reference) error {
	if err := validate(ref); err != nil {
		return err
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO deliveries (ref, delivered_at) VALUES (?, ?)`,
		string(ref), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return ledgerErr("record", err)
	}
	return nil
}

func (l *SQLiteLedger) List(ctx context.Context) ([]models.Reference, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT ref FROM deliveries ORDER BY ref`)
	if err != nil {
		return nil, ledgerErr("list", err)
	}
	defer rows.Close()

	var out []models.Reference
	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			return nil, ledgerErr("list", err)
		}
		out = append(out, models.Reference(ref))
	}
	if err := rows.Err(); err != nil {
		return nil, ledgerErr("list", err)
	}
	return out, nil
}

func (l *SQLiteLedger) Len(ctx context.Context) (int, error) {
	var n int
	if err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM deliveries`).Scan(&n); err != nil {
		return 0, ledgerErr("count", err)
	}
	return n, nil
}

func (l *SQLiteLedger) Close() error {
	return l.db.Close()
}
