package ledger

import (
	"context"
	"fmt"

	"feedcrawler/pkg/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS feedcrawler_deliveries (
	ref          TEXT PRIMARY KEY,
	delivered_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresLedger shares delivered references between crawler hosts
type PostgresLedger struct {
	Pool *pgxpool.Pool
}

// OpenPostgres connects with dsn and creates the table when missing
func OpenPostgres(ctx context.Context, dsn string) (*PostgresLedger, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, ledgerErr("open", fmt.Errorf("parse dsn: %w", err))
	}
	cfg.MaxConns = 4

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, ledgerErr("open", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, ledgerErr("open", fmt.Errorf("ping: %w", err))
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, ledgerErr("migrate", err)
	}

	return &PostgresLedger{Pool: pool}, nil
}

func (l *PostgresLedger) Contains(ctx context.Context, ref models.Reference) (bool, error) {
	var one int
	err := l.Pool.QueryRow(ctx,
		`SELECT 1 FROM feedcrawler_deliveries WHERE ref = $1`,
		string(ref),
	).Scan(&one)

	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, ledgerErr("lookup", err)
	}
	return true, nil
}

func (l *PostgresLedger) Record(ctx context.Context, ref models.Reference) error {
	if err := validate(ref); err != nil {
		return err
	}
	_, err := l.Pool.Exec(ctx,
		`INSERT INTO feedcrawler_deliveries (ref) VALUES ($1)
		 ON CONFLICT (ref) DO NOTHING`,
		string(ref),
	)
	if err != nil {
		return ledgerErr("record", err)
	}
	return nil
}

func (l *PostgresLedger) List(ctx context.Context) ([]models.Reference, error) {
	rows, err := l.Pool.Query(ctx, `SELECT ref FROM feedcrawler_deliveries ORDER BY ref`)
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

func (l *PostgresLedger) Len(ctx context.Context) (int, error) {
	var n int
	if err := l.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM feedcrawler_deliveries`).Scan(&n); err != nil {
		return 0, ledgerErr("count", err)
	}
	return n, nil
}

func (l *PostgresLedger) Close() error {
	l.Pool.Close()
	return nil
}
