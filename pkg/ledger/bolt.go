package ledger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"feedcrawler/pkg/models"

	bolt "go.etcd.io/bbolt"
)

var bucketDeliveries = []byte("deliveries")

// BoltLedger stores references as keys of a bbolt bucket, valued with the
// delivery time.
type BoltLedger struct {
	db *bolt.DB
}

// OpenBolt opens or creates a bolt ledger at path
func OpenBolt(path string) (*BoltLedger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, ledgerErr("open", fmt.Errorf("failed to create ledger directory: %w", err))
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, ledgerErr("open", fmt.Errorf("failed to open bolt db: %w", err))
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketDeliveries)
		return err
	})
	if err != nil {
		db.Close()
		return nil, ledgerErr("open", err)
	}

	return &BoltLedger{db: db}, nil
}

func (l *BoltLedger) Contains(ctx context.Context, ref models.Reference) (bool, error) {
	var found bool
	err := l.db.View(func(tx *bolt.Tx) error {
		found = tx.Bucket(bucketDeliveries).Get([]byte(ref)) != nil
		return nil
	})
	if err != nil {
		return false, ledgerErr("lookup", err)
	}
	return found, nil
}

func (l *BoltLedger) Record(ctx context.Context, ref models.Reference) error {
	if err := validate(ref); err != nil {
		return err
	}
	err := l.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDeliveries)
		if b.Get([]byte(ref)) != nil {
			return nil
		}
		return b.Put([]byte(ref), []byte(time.Now().UTC().Format(time.RFC3339)))
	})
	if err != nil {
		return ledgerErr("record", err)
	}
	return nil
}

// DeliveredAt returns when ref was recorded
func (l *BoltLedger) DeliveredAt(ref models.Reference) (time.Time, bool, error) {
	var (
		at    time.Time
		found bool
	)
	err := l.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketDeliveries).Get([]byte(ref))
		if v == nil {
			return nil
		}
		found = true
		parsed, err := time.Parse(time.RFC3339, string(v))
		if err != nil {
			return err
		}
		at = parsed
		return nil
	})
	if err != nil {
		return time.Time{}, false, ledgerErr("lookup", err)
	}
	return at, found, nil
}

// List returns references in key order
func (l *BoltLedger) List(ctx context.Context) ([]models.Reference, error) {
	var out []models.Reference
	err := l.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketDeliveries).ForEach(func(k, _ []byte) error {
			out = append(out, models.Reference(k))
			return nil
		})
	})
	if err != nil {
		return nil, ledgerErr("list", err)
	}
	return out, nil
}

func (l *BoltLedger) Len(ctx context.Context) (int, error) {
	var n int
	err := l.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(bucketDeliveries).Stats().KeyN
		return nil
	})
	if err != nil {
		return 0, ledgerErr("count", err)
	}
	return n, nil
}

func (l *BoltLedger) Close() error {
	if l.db != nil {
		return l.db.Close()
	}
	return nil
}
