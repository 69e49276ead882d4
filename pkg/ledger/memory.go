package ledger

import (
	"context"
	"sync"

	"feedcrawler/pkg/models"
)

// Memory is a process-local ledger used for dry runs and tests
type Memory struct {
	mu   sync.RWMutex
	seen map[models.Reference]bool
}

// NewMemory returns an empty in-memory ledger
func NewMemory(refs ...models.Reference) *Memory {
	m := &Memory{seen: make(map[models.Reference]bool, len(refs))}
	for _, r := range refs {
		m.seen[r] = true
	}
	return m
}

func (m *Memory) Contains(ctx context.Context, ref models.Reference) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.seen[ref], nil
}

func (m *Memory) Record(ctx context.Context, ref models.Reference) error {
	if err := validate(ref); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen[ref] = true
	return nil
}

func (m *Memory) List(ctx context.Context) ([]models.Reference, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sortedKeys(m.seen), nil
}

func (m *Memory) Len(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.seen), nil
}

func (m *Memory) Close() error { return nil }
