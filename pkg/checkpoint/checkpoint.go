package checkpoint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"feedcrawler/pkg/logger"
	"feedcrawler/pkg/models"
)

const currentVersion = 1

// RunRecord is the stored history of one target
type RunRecord struct {
	Target         string           `json:"target"`
	LastRun        models.RunResult `json:"last_run"`
	LastError      string           `json:"last_error,omitempty"`
	Runs           int              `json:"runs"`
	TotalDelivered int              `json:"total_delivered"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
	Version        int              `json:"version"`
}

// Succeeded reports whether the last run finished without error
func (r *RunRecord) Succeeded() bool {
	return r.LastError == ""
}

// Manager stores one RunRecord file per target under dir
type Manager struct {
	dir    string
	logger logger.Logger
	mu     sync.Mutex
}

// NewManager creates dir if needed
func NewManager(dir string, log logger.Logger) (*Manager, error) {
	if log == nil {
		log = logger.NewNopLogger()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}
	return &Manager{dir: dir, logger: log.WithField("component", "checkpoint")}, nil
}

// Dir returns the history directory
func (m *Manager) Dir() string { return m.dir }

func (m *Manager) path(target string) string {
	sum := sha256.Sum256([]byte(target))
	return filepath.Join(m.dir, hex.EncodeToString(sum[:8])+".json")
}

// Record folds result into the target's history and saves it
func (m *Manager) Record(result models.RunResult) (*RunRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.load(m.path(result.Target))
	if err != nil {
		m.logger.WithError(err).Warn("Discarding unreadable run record")
		rec = nil
	}
	if rec == nil {
		rec = &RunRecord{
			Target:    result.Target,
			CreatedAt: time.Now(),
			Version:   currentVersion,
		}
	}

	rec.LastRun = result
	rec.LastError = ""
	if result.Err != nil {
		rec.LastError = result.Err.Error()
	}
	rec.Runs++
	rec.TotalDelivered += result.Delivered

	if err := m.save(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Load returns the target's record, or nil when it has none
func (m *Manager) Load(target string) (*RunRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.load(m.path(target))
}

func (m *Manager) load(path string) (*RunRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read run record: %w", err)
	}

	var rec RunRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode run record %s: %w", filepath.Base(path), err)
	}
	return &rec, nil
}

// List returns every record, most recently updated first. Unreadable
// files are logged and skipped.
func (m *Manager) List() ([]*RunRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read history directory: %w", err)
	}

	var out []*RunRecord
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		rec, err := m.load(filepath.Join(m.dir, e.Name()))
		if err != nil {
			m.logger.WithError(err).WarnWithFields("Skipping run record", map[string]interface{}{"file": e.Name()})
			continue
		}
		out = append(out, rec)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

// Delete removes the target's record
func (m *Manager) Delete(target string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := os.Remove(m.path(target)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete run record: %w", err)
	}
	return nil
}

// Exists reports whether the target has a record
func (m *Manager) Exists(target string) bool {
	_, err := os.Stat(m.path(target))
	return err == nil
}

// save writes rec atomically. Caller holds mu.
func (m *Manager) save(rec *RunRecord) error {
	rec.UpdatedAt = time.Now()
	path := m.path(rec.Target)

	file, err := os.CreateTemp(m.dir, ".record-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary run record: %w", err)
	}
	tempPath := file.Name()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(rec); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to encode run record: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync run record: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close run record: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace run record: %w", err)
	}

	m.logger.DebugWithFields("Run record saved", map[string]interface{}{
		"target":    rec.Target,
		"runs":      rec.Runs,
		"delivered": rec.TotalDelivered,
	})
	return nil
}
