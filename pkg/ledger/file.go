package ledger

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"feedcrawler/pkg/logger"
	"feedcrawler/pkg/models"
)

// recordFile is the part of *os.File the ledger writes through
type recordFile interface {
	io.ReadWriteSeeker
	io.Closer
	Sync() error
	Truncate(size int64) error
}

// FileLedger keeps one reference per line in an append-only text file and
// mirrors it in memory for lookups.
type FileLedger struct {
	path string
	file recordFile
	seen map[models.Reference]bool
	mu   sync.RWMutex
}

// OpenFile opens or creates the ledger at path. A trailing line without a
// newline is the remains of an interrupted write; it is truncated away
// rather than read back.
func OpenFile(path string, log logger.Logger) (*FileLedger, error) {
	if log == nil {
		log = logger.NewNopLogger()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, ledgerErr("open", fmt.Errorf("failed to create ledger directory: %w", err))
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, ledgerErr("open", err)
	}

	l := &FileLedger{path: path, file: f, seen: make(map[models.Reference]bool)}
	if err := l.load(log); err != nil {
		f.Close()
		return nil, err
	}
	return l, nil
}

func (l *FileLedger) load(log logger.Logger) error {
	data, err := io.ReadAll(l.file)
	if err != nil {
		return ledgerErr("read", err)
	}

	complete := data
	if i := bytes.LastIndexByte(data, '\n'); i < len(data)-1 {
		complete = data[:i+1]
		log.WarnWithFields("Truncating partial ledger record", map[string]interface{}{
			"path":  l.path,
			"bytes": len(data) - len(complete),
		})
		if err := l.file.Truncate(int64(len(complete))); err != nil {
			return ledgerErr("truncate", err)
		}
		if err := l.file.Sync(); err != nil {
			return ledgerErr("sync", err)
		}
	}

	scanner := bufio.NewScanner(bytes.NewReader(complete))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			l.seen[models.Reference(line)] = true
		}
	}
	if err := scanner.Err(); err != nil {
		return ledgerErr("read", err)
	}

	if _, err := l.file.Seek(0, io.SeekEnd); err != nil {
		return ledgerErr("seek", err)
	}
	return nil
}

func (l *FileLedger) Contains(ctx context.Context, ref models.Reference) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.seen[ref], nil
}

// Record appends ref and syncs the file before updating the in-memory set.
// A failed write or sync is cut back off the file so the next record starts
// on a fresh line.
func (l *FileLedger) Record(ctx context.Context, ref models.Reference) error {
	if err := validate(ref); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.seen[ref] {
		return nil
	}
	if l.file == nil {
		return ledgerErr("record", os.ErrClosed)
	}
	off, err := l.file.Seek(0, io.SeekCurrent)
	if err != nil {
		return ledgerErr("seek", err)
	}
	if _, err := l.file.Write([]byte(string(ref) + "\n")); err != nil {
		return l.rollback(off, ledgerErr("record", err))
	}
	if err := l.file.Sync(); err != nil {
		return l.rollback(off, ledgerErr("sync", err))
	}
	l.seen[ref] = true
	return nil
}

// rollback truncates the file to off. When that fails too the file is
// closed, since appending after a torn line would corrupt the next record.
func (l *FileLedger) rollback(off int64, cause error) error {
	err := l.file.Truncate(off)
	if err == nil {
		_, err = l.file.Seek(off, io.SeekStart)
	}
	if err != nil {
		l.file.Close()
		l.file = nil
		return errors.Join(cause, ledgerErr("rollback", err))
	}
	return cause
}

func (l *FileLedger) List(ctx context.Context) ([]models.Reference, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return sortedKeys(l.seen), nil
}

func (l *FileLedger) Len(ctx context.Context) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.seen), nil
}

func (l *FileLedger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

func sortedKeys(set map[models.Reference]bool) []models.Reference {
	out := make([]models.Reference, 0, len(set))
	for ref := range set {
		out = append(out, ref)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
