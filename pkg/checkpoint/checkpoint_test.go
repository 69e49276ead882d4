package checkpoint

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"feedcrawler/pkg/models"
)

const target = "https://www.facebook.com/groups/42"

func result(delivered int, err error) models.RunResult {
	now := time.Now()
	return models.RunResult{
		Target:     target,
		Delivered:  delivered,
		Attempts:   1,
		StartedAt:  now.Add(-time.Minute),
		FinishedAt: now,
		Err:        err,
	}
}

func TestCheckpointManager(t *testing.T) {
	dir := t.TempDir()

	t.Run("RecordAndLoad", func(t *testing.T) {
		mgr, err := NewManager(dir, nil)
		if err != nil {
			t.Fatalf("Failed to create manager: %v", err)
		}

		rec, err := mgr.Record(result(7, nil))
		if err != nil {
			t.Fatalf("Failed to record run: %v", err)
		}
		if rec.Runs != 1 || rec.TotalDelivered != 7 {
			t.Errorf("Expected 1 run with 7 delivered, got %d runs with %d", rec.Runs, rec.TotalDelivered)
		}

		loaded, err := mgr.Load(target)
		if err != nil {
			t.Fatalf("Failed to load record: %v", err)
		}
		if loaded == nil {
			t.Fatal("Expected record, got nil")
		}
		if loaded.Target != target {
			t.Errorf("Expected target %s, got %s", target, loaded.Target)
		}
		if !loaded.Succeeded() {
			t.Errorf("Expected success, got error %q", loaded.LastError)
		}
	})

	t.Run("Accumulates", func(t *testing.T) {
		mgr, _ := NewManager(dir, nil)

		if _, err := mgr.Record(result(3, errors.New("surface error: feed container did not appear"))); err != nil {
			t.Fatalf("Failed to record run: %v", err)
		}

		loaded, err := mgr.Load(target)
		if err != nil {
			t.Fatalf("Failed to load record: %v", err)
		}
		if loaded.Runs != 2 {
			t.Errorf("Expected 2 runs, got %d", loaded.Runs)
		}
		if loaded.TotalDelivered != 10 {
			t.Errorf("Expected 10 delivered, got %d", loaded.TotalDelivered)
		}
		if loaded.Succeeded() {
			t.Error("Expected the failed run to be recorded")
		}
		if loaded.LastRun.Delivered != 3 {
			t.Errorf("Expected last run to deliver 3, got %d", loaded.LastRun.Delivered)
		}
	})

	t.Run("MissingTarget", func(t *testing.T) {
		mgr, _ := NewManager(dir, nil)
		loaded, err := mgr.Load("https://example.com/none")
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if loaded != nil {
			t.Error("Expected nil record for unknown target")
		}
	})

	t.Run("Delete", func(t *testing.T) {
		mgr, _ := NewManager(dir, nil)
		if !mgr.Exists(target) {
			t.Fatal("Expected record to exist")
		}
		if err := mgr.Delete(target); err != nil {
			t.Fatalf("Failed to delete record: %v", err)
		}
		if mgr.Exists(target) {
			t.Error("Expected record to be gone after deletion")
		}
		if err := mgr.Delete(target); err != nil {
			t.Errorf("Deleting twice should not fail: %v", err)
		}
	})
}

func TestConcurrentRecords(t *testing.T) {
	mgr, err := NewManager(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := mgr.Record(result(1, nil)); err != nil {
				t.Errorf("Record failed: %v", err)
			}
		}()
	}
	wg.Wait()

	loaded, err := mgr.Load(target)
	if err != nil {
		t.Fatalf("Failed to load record after concurrent writes: %v", err)
	}
	if loaded.Runs != 10 || loaded.TotalDelivered != 10 {
		t.Errorf("Expected 10 runs and 10 delivered, got %d and %d", loaded.Runs, loaded.TotalDelivered)
	}

	leftovers, _ := filepath.Glob(filepath.Join(mgr.Dir(), "*.tmp"))
	if len(leftovers) != 0 {
		t.Errorf("Temporary files left behind: %v", leftovers)
	}
}

func TestListSkipsCorruptRecords(t *testing.T) {
	mgr, err := NewManager(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}

	first := result(1, nil)
	first.Target = "https://www.facebook.com/groups/1"
	second := result(2, nil)
	second.Target = "https://www.facebook.com/groups/2"

	if _, err := mgr.Record(first); err != nil {
		t.Fatal(err)
	}
	time.Sleep(10 * time.Millisecond)
	if _, err := mgr.Record(second); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(mgr.Dir(), "broken.json"), []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	records, err := mgr.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(records))
	}
	if records[0].Target != second.Target {
		t.Errorf("Expected most recent first, got %s", records[0].Target)
	}
}

func TestRecordReplacesCorruptFile(t *testing.T) {
	mgr, err := NewManager(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}
	if err := os.WriteFile(mgr.path(target), []byte("garbage"), 0644); err != nil {
		t.Fatal(err)
	}

	rec, err := mgr.Record(result(4, nil))
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if rec.Runs != 1 {
		t.Errorf("Expected a fresh record, got %d runs", rec.Runs)
	}
}
