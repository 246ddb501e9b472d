package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cwbudde/clblur/internal/store"
)

func ids(infos []store.RunInfo) map[string]bool {
	out := map[string]bool{}
	for _, info := range infos {
		out[info.ID] = true
	}
	return out
}

func testRuns(now time.Time) []store.RunInfo {
	return []store.RunInfo{
		{ID: "run1", Timestamp: now.AddDate(0, 0, -10)},
		{ID: "run2", Timestamp: now.AddDate(0, 0, -5)},
		{ID: "run3", Timestamp: now.AddDate(0, 0, -1)},
		{ID: "run4", Timestamp: now.AddDate(0, 0, -30)},
	}
}

func TestSelectRunsForDeletion_ByAge(t *testing.T) {
	now := time.Now()
	got := ids(selectRunsForDeletion(testRuns(now), 0, 7, now))

	if len(got) != 2 || !got["run1"] || !got["run4"] {
		t.Errorf("Expected run1 and run4, got %v", got)
	}
}

func TestSelectRunsForDeletion_ByCount(t *testing.T) {
	now := time.Now()
	got := ids(selectRunsForDeletion(testRuns(now), 2, 0, now))

	if len(got) != 2 || !got["run1"] || !got["run4"] {
		t.Errorf("Expected the two oldest runs, got %v", got)
	}
}

func TestSelectRunsForDeletion_Combined(t *testing.T) {
	now := time.Now()
	infos := append(testRuns(now), store.RunInfo{ID: "run5", Timestamp: now.AddDate(0, 0, -2)})

	// run4 and run1 are too old; keeping 2 also drops run2.
	got := ids(selectRunsForDeletion(infos, 2, 7, now))
	if len(got) != 3 || !got["run1"] || !got["run2"] || !got["run4"] {
		t.Errorf("Unexpected selection %v", got)
	}

	if n := len(selectRunsForDeletion(infos, 10, 0, now)); n != 0 {
		t.Errorf("Expected nothing to delete, got %d", n)
	}
}

func TestGetDirSize(t *testing.T) {
	tmpDir := t.TempDir()
	content := []byte("Hello, World!")
	if err := os.WriteFile(filepath.Join(tmpDir, "test.txt"), content, 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	size, err := getDirSize(tmpDir)
	if err != nil {
		t.Fatalf("getDirSize failed: %v", err)
	}
	if size != int64(len(content)) {
		t.Errorf("Expected size %d, got %d", len(content), size)
	}
}
