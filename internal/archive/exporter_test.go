package archive

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"listing-sync/internal/models"
	"listing-sync/internal/store"
)

func TestExportWritesJSONLines(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	for i := 0; i < 7; i++ {
		ev := models.SyncEvent{
			ID:          fmt.Sprintf("ev-%d", i),
			JobID:       "job1",
			TimestampMs: int64(1000 + i),
			Operation:   "create-listing",
			DurationMs:  int64(40 + i),
		}
		if err := mem.PersistEvent(ctx, ev); err != nil {
			t.Fatalf("persist: %v", err)
		}
	}

	dir := t.TempDir()
	exporter := NewLocalExporter(mem, dir)
	if err := exporter.Export(ctx, "job1"); err != nil {
		t.Fatalf("export: %v", err)
	}

	matches, err := filepath.Glob(filepath.Join(dir, "sync-events", "job1", "*.jsonl"))
	if err != nil || len(matches) != 1 {
		t.Fatalf("expected one archive file, got %v (err %v)", matches, err)
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read archive: %v", err)
	}

	var lines int
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		var ev models.SyncEvent
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			t.Fatalf("line %d is not valid json: %v", lines, err)
		}
		if ev.JobID != "job1" {
			t.Fatalf("line %d has job %q", lines, ev.JobID)
		}
		lines++
	}
	if lines != 7 {
		t.Fatalf("expected 7 lines, got %d", lines)
	}
}

func TestExportWithNoEventsWritesNothing(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	exporter := NewLocalExporter(store.NewMemory(), dir)

	if err := exporter.Export(ctx, "empty-job"); err != nil {
		t.Fatalf("export: %v", err)
	}

	matches, _ := filepath.Glob(filepath.Join(dir, "sync-events", "empty-job", "*"))
	if len(matches) != 0 {
		t.Fatalf("expected no archive files, got %v", matches)
	}
}

func TestExportRequiresJobID(t *testing.T) {
	exporter := NewLocalExporter(store.NewMemory(), t.TempDir())
	if err := exporter.Export(context.Background(), ""); err == nil {
		t.Fatalf("expected error for empty job id")
	}
}
