package archive

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alfredjeanlab/taskflow/internal/model"
	"github.com/alfredjeanlab/taskflow/internal/store"
)

func seedStore(t *testing.T) *store.MemoryStore {
	t.Helper()
	st := store.NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	msg := &model.Message{ID: "msg-1", Source: model.SourceCLI, Text: "we need to fix the login bug", ReceivedAt: now}
	if err := st.SaveMessage(ctx, msg); err != nil {
		t.Fatalf("SaveMessage error: %v", err)
	}
	task := &model.ExtractedTask{ID: "tsk-1", SourceMessageID: "msg-1", Title: "Fix the login bug", Priority: model.PriorityMedium, ExtractedAt: now}
	if err := st.SaveTask(ctx, task); err != nil {
		t.Fatalf("SaveTask error: %v", err)
	}
	pt := &model.PlatformTask{ID: "pt-1", SourceTaskID: "tsk-1", Platform: model.PlatformMock, ExternalRef: "mock_1a2b3c4d", Status: model.StatusCreated, CreatedAt: now}
	if err := st.SavePlatformTask(ctx, "evt-1", pt); err != nil {
		t.Fatalf("SavePlatformTask error: %v", err)
	}
	return st
}

func TestExportJSONL(t *testing.T) {
	st := seedStore(t)

	var buf bytes.Buffer
	if err := ExportJSONL(context.Background(), st, &buf); err != nil {
		t.Fatalf("ExportJSONL error: %v", err)
	}

	scanner := bufio.NewScanner(&buf)
	var lines []map[string]any
	for scanner.Scan() {
		var line map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			t.Fatalf("line %d is not JSON: %v", len(lines)+1, err)
		}
		lines = append(lines, line)
	}
	if len(lines) != 4 {
		t.Fatalf("got %d lines, want 4 (header + 3 records)", len(lines))
	}

	head := lines[0]
	if head["type"] != "header" || head["message_count"] != float64(1) {
		t.Errorf("header = %v", head)
	}
	for i, wantType := range []string{"message", "task", "platform_task"} {
		if lines[i+1]["type"] != wantType {
			t.Errorf("line %d type = %v, want %s", i+2, lines[i+1]["type"], wantType)
		}
	}
}

func TestFileDestination(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "archive.jsonl")
	d := NewFileDestination(path)

	if err := d.Write(context.Background(), []byte("one\n")); err != nil {
		t.Fatalf("Write error: %v", err)
	}
	// A second write replaces, not appends.
	if err := d.Write(context.Background(), []byte("two\n")); err != nil {
		t.Fatalf("Write error: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile error: %v", err)
	}
	if string(got) != "two\n" {
		t.Errorf("content = %q, want %q", got, "two\n")
	}
}

// memDestination records writes for scheduler tests.
type memDestination struct {
	mu     sync.Mutex
	writes [][]byte
}

func (d *memDestination) Write(_ context.Context, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	d.writes = append(d.writes, cp)
	return nil
}

func (d *memDestination) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.writes)
}

func TestSchedulerExportsImmediatelyAndStops(t *testing.T) {
	st := seedStore(t)
	dest := &memDestination{}

	s := NewScheduler(st, []Destination{dest}, time.Hour, nil)
	s.Start()

	deadline := time.Now().Add(5 * time.Second)
	for dest.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	s.Stop()

	if dest.count() != 1 {
		t.Fatalf("got %d writes, want 1 (initial export only)", dest.count())
	}
	if !bytes.Contains(dest.writes[0], []byte(`"type":"header"`)) {
		t.Error("export missing header record")
	}
}
