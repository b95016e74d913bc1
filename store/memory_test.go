package store

import (
	"context"
	"testing"
	"time"

	"github.com/tasklab/agentq/task"
)

func TestMemoryStatusLifecycle(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	if _, err := s.GetStatus(ctx, "t1"); err != ErrNotFound {
		t.Errorf("GetStatus on missing task = %v, want ErrNotFound", err)
	}

	for _, status := range []task.Status{task.StatusQueued, task.StatusRunning, task.StatusDone} {
		if err := s.SetStatus(ctx, "t1", status, time.Hour); err != nil {
			t.Fatalf("SetStatus(%s) failed: %v", status, err)
		}
		got, err := s.GetStatus(ctx, "t1")
		if err != nil {
			t.Fatalf("GetStatus failed: %v", err)
		}
		if got != status {
			t.Errorf("GetStatus = %s, want %s", got, status)
		}
	}
}

func TestMemoryTTLExpiry(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	if err := s.SetStatus(ctx, "t1", task.StatusQueued, 20*time.Millisecond); err != nil {
		t.Fatal(err)
	}

	if _, err := s.GetStatus(ctx, "t1"); err != nil {
		t.Fatalf("fresh entry should be readable: %v", err)
	}

	time.Sleep(30 * time.Millisecond)
	if _, err := s.GetStatus(ctx, "t1"); err != ErrNotFound {
		t.Errorf("expired entry = %v, want ErrNotFound", err)
	}
}

func TestMemoryStatusWithResult(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	result := []byte(`{"tags":["electronics"],"score":95}`)
	if err := s.SetStatusWithResult(ctx, "t1", task.StatusDone, result, time.Hour); err != nil {
		t.Fatalf("SetStatusWithResult failed: %v", err)
	}

	status, err := s.GetStatus(ctx, "t1")
	if err != nil || status != task.StatusDone {
		t.Errorf("GetStatus = %s, %v", status, err)
	}
	got, err := s.GetResult(ctx, "t1")
	if err != nil {
		t.Fatalf("GetResult failed: %v", err)
	}
	if string(got) != string(result) {
		t.Errorf("GetResult = %s", got)
	}
}

func TestMemoryDelete(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	s.SetStatusWithResult(ctx, "t1", task.StatusDone, []byte("r"), time.Hour)
	if err := s.Delete(ctx, "t1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := s.GetStatus(ctx, "t1"); err != ErrNotFound {
		t.Errorf("GetStatus after delete = %v", err)
	}
	if _, err := s.GetResult(ctx, "t1"); err != ErrNotFound {
		t.Errorf("GetResult after delete = %v", err)
	}
}

func TestMemoryClosed(t *testing.T) {
	s := NewMemoryStore()
	s.Close()
	ctx := context.Background()

	if err := s.SetStatus(ctx, "t1", task.StatusQueued, time.Hour); err != ErrClosed {
		t.Errorf("SetStatus after close = %v, want ErrClosed", err)
	}
	if err := s.Ping(ctx); err != ErrClosed {
		t.Errorf("Ping after close = %v, want ErrClosed", err)
	}
	// Closing twice is fine.
	if err := s.Close(); err != nil {
		t.Errorf("second Close = %v", err)
	}
}

func TestMemoryKeys(t *testing.T) {
	if got := StatusKey("t1"); got != "task:t1:status" {
		t.Errorf("StatusKey = %q", got)
	}
	if got := ResultKey("t1"); got != "task:t1:result" {
		t.Errorf("ResultKey = %q", got)
	}
}
