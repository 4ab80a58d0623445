package sessionmgr

import (
	"context"
	"testing"
	"time"

	"github.com/ptyfan/ptyfan/internal/terminal"
)

func testConfig() terminal.Config {
	return terminal.Config{HistorySize: 1000}
}

func TestCreateGetRemoveSession(t *testing.T) {
	ctx := context.Background()
	m := New(nil)

	sess, err := m.CreateSession(ctx, testConfig(), 80, 24, "sleep 5")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if m.Count() != 1 {
		t.Fatalf("expected 1 session registered, got %d", m.Count())
	}

	got, ok := m.GetSession(sess.ID())
	if !ok || got != sess {
		t.Fatalf("expected GetSession to return the created session")
	}

	m.RemoveSession(ctx, sess.ID())
	if m.Count() != 0 {
		t.Errorf("expected 0 sessions after removal, got %d", m.Count())
	}
	if _, ok := m.GetSession(sess.ID()); ok {
		t.Error("expected GetSession to report absent after removal")
	}
}

func TestRemoveSessionAbsentIDIsSafe(t *testing.T) {
	m := New(nil)
	m.RemoveSession(context.Background(), "nosuchid")
}

func TestGenerateIDIsLowercaseAlphanumericAndUnique(t *testing.T) {
	ctx := context.Background()
	m := New(nil)

	seen := make(map[string]bool)
	for i := 0; i < 5; i++ {
		sess, err := m.CreateSession(ctx, testConfig(), 80, 24, "sleep 5")
		if err != nil {
			t.Fatalf("CreateSession: %v", err)
		}
		id := sess.ID()
		if len(id) != idLength {
			t.Errorf("expected id length %d, got %d (%q)", idLength, len(id), id)
		}
		for _, r := range id {
			if !((r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')) {
				t.Errorf("id %q contains invalid character %q", id, r)
			}
		}
		if seen[id] {
			t.Errorf("duplicate session id generated: %q", id)
		}
		seen[id] = true
	}

	m.Shutdown(ctx)
	if m.Count() != 0 {
		t.Errorf("expected 0 sessions after Shutdown, got %d", m.Count())
	}
}

func TestShutdownWaitsForAllSessionsToClose(t *testing.T) {
	ctx := context.Background()
	m := New(nil)

	for i := 0; i < 3; i++ {
		if _, err := m.CreateSession(ctx, testConfig(), 80, 24, "sleep 5"); err != nil {
			t.Fatalf("CreateSession: %v", err)
		}
	}

	done := make(chan struct{})
	go func() {
		m.Shutdown(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Shutdown did not return in time")
	}
	if m.Count() != 0 {
		t.Errorf("expected 0 sessions after Shutdown, got %d", m.Count())
	}
}
