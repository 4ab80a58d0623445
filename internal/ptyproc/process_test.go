package ptyproc

import (
	"strings"
	"sync"
	"testing"
	"time"
)

func TestProcessSpawnAndOutput(t *testing.T) {
	var mu sync.Mutex
	var out strings.Builder
	exited := make(chan struct{})

	p := New(Config{}, func(b []byte) {
		mu.Lock()
		out.Write(b)
		mu.Unlock()
	}, func() {
		close(exited)
	})

	if err := p.Spawn(80, 24, "echo hello-ptyproc"); err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	select {
	case <-exited:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for exit")
	}

	mu.Lock()
	got := out.String()
	mu.Unlock()
	if !strings.Contains(got, "hello-ptyproc") {
		t.Errorf("expected output to contain %q, got %q", "hello-ptyproc", got)
	}
	if p.Alive() {
		t.Error("expected process to be not alive after exit")
	}
}

func TestProcessResizeAndClose(t *testing.T) {
	p := New(Config{}, func([]byte) {}, func() {})
	if err := p.Spawn(80, 24, "sleep 5"); err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	p.Resize(132, 40)
	p.Close()
	p.Close() // idempotent
	if p.Alive() {
		t.Error("expected process to be dead after Close")
	}
}

func TestProcessWriteAfterClose(t *testing.T) {
	p := New(Config{}, func([]byte) {}, func() {})
	if err := p.Spawn(80, 24, "cat"); err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	p.Close()
	// Must not panic or block.
	p.Write([]byte("hello"))
}

func TestResolveArgvPriority(t *testing.T) {
	argv, err := resolveArgv("", "", "/bin/bash")
	if err != nil {
		t.Fatalf("resolveArgv: %v", err)
	}
	if len(argv) != 2 || argv[0] != "/bin/bash" || argv[1] != "-il" {
		t.Errorf("expected login shell fallback, got %v", argv)
	}

	argv, err = resolveArgv("", "htop", "/bin/bash")
	if err != nil {
		t.Fatalf("resolveArgv: %v", err)
	}
	if len(argv) != 1 || argv[0] != "htop" {
		t.Errorf("expected global cmd to win over shell, got %v", argv)
	}

	argv, err = resolveArgv(`python3 -c "print(1)"`, "htop", "/bin/bash")
	if err != nil {
		t.Fatalf("resolveArgv: %v", err)
	}
	want := []string{"python3", "-c", "print(1)"}
	if len(argv) != len(want) {
		t.Fatalf("expected %v, got %v", want, argv)
	}
	for i := range want {
		if argv[i] != want[i] {
			t.Errorf("arg %d: expected %q, got %q", i, want[i], argv[i])
		}
	}
}
