package sessionlog

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"
)

func TestLoggerWriteProducesTypescriptAndTiming(t *testing.T) {
	dir := t.TempDir()
	l := New(dir, "abc12345")
	if err := l.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	l.Write([]byte("hello "))
	l.Write([]byte("world"))
	l.Stop()

	tsPath, tmPath := findLogFiles(t, dir)

	ts, err := os.ReadFile(tsPath)
	if err != nil {
		t.Fatalf("reading typescript: %v", err)
	}
	if !strings.HasPrefix(string(ts), "Script started on ") {
		t.Errorf("missing header: %q", ts)
	}
	if !strings.Contains(string(ts), "hello world") {
		t.Errorf("missing payload: %q", ts)
	}
	if !strings.Contains(string(ts), "Script done on ") {
		t.Errorf("missing footer: %q", ts)
	}

	tm, err := os.ReadFile(tmPath)
	if err != nil {
		t.Fatalf("reading timing: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(tm), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 timing lines, got %d: %q", len(lines), tm)
	}
	for i, want := range []int{6, 5} {
		fields := strings.Fields(lines[i])
		if len(fields) != 2 {
			t.Fatalf("malformed timing line %q", lines[i])
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil || n != want {
			t.Errorf("line %d: expected byte count %d, got %q", i, want, fields[1])
		}
	}
}

func TestLoggerRotatesOnDateCrossing(t *testing.T) {
	dir := t.TempDir()
	l := New(dir, "rotate1")

	day1 := time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC)
	l.now = func() time.Time { return day1 }
	if err := l.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	l.Write([]byte("before midnight"))

	day2 := time.Date(2026, 3, 2, 0, 1, 0, 0, time.UTC)
	l.now = func() time.Time { return day2 }
	l.Write([]byte("after midnight"))
	l.Stop()

	var typescripts []string
	_ = filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() && strings.HasPrefix(info.Name(), "typescript-") && !strings.HasSuffix(info.Name(), ".timing") {
			typescripts = append(typescripts, path)
		}
		return nil
	})
	if len(typescripts) != 2 {
		t.Fatalf("expected 2 typescript files across the date boundary, got %d: %v", len(typescripts), typescripts)
	}

	var total string
	for _, p := range typescripts {
		data, err := os.ReadFile(p)
		if err != nil {
			t.Fatalf("reading %s: %v", p, err)
		}
		total += string(data)
	}
	if !strings.Contains(total, "before midnight") || !strings.Contains(total, "after midnight") {
		t.Errorf("expected both writes preserved across rotation, got %q", total)
	}

	day1Dir := filepath.Join(dir, "2026", "03", "01")
	day2Dir := filepath.Join(dir, "2026", "03", "02")
	if _, err := os.Stat(day1Dir); err != nil {
		t.Errorf("missing day1 directory: %v", err)
	}
	if _, err := os.Stat(day2Dir); err != nil {
		t.Errorf("missing day2 directory: %v", err)
	}
}

func TestLoggerStopIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	l := New(dir, "idem0001")
	if err := l.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	l.Write([]byte("x"))
	l.Stop()
	l.Stop() // must not panic or double-write footer
}

func findLogFiles(t *testing.T, dir string) (tsPath, tmPath string) {
	t.Helper()
	_ = filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if strings.HasSuffix(info.Name(), ".timing") {
			tmPath = path
		} else if strings.HasPrefix(info.Name(), "typescript-") {
			tsPath = path
		}
		return nil
	})
	if tsPath == "" || tmPath == "" {
		t.Fatalf("could not find log files under %s", dir)
	}
	return tsPath, tmPath
}
