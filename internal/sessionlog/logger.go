// Package sessionlog writes PTY output to script(1)/scriptreplay(1)
// compatible typescript and timing files, rotating on calendar-date
// crossings.
package sessionlog

import (
	"crypto/rand"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

const suffixAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// Logger appends PTY output for one session to date-partitioned files.
// Safe for single-goroutine use; callers (the owning session actor) are
// expected to serialize calls, matching the rest of this repo's
// single-writer discipline.
type Logger struct {
	baseDir   string
	sessionID string
	now       func() time.Time

	mu                sync.Mutex
	suffix            string
	currentDate       string
	typescript        *os.File
	timing            *os.File
	lastWrite         time.Time
	bytesThisRotation int64
	closed            bool
}

// New constructs a Logger rooted at baseDir for the given session id.
// Nothing is opened until Start is called.
func New(baseDir, sessionID string) *Logger {
	return &Logger{baseDir: baseDir, sessionID: sessionID, now: time.Now}
}

// Start opens the initial typescript/timing files. A failure to create
// the log directory is returned, not logged here; callers should treat this as
// "logging unavailable for this session", not a fatal session error.
func (l *Logger) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rotateIfNeeded()
}

// Write appends one output chunk: raw bytes to the typescript file, and a
// "<delay_seconds> <byte_count>\n" line to the timing file. Failures are
// logged at WARN and swallowed — logging must never propagate errors into
// the fan-out path.
func (l *Logger) Write(data []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}
	if err := l.rotateIfNeeded(); err != nil {
		slog.Warn("sessionlog: rotation failed, dropping write", "session_id", l.sessionID, "error", err)
		return
	}

	now := l.now()
	delay := now.Sub(l.lastWrite).Seconds()
	l.lastWrite = now

	if l.typescript != nil {
		if _, err := l.typescript.Write(data); err != nil {
			slog.Warn("sessionlog: typescript write failed", "session_id", l.sessionID, "error", err)
		} else {
			l.bytesThisRotation += int64(len(data))
		}
	}
	if l.timing != nil {
		line := fmt.Sprintf("%.6f %d\n", delay, len(data))
		if _, err := l.timing.Write([]byte(line)); err != nil {
			slog.Warn("sessionlog: timing write failed", "session_id", l.sessionID, "error", err)
		}
	}
}

// Stop writes the footer and closes both files. Idempotent.
func (l *Logger) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}
	l.closed = true

	if l.typescript != nil {
		footer := fmt.Sprintf("\nScript done on %s\n", l.now().Format("2006-01-02"))
		if _, err := l.typescript.Write([]byte(footer)); err != nil {
			slog.Warn("sessionlog: footer write failed", "session_id", l.sessionID, "error", err)
		}
	}
	slog.Info("sessionlog: stopped", "session_id", l.sessionID, "bytes", humanize.Bytes(uint64(l.bytesThisRotation)))
	l.closeFiles()
}

// rotateIfNeeded opens new files when the calendar date (local time) has
// changed since the last write, or on first use. Must be called with mu
// held.
func (l *Logger) rotateIfNeeded() error {
	today := l.now().Format("2006-01-02")
	if l.currentDate == today && l.typescript != nil {
		return nil
	}

	if l.typescript != nil {
		slog.Info("sessionlog: rotating", "session_id", l.sessionID, "bytes", humanize.Bytes(uint64(l.bytesThisRotation)))
	}
	l.closeFiles()

	l.currentDate = today
	l.suffix = randomSuffix(6)
	l.bytesThisRotation = 0

	now := l.now()
	dateDir := filepath.Join(l.baseDir, now.Format("2006"), now.Format("01"), now.Format("02"))
	if err := os.MkdirAll(dateDir, 0o755); err != nil {
		return fmt.Errorf("sessionlog: creating log directory: %w", err)
	}

	base := fmt.Sprintf("typescript-%s-%s", l.sessionID, l.suffix)
	tsPath := filepath.Join(dateDir, base)
	tmPath := filepath.Join(dateDir, base+".timing")

	ts, err := os.OpenFile(tsPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("sessionlog: opening typescript file: %w", err)
	}
	tm, err := os.OpenFile(tmPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		_ = ts.Close()
		return fmt.Errorf("sessionlog: opening timing file: %w", err)
	}

	l.typescript = ts
	l.timing = tm
	l.lastWrite = now

	header := fmt.Sprintf("Script started on %s\n", today)
	if _, err := l.typescript.Write([]byte(header)); err != nil {
		slog.Warn("sessionlog: header write failed", "session_id", l.sessionID, "error", err)
	}
	return nil
}

func (l *Logger) closeFiles() {
	if l.typescript != nil {
		_ = l.typescript.Close()
		l.typescript = nil
	}
	if l.timing != nil {
		_ = l.timing.Close()
		l.timing = nil
	}
}

func randomSuffix(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand failing is effectively unrecoverable; fall back to
		// a timestamp-derived suffix rather than block session startup.
		return fmt.Sprintf("%x", time.Now().UnixNano())[:n]
	}
	out := make([]byte, n)
	for i, c := range b {
		out[i] = suffixAlphabet[int(c)%len(suffixAlphabet)]
	}
	return string(out)
}
