// Package terminal implements the session fan-out engine: one PTY child
// bound to an N-client broadcast group, with a rolling history buffer and
// optional on-disk logging.
//
// Per the single-writer discipline described in the design notes, each
// Session runs one owning goroutine (its "actor") that is the only code
// path allowed to mutate the session's state. Every exported method is a
// thin send into the actor's mailbox channel.
package terminal

import (
	"context"
	"log/slog"
	"time"

	"github.com/ptyfan/ptyfan/internal/ptyproc"
	"github.com/ptyfan/ptyfan/internal/sessionlog"
)

// Client is anything a Session can broadcast binary frames and text
// control frames to. Implemented by internal/wsapi's connection wrapper;
// kept minimal here so this package never imports a websocket library.
type Client interface {
	// ID uniquely identifies this client within the session's lifetime.
	ID() string
	// SendBinary delivers a raw output chunk. Returns an error if the
	// client can no longer receive data (e.g. connection closed); the
	// session removes the client on error.
	SendBinary(data []byte) error
	// SendText delivers a control message (e.g. the exit notice).
	SendText(data []byte) error
	// Close releases the client's underlying connection.
	Close()
}

// Config bundles a session's static configuration, resolved once at
// construction from server-wide defaults and any per-session override.
type Config struct {
	HistorySize int
	LogEnabled  bool
	LogDir      string
	PtyConfig   ptyproc.Config
}

// Session binds one PtyProcess to a set of attached clients.
type Session struct {
	id        string
	createdAt time.Time
	cfg       Config

	mailbox chan message
	done    chan struct{}
}

type msgKind int

const (
	msgAttach msgKind = iota
	msgDetach
	msgInput
	msgResize
	msgPtyOutput
	msgPtyExit
	msgClose
	msgStatusQuery
)

type statusReply struct {
	alive       bool
	clientCount int
	peakClients int
}

type message struct {
	kind   msgKind
	client Client
	data   []byte
	cols   int
	rows   int
	status chan statusReply
}

const mailboxCapacity = 256

// New constructs a Session. The PTY is not spawned until Start is called.
func New(id string, cfg Config) *Session {
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 50_000
	}
	return &Session{
		id:        id,
		createdAt: time.Now().UTC(),
		cfg:       cfg,
		mailbox:   make(chan message, mailboxCapacity),
		done:      make(chan struct{}),
	}
}

// ID returns the session's immutable identifier.
func (s *Session) ID() string { return s.id }

// CreatedAt returns the UTC construction timestamp.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Start spawns the PTY, wires its callbacks to this session's actor
// mailbox, and starts the logger if enabled. The actor goroutine is
// started here too.
func (s *Session) Start(cols, rows int, cmd string) error {
	var logger *sessionlog.Logger
	if s.cfg.LogEnabled {
		logger = sessionlog.New(s.cfg.LogDir, s.id)
		if err := logger.Start(); err != nil {
			slog.Warn("terminal: session logging disabled", "session_id", s.id, "error", err)
			logger = nil
		}
	}

	proc := ptyproc.New(s.cfg.PtyConfig,
		func(data []byte) { s.postPtyOutput(data) },
		func() { s.postPtyExit() },
	)

	if err := proc.Spawn(cols, rows, cmd); err != nil {
		if logger != nil {
			logger.Stop()
		}
		// No actor is started on this path, so nothing will ever close
		// s.done; close it here so Close/Status/Write etc. on this
		// already-dead session don't block forever waiting for an actor
		// that never ran.
		close(s.done)
		return err
	}

	a := &actor{
		session: s,
		pty:     proc,
		logger:  logger,
		history: make([]byte, 0, s.cfg.HistorySize),
		clients: make(map[string]Client),
	}
	go a.run()

	return nil
}

// AddClient registers a client and immediately (best-effort) sends the
// current history as one binary frame.
func (s *Session) AddClient(c Client) {
	s.send(message{kind: msgAttach, client: c})
}

// RemoveClient unregisters a client. No-op if not present.
func (s *Session) RemoveClient(c Client) {
	s.send(message{kind: msgDetach, client: c})
}

// Write forwards input bytes to the PTY. No-op if the session has no PTY
// (already closed).
func (s *Session) Write(data []byte) {
	s.send(message{kind: msgInput, data: data})
}

// Resize forwards a window-size change to the PTY.
func (s *Session) Resize(cols, rows int) {
	s.send(message{kind: msgResize, cols: cols, rows: rows})
}

// Status returns whether the PTY is alive and how many clients are
// attached, read synchronously from the owning actor.
func (s *Session) Status() (alive bool, clientCount int) {
	reply := make(chan statusReply, 1)
	select {
	case s.mailbox <- message{kind: msgStatusQuery, status: reply}:
	case <-s.done:
		return false, 0
	}
	select {
	case r := <-reply:
		return r.alive, r.clientCount
	case <-s.done:
		return false, 0
	}
}

// Alive reports whether the underlying PTY has not yet exited.
func (s *Session) Alive() bool {
	alive, _ := s.Status()
	return alive
}

// ClientCount returns the number of currently attached clients.
func (s *Session) ClientCount() int {
	_, count := s.Status()
	return count
}

// PeakClients returns the highest number of clients ever attached at once
// over the session's lifetime, for SessionStore's lifecycle ledger.
func (s *Session) PeakClients() int {
	reply := make(chan statusReply, 1)
	select {
	case s.mailbox <- message{kind: msgStatusQuery, status: reply}:
	case <-s.done:
		return 0
	}
	select {
	case r := <-reply:
		return r.peakClients
	case <-s.done:
		return 0
	}
}

// Close idempotently releases the PTY, stops the logger, and closes every
// attached client. It blocks until the actor goroutine has finished.
func (s *Session) Close() {
	select {
	case s.mailbox <- message{kind: msgClose}:
	case <-s.done:
		return
	}
	<-s.done
}

// send enqueues a message, tolerating a session whose actor has already
// finished (done is closed once, at the very end of actor.run).
func (s *Session) send(m message) {
	select {
	case s.mailbox <- m:
	case <-s.done:
	}
}

// WaitClosed blocks until the session's actor has fully torn down, or ctx
// is cancelled first.
func (s *Session) WaitClosed(ctx context.Context) {
	select {
	case <-s.done:
	case <-ctx.Done():
	}
}

func (s *Session) postPtyOutput(data []byte) {
	s.send(message{kind: msgPtyOutput, data: data})
}

func (s *Session) postPtyExit() {
	s.send(message{kind: msgPtyExit})
}
