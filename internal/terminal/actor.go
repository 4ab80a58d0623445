package terminal

import (
	"log/slog"

	"github.com/ptyfan/ptyfan/internal/ptyproc"
	"github.com/ptyfan/ptyfan/internal/sessionlog"
)

const exitMessage = `{"type":"exit"}`

// actor owns all of a Session's mutable state. It is the only goroutine
// that ever reads or writes history, clients, or touches the pty/logger
// handles — the Go realization of the spec's single-threaded,
// lock-free-by-construction event loop.
type actor struct {
	session *Session
	pty     *ptyproc.Process
	logger  *sessionlog.Logger

	history    []byte
	clients    map[string]Client
	clientPeak int
	ptyExited  bool
	closing    bool
}

func (a *actor) run() {
	defer close(a.session.done)

	for m := range a.session.mailbox {
		switch m.kind {
		case msgAttach:
			a.handleAttach(m.client)
		case msgDetach:
			a.handleDetach(m.client)
		case msgInput:
			if a.pty != nil {
				a.pty.Write(m.data)
			}
		case msgResize:
			if a.pty != nil {
				a.pty.Resize(m.cols, m.rows)
			}
		case msgPtyOutput:
			a.handlePtyOutput(m.data)
		case msgPtyExit:
			a.handlePtyExit()
		case msgStatusQuery:
			a.handleStatusQuery(m.status)
		case msgClose:
			a.handleClose()
			return
		}
	}
}

func (a *actor) handleAttach(c Client) {
	if c == nil {
		return
	}
	a.clients[c.ID()] = c
	if len(a.clients) > a.clientPeak {
		a.clientPeak = len(a.clients)
	}

	if len(a.history) > 0 {
		if err := c.SendBinary(append([]byte(nil), a.history...)); err != nil {
			slog.Warn("terminal: history replay failed", "session_id", a.session.id, "client_id", c.ID(), "error", err)
		}
	}
}

func (a *actor) handleDetach(c Client) {
	if c == nil {
		return
	}
	delete(a.clients, c.ID())
}

// handlePtyOutput implements the spec's on_pty_output: append to history
// (sliding the window forward on overflow), log, then broadcast to a
// snapshot of attached clients so concurrent detach during iteration is
// safe.
func (a *actor) handlePtyOutput(data []byte) {
	a.history = append(a.history, data...)
	if limit := a.session.cfg.HistorySize; len(a.history) > limit {
		drop := len(a.history) - limit
		a.history = a.history[drop:]
	}

	if a.logger != nil {
		a.logger.Write(data)
	}

	for id, c := range snapshot(a.clients) {
		if err := c.SendBinary(data); err != nil {
			delete(a.clients, id)
		}
	}
}

// handlePtyExit sends the one-shot exit notice to every attached client.
// The session is NOT removed here — removal happens when the last client
// detaches and the PTY is no longer alive (see wsapi's reapIfDone).
func (a *actor) handlePtyExit() {
	a.ptyExited = true
	for id, c := range snapshot(a.clients) {
		if err := c.SendText([]byte(exitMessage)); err != nil {
			delete(a.clients, id)
		}
	}
}

func (a *actor) handleStatusQuery(reply chan statusReply) {
	reply <- statusReply{
		alive:       a.pty != nil && a.pty.Alive() && !a.ptyExited,
		clientCount: len(a.clients),
		peakClients: a.clientPeak,
	}
}

// handleClose releases the PTY, stops the logger, and closes every
// attached client. Idempotent by construction: run() only ever processes
// one msgClose, since it returns immediately afterward.
func (a *actor) handleClose() {
	if a.closing {
		return
	}
	a.closing = true

	if a.pty != nil {
		a.pty.Close()
	}
	if a.logger != nil {
		a.logger.Stop()
	}
	for _, c := range snapshot(a.clients) {
		c.Close()
	}
	a.clients = make(map[string]Client)

	slog.Info("terminal: session closed", "session_id", a.session.id, "peak_clients", a.clientPeak)
}

// snapshot copies the client map so broadcast/exit iteration can safely
// mutate the original via delete without racing a concurrent range.
func snapshot(clients map[string]Client) map[string]Client {
	out := make(map[string]Client, len(clients))
	for k, v := range clients {
		out[k] = v
	}
	return out
}
