package wsapi

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"
)

const sendQueueCapacity = 256

type frame struct {
	kind websocket.MessageType
	data []byte
}

// wsClient adapts a single websocket connection to terminal.Client. Frames
// queued via SendBinary/SendText are drained by writePump; a client whose
// queue is full or whose connection has died is reported back to the
// session's actor as an error, which removes it from the broadcast set.
type wsClient struct {
	id   string
	conn *websocket.Conn

	send      chan frame
	closeOnce sync.Once
}

func newWSClient(conn *websocket.Conn) *wsClient {
	return &wsClient{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan frame, sendQueueCapacity),
	}
}

func (c *wsClient) ID() string { return c.id }

func (c *wsClient) SendBinary(data []byte) error {
	return c.enqueue(frame{kind: websocket.MessageBinary, data: data})
}

func (c *wsClient) SendText(data []byte) error {
	return c.enqueue(frame{kind: websocket.MessageText, data: data})
}

func (c *wsClient) enqueue(f frame) error {
	select {
	case c.send <- f:
		return nil
	default:
		return fmt.Errorf("wsapi: client %s send queue full", c.id)
	}
}

// Close stops writePump, which in turn closes the underlying connection.
// Idempotent.
func (c *wsClient) Close() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}

// writePump drains the send queue onto the websocket connection and sends
// a keepalive ping every 30 seconds, matching the teacher's hub.Client
// pattern.
func (c *wsClient) writePump(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.conn.Ping(ctx); err != nil {
				return
			}
		case f, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.Write(ctx, f.kind, f.data); err != nil {
				return
			}
		}
	}
}

// writeDirect sends one frame immediately, bypassing the send queue. Used
// only for the handshake frames (session, MOTD) that must be written
// before writePump starts draining the queue, preserving handshake order.
func (c *wsClient) writeDirect(ctx context.Context, kind websocket.MessageType, data []byte) error {
	return c.conn.Write(ctx, kind, data)
}
