package http

import (
	"context"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// wsConn adapts a websocket connection to core.Conn. The mutex serializes
// concurrent senders (every other connection's goroutine may write here
// during a fan-out); the timeout bounds each send so a stalled reader counts
// as a delivery failure instead of blocking the pass.
type wsConn struct {
	conn         *websocket.Conn
	writeTimeout time.Duration

	mu sync.Mutex
}

func newWSConn(conn *websocket.Conn, writeTimeout time.Duration) *wsConn {
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	return &wsConn{conn: conn, writeTimeout: writeTimeout}
}

func (c *wsConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Deadline from Background, not from the sender's request context: a
	// sender disconnecting mid fan-out must not fail deliveries to others.
	ctx, cancel := context.WithTimeout(context.Background(), c.writeTimeout)
	defer cancel()

	return c.conn.Write(ctx, websocket.MessageText, data)
}

func (c *wsConn) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "closing")
}
