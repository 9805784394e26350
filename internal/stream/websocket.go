package stream

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const maxInboundMessageSize = 512

type wsFrame struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// WSConn carries the same events as SSE, one JSON text frame per event.
type WSConn struct {
	conn      *websocket.Conn
	writeWait time.Duration
	mu        sync.Mutex
}

func NewWSConn(conn *websocket.Conn, writeWait time.Duration) *WSConn {
	return &WSConn{
		conn:      conn,
		writeWait: writeWait,
	}
}

func (c *WSConn) Send(ev Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
	return c.conn.WriteJSON(wsFrame{Event: ev.Name, Data: ev.Data})
}

// ReadLoop discards inbound frames and calls cancel once the client goes
// away, which is how a websocket stream learns about disconnects.
func (c *WSConn) ReadLoop(cancel context.CancelFunc, log *zap.Logger) {
	defer cancel()

	c.conn.SetReadLimit(maxInboundMessageSize)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Debug("websocket read error", zap.Error(err))
			}
			return
		}
	}
}

// Close sends a close frame, best effort, and releases the connection.
func (c *WSConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(c.writeWait))
	return c.conn.Close()
}
