package bus

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/enclasse/classrelay/internal/core"
)

var ErrBackpressure = errors.New("backpressure")

// wsConn wraps one subscriber socket with a buffered outbound channel.
// The hub owns it and must Close() it exactly once.
type wsConn struct {
	id   core.SocketID
	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	closed bool
}

func newWSConn(id core.SocketID, ws *websocket.Conn) *wsConn {
	return &wsConn{
		id:   id,
		conn: ws,
		send: make(chan []byte, 32),
	}
}

// TrySend queues a frame without blocking. A full buffer means the
// subscriber is too slow; the caller decides what to do about it.
func (c *wsConn) TrySend(b []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- b:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *wsConn) sendJSON(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "bus").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}

func (c *wsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

func (c *wsConn) writePump(ctx context.Context, pingPeriod time.Duration) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				log.Info().Err(err).Str("module", "bus").Str("socket", string(c.id)).Msg("writePump keepalive")
				return
			}
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "bus").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "bus").Msg("writePump write error")
				return
			}
		}
	}
}
