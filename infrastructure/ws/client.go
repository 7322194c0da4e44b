package ws

import (
	"chat-relay/contract"
	"chat-relay/domain/event"
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

// Dispatcher is the slice of the realtime core the transport needs.
type Dispatcher interface {
	HandleConnect(connID string, sink contract.EventSink)
	HandleDisconnect(ctx context.Context, connID string)
	Dispatch(ctx context.Context, connID string, name event.Name, data json.RawMessage)
}

// client owns one WebSocket connection and its two pumps. The read pump is
// the only reader and the write pump the only writer, per gorilla's
// concurrency contract.
type client struct {
	connID     string
	conn       *websocket.Conn
	sink       *Sink
	dispatcher Dispatcher
	log        *slog.Logger

	readLimit    int64
	pongWait     time.Duration
	pingInterval time.Duration
	writeTimeout time.Duration
}

// readPump decodes inbound envelopes and hands them to the dispatcher. When
// it returns, the connection is gone: the dispatcher is notified exactly once
// and the sink is released. A panic in a handler is contained here so one
// connection cannot bring the process down.
func (c *client) readPump(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("handler panic", "conn_id", c.connID, "panic", r)
		}
		c.dispatcher.HandleDisconnect(ctx, c.connID)
		c.sink.Close()
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(c.readLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure) {
				c.log.Warn("websocket read error", "conn_id", c.connID, "error", err)
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			c.log.Warn("malformed envelope", "conn_id", c.connID, "error", err)
			continue
		}
		c.dispatcher.Dispatch(ctx, c.connID, env.Event, env.Data)
	}
}

// writePump drains the sink onto the wire and keeps the connection alive with
// pings. It exits when the sink is closed or a write fails.
func (c *client) writePump() {
	ticker := time.NewTicker(c.pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame := <-c.sink.Outbound():
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.log.Debug("websocket write failed", "conn_id", c.connID, "error", err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.sink.Done():
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
