package ws

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Options tunes the per-connection transport behavior.
type Options struct {
	SendBufferSize int
	ReadLimit      int64
	PongWait       time.Duration
	PingInterval   time.Duration
	WriteTimeout   time.Duration
}

// Handler upgrades HTTP requests to WebSocket connections and binds each to
// the dispatcher under a fresh connection id.
type Handler struct {
	log        *slog.Logger
	dispatcher Dispatcher
	upgrader   websocket.Upgrader
	opts       Options
}

func NewHandler(log *slog.Logger, dispatcher Dispatcher, opts Options) *Handler {
	return &Handler{
		log:        log,
		dispatcher: dispatcher,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origin filtering belongs to a reverse proxy in this deployment.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		opts: opts,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	connID := uuid.NewString()
	sink := NewSink(h.opts.SendBufferSize)
	c := &client{
		connID:       connID,
		conn:         conn,
		sink:         sink,
		dispatcher:   h.dispatcher,
		log:          h.log,
		readLimit:    h.opts.ReadLimit,
		pongWait:     h.opts.PongWait,
		pingInterval: h.opts.PingInterval,
		writeTimeout: h.opts.WriteTimeout,
	}

	h.dispatcher.HandleConnect(connID, sink)
	h.log.Debug("websocket connected", "conn_id", connID, "remote", r.RemoteAddr)

	// The request context dies when ServeHTTP returns; the pumps outlive it
	// on the hijacked connection, so they run under the background context.
	go c.writePump()
	go c.readPump(context.Background())
}
