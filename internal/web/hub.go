package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"settlement-rpc-go/internal/engine"
	"settlement-rpc-go/internal/recovery"
)

// StatusEvent is the message pushed to stream subscribers.
type StatusEvent struct {
	Type string      `json:"type"` // "domain_status"
	At   time.Time   `json:"at"`
	Data interface{} `json:"data"`
}

const (
	writeWait      = 10 * time.Second
	pongWait       = 30 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// operator tooling only; the listener is expected to sit behind the same auth as /metrics
	CheckOrigin: func(r *http.Request) bool { return true },
}

// subscriber is one connected status stream.
type subscriber struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub fans status events out to every connected subscriber. A subscriber that
// cannot keep up is dropped instead of blocking the publisher.
type Hub struct {
	subs       map[*subscriber]bool
	broadcast  chan interface{}
	register   chan *subscriber
	unregister chan *subscriber
	done       chan struct{}
	logger     *slog.Logger
}

func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan interface{}, 64),
		register:   make(chan *subscriber),
		unregister: make(chan *subscriber),
		subs:       make(map[*subscriber]bool),
		done:       make(chan struct{}),
		logger:     engine.Logger,
	}
}

func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("status_hub_started")
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.logger.Info("status_hub_stopping")
			for sub := range h.subs {
				close(sub.send)
				delete(h.subs, sub)
			}
			return
		case sub := <-h.register:
			h.subs[sub] = true
			h.logger.Info("stream_subscribed", slog.Int("subscribers", len(h.subs)))

		case sub := <-h.unregister:
			if _, ok := h.subs[sub]; ok {
				delete(h.subs, sub)
				close(sub.send)
				h.logger.Info("stream_unsubscribed", slog.Int("subscribers", len(h.subs)))
			}

		case event := <-h.broadcast:
			if len(h.subs) == 0 {
				continue
			}
			payload, err := json.Marshal(event)
			if err != nil {
				h.logger.Error("stream_encode_failed", slog.String("error", err.Error()))
				continue
			}
			for sub := range h.subs {
				select {
				case sub.send <- payload:
				default:
					h.logger.Warn("stream_subscriber_too_slow")
					close(sub.send)
					delete(h.subs, sub)
				}
			}
		}
	}
}

// Broadcast never blocks; events are dropped while the hub is busy.
func (h *Hub) Broadcast(event interface{}) {
	select {
	case h.broadcast <- event:
	default:
		h.logger.Warn("stream_event_dropped")
	}
}

// Publish broadcasts source() every interval until ctx ends.
func (h *Hub) Publish(ctx context.Context, interval time.Duration, source func() interface{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			h.Broadcast(StatusEvent{Type: "domain_status", At: now.UTC(), Data: source()})
		}
	}
}

func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("stream_upgrade_failed", slog.String("error", err.Error()))
		return
	}
	sub := &subscriber{hub: h, conn: conn, send: make(chan []byte, sendBuffer)}
	select {
	case h.register <- sub:
	case <-h.done:
		_ = conn.Close()
		return
	}

	recovery.Go("stream-write", sub.writePump)
	recovery.Go("stream-read", sub.readPump)
}

// readPump only services pongs and close frames; subscribers send nothing.
func (s *subscriber) readPump() {
	defer func() {
		select {
		case s.hub.unregister <- s:
		case <-s.hub.done:
		}
		_ = s.conn.Close()
	}()
	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *subscriber) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()
	for {
		select {
		case payload, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				s.hub.logger.Warn("stream_write_failed", slog.String("error", err.Error()))
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
