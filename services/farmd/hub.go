package farmd

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"nftfarm/core/events"
)

const (
	wsWriteTimeout   = 10 * time.Second
	subscriberBuffer = 64
)

// Hub fans committed farm events out to websocket subscribers. A subscriber
// that falls a full buffer behind is disconnected.
type Hub struct {
	logger *slog.Logger

	mu      sync.Mutex
	nextID  uint64
	clients map[uint64]chan []byte
}

// NewHub constructs an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{logger: logger, clients: make(map[uint64]chan []byte)}
}

// Emit implements events.Emitter.
func (h *Hub) Emit(evt events.Event) {
	payload, ok := evt.(events.Payload)
	if !ok {
		return
	}
	data, err := json.Marshal(payload.Event())
	if err != nil {
		h.logger.Warn("encode event", slog.String("type", evt.EventType()), slog.Any("error", err))
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.clients {
		select {
		case ch <- data:
		default:
			close(ch)
			delete(h.clients, id)
			h.logger.Warn("dropping slow event subscriber", slog.Uint64("subscriber", id))
		}
	}
}

// Subscribe registers a new subscriber and returns its feed and a cancel func.
func (h *Hub) Subscribe() (<-chan []byte, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	id := h.nextID
	ch := make(chan []byte, subscriberBuffer)
	h.clients[id] = ch
	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if existing, ok := h.clients[id]; ok {
			close(existing)
			delete(h.clients, id)
		}
	}
}

// Subscribers reports the number of connected subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	// The feed is write-only; CloseRead handles pings and the peer's close.
	ctx := conn.CloseRead(r.Context())
	feed, cancel := h.Subscribe()
	defer cancel()
	if err := h.stream(ctx, conn, feed); err != nil {
		if websocket.CloseStatus(err) == -1 {
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func (h *Hub) stream(ctx context.Context, conn *websocket.Conn, feed <-chan []byte) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data, ok := <-feed:
			if !ok {
				return conn.Close(websocket.StatusPolicyViolation, "subscriber too slow")
			}
			writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
			err := conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return err
			}
		}
	}
}
