package events

import (
	"context"
	"net/http"
	"sync"
	"time"

	"WalletLedger/internal/models"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub broadcasts committed order events to websocket clients of the same app.
// Slow clients lose events rather than stall publishers.
type Hub struct {
	Logger *zap.Logger
	Buffer int

	mu   sync.RWMutex
	subs map[int64]map[chan []byte]struct{}
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{Logger: logger, Buffer: 64, subs: map[int64]map[chan []byte]struct{}{}}
}

// Subscribe registers a feed for appID. cancel must be called to release it.
func (h *Hub) Subscribe(appID int64) (<-chan []byte, func()) {
	ch := make(chan []byte, h.Buffer)
	h.mu.Lock()
	if h.subs[appID] == nil {
		h.subs[appID] = map[chan []byte]struct{}{}
	}
	h.subs[appID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[appID], ch)
			if len(h.subs[appID]) == 0 {
				delete(h.subs, appID)
			}
			h.mu.Unlock()
		})
	}
}

func (h *Hub) Subscribers(appID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[appID])
}

func (h *Hub) Publish(_ context.Context, ev models.OrderEvent) error {
	data, err := Encode(ev)
	if err != nil {
		return err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[ev.AppID] {
		select {
		case ch <- data:
		default:
			h.Logger.Warn("ws subscriber lagging, event dropped",
				zap.Int64("app_id", ev.AppID),
				zap.String("order_id", ev.OrderID.String()),
				zap.String("type", string(ev.Type)),
			)
		}
	}
	return nil
}

// ServeWS upgrades the request and streams appID's events until the client goes away.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, appID int64) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	feed, cancel := h.Subscribe(appID)
	defer cancel()
	h.Logger.Info("ws client connected", zap.Int64("app_id", appID), zap.String("remote", r.RemoteAddr))

	// Reads only serve control frames and close detection.
	closed := make(chan struct{})
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-closed:
			h.Logger.Info("ws client disconnected", zap.Int64("app_id", appID))
			return
		case <-r.Context().Done():
			return
		case data := <-feed:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.Logger.Warn("ws write failed", zap.Int64("app_id", appID), zap.Error(err))
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
