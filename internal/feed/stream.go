package feed

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/evvm-org/p2pswap/internal/p2pswap"
)

// StreamConfig holds tunable parameters for a StreamServer.
type StreamConfig struct {
	// HeartbeatInterval is how often an idle connection receives a
	// heartbeat message.
	HeartbeatInterval time.Duration
	// WriteTimeout bounds each frame write.
	WriteTimeout time.Duration
}

// DefaultStreamConfig returns defaults matched to DefaultWSConfig.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		HeartbeatInterval: time.Second,
		WriteTimeout:      5 * time.Second,
	}
}

// StreamServer serves hub events to WebSocket clients as JSON Messages.
// A "market" query parameter restricts the stream to one market.
type StreamServer struct {
	hub      *Hub
	cfg      StreamConfig
	upgrader websocket.Upgrader
}

// NewStreamServer creates a StreamServer backed by hub.
func NewStreamServer(hub *Hub, cfg StreamConfig) *StreamServer {
	return &StreamServer{
		hub: hub,
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
}

// ServeHTTP upgrades the request and streams events until either side
// closes.
func (s *StreamServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var sub <-chan p2pswap.Event
	if q := r.URL.Query().Get("market"); q != "" {
		id, err := strconv.ParseUint(q, 10, 64)
		if err != nil || id == 0 {
			http.Error(w, "invalid market", http.StatusBadRequest)
			return
		}
		sub = s.hub.Subscribe(id)
	} else {
		sub = s.hub.SubscribeAll()
	}
	defer s.hub.Unsubscribe(sub)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithField("component", "stream").WithError(err).Debug("upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Drain client frames so close and control frames are processed.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		var msg Message
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub:
			if !ok {
				return
			}
			msg = Encode(ev)
		case now := <-ticker.C:
			msg = Message{Kind: KindHeartbeat, At: now.UnixMilli()}
		}

		conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
		if err := conn.WriteJSON(msg); err != nil {
			log.WithField("component", "stream").WithError(err).Debug("write failed, closing stream")
			return
		}
	}
}
