package feed

import (
	"context"
	"encoding/json"
	"math"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

// WSConfig holds tunable parameters for a WSClient.
type WSConfig struct {
	URL string

	// Buffer sizes for the underlying TCP connection.
	ReadBufferSize  int
	WriteBufferSize int

	// HeartbeatTimeout is the maximum duration of silence before the client
	// considers the connection dead and reconnects. It must exceed the
	// server's heartbeat interval.
	HeartbeatTimeout time.Duration

	// Backoff parameters for reconnection.
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	BackoffFactor  float64

	// Headers sent during the WebSocket handshake.
	Headers http.Header
}

// DefaultWSConfig returns defaults for following an engine event stream.
func DefaultWSConfig(url string) WSConfig {
	return WSConfig{
		URL:              url,
		ReadBufferSize:   4096,
		WriteBufferSize:  1024,
		HeartbeatTimeout: 3 * time.Second,
		BackoffInitial:   100 * time.Millisecond,
		BackoffMax:       10 * time.Second,
		BackoffFactor:    2.0,
	}
}

// WSClient follows an event stream. It reconnects with exponential backoff,
// treats silence longer than HeartbeatTimeout as a dead connection, and fans
// decoded events out to subscribers. Heartbeats are not delivered.
type WSClient struct {
	cfg WSConfig

	connected atomic.Bool

	mu   sync.RWMutex
	conn *websocket.Conn

	subMu sync.RWMutex
	subs  []chan Message

	cancel context.CancelFunc
	done   chan struct{}

	// onReconnect is called after each successful reconnection (testing hook).
	onReconnect func()
}

// NewWSClient creates a new stream client. Call Connect to start.
func NewWSClient(cfg WSConfig) *WSClient {
	return &WSClient{
		cfg:  cfg,
		done: make(chan struct{}),
	}
}

// Connected reports whether the client currently holds a live connection.
func (ws *WSClient) Connected() bool {
	return ws.connected.Load()
}

// Subscribe returns a channel that receives every decoded event.
// The caller must drain the channel to avoid missing events.
func (ws *WSClient) Subscribe() <-chan Message {
	ch := make(chan Message, 512)
	ws.subMu.Lock()
	ws.subs = append(ws.subs, ch)
	ws.subMu.Unlock()
	return ch
}

// Connect dials the stream and starts the read loop. It blocks until the
// initial connection succeeds or fails.
func (ws *WSClient) Connect(ctx context.Context) error {
	ctx, ws.cancel = context.WithCancel(ctx)

	if err := ws.dial(ctx); err != nil {
		ws.cancel()
		ws.cancel = nil
		return err
	}
	ws.connected.Store(true)

	go ws.readLoop(ctx)
	return nil
}

// Close shuts down the client, closing the connection and all subscriber
// channels once the read loop has exited.
func (ws *WSClient) Close() {
	if ws.cancel == nil {
		return
	}
	ws.cancel()
	ws.mu.Lock()
	if ws.conn != nil {
		ws.conn.Close()
	}
	ws.mu.Unlock()
	<-ws.done
}

// Done returns a channel that is closed when the client has fully shut down.
func (ws *WSClient) Done() <-chan struct{} {
	return ws.done
}

// dial establishes the WebSocket connection with TCP_NODELAY enabled.
func (ws *WSClient) dial(ctx context.Context) error {
	dialer := websocket.Dialer{
		ReadBufferSize:  ws.cfg.ReadBufferSize,
		WriteBufferSize: ws.cfg.WriteBufferSize,
		NetDialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			d := net.Dialer{}
			conn, err := d.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			if tc, ok := conn.(*net.TCPConn); ok {
				tc.SetNoDelay(true)
			}
			return conn, nil
		},
	}

	ws.mu.RLock()
	url := ws.cfg.URL
	ws.mu.RUnlock()

	conn, _, err := dialer.DialContext(ctx, url, ws.cfg.Headers)
	if err != nil {
		return err
	}

	ws.mu.Lock()
	ws.conn = conn
	ws.mu.Unlock()
	return nil
}

// reconnect loops with exponential backoff until a connection is
// re-established or the context is cancelled.
func (ws *WSClient) reconnect(ctx context.Context) bool {
	ws.connected.Store(false)

	delay := ws.cfg.BackoffInitial
	for {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(delay):
		}

		if err := ws.dial(ctx); err != nil {
			log.WithFields(log.Fields{"component": "feed", "retry_in": delay}).WithError(err).Warn("stream: reconnect failed")
			delay = time.Duration(math.Min(
				float64(delay)*ws.cfg.BackoffFactor,
				float64(ws.cfg.BackoffMax),
			))
			continue
		}

		ws.connected.Store(true)
		if ws.onReconnect != nil {
			ws.onReconnect()
		}
		return true
	}
}

// readLoop reads frames and fans decoded events out to subscribers. A read
// deadline of HeartbeatTimeout detects dead connections.
func (ws *WSClient) readLoop(ctx context.Context) {
	defer func() {
		ws.connected.Store(false)
		ws.subMu.RLock()
		for _, ch := range ws.subs {
			close(ch)
		}
		ws.subMu.RUnlock()
		close(ws.done)
	}()

	for {
		ws.mu.RLock()
		c := ws.conn
		ws.mu.RUnlock()

		c.SetReadDeadline(time.Now().Add(ws.cfg.HeartbeatTimeout))
		_, data, err := c.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.WithField("component", "feed").WithError(err).Warn("stream: read error, reconnecting")
			c.Close()
			if !ws.reconnect(ctx) {
				return
			}
			continue
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			log.WithField("component", "feed").WithError(err).Warn("stream: undecodable frame")
			continue
		}
		if msg.Kind == KindHeartbeat {
			continue
		}
		ws.fanOut(msg)
	}
}

// fanOut delivers msg to every subscriber without blocking.
func (ws *WSClient) fanOut(msg Message) {
	ws.subMu.RLock()
	defer ws.subMu.RUnlock()

	for _, ch := range ws.subs {
		select {
		case ch <- msg:
		default:
			// Slow consumer, drop to avoid head-of-line blocking.
		}
	}
}
