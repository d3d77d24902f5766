package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	defaultPingInterval = 10 * time.Second
	defaultWriteLimit   = rate.Limit(20) // frames per second
)

// wire is the JSON framing the bridge daemon speaks. Inbound frames with
// a non-zero requestId are replies; the rest are broadcasts.
type wire struct {
	Namespace     string          `json:"namespace"`
	SenderID      string          `json:"senderId,omitempty"`
	DestinationID string          `json:"destinationId,omitempty"`
	RequestID     uint64          `json:"requestId,omitempty"`
	Error         string          `json:"error,omitempty"`
	Data          json.RawMessage `json:"data,omitempty"`
}

// WS is a websocket-backed Bridge. Receivers drop senders that flood the
// virtual connection, so writes go through a rate limiter.
type WS struct {
	conn    *websocket.Conn
	limiter *rate.Limiter

	writeMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc

	messages chan Message
	replies  chan Reply

	closeOnce sync.Once
}

type WSOption func(*wsConfig)

type wsConfig struct {
	pingInterval time.Duration
	writeLimit   rate.Limit
	burst        int
}

func WithPingInterval(d time.Duration) WSOption {
	return func(c *wsConfig) { c.pingInterval = d }
}

// WithWriteLimit caps outbound frames per second. Pass rate.Inf to
// disable throttling.
func WithWriteLimit(l rate.Limit, burst int) WSOption {
	return func(c *wsConfig) {
		c.writeLimit = l
		c.burst = burst
	}
}

// Dial connects to a bridge daemon. The returned WS is live until ctx is
// cancelled, Close is called, or the peer drops the connection.
func Dial(ctx context.Context, url string, opts ...WSOption) (*WS, error) {
	cfg := wsConfig{
		pingInterval: defaultPingInterval,
		writeLimit:   defaultWriteLimit,
		burst:        10,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}

	wsCtx, cancel := context.WithCancel(ctx)
	ws := &WS{
		conn:     conn,
		limiter:  rate.NewLimiter(cfg.writeLimit, cfg.burst),
		ctx:      wsCtx,
		cancel:   cancel,
		messages: make(chan Message, 16),
		replies:  make(chan Reply, 16),
	}

	go ws.pingLoop(cfg.pingInterval)
	go ws.readLoop()

	return ws, nil
}

func (ws *WS) SendToReceiver(p Payload) error {
	if err := ws.limiter.Wait(ws.ctx); err != nil {
		return err
	}
	frame := wire{
		Namespace:     p.Namespace,
		SenderID:      p.SenderID,
		DestinationID: p.DestinationID,
		RequestID:     p.RequestID,
		Data:          p.Data,
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	ws.writeMu.Lock()
	defer ws.writeMu.Unlock()
	return ws.conn.WriteMessage(websocket.TextMessage, data)
}

func (ws *WS) Messages() <-chan Message { return ws.messages }
func (ws *WS) Replies() <-chan Reply   { return ws.replies }

func (ws *WS) Close() error {
	ws.cancel()
	return ws.conn.Close()
}

func (ws *WS) pingLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ws.ctx.Done():
			return
		case <-ticker.C:
			if err := ws.conn.WriteControl(
				websocket.PingMessage, nil,
				time.Now().Add(5*time.Second),
			); err != nil {
				return
			}
		}
	}
}

func (ws *WS) readLoop() {
	defer func() {
		ws.cancel()
		close(ws.messages)
		close(ws.replies)
	}()

	for {
		_, data, err := ws.conn.ReadMessage()
		if err != nil {
			if ws.ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				log.Printf("bridge read: %v", err)
			}
			return
		}
		var frame wire
		if err := json.Unmarshal(data, &frame); err != nil {
			log.Printf("bridge: dropping malformed frame: %v", err)
			continue
		}
		if frame.RequestID != 0 {
			rep := Reply{RequestID: frame.RequestID, Data: frame.Data}
			if frame.Error != "" {
				rep.Err = errors.New(frame.Error)
			}
			select {
			case ws.replies <- rep:
			case <-ws.ctx.Done():
				return
			}
			continue
		}
		select {
		case ws.messages <- Message{Namespace: frame.Namespace, Data: frame.Data}:
		case <-ws.ctx.Done():
			return
		}
	}
}
