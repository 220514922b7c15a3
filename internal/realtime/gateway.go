package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/19niel/Ultra-MIS-Ticketing-System/internal/domain"
	"github.com/19niel/Ultra-MIS-Ticketing-System/internal/events"
)

// Control frame types. Event frames carry dotted event type names, so the
// two never collide.
const (
	FrameHello  = "hello"
	FrameResync = "resync"
)

// ControlFrame is a gateway-originated message that is not an event.
type ControlFrame struct {
	Type string `json:"type"`
	Seq  uint64 `json:"seq,omitempty"`
}

// Recorder receives gateway metrics.
type Recorder interface {
	ClientConnected()
	ClientDisconnected()
	ClientDropped()
	RecordReplay(outcome string)
}

type noopRecorder struct{}

func (noopRecorder) ClientConnected()    {}
func (noopRecorder) ClientDisconnected() {}
func (noopRecorder) ClientDropped()      {}
func (noopRecorder) RecordReplay(string) {}

// Authenticator resolves the caller of an upgrade request.
type Authenticator func(r *http.Request) (domain.Principal, error)

// Options configures the gateway.
type Options struct {
	SendBuffer     int
	WriteTimeout   time.Duration
	PingInterval   time.Duration
	AllowAnyOrigin bool
	Authenticate   Authenticator
	Metrics        Recorder
	Logger         *zap.Logger
}

// Gateway streams bus events to websocket clients. A client that cannot
// keep up is disconnected and recovers by reconnecting with since=<seq>.
type Gateway struct {
	bus      *events.Bus
	opts     Options
	logger   *zap.Logger
	metrics  Recorder
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[string]*client
	closed  bool
}

// NewGateway builds a gateway over bus.
func NewGateway(bus *events.Bus, opts Options) *Gateway {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 64
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = noopRecorder{}
	}
	g := &Gateway{
		bus:     bus,
		opts:    opts,
		logger:  logger.With(zap.String("component", "realtime_gateway")),
		metrics: metrics,
		clients: make(map[string]*client),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
	if opts.AllowAnyOrigin {
		g.upgrader.CheckOrigin = func(*http.Request) bool { return true }
	}
	return g
}

// ServeHTTP upgrades the connection and starts streaming. The optional
// since query parameter requests a replay of every event after that
// sequence; when the replay buffer cannot serve it a resync frame is sent
// instead. Without since the first frame is a hello carrying the current
// sequence.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var principal domain.Principal
	if g.opts.Authenticate != nil {
		p, err := g.opts.Authenticate(r)
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		principal = p
	}

	var (
		since    uint64
		hasSince bool
	)
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			http.Error(w, "invalid since", http.StatusBadRequest)
			return
		}
		since, hasSince = parsed, true
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{
		id:        uuid.NewString(),
		conn:      conn,
		send:      make(chan []byte, g.opts.SendBuffer),
		done:      make(chan struct{}),
		principal: principal,
		gateway:   g,
	}
	if !g.register(c) {
		_ = conn.Close()
		return
	}

	from := since
	if !hasSince {
		from = g.bus.LastSeq()
	}
	sub, cursor, err := g.bus.SubscribeAllFrom(from, c.handle)
	c.attach(sub)
	switch {
	case !hasSince:
		c.initial = append(c.initial, encodeControl(ControlFrame{Type: FrameHello, Seq: cursor.LastSeq}))
	case errors.Is(err, events.ErrReplayGap):
		g.metrics.RecordReplay("gap")
		c.initial = append(c.initial, encodeControl(ControlFrame{Type: FrameResync, Seq: cursor.LastSeq}))
	default:
		g.metrics.RecordReplay("ok")
		for _, event := range cursor.Backlog {
			data, err := json.Marshal(event)
			if err != nil {
				continue
			}
			c.initial = append(c.initial, data)
		}
	}

	g.logger.Debug("client connected",
		zap.String("client_id", c.id),
		zap.Int64("user_id", principal.UserID),
		zap.Bool("resume", hasSince),
		zap.Uint64("since", since))

	go c.writePump()
	go c.readPump()
}

func (g *Gateway) register(c *client) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return false
	}
	g.clients[c.id] = c
	g.metrics.ClientConnected()
	return true
}

func (g *Gateway) unregister(c *client) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.clients[c.id]; ok {
		delete(g.clients, c.id)
		g.metrics.ClientDisconnected()
	}
}

// ClientCount returns the number of connected clients.
func (g *Gateway) ClientCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.clients)
}

// Close disconnects every client and refuses new ones.
func (g *Gateway) Close() {
	g.mu.Lock()
	g.closed = true
	clients := make([]*client, 0, len(g.clients))
	for _, c := range g.clients {
		clients = append(clients, c)
	}
	g.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
}

type client struct {
	id        string
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	principal domain.Principal
	gateway   *Gateway

	// initial frames are written before anything from send.
	initial [][]byte

	mu  sync.Mutex
	sub *events.Subscription
}

// handle runs on the bus publish path and must not block.
func (c *client) handle(_ context.Context, event events.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	c.enqueue(data)
	return nil
}

func encodeControl(frame ControlFrame) []byte {
	data, _ := json.Marshal(frame)
	return data
}

// attach records the bus subscription, releasing it at once when the
// client was dropped while subscribing.
func (c *client) attach(sub *events.Subscription) {
	c.mu.Lock()
	c.sub = sub
	c.mu.Unlock()
	select {
	case <-c.done:
		sub.Unsubscribe()
	default:
	}
}

func (c *client) enqueue(data []byte) {
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.send <- data:
	default:
		c.gateway.metrics.ClientDropped()
		c.gateway.logger.Warn("dropping slow client",
			zap.String("client_id", c.id),
			zap.Int64("user_id", c.principal.UserID))
		c.close()
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.mu.Lock()
		sub := c.sub
		c.mu.Unlock()
		sub.Unsubscribe()
		c.gateway.unregister(c)
	})
}

func (c *client) writePump() {
	ticker := time.NewTicker(c.gateway.opts.PingInterval)
	defer func() {
		ticker.Stop()
		c.close()
		_ = c.conn.Close()
	}()

	timeout := c.gateway.opts.WriteTimeout
	for _, data := range c.initial {
		_ = c.conn.SetWriteDeadline(time.Now().Add(timeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
	c.initial = nil

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(timeout))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(timeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(timeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump only watches for disconnects and pongs; clients never send
// commands over the socket.
func (c *client) readPump() {
	defer c.close()

	wait := 2 * c.gateway.opts.PingInterval
	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(wait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.gateway.logger.Debug("client read failed", zap.String("client_id", c.id), zap.Error(err))
			}
			return
		}
	}
}
