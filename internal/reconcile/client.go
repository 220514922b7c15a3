package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/19niel/Ultra-MIS-Ticketing-System/internal/events"
	"github.com/19niel/Ultra-MIS-Ticketing-System/internal/realtime"
)

// ClientOptions configures the realtime connection.
type ClientOptions struct {
	Header     http.Header
	Dialer     *websocket.Dialer
	MinBackoff time.Duration
	MaxBackoff time.Duration
	Logger     *zap.Logger
}

// Client keeps a websocket connection to the realtime gateway and feeds
// every frame into an Engine. After a disconnect it resumes from the last
// applied sequence.
type Client struct {
	endpoint string
	engine   *Engine
	opts     ClientOptions
	logger   *zap.Logger
}

// NewClient creates a client for the gateway at endpoint (ws:// or wss://).
func NewClient(endpoint string, engine *Engine, opts ClientOptions) *Client {
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.MinBackoff <= 0 {
		opts.MinBackoff = 500 * time.Millisecond
	}
	if opts.MaxBackoff < opts.MinBackoff {
		opts.MaxBackoff = 15 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		endpoint: endpoint,
		engine:   engine,
		opts:     opts,
		logger:   logger.With(zap.String("component", "realtime_client")),
	}
}

// Run connects and reconnects until ctx is cancelled.
func (c *Client) Run(ctx context.Context) error {
	backoff := c.opts.MinBackoff
	for {
		established, err := c.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if established {
			backoff = c.opts.MinBackoff
		}
		c.logger.Warn("realtime connection lost", zap.Error(err), zap.Duration("retry_in", backoff))

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		backoff *= 2
		if backoff > c.opts.MaxBackoff {
			backoff = c.opts.MaxBackoff
		}
	}
}

// URL returns the endpoint for the next connection attempt.
func (c *Client) URL() (string, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return "", fmt.Errorf("parse realtime endpoint: %w", err)
	}
	q := u.Query()
	q.Del("since")
	if seq := c.engine.LastSeq(); seq > 0 {
		q.Set("since", strconv.FormatUint(seq, 10))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Client) session(ctx context.Context) (bool, error) {
	target, err := c.URL()
	if err != nil {
		return false, err
	}
	conn, resp, err := c.opts.Dialer.DialContext(ctx, target, c.opts.Header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return false, err
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	c.logger.Info("realtime connected", zap.String("url", target))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return true, err
		}
		if err := c.Dispatch(ctx, data); err != nil {
			c.logger.Warn("discarding realtime frame", zap.Error(err))
		}
	}
}

// Dispatch routes one frame: control frames adjust the sequence baseline,
// anything else is decoded as an event.
func (c *Client) Dispatch(ctx context.Context, data []byte) error {
	var head realtime.ControlFrame
	if err := json.Unmarshal(data, &head); err != nil {
		return fmt.Errorf("decode frame: %w", err)
	}
	switch head.Type {
	case realtime.FrameHello:
		c.engine.Hello(ctx, head.Seq)
	case realtime.FrameResync:
		c.engine.ResyncFrom(ctx, head.Seq)
	default:
		var event events.Event
		if err := json.Unmarshal(data, &event); err != nil {
			return fmt.Errorf("decode event: %w", err)
		}
		c.engine.Apply(ctx, event)
	}
	return nil
}
