// Package stream receives task events from the backend over a WebSocket and
// records them in an append-only Log.
package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bkonkle/taskdeck/internal/task"
	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"
)

// Defaults for Config fields left at zero.
const (
	DefaultConnectDelay = 150 * time.Millisecond
	DefaultReconnectMin = 500 * time.Millisecond
	DefaultReconnectMax = 30 * time.Second
)

// Config describes where and how to connect.
type Config struct {
	// URL is the stream base address (ws:// or wss://). http(s) schemes are
	// converted.
	URL    string
	UserID string

	// ConnectDelay is waited before the first dial. Cancelling the context
	// during the delay opens no socket.
	ConnectDelay time.Duration

	// Reconnect enables reconnecting with capped exponential backoff.
	Reconnect    bool
	ReconnectMin time.Duration
	ReconnectMax time.Duration
}

// Client maintains one event stream connection per user.
type Client struct {
	cfg      Config
	endpoint string
	log      *Log
	logger   *slog.Logger
	dialer   *websocket.Dialer

	connected atomic.Bool

	mu           sync.Mutex
	onReconnect  []func()
	onConnChange []func(bool)
}

// NewClient creates a stream client that appends to log.
func NewClient(cfg Config, log *Log, logger *slog.Logger) (*Client, error) {
	endpoint, err := Endpoint(cfg.URL, cfg.UserID)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.ReconnectMin <= 0 {
		cfg.ReconnectMin = DefaultReconnectMin
	}
	if cfg.ReconnectMax < cfg.ReconnectMin {
		cfg.ReconnectMax = max(DefaultReconnectMax, cfg.ReconnectMin)
	}
	return &Client{
		cfg:      cfg,
		endpoint: endpoint,
		log:      log,
		logger:   logger,
		dialer:   websocket.DefaultDialer,
	}, nil
}

// Endpoint builds the per-user stream address.
func Endpoint(base, userID string) (string, error) {
	if userID == "" {
		return "", errors.New("stream: user id is required")
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse stream url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("stream url %q: unsupported scheme %q", base, u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/tasks/" + url.PathEscape(userID)
	return u.String(), nil
}

// Endpoint returns the address the client dials.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Log returns the event log the client appends to.
func (c *Client) Log() *Log {
	return c.log
}

// Connected reports whether the socket is currently open.
func (c *Client) Connected() bool {
	return c.connected.Load()
}

// OnReconnect registers fn to run after every successful connection except
// the first. Events sent while disconnected are lost, so callers use this to
// resynchronize.
func (c *Client) OnReconnect(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onReconnect = append(c.onReconnect, fn)
}

// OnConnectionChange registers fn to run whenever Connected changes.
func (c *Client) OnConnectionChange(fn func(bool)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onConnChange = append(c.onConnChange, fn)
}

// Run connects and reads events until ctx is cancelled, the log is closed,
// or the connection ends with reconnects disabled. It returns nil on
// cancellation.
func (c *Client) Run(ctx context.Context) error {
	delay := c.cfg.ConnectDelay
	if delay == 0 {
		delay = DefaultConnectDelay
	}
	if !sleep(ctx, delay) {
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.ReconnectMin
	bo.MaxInterval = c.cfg.ReconnectMax
	bo.Multiplier = 2
	bo.RandomizationFactor = 0.1

	established := 0
	for {
		conn, _, err := c.dialer.DialContext(ctx, c.endpoint, nil)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Warn("stream connect failed", "url", c.endpoint, "error", err)
			if !c.cfg.Reconnect {
				return fmt.Errorf("connect %s: %w", c.endpoint, err)
			}
		} else {
			bo.Reset()
			established++
			c.logger.Info("stream connected", "url", c.endpoint)
			c.setConnected(true)
			if established > 1 {
				c.fireReconnect()
			}

			err = c.readLoop(ctx, conn)
			c.setConnected(false)

			if ctx.Err() != nil || c.log.Closed() {
				return nil
			}
			c.logger.Warn("stream disconnected", "error", err)
			if !c.cfg.Reconnect {
				return err
			}
		}

		wait := bo.NextBackOff()
		c.logger.Debug("stream reconnecting", "in", wait)
		if !sleep(ctx, wait) {
			return nil
		}
	}
}

// readLoop appends every decoded frame to the log until the connection
// fails or ctx is cancelled.
func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "closing"),
				time.Now().Add(time.Second))
			_ = conn.Close()
		case <-done:
			_ = conn.Close()
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		ev, err := task.DecodeEvent(data)
		if err != nil {
			c.logger.Warn("skipping malformed stream frame", "error", err, "bytes", len(data))
			continue
		}
		if !c.log.Append(ev) {
			return nil
		}
	}
}

func (c *Client) setConnected(v bool) {
	if c.connected.Swap(v) == v {
		return
	}
	c.mu.Lock()
	hooks := append([]func(bool){}, c.onConnChange...)
	c.mu.Unlock()
	for _, fn := range hooks {
		fn(v)
	}
}

func (c *Client) fireReconnect() {
	c.mu.Lock()
	hooks := append([]func(){}, c.onReconnect...)
	c.mu.Unlock()
	for _, fn := range hooks {
		fn()
	}
}

// sleep waits for d or until ctx is done. It returns false if ctx ended.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
