// Package transport delivers tier-change messages to the remote side over a websocket and
// routes the acknowledgements that come back.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/traylinx/perfgov/internal/notify"
)

// ErrQueueFull is returned by Send when the outbound queue has no room.
var ErrQueueFull = errors.New("transport outbound queue is full")

// Config controls the websocket client.
type Config struct {
	URL              string
	Header           http.Header
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	PingInterval     time.Duration
	ReconnectDelay   time.Duration

	// QueueSize is the number of encoded frames Send may buffer ahead of the writer.
	QueueSize int
}

// DefaultConfig returns the client defaults for url.
func DefaultConfig(url string) Config {
	return Config{
		URL:              url,
		HandshakeTimeout: 5 * time.Second,
		WriteTimeout:     2 * time.Second,
		PingInterval:     30 * time.Second,
		ReconnectDelay:   3 * time.Second,
		QueueSize:        64,
	}
}

// AckFunc receives the change id of an inbound acknowledgement.
type AckFunc func(changeID string)

// Client is a websocket implementation of notify.Transport. Send only enqueues; a writer
// goroutine per connection drains the queue. Reads run on the goroutine that called Run.
type Client struct {
	cfg    Config
	dialer *websocket.Dialer
	onAck  AckFunc
	send   chan []byte

	mu        sync.Mutex
	conn      *websocket.Conn
	connected atomic.Bool
	closed    atomic.Bool
}

var _ notify.Transport = (*Client)(nil)

// NewClient creates a client. onAck may be nil.
func NewClient(cfg Config, onAck AckFunc) *Client {
	defaults := DefaultConfig(cfg.URL)
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaults.HandshakeTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaults.ReconnectDelay
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaults.QueueSize
	}
	return &Client{
		cfg:    cfg,
		dialer: &websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
		onAck:  onAck,
		send:   make(chan []byte, cfg.QueueSize),
	}
}

// IsConnected reports whether a connection is currently established.
func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

// Send queues msg as one JSON text frame and returns without waiting for the write. It
// fails with notify.ErrNotConnected while no connection is up and with ErrQueueFull when
// the writer has fallen behind.
func (c *Client) Send(ctx context.Context, msg *notify.Message) error {
	if msg == nil {
		return notify.ErrInvalidMessage
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if !c.connected.Load() {
		return notify.ErrNotConnected
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode %s: %w", msg.ChangeID, err)
	}

	select {
	case c.send <- data:
		return nil
	default:
		return fmt.Errorf("%w: dropping %s", ErrQueueFull, msg.ChangeID)
	}
}

// Run dials the remote side and reads from it until ctx is cancelled or Close is called.
// A dropped connection is redialled after ReconnectDelay.
func (c *Client) Run(ctx context.Context) error {
	if c.cfg.URL == "" {
		return errors.New("transport url is empty")
	}
	for {
		if ctx.Err() != nil || c.closed.Load() {
			return ctx.Err()
		}

		conn, _, err := c.dialer.DialContext(ctx, c.cfg.URL, c.cfg.Header)
		if err != nil {
			log.WithField("component", "transport").Warnf("Dial %s failed: %v", c.cfg.URL, err)
		} else {
			c.serve(ctx, conn)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.cfg.ReconnectDelay):
		}
	}
}

func (c *Client) serve(ctx context.Context, conn *websocket.Conn) {
	c.drain()
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.connected.Store(true)
	log.WithField("component", "transport").Infof("Connected to %s", c.cfg.URL)

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()
	go c.writePump(conn, done)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !c.closed.Load() && ctx.Err() == nil {
				log.WithField("component", "transport").Warnf("Connection to %s lost: %v", c.cfg.URL, err)
			}
			break
		}
		c.dispatch(data)
	}

	c.connected.Store(false)
	close(done)
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
	_ = conn.Close()
}

// writePump is the only writer of data frames on conn. A failed write closes the
// connection, which ends the read loop in serve.
func (c *Client) writePump(conn *websocket.Conn, done <-chan struct{}) {
	var tick <-chan time.Time
	if c.cfg.PingInterval > 0 {
		ticker := time.NewTicker(c.cfg.PingInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-done:
			c.drain()
			return
		case data := <-c.send:
			_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.WithField("component", "transport").Warnf("Write to %s failed: %v", c.cfg.URL, err)
				_ = conn.Close()
				return
			}
		case <-tick:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.WriteTimeout)); err != nil {
				log.WithField("component", "transport").Debugf("Ping failed: %v", err)
				_ = conn.Close()
				return
			}
		}
	}
}

// drain discards frames queued for a connection that is gone. Their senders resend on
// the confirmation timeout.
func (c *Client) drain() {
	for {
		select {
		case <-c.send:
		default:
			return
		}
	}
}

// dispatch routes one inbound frame by its type field.
func (c *Client) dispatch(data []byte) {
	switch kind := gjson.GetBytes(data, "type").String(); kind {
	case notify.AckType:
		id := gjson.GetBytes(data, "changeId").String()
		if id == "" {
			log.WithField("component", "transport").Warn("Ack without changeId ignored")
			return
		}
		if c.onAck != nil {
			c.onAck(id)
		}
	default:
		log.WithField("component", "transport").Debugf("Ignoring inbound frame of type %q", kind)
	}
}

// Close shuts the current connection and stops Run from redialling.
func (c *Client) Close() error {
	c.closed.Store(true)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return c.conn.Close()
}
