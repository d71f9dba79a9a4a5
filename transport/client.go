package transport

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// ServerID is the peer id a Client reports for the hub it is connected to.
const ServerID = "server"

// Client is the client side of the websocket transport.
type Client struct {
	conn   *websocket.Conn
	logger logrus.FieldLogger

	writeMu sync.Mutex

	mu       sync.RWMutex
	handlers handlers
	closed   bool
}

// Dial connects to the hub at url, retrying with exponential backoff until
// ctx is done or maxElapsed has passed.
func Dial(ctx context.Context, url string, maxElapsed time.Duration, logger logrus.FieldLogger) (*Client, error) {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = maxElapsed

	var conn *websocket.Conn
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		c, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
		if err != nil {
			if resp != nil && resp.StatusCode >= http.StatusBadRequest && resp.StatusCode < http.StatusInternalServerError {
				return backoff.Permanent(err)
			}
			logger.WithError(err).WithField("attempt", attempt).Warn("dial failed, retrying")
			return err
		}
		conn = c
		return nil
	}, backoff.WithContext(b, ctx))
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	logger.WithField("url", url).Info("connected")
	return &Client{conn: conn, logger: logger, handlers: make(handlers)}, nil
}

// Subscribe registers h for frames of module.
func (c *Client) Subscribe(module string, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[module] = append(c.handlers[module], h)
}

// Send writes a frame to the hub. dest must be "" or ServerID.
func (c *Client) Send(dest, module, data string) error {
	if dest != "" && dest != ServerID {
		return fmt.Errorf("send to %s: %w", dest, ErrUnknownPeer)
	}

	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(Frame{Module: module, Data: data})
}

// Run dispatches incoming frames until the connection fails or ctx is done.
// Subscribers see OnJoin(ServerID) first and OnLeave(ServerID) last.
func (c *Client) Run(ctx context.Context) error {
	c.mu.RLock()
	subscribers := c.handlers.all()
	c.mu.RUnlock()
	for _, s := range subscribers {
		s.OnJoin(ServerID)
	}
	defer func() {
		for _, s := range subscribers {
			s.OnLeave(ServerID)
		}
	}()

	stop := context.AfterFunc(ctx, func() { c.Close() })
	defer stop()

	for {
		var f Frame
		if err := c.conn.ReadJSON(&f); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read: %w", err)
		}

		c.mu.RLock()
		subs := append([]Handler(nil), c.handlers[f.Module]...)
		c.mu.RUnlock()
		for _, s := range subs {
			s.OnMessage(ServerID, f.Data)
		}
	}
}

// Close closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.writeMu.Lock()
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	c.writeMu.Unlock()
	return c.conn.Close()
}
