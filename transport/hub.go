package transport

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	defaultQueueSize = 256
)

// Hub is the server side of the websocket transport. Every connection gets
// an id and a bounded outbound queue drained by its own writer goroutine, so
// Send never waits on the network. A peer whose queue overflows is dropped;
// it can reconnect and bootstrap again.
type Hub struct {
	mu       sync.RWMutex
	peers    map[string]*peer
	handlers handlers
	closed   bool

	upgrader  websocket.Upgrader
	queueSize int
	logger    logrus.FieldLogger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type peer struct {
	id   string
	conn *websocket.Conn
	out  chan Frame
	once sync.Once
	done chan struct{}
}

func (p *peer) close() {
	p.once.Do(func() {
		close(p.done)
		p.conn.Close()
	})
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithQueueSize bounds the number of frames buffered per connection.
func WithQueueSize(n int) HubOption {
	return func(h *Hub) { h.queueSize = n }
}

// WithCheckOrigin overrides the upgrader's origin check.
func WithCheckOrigin(check func(r *http.Request) bool) HubOption {
	return func(h *Hub) { h.upgrader.CheckOrigin = check }
}

// NewHub returns a hub ready to serve websocket upgrades.
func NewHub(logger logrus.FieldLogger, opts ...HubOption) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		peers:    make(map[string]*peer),
		handlers: make(handlers),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		queueSize: defaultQueueSize,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscribe registers h for the frames of module.
func (h *Hub) Subscribe(module string, handler Handler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers[module] = append(h.handlers[module], handler)
}

// Send queues data for dest, or for every peer when dest is "".
func (h *Hub) Send(dest, module, data string) error {
	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return ErrClosed
	}

	f := Frame{Module: module, Data: data}
	var slow []*peer
	if dest == "" {
		for _, p := range h.peers {
			if !p.enqueue(f) {
				slow = append(slow, p)
			}
		}
	} else {
		p, ok := h.peers[dest]
		if !ok {
			h.mu.RUnlock()
			return fmt.Errorf("send to %s: %w", dest, ErrUnknownPeer)
		}
		if !p.enqueue(f) {
			slow = append(slow, p)
		}
	}
	h.mu.RUnlock()

	for _, p := range slow {
		h.logger.WithField("peer", p.id).Warn("outbound queue full, dropping connection")
		p.close()
	}
	return nil
}

func (p *peer) enqueue(f Frame) bool {
	select {
	case <-p.done:
		return true
	default:
	}
	select {
	case p.out <- f:
		return true
	default:
		return false
	}
}

// Peers returns the number of connected peers.
func (h *Hub) Peers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.peers)
}

// ServeHTTP upgrades the request and serves the connection until it closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("failed to upgrade connection")
		return
	}

	p := &peer{
		id:   uuid.NewString(),
		conn: conn,
		out:  make(chan Frame, h.queueSize),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.peers[p.id] = p
	subscribers := h.handlers.all()
	h.mu.Unlock()

	logger := h.logger.WithFields(logrus.Fields{"peer": p.id, "remote": r.RemoteAddr})
	logger.Info("peer connected")

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.writeLoop(p, logger)
	}()

	for _, s := range subscribers {
		s.OnJoin(p.id)
	}

	h.readLoop(p, logger)

	h.mu.Lock()
	delete(h.peers, p.id)
	subscribers = h.handlers.all()
	h.mu.Unlock()
	p.close()

	for _, s := range subscribers {
		s.OnLeave(p.id)
	}
	logger.Info("peer disconnected")
}

func (h *Hub) readLoop(p *peer, logger logrus.FieldLogger) {
	p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var f Frame
		if err := p.conn.ReadJSON(&f); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.WithError(err).Warn("read failed")
			}
			return
		}

		h.mu.RLock()
		subscribers := append([]Handler(nil), h.handlers[f.Module]...)
		h.mu.RUnlock()

		if len(subscribers) == 0 {
			logger.WithField("module", f.Module).Debug("no subscriber for module")
			continue
		}
		for _, s := range subscribers {
			s.OnMessage(p.id, f.Data)
		}
	}
}

// writeLoop is the only writer of p.conn.
func (h *Hub) writeLoop(p *peer, logger logrus.FieldLogger) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer p.close()

	for {
		select {
		case f := <-p.out:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteJSON(f); err != nil {
				logger.WithError(err).Warn("write failed")
				return
			}
		case <-ticker.C:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-p.done:
			return
		case <-h.ctx.Done():
			p.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(writeWait))
			return
		}
	}
}

// Close disconnects every peer and waits for their writers to exit.
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.mu.Unlock()

	h.cancel()
	h.wg.Wait()
	return nil
}
