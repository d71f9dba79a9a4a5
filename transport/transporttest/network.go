// Package transporttest provides an in-process transport.Transport for tests
// that wire an authority to several clients without sockets.
package transporttest

import (
	"fmt"
	"sort"
	"sync"

	"github.com/burntcarrot/pairboard/transport"
)

// Network is an in-process transport. Every endpoint delivers on its own
// goroutine from an unbounded FIFO mailbox, so a Send made while holding a
// lock never re-enters the caller.
type Network struct {
	mu        sync.Mutex
	endpoints map[string]*Endpoint
}

// NewNetwork returns an empty network.
func NewNetwork() *Network {
	return &Network{endpoints: make(map[string]*Endpoint)}
}

// Endpoint returns a detached endpoint named id. Subscribe on it, then Join
// it, so nothing addressed to it is missed.
func (n *Network) Endpoint(id string) *Endpoint {
	return &Endpoint{
		id:       id,
		net:      n,
		handlers: make(map[string][]transport.Handler),
		box:      newMailbox(),
	}
}

// Join attaches e and announces it to the other endpoints.
func (n *Network) Join(e *Endpoint) *Endpoint {
	go e.run()

	n.mu.Lock()
	defer n.mu.Unlock()
	id := e.id
	for _, o := range n.sorted() {
		o := o
		o.box.push(func() { o.each("", func(h transport.Handler) { h.OnJoin(id) }) })
	}
	n.endpoints[id] = e
	return e
}

// Leave removes the endpoint id and announces it to the others.
func (n *Network) Leave(id string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	e, ok := n.endpoints[id]
	if !ok {
		return
	}
	delete(n.endpoints, id)
	e.box.close()

	for _, o := range n.sorted() {
		o := o
		o.box.push(func() { o.each("", func(h transport.Handler) { h.OnLeave(id) }) })
	}
}

func (n *Network) sorted() []*Endpoint {
	ids := make([]string, 0, len(n.endpoints))
	for id := range n.endpoints {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]*Endpoint, 0, len(ids))
	for _, id := range ids {
		out = append(out, n.endpoints[id])
	}
	return out
}

// Endpoint is one member of a Network. It implements transport.Transport.
type Endpoint struct {
	id  string
	net *Network

	mu       sync.RWMutex
	handlers map[string][]transport.Handler

	box *mailbox
}

// ID returns the endpoint's peer id.
func (e *Endpoint) ID() string { return e.id }

// Subscribe registers h for payloads of module.
func (e *Endpoint) Subscribe(module string, h transport.Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[module] = append(e.handlers[module], h)
}

// Send delivers data to dest, or to every other endpoint when dest is "".
func (e *Endpoint) Send(dest, module, data string) error {
	e.net.mu.Lock()
	if _, ok := e.net.endpoints[e.id]; !ok {
		e.net.mu.Unlock()
		return transport.ErrClosed
	}
	var targets []*Endpoint
	if dest == "" {
		for _, o := range e.net.sorted() {
			if o != e {
				targets = append(targets, o)
			}
		}
	} else {
		o, ok := e.net.endpoints[dest]
		if !ok {
			e.net.mu.Unlock()
			return fmt.Errorf("send to %s: %w", dest, transport.ErrUnknownPeer)
		}
		targets = append(targets, o)
	}
	// Enqueue under the network lock so concurrent senders are ordered the
	// same way at every destination.
	from := e.id
	for _, o := range targets {
		o := o
		o.box.push(func() { o.each(module, func(h transport.Handler) { h.OnMessage(from, data) }) })
	}
	e.net.mu.Unlock()
	return nil
}

// each calls fn for the subscribers of module, or of every module when module is "".
func (e *Endpoint) each(module string, fn func(transport.Handler)) {
	e.mu.RLock()
	var subs []transport.Handler
	if module == "" {
		for _, list := range e.handlers {
			subs = append(subs, list...)
		}
	} else {
		subs = append(subs, e.handlers[module]...)
	}
	e.mu.RUnlock()

	for _, h := range subs {
		fn(h)
	}
}

func (e *Endpoint) run() {
	for {
		batch, ok := e.box.wait()
		if !ok {
			return
		}
		for _, deliver := range batch {
			deliver()
		}
	}
}

// mailbox is an unbounded FIFO of deliveries.
type mailbox struct {
	mu     sync.Mutex
	items  []func()
	closed bool
	signal chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{signal: make(chan struct{}, 1)}
}

func (m *mailbox) push(f func()) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.items = append(m.items, f)
	m.mu.Unlock()

	select {
	case m.signal <- struct{}{}:
	default:
	}
}

func (m *mailbox) close() {
	m.mu.Lock()
	m.closed = true
	m.items = nil
	m.mu.Unlock()

	select {
	case m.signal <- struct{}{}:
	default:
	}
}

// wait blocks until deliveries are queued and takes them all.
func (m *mailbox) wait() ([]func(), bool) {
	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return nil, false
		}
		if len(m.items) > 0 {
			batch := m.items
			m.items = nil
			m.mu.Unlock()
			return batch, true
		}
		m.mu.Unlock()
		<-m.signal
	}
}
