// Package transport moves opaque string payloads between the authority and
// its clients. Payloads are scoped by module name so several subsystems can
// share a connection.
package transport

import "errors"

var (
	// ErrUnknownPeer is returned when sending to a peer that is not connected.
	ErrUnknownPeer = errors.New("transport: unknown peer")
	// ErrClosed is returned when using a closed transport.
	ErrClosed = errors.New("transport: closed")
)

// Handler receives the traffic of one module.
type Handler interface {
	OnMessage(from, data string)
	OnJoin(id string)
	OnLeave(id string)
}

// Transport delivers payloads. A dest of "" broadcasts to every peer.
// Payloads sent to one peer arrive in the order they were sent.
type Transport interface {
	Send(dest, module, data string) error
	Subscribe(module string, h Handler)
}

// Frame is the on-the-wire envelope of a payload.
type Frame struct {
	Module string `json:"module"`
	From   string `json:"from,omitempty"`
	Data   string `json:"data"`
}

// HandlerFuncs adapts plain functions to Handler. Nil functions are skipped.
type HandlerFuncs struct {
	Message func(from, data string)
	Join    func(id string)
	Leave   func(id string)
}

func (h HandlerFuncs) OnMessage(from, data string) {
	if h.Message != nil {
		h.Message(from, data)
	}
}

func (h HandlerFuncs) OnJoin(id string) {
	if h.Join != nil {
		h.Join(id)
	}
}

func (h HandlerFuncs) OnLeave(id string) {
	if h.Leave != nil {
		h.Leave(id)
	}
}

// handlers is a module → subscribers registry shared by the transports.
type handlers map[string][]Handler

func (hs handlers) all() []Handler {
	var out []Handler
	for _, list := range hs {
		out = append(out, list...)
	}
	return out
}
