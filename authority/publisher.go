package authority

import "github.com/burntcarrot/pairboard/commons"

// Publisher delivers authority messages to every subscriber. Publish is
// called inside the authority's critical section, so it must enqueue and
// return without waiting on the network.
type Publisher interface {
	Publish(msg commons.Message)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(msg commons.Message)

func (f PublisherFunc) Publish(msg commons.Message) { f(msg) }

// Publishers fans a message out to several publishers in order.
type Publishers []Publisher

func (ps Publishers) Publish(msg commons.Message) {
	for _, p := range ps {
		p.Publish(msg)
	}
}

type discard struct{}

func (discard) Publish(commons.Message) {}
