package main

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/burntcarrot/pairboard/commons"
	"github.com/burntcarrot/pairboard/transport"
)

const relayQueueSize = 1024

// relayPublisher forwards the authority's messages to Redis. Publish only
// enqueues, because it runs inside the authority's critical section.
type relayPublisher struct {
	relay  *transport.Relay
	codec  commons.Codec
	queue  chan string
	logger logrus.FieldLogger
}

func newRelayPublisher(relay *transport.Relay, logger logrus.FieldLogger) *relayPublisher {
	return &relayPublisher{
		relay:  relay,
		codec:  commons.JSONCodec{},
		queue:  make(chan string, relayQueueSize),
		logger: logger,
	}
}

func (r *relayPublisher) Publish(msg commons.Message) {
	data, err := r.codec.Encode(msg)
	if err != nil {
		r.logger.WithError(err).Error("failed to encode relay message")
		return
	}
	select {
	case r.queue <- data:
	default:
		r.logger.Warn("relay queue full, dropping message")
	}
}

// run drains the queue into Redis until ctx is done.
func (r *relayPublisher) run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case data := <-r.queue:
			if err := r.relay.Publish(ctx, data); err != nil {
				r.logger.WithError(err).Warn("failed to relay message")
			}
		}
	}
}
