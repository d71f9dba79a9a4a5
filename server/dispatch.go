package main

import (
	"context"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"

	"github.com/burntcarrot/pairboard/authority"
	"github.com/burntcarrot/pairboard/commons"
	"github.com/burntcarrot/pairboard/transport"
)

// dispatcher routes board messages from the transport to the authority.
type dispatcher struct {
	auth      *authority.Authority
	transport transport.Transport
	module    string
	codec     commons.Codec
	logger    logrus.FieldLogger

	// console receives one coloured line per handled message.
	console io.Writer
}

func newDispatcher(auth *authority.Authority, t transport.Transport, module string, logger logrus.FieldLogger, console io.Writer) *dispatcher {
	return &dispatcher{
		auth:      auth,
		transport: t,
		module:    module,
		codec:     commons.JSONCodec{},
		logger:    logger,
		console:   console,
	}
}

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed)
)

func (d *dispatcher) OnJoin(id string) {
	yellow.Fprintf(d.console, "%s >> %s joined\n", time.Now().Format(time.ANSIC), id)
	d.bootstrap(id, id)
}

func (d *dispatcher) OnLeave(id string) {
	yellow.Fprintf(d.console, "%s >> %s left\n", time.Now().Format(time.ANSIC), id)
}

func (d *dispatcher) OnMessage(from, data string) {
	var msg commons.Message
	if err := d.codec.Decode(data, &msg); err != nil {
		d.logger.WithError(err).WithField("peer", from).Warn("dropping undecodable message")
		return
	}

	t := time.Now().Format(time.ANSIC)
	logger := d.logger.WithFields(logrus.Fields{"peer": from, "requester": msg.Requester, "type": msg.Type})

	switch msg.Type {
	case commons.FetchStateMessage:
		green.Fprintf(d.console, "%s >> %s fetched the board\n", t, msg.Requester)
		d.bootstrap(from, msg.Requester)

	case commons.SaveCheckpointMessage:
		n, err := d.auth.SaveCheckpoint(context.Background(), msg.Requester)
		if err != nil {
			logger.WithError(err).Error("failed to save checkpoint")
			return
		}
		green.Fprintf(d.console, "%s >> %s saved checkpoint %d\n", t, msg.Requester, n)

	case commons.FetchCheckpointMessage:
		if _, err := d.auth.FetchCheckpoint(msg.Checkpoint, msg.Requester); err != nil {
			logger.WithError(err).Warn("failed to restore checkpoint")
			return
		}
		green.Fprintf(d.console, "%s >> %s restored checkpoint %d\n", t, msg.Requester, msg.Checkpoint)

	default:
		if !d.auth.SaveUpdate(msg) {
			red.Fprintf(d.console, "%s >> %s %s rejected\n", t, msg.Requester, msg.Type)
			// Resynchronize the sender so its optimistic edits are dropped.
			d.bootstrap(from, msg.Requester)
			return
		}
		green.Fprintf(d.console, "%s >> %s %s (%d ops)\n", t, msg.Requester, msg.Type, len(msg.Shapes))
	}
}

// bootstrap sends peer a full snapshot of the board.
func (d *dispatcher) bootstrap(peer, requester string) {
	d.auth.Bootstrap(requester, func(msg commons.Message) {
		data, err := d.codec.Encode(msg)
		if err != nil {
			d.logger.WithError(err).Error("failed to encode snapshot")
			return
		}
		if err := d.transport.Send(peer, d.module, data); err != nil {
			d.logger.WithError(err).WithField("peer", peer).Warn("failed to send snapshot")
		}
	})
}

// broadcaster publishes the authority's messages to every connected peer.
type broadcaster struct {
	transport transport.Transport
	module    string
	codec     commons.Codec
	logger    logrus.FieldLogger
}

func (b *broadcaster) Publish(msg commons.Message) {
	data, err := b.codec.Encode(msg)
	if err != nil {
		b.logger.WithError(err).Error("failed to encode broadcast")
		return
	}
	if err := b.transport.Send("", b.module, data); err != nil {
		b.logger.WithError(err).Warn("failed to broadcast")
	}
}
