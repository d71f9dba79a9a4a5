package main

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/burntcarrot/pairboard/commons"
	"github.com/burntcarrot/pairboard/transport"
	"github.com/burntcarrot/pairboard/tui"
)

var errOutboxFull = errors.New("outbox full")

// outbox decouples the mirror, which sends from the bubbletea goroutine,
// from the socket write.
type outbox struct {
	queue  chan commons.Message
	codec  commons.Codec
	logger logrus.FieldLogger
}

func newOutbox(size int, logger logrus.FieldLogger) *outbox {
	return &outbox{
		queue:  make(chan commons.Message, size),
		codec:  commons.JSONCodec{},
		logger: logger,
	}
}

// Send implements mirror.Sender.
func (o *outbox) Send(msg commons.Message) error {
	select {
	case o.queue <- msg:
		return nil
	default:
		o.logger.WithField("type", msg.Type).Error("outbox full, dropping message")
		return errOutboxFull
	}
}

// run writes queued messages to the server until ctx is done or a write fails.
func (o *outbox) run(ctx context.Context, t transport.Transport, module string) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-o.queue:
			data, err := o.codec.Encode(msg)
			if err != nil {
				o.logger.WithError(err).Error("failed to encode message")
				continue
			}
			if err := t.Send(transport.ServerID, module, data); err != nil {
				return err
			}
			o.logger.WithFields(logrus.Fields{"type": msg.Type, "shapes": len(msg.Shapes)}).Debug("sent message")
		}
	}
}

// conn is one connection to the server, as returned by transport.Dial.
type conn interface {
	transport.Transport
	Run(ctx context.Context) error
	Close() error
}

// dialFunc opens a connection, retrying until it succeeds or gives up.
type dialFunc func(ctx context.Context) (conn, error)

// connect keeps the client attached to the server until ctx is done. When
// the connection drops it dials again; the handler's OnJoin tells the board
// view to resend whatever is still pending.
func connect(ctx context.Context, dial dialFunc, h transport.Handler, out *outbox, module string, logger logrus.FieldLogger) error {
	for {
		c, err := dial(ctx)
		if err != nil {
			return err
		}
		c.Subscribe(module, h)

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return c.Run(gctx) })
		g.Go(func() error { return out.run(gctx, c, module) })
		err = g.Wait()
		c.Close()

		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.WithError(err).Warn("connection lost, reconnecting")
	}
}

// program is the part of *tea.Program the inbound handler needs.
type program interface {
	Send(msg tea.Msg)
}

// inbound hands decoded server messages to the board view. Messages are
// applied to the mirror inside the bubbletea event loop.
type inbound struct {
	program program
	codec   commons.Codec
	logger  logrus.FieldLogger
}

func (in inbound) OnMessage(_, data string) {
	var msg commons.Message
	if err := in.codec.Decode(data, &msg); err != nil {
		in.logger.WithError(err).Warn("dropping undecodable message")
		return
	}
	in.logger.WithFields(logrus.Fields{"type": msg.Type, "epoch": msg.Epoch, "full": msg.Full}).Debug("message received")
	in.program.Send(tui.InboundMsg{Message: msg})
}

func (in inbound) OnJoin(string) {
	in.program.Send(tui.ConnectionMsg{Connected: true})
}

func (in inbound) OnLeave(string) {
	in.program.Send(tui.ConnectionMsg{Connected: false, Err: errors.New("connection to server lost")})
}
