package main

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/burntcarrot/pairboard/authority"
	"github.com/burntcarrot/pairboard/board"
	"github.com/burntcarrot/pairboard/checkpoint"
	"github.com/burntcarrot/pairboard/commons"
	"github.com/burntcarrot/pairboard/geometry"
	"github.com/burntcarrot/pairboard/transport"
	"github.com/burntcarrot/pairboard/transport/transporttest"
)

const module = "whiteboard"

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newAuthority(t *testing.T) *authority.Authority {
	t.Helper()
	logger, _ := test.NewNullLogger()
	history, err := checkpoint.NewHistory(context.Background(), nil, logger)
	if err != nil {
		t.Fatalf("error: %v\n", err)
	}
	return authority.New(history,
		authority.WithLogger(logger),
		authority.WithMetrics(authority.NewMetrics(prometheus.NewRegistry())),
	)
}

// startServer wires an authority to a server endpoint on net, the way run
// wires it to the websocket hub.
func startServer(t *testing.T, net *transporttest.Network) *authority.Authority {
	t.Helper()
	logger, _ := test.NewNullLogger()
	history, err := checkpoint.NewHistory(context.Background(), nil, logger)
	if err != nil {
		t.Fatalf("error: %v\n", err)
	}

	ep := net.Endpoint("server")
	auth := authority.New(history,
		authority.WithLogger(logger),
		authority.WithMetrics(authority.NewMetrics(prometheus.NewRegistry())),
		authority.WithPublisher(&broadcaster{transport: ep, module: module, codec: commons.JSONCodec{}, logger: logger}),
	)
	ep.Subscribe(module, newDispatcher(auth, ep, module, logger, io.Discard))
	net.Join(ep)
	return auth
}

// peer is a client endpoint that decodes everything it receives.
type peer struct {
	ep  *transporttest.Endpoint
	got chan commons.Message
}

func joinPeer(t *testing.T, net *transporttest.Network, id string) *peer {
	t.Helper()
	p := &peer{ep: net.Endpoint(id), got: make(chan commons.Message, 64)}
	p.ep.Subscribe(module, transport.HandlerFuncs{Message: func(_, data string) {
		var msg commons.Message
		if err := (commons.JSONCodec{}).Decode(data, &msg); err != nil {
			t.Errorf("error: %v\n", err)
			return
		}
		p.got <- msg
	}})
	net.Join(p.ep)
	return p
}

func (p *peer) send(t *testing.T, msg commons.Message) {
	t.Helper()
	data, err := (commons.JSONCodec{}).Encode(msg)
	if err != nil {
		t.Fatalf("error: %v\n", err)
	}
	if err := p.ep.Send("server", module, data); err != nil {
		t.Fatalf("error: %v\n", err)
	}
}

func (p *peer) next(t *testing.T) commons.Message {
	t.Helper()
	select {
	case msg := <-p.got:
		return msg
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
	}
	return commons.Message{}
}

func rect(uid board.Uid, owner string) board.Shape {
	return board.Shape{
		Uid:        uid,
		Geometry:   geometry.NewRectangle(geometry.Pt(0, 0), geometry.Pt(2, 3)),
		CreatedAt:  t0,
		ModifiedAt: t0,
		Owner:      owner,
		Editor:     owner,
		Level:      1,
		Op:         board.OpCreate,
		Settled:    true,
	}
}

func TestJoinBootstrapsEmptyBoard(t *testing.T) {
	net := transporttest.NewNetwork()
	startServer(t, net)

	alice := joinPeer(t, net, "alice")
	got := alice.next(t)

	expected := commons.Message{Requester: "alice", Type: commons.FetchStateMessage, Full: true}
	if !cmp.Equal(got, expected) {
		t.Errorf("got != expected, diff: %v\n", cmp.Diff(got, expected))
	}
}

func TestUpdatesAreBroadcastAndLateJoinersBootstrap(t *testing.T) {
	net := transporttest.NewNetwork()
	auth := startServer(t, net)

	alice := joinPeer(t, net, "alice")
	alice.next(t)

	s := rect("a-1", "alice")
	alice.send(t, commons.NewDelta("alice", 0, commons.CreateMessage, []board.Shape{s}))

	echo := alice.next(t)
	if echo.Type != commons.CreateMessage || len(echo.Shapes) != 1 || echo.Shapes[0].Uid != s.Uid {
		t.Fatalf("unexpected echo %+v", echo)
	}

	bob := joinPeer(t, net, "bob")
	snapshot := bob.next(t)
	if !snapshot.Full || len(snapshot.Shapes) != 1 {
		t.Fatalf("unexpected snapshot %+v", snapshot)
	}
	shapes, err := commons.FromOperations(snapshot.Shapes)
	if err != nil {
		t.Fatalf("error: %v\n", err)
	}
	if !cmp.Equal(shapes, auth.FetchState()) {
		t.Errorf("got != expected, diff: %v\n", cmp.Diff(shapes, auth.FetchState()))
	}
}

func TestCheckpointMessages(t *testing.T) {
	net := transporttest.NewNetwork()
	auth := startServer(t, net)

	alice := joinPeer(t, net, "alice")
	alice.next(t)
	bob := joinPeer(t, net, "bob")
	bob.next(t)

	alice.send(t, commons.NewDelta("alice", 0, commons.CreateMessage, []board.Shape{rect("a-1", "alice")}))
	alice.next(t)
	bob.next(t)

	alice.send(t, commons.Message{Requester: "alice", Type: commons.SaveCheckpointMessage})
	for _, p := range []*peer{alice, bob} {
		msg := p.next(t)
		if msg.Type != commons.SaveCheckpointMessage || msg.Checkpoints != 1 {
			t.Errorf("unexpected message %+v", msg)
		}
	}

	bob.send(t, commons.NewDelta("bob", 0, commons.DeleteMessage, []board.Shape{{
		Uid: "a-1", ModifiedAt: t0.Add(time.Second), Editor: "bob", Op: board.OpDelete, Settled: true,
	}}))
	alice.next(t)
	bob.next(t)

	bob.send(t, commons.Message{Requester: "bob", Type: commons.FetchCheckpointMessage, Checkpoint: 0})
	for _, p := range []*peer{alice, bob} {
		msg := p.next(t)
		if msg.Type != commons.FetchCheckpointMessage || !msg.Full || msg.Epoch != 1 || len(msg.Shapes) != 1 {
			t.Errorf("unexpected message %+v", msg)
		}
	}
	if auth.Epoch() != 1 || len(auth.FetchState()) != 1 {
		t.Errorf("got epoch=%d shapes=%d", auth.Epoch(), len(auth.FetchState()))
	}
}

func TestRejectedBatchResynchronizesSender(t *testing.T) {
	net := transporttest.NewNetwork()
	startServer(t, net)

	alice := joinPeer(t, net, "alice")
	alice.next(t)

	// An epoch the authority never reached is stale.
	alice.send(t, commons.NewDelta("alice", 7, commons.CreateMessage, []board.Shape{rect("a-1", "alice")}))

	got := alice.next(t)
	if got.Type != commons.FetchStateMessage || !got.Full || got.Epoch != 0 {
		t.Errorf("unexpected message %+v", got)
	}
}

func TestUndecodableMessageIsDropped(t *testing.T) {
	net := transporttest.NewNetwork()
	auth := startServer(t, net)

	alice := joinPeer(t, net, "alice")
	alice.next(t)

	if err := alice.ep.Send("server", module, "{not json"); err != nil {
		t.Fatalf("error: %v\n", err)
	}
	alice.send(t, commons.Message{Requester: "alice", Type: commons.FetchStateMessage})

	// The next message is the answer to the valid request.
	if got := alice.next(t); got.Type != commons.FetchStateMessage {
		t.Errorf("unexpected message %+v", got)
	}
	if len(auth.FetchState()) != 0 {
		t.Errorf("got %d shapes, expected none", len(auth.FetchState()))
	}
}
