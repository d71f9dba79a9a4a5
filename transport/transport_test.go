package transport

import (
	"context"
	"fmt"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recv[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}
	var zero T
	return zero
}

func startHub(t *testing.T, opts ...HubOption) (*Hub, string) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	hub := NewHub(logger, opts...)
	srv := httptest.NewServer(hub)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) (*Client, context.CancelFunc) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	ctx, cancel := context.WithCancel(context.Background())
	c, err := Dial(ctx, url, 2*time.Second, logger)
	require.NoError(t, err)
	t.Cleanup(cancel)
	return c, cancel
}

func TestHubUnicastAndInbound(t *testing.T) {
	hub, url := startHub(t)

	joined := make(chan string, 1)
	inbound := make(chan string, 1)
	hub.Subscribe("board", HandlerFuncs{
		Join:    func(id string) { joined <- id },
		Message: func(from, data string) { inbound <- from + "|" + data },
	})

	c, cancel := dial(t, url)
	got := make(chan string, 1)
	c.Subscribe("board", HandlerFuncs{Message: func(from, data string) { got <- data }})
	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	go c.Run(ctx)

	id := recv(t, joined)
	require.NoError(t, hub.Send(id, "board", "hello"))
	assert.Equal(t, "hello", recv(t, got))

	require.NoError(t, c.Send("", "board", "create"))
	assert.Equal(t, id+"|create", recv(t, inbound))

	err := hub.Send("missing", "board", "x")
	assert.ErrorIs(t, err, ErrUnknownPeer)
	cancel()
}

func TestHubPreservesOrderPerPeer(t *testing.T) {
	hub, url := startHub(t)
	joined := make(chan string, 2)
	hub.Subscribe("board", HandlerFuncs{Join: func(id string) { joined <- id }})

	const n = 100
	var clients []chan string
	for i := 0; i < 2; i++ {
		c, _ := dial(t, url)
		got := make(chan string, n)
		c.Subscribe("board", HandlerFuncs{Message: func(_, data string) { got <- data }})
		go c.Run(context.Background())
		recv(t, joined)
		clients = append(clients, got)
	}
	require.Equal(t, 2, hub.Peers())

	for i := 0; i < n; i++ {
		require.NoError(t, hub.Send("", "board", fmt.Sprint(i)))
	}
	for _, got := range clients {
		for i := 0; i < n; i++ {
			require.Equal(t, fmt.Sprint(i), recv(t, got))
		}
	}
}

func TestHubIgnoresOtherModules(t *testing.T) {
	hub, url := startHub(t)
	joined := make(chan string, 1)
	hub.Subscribe("board", HandlerFuncs{Join: func(id string) { joined <- id }})

	c, _ := dial(t, url)
	board := make(chan string, 2)
	chat := make(chan string, 2)
	c.Subscribe("board", HandlerFuncs{Message: func(_, data string) { board <- data }})
	c.Subscribe("chat", HandlerFuncs{Message: func(_, data string) { chat <- data }})
	go c.Run(context.Background())

	id := recv(t, joined)
	require.NoError(t, hub.Send(id, "chat", "hi"))
	require.NoError(t, hub.Send(id, "board", "shape"))

	assert.Equal(t, "hi", recv(t, chat))
	assert.Equal(t, "shape", recv(t, board))
}

func TestHubReportsLeave(t *testing.T) {
	hub, url := startHub(t)
	joined := make(chan string, 1)
	left := make(chan string, 1)
	hub.Subscribe("board", HandlerFuncs{
		Join:  func(id string) { joined <- id },
		Leave: func(id string) { left <- id },
	})

	c, _ := dial(t, url)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	id := recv(t, joined)
	cancel()
	assert.ErrorIs(t, recv(t, done), context.Canceled)
	assert.Equal(t, id, recv(t, left))
}

func TestClosedHubRejectsSend(t *testing.T) {
	hub, _ := startHub(t)
	require.NoError(t, hub.Close())
	assert.ErrorIs(t, hub.Send("", "board", "x"), ErrClosed)
}

func TestRelayRoundTrip(t *testing.T) {
	addr := os.Getenv("PAIRBOARD_REDIS_ADDR")
	if addr == "" {
		t.Skip("PAIRBOARD_REDIS_ADDR not set")
	}
	logger, _ := test.NewNullLogger()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	relay, err := NewRelay(ctx, addr, "pairboard-test", logger)
	require.NoError(t, err)
	defer relay.Close()

	got := make(chan string, 1)
	ready := make(chan struct{})
	go func() {
		close(ready)
		relay.Follow(ctx, func(data string) { got <- data })
	}()
	<-ready
	// Give the subscription a moment to register before publishing.
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, relay.Publish(ctx, "delta"))
	assert.Equal(t, "delta", recv(t, got))
}
