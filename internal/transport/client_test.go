package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/traylinx/perfgov/internal/notify"
	"github.com/traylinx/perfgov/internal/scheduler"
	"github.com/traylinx/perfgov/internal/tier"
)

// ackServer acknowledges every performance_change frame it receives.
func ackServer(t *testing.T, received chan<- notify.Message) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{}
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		for {
			_, data, err := c.ReadMessage()
			if err != nil {
				return
			}
			var msg notify.Message
			if err := json.Unmarshal(data, &msg); err != nil {
				t.Errorf("Unmarshal failed: %v", err)
				return
			}
			received <- msg
			ack := map[string]any{"type": notify.AckType, "changeId": msg.ChangeID}
			if err := c.WriteJSON(ack); err != nil {
				return
			}
		}
	}))
}

// stalledServer accepts the upgrade and never reads until release is closed.
func stalledServer(t *testing.T, release <-chan struct{}) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{}
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		<-release
	}))
}

// fillQueue sends until the writer is stuck behind the stalled peer and the queue is full.
// Every Send must return promptly along the way.
func fillQueue(t *testing.T, ctx context.Context, client *Client, msg *notify.Message) {
	t.Helper()
	deadline := time.Now().Add(20 * time.Second)
	for time.Now().Before(deadline) {
		start := time.Now()
		err := client.Send(ctx, msg)
		require.Less(t, time.Since(start), 250*time.Millisecond, "Send blocked on a stalled peer")
		if errors.Is(err, ErrQueueFull) {
			return
		}
		require.NoError(t, err)
	}
	t.Fatal("Outbound queue never filled against a stalled peer")
}

func connectStalled(t *testing.T) (*Client, context.Context) {
	t.Helper()
	release := make(chan struct{})
	server := stalledServer(t, release)

	cfg := DefaultConfig(wsURL(server))
	cfg.QueueSize = 4
	cfg.WriteTimeout = 30 * time.Second
	client := NewClient(cfg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		_ = client.Close()
		cancel()
		close(release)
		server.Close()
	})
	go func() { _ = client.Run(ctx) }()
	waitConnected(t, client)
	return client, ctx
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func waitConnected(t *testing.T, c *Client) {
	t.Helper()
	require.Eventually(t, c.IsConnected, 5*time.Second, 10*time.Millisecond)
}

func TestClient_SendAndAck(t *testing.T) {
	received := make(chan notify.Message, 1)
	server := ackServer(t, received)
	defer server.Close()

	acks := make(chan string, 1)
	client := NewClient(DefaultConfig(wsURL(server)), func(id string) { acks <- id })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = client.Run(ctx) }()
	waitConnected(t, client)

	msg := notify.NewMessage(tier.Transition{From: tier.High, To: tier.Medium, Direction: tier.Down, At: time.Now()})
	require.NoError(t, client.Send(ctx, msg))

	select {
	case got := <-received:
		assert.Equal(t, msg.ChangeID, got.ChangeID)
		assert.Equal(t, notify.ActionDowngrade, got.Action)
		assert.Equal(t, tier.Medium, got.To)
	case <-time.After(5 * time.Second):
		t.Fatal("Timeout waiting for server to receive message")
	}

	select {
	case id := <-acks:
		assert.Equal(t, msg.ChangeID, id)
	case <-time.After(5 * time.Second):
		t.Fatal("Timeout waiting for ack")
	}

	require.NoError(t, client.Close())
	assert.Eventually(t, func() bool { return !client.IsConnected() }, 5*time.Second, 10*time.Millisecond)
}

func TestClient_SendWithoutConnection(t *testing.T) {
	client := NewClient(DefaultConfig("ws://127.0.0.1:1"), nil)

	err := client.Send(context.Background(), notify.NewMessage(tier.Transition{From: tier.Low, To: tier.Medium, Direction: tier.Up}))

	assert.ErrorIs(t, err, notify.ErrNotConnected)
	assert.False(t, client.IsConnected())
	assert.ErrorIs(t, client.Send(context.Background(), nil), notify.ErrInvalidMessage)
}

func TestClient_SendDoesNotBlockOnStalledPeer(t *testing.T) {
	client, ctx := connectStalled(t)
	msg := notify.NewMessage(tier.Transition{From: tier.High, To: tier.Medium, Direction: tier.Down, At: time.Now()})

	fillQueue(t, ctx, client, msg)

	start := time.Now()
	err := client.Send(ctx, msg)
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Less(t, time.Since(start), 250*time.Millisecond)
	assert.True(t, client.IsConnected())
}

func TestClient_LoopStaysResponsiveWhilePeerStalls(t *testing.T) {
	client, ctx := connectStalled(t)
	tr := tier.Transition{From: tier.High, To: tier.Medium, Direction: tier.Down, At: time.Now()}
	fillQueue(t, ctx, client, notify.NewMessage(tr))

	loop := scheduler.NewLoop(16)
	loopCtx, stop := context.WithCancel(context.Background())
	defer stop()
	go loop.Run(loopCtx)
	defer loop.Close()

	notifier := notify.NewNotifier(notify.DefaultConfig(), client, loop, nil)
	ran := make(chan struct{})
	start := time.Now()
	loop.Post(func() { notifier.Notify(tr) })
	loop.Post(func() { close(ran) })

	select {
	case <-ran:
		assert.Less(t, time.Since(start), 250*time.Millisecond)
	case <-time.After(5 * time.Second):
		t.Fatal("Loop stalled behind a transport send")
	}
	pending := make(chan int, 1)
	loop.Post(func() {
		pending <- len(notifier.Pending())
		notifier.Close()
	})
	assert.Equal(t, 1, <-pending, "the refused send is kept for retry")
}

func TestClient_RunRequiresURL(t *testing.T) {
	client := NewClient(Config{}, nil)
	assert.Error(t, client.Run(context.Background()))
}

func TestClient_DispatchIgnoresMalformedFrames(t *testing.T) {
	var acked []string
	client := NewClient(DefaultConfig("ws://unused"), func(id string) { acked = append(acked, id) })

	client.dispatch([]byte(`{"type":"performance_change_ack"}`))
	client.dispatch([]byte(`{"type":"chat","changeId":"x"}`))
	client.dispatch([]byte(`not json`))
	client.dispatch([]byte(`{"type":"performance_change_ack","changeId":"upgrade_high_1_ab"}`))

	assert.Equal(t, []string{"upgrade_high_1_ab"}, acked)
}

func TestClient_RunStopsOnCancel(t *testing.T) {
	client := NewClient(Config{URL: "ws://127.0.0.1:1", ReconnectDelay: 10 * time.Millisecond}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := client.Run(ctx)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
