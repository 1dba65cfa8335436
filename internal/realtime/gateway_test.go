package realtime

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"teamchat/internal/user"
)

type fakeUsers struct {
	mu       sync.Mutex
	statuses map[string]string
}

func (f *fakeUsers) GetSelf(_ context.Context, userID string) (*user.User, error) {
	return &user.User{ID: userID, Username: "alice"}, nil
}

func (f *fakeUsers) SetStatus(_ context.Context, userID, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[userID] = status
	return nil
}

func (f *fakeUsers) status(userID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statuses[userID]
}

type fakeChannelAccess struct {
	visible map[string]bool
}

func (f fakeChannelAccess) IsVisible(_ context.Context, channelID, _ string) (bool, error) {
	return f.visible[channelID], nil
}

func newTestGateway(t *testing.T, visible map[string]bool) (*Gateway, *Hub, *fakeUsers) {
	t.Helper()
	hub := newTestHub()
	users := &fakeUsers{statuses: make(map[string]string)}
	g := NewGateway(hub, nil, nil, users, nil, fakeChannelAccess{visible: visible}, zerolog.Nop())
	return g, hub, users
}

func newGatewayClient(g *Gateway, userID, connID string, workspaces []string) *Client {
	return &Client{
		gateway:    g,
		send:       make(chan []byte, 8),
		userID:     userID,
		username:   "alice",
		connID:     connID,
		workspaces: workspaces,
		rooms:      make(map[string]bool),
	}
}

func decodeFrame(t *testing.T, payload []byte) (string, json.RawMessage) {
	t.Helper()
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		t.Fatalf("frame is not valid JSON: %v", err)
	}
	return env.Event, env.Data
}

func TestJoinPublicChannelWithoutMembership(t *testing.T) {
	g, hub, _ := newTestGateway(t, map[string]bool{"pub-1": true})

	c := newGatewayClient(g, "u1", "c1", nil)
	hub.register <- c

	g.dispatch(c, []byte(`{"event":"channel:join","data":{"channelId":"pub-1"}}`))

	hub.Publish(channelRoom("pub-1"), "", []byte("preview"))
	if got := string(receive(t, c)); got != "preview" {
		t.Fatalf("received %q, want preview", got)
	}
	if !c.inRoom(channelRoom("pub-1")) {
		t.Fatal("client should track the joined room")
	}
}

func TestJoinInvisibleChannelRejected(t *testing.T) {
	g, hub, _ := newTestGateway(t, map[string]bool{})

	c := newGatewayClient(g, "u1", "c1", nil)
	hub.register <- c

	g.dispatch(c, []byte(`{"event":"channel:join","data":{"channelId":"priv-1"}}`))

	event, data := decodeFrame(t, receive(t, c))
	if event != EventError {
		t.Fatalf("event = %q, want %q", event, EventError)
	}
	var e ErrorEvent
	if err := json.Unmarshal(data, &e); err != nil {
		t.Fatalf("failed to decode error: %v", err)
	}
	if e.Message != "channel not found" {
		t.Fatalf("message = %q", e.Message)
	}

	hub.Publish(channelRoom("priv-1"), "", []byte("secret"))
	assertSilent(t, c)
}

func TestSendEventAfterDropDoesNotPanic(t *testing.T) {
	g, hub, _ := newTestGateway(t, nil)

	c := newGatewayClient(g, "u1", "c1", nil)
	c.send = make(chan []byte, 1)
	hub.register <- c
	hub.Subscribe(c, channelRoom("alpha"))

	hub.Publish(channelRoom("alpha"), "", []byte("one"))
	hub.Publish(channelRoom("alpha"), "", []byte("two"))

	receive(t, c)
	waitClosed(t, c)

	// A read-pump error reply racing the drop must be swallowed, not
	// panic on the closed channel.
	c.sendError("late reply")
}

func TestDroppedClientNotResubscribed(t *testing.T) {
	g, hub, _ := newTestGateway(t, nil)

	slow := newGatewayClient(g, "u1", "slow", nil)
	slow.send = make(chan []byte, 1)
	healthy := newGatewayClient(g, "u2", "healthy", nil)
	hub.register <- slow
	hub.register <- healthy
	hub.Subscribe(slow, channelRoom("alpha"))
	hub.Subscribe(healthy, channelRoom("alpha"))

	hub.Publish(channelRoom("alpha"), "", []byte("one"))
	hub.Publish(channelRoom("alpha"), "", []byte("two"))

	receive(t, slow)
	waitClosed(t, slow)

	// A subscribe landing after the drop must not put the closed client
	// back into the room.
	hub.Subscribe(slow, channelRoom("alpha"))
	hub.Publish(channelRoom("alpha"), "", []byte("three"))

	receive(t, healthy) // "one"
	receive(t, healthy) // "two"
	if got := string(receive(t, healthy)); got != "three" {
		t.Fatalf("healthy received %q, want three", got)
	}
}

func TestSetStatusBroadcastsToWorkspaces(t *testing.T) {
	g, hub, users := newTestGateway(t, nil)

	c := newGatewayClient(g, "u1", "c1", []string{"ws-1", "ws-2"})
	watcher := newGatewayClient(g, "u2", "w1", nil)
	hub.register <- c
	hub.register <- watcher
	hub.Subscribe(watcher, workspaceRoom("ws-1"))

	g.setStatus(context.Background(), c, user.StatusOnline)

	event, data := decodeFrame(t, receive(t, watcher))
	if event != EventUserStatus {
		t.Fatalf("event = %q, want %q", event, EventUserStatus)
	}
	var se StatusEvent
	if err := json.Unmarshal(data, &se); err != nil {
		t.Fatalf("failed to decode status: %v", err)
	}
	if se.UserID != "u1" || se.Status != user.StatusOnline {
		t.Fatalf("status event = %+v", se)
	}
	if got := users.status("u1"); got != user.StatusOnline {
		t.Fatalf("persisted status = %q, want %q", got, user.StatusOnline)
	}
}

func TestDisconnectLastConnectionAnnouncesOffline(t *testing.T) {
	s := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { rdb.Close() })

	hub := newTestHub()
	users := &fakeUsers{statuses: make(map[string]string)}
	g := NewGateway(hub, NewPresence(rdb), nil, users, nil, fakeChannelAccess{}, zerolog.Nop())

	ctx := context.Background()
	if _, err := g.presence.Connect(ctx, "u1", "c1"); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if _, err := g.presence.Connect(ctx, "u1", "c2"); err != nil {
		t.Fatalf("connect: %v", err)
	}

	first := newGatewayClient(g, "u1", "c1", []string{"ws-1"})
	second := newGatewayClient(g, "u1", "c2", []string{"ws-1"})
	watcher := newGatewayClient(g, "u2", "w1", nil)
	hub.register <- first
	hub.register <- second
	hub.register <- watcher
	hub.Subscribe(watcher, workspaceRoom("ws-1"))

	// Closing one of two connections is not an offline transition.
	g.disconnect(first)
	assertSilent(t, watcher)

	g.disconnect(second)
	event, data := decodeFrame(t, receive(t, watcher))
	if event != EventUserStatus {
		t.Fatalf("event = %q, want %q", event, EventUserStatus)
	}
	var se StatusEvent
	if err := json.Unmarshal(data, &se); err != nil {
		t.Fatalf("failed to decode status: %v", err)
	}
	if se.UserID != "u1" || se.Status != user.StatusOffline {
		t.Fatalf("status event = %+v", se)
	}
	if got := users.status("u1"); got != user.StatusOffline {
		t.Fatalf("persisted status = %q, want %q", got, user.StatusOffline)
	}
}

func waitClosed(t *testing.T, c *Client) {
	t.Helper()
	select {
	case _, ok := <-c.send:
		if ok {
			t.Fatal("expected send channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("send channel not closed")
	}
}
