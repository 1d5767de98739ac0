package chat_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	router "github.com/rynok/market/internal/adapters/http"
	"github.com/rynok/market/internal/auth"
	"github.com/rynok/market/internal/bus"
	"github.com/rynok/market/internal/chat"
	"github.com/rynok/market/internal/config"
	"github.com/rynok/market/internal/domain"
	"github.com/rynok/market/internal/store"
)

const testSecret = "test-secret"

type testEnv struct {
	srv      *httptest.Server
	store    *store.MemoryStore
	resolver *auth.Resolver
	presence *chat.Presence
	alice    domain.UserID
	bob      domain.UserID
}

func newTestEnv(t *testing.T, b bus.Bus) *testEnv {
	t.Helper()
	ctx := context.Background()

	st := store.NewMemoryStore()
	alice, err := st.CreateUser(ctx, "alice", "Alice", "Smith")
	require.NoError(t, err)
	bob, err := st.CreateUser(ctx, "bob", "Bob", "Jones")
	require.NoError(t, err)

	resolver := auth.NewResolver(testSecret)
	presence := chat.NewPresence()
	engine := chat.NewEngine(st, b, presence, 32768, 54*time.Second)

	cfg := &config.Config{Mode: "release"}
	r := router.SetupRouter(ctx, cfg, engine, st, resolver)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return &testEnv{
		srv:      srv,
		store:    st,
		resolver: resolver,
		presence: presence,
		alice:    alice.ID,
		bob:      bob.ID,
	}
}

// dial opens a chat socket as the given user, or anonymously when
// user is domain.Anonymous.
func (e *testEnv) dial(t *testing.T, user, partner domain.UserID) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/api/ws/chat/" + strconv.FormatInt(int64(partner), 10)
	if !user.IsAnonymous() {
		token, err := e.resolver.Issue(user, nil)
		require.NoError(t, err)
		url += "?token=" + token
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var event map[string]any
	require.NoError(t, json.Unmarshal(data, &event))
	return event
}

func expectNoEvent(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err, "received an event where none was expected")
	var netErr interface{ Timeout() bool }
	require.True(t, errors.As(err, &netErr) && netErr.Timeout(), "expected timeout, got %v", err)
}

func send(t *testing.T, conn *websocket.Conn, frame any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(frame))
}

func TestChatRoundTrip(t *testing.T) {
	env := newTestEnv(t, bus.NewLocalBus())

	a := env.dial(t, env.alice, env.bob)
	ev := readEvent(t, a)
	require.Equal(t, "status", ev["type"])
	require.Equal(t, "online", ev["status"])

	b := env.dial(t, env.bob, env.alice)
	for _, conn := range []*websocket.Conn{a, b} {
		ev = readEvent(t, conn)
		require.Equal(t, "status", ev["type"])
		require.Equal(t, float64(env.bob), ev["user_id"])
		require.Equal(t, "online", ev["status"])
	}

	// A sends; both sides, including A itself, receive the message.
	send(t, a, map[string]any{"type": "message", "content": "hi", "recipient_id": env.bob})
	var msgID float64
	for _, conn := range []*websocket.Conn{a, b} {
		ev = readEvent(t, conn)
		require.Equal(t, "message", ev["type"])
		msg := ev["message"].(map[string]any)
		require.Equal(t, "hi", msg["content"])
		require.Equal(t, false, msg["is_read"])
		sender := msg["sender"].(map[string]any)
		require.Equal(t, "alice", sender["username"])
		msgID = msg["id"].(float64)
	}

	// B marks it read; both sides see the receipt.
	send(t, b, map[string]any{"type": "mark_read", "message_ids": []float64{msgID}})
	for _, conn := range []*websocket.Conn{a, b} {
		ev = readEvent(t, conn)
		require.Equal(t, "messages_read", ev["type"])
		require.Equal(t, float64(env.bob), ev["reader_id"])
		require.Equal(t, []any{msgID}, ev["message_ids"].([]any))
	}

	stored, err := env.store.GetMessage(context.Background(), domain.MessageID(msgID))
	require.NoError(t, err)
	require.True(t, stored.IsRead)
}

func TestCheckOnlineIsUnicast(t *testing.T) {
	env := newTestEnv(t, bus.NewLocalBus())

	a := env.dial(t, env.alice, env.bob)
	readEvent(t, a) // own online status

	b := env.dial(t, env.bob, env.alice)
	readEvent(t, a) // bob online
	readEvent(t, b)

	send(t, b, map[string]any{"type": "check_online", "partner_id": env.alice})
	ev := readEvent(t, b)
	require.Equal(t, "online_status", ev["type"])
	require.Equal(t, float64(env.alice), ev["user_id"])
	require.Equal(t, true, ev["is_online"])

	// The reply never reaches the other member of the room.
	expectNoEvent(t, a)
}

func TestDisconnectBroadcastsOffline(t *testing.T) {
	env := newTestEnv(t, bus.NewLocalBus())

	a := env.dial(t, env.alice, env.bob)
	readEvent(t, a)

	b := env.dial(t, env.bob, env.alice)
	readEvent(t, a)
	readEvent(t, b)

	require.NoError(t, a.Close())

	ev := readEvent(t, b)
	require.Equal(t, "status", ev["type"])
	require.Equal(t, float64(env.alice), ev["user_id"])
	require.Equal(t, "offline", ev["status"])

	require.Eventually(t, func() bool {
		return !env.presence.IsOnline(env.alice)
	}, time.Second, 10*time.Millisecond)

	// Reconnect flips presence back.
	a2 := env.dial(t, env.alice, env.bob)
	readEvent(t, a2)
	send(t, b, map[string]any{"type": "check_online", "partner_id": env.alice})
	for {
		ev = readEvent(t, b)
		if ev["type"] == "online_status" {
			break
		}
	}
	require.Equal(t, true, ev["is_online"])
}

func TestEditAndDeleteOwnership(t *testing.T) {
	env := newTestEnv(t, bus.NewLocalBus())
	ctx := context.Background()

	a := env.dial(t, env.alice, env.bob)
	readEvent(t, a)
	b := env.dial(t, env.bob, env.alice)
	readEvent(t, a)
	readEvent(t, b)

	send(t, a, map[string]any{"type": "message", "content": "original", "recipient_id": env.bob})
	ev := readEvent(t, a)
	msgID := domain.MessageID(ev["message"].(map[string]any)["id"].(float64))
	readEvent(t, b)

	// Bob tries to edit Alice's message: nothing mutates.
	send(t, b, map[string]any{"type": "edit", "message_id": msgID, "content": "forged"})
	require.Eventually(t, func() bool {
		stored, err := env.store.GetMessage(ctx, msgID)
		return err == nil && stored.Content == "original"
	}, time.Second, 10*time.Millisecond)

	// Alice edits, then deletes. The first update event either side
	// sees carries Alice's content, proving the forged edit was never
	// broadcast; the row survives deletion with the edited content.
	send(t, a, map[string]any{"type": "edit", "message_id": msgID, "content": "edited"})
	for _, conn := range []*websocket.Conn{a, b} {
		ev = readEvent(t, conn)
		require.Equal(t, "update", ev["type"])
		require.Equal(t, "edited", ev["message"].(map[string]any)["content"])
	}

	send(t, a, map[string]any{"type": "delete", "message_id": msgID})
	for _, conn := range []*websocket.Conn{a, b} {
		ev = readEvent(t, conn)
		require.Equal(t, "delete", ev["type"])
		require.Equal(t, float64(msgID), ev["message_id"])
	}

	stored, err := env.store.GetMessage(ctx, msgID)
	require.NoError(t, err)
	require.True(t, stored.IsDeleted)
	require.Equal(t, "edited", stored.Content)

	history, err := env.store.Conversation(ctx, env.alice, env.bob)
	require.NoError(t, err)
	require.Empty(t, history)
}

func TestMalformedFramesKeepConnectionOpen(t *testing.T) {
	env := newTestEnv(t, bus.NewLocalBus())

	a := env.dial(t, env.alice, env.bob)
	readEvent(t, a)

	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte("{not json")))
	send(t, a, map[string]any{"type": "teleport"})
	send(t, a, map[string]any{"type": "message"}) // missing content and recipient

	// The connection survived all three; a valid frame still works.
	send(t, a, map[string]any{"type": "check_online", "partner_id": env.bob})
	ev := readEvent(t, a)
	require.Equal(t, "online_status", ev["type"])
	require.Equal(t, false, ev["is_online"])
}

// failingBus joins fine but every publish fails, modelling an
// unreachable broker.
type failingBus struct {
	inner *bus.LocalBus
}

func (f *failingBus) Join(ctx context.Context, room domain.RoomName, sub bus.Subscriber) error {
	return f.inner.Join(ctx, room, sub)
}

func (f *failingBus) Leave(ctx context.Context, room domain.RoomName, sub bus.Subscriber) {
	f.inner.Leave(ctx, room, sub)
}

func (f *failingBus) Publish(context.Context, domain.RoomName, []byte) error {
	return errors.New("bus unreachable")
}

func TestPublishFailureFallsBackToSender(t *testing.T) {
	env := newTestEnv(t, &failingBus{inner: bus.NewLocalBus()})

	a := env.dial(t, env.alice, env.bob)
	readEvent(t, a) // own online status, via fallback

	b := env.dial(t, env.bob, env.alice)
	readEvent(t, b)

	send(t, a, map[string]any{"type": "message", "content": "hi", "recipient_id": env.bob})

	// The sender still sees its own message; the peer misses the live
	// update but the message is durably persisted for history reload.
	ev := readEvent(t, a)
	require.Equal(t, "message", ev["type"])
	expectNoEvent(t, b)

	history, err := env.store.Conversation(context.Background(), env.bob, env.alice)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, "hi", history[0].Content)
}

func TestAnonymousConnectionIsRefusedOperations(t *testing.T) {
	env := newTestEnv(t, bus.NewLocalBus())

	a := env.dial(t, domain.Anonymous, env.bob)
	ev := readEvent(t, a)
	require.Equal(t, "error", ev["type"])

	send(t, a, map[string]any{"type": "message", "content": "hi", "recipient_id": env.bob})
	ev = readEvent(t, a)
	require.Equal(t, "error", ev["type"])

	history, err := env.store.Conversation(context.Background(), env.alice, env.bob)
	require.NoError(t, err)
	require.Empty(t, history, "anonymous send must not persist")
}
