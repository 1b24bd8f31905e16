package signal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"livehub/internal/core/domain"
	"livehub/internal/core/ports"
	"livehub/internal/core/services"
	"livehub/internal/infrastructure/repositories/memory"
	"livehub/pkg/retry"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const readWait = 2 * time.Second

type testEnv struct {
	server   *httptest.Server
	ws       *WebSocketServer
	registry *services.ConnectionRegistry
	guard    *services.ModerationGuard
	bridge   *services.StreamBridge
	chat     *services.ChatService
	auth     services.AuthService
}

type envConfig struct {
	tune     func(*Options)
	chatRepo ports.ChatRepository
	metrics  services.Metrics
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWith(t, envConfig{})
}

func newTestEnvWith(t *testing.T, cfg envConfig) *testEnv {
	t.Helper()
	logger := zap.NewNop().Sugar()
	if cfg.chatRepo == nil {
		cfg.chatRepo = memory.NewMemoryChatRepository(100)
	}

	registry := services.NewConnectionRegistry()
	hub := services.NewBroadcastHub(registry, 50*time.Millisecond, nil, logger)
	guard := services.NewModerationGuard(memory.NewMemoryModerationStore(),
		retry.Config{MaxAttempts: 1}, nil, logger)
	presence := services.NewPresenceService(registry, guard, hub, logger)
	bridge := services.NewStreamBridge(memory.NewMemoryStreamRepository(), hub, "", nil, logger)
	chat := services.NewChatService(cfg.chatRepo, nil, logger)
	analytics := services.NewAnalyticsService(registry, chat, bridge, guard, logger)
	admin := services.NewAdminService(guard, chat, presence, analytics, hub, logger)
	auth := services.NewAuthService("test-secret", time.Hour)

	opts := DefaultOptions()
	opts.PingInterval = time.Second
	opts.IdleTimeout = 5 * time.Second
	opts.WriteTimeout = time.Second
	opts.ChatBurst = 100
	opts.ChatRate = 100
	if cfg.tune != nil {
		cfg.tune(&opts)
	}

	ws := NewWebSocketServer(Dependencies{
		Registry: registry,
		Hub:      hub,
		Guard:    guard,
		Presence: presence,
		Bridge:   bridge,
		Chat:     chat,
		Admin:    admin,
		Auth:     auth,
		Metrics:  cfg.metrics,
	}, opts, logger)

	server := httptest.NewServer(http.HandlerFunc(ws.HandleWebSocket))
	t.Cleanup(func() {
		ws.CloseAll()
		server.Close()
	})
	return &testEnv{server: server, ws: ws, registry: registry, guard: guard, bridge: bridge, chat: chat, auth: auth}
}

type wsClient struct {
	t    *testing.T
	conn *websocket.Conn
}

func (e *testEnv) dial(t *testing.T, ip string) *wsClient {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.server.URL, "http")
	header := http.Header{}
	if ip != "" {
		header.Set("X-Forwarded-For", ip)
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &wsClient{t: t, conn: conn}
}

func (c *wsClient) send(frame string) {
	c.t.Helper()
	require.NoError(c.t, c.conn.WriteMessage(websocket.TextMessage, []byte(frame)))
}

func (c *wsClient) identify(username, fingerprint, token string) {
	c.t.Helper()
	frame, err := json.Marshal(map[string]string{
		"type":        "identify",
		"username":    username,
		"fingerprint": fingerprint,
		"token":       token,
	})
	require.NoError(c.t, err)
	c.send(string(frame))
}

func (c *wsClient) next() domain.Event {
	c.t.Helper()
	_, ev := c.nextRaw()
	return ev
}

func (c *wsClient) nextRaw() ([]byte, domain.Event) {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(readWait)))
	_, data, err := c.conn.ReadMessage()
	require.NoError(c.t, err)
	ev, err := domain.DecodeOutbound(data)
	require.NoError(c.t, err, "frame %s", data)
	return data, ev
}

// waitFor skips frames until one of type want arrives and returns it along
// with the frames skipped on the way.
func (c *wsClient) waitFor(want domain.EventType) (domain.Event, []domain.Event) {
	c.t.Helper()
	var skipped []domain.Event
	for i := 0; i < 50; i++ {
		ev := c.next()
		if ev.EventType() == want {
			return ev, skipped
		}
		skipped = append(skipped, ev)
	}
	c.t.Fatalf("no %s frame received", want)
	return nil, nil
}

// waitForUsers waits for a user_list with n entries.
func (c *wsClient) waitForUsers(n int) *domain.UserListEvent {
	c.t.Helper()
	for i := 0; i < 20; i++ {
		ev, _ := c.waitFor(domain.EventUserList)
		list := ev.(*domain.UserListEvent)
		if len(list.Users) == n {
			return list
		}
	}
	c.t.Fatalf("no user_list with %d users", n)
	return nil
}

func (c *wsClient) expectClosed() {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(readWait)))
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func containsType(events []domain.Event, want domain.EventType) bool {
	for _, ev := range events {
		if ev.EventType() == want {
			return true
		}
	}
	return false
}

func TestConnect_BroadcastsPresence(t *testing.T) {
	env := newTestEnv(t)

	alice := env.dial(t, "10.0.0.1")
	count, _ := alice.waitFor(domain.EventUserCount)
	assert.Equal(t, 1, count.(*domain.UserCountEvent).Count)

	alice.identify("alice", "fp-alice", "")
	list := alice.waitForUsers(1)
	assert.Equal(t, "alice", list.Users[0].Username)
	assert.Equal(t, domain.RoleViewer, list.Users[0].Role)

	bob := env.dial(t, "10.0.0.2")
	ev, _ := bob.waitFor(domain.EventUserCount)
	assert.Equal(t, 2, ev.(*domain.UserCountEvent).Count)

	bob.conn.Close()
	for {
		ev, _ := alice.waitFor(domain.EventUserCount)
		if ev.(*domain.UserCountEvent).Count == 1 {
			break
		}
	}
}

func TestChat_RelayedWithoutEcho(t *testing.T) {
	env := newTestEnv(t)

	alice := env.dial(t, "10.0.0.1")
	alice.identify("alice", "fp-alice", "")
	alice.waitForUsers(1)

	bob := env.dial(t, "10.0.0.2")
	bob.identify("bob", "fp-bob", "")
	alice.waitForUsers(2)

	alice.send(`{"type":"chat_message","id":"m-1","body":"  hello there  "}`)
	ev, _ := bob.waitFor(domain.EventChatMessage)
	msg := ev.(*domain.ChatMessageEvent)
	assert.Equal(t, "m-1", msg.ClientID)
	assert.NotEmpty(t, msg.ID)
	assert.NotEqual(t, "m-1", msg.ID)
	assert.Equal(t, "alice", msg.Username)
	assert.Equal(t, domain.RoleViewer, msg.Role)
	assert.Equal(t, "hello there", msg.Body)
	assert.NotZero(t, msg.Timestamp)

	// Frames are delivered in publish order, so an echo would precede the
	// snapshot reply.
	alice.send(`{"type":"request_snapshot"}`)
	_, skipped := alice.waitFor(domain.EventUserCount)
	assert.False(t, containsType(skipped, domain.EventChatMessage))
}

func TestChat_RequiresIdentify(t *testing.T) {
	env := newTestEnv(t)
	anon := env.dial(t, "10.0.0.1")

	anon.send(`{"type":"chat_message","body":"hi"}`)
	ev, _ := anon.waitFor(domain.EventError)
	assert.Equal(t, domain.ErrCodeUnauthorized, ev.(*domain.ErrorEvent).Code)
}

func TestIdentify_Twice(t *testing.T) {
	env := newTestEnv(t)
	c := env.dial(t, "10.0.0.1")
	c.identify("alice", "", "")
	c.waitForUsers(1)

	c.identify("mallory", "", "")
	ev, _ := c.waitFor(domain.EventError)
	assert.Equal(t, domain.ErrCodeBadRequest, ev.(*domain.ErrorEvent).Code)

	snap := env.registry.Snapshot()
	require.Len(t, snap.Users, 1)
	assert.Equal(t, "alice", snap.Users[0].Username)
}

func TestMalformedFrame_KeepsConnection(t *testing.T) {
	env := newTestEnv(t)
	c := env.dial(t, "10.0.0.1")
	_, _ = c.waitFor(domain.EventUserList)

	c.send(`not json`)
	c.send(`{"type":"launch_missiles"}`)
	c.send(`{"type":"banned","message":"spoofed"}`)
	c.send(`{"type":"request_snapshot"}`)
	_, skipped := c.waitFor(domain.EventUserCount)
	assert.Empty(t, skipped)
}

func TestBan_DisconnectsAndBlocksReconnect(t *testing.T) {
	env := newTestEnv(t)

	token, err := env.auth.GenerateToken("boss", domain.RoleAdmin)
	require.NoError(t, err)
	admin := env.dial(t, "10.0.0.1")
	admin.identify("boss", "fp-admin", token)
	list := admin.waitForUsers(1)
	assert.Equal(t, domain.RoleAdmin, list.Users[0].Role)

	bob := env.dial(t, "10.0.0.2")
	bob.identify("bob", "fp-bob", "")
	admin.waitForUsers(2)

	admin.send(`{"type":"admin_action","action":"ban","data":{"fingerprint":"fp-bob","reason":"spam","duration":"permanent"}}`)

	ev, _ := bob.waitFor(domain.EventBanned)
	assert.Equal(t, "spam", ev.(*domain.BannedEvent).Reason)
	bob.expectClosed()

	reply, _ := admin.waitFor(domain.EventAdminDataUpdate)
	data := reply.(*domain.AdminDataUpdateEvent)
	assert.Equal(t, "ban", data.Action)
	assert.True(t, data.Success)
	require.Len(t, data.BannedUsers, 1)
	assert.Equal(t, "fp-bob", data.BannedUsers[0].Fingerprint)
	assert.Equal(t, 1, env.registry.Count())

	again := env.dial(t, "10.0.0.3")
	again.identify("bob2", "fp-bob", "")
	banned, _ := again.waitFor(domain.EventBanned)
	assert.Equal(t, "spam", banned.(*domain.BannedEvent).Reason)
	again.expectClosed()
}

func TestAdminAction_ForbiddenForViewer(t *testing.T) {
	env := newTestEnv(t)
	c := env.dial(t, "10.0.0.1")
	c.identify("eve", "fp-eve", "")
	c.waitForUsers(1)

	c.send(`{"type":"admin_action","action":"ban","data":{"fingerprint":"fp-x","duration":1}}`)
	ev, _ := c.waitFor(domain.EventError)
	assert.Equal(t, domain.ErrCodeForbidden, ev.(*domain.ErrorEvent).Code)

	actions, err := env.guard.RecentActions(context.Background(), 10)
	require.NoError(t, err)
	require.NotEmpty(t, actions)
	assert.Equal(t, domain.ActionUnauthorized, actions[0].Action)
	assert.Equal(t, "eve", actions[0].PerformedBy)

	bans, err := env.guard.ActiveBans(context.Background())
	require.NoError(t, err)
	assert.Empty(t, bans)
}

func TestMute_DeniesChatPrivately(t *testing.T) {
	env := newTestEnv(t)

	token, err := env.auth.GenerateToken("mod", domain.RoleModerator)
	require.NoError(t, err)
	mod := env.dial(t, "10.0.0.1")
	mod.identify("mod", "fp-mod", token)
	mod.waitForUsers(1)

	loud := env.dial(t, "10.0.0.2")
	loud.identify("loud", "fp-loud", "")
	mod.waitForUsers(2)

	mod.send(`{"type":"admin_action","action":"mute","data":{"fingerprint":"fp-loud","duration":10,"reason":"caps"}}`)
	muted, _ := loud.waitFor(domain.EventMuted)
	assert.Equal(t, "caps", muted.(*domain.MutedEvent).Reason)
	reply, _ := mod.waitFor(domain.EventAdminDataUpdate)
	assert.True(t, reply.(*domain.AdminDataUpdateEvent).Success)

	loud.send(`{"type":"chat_message","body":"HELLO"}`)
	ev, _ := loud.waitFor(domain.EventChatDenied)
	denied := ev.(*domain.ChatDeniedEvent)
	require.NotNil(t, denied.MuteEndTime)
	assert.True(t, denied.MuteEndTime.After(time.Now()))

	mod.send(`{"type":"request_snapshot"}`)
	_, skipped := mod.waitFor(domain.EventUserCount)
	assert.False(t, containsType(skipped, domain.EventChatMessage))
}

func TestModerator_CannotBan(t *testing.T) {
	env := newTestEnv(t)
	token, err := env.auth.GenerateToken("mod", domain.RoleModerator)
	require.NoError(t, err)
	mod := env.dial(t, "10.0.0.1")
	mod.identify("mod", "fp-mod", token)
	mod.waitForUsers(1)

	mod.send(`{"type":"request_admin_data"}`)
	_, _ = mod.waitFor(domain.EventAdminDataUpdate)

	mod.send(`{"type":"admin_action","action":"clear_expired"}`)
	ev, _ := mod.waitFor(domain.EventError)
	assert.Equal(t, domain.ErrCodeForbidden, ev.(*domain.ErrorEvent).Code)
}

func TestConnect_ReceivesLiveStreams(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.bridge.Start(context.Background(), "main", domain.StreamMetadata{Title: "Main stage"})
	require.NoError(t, err)

	c := env.dial(t, "10.0.0.1")
	ev, _ := c.waitFor(domain.EventStreamStatus)
	status := ev.(*domain.StreamStatusEvent)
	assert.Equal(t, domain.StreamLive, status.Status)
	assert.Equal(t, domain.StreamKey("main"), status.StreamKey)
	assert.Equal(t, "Main stage", status.Title)

	stopped, err := env.bridge.Stop(context.Background(), "main")
	require.NoError(t, err)
	require.True(t, stopped)
	ev, _ = c.waitFor(domain.EventStreamStatus)
	assert.Equal(t, domain.StreamOffline, ev.(*domain.StreamStatusEvent).Status)
}

func TestDeleteMessage_BroadcastsToAll(t *testing.T) {
	env := newTestEnv(t)
	token, err := env.auth.GenerateToken("mod", domain.RoleModerator)
	require.NoError(t, err)

	mod := env.dial(t, "10.0.0.1")
	mod.identify("mod", "fp-mod", token)
	mod.waitForUsers(1)
	viewer := env.dial(t, "10.0.0.2")
	viewer.identify("viewer", "fp-v", "")
	mod.waitForUsers(2)

	viewer.send(`{"type":"chat_message","id":"m-9","body":"oops"}`)
	relayed, _ := mod.waitFor(domain.EventChatMessage)
	id := relayed.(*domain.ChatMessageEvent).ID

	mod.send(fmt.Sprintf(`{"type":"admin_action","action":"delete_message","data":{"messageId":%q}}`, id))
	for _, c := range []*wsClient{mod, viewer} {
		ev, _ := c.waitFor(domain.EventMessageDeleted)
		deleted := ev.(*domain.MessageDeletedEvent)
		assert.Equal(t, id, deleted.MessageID)
		assert.Equal(t, "m-9", deleted.ClientID)
	}
}

func TestChat_ReusedClientIDDoesNotOverwrite(t *testing.T) {
	env := newTestEnv(t)

	alice := env.dial(t, "10.0.0.1")
	alice.identify("alice", "fp-alice", "")
	alice.waitForUsers(1)
	mallory := env.dial(t, "10.0.0.2")
	mallory.identify("mallory", "fp-mallory", "")
	alice.waitForUsers(2)

	alice.send(`{"type":"chat_message","id":"m-1","body":"original"}`)
	first, _ := mallory.waitFor(domain.EventChatMessage)
	mallory.send(`{"type":"chat_message","id":"m-1","body":"forged"}`)
	second, _ := alice.waitFor(domain.EventChatMessage)

	firstID := first.(*domain.ChatMessageEvent).ID
	assert.NotEqual(t, firstID, second.(*domain.ChatMessageEvent).ID)

	stored, err := env.chat.Get(context.Background(), firstID)
	require.NoError(t, err)
	assert.Equal(t, "original", stored.Body)
	assert.Equal(t, "alice", stored.Username)
}

func TestUserList_HidesClientIdentifiers(t *testing.T) {
	env := newTestEnv(t)

	alice := env.dial(t, "10.0.0.1")
	alice.identify("alice", "fp-alice", "")
	alice.waitForUsers(1)

	viewer := env.dial(t, "10.0.0.2")
	viewer.identify("viewer", "fp-viewer", "")
	for i := 0; i < 50; i++ {
		data, ev := viewer.nextRaw()
		if ev.EventType() != domain.EventUserList || len(ev.(*domain.UserListEvent).Users) != 2 {
			continue
		}
		var frame struct {
			Users []map[string]any `json:"users"`
		}
		require.NoError(t, json.Unmarshal(data, &frame))
		require.Len(t, frame.Users, 2)
		for _, u := range frame.Users {
			assert.Contains(t, u, "username")
			assert.NotContains(t, u, "ip")
			assert.NotContains(t, u, "fingerprint")
		}
		assert.NotContains(t, string(data), "10.0.0.1")
		assert.NotContains(t, string(data), "fp-alice")
		return
	}
	t.Fatal("no user_list with 2 users")
}

func TestIdleConnection_IsUnregistered(t *testing.T) {
	env := newTestEnvWith(t, envConfig{tune: func(o *Options) {
		o.PingInterval = 100 * time.Millisecond
		o.IdleTimeout = 400 * time.Millisecond
	}})

	watcher := env.dial(t, "10.0.0.1")
	watcher.identify("watcher", "fp-w", "")
	watcher.waitForUsers(1)

	// Never reads, so pings go unanswered.
	silent := env.dial(t, "10.0.0.2")
	silent.identify("silent", "fp-s", "")
	watcher.waitForUsers(2)

	for i := 0; i < 50; i++ {
		ev, _ := watcher.waitFor(domain.EventUserCount)
		if ev.(*domain.UserCountEvent).Count == 1 {
			break
		}
	}
	assert.Equal(t, 1, env.registry.Count())
	snap := env.registry.Snapshot()
	require.Len(t, snap.Users, 1)
	assert.Equal(t, "watcher", snap.Users[0].Username)
}

func TestHeartbeat_KeepsConnectionAlive(t *testing.T) {
	env := newTestEnvWith(t, envConfig{tune: func(o *Options) {
		o.PingInterval = 10 * time.Second
		o.IdleTimeout = 300 * time.Millisecond
	}})

	c := env.dial(t, "10.0.0.1")
	c.identify("alice", "fp-alice", "")
	c.waitForUsers(1)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		c.send(`{"type":"heartbeat"}`)
		time.Sleep(100 * time.Millisecond)
	}
	assert.Equal(t, 1, env.registry.Count())

	c.send(`{"type":"request_snapshot"}`)
	_, _ = c.waitFor(domain.EventUserCount)
}

type countingMetrics struct {
	services.NopMetrics
	notPersisted atomic.Int32
}

func (m *countingMetrics) ChatNotPersisted() { m.notPersisted.Add(1) }

type brokenChatRepo struct {
	ports.ChatRepository
}

func (brokenChatRepo) Save(context.Context, *domain.ChatMessage) error {
	return errors.New("disk full")
}

func TestChat_RelayedWhenStoreFails(t *testing.T) {
	metrics := &countingMetrics{}
	env := newTestEnvWith(t, envConfig{
		chatRepo: brokenChatRepo{memory.NewMemoryChatRepository(10)},
		metrics:  metrics,
	})

	alice := env.dial(t, "10.0.0.1")
	alice.identify("alice", "fp-alice", "")
	alice.waitForUsers(1)
	bob := env.dial(t, "10.0.0.2")
	bob.identify("bob", "fp-bob", "")
	alice.waitForUsers(2)

	alice.send(`{"type":"chat_message","body":"still here"}`)
	ev, _ := bob.waitFor(domain.EventChatMessage)
	assert.Equal(t, "still here", ev.(*domain.ChatMessageEvent).Body)
	assert.Eventually(t, func() bool { return metrics.notPersisted.Load() == 1 },
		time.Second, 10*time.Millisecond)
}
