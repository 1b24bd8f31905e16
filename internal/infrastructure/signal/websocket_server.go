package signal

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"livehub/internal/core/domain"
	"livehub/internal/core/services"
	rlog "livehub/pkg/logger"
	"livehub/pkg/utils"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Options tunes the per-connection transport.
type Options struct {
	PingInterval   time.Duration
	IdleTimeout    time.Duration
	WriteTimeout   time.Duration
	SendBuffer     int
	MaxMessageSize int64
	MaxChatLength  int
	AllowedOrigins []string

	ChatRate  rate.Limit
	ChatBurst int
}

func DefaultOptions() Options {
	return Options{
		PingInterval:   30 * time.Second,
		IdleTimeout:    75 * time.Second,
		WriteTimeout:   10 * time.Second,
		SendBuffer:     256,
		MaxMessageSize: 16 << 10,
		MaxChatLength:  500,
		ChatRate:       2,
		ChatBurst:      5,
	}
}

// Dependencies are the hub services a session drives.
type Dependencies struct {
	Registry *services.ConnectionRegistry
	Hub      *services.BroadcastHub
	Guard    *services.ModerationGuard
	Presence *services.PresenceService
	Bridge   *services.StreamBridge
	Chat     *services.ChatService
	Admin    *services.AdminService
	Auth     services.AuthService
	Metrics  services.Metrics
}

// WebSocketServer is the session coordinator. It owns every socket, runs one
// reader and one writer goroutine per connection and implements
// ports.Disconnector for the moderation guard.
type WebSocketServer struct {
	registry *services.ConnectionRegistry
	hub      *services.BroadcastHub
	guard    *services.ModerationGuard
	presence *services.PresenceService
	bridge   *services.StreamBridge
	chat     *services.ChatService
	admin    *services.AdminService
	auth     services.AuthService
	metrics  services.Metrics

	opts     Options
	upgrader websocket.Upgrader
	logger   *zap.SugaredLogger
}

// session is the reader-side state of one connection.
type session struct {
	client  *services.Client
	limiter *rate.Limiter
	logger  *zap.SugaredLogger
}

func NewWebSocketServer(deps Dependencies, opts Options, logger *zap.SugaredLogger) *WebSocketServer {
	metrics := deps.Metrics
	if metrics == nil {
		metrics = services.NopMetrics{}
	}
	s := &WebSocketServer{
		registry: deps.Registry,
		hub:      deps.Hub,
		guard:    deps.Guard,
		presence: deps.Presence,
		bridge:   deps.Bridge,
		chat:     deps.Chat,
		admin:    deps.Admin,
		auth:     deps.Auth,
		metrics:  metrics,
		opts:     opts,
		logger:   logger,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}

	s.guard.SetDisconnector(s)
	s.hub.OnOverflow(func(c *services.Client) {
		if s.disconnect(c, nil, "overflow") {
			s.presence.Broadcast(context.Background())
		}
	})
	return s
}

func (s *WebSocketServer) checkOrigin(r *http.Request) bool {
	if len(s.opts.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.opts.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// HandleWebSocket upgrades the request and serves the connection until it
// closes.
func (s *WebSocketServer) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnw("WebSocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}
	conn.SetReadLimit(s.opts.MaxMessageSize)

	client := services.NewClient(utils.ClientIP(r), r.URL.Query().Get("page"), s.opts.SendBuffer, conn.Close)
	id := s.registry.Register(client)
	s.metrics.ConnectionOpened()

	ctx := rlog.WithValue(context.Background(), rlog.ConnectionIDKey, string(id))
	sess := &session{
		client:  client,
		limiter: rate.NewLimiter(s.opts.ChatRate, s.opts.ChatBurst),
		logger:  s.logger.With("connection_id", id),
	}
	sess.logger.Infow("Client connected", "ip", client.IP, "connections", s.registry.Count())

	client.WriterStarted()
	go s.writePump(conn, client)

	s.presence.Broadcast(ctx)
	s.sendSnapshot(ctx, id, false)

	reason := s.readPump(ctx, conn, sess)

	if s.disconnect(client, nil, reason) {
		s.presence.Broadcast(ctx)
	}
	sess.logger.Infow("Client disconnected", "reason", reason)
}

// readPump handles frames until the connection fails or is closed by the
// hub, and returns the close reason.
func (s *WebSocketServer) readPump(ctx context.Context, conn *websocket.Conn, sess *session) string {
	client := sess.client
	extend := func() error {
		return conn.SetReadDeadline(time.Now().Add(s.opts.IdleTimeout))
	}
	_ = extend()
	conn.SetPongHandler(func(string) error {
		client.Touch()
		return extend()
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return closeReason(client, err)
		}
		_ = extend()
		client.Touch()

		if msgType != websocket.TextMessage {
			s.metrics.FrameRejected("binary")
			continue
		}
		s.handleFrame(ctx, sess, data)

		if client.Closed() {
			return "forced"
		}
	}
}

// writePump is the only goroutine that writes to conn.
func (s *WebSocketServer) writePump(conn *websocket.Conn, c *services.Client) {
	ticker := time.NewTicker(s.opts.PingInterval)
	defer func() {
		ticker.Stop()
		c.WriterExited()
	}()

	for {
		select {
		case data := <-c.Send():
			if err := s.write(conn, websocket.TextMessage, data); err != nil {
				s.logger.Debugw("Write failed", "connection_id", c.ID, "error", err)
				_ = conn.Close()
				return
			}

		case <-ticker.C:
			if err := s.write(conn, websocket.PingMessage, nil); err != nil {
				s.logger.Debugw("Ping failed", "connection_id", c.ID, "error", err)
				_ = conn.Close()
				return
			}

		case <-c.Done():
			if final := c.Final(); final != nil {
				_ = s.write(conn, websocket.TextMessage, final)
			}
			_ = s.write(conn, websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (s *WebSocketServer) write(conn *websocket.Conn, messageType int, data []byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout)); err != nil {
		return err
	}
	return conn.WriteMessage(messageType, data)
}

// disconnect unregisters c and closes it after flushing notice. It reports
// whether this call removed the connection, so presence is rebroadcast and
// the close counted exactly once.
func (s *WebSocketServer) disconnect(c *services.Client, notice domain.Event, reason string) bool {
	var data []byte
	if notice != nil {
		encoded, err := domain.Encode(notice)
		if err != nil {
			s.logger.Errorw("Failed to encode close notice", "type", notice.EventType(), "error", err)
		} else {
			data = encoded
		}
	}

	_, removed := s.registry.Unregister(c.ID)
	if removed {
		s.metrics.ConnectionClosed(reason)
	}
	c.Close(data, s.opts.WriteTimeout)
	return removed
}

// DisconnectMatching implements ports.Disconnector.
func (s *WebSocketServer) DisconnectMatching(fingerprint, ip string, notice domain.Event) int {
	closed := 0
	for _, c := range s.registry.Matching(fingerprint, ip) {
		if s.disconnect(c, notice, "banned") {
			closed++
		}
	}
	if closed > 0 {
		s.presence.Broadcast(context.Background())
	}
	return closed
}

// NotifyMatching implements ports.Disconnector.
func (s *WebSocketServer) NotifyMatching(fingerprint, ip string, notice domain.Event) int {
	sent := 0
	for _, c := range s.registry.Matching(fingerprint, ip) {
		sent += s.hub.Publish(notice, domain.Single(c.ID))
	}
	return sent
}

// CloseAll disconnects every client, used on shutdown.
func (s *WebSocketServer) CloseAll() int {
	closed := 0
	s.registry.ForEachExcept("", func(c *services.Client) {
		if s.disconnect(c, nil, "shutdown") {
			closed++
		}
	})
	return closed
}

// sendSnapshot resynchronizes one connection. Presence is only sent when
// asked for; on connect it already went out in the broadcast.
func (s *WebSocketServer) sendSnapshot(ctx context.Context, id domain.ConnectionID, withPresence bool) {
	if withPresence {
		s.presence.SendTo(ctx, id)
	}
	s.bridge.SendStatus(id)
	s.admin.SendPlaylist(id)
}

func closeReason(c *services.Client, err error) string {
	if c.Closed() {
		return "forced"
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return "client"
	}
	if errors.Is(err, websocket.ErrReadLimit) {
		return "too_large"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "idle_timeout"
	}
	return "network"
}
