package signal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"livehub/internal/core/domain"
	"livehub/pkg/tracing"
	"livehub/pkg/utils"
	"livehub/pkg/validation"

	"github.com/google/uuid"
)

// frameError is answered with a private error event. Anything else returned
// by a handler is only logged.
type frameError struct {
	code    string
	message string
}

func (e *frameError) Error() string {
	return e.code + ": " + e.message
}

func badRequest(format string, args ...interface{}) error {
	return &frameError{code: domain.ErrCodeBadRequest, message: fmt.Sprintf(format, args...)}
}

func unauthorized(message string) error {
	return &frameError{code: domain.ErrCodeUnauthorized, message: message}
}

func forbidden(message string) error {
	return &frameError{code: domain.ErrCodeForbidden, message: message}
}

func (s *WebSocketServer) handleFrame(ctx context.Context, sess *session, data []byte) {
	ev, err := domain.DecodeInbound(data)
	if err != nil {
		kind := "malformed"
		if errors.Is(err, domain.ErrUnknownEventType) {
			kind = "unknown_type"
		}
		s.metrics.FrameRejected(kind)
		sess.logger.Debugw("Dropping frame", "kind", kind, "error", err)
		return
	}

	ctx, span := tracing.TraceFrame(ctx, string(ev.EventType()), string(sess.client.ID))
	defer span.End()

	if err := s.dispatch(ctx, sess, ev); err != nil {
		tracing.RecordError(ctx, err)
		var fe *frameError
		if errors.As(err, &fe) {
			s.metrics.FrameRejected(strings.ToLower(fe.code))
			s.hub.Publish(domain.ErrorEvent{Code: fe.code, Message: fe.message}, domain.Single(sess.client.ID))
			return
		}
		sess.logger.Warnw("Frame handling failed", "type", ev.EventType(), "error", err)
	}
}

func (s *WebSocketServer) dispatch(ctx context.Context, sess *session, ev domain.Event) error {
	switch e := ev.(type) {
	case *domain.IdentifyEvent:
		return s.handleIdentify(ctx, sess, e)
	case *domain.HeartbeatEvent:
		sess.client.Touch()
		return nil
	case *domain.RequestSnapshotEvent:
		s.sendSnapshot(ctx, sess.client.ID, true)
		return nil
	case *domain.ChatMessageEvent:
		return s.handleChat(ctx, sess, e)
	case *domain.AdminActionEvent:
		return s.handleAdminAction(ctx, sess, e.Action, e.Data)
	case *domain.RequestAdminDataEvent:
		return s.handleAdminData(ctx, sess)
	case *domain.StreamsUpdateEvent:
		return s.handleStreamsUpdate(ctx, sess, e.Streams)
	default:
		return badRequest("unsupported event %s", ev.EventType())
	}
}

func (s *WebSocketServer) handleIdentify(ctx context.Context, sess *session, ev *domain.IdentifyEvent) error {
	client := sess.client
	if _, ok := client.Identity(); ok {
		return badRequest("connection is already identified")
	}

	username := utils.SanitizeString(ev.Username)
	if err := validation.ValidateDisplayName(username); err != nil {
		return badRequest("%v", err)
	}
	fingerprint := strings.TrimSpace(ev.Fingerprint)
	if err := validation.ValidateFingerprint(fingerprint); err != nil {
		return badRequest("%v", err)
	}

	if d := s.guard.Check(ctx, fingerprint, client.IP); !d.Allowed {
		sess.logger.Infow("Banned client rejected",
			"username", username,
			"fingerprint", fingerprint,
			"ip", client.IP,
		)
		notice := domain.BannedEvent{Message: "You are banned", Reason: d.Reason()}
		if d.Ban != nil {
			notice.ExpiresAt = d.Ban.ExpiresAt
		}
		if s.disconnect(client, notice, "banned") {
			s.presence.Broadcast(ctx)
		}
		return nil
	}

	identity := domain.Identity{
		Username:    username,
		Role:        s.resolveRole(sess, ev.Token),
		Fingerprint: fingerprint,
	}
	if ev.Page != "" {
		client.SetPage(utils.TruncateString(utils.SanitizeString(ev.Page), 100))
	}
	if err := s.registry.SetIdentity(client.ID, identity); err != nil {
		if errors.Is(err, domain.ErrAlreadyIdentified) {
			return badRequest("connection is already identified")
		}
		return err
	}

	sess.logger = sess.logger.With("username", identity.Username)
	sess.logger.Infow("Client identified", "role", identity.Role, "fingerprint", fingerprint)
	s.presence.Broadcast(ctx)
	return nil
}

// resolveRole grants the token's role, or viewer without a valid token.
func (s *WebSocketServer) resolveRole(sess *session, token string) domain.UserRole {
	if token == "" || s.auth == nil {
		return domain.RoleViewer
	}
	claims, err := s.auth.ValidateToken(token)
	if err != nil {
		sess.logger.Infow("Ignoring identify token", "error", err)
		return domain.RoleViewer
	}
	if !claims.Role.Valid() {
		return domain.RoleViewer
	}
	return claims.Role
}

func (s *WebSocketServer) handleChat(ctx context.Context, sess *session, ev *domain.ChatMessageEvent) error {
	client := sess.client
	identity, ok := client.Identity()
	if !ok {
		return unauthorized("identify before sending chat messages")
	}
	if !sess.limiter.Allow() {
		s.metrics.ChatDenied("rate_limited")
		return &frameError{code: domain.ErrCodeRateLimited, message: "you are sending messages too fast"}
	}

	body := utils.SanitizeString(ev.Body)
	if err := validation.ValidateChatBody(body, s.opts.MaxChatLength); err != nil {
		s.metrics.ChatDenied("invalid")
		return badRequest("%v", err)
	}

	if d := s.guard.CanSpeak(ctx, identity.Fingerprint, client.IP); !d.Allowed {
		denied := domain.ChatDeniedEvent{Reason: d.Reason()}
		label := "banned"
		if d.Mute != nil {
			end := d.Mute.ExpiresAt
			denied.MuteEndTime = &end
			label = "muted"
		}
		s.metrics.ChatDenied(label)
		s.hub.Publish(denied, domain.Single(client.ID))
		return nil
	}

	msg := &domain.ChatMessage{
		ID:          uuid.NewString(),
		ClientID:    clientMessageID(ev),
		Username:    identity.Username,
		Role:        identity.Role,
		Fingerprint: identity.Fingerprint,
		IP:          client.IP,
		Body:        body,
		Timestamp:   time.Now(),
		StreamKey:   ev.StreamKey,
	}
	// Persistence failures never block relay.
	if err := s.chat.Record(ctx, msg); err != nil {
		s.metrics.ChatNotPersisted()
		tracing.RecordError(ctx, err)
	}

	s.hub.Publish(domain.NewChatMessageEvent(msg), domain.AllExcept(client.ID))
	s.metrics.ChatAccepted()
	return nil
}

// clientMessageID returns the sender's local id when it is well formed. It
// is relayed for the sender's own bookkeeping and never used as a key.
func clientMessageID(ev *domain.ChatMessageEvent) string {
	id := ev.ClientID
	if id == "" {
		id = ev.ID
	}
	if id == "" || validation.ValidateMessageID(id) != nil {
		return ""
	}
	return id
}
