package signal

import (
	"context"
	"encoding/json"
	"fmt"

	"livehub/internal/core/domain"
	"livehub/internal/core/services"
)

const (
	actionBan           = "ban"
	actionUnban         = "unban"
	actionMute          = "mute"
	actionUnmute        = "unmute"
	actionDeleteMessage = "delete_message"
	actionClearExpired  = "clear_expired"
	actionStreamsUpdate = "streams_update"
	actionAdminData     = "request_admin_data"
)

// requiredRoles lists the minimum role per admin operation.
var requiredRoles = map[string]domain.UserRole{
	actionBan:           domain.RoleAdmin,
	actionUnban:         domain.RoleAdmin,
	actionClearExpired:  domain.RoleAdmin,
	actionStreamsUpdate: domain.RoleAdmin,
	actionMute:          domain.RoleModerator,
	actionUnmute:        domain.RoleModerator,
	actionDeleteMessage: domain.RoleModerator,
	actionAdminData:     domain.RoleModerator,
}

type targetPayload struct {
	Fingerprint string `json:"fingerprint"`
	IP          string `json:"ip"`
}

type deletePayload struct {
	MessageID string `json:"messageId"`
}

type streamsPayload struct {
	Streams []domain.PlaylistStream `json:"streams"`
}

// authorize checks the caller's role. Denials are answered privately and
// kept in the moderation log.
func (s *WebSocketServer) authorize(ctx context.Context, sess *session, action string) (domain.Identity, error) {
	identity, ok := sess.client.Identity()
	if !ok {
		return domain.Identity{}, unauthorized("identify before using admin actions")
	}
	required, known := requiredRoles[action]
	if !known {
		return domain.Identity{}, badRequest("unknown admin action %q", action)
	}
	if identity.Role.AtLeast(required) {
		return identity, nil
	}

	sess.logger.Warnw("Unauthorized admin attempt", "action", action, "role", identity.Role)
	s.guard.RecordAction(ctx, &domain.ModerationAction{
		Action:            domain.ActionUnauthorized,
		TargetFingerprint: identity.Fingerprint,
		TargetIP:          sess.client.IP,
		TargetUsername:    identity.Username,
		PerformedBy:       identity.Username,
		Detail:            action,
	})
	return domain.Identity{}, forbidden(fmt.Sprintf("%s requires role %s", action, required))
}

func (s *WebSocketServer) handleAdminAction(ctx context.Context, sess *session, action string, data json.RawMessage) error {
	identity, err := s.authorize(ctx, sess, action)
	if err != nil {
		return err
	}
	if action == actionAdminData {
		return s.replyAdminData(ctx, sess, "", nil)
	}

	opErr := s.runAdminAction(ctx, sess, identity, action, data)
	if opErr != nil {
		sess.logger.Warnw("Admin action failed", "action", action, "error", opErr)
	}
	return s.replyAdminData(ctx, sess, action, opErr)
}

func (s *WebSocketServer) runAdminAction(ctx context.Context, sess *session, identity domain.Identity, action string, data json.RawMessage) error {
	decode := func(v interface{}) error {
		if len(data) == 0 {
			return fmt.Errorf("%s: missing data", action)
		}
		if err := json.Unmarshal(data, v); err != nil {
			return fmt.Errorf("%s: invalid data: %w", action, err)
		}
		return nil
	}

	switch action {
	case actionBan:
		var req services.BanRequest
		if err := decode(&req); err != nil {
			return err
		}
		req.IssuedBy = identity.Username
		_, err := s.admin.Ban(ctx, req)
		return err

	case actionUnban:
		var target targetPayload
		if err := decode(&target); err != nil {
			return err
		}
		return s.admin.Unban(ctx, target.Fingerprint, target.IP, identity.Username)

	case actionMute:
		var req services.MuteRequest
		if err := decode(&req); err != nil {
			return err
		}
		req.IssuedBy = identity.Username
		_, err := s.admin.Mute(ctx, req)
		return err

	case actionUnmute:
		var target targetPayload
		if err := decode(&target); err != nil {
			return err
		}
		return s.admin.Unmute(ctx, target.Fingerprint, identity.Username)

	case actionDeleteMessage:
		var target deletePayload
		if err := decode(&target); err != nil {
			return err
		}
		return s.admin.DeleteMessage(ctx, target.MessageID, identity.Username)

	case actionClearExpired:
		_, err := s.admin.ClearExpired(ctx, identity.Username)
		return err

	case actionStreamsUpdate:
		var payload streamsPayload
		if err := decode(&payload); err != nil {
			return err
		}
		_, err := s.admin.UpdatePlaylist(ctx, payload.Streams, identity.Username, sess.client.ID)
		return err
	}
	return badRequest("unknown admin action %q", action)
}

func (s *WebSocketServer) handleAdminData(ctx context.Context, sess *session) error {
	if _, err := s.authorize(ctx, sess, actionAdminData); err != nil {
		return err
	}
	return s.replyAdminData(ctx, sess, "", nil)
}

func (s *WebSocketServer) handleStreamsUpdate(ctx context.Context, sess *session, streams []domain.PlaylistStream) error {
	identity, err := s.authorize(ctx, sess, actionStreamsUpdate)
	if err != nil {
		return err
	}
	_, opErr := s.admin.UpdatePlaylist(ctx, streams, identity.Username, sess.client.ID)
	return s.replyAdminData(ctx, sess, actionStreamsUpdate, opErr)
}

// replyAdminData answers the issuer with the dashboard state. A moderation
// change the store did not confirm is also flagged with an error event.
func (s *WebSocketServer) replyAdminData(ctx context.Context, sess *session, action string, opErr error) error {
	id := sess.client.ID
	if _, ok := s.registry.Get(id); !ok {
		// The issuer banned themselves.
		return nil
	}

	reply := s.admin.AdminData(ctx)
	reply.Action = action
	if opErr != nil {
		reply.Success = false
		reply.Error = opErr.Error()
	}
	s.hub.Publish(reply, domain.Single(id))

	if services.IsWriteFailure(opErr) {
		s.hub.Publish(domain.ErrorEvent{
			Code:    domain.ErrCodeInternalError,
			Message: "moderation change is enforced but not yet persisted",
		}, domain.Single(id))
	}
	return nil
}
