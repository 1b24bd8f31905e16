package domain

import "errors"

var (
	ErrUnknownConnection     = errors.New("unknown connection")
	ErrRegistryCorrupted     = errors.New("connection registry corrupted")
	ErrNotIdentified         = errors.New("connection is not identified")
	ErrAlreadyIdentified     = errors.New("connection is already identified")
	ErrInvalidIdentity       = errors.New("invalid identity")
	ErrForbidden             = errors.New("insufficient role")
	ErrUnknownEventType      = errors.New("unknown event type")
	ErrMalformedFrame        = errors.New("malformed frame")
	ErrInvalidDuration       = errors.New("invalid moderation duration")
	ErrMissingTarget         = errors.New("fingerprint or ip is required")
	ErrModerationWriteFailed = errors.New("moderation store write failed")
	ErrMessageNotFound       = errors.New("chat message not found")
	ErrDuplicateMessage      = errors.New("chat message already exists")
	ErrInvalidPeriod         = errors.New("period must be 24h, 7days or 30days")
	ErrStreamNotFound        = errors.New("stream not found")
	ErrInvalidStreamKey      = errors.New("invalid stream key")
)
