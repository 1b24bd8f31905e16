package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

type envelope struct {
	Type EventType `json:"type"`
}

// inbound lists the frames a client may send. Hub-only types are rejected
// as unknown so a client cannot impersonate hub events.
var inbound = map[EventType]func() Event{
	EventIdentify:         func() Event { return &IdentifyEvent{} },
	EventHeartbeat:        func() Event { return &HeartbeatEvent{} },
	EventRequestSnapshot:  func() Event { return &RequestSnapshotEvent{} },
	EventChatMessage:      func() Event { return &ChatMessageEvent{} },
	EventAdminAction:      func() Event { return &AdminActionEvent{} },
	EventRequestAdminData: func() Event { return &RequestAdminDataEvent{} },
	EventStreamsUpdate:    func() Event { return &StreamsUpdateEvent{} },
}

// outbound is used by clients and tests to read hub frames.
var outbound = map[EventType]func() Event{
	EventChatMessage:     func() Event { return &ChatMessageEvent{} },
	EventStreamsUpdate:   func() Event { return &StreamsUpdateEvent{} },
	EventUserCount:       func() Event { return &UserCountEvent{} },
	EventUserList:        func() Event { return &UserListEvent{} },
	EventStreamStatus:    func() Event { return &StreamStatusEvent{} },
	EventMessageDeleted:  func() Event { return &MessageDeletedEvent{} },
	EventAdminDataUpdate: func() Event { return &AdminDataUpdateEvent{} },
	EventBanned:          func() Event { return &BannedEvent{} },
	EventMuted:           func() Event { return &MutedEvent{} },
	EventChatDenied:      func() Event { return &ChatDeniedEvent{} },
	EventError:           func() Event { return &ErrorEvent{} },
}

// DecodeInbound parses a client frame. The returned Event is a pointer to
// the concrete type, e.g. *IdentifyEvent.
func DecodeInbound(data []byte) (Event, error) {
	return decode(data, inbound)
}

// DecodeOutbound parses a hub frame.
func DecodeOutbound(data []byte) (Event, error) {
	return decode(data, outbound)
}

func decode(data []byte, table map[EventType]func() Event) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformedFrame)
	}
	factory, ok := table[env.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEventType, env.Type)
	}
	ev := factory()
	if err := json.Unmarshal(data, ev); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedFrame, env.Type, err)
	}
	return ev, nil
}

// Encode renders ev as a JSON object whose first member is the type tag.
func Encode(ev Event) ([]byte, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", ev.EventType(), err)
	}
	body = bytes.TrimSpace(body)
	if len(body) < 2 || body[0] != '{' {
		return nil, fmt.Errorf("event %s did not encode to an object", ev.EventType())
	}

	var buf bytes.Buffer
	buf.Grow(len(body) + 32)
	buf.WriteString(`{"type":`)
	tag, _ := json.Marshal(ev.EventType())
	buf.Write(tag)
	if rest := body[1:]; len(rest) > 1 {
		buf.WriteByte(',')
		buf.Write(rest)
	} else {
		buf.WriteByte('}')
	}
	return buf.Bytes(), nil
}
