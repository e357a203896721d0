package domain

import "time"

// EventType is the kind of webhook event delivered by LINE.
type EventType string

const (
	EventMessage  EventType = "message"
	EventFollow   EventType = "follow"
	EventUnfollow EventType = "unfollow"
	EventJoin     EventType = "join"
	EventLeave    EventType = "leave"
)

// SourceKind identifies where an event originated.
type SourceKind string

const (
	SourceUser  SourceKind = "user"
	SourceGroup SourceKind = "group"
	SourceRoom  SourceKind = "room"
)

// Source is the conversation an event belongs to.
type Source struct {
	Kind   SourceKind
	ID     string // group or room ID; equals UserID for 1:1 chats
	UserID string // may be empty when the user has not consented to share it
}

// GroupOrRoomID returns the group/room ID for multi-person chats and "" otherwise.
func (s Source) GroupOrRoomID() string {
	if s.Kind == SourceGroup || s.Kind == SourceRoom {
		return s.ID
	}
	return ""
}

// InboundEvent is a single item of a webhook delivery batch.
type InboundEvent struct {
	Type            EventType
	Source          Source
	SenderID        string
	TimestampMillis int64
	WebhookEventID  string
	Message         MessagePayload // nil unless Type == EventMessage
}

// Time returns the event timestamp, or the zero time when LINE did not send one.
func (e InboundEvent) Time() time.Time {
	if e.TimestampMillis <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(e.TimestampMillis)
}
