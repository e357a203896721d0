package domain

import (
	"context"
	"time"
)

// StoredMedia describes a media file written by the relay and served from a
// public location.
type StoredMedia struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	Kind         MessageKind `json:"kind"`
	Size         int64       `json:"size"`
	ContentType  string      `json:"content_type,omitempty"`
	RelativePath string      `json:"relative_path"` // starts with "/"
	Backend      string      `json:"backend"`
	CreatedAt    time.Time   `json:"created_at"`
}

// MediaStore persists downloaded media so it can be linked from Discord.
type MediaStore interface {
	Save(ctx context.Context, kind MessageKind, originalName, contentType string, data []byte) (*StoredMedia, error)
	Delete(ctx context.Context, m StoredMedia) error
	// PublicBase returns a fixed public base URL for stored objects, or "" when
	// URLs must be resolved against the relay's own address.
	PublicBase() string
}

// EventPublisher mirrors relay outcomes to an external subscriber.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}
