package domain

import "time"

// OutboundPayload is a message for the Discord webhook, independent of the
// wire encoding used by the sender.
type OutboundPayload struct {
	Username  string
	AvatarURL string
	Content   string
	Embeds    []Embed
}

type Embed struct {
	Title        string
	Description  string
	URL          string
	Color        int
	Timestamp    time.Time
	ImageURL     string
	ThumbnailURL string
	AuthorName   string
	AuthorIcon   string
	FooterText   string
	FooterIcon   string
	Fields       []EmbedField
}

type EmbedField struct {
	Name   string
	Value  string
	Inline bool
}

// SenderIdentity is the display identity used for a forwarded message.
type SenderIdentity struct {
	DisplayName string
	AvatarURL   string
}
