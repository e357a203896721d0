package line

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	"line2discord/internal/domain"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Batch is a parsed webhook delivery.
type Batch struct {
	Destination string
	Events      []domain.InboundEvent
	// Skipped holds one error per event that failed validation. Valid events
	// in the same delivery are still returned.
	Skipped []error
}

// ParseWebhook decodes a webhook request body. An error is returned only
// when the body as a whole is not a webhook document.
func ParseWebhook(body []byte) (*Batch, error) {
	var req webhookRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("decode webhook body: %w: %w", domain.ErrMalformedEvent, err)
	}

	batch := &Batch{Destination: req.Destination}
	for i, we := range req.Events {
		if err := validate.Struct(we); err != nil {
			batch.Skipped = append(batch.Skipped, fmt.Errorf("event %d (%s): %w: %w", i, we.Type, domain.ErrMalformedEvent, err))
			continue
		}
		batch.Events = append(batch.Events, we.toDomain())
	}
	return batch, nil
}

type webhookRequest struct {
	Destination string      `json:"destination"`
	Events      []wireEvent `json:"events"`
}

type wireEvent struct {
	Type           string       `json:"type" validate:"required"`
	Timestamp      int64        `json:"timestamp" validate:"gte=0"`
	WebhookEventID string       `json:"webhookEventId"`
	Source         wireSource   `json:"source"`
	Message        *wireMessage `json:"message" validate:"required_if=Type message"`
}

type wireSource struct {
	Type    string `json:"type" validate:"required,oneof=user group room"`
	UserID  string `json:"userId"`
	GroupID string `json:"groupId" validate:"required_if=Type group"`
	RoomID  string `json:"roomId" validate:"required_if=Type room"`
}

type wireMessage struct {
	ID          string      `json:"id" validate:"required"`
	Type        string      `json:"type" validate:"required"`
	Text        string      `json:"text"`
	Emojis      []wireEmoji `json:"emojis" validate:"dive"`
	FileName    string      `json:"fileName"`
	FileSize    int64       `json:"fileSize" validate:"gte=0"`
	PackageID   string      `json:"packageId"`
	StickerID   string      `json:"stickerId"`
	Title       string      `json:"title"`
	Address     string      `json:"address"`
	Latitude    float64     `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude   float64     `json:"longitude" validate:"gte=-180,lte=180"`
	DisplayName string      `json:"displayName"`
}

type wireEmoji struct {
	Index     int    `json:"index" validate:"gte=0"`
	Length    int    `json:"length" validate:"gte=0"`
	ProductID string `json:"productId"`
	EmojiID   string `json:"emojiId"`
}

func (we wireEvent) toDomain() domain.InboundEvent {
	ev := domain.InboundEvent{
		Type:            domain.EventType(we.Type),
		SenderID:        we.Source.UserID,
		TimestampMillis: we.Timestamp,
		WebhookEventID:  we.WebhookEventID,
		Source: domain.Source{
			Kind:   domain.SourceKind(we.Source.Type),
			UserID: we.Source.UserID,
		},
	}
	switch ev.Source.Kind {
	case domain.SourceGroup:
		ev.Source.ID = we.Source.GroupID
	case domain.SourceRoom:
		ev.Source.ID = we.Source.RoomID
	default:
		ev.Source.ID = we.Source.UserID
	}
	if we.Message != nil && ev.Type == domain.EventMessage {
		ev.Message = we.Message.toDomain()
	}
	return ev
}

func (m *wireMessage) toDomain() domain.MessagePayload {
	switch domain.MessageKind(m.Type) {
	case domain.KindText:
		emojis := make([]domain.LineEmoji, 0, len(m.Emojis))
		for _, e := range m.Emojis {
			emojis = append(emojis, domain.LineEmoji{Index: e.Index, Length: e.Length, ProductID: e.ProductID, EmojiID: e.EmojiID})
		}
		return domain.TextMessage{ID: m.ID, Text: m.Text, Emojis: emojis}
	case domain.KindImage:
		return domain.ImageMessage{ID: m.ID}
	case domain.KindVideo:
		return domain.VideoMessage{ID: m.ID}
	case domain.KindAudio:
		return domain.AudioMessage{ID: m.ID}
	case domain.KindFile:
		return domain.FileMessage{ID: m.ID, FileName: m.FileName, FileSize: m.FileSize}
	case domain.KindSticker:
		return domain.StickerMessage{ID: m.ID, PackageID: m.PackageID, StickerID: m.StickerID}
	case domain.KindLocation:
		return domain.LocationMessage{ID: m.ID, Title: m.Title, Address: m.Address, Latitude: m.Latitude, Longitude: m.Longitude}
	case domain.KindContact:
		return domain.ContactMessage{ID: m.ID, DisplayName: m.DisplayName}
	default:
		return domain.UnknownMessage{ID: m.ID, Type: m.Type}
	}
}
