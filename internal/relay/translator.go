// Package relay turns LINE webhook events into Discord webhook payloads and
// delivers them one event at a time.
package relay

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"line2discord/internal/domain"
	"line2discord/internal/line"
	"line2discord/internal/metrics"
)

const (
	NoticeUsername = "LINE notice"

	colorLocation = 0x3498db
	colorContact  = 0x00b900

	stickerURLFormat = "https://stickershop.line-scdn.net/stickershop/v1/sticker/%s/android/sticker.png"
	mapsSearchURL    = "https://www.google.com/maps/search/?api=1&query="
	mapsIconURL      = "https://maps.gstatic.com/mapfiles/api-3/images/spotlight-poi2.png"
)

// ContentFetcher downloads message content. *line.Client satisfies it.
type ContentFetcher interface {
	FetchContent(ctx context.Context, messageID string) ([]byte, string, error)
}

// URLResolver builds public URLs for media served by the relay.
type URLResolver interface {
	Resolve(relativePath, requestHost string) string
}

type TranslatorConfig struct {
	Fetcher ContentFetcher
	Store   domain.MediaStore
	URLs    URLResolver
	Emoji   EmojiTable // nil disables emoji substitution
	Logger  *slog.Logger
}

// Translator converts one inbound event into an outbound payload. Media
// messages are downloaded and stored as a side effect.
type Translator struct {
	fetcher ContentFetcher
	store   domain.MediaStore
	urls    URLResolver
	emoji   EmojiTable
	logger  *slog.Logger
}

func NewTranslator(cfg TranslatorConfig) *Translator {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Translator{
		fetcher: cfg.Fetcher,
		store:   cfg.Store,
		urls:    cfg.URLs,
		emoji:   cfg.Emoji,
		logger:  cfg.Logger,
	}
}

// Translate returns the payload for ev and true, or false when the event
// type is not forwarded (unfollow, leave and anything unrecognized).
func (t *Translator) Translate(ctx context.Context, ev domain.InboundEvent, sender domain.SenderIdentity, requestHost string) (domain.OutboundPayload, bool) {
	switch ev.Type {
	case domain.EventMessage:
		return finalize(t.message(ctx, ev, sender, requestHost)), true
	case domain.EventFollow:
		return finalize(domain.OutboundPayload{
			Username:  NoticeUsername,
			AvatarURL: sender.AvatarURL,
			Content:   sender.DisplayName + " added the LINE bot as a friend!",
		}), true
	case domain.EventJoin:
		return finalize(domain.OutboundPayload{
			Username:  NoticeUsername,
			AvatarURL: line.DefaultAvatarURL,
			Content:   "The LINE bot joined a group. Messages from this group will now be forwarded to Discord.",
		}), true
	default:
		return domain.OutboundPayload{}, false
	}
}

func (t *Translator) message(ctx context.Context, ev domain.InboundEvent, sender domain.SenderIdentity, host string) domain.OutboundPayload {
	p := domain.OutboundPayload{Username: sender.DisplayName, AvatarURL: sender.AvatarURL}
	name := sender.DisplayName

	switch m := ev.Message.(type) {
	case domain.TextMessage:
		p.Content = t.text(m.Text)

	case domain.ImageMessage, domain.VideoMessage, domain.AudioMessage, domain.FileMessage:
		return t.media(ctx, ev, m.(domain.MediaMessage), sender, host)

	case domain.StickerMessage:
		p.Content = name + " sent a sticker:"
		p.Embeds = []domain.Embed{{ImageURL: fmt.Sprintf(stickerURLFormat, url.PathEscape(m.StickerID))}}

	case domain.LocationMessage:
		lat := strconv.FormatFloat(m.Latitude, 'f', -1, 64)
		lng := strconv.FormatFloat(m.Longitude, 'f', -1, 64)
		title := m.Title
		if title == "" {
			title = "Location"
		}
		address := m.Address
		if address == "" {
			address = "No address"
		}
		p.Content = name + " shared a location:"
		p.Embeds = []domain.Embed{{
			Title:       title,
			Description: address,
			URL:         mapsSearchURL + url.QueryEscape(lat+","+lng),
			Color:       colorLocation,
			Fields: []domain.EmbedField{
				{Name: "Latitude", Value: lat, Inline: true},
				{Name: "Longitude", Value: lng, Inline: true},
			},
			FooterText: "Open in Google Maps",
			FooterIcon: mapsIconURL,
		}}

	case domain.ContactMessage:
		details := "A contact was shared on LINE. Check LINE for details."
		if m.DisplayName != "" {
			details = "Name: " + m.DisplayName
		}
		p.Content = name + " shared a contact"
		p.Embeds = []domain.Embed{{
			Title:        "Contact",
			Description:  details,
			Color:        colorContact,
			ThumbnailURL: line.DefaultAvatarURL,
		}}

	case domain.UnknownMessage:
		p.Content = fmt.Sprintf("%s sent a %q message, which cannot be shown here. Check LINE directly.", name, m.Type)

	default:
		p.Content = name + " sent a message that cannot be shown here. Check LINE directly."
	}
	return p
}

func (t *Translator) text(body string) string {
	if t.emoji == nil {
		return body
	}
	out, matches, count := t.emoji.Substitute(body)
	return out + emojiListing(matches, count)
}

func (t *Translator) media(ctx context.Context, ev domain.InboundEvent, m domain.MediaMessage, sender domain.SenderIdentity, host string) domain.OutboundPayload {
	p := domain.OutboundPayload{Username: sender.DisplayName, AvatarURL: sender.AvatarURL}
	kind := m.Kind()
	noun := mediaNoun(kind)

	fail := func(stage string, err error) domain.OutboundPayload {
		metrics.MediaFailures.WithLabelValues(string(kind), stage).Inc()
		t.logger.Warn("media could not be forwarded",
			"kind", kind, "message_id", m.MessageID(), "stage", stage, "err", err)
		p.Content = fmt.Sprintf("%s sent %s, but it could not be forwarded. Check LINE directly.\nError: %v", sender.DisplayName, noun, err)
		return p
	}

	if t.fetcher == nil || t.store == nil {
		return fail("fetch", fmt.Errorf("media relay is not configured"))
	}

	data, contentType, err := t.fetcher.FetchContent(ctx, m.MessageID())
	if err != nil {
		return fail("fetch", err)
	}
	stored, err := t.store.Save(ctx, kind, m.OriginalFileName(), contentType, data)
	if err != nil {
		return fail("store", err)
	}
	metrics.MediaStored.WithLabelValues(string(kind)).Inc()
	metrics.MediaBytes.Add(float64(stored.Size))

	link := t.publicURL(stored, host)
	if kind == domain.KindImage {
		p.Content = sender.DisplayName + " sent an image:"
		p.Embeds = []domain.Embed{{ImageURL: link, Timestamp: ev.Time()}}
		return p
	}
	p.Content = fmt.Sprintf("%s sent %s:\n%s", sender.DisplayName, noun, link)
	return p
}

func (t *Translator) publicURL(m *domain.StoredMedia, host string) string {
	if base := t.store.PublicBase(); base != "" {
		return base + m.RelativePath
	}
	if t.urls == nil {
		return "http://" + host + m.RelativePath
	}
	return t.urls.Resolve(m.RelativePath, host)
}

func mediaNoun(kind domain.MessageKind) string {
	switch kind {
	case domain.KindImage:
		return "an image"
	case domain.KindVideo:
		return "a video"
	case domain.KindAudio:
		return "a voice message"
	default:
		return "a file"
	}
}

// fallbackPayload is sent when translating an event failed unexpectedly.
func fallbackPayload(sender domain.SenderIdentity) domain.OutboundPayload {
	return finalize(domain.OutboundPayload{
		Username:  sender.DisplayName,
		AvatarURL: sender.AvatarURL,
		Content:   sender.DisplayName + " sent a message, but it could not be forwarded. Check LINE directly.",
	})
}

// finalize enforces a non-empty username and an absolute avatar URL.
func finalize(p domain.OutboundPayload) domain.OutboundPayload {
	if p.Username == "" {
		p.Username = line.FallbackIdentity("").DisplayName
	}
	p.AvatarURL = line.NormalizeAvatarURL(p.AvatarURL)
	return p
}
