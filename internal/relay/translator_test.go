package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"line2discord/internal/domain"
	"line2discord/internal/line"
	"line2discord/internal/media"
	"line2discord/internal/publicurl"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

type fakeFetcher struct {
	data        []byte
	contentType string
	err         error
	calls       []string
}

func (f *fakeFetcher) FetchContent(ctx context.Context, id string) ([]byte, string, error) {
	f.calls = append(f.calls, id)
	return f.data, f.contentType, f.err
}

var alice = domain.SenderIdentity{DisplayName: "Alice", AvatarURL: "https://profile.line-scdn.net/alice"}

func newTestTranslator(t *testing.T, fetcher ContentFetcher) (*Translator, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := media.NewLocalStore(media.LocalConfig{Dir: dir, Logger: testLogger()})
	require.NoError(t, err)
	return NewTranslator(TranslatorConfig{
		Fetcher: fetcher,
		Store:   store,
		URLs:    publicurl.NewResolver("https://relay.example.com"),
		Emoji:   DefaultEmojiTable(),
		Logger:  testLogger(),
	}), dir
}

func messageEvent(msg domain.MessagePayload) domain.InboundEvent {
	return domain.InboundEvent{
		Type:            domain.EventMessage,
		Source:          domain.Source{Kind: domain.SourceUser, ID: "U1", UserID: "U1"},
		SenderID:        "U1",
		TimestampMillis: 1700000000000,
		Message:         msg,
	}
}

func TestTranslate_TextRoundTrip(t *testing.T) {
	tr, _ := newTestTranslator(t, &fakeFetcher{})

	p, ok := tr.Translate(context.Background(), messageEvent(domain.TextMessage{ID: "1", Text: "hello"}), alice, "localhost:3000")
	require.True(t, ok)
	assert.Equal(t, "Alice", p.Username)
	assert.Equal(t, alice.AvatarURL, p.AvatarURL)
	assert.Equal(t, "hello", p.Content)
	assert.Empty(t, p.Embeds)
}

func TestTranslate_TextEmoji(t *testing.T) {
	fetcher := &fakeFetcher{}
	tr := NewTranslator(TranslatorConfig{Fetcher: fetcher, Emoji: EmojiTable{"$happy$": ":grin:"}, Logger: testLogger()})

	p, ok := tr.Translate(context.Background(), messageEvent(domain.TextMessage{ID: "1", Text: "I am $happy$ today"}), alice, "h")
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(p.Content, "I am :grin: today"))
	assert.NotContains(t, strings.SplitN(p.Content, "\n", 2)[0], "$happy$")
	assert.Contains(t, p.Content, "-# emoji (1): $happy$ → :grin:")
}

func TestTranslate_TextEmojiDisabled(t *testing.T) {
	tr := NewTranslator(TranslatorConfig{Logger: testLogger()})
	p, _ := tr.Translate(context.Background(), messageEvent(domain.TextMessage{ID: "1", Text: "I am $happy$"}), alice, "h")
	assert.Equal(t, "I am $happy$", p.Content)
}

func TestTranslate_Image(t *testing.T) {
	fetcher := &fakeFetcher{data: []byte("jpeg"), contentType: "image/jpeg"}
	tr, dir := newTestTranslator(t, fetcher)

	p, ok := tr.Translate(context.Background(), messageEvent(domain.ImageMessage{ID: "m1"}), alice, "localhost:3000")
	require.True(t, ok)
	assert.Equal(t, []string{"m1"}, fetcher.calls)
	assert.Equal(t, "Alice sent an image:", p.Content)
	require.Len(t, p.Embeds, 1)

	img := p.Embeds[0].ImageURL
	assert.True(t, strings.HasPrefix(img, "https://relay.example.com/images/img_"), img)
	assert.Equal(t, time.UnixMilli(1700000000000), p.Embeds[0].Timestamp)

	name := img[strings.LastIndex(img, "/")+1:]
	assert.FileExists(t, dir+"/images/"+name)
}

func TestTranslate_FileLink(t *testing.T) {
	fetcher := &fakeFetcher{data: []byte("%PDF"), contentType: "application/pdf"}
	tr, _ := newTestTranslator(t, fetcher)

	p, _ := tr.Translate(context.Background(), messageEvent(domain.FileMessage{ID: "f1", FileName: "report.pdf"}), alice, "h")
	assert.True(t, strings.HasPrefix(p.Content, "Alice sent a file:\nhttps://relay.example.com/files/file_"), p.Content)
	assert.True(t, strings.HasSuffix(p.Content, ".pdf"))
	assert.Empty(t, p.Embeds)
}

func TestTranslate_AudioAndVideoLinks(t *testing.T) {
	fetcher := &fakeFetcher{data: []byte("x")}
	tr, _ := newTestTranslator(t, fetcher)

	p, _ := tr.Translate(context.Background(), messageEvent(domain.AudioMessage{ID: "a1"}), alice, "h")
	assert.Contains(t, p.Content, "Alice sent a voice message:\nhttps://relay.example.com/files/audio_")
	assert.True(t, strings.HasSuffix(p.Content, ".m4a"))

	p, _ = tr.Translate(context.Background(), messageEvent(domain.VideoMessage{ID: "v1"}), alice, "h")
	assert.Contains(t, p.Content, "Alice sent a video:\nhttps://relay.example.com/files/video_")
	assert.True(t, strings.HasSuffix(p.Content, ".mp4"))
}

func TestTranslate_FileTransportFailure(t *testing.T) {
	fetcher := &fakeFetcher{err: &line.FetchError{Kind: line.Transport, Op: "fetch content", Err: errors.New("dial tcp: connection refused")}}
	tr, _ := newTestTranslator(t, fetcher)

	p, ok := tr.Translate(context.Background(), messageEvent(domain.FileMessage{ID: "f1", FileName: "a.pdf"}), alice, "h")
	require.True(t, ok)
	assert.Empty(t, p.Embeds)
	assert.Contains(t, p.Content, "Alice sent a file, but it could not be forwarded. Check LINE directly.")
	assert.Contains(t, p.Content, "Error: fetch content: dial tcp: connection refused")
}

type failingStore struct{ domain.MediaStore }

func (failingStore) Save(ctx context.Context, kind domain.MessageKind, name, ct string, data []byte) (*domain.StoredMedia, error) {
	return nil, fmt.Errorf("%w: disk full", domain.ErrStorage)
}

func TestTranslate_StorageFailure(t *testing.T) {
	tr := NewTranslator(TranslatorConfig{Fetcher: &fakeFetcher{data: []byte("x")}, Store: failingStore{}, Logger: testLogger()})

	p, _ := tr.Translate(context.Background(), messageEvent(domain.ImageMessage{ID: "m1"}), alice, "h")
	assert.Contains(t, p.Content, "Alice sent an image, but it could not be forwarded.")
	assert.Contains(t, p.Content, "disk full")
	assert.Empty(t, p.Embeds)
}

func TestTranslate_StorePublicBaseWins(t *testing.T) {
	local, err := media.NewLocalStore(media.LocalConfig{Dir: t.TempDir(), Logger: testLogger()})
	require.NoError(t, err)
	store := &publicBaseStore{LocalStore: local, base: "https://cdn.example.com"}
	tr := NewTranslator(TranslatorConfig{
		Fetcher: &fakeFetcher{data: []byte("x")},
		Store:   store,
		URLs:    publicurl.NewResolver("https://relay.example.com"),
		Logger:  testLogger(),
	})

	p, _ := tr.Translate(context.Background(), messageEvent(domain.ImageMessage{ID: "m1"}), alice, "h")
	require.Len(t, p.Embeds, 1)
	assert.True(t, strings.HasPrefix(p.Embeds[0].ImageURL, "https://cdn.example.com/images/"))
}

type publicBaseStore struct {
	*media.LocalStore
	base string
}

func (s *publicBaseStore) PublicBase() string { return s.base }

func TestTranslate_Sticker(t *testing.T) {
	fetcher := &fakeFetcher{}
	tr, _ := newTestTranslator(t, fetcher)

	p, _ := tr.Translate(context.Background(), messageEvent(domain.StickerMessage{ID: "s", PackageID: "11537", StickerID: "52002734"}), alice, "h")
	assert.Equal(t, "Alice sent a sticker:", p.Content)
	require.Len(t, p.Embeds, 1)
	assert.Equal(t, "https://stickershop.line-scdn.net/stickershop/v1/sticker/52002734/android/sticker.png", p.Embeds[0].ImageURL)
	assert.Empty(t, fetcher.calls, "stickers are not downloaded")
}

func TestTranslate_Location(t *testing.T) {
	tr, _ := newTestTranslator(t, &fakeFetcher{})

	p, _ := tr.Translate(context.Background(), messageEvent(domain.LocationMessage{ID: "l", Title: "Tokyo Tower", Address: "Minato", Latitude: 35.6586, Longitude: 139.7454}), alice, "h")
	require.Len(t, p.Embeds, 1)
	e := p.Embeds[0]
	assert.Equal(t, "Tokyo Tower", e.Title)
	assert.Equal(t, "Minato", e.Description)
	assert.Equal(t, "https://www.google.com/maps/search/?api=1&query=35.6586%2C139.7454", e.URL)
	assert.Equal(t, 0x3498db, e.Color)
	assert.Equal(t, []domain.EmbedField{
		{Name: "Latitude", Value: "35.6586", Inline: true},
		{Name: "Longitude", Value: "139.7454", Inline: true},
	}, e.Fields)

	p, _ = tr.Translate(context.Background(), messageEvent(domain.LocationMessage{ID: "l"}), alice, "h")
	assert.Equal(t, "Location", p.Embeds[0].Title)
	assert.Equal(t, "No address", p.Embeds[0].Description)
}

func TestTranslate_Contact(t *testing.T) {
	tr, _ := newTestTranslator(t, &fakeFetcher{})

	p, _ := tr.Translate(context.Background(), messageEvent(domain.ContactMessage{ID: "c", DisplayName: "Bob"}), alice, "h")
	require.Len(t, p.Embeds, 1)
	assert.Equal(t, "Contact", p.Embeds[0].Title)
	assert.Equal(t, "Name: Bob", p.Embeds[0].Description)
	assert.Equal(t, 0x00b900, p.Embeds[0].Color)
}

func TestTranslate_UnknownKind(t *testing.T) {
	tr, _ := newTestTranslator(t, &fakeFetcher{})

	p, ok := tr.Translate(context.Background(), messageEvent(domain.UnknownMessage{ID: "u", Type: "poll"}), alice, "h")
	require.True(t, ok)
	assert.Contains(t, p.Content, `"poll"`)
	assert.Contains(t, p.Content, "Check LINE directly")
}

func TestTranslate_Notices(t *testing.T) {
	tr, _ := newTestTranslator(t, &fakeFetcher{})

	p, ok := tr.Translate(context.Background(), domain.InboundEvent{Type: domain.EventFollow, SenderID: "U1"}, alice, "h")
	require.True(t, ok)
	assert.Equal(t, NoticeUsername, p.Username)
	assert.Contains(t, p.Content, "Alice added the LINE bot")

	p, ok = tr.Translate(context.Background(), domain.InboundEvent{Type: domain.EventJoin}, domain.SenderIdentity{}, "h")
	require.True(t, ok)
	assert.Equal(t, NoticeUsername, p.Username)
	assert.Equal(t, line.DefaultAvatarURL, p.AvatarURL)
}

func TestTranslate_DroppedEvents(t *testing.T) {
	tr, _ := newTestTranslator(t, &fakeFetcher{})
	for _, typ := range []domain.EventType{domain.EventUnfollow, domain.EventLeave, "postback"} {
		_, ok := tr.Translate(context.Background(), domain.InboundEvent{Type: typ}, alice, "h")
		assert.False(t, ok, "event %s", typ)
	}
}

func TestTranslate_PayloadInvariants(t *testing.T) {
	tr, _ := newTestTranslator(t, &fakeFetcher{err: errors.New("boom")})
	anonymous := domain.SenderIdentity{AvatarURL: "not a url"}

	msgs := []domain.MessagePayload{
		domain.TextMessage{ID: "1", Text: "x"},
		domain.ImageMessage{ID: "2"},
		domain.VideoMessage{ID: "3"},
		domain.AudioMessage{ID: "4"},
		domain.FileMessage{ID: "5"},
		domain.StickerMessage{ID: "6", StickerID: "1"},
		domain.LocationMessage{ID: "7"},
		domain.ContactMessage{ID: "8"},
		domain.UnknownMessage{ID: "9", Type: "x"},
	}
	for _, m := range msgs {
		p, ok := tr.Translate(context.Background(), messageEvent(m), anonymous, "h")
		require.True(t, ok)
		assert.NotEmpty(t, p.Username, "kind %s", m.Kind())
		assert.Equal(t, line.DefaultAvatarURL, p.AvatarURL, "kind %s", m.Kind())
	}
}
