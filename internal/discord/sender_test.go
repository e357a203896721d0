package discord

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"line2discord/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func TestSend_PostsJSON(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s := NewSender(SenderConfig{WebhookURL: srv.URL, HTTPClient: srv.Client(), Logger: testLogger()})
	err := s.Send(context.Background(), domain.OutboundPayload{
		Username:  "Alice",
		AvatarURL: "https://example.com/a.png",
		Content:   "hello",
	})
	require.NoError(t, err)

	assert.Equal(t, "Alice", got["username"])
	assert.Equal(t, "https://example.com/a.png", got["avatar_url"])
	assert.Equal(t, "hello", got["content"])
	mentions, ok := got["allowed_mentions"].(map[string]any)
	require.True(t, ok, "allowed_mentions should be set")
	assert.Equal(t, []any{}, mentions["parse"])
}

func TestSend_TwiceMeansTwoPOSTs(t *testing.T) {
	var posts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		posts.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s := NewSender(SenderConfig{WebhookURL: srv.URL, HTTPClient: srv.Client(), Logger: testLogger()})
	p := domain.OutboundPayload{Username: "Alice", AvatarURL: "https://example.com/a.png", Content: "same"}
	require.NoError(t, s.Send(context.Background(), p))
	require.NoError(t, s.Send(context.Background(), p))

	assert.Equal(t, int32(2), posts.Load())
}

func TestSend_Non2xxReturnsSendError(t *testing.T) {
	var posts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		posts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message":"Cannot send an empty message","code":50006}`))
	}))
	defer srv.Close()

	s := NewSender(SenderConfig{WebhookURL: srv.URL, HTTPClient: srv.Client(), Logger: testLogger()})
	err := s.Send(context.Background(), domain.OutboundPayload{Username: "x", AvatarURL: "https://e/a"})
	require.Error(t, err)

	var se *SendError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusBadRequest, se.Status)
	assert.Contains(t, se.Body, "50006")
	assert.ErrorIs(t, err, domain.ErrUpstreamRejected)
	assert.Equal(t, int32(1), posts.Load(), "no retry")
}

func TestSend_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	s := NewSender(SenderConfig{WebhookURL: url, Logger: testLogger()})
	err := s.Send(context.Background(), domain.OutboundPayload{Username: "x"})
	assert.ErrorIs(t, err, domain.ErrTransport)
}

func TestSendTo_OverridesURL(t *testing.T) {
	var hit atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hit.Store(true)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewSender(SenderConfig{HTTPClient: srv.Client(), Logger: testLogger()})
	require.Error(t, s.Send(context.Background(), domain.OutboundPayload{Username: "x"}), "no default URL")
	require.NoError(t, s.SendTo(context.Background(), domain.OutboundPayload{Username: "x"}, srv.URL))
	assert.True(t, hit.Load())
}

func TestToWebhookParams_Embeds(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	params := ToWebhookParams(domain.OutboundPayload{
		Username: "Bob",
		Embeds: []domain.Embed{{
			Title:       "Tokyo Tower",
			Description: "4-2-8 Shibakoen",
			URL:         "https://www.google.com/maps/search/?api=1&query=35.65,139.74",
			Color:       0x3498db,
			Timestamp:   ts,
			ImageURL:    "https://example.com/i.jpg",
			FooterText:  "Open in Google Maps",
			Fields:      []domain.EmbedField{{Name: "Latitude", Value: "35.65", Inline: true}},
		}},
	})

	require.Len(t, params.Embeds, 1)
	e := params.Embeds[0]
	assert.Equal(t, discordgo.EmbedTypeRich, e.Type)
	assert.Equal(t, "Tokyo Tower", e.Title)
	assert.Equal(t, 0x3498db, e.Color)
	assert.Equal(t, "2026-03-01T12:00:00Z", e.Timestamp)
	require.NotNil(t, e.Image)
	assert.Equal(t, "https://example.com/i.jpg", e.Image.URL)
	require.NotNil(t, e.Footer)
	assert.Equal(t, "Open in Google Maps", e.Footer.Text)
	assert.Nil(t, e.Thumbnail)
	assert.Nil(t, e.Author)
	require.Len(t, e.Fields, 1)
	assert.True(t, e.Fields[0].Inline)
}

func TestToWebhookParams_ClipsToLimits(t *testing.T) {
	long := strings.Repeat("あ", 2500)
	params := ToWebhookParams(domain.OutboundPayload{
		Username: strings.Repeat("n", 100),
		Content:  long,
		Embeds:   make([]domain.Embed, 12),
	})
	assert.Len(t, []rune(params.Content), maxContentLen)
	assert.True(t, strings.HasSuffix(params.Content, "…"))
	assert.Len(t, []rune(params.Username), maxUsernameLen)
	assert.Len(t, params.Embeds, maxEmbeds)
}

func TestInfo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		w.Write([]byte(`{"id":"123","name":"LINE relay","channel_id":"c1","guild_id":"g1"}`))
	}))
	defer srv.Close()

	s := NewSender(SenderConfig{WebhookURL: srv.URL, HTTPClient: srv.Client(), Logger: testLogger()})
	wh, err := s.Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "LINE relay", wh.Name)
	assert.Equal(t, "c1", wh.ChannelID)
}
