// Package discord posts relay payloads to a Discord incoming webhook.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"line2discord/internal/domain"
	"line2discord/internal/httpclient"
	"line2discord/internal/metrics"
)

// Discord API limits.
const (
	maxContentLen     = 2000
	maxUsernameLen    = 80
	maxEmbeds         = 10
	maxEmbedTitle     = 256
	maxEmbedDesc      = 4096
	maxEmbedFields    = 25
	maxFieldNameLen   = 256
	maxFieldValueLen  = 1024
	maxErrorBodyBytes = 4 << 10
)

// SendError is returned when Discord answers with a non-2xx status.
type SendError struct {
	Status int
	Body   string
}

func (e *SendError) Error() string {
	return fmt.Sprintf("discord webhook %d: %s", e.Status, strings.TrimSpace(e.Body))
}

func (e *SendError) Unwrap() error { return domain.ErrUpstreamRejected }

type SenderConfig struct {
	WebhookURL string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Sender delivers payloads with exactly one POST per call. It never retries.
type Sender struct {
	webhookURL string
	client     *http.Client
	logger     *slog.Logger
}

func NewSender(cfg SenderConfig) *Sender {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = httpclient.Shared(0)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Sender{webhookURL: cfg.WebhookURL, client: cfg.HTTPClient, logger: cfg.Logger}
}

// Send posts p to the configured webhook.
func (s *Sender) Send(ctx context.Context, p domain.OutboundPayload) error {
	return s.SendTo(ctx, p, s.webhookURL)
}

// SendTo posts p to webhookURL.
func (s *Sender) SendTo(ctx context.Context, p domain.OutboundPayload, webhookURL string) error {
	if webhookURL == "" {
		return fmt.Errorf("discord webhook URL is not configured")
	}

	body, err := json.Marshal(ToWebhookParams(p))
	if err != nil {
		return fmt.Errorf("marshal webhook params: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := s.client.Do(req)
	metrics.DiscordLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.DiscordErrors.WithLabelValues("0").Inc()
		return fmt.Errorf("discord webhook: %w: %w", domain.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		metrics.DiscordErrors.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()
		s.logger.Error("discord webhook rejected payload", "status", resp.StatusCode, "body", string(respBody))
		return &SendError{Status: resp.StatusCode, Body: string(respBody)}
	}

	s.logger.Debug("discord message sent", "username", p.Username, "embeds", len(p.Embeds))
	return nil
}

// Info fetches the webhook's metadata. Used by doctor to check the URL.
func (s *Sender) Info(ctx context.Context) (*discordgo.Webhook, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.webhookURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("discord webhook: %w: %w", domain.ErrTransport, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, &SendError{Status: resp.StatusCode, Body: string(respBody)}
	}
	var wh discordgo.Webhook
	if err := json.NewDecoder(resp.Body).Decode(&wh); err != nil {
		return nil, fmt.Errorf("decode webhook: %w", err)
	}
	return &wh, nil
}

// ToWebhookParams converts a payload to Discord's wire format, clipping
// fields to Discord's limits. Mentions are never resolved, so text relayed
// from LINE cannot ping @everyone or roles.
func ToWebhookParams(p domain.OutboundPayload) *discordgo.WebhookParams {
	params := &discordgo.WebhookParams{
		Content:         clip(p.Content, maxContentLen),
		Username:        clip(p.Username, maxUsernameLen),
		AvatarURL:       p.AvatarURL,
		AllowedMentions: &discordgo.MessageAllowedMentions{Parse: []discordgo.AllowedMentionType{}},
	}

	embeds := p.Embeds
	if len(embeds) > maxEmbeds {
		embeds = embeds[:maxEmbeds]
	}
	for _, e := range embeds {
		params.Embeds = append(params.Embeds, toEmbed(e))
	}
	return params
}

func toEmbed(e domain.Embed) *discordgo.MessageEmbed {
	me := &discordgo.MessageEmbed{
		Type:        discordgo.EmbedTypeRich,
		Title:       clip(e.Title, maxEmbedTitle),
		Description: clip(e.Description, maxEmbedDesc),
		URL:         e.URL,
		Color:       e.Color,
	}
	if !e.Timestamp.IsZero() {
		me.Timestamp = e.Timestamp.UTC().Format(time.RFC3339)
	}
	if e.ImageURL != "" {
		me.Image = &discordgo.MessageEmbedImage{URL: e.ImageURL}
	}
	if e.ThumbnailURL != "" {
		me.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: e.ThumbnailURL}
	}
	if e.AuthorName != "" {
		me.Author = &discordgo.MessageEmbedAuthor{Name: e.AuthorName, IconURL: e.AuthorIcon}
	}
	if e.FooterText != "" {
		me.Footer = &discordgo.MessageEmbedFooter{Text: e.FooterText, IconURL: e.FooterIcon}
	}

	fields := e.Fields
	if len(fields) > maxEmbedFields {
		fields = fields[:maxEmbedFields]
	}
	for _, f := range fields {
		me.Fields = append(me.Fields, &discordgo.MessageEmbedField{
			Name:   clip(f.Name, maxFieldNameLen),
			Value:  clip(f.Value, maxFieldValueLen),
			Inline: f.Inline,
		})
	}
	return me
}

// clip shortens s to at most n runes, marking the cut with an ellipsis.
func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
