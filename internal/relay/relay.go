package relay

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"line2discord/internal/domain"
	"line2discord/internal/metrics"
)

// ProfileSource resolves the identity to show for a sender.
type ProfileSource interface {
	Resolve(ctx context.Context, senderID string, source domain.Source) domain.SenderIdentity
}

// PayloadSender delivers one payload. *discord.Sender satisfies it.
type PayloadSender interface {
	Send(ctx context.Context, p domain.OutboundPayload) error
}

type RelayConfig struct {
	Profiles   ProfileSource
	Translator *Translator
	Sender     PayloadSender
	Publisher  domain.EventPublisher // optional
	Subject    string
	Logger     *slog.Logger
}

// Relay processes a webhook batch: for every event, in order, it resolves
// the sender, translates the event and sends the result once.
type Relay struct {
	profiles   ProfileSource
	translator *Translator
	sender     PayloadSender
	publisher  domain.EventPublisher
	subject    string
	logger     *slog.Logger
}

func New(cfg RelayConfig) *Relay {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Relay{
		profiles:   cfg.Profiles,
		translator: cfg.Translator,
		sender:     cfg.Sender,
		publisher:  cfg.Publisher,
		subject:    cfg.Subject,
		logger:     cfg.Logger,
	}
}

// Outcomes recorded per event.
const (
	OutcomeSent       = "sent"
	OutcomeSendFailed = "send_failed"
	OutcomeDropped    = "dropped"
	OutcomePanic      = "panic"
)

// BatchResult counts per-event outcomes of one delivery.
type BatchResult struct {
	Sent    int
	Failed  int
	Dropped int
}

// RelayedEvent is published to the event mirror after each event.
type RelayedEvent struct {
	ID             string    `json:"id"`
	WebhookEventID string    `json:"webhook_event_id,omitempty"`
	EventType      string    `json:"event_type"`
	MessageKind    string    `json:"message_kind,omitempty"`
	SourceKind     string    `json:"source_kind"`
	SourceID       string    `json:"source_id,omitempty"`
	Sender         string    `json:"sender,omitempty"`
	Outcome        string    `json:"outcome"`
	Error          string    `json:"error,omitempty"`
	At             time.Time `json:"at"`
}

// HandleBatch processes events strictly sequentially. It never fails: every
// error is handled at the per-event boundary.
func (r *Relay) HandleBatch(ctx context.Context, events []domain.InboundEvent, requestHost string) BatchResult {
	var res BatchResult
	for _, ev := range events {
		switch r.handleEvent(ctx, ev, requestHost) {
		case OutcomeSent:
			res.Sent++
		case OutcomeDropped:
			res.Dropped++
		default:
			res.Failed++
		}
	}
	return res
}

func (r *Relay) handleEvent(ctx context.Context, ev domain.InboundEvent, host string) (outcome string) {
	kind := messageKind(ev)
	logger := r.logger.With("event", ev.Type, "kind", kind, "source", ev.Source.Kind, "webhook_event_id", ev.WebhookEventID)
	if u, ok := ev.Message.(domain.UnknownMessage); ok {
		logger = logger.With("line_type", u.Type)
	}
	metrics.EventsReceived.WithLabelValues(string(ev.Type)).Inc()

	var (
		sender  domain.SenderIdentity
		sendErr error
	)
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("event processing panicked", "panic", rec)
			outcome = OutcomePanic
			sendErr = fmt.Errorf("panic: %v", rec)
		}
		metrics.EventsRelayed.WithLabelValues(kind, outcome).Inc()
		r.publish(ctx, ev, kind, sender, outcome, sendErr)
	}()

	if !forwarded(ev.Type) {
		logger.Info("event not forwarded")
		return OutcomeDropped
	}

	if ev.Type == domain.EventMessage || ev.Type == domain.EventFollow {
		sender = r.profiles.Resolve(ctx, ev.SenderID, ev.Source)
	}

	payload, ok := r.translate(ctx, ev, sender, host, logger)
	if !ok {
		logger.Info("event not forwarded")
		return OutcomeDropped
	}

	if sendErr = r.sender.Send(ctx, payload); sendErr != nil {
		logger.Error("discord send failed", "err", sendErr)
		return OutcomeSendFailed
	}
	logger.Info("event relayed", "username", payload.Username)
	return OutcomeSent
}

// translate recovers from a panicking translation by substituting the
// generic fallback payload.
func (r *Relay) translate(ctx context.Context, ev domain.InboundEvent, sender domain.SenderIdentity, host string, logger *slog.Logger) (p domain.OutboundPayload, ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("translation panicked, sending fallback", "panic", rec)
			p, ok = fallbackPayload(sender), true
		}
	}()
	return r.translator.Translate(ctx, ev, sender, host)
}

func (r *Relay) publish(ctx context.Context, ev domain.InboundEvent, kind string, sender domain.SenderIdentity, outcome string, err error) {
	if r.publisher == nil {
		return
	}
	msg := RelayedEvent{
		ID:             uuid.NewString(),
		WebhookEventID: ev.WebhookEventID,
		EventType:      string(ev.Type),
		MessageKind:    kind,
		SourceKind:     string(ev.Source.Kind),
		SourceID:       ev.Source.GroupOrRoomID(),
		Sender:         sender.DisplayName,
		Outcome:        outcome,
		At:             time.Now().UTC(),
	}
	if err != nil {
		msg.Error = err.Error()
	}
	if perr := r.publisher.Publish(ctx, r.subject, msg); perr != nil {
		r.logger.Warn("event mirror publish failed", "err", perr)
	}
}

func forwarded(t domain.EventType) bool {
	switch t {
	case domain.EventMessage, domain.EventFollow, domain.EventJoin:
		return true
	}
	return false
}

// messageKind is the metric label for ev. Message types this relay does not
// know share one label.
func messageKind(ev domain.InboundEvent) string {
	switch m := ev.Message.(type) {
	case nil:
		return "none"
	case domain.UnknownMessage:
		return "unknown"
	default:
		return string(m.Kind())
	}
}
