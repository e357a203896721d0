package server

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"line2discord/internal/line"
	"line2discord/internal/metrics"
)

// handleWebhook authenticates and parses one LINE delivery, relays its
// events in order and answers 200 once. Processing problems never change
// the response; only a bad signature in reject mode yields 401.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	logger := s.logger.With("request_id", middleware.GetReqID(r.Context()))

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			logger.Warn("webhook body too large", "limit", tooLarge.Limit)
		} else {
			logger.Warn("failed to read webhook body", "err", err)
		}
		metrics.WebhookRequests.WithLabelValues("malformed").Inc()
		writeOK(w)
		return
	}

	if s.cfg.SkipSignature {
		logger.Warn("signature verification skipped", "remote", r.RemoteAddr)
	} else if !line.VerifySignature(body, r.Header.Get(line.SignatureHeader), s.cfg.ChannelSecret) {
		metrics.SignatureFailures.Inc()
		metrics.WebhookRequests.WithLabelValues("bad_signature").Inc()
		logger.Warn("webhook signature did not verify, delivery dropped", "remote", r.RemoteAddr)
		if s.cfg.RejectInvalidSignature {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		writeOK(w)
		return
	}

	batch, err := line.ParseWebhook(body)
	if err != nil {
		metrics.WebhookRequests.WithLabelValues("malformed").Inc()
		logger.Warn("webhook body is not a LINE delivery", "err", err)
		writeOK(w)
		return
	}
	for _, skipped := range batch.Skipped {
		logger.Warn("skipping malformed event", "err", skipped)
	}
	metrics.WebhookRequests.WithLabelValues("accepted").Inc()

	if len(batch.Events) == 0 {
		// LINE's "Verify" button sends an empty event list.
		logger.Info("webhook delivery without events")
		writeOK(w)
		return
	}

	// A client hang-up must not abort relaying.
	ctx := context.WithoutCancel(r.Context())
	res := s.cfg.Relay.HandleBatch(ctx, batch.Events, r.Host)
	logger.Info("webhook delivery processed",
		"events", len(batch.Events), "sent", res.Sent, "failed", res.Failed, "dropped", res.Dropped)
	writeOK(w)
}

func (s *Server) handleProbe(w http.ResponseWriter, r *http.Request) {
	writeOK(w)
}

func writeOK(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, "OK")
}
