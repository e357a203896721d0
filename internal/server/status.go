package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"line2discord/internal/events"
	"line2discord/internal/metrics"
)

const recentEvents = 20

type statusView struct {
	Version     string
	Uptime      string
	WebhookPath string
	BaseURL     string
	TunnelURL   string
	MediaCount  int
	MediaBytes  int64
	MediaErr    string
	ShowEvents  bool
	Events      []events.Entry
}

func (s *Server) handleStatusPage(w http.ResponseWriter, r *http.Request) {
	view := statusView{
		Version:     s.cfg.Version,
		Uptime:      metrics.Uptime().Round(time.Second).String(),
		WebhookPath: s.cfg.WebhookPath,
		ShowEvents:  s.cfg.ExposeEvents,
	}
	if s.cfg.URLs != nil {
		view.BaseURL = s.cfg.URLs.ConfiguredBase()
		view.TunnelURL = s.cfg.URLs.TunnelURL()
	}
	if s.cfg.MediaStats != nil {
		count, size, err := s.cfg.MediaStats.Stats(r.Context())
		if err != nil {
			view.MediaErr = err.Error()
		}
		view.MediaCount, view.MediaBytes = count, size
	}
	if s.cfg.ExposeEvents && s.cfg.History != nil {
		view.Events = s.cfg.History.Recent(recentEvents)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tmpl.ExecuteTemplate(w, "status.html", view); err != nil {
		s.logger.Error("template error", "template", "status", "err", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.cfg.Version,
		"uptime":  metrics.Uptime().Round(time.Second).String(),
		"time":    time.Now().Format(time.RFC3339),
	})
}

// handleEvents returns recently relayed events, newest first. ?limit=N
// caps the count.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.cfg.History == nil {
		writeJSON(w, http.StatusOK, []events.Entry{})
		return
	}
	limit := recentEvents
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, s.cfg.History.Recent(limit))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
