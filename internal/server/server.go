// Package server exposes the LINE webhook, stored media and the operational
// endpoints over HTTP.
package server

import (
	"context"
	"embed"
	"errors"
	"fmt"
	htmltemplate "html/template"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"line2discord/internal/domain"
	"line2discord/internal/events"
	"line2discord/internal/media"
	"line2discord/internal/metrics"
	"line2discord/internal/relay"
)

//go:embed templates/*.html
var templateFS embed.FS

// MaxBodyBytes caps the size of a webhook request body.
const MaxBodyBytes = 1 << 20

// BatchHandler processes the events of one webhook delivery.
// *relay.Relay satisfies it.
type BatchHandler interface {
	HandleBatch(ctx context.Context, events []domain.InboundEvent, requestHost string) relay.BatchResult
}

// MediaStats reports what the media index holds. *media.Index satisfies it.
type MediaStats interface {
	Stats(ctx context.Context) (count int, totalBytes int64, err error)
}

// BaseURLs reports the public base URLs in use. *publicurl.Resolver satisfies it.
type BaseURLs interface {
	ConfiguredBase() string
	TunnelURL() string
}

type Config struct {
	Host        string
	Port        int
	WebhookPath string // default: /webhook

	ChannelSecret string

	// SkipSignature disables signature verification. Development only.
	SkipSignature bool

	// RejectInvalidSignature answers unauthenticated deliveries with 401
	// instead of 200.
	RejectInvalidSignature bool

	Relay BatchHandler

	MediaDir    string // local media root; empty disables /images and /files
	MediaStats  MediaStats
	URLs        BaseURLs
	History     *events.History
	StatusPage  bool
	MetricsPath string // empty disables the Prometheus endpoint
	Version     string

	// ExposeEvents serves the relay history on /api/events and the status
	// page. The history names senders and groups, so it is off by default.
	ExposeEvents bool

	Logger *slog.Logger
}

// Server is the relay's HTTP front end.
type Server struct {
	cfg    Config
	tmpl   *htmltemplate.Template
	logger *slog.Logger
	srv    *http.Server
}

func New(cfg Config) *Server {
	if cfg.WebhookPath == "" {
		cfg.WebhookPath = "/webhook"
	}
	if cfg.Port == 0 {
		cfg.Port = 3000
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	s := &Server{
		cfg:    cfg,
		tmpl:   htmltemplate.Must(htmltemplate.ParseFS(templateFS, "templates/*.html")),
		logger: cfg.Logger,
	}
	s.srv = &http.Server{
		Addr:              net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Addr is the address the server listens on.
func (s *Server) Addr() string { return s.srv.Addr }

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)

	r.Post(s.cfg.WebhookPath, s.handleWebhook)
	r.Get(s.cfg.WebhookPath, s.handleProbe)

	if s.cfg.MediaDir != "" {
		r.Handle("/"+media.ImagesDir+"/*", staticFiles("/"+media.ImagesDir+"/", filepath.Join(s.cfg.MediaDir, media.ImagesDir)))
		r.Handle("/"+media.FilesDir+"/*", staticFiles("/"+media.FilesDir+"/", filepath.Join(s.cfg.MediaDir, media.FilesDir)))
	}

	if s.cfg.MetricsPath != "" {
		r.Handle(s.cfg.MetricsPath, metrics.Handler())
	}
	r.Get("/healthz", s.handleHealth)
	if s.cfg.ExposeEvents {
		r.Get("/api/events", s.handleEvents)
	}
	if s.cfg.StatusPage {
		r.Get("/", s.handleStatusPage)
	}
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.srv.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.logger.Info("http server listening", "addr", ln.Addr().String(), "webhook_path", s.cfg.WebhookPath)

	errCh := make(chan error, 1)
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("http server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	}
}

// staticFiles serves files below dir without directory listings.
func staticFiles(prefix, dir string) http.Handler {
	files := http.StripPrefix(prefix, http.FileServer(http.Dir(dir)))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/") || strings.HasPrefix(filepath.Base(r.URL.Path), ".") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("X-Content-Type-Options", "nosniff")
		files.ServeHTTP(w, r)
	})
}
