// Package tunnel discovers the public URL of a local ngrok agent.
package tunnel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"line2discord/internal/httpclient"
)

const (
	DefaultAPIURL   = "http://127.0.0.1:4040/api/tunnels"
	DefaultAttempts = 5
	DefaultInterval = 2 * time.Second
)

// ErrNoTunnel is returned when the agent answered but reported no tunnels.
var ErrNoTunnel = errors.New("no tunnel is running")

// URLSink receives the discovered URL. *publicurl.Resolver satisfies it.
type URLSink interface {
	SetTunnelURL(u string)
}

type DiscovererConfig struct {
	APIURL     string
	Attempts   int
	Interval   time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Discoverer polls the ngrok agent API until a tunnel shows up.
type Discoverer struct {
	apiURL   string
	attempts int
	interval time.Duration
	client   *http.Client
	logger   *slog.Logger
}

func NewDiscoverer(cfg DiscovererConfig) *Discoverer {
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = DefaultAttempts
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = httpclient.Shared(5 * time.Second)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Discoverer{
		apiURL:   cfg.APIURL,
		attempts: cfg.Attempts,
		interval: cfg.Interval,
		client:   cfg.HTTPClient,
		logger:   cfg.Logger,
	}
}

type tunnelList struct {
	Tunnels []struct {
		Name      string `json:"name"`
		PublicURL string `json:"public_url"`
		Proto     string `json:"proto"`
	} `json:"tunnels"`
}

// Lookup queries the agent once and returns the preferred public URL:
// the first https tunnel, otherwise the first tunnel of any kind.
func (d *Discoverer) Lookup(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.apiURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ngrok agent not reachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ngrok agent returned status %d", resp.StatusCode)
	}

	var list tunnelList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return "", fmt.Errorf("decode tunnel list: %w", err)
	}
	var fallback string
	for _, t := range list.Tunnels {
		if t.PublicURL == "" {
			continue
		}
		if strings.HasPrefix(t.PublicURL, "https://") {
			return t.PublicURL, nil
		}
		if fallback == "" {
			fallback = t.PublicURL
		}
	}
	if fallback == "" {
		return "", ErrNoTunnel
	}
	return fallback, nil
}

// Discover retries Lookup up to the configured number of attempts and hands
// the result to sink. It returns the last error when every attempt failed.
func (d *Discoverer) Discover(ctx context.Context, sink URLSink) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= d.attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(d.interval):
			}
		}

		u, err := d.Lookup(ctx)
		if err == nil {
			sink.SetTunnelURL(u)
			d.logger.Info("tunnel discovered", "url", u, "attempt", attempt)
			return u, nil
		}
		lastErr = err
		d.logger.Debug("tunnel lookup failed", "attempt", attempt, "err", err)
	}
	return "", fmt.Errorf("tunnel discovery failed after %d attempts: %w", d.attempts, lastErr)
}
