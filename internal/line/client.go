// Package line talks to the LINE Messaging API: webhook authentication and
// parsing, message content download and sender profile lookup.
package line

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"line2discord/internal/domain"
	"line2discord/internal/httpclient"
)

const (
	DefaultAPIBase     = "https://api.line.me"
	DefaultDataAPIBase = "https://api-data.line.me"

	// maxErrorBody caps how much of an error response is kept for logging.
	maxErrorBody = 4 << 10
)

// ErrTooLarge is returned when message content exceeds the configured cap.
var ErrTooLarge = errors.New("content exceeds size limit")

type FetchErrorKind int

const (
	UpstreamRejected FetchErrorKind = iota + 1
	Transport
)

func (k FetchErrorKind) String() string {
	switch k {
	case UpstreamRejected:
		return "upstream rejected"
	case Transport:
		return "transport"
	default:
		return "unknown"
	}
}

// FetchError describes a failed LINE API call.
type FetchError struct {
	Kind   FetchErrorKind
	Op     string
	Status int    // HTTP status, 0 for transport failures
	Body   string // truncated response body
	Err    error
}

func (e *FetchError) Error() string {
	switch {
	case e.Status != 0:
		return fmt.Sprintf("%s: LINE API %d: %s", e.Op, e.Status, strings.TrimSpace(e.Body))
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
}

// Unwrap exposes both the domain category and the underlying cause.
func (e *FetchError) Unwrap() []error {
	cat := domain.ErrUpstreamRejected
	if e.Kind == Transport {
		cat = domain.ErrTransport
	}
	if e.Err == nil {
		return []error{cat}
	}
	return []error{cat, e.Err}
}

// ClientConfig configures a LINE API client.
type ClientConfig struct {
	AccessToken     string
	APIBase         string // default: https://api.line.me
	DataAPIBase     string // default: https://api-data.line.me
	MaxContentBytes int64  // 0 disables the cap
	HTTPClient      *http.Client
	Logger          *slog.Logger
}

// Client is a minimal LINE Messaging API client.
type Client struct {
	token    string
	apiBase  string
	dataBase string
	maxBytes int64
	http     *http.Client
	logger   *slog.Logger
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.APIBase == "" {
		cfg.APIBase = DefaultAPIBase
	}
	if cfg.DataAPIBase == "" {
		cfg.DataAPIBase = DefaultDataAPIBase
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = httpclient.Shared(0)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		token:    cfg.AccessToken,
		apiBase:  strings.TrimRight(cfg.APIBase, "/"),
		dataBase: strings.TrimRight(cfg.DataAPIBase, "/"),
		maxBytes: cfg.MaxContentBytes,
		http:     cfg.HTTPClient,
		logger:   cfg.Logger,
	}
}

// FetchContent downloads the binary content of an image, video, audio or
// file message. It returns the bytes and the reported content type.
func (c *Client) FetchContent(ctx context.Context, messageID string) ([]byte, string, error) {
	const op = "fetch content"
	if messageID == "" {
		return nil, "", &FetchError{Kind: UpstreamRejected, Op: op, Err: fmt.Errorf("empty message id: %w", domain.ErrMalformedEvent)}
	}

	endpoint := c.dataBase + "/v2/bot/message/" + url.PathEscape(messageID) + "/content"
	resp, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, "", &FetchError{Kind: Transport, Op: op, Err: err}
	}
	defer resp.Body.Close()

	contentType := resp.Header.Get("Content-Type")
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", rejected(op, resp)
	}
	// LINE answers some failures with 200 and a JSON error document.
	if mt, _, _ := mime.ParseMediaType(contentType); mt == "application/json" {
		return nil, "", rejected(op, resp)
	}

	reader := io.Reader(resp.Body)
	if c.maxBytes > 0 {
		reader = io.LimitReader(resp.Body, c.maxBytes+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, "", &FetchError{Kind: Transport, Op: op, Err: fmt.Errorf("read body: %w", err)}
	}
	if c.maxBytes > 0 && int64(len(data)) > c.maxBytes {
		return nil, "", &FetchError{Kind: UpstreamRejected, Op: op, Err: fmt.Errorf("%w (%d bytes)", ErrTooLarge, c.maxBytes)}
	}

	c.logger.Debug("line content fetched", "message_id", messageID, "bytes", len(data), "content_type", contentType)
	return data, contentType, nil
}

// Profile is a LINE user profile as returned by the profile endpoints.
type Profile struct {
	UserID        string `json:"userId"`
	DisplayName   string `json:"displayName"`
	PictureURL    string `json:"pictureUrl,omitempty"`
	StatusMessage string `json:"statusMessage,omitempty"`
}

// Profile looks up a user. Group and room sources use the member endpoints,
// which work for users who are not friends of the bot.
func (c *Client) Profile(ctx context.Context, userID string, source domain.Source) (*Profile, error) {
	const op = "get profile"
	var path string
	switch source.Kind {
	case domain.SourceGroup:
		path = "/v2/bot/group/" + url.PathEscape(source.ID) + "/member/" + url.PathEscape(userID)
	case domain.SourceRoom:
		path = "/v2/bot/room/" + url.PathEscape(source.ID) + "/member/" + url.PathEscape(userID)
	default:
		path = "/v2/bot/profile/" + url.PathEscape(userID)
	}

	var p Profile
	if err := c.getJSON(ctx, op, c.apiBase+path, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// WebhookEndpoint is the webhook configuration registered with LINE.
type WebhookEndpoint struct {
	Endpoint string `json:"endpoint"`
	Active   bool   `json:"active"`
}

// GetWebhookEndpoint returns the channel's registered webhook URL.
func (c *Client) GetWebhookEndpoint(ctx context.Context) (*WebhookEndpoint, error) {
	var ep WebhookEndpoint
	if err := c.getJSON(ctx, "get webhook endpoint", c.apiBase+"/v2/bot/channel/webhook/endpoint", &ep); err != nil {
		return nil, err
	}
	return &ep, nil
}

// WebhookTestResult is LINE's report of a test delivery.
type WebhookTestResult struct {
	Success    bool   `json:"success"`
	StatusCode int    `json:"statusCode"`
	Reason     string `json:"reason"`
	Detail     string `json:"detail"`
}

// TestWebhookEndpoint asks LINE to deliver a test event to endpoint, or to
// the registered URL when endpoint is empty.
func (c *Client) TestWebhookEndpoint(ctx context.Context, endpoint string) (*WebhookTestResult, error) {
	const op = "test webhook endpoint"
	body := map[string]string{}
	if endpoint != "" {
		body["endpoint"] = endpoint
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, c.apiBase+"/v2/bot/channel/webhook/test", data)
	if err != nil {
		return nil, &FetchError{Kind: Transport, Op: op, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, rejected(op, resp)
	}

	var result WebhookTestResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &FetchError{Kind: UpstreamRejected, Op: op, Err: fmt.Errorf("decode: %w", err)}
	}
	return &result, nil
}

func (c *Client) getJSON(ctx context.Context, op, endpoint string, out any) error {
	resp, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return &FetchError{Kind: Transport, Op: op, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return rejected(op, resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &FetchError{Kind: UpstreamRejected, Op: op, Err: fmt.Errorf("decode: %w", err)}
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.http.Do(req)
}

func rejected(op string, resp *http.Response) *FetchError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &FetchError{Kind: UpstreamRejected, Op: op, Status: resp.StatusCode, Body: string(body)}
}
