package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Config is the root configuration for line2discord.
type Config struct {
	General GeneralConfig `json:"general"`
	Server  ServerConfig  `json:"server"`
	Line    LineConfig    `json:"line"`
	Discord DiscordConfig `json:"discord"`
	Media   MediaConfig   `json:"media"`
	Emoji   EmojiConfig   `json:"emoji"`
	Tunnel  TunnelConfig  `json:"tunnel"`
	Events  EventsConfig  `json:"events"`
	Metrics MetricsConfig `json:"metrics"`
}

type GeneralConfig struct {
	LogLevel  string `json:"logLevel"`
	LogFormat string `json:"logFormat"`         // "text" | "json"
	LogFile   string `json:"logFile,omitempty"` // optional log file path
}

type ServerConfig struct {
	Host                  string `json:"host"`
	Port                  int    `json:"port"`
	BaseURL               string `json:"baseUrl,omitempty"` // externally visible base URL for media links
	RequestTimeoutSeconds int    `json:"requestTimeoutSeconds"`
	StatusPage            bool   `json:"statusPage"`

	// ExposeEvents publishes recent relay history (sender names, group
	// IDs) on /api/events and the status page. Unauthenticated.
	ExposeEvents bool `json:"exposeEvents,omitempty"`
}

type LineConfig struct {
	ChannelSecret          string `json:"channelSecret"`
	ChannelAccessToken     string `json:"channelAccessToken"`
	WebhookPath            string `json:"webhookPath"`
	APIBase                string `json:"apiBase"`
	DataAPIBase            string `json:"dataApiBase"`
	InsecureSkipSignature  bool   `json:"insecureSkipSignature,omitempty"`  // development only
	RejectInvalidSignature bool   `json:"rejectInvalidSignature,omitempty"` // answer 401 instead of dropping silently
}

type DiscordConfig struct {
	WebhookURL string `json:"webhookUrl"`
}

type MediaConfig struct {
	Backend       string   `json:"backend"` // "local" | "s3"
	Dir           string   `json:"dir"`
	MaxBytes      int64    `json:"maxBytes"`
	Retention     string   `json:"retention"`     // Go duration; "0" keeps files forever
	SweepSchedule string   `json:"sweepSchedule"` // cron spec for the retention janitor
	IndexPath     string   `json:"indexPath"`
	S3            S3Config `json:"s3,omitempty"`
}

type S3Config struct {
	Bucket        string `json:"bucket,omitempty"`
	Region        string `json:"region,omitempty"`
	Endpoint      string `json:"endpoint,omitempty"` // non-empty enables path-style addressing (MinIO etc.)
	Prefix        string `json:"prefix,omitempty"`
	PublicBaseURL string `json:"publicBaseUrl,omitempty"`
}

type EmojiConfig struct {
	Enabled   bool   `json:"enabled"`
	TablePath string `json:"tablePath,omitempty"` // YAML file overriding the built-in table
}

type TunnelConfig struct {
	Enabled bool   `json:"enabled"`
	APIURL  string `json:"apiUrl"`
}

type EventsConfig struct {
	NATSURL string `json:"natsUrl,omitempty"`
	Subject string `json:"subject"`
}

type MetricsConfig struct {
	Enabled  bool   `json:"enabled"`
	Endpoint string `json:"endpoint"`
}

// RetentionDuration parses Media.Retention. Invalid values yield 0.
func (m MediaConfig) RetentionDuration() time.Duration {
	d, err := time.ParseDuration(m.Retention)
	if err != nil {
		return 0
	}
	return d
}

// DefaultConfigDir returns the default config directory (~/.line2discord).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".line2discord"
	}
	return filepath.Join(home, ".line2discord")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

// Load reads the config file at path, overlays environment variables and
// validates the result. An empty path skips the file and builds the config
// from defaults and the environment only.
func Load(path string) (*Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// Read is Load without validation; used by the config subcommands so an
// incomplete file can still be inspected and edited.
func Read(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		path = ExpandPath(path)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
		}

		// Substitute environment variables: ${VAR} and ${VAR:-default}
		data = []byte(ExpandEnvVars(string(data)))

		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
		}
	}

	ApplyEnv(cfg)

	cfg.Media.Dir = ExpandPath(cfg.Media.Dir)
	cfg.Media.IndexPath = ExpandPath(cfg.Media.IndexPath)
	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)
	cfg.Emoji.TablePath = ExpandPath(cfg.Emoji.TablePath)

	return cfg, nil
}

// Exists reports whether a config file is present at path.
func Exists(path string) bool {
	_, err := os.Stat(ExpandPath(path))
	return err == nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match
		}
		return val
	})
}

func Save(path string, cfg *Config) error {
	path = ExpandPath(path)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	// Secrets live in this file.
	return os.WriteFile(path, data, 0o600)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	switch cfg.General.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}
	switch cfg.General.LogFormat {
	case "", "text", "json":
	default:
		errs = append(errs, "general.logFormat must be one of: text, json")
	}

	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 0 and 65535")
	}
	if cfg.Server.RequestTimeoutSeconds < 1 {
		errs = append(errs, "server.requestTimeoutSeconds must be >= 1")
	}
	if cfg.Server.BaseURL != "" && !isAbsoluteHTTPURL(cfg.Server.BaseURL) {
		errs = append(errs, "server.baseUrl must be an absolute http(s) URL")
	}

	if cfg.Line.ChannelSecret == "" && !cfg.Line.InsecureSkipSignature {
		errs = append(errs, "line.channelSecret is required (set line.insecureSkipSignature only for local development)")
	}
	if cfg.Line.ChannelAccessToken == "" {
		errs = append(errs, "line.channelAccessToken is required")
	}
	if !strings.HasPrefix(cfg.Line.WebhookPath, "/") {
		errs = append(errs, "line.webhookPath must start with /")
	}
	if !isAbsoluteHTTPURL(cfg.Line.APIBase) {
		errs = append(errs, "line.apiBase must be an absolute http(s) URL")
	}
	if !isAbsoluteHTTPURL(cfg.Line.DataAPIBase) {
		errs = append(errs, "line.dataApiBase must be an absolute http(s) URL")
	}

	if !isAbsoluteHTTPURL(cfg.Discord.WebhookURL) {
		errs = append(errs, "discord.webhookUrl must be an absolute http(s) URL")
	}

	switch cfg.Media.Backend {
	case "local":
		if cfg.Media.Dir == "" {
			errs = append(errs, "media.dir is required for the local backend")
		}
	case "s3":
		if cfg.Media.S3.Bucket == "" {
			errs = append(errs, "media.s3.bucket is required for the s3 backend")
		}
		if !isAbsoluteHTTPURL(cfg.Media.S3.PublicBaseURL) {
			errs = append(errs, "media.s3.publicBaseUrl must be an absolute http(s) URL")
		}
	default:
		errs = append(errs, "media.backend must be one of: local, s3")
	}
	if cfg.Media.MaxBytes < 1 {
		errs = append(errs, "media.maxBytes must be >= 1")
	}
	if d, err := time.ParseDuration(cfg.Media.Retention); err != nil || d < 0 {
		errs = append(errs, "media.retention must be a non-negative duration (e.g. 168h, 0 to keep forever)")
	}
	if _, err := cron.ParseStandard(cfg.Media.SweepSchedule); err != nil {
		errs = append(errs, fmt.Sprintf("media.sweepSchedule is invalid: %v", err))
	}
	if cfg.Media.IndexPath == "" {
		errs = append(errs, "media.indexPath is required")
	}

	if cfg.Tunnel.Enabled && !isAbsoluteHTTPURL(cfg.Tunnel.APIURL) {
		errs = append(errs, "tunnel.apiUrl must be an absolute http(s) URL")
	}
	if cfg.Events.NATSURL != "" && cfg.Events.Subject == "" {
		errs = append(errs, "events.subject is required when events.natsUrl is set")
	}
	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Endpoint, "/") {
		errs = append(errs, "metrics.endpoint must start with /")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func isAbsoluteHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
