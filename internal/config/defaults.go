package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel:  "info",
			LogFormat: "text",
		},
		Server: ServerConfig{
			Host:                  "0.0.0.0",
			Port:                  3000,
			RequestTimeoutSeconds: 30,
			StatusPage:            true,
		},
		Line: LineConfig{
			WebhookPath: "/webhook",
			APIBase:     "https://api.line.me",
			DataAPIBase: "https://api-data.line.me",
		},
		Media: MediaConfig{
			Backend:       "local",
			Dir:           "./public",
			MaxBytes:      200 * 1024 * 1024,
			Retention:     "168h",
			SweepSchedule: "@every 1h",
			IndexPath:     "./public/.media.db",
			S3: S3Config{
				Region: "us-east-1",
			},
		},
		Emoji: EmojiConfig{
			Enabled: true,
		},
		Tunnel: TunnelConfig{
			Enabled: false,
			APIURL:  "http://127.0.0.1:4040/api/tunnels",
		},
		Events: EventsConfig{
			Subject: "line2discord.relayed",
		},
		Metrics: MetricsConfig{
			Enabled:  true,
			Endpoint: "/metrics",
		},
	}
}
