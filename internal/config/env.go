package config

import (
	"errors"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// LoadDotEnv loads KEY=value pairs from the given files (default ".env")
// into the process environment. Missing files are not an error.
func LoadDotEnv(paths ...string) error {
	err := godotenv.Load(paths...)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// ApplyEnv overlays well-known environment variables on cfg. Values that are
// unset or empty leave the config untouched.
func ApplyEnv(cfg *Config) {
	v := viper.New()

	strs := map[string]*string{
		"LINE_CHANNEL_SECRET":       &cfg.Line.ChannelSecret,
		"LINE_CHANNEL_ACCESS_TOKEN": &cfg.Line.ChannelAccessToken,
		"WEBHOOK_PATH":              &cfg.Line.WebhookPath,
		"DISCORD_WEBHOOK_URL":       &cfg.Discord.WebhookURL,
		"BASE_URL":                  &cfg.Server.BaseURL,
		"LOG_LEVEL":                 &cfg.General.LogLevel,
		"MEDIA_DIR":                 &cfg.Media.Dir,
		"MEDIA_BACKEND":             &cfg.Media.Backend,
		"MEDIA_RETENTION":           &cfg.Media.Retention,
		"S3_BUCKET":                 &cfg.Media.S3.Bucket,
		"S3_REGION":                 &cfg.Media.S3.Region,
		"S3_ENDPOINT":               &cfg.Media.S3.Endpoint,
		"S3_PUBLIC_BASE_URL":        &cfg.Media.S3.PublicBaseURL,
		"NATS_URL":                  &cfg.Events.NATSURL,
		"EMOJI_TABLE":               &cfg.Emoji.TablePath,
	}
	for name, dst := range strs {
		_ = v.BindEnv(name)
		if v.IsSet(name) {
			*dst = v.GetString(name)
		}
	}

	ints := map[string]*int{
		"PORT": &cfg.Server.Port,
	}
	for name, dst := range ints {
		_ = v.BindEnv(name)
		if v.IsSet(name) {
			*dst = v.GetInt(name)
		}
	}

	bools := map[string]*bool{
		"LINE_INSECURE_SKIP_SIGNATURE": &cfg.Line.InsecureSkipSignature,
		"TUNNEL_ENABLED":               &cfg.Tunnel.Enabled,
		"EXPOSE_EVENTS":                &cfg.Server.ExposeEvents,
	}
	for name, dst := range bools {
		_ = v.BindEnv(name)
		if v.IsSet(name) {
			*dst = v.GetBool(name)
		}
	}
}
