package line

import (
	"context"
	"log/slog"
	"net/url"

	"line2discord/internal/domain"
	"line2discord/internal/metrics"
)

// DefaultAvatarURL is used when a sender has no usable profile picture.
const DefaultAvatarURL = "https://storage.googleapis.com/gweb-uniblog-publish-prod/images/logo_line_blogheader.max-1300x1300.png"

const fallbackName = "LINE user"

// ProfileLookup fetches a LINE profile. *Client satisfies it.
type ProfileLookup interface {
	Profile(ctx context.Context, userID string, source domain.Source) (*Profile, error)
}

type ProfileResolverConfig struct {
	Lookup ProfileLookup
	Logger *slog.Logger
}

// ProfileResolver turns a sender ID into the identity shown on Discord.
type ProfileResolver struct {
	lookup ProfileLookup
	logger *slog.Logger
}

func NewProfileResolver(cfg ProfileResolverConfig) *ProfileResolver {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &ProfileResolver{lookup: cfg.Lookup, logger: cfg.Logger}
}

// Resolve never fails. Lookup errors and missing fields are replaced by the
// fallback identity.
func (r *ProfileResolver) Resolve(ctx context.Context, senderID string, source domain.Source) domain.SenderIdentity {
	fallback := FallbackIdentity(senderID)
	if senderID == "" || r.lookup == nil {
		return fallback
	}

	p, err := r.lookup.Profile(ctx, senderID, source)
	if err != nil {
		metrics.ProfileFallbacks.Inc()
		r.logger.Warn("profile lookup failed, using fallback identity",
			"user", senderID, "source", source.Kind, "err", err)
		return fallback
	}

	id := domain.SenderIdentity{
		DisplayName: p.DisplayName,
		AvatarURL:   NormalizeAvatarURL(p.PictureURL),
	}
	if id.DisplayName == "" {
		id.DisplayName = fallback.DisplayName
	}
	return id
}

// FallbackIdentity is the identity used when no profile is available:
// "LINE user" plus the last four characters of the sender ID.
func FallbackIdentity(senderID string) domain.SenderIdentity {
	name := fallbackName
	if senderID != "" {
		suffix := senderID
		if r := []rune(senderID); len(r) > 4 {
			suffix = string(r[len(r)-4:])
		}
		name += " " + suffix
	}
	return domain.SenderIdentity{DisplayName: name, AvatarURL: DefaultAvatarURL}
}

// NormalizeAvatarURL upgrades http:// picture URLs to https:// and replaces
// missing or malformed values with DefaultAvatarURL.
func NormalizeAvatarURL(raw string) string {
	if raw == "" {
		return DefaultAvatarURL
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return DefaultAvatarURL
	}
	switch u.Scheme {
	case "https":
	case "http":
		u.Scheme = "https"
	default:
		return DefaultAvatarURL
	}
	return u.String()
}
