package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"line2discord/internal/config"
	"line2discord/internal/discord"
	"line2discord/internal/domain"
	"line2discord/internal/events"
	"line2discord/internal/httpclient"
	"line2discord/internal/line"
	"line2discord/internal/media"
	"line2discord/internal/publicurl"
	"line2discord/internal/relay"
	"line2discord/internal/server"
	"line2discord/internal/tunnel"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the webhook relay",
		Long:  "Listens for LINE webhooks and relays them to Discord. Press Ctrl+C to stop.",
		RunE:  runServe,
	}
}

// mediaBackend is a media store that can test its own writability.
type mediaBackend interface {
	domain.MediaStore
	CheckWritable(ctx context.Context) error
}

func openStore(ctx context.Context, cfg *config.Config, index *media.Index, log *slog.Logger) (mediaBackend, error) {
	switch cfg.Media.Backend {
	case media.BackendS3:
		s3cfg := cfg.Media.S3
		return media.NewS3Store(ctx, media.S3Config{
			Bucket:        s3cfg.Bucket,
			Region:        s3cfg.Region,
			Endpoint:      s3cfg.Endpoint,
			Prefix:        s3cfg.Prefix,
			PublicBaseURL: s3cfg.PublicBaseURL,
			MaxBytes:      cfg.Media.MaxBytes,
			Index:         index,
			Logger:        log,
		})
	default:
		return media.NewLocalStore(media.LocalConfig{
			Dir:      cfg.Media.Dir,
			MaxBytes: cfg.Media.MaxBytes,
			Index:    index,
			Logger:   log,
		})
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, logCloser, err := newLogger(cfg.General)
	if err != nil {
		return err
	}
	defer logCloser.Close()
	logger = log

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Line.InsecureSkipSignature {
		log.Warn("webhook signature verification is DISABLED; anyone can post to the webhook")
	}

	index, err := media.OpenIndex(cfg.Media.IndexPath, log)
	if err != nil {
		return fmt.Errorf("media index: %w", err)
	}
	defer index.Close()

	store, err := openStore(ctx, cfg, index, log)
	if err != nil {
		return fmt.Errorf("media store: %w", err)
	}
	if err := store.CheckWritable(ctx); err != nil {
		return fmt.Errorf("media storage self-test: %w", err)
	}
	log.Info("media storage ready", "backend", cfg.Media.Backend)

	httpClient := httpclient.Shared(time.Duration(cfg.Server.RequestTimeoutSeconds) * time.Second)
	lineClient := line.NewClient(line.ClientConfig{
		AccessToken:     cfg.Line.ChannelAccessToken,
		APIBase:         cfg.Line.APIBase,
		DataAPIBase:     cfg.Line.DataAPIBase,
		MaxContentBytes: cfg.Media.MaxBytes,
		HTTPClient:      httpClient,
		Logger:          log,
	})

	var emoji relay.EmojiTable
	if cfg.Emoji.Enabled {
		if emoji, err = relay.LoadEmojiTable(cfg.Emoji.TablePath, log); err != nil {
			return err
		}
	}

	urls := publicurl.NewResolver(cfg.Server.BaseURL)

	history := events.NewHistory(events.DefaultHistorySize, log)
	publishers := events.Fanout{history}
	if cfg.Events.NATSURL != "" {
		nats, err := events.NewNATSPublisher(cfg.Events.NATSURL, log)
		if err != nil {
			return err
		}
		publishers = append(publishers, nats)
	}
	defer publishers.Close()

	translator := relay.NewTranslator(relay.TranslatorConfig{
		Fetcher: lineClient,
		Store:   store,
		URLs:    urls,
		Emoji:   emoji,
		Logger:  log,
	})
	rl := relay.New(relay.RelayConfig{
		Profiles:   line.NewProfileResolver(line.ProfileResolverConfig{Lookup: lineClient, Logger: log}),
		Translator: translator,
		Sender:     discord.NewSender(discord.SenderConfig{WebhookURL: cfg.Discord.WebhookURL, HTTPClient: httpClient, Logger: log}),
		Publisher:  publishers,
		Subject:    cfg.Events.Subject,
		Logger:     log,
	})

	srvCfg := server.Config{
		Host:                   cfg.Server.Host,
		Port:                   cfg.Server.Port,
		WebhookPath:            cfg.Line.WebhookPath,
		ChannelSecret:          cfg.Line.ChannelSecret,
		SkipSignature:          cfg.Line.InsecureSkipSignature,
		RejectInvalidSignature: cfg.Line.RejectInvalidSignature,
		Relay:                  rl,
		MediaStats:             index,
		URLs:                   urls,
		History:                history,
		StatusPage:             cfg.Server.StatusPage,
		ExposeEvents:           cfg.Server.ExposeEvents,
		Version:                version,
		Logger:                 log,
	}
	if cfg.Media.Backend != media.BackendS3 {
		srvCfg.MediaDir = cfg.Media.Dir
	}
	if cfg.Metrics.Enabled {
		srvCfg.MetricsPath = cfg.Metrics.Endpoint
	}
	srv := server.New(srvCfg)

	janitor := media.NewJanitor(media.JanitorConfig{
		Store:     store,
		Index:     index,
		Retention: cfg.Media.RetentionDuration(),
		Logger:    log,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	g.Go(func() error { return janitor.Run(gctx, cfg.Media.SweepSchedule) })

	if cfg.Tunnel.Enabled && cfg.Server.BaseURL == "" {
		g.Go(func() error {
			d := tunnel.NewDiscoverer(tunnel.DiscovererConfig{APIURL: cfg.Tunnel.APIURL, Logger: log})
			u, err := d.Discover(gctx, urls)
			if err != nil {
				if gctx.Err() == nil {
					log.Warn("no tunnel found; media links will use the request host", "err", err)
				}
				return nil
			}
			log.Info("register this webhook URL in the LINE console", "url", u+cfg.Line.WebhookPath)
			return nil
		})
	} else if cfg.Server.BaseURL != "" {
		log.Info("webhook URL", "url", cfg.Server.BaseURL+cfg.Line.WebhookPath)
	}

	log.Info("line2discord started. Press Ctrl+C to stop.", "version", version, "addr", srv.Addr())
	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("shutdown complete")
	return nil
}
