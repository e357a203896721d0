package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"line2discord/internal/config"
	"line2discord/internal/discord"
	"line2discord/internal/httpclient"
	"line2discord/internal/line"
	"line2discord/internal/media"
	"line2discord/internal/tunnel"
)

func doctorCmd() *cobra.Command {
	var testDelivery bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your line2discord setup",
		Long: `Verifies configuration, media storage, the LINE channel and the Discord
webhook. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			fmt.Printf("line2discord doctor v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			passed := 0
			failed := 0
			warned := 0

			// 1. Config source
			if cfgPath == "" {
				printWarn("Config file", "none; using environment variables only")
				warned++
			} else {
				printPass("Config file", cfgPath)
				passed++
			}

			// 2. Config loads and validates
			cfg, err := config.Read(cfgPath)
			if err != nil {
				printFail("Config", err.Error())
				fmt.Printf("\nRun 'line2discord init' to create a default configuration.\n")
				return fmt.Errorf("config could not be read")
			}
			if err := config.Validate(cfg); err != nil {
				printFail("Config validation", err.Error())
				failed++
			} else {
				printPass("Config validation", "valid")
				passed++
			}
			if cfg.Line.InsecureSkipSignature {
				printWarn("Signature check", "disabled (line.insecureSkipSignature)")
				warned++
			}

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			client := httpclient.Shared(10 * time.Second)

			// 3. Media index and storage
			index, err := media.OpenIndex(cfg.Media.IndexPath, logger)
			if err != nil {
				printFail("Media index", err.Error())
				failed++
			} else {
				defer index.Close()
				count, size, _ := index.Stats(ctx)
				printPass("Media index", fmt.Sprintf("%s (%d files, %d bytes)", cfg.Media.IndexPath, count, size))
				passed++

				if store, err := openStore(ctx, cfg, index, logger); err != nil {
					printFail("Media storage", err.Error())
					failed++
				} else if err := store.CheckWritable(ctx); err != nil {
					printFail("Media storage", err.Error())
					failed++
				} else {
					printPass("Media storage", cfg.Media.Backend+" writable")
					passed++
				}
			}

			// 4. Listen port
			if err := checkPort(cfg.Server.Host, cfg.Server.Port); err != nil {
				printWarn("Listen port", fmt.Sprintf("port %d may be in use: %v", cfg.Server.Port, err))
				warned++
			} else {
				printPass("Listen port", fmt.Sprintf(":%d available", cfg.Server.Port))
				passed++
			}

			// 5. LINE channel
			if cfg.Line.ChannelAccessToken == "" {
				printFail("LINE channel", "no access token")
				failed++
			} else {
				lc := line.NewClient(line.ClientConfig{
					AccessToken: cfg.Line.ChannelAccessToken,
					APIBase:     cfg.Line.APIBase,
					DataAPIBase: cfg.Line.DataAPIBase,
					HTTPClient:  client,
					Logger:      logger,
				})
				ep, err := lc.GetWebhookEndpoint(ctx)
				switch {
				case err != nil:
					printFail("LINE channel", err.Error())
					failed++
				case ep.Endpoint == "":
					printWarn("LINE webhook", "no webhook URL registered")
					warned++
				case !ep.Active:
					printWarn("LINE webhook", ep.Endpoint+" (webhook usage is turned off)")
					warned++
				default:
					printPass("LINE webhook", ep.Endpoint)
					passed++
				}

				if err == nil && testDelivery && ep.Endpoint != "" {
					res, err := lc.TestWebhookEndpoint(ctx, "")
					switch {
					case err != nil:
						printFail("LINE test delivery", err.Error())
						failed++
					case !res.Success:
						printFail("LINE test delivery", fmt.Sprintf("status %d: %s %s", res.StatusCode, res.Reason, res.Detail))
						failed++
					default:
						printPass("LINE test delivery", fmt.Sprintf("status %d", res.StatusCode))
						passed++
					}
				}
			}

			// 6. Discord webhook
			if cfg.Discord.WebhookURL == "" {
				printFail("Discord webhook", "not configured")
				failed++
			} else {
				wh, err := discord.NewSender(discord.SenderConfig{WebhookURL: cfg.Discord.WebhookURL, HTTPClient: client, Logger: logger}).Info(ctx)
				if err != nil {
					printFail("Discord webhook", err.Error())
					failed++
				} else {
					printPass("Discord webhook", fmt.Sprintf("%q in channel %s", wh.Name, wh.ChannelID))
					passed++
				}
			}

			// 7. Public URL
			switch {
			case cfg.Server.BaseURL != "":
				printPass("Public URL", cfg.Server.BaseURL)
				passed++
			case cfg.Tunnel.Enabled:
				u, err := tunnel.NewDiscoverer(tunnel.DiscovererConfig{APIURL: cfg.Tunnel.APIURL, HTTPClient: client, Logger: logger}).Lookup(ctx)
				if err != nil {
					printWarn("Public URL", "tunnel enabled but not found: "+err.Error())
					warned++
				} else {
					printPass("Public URL", u+" (ngrok)")
					passed++
				}
			case cfg.Media.Backend == media.BackendS3:
				printPass("Public URL", "media served from "+cfg.Media.S3.PublicBaseURL)
				passed++
			default:
				printWarn("Public URL", "no baseUrl or tunnel; media links will use the request host")
				warned++
			}

			// 8. Log file writable
			if cfg.General.LogFile != "" {
				if _, closer, err := newLogger(cfg.General); err != nil {
					printWarn("Log file", err.Error())
					warned++
				} else {
					closer.Close()
					printPass("Log file", cfg.General.LogFile)
					passed++
				}
			}

			// Summary
			fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
			fmt.Printf("Results: %d passed, %d warnings, %d failed\n", passed, warned, failed)
			if failed > 0 {
				fmt.Printf("\nPlease fix the failed checks before running line2discord.\n")
				return fmt.Errorf("%d check(s) failed", failed)
			}
			if warned > 0 {
				fmt.Printf("\nline2discord should work but consider fixing the warnings.\n")
			} else {
				fmt.Printf("\nAll checks passed! line2discord is ready to run.\n")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&testDelivery, "test-delivery", false, "ask LINE to send a test event to the registered webhook URL")
	return cmd
}

func checkPort(host string, port int) error {
	ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return err
	}
	ln.Close()
	return nil
}

func printPass(check, detail string) {
	fmt.Fprintf(os.Stdout, "  [PASS] %-20s %s\n", check, detail)
}

func printFail(check, detail string) {
	fmt.Fprintf(os.Stdout, "  [FAIL] %-20s %s\n", check, detail)
}

func printWarn(check, detail string) {
	fmt.Fprintf(os.Stdout, "  [WARN] %-20s %s\n", check, detail)
}
