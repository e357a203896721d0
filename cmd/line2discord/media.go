package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"line2discord/internal/config"
	"line2discord/internal/media"
)

func mediaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "media",
		Short: "Inspect and expire stored media",
	}

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List stored media, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			index, err := media.OpenIndex(cfg.Media.IndexPath, logger)
			if err != nil {
				return err
			}
			defer index.Close()

			ctx := cmd.Context()
			items, err := index.List(ctx, limit)
			if err != nil {
				return fmt.Errorf("list media: %w", err)
			}
			count, total, err := index.Stats(ctx)
			if err != nil {
				return fmt.Errorf("media stats: %w", err)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "CREATED\tKIND\tSIZE\tBACKEND\tPATH")
			for _, m := range items {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", m.CreatedAt.Format(time.DateTime), m.Kind, m.Size, m.Backend, m.RelativePath)
			}
			w.Flush()
			fmt.Fprintf(cmd.OutOrStdout(), "\n%d files, %d bytes\n", count, total)
			return nil
		},
	}
	list.Flags().IntVarP(&limit, "limit", "n", 50, "maximum number of entries")

	var retention string
	prune := &cobra.Command{
		Use:   "prune",
		Short: "Delete media older than the retention period now",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			keep := cfg.Media.RetentionDuration()
			if retention != "" {
				if keep, err = time.ParseDuration(retention); err != nil {
					return fmt.Errorf("invalid --older-than: %w", err)
				}
			}
			if keep <= 0 {
				return fmt.Errorf("retention is disabled; pass --older-than")
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			index, err := media.OpenIndex(cfg.Media.IndexPath, logger)
			if err != nil {
				return err
			}
			defer index.Close()
			store, err := openStore(ctx, cfg, index, logger)
			if err != nil {
				return fmt.Errorf("media store: %w", err)
			}

			res, err := media.NewJanitor(media.JanitorConfig{
				Store:     store,
				Index:     index,
				Retention: keep,
				Logger:    logger,
			}).Sweep(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d files (%d bytes), %d failed\n", res.Deleted, res.Bytes, res.Failed)
			return nil
		},
	}
	prune.Flags().StringVar(&retention, "older-than", "", "override media.retention (e.g. 24h)")

	cmd.AddCommand(list, prune)
	return cmd
}
