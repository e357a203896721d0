package media

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"line2discord/internal/domain"
	"line2discord/internal/metrics"
)

type JanitorConfig struct {
	Store     domain.MediaStore
	Index     *Index
	Retention time.Duration // 0 disables expiry
	Logger    *slog.Logger
	Now       func() time.Time
}

// Janitor deletes stored media older than the retention period.
type Janitor struct {
	store     domain.MediaStore
	index     *Index
	retention time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

func NewJanitor(cfg JanitorConfig) *Janitor {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Janitor{
		store:     cfg.Store,
		index:     cfg.Index,
		retention: cfg.Retention,
		logger:    cfg.Logger,
		now:       cfg.Now,
	}
}

// SweepResult summarizes one retention pass.
type SweepResult struct {
	Deleted int
	Bytes   int64
	Failed  int
}

// Sweep deletes every indexed object older than the retention period.
// Entries whose deletion fails stay in the index and are retried next time.
func (j *Janitor) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	if j.retention <= 0 {
		return res, nil
	}

	cutoff := j.now().Add(-j.retention)
	expired, err := j.index.OlderThan(ctx, cutoff)
	if err != nil {
		return res, fmt.Errorf("list expired media: %w", err)
	}

	for _, m := range expired {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := j.store.Delete(ctx, m); err != nil {
			res.Failed++
			j.logger.Warn("media delete failed", "name", m.Name, "err", err)
			continue
		}
		if err := j.index.Remove(ctx, m.ID); err != nil {
			res.Failed++
			j.logger.Warn("media index remove failed", "name", m.Name, "err", err)
			continue
		}
		res.Deleted++
		res.Bytes += m.Size
		metrics.MediaExpired.Inc()
	}

	if res.Deleted > 0 || res.Failed > 0 {
		j.logger.Info("media sweep finished", "deleted", res.Deleted, "bytes", res.Bytes, "failed", res.Failed)
	}
	return res, nil
}

// Run sweeps on the given cron schedule until ctx is cancelled.
func (j *Janitor) Run(ctx context.Context, schedule string) error {
	if j.retention <= 0 {
		j.logger.Info("media retention disabled, janitor not started")
		<-ctx.Done()
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(schedule, func() {
		if _, err := j.Sweep(ctx); err != nil && ctx.Err() == nil {
			j.logger.Error("media sweep failed", "err", err)
		}
	}); err != nil {
		return fmt.Errorf("schedule media janitor: %w", err)
	}

	j.logger.Info("media janitor started", "schedule", schedule, "retention", j.retention)
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	j.logger.Info("media janitor stopped")
	return nil
}
