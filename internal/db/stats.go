package db

import (
	"context"
	"time"

	"github.com/atinyakov/kosync/internal/models"
	"go.uber.org/zap"
)

// StatsSource reports the size of a store.
type StatsSource interface {
	Stats(ctx context.Context) (models.Stats, error)
}

// StartStatsCollector samples src every interval and hands the result to
// sink until ctx is cancelled. Sampling errors are logged and the previous
// values are kept.
func StartStatsCollector(
	ctx context.Context,
	src StatsSource,
	interval time.Duration,
	sink func(models.Stats),
	log *zap.Logger,
) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				st, err := src.Stats(ctx)
				if err != nil {
					log.Error("failed to collect store stats", zap.Error(err))
					continue
				}
				sink(st)
				log.Debug("collected store stats",
					zap.Int64("users", st.Users), zap.Int64("records", st.Records))
			}
		}
	}()
}
