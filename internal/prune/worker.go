package prune

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
)

// Pruner represents the retention behavior needed by the worker.
type Pruner interface {
	PruneRequestLogs(ctx context.Context, before time.Time) (int64, error)
}

// Start launches a periodic request-log retention worker.
func Start(ctx context.Context, logger *log.Logger, interval, retention time.Duration, pruner Pruner) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().UTC().Add(-retention)
			n, err := pruner.PruneRequestLogs(ctx, cutoff)
			if err != nil {
				logger.Warn("request log pruning failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("pruned old request log rows", "count", n, "cutoff", cutoff)
			}
		}
	}
}
