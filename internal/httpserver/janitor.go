package httpserver

import (
	"context"
	"log/slog"
	"time"

	"pastebin-lite/internal/clock"
	"pastebin-lite/internal/storage"
)

// StartJanitor launches a background janitor that reclaims pastes which can
// no longer be served. It is a storage backstop only; reads enforce expiry
// on their own. Wall-clock time is always used, never a request override.
func StartJanitor(ctx context.Context, store storage.Store, interval time.Duration, clk *clock.Clock, logger *slog.Logger) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cleanOnce(ctx, store, clk, logger)
			}
		}
	}()
}

func cleanOnce(ctx context.Context, store storage.Store, clk *clock.Clock, logger *slog.Logger) int {
	c, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	removed, err := store.DeleteExpired(c, clk.Now())
	if err != nil {
		if logger != nil {
			logger.Error("janitor error", "error", err)
		}
		return 0
	}
	if removed > 0 && logger != nil {
		logger.Info("janitor removed dead pastes", "count", removed)
	}
	return removed
}
