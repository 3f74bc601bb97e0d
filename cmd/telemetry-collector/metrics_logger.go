package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/RogerSalama/TinyTelemetry/internal/metrics"
)

func startMetricsLogger(ctx context.Context, interval time.Duration, l *slog.Logger, wg *sync.WaitGroup) {
	if interval <= 0 {
		return
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				snap := metrics.Snap()
				l.Info("metrics_snapshot",
					"accepted", snap.Accepted,
					"corrupt", snap.Corrupt,
					"malformed", snap.Malformed,
					"duplicate", snap.Duplicate,
					"gaps", snap.Gaps,
					"nacks_sent", snap.NacksSent,
					"reorder_out", snap.ReorderOut,
					"errors", snap.Errors,
				)
			case <-ctx.Done():
				return
			}
		}
	}()
}
