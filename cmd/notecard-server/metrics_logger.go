package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kstaniek/go-notecard-server/internal/metrics"
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
				logSnapshot(l, metrics.Snap())
			case <-ctx.Done():
				return
			}
		}
	}()
}

func logSnapshot(l *slog.Logger, snap metrics.Snapshot) {
	l.Info("metrics_snapshot",
		"transactions", snap.Transactions,
		"resets", snap.Resets,
		"reset_attempts", snap.ResetAttempts,
		"synced", snap.Synced,
		"tx_bytes", snap.TxBytes,
		"tx_segments", snap.TxSegments,
		"rx_bytes", snap.RxBytes,
		"tcp_rx", snap.TCPRx,
		"tcp_tx", snap.TCPTx,
		"queue_drops", snap.QueueDrops,
		"hub_drops", snap.HubDrops,
		"hub_kicks", snap.HubKicks,
		"clients", snap.HubClients,
		"errors", snap.Errors,
	)
}
