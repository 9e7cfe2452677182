package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/neopharm/pharmacy/internal/service"
	"github.com/neopharm/pharmacy/pkg/logging"
)

// Zeroer is satisfied by *service.DrugService.
type Zeroer interface {
	ZeroExpired(ctx context.Context, dryRun bool) ([]service.ExpiredItem, error)
}

// ExpiryWorker periodically zeroes the stock of expired drugs.
type ExpiryWorker struct {
	drugs    Zeroer
	interval time.Duration
}

func NewExpiryWorker(drugs Zeroer, interval time.Duration) *ExpiryWorker {
	return &ExpiryWorker{drugs: drugs, interval: interval}
}

// Start runs once immediately, then on every tick until ctx is cancelled.
func (w *ExpiryWorker) Start(ctx context.Context) {
	l := logging.FromContext(ctx).With("worker", "expiry")
	l.Info("expiry_worker_started", "interval", w.interval)

	w.run(ctx, l)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.run(ctx, l)
		case <-ctx.Done():
			l.Info("expiry_worker_stopped")
			return
		}
	}
}

func (w *ExpiryWorker) run(ctx context.Context, l *slog.Logger) {
	start := time.Now()
	items, err := w.drugs.ZeroExpired(ctx, false)
	if err != nil {
		l.Error("expiry_check_failed", "error", err)
		return
	}
	l.Info("expiry_check_done", "zeroed", len(items), "duration", time.Since(start))
}
