// workers/pick_lock_worker.go
package workers

import (
	"context"
	"time"

	"setlist-survivor/logger"
)

// ShowLocker persists pick locks for shows whose deadline has passed.
type ShowLocker interface {
	LockExpiredShows(ctx context.Context) (int, error)
}

type PickLockWorker struct {
	locker   ShowLocker
	interval time.Duration
	log      *logger.Logger
}

func NewPickLockWorker(locker ShowLocker, interval time.Duration, log *logger.Logger) *PickLockWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &PickLockWorker{locker: locker, interval: interval, log: log}
}

func (w *PickLockWorker) Start(ctx context.Context) {
	w.log.Info("🔁 [LOCK_WORKER] starting pick lock worker", "interval", w.interval.String())
	go w.run(ctx)
}

func (w *PickLockWorker) run(ctx context.Context) {
	w.tick(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.tick(ctx)
		case <-ctx.Done():
			w.log.Info("⏹️ [LOCK_WORKER] pick lock worker stopped")
			return
		}
	}
}

func (w *PickLockWorker) tick(ctx context.Context) {
	locked, err := w.locker.LockExpiredShows(ctx)
	if err != nil {
		if ctx.Err() == nil {
			w.log.Error("❌ [LOCK_WORKER] lock pass failed", "error", err)
		}
		return
	}
	if locked > 0 {
		w.log.Info("[LOCK_WORKER] shows locked", "count", locked)
	}
}
