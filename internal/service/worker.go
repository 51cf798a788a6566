package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	appErrors "github.com/unclebandit/campaign-dispatch/internal/errors"
	"github.com/unclebandit/campaign-dispatch/internal/model"
	"github.com/unclebandit/campaign-dispatch/internal/pkg/distlock"
	"github.com/unclebandit/campaign-dispatch/internal/pkg/logger"
	"github.com/unclebandit/campaign-dispatch/internal/queue"
)

// JobProcessor is implemented by Dispatcher.
type JobProcessor interface {
	Process(ctx context.Context, job model.Job) (Result, error)
}

// Worker consumes campaign jobs from the queue. At most one job per
// campaign runs at a time across all workers; a job that finds its
// campaign locked is handed back to the queue as busy.
type Worker struct {
	Processor JobProcessor
	Queue     queue.Queue
	Locks     distlock.Factory // nil disables locking
	LockTTL   time.Duration
	Logger    *slog.Logger
}

func NewWorker(p JobProcessor, q queue.Queue, locks distlock.Factory, lockTTL time.Duration, l *slog.Logger) *Worker {
	if l == nil {
		l = logger.Discard()
	}
	return &Worker{Processor: p, Queue: q, Locks: locks, LockTTL: lockTTL, Logger: l}
}

// Start subscribes to the queue. Jobs are delivered until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	return w.Queue.Subscribe(ctx, w.Handle)
}

// Handle processes one job. An accepted job is not interrupted by ctx
// cancellation; it runs until it pauses, completes or fails. Losing the
// campaign lock mid-job cancels the job so the dispatcher requeues its
// unsent leads.
func (w *Worker) Handle(ctx context.Context, job model.Job) error {
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()
	log := w.Logger.With("campaign_id", job.CampaignID, "cursor", job.Cursor)

	if w.Locks != nil {
		lock := w.Locks(campaignLockKey(job.CampaignID))
		ok, err := lock.Acquire(ctx)
		if err != nil {
			return fmt.Errorf("acquire campaign lock: %w", err)
		}
		if !ok {
			return appErrors.ErrCampaignBusy
		}
		defer func() {
			if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
				log.Warn("failed to release campaign lock", "error", err)
			}
		}()
		if ext, ok := lock.(distlock.Extender); ok && w.LockTTL > 0 {
			stop := w.keepAlive(ctx, log, ext, cancel)
			defer stop()
		}
	}

	start := time.Now()
	res, err := w.Processor.Process(ctx, job)
	attrs := []any{
		"state", res.State,
		"sent", res.Sent,
		"failed", res.Failed,
		"duration", time.Since(start),
	}
	if err != nil {
		log.Error("job failed", append(attrs, "error", err)...)
		return err
	}
	log.Info("job finished", attrs...)
	return nil
}

// keepAlive extends the lock at a third of its TTL until stop is called.
// A lock that is gone for good calls lost; transient errors are retried on
// the next tick.
func (w *Worker) keepAlive(ctx context.Context, log *slog.Logger, ext distlock.Extender, lost context.CancelFunc) (stop func()) {
	done := make(chan struct{})
	ticker := time.NewTicker(w.LockTTL / 3)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				err := ext.Extend(ctx, w.LockTTL)
				if errors.Is(err, distlock.ErrLockLost) {
					log.Error("campaign lock lost, stopping job", "error", err)
					lost()
					return
				}
				if err != nil {
					log.Warn("failed to extend campaign lock", "error", err)
				}
			}
		}
	}()
	return func() { close(done) }
}

func campaignLockKey(id int) string {
	return "campaign:" + strconv.Itoa(id)
}
