package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	appErrors "github.com/unclebandit/campaign-dispatch/internal/errors"
	"github.com/unclebandit/campaign-dispatch/internal/model"
	"github.com/unclebandit/campaign-dispatch/internal/pkg/logger"
)

// Handler processes one delivered job. Returning nil acknowledges it.
type Handler func(ctx context.Context, job model.Job) error

// Enqueuer is the producing half of a Queue.
type Enqueuer interface {
	// Enqueue schedules job for delivery once delay has elapsed.
	// A zero or negative delay makes it available immediately.
	Enqueue(ctx context.Context, job model.Job, delay time.Duration) error
}

// Queue delivers jobs at least once. Subscribe starts delivery to handler
// and returns; delivery stops when ctx is cancelled. Close waits for
// in-flight handlers, so cancel the subscription first.
type Queue interface {
	Enqueuer
	Subscribe(ctx context.Context, handler Handler) error
	Close() error
}

// ErrClosed is returned by Enqueue after Close.
var ErrClosed = errors.New("queue closed")

// RetryPolicy decides what happens to a job whose handler failed.
type RetryPolicy struct {
	MaxRetries   int
	RetryBackoff time.Duration // multiplied by the attempt number
	BusyDelay    time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:   3,
		RetryBackoff: 500 * time.Millisecond,
		BusyDelay:    30 * time.Second,
	}
}

type action int

const (
	actionAck action = iota
	actionDrop
	actionRetry
	actionBusy
)

// decide maps a handler result to an action and the delay before redelivery.
// retries is the number of retries already made for this job.
func (p RetryPolicy) decide(err error, retries int) (action, time.Duration) {
	switch {
	case err == nil:
		return actionAck, 0
	case errors.Is(err, appErrors.ErrCampaignBusy):
		return actionBusy, p.BusyDelay
	case appErrors.IsPermanent(err):
		return actionDrop, 0
	case retries >= p.MaxRetries:
		return actionDrop, 0
	}
	return actionRetry, time.Duration(retries+1) * p.RetryBackoff
}

func logFailure(l *slog.Logger, job model.Job, retries int, err error) {
	l.Error("job permanently failed",
		"campaign_id", job.CampaignID,
		"cursor", job.Cursor,
		"leads", len(job.Leads),
		"retries", retries,
		"error", err,
	)
}

type delivery struct {
	job     model.Job
	retries int
}

// InMemoryQueue runs jobs in-process: delays are timers and each delivery
// gets its own goroutine. Nothing survives a restart.
type InMemoryQueue struct {
	Policy RetryPolicy
	logger *slog.Logger

	mu      sync.Mutex
	ctx     context.Context
	handler Handler
	pending []delivery
	timers  map[*time.Timer]struct{}
	closed  bool
	wg      sync.WaitGroup
}

func NewInMemoryQueue(l *slog.Logger) *InMemoryQueue {
	if l == nil {
		l = logger.Discard()
	}
	return &InMemoryQueue{
		Policy: DefaultRetryPolicy(),
		logger: l,
		timers: make(map[*time.Timer]struct{}),
	}
}

func (q *InMemoryQueue) Enqueue(ctx context.Context, job model.Job, delay time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return q.schedule(delivery{job: job}, delay)
}

// Subscribe sets the single handler. Jobs enqueued earlier are delivered now.
func (q *InMemoryQueue) Subscribe(ctx context.Context, handler Handler) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	if q.handler != nil {
		return fmt.Errorf("queue already has a subscriber")
	}
	q.ctx = ctx
	q.handler = handler
	for _, d := range q.pending {
		q.startLocked(d)
	}
	q.pending = nil
	return nil
}

func (q *InMemoryQueue) schedule(d delivery, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	if delay <= 0 {
		q.deliverLocked(d)
		return nil
	}
	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		if _, ok := q.timers[t]; !ok {
			return
		}
		delete(q.timers, t)
		q.deliverLocked(d)
	})
	q.timers[t] = struct{}{}
	return nil
}

func (q *InMemoryQueue) deliverLocked(d delivery) {
	if q.handler == nil {
		q.pending = append(q.pending, d)
		return
	}
	q.startLocked(d)
}

func (q *InMemoryQueue) startLocked(d delivery) {
	if q.ctx.Err() != nil {
		q.logger.Warn("subscription cancelled, dropping job", "campaign_id", d.job.CampaignID)
		return
	}
	q.wg.Add(1)
	go q.process(q.ctx, q.handler, d)
}

func (q *InMemoryQueue) process(ctx context.Context, handler Handler, d delivery) {
	defer q.wg.Done()

	err := handler(ctx, d.job)
	act, delay := q.Policy.decide(err, d.retries)
	switch act {
	case actionAck:
		q.logger.Debug("job processed", "campaign_id", d.job.CampaignID)
		return
	case actionDrop:
		logFailure(q.logger, d.job, d.retries, err)
		return
	case actionRetry:
		d.retries++
		q.logger.Warn("job failed, retrying",
			"campaign_id", d.job.CampaignID,
			"attempt", d.retries,
			"max_retries", q.Policy.MaxRetries,
			"error", err,
		)
	case actionBusy:
		q.logger.Info("campaign busy, requeueing", "campaign_id", d.job.CampaignID, "delay", delay)
	}
	if err := q.schedule(d, delay); err != nil {
		logFailure(q.logger, d.job, d.retries, err)
	}
}

// Scheduled returns the number of jobs waiting on a delay.
func (q *InMemoryQueue) Scheduled() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.timers)
}

// Close stops pending timers, drops undelivered jobs and waits for running handlers.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	for t := range q.timers {
		t.Stop()
	}
	dropped := len(q.timers) + len(q.pending)
	q.timers = map[*time.Timer]struct{}{}
	q.pending = nil
	q.mu.Unlock()

	if dropped > 0 {
		q.logger.Warn("in-memory queue closed with undelivered jobs", "count", dropped)
	}
	q.wg.Wait()
	return nil
}

var _ Queue = (*InMemoryQueue)(nil)
