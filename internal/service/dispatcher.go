// internal/service/dispatcher.go
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	appErrors "github.com/unclebandit/campaign-dispatch/internal/errors"
	"github.com/unclebandit/campaign-dispatch/internal/gateway"
	"github.com/unclebandit/campaign-dispatch/internal/model"
	"github.com/unclebandit/campaign-dispatch/internal/notify"
	"github.com/unclebandit/campaign-dispatch/internal/pkg/logger"
	"github.com/unclebandit/campaign-dispatch/internal/queue"
)

// DefaultPauseDelay is how long a rate-limited campaign waits before its
// remaining leads are delivered again.
const DefaultPauseDelay = 24 * time.Hour

// CampaignStore is the part of the campaign repository the dispatcher uses.
type CampaignStore interface {
	GetByID(ctx context.Context, id int) (*model.Campaign, error)
	UpdateStatus(ctx context.Context, id int, status model.CampaignStatus) error
	IncrementSentCount(ctx context.Context, id, n int) error
	ListByUser(ctx context.Context, userID int) ([]*model.Campaign, error)
}

type UserStore interface {
	GetByID(ctx context.Context, id int) (*model.User, error)
}

type LogStore interface {
	Create(ctx context.Context, campaignID int, status model.LogStatus, message string) error
	DeleteByCampaignIDs(ctx context.Context, campaignIDs []int) (int64, error)
}

// DispatchState is where a job ended up.
type DispatchState string

const (
	StateProcessing DispatchState = "PROCESSING"
	StatePaused     DispatchState = "PAUSED"
	StateCompleted  DispatchState = "COMPLETED"
	StateFailed     DispatchState = "FAILED"
)

// Result summarises one Process call. Remainder is set when the job paused.
type Result struct {
	State     DispatchState
	Sent      int
	Failed    int
	Remainder *model.Job
	ResumeAt  time.Time
}

// Dispatcher sends one job's leads in order and keeps the campaign's
// status, counter and log in step with what was actually sent.
type Dispatcher struct {
	Campaigns CampaignStore
	Users     UserStore
	Logs      LogStore
	Queue     queue.Enqueuer
	Gateway   gateway.Gateway
	Notifier  notify.Notifier
	Retention *RetentionPolicy
	Logger    *slog.Logger

	PauseDelay      time.Duration
	SendInterval    time.Duration // wait between consecutive sends, zero sends back to back
	EnqueueAttempts int
	EnqueueBackoff  time.Duration
	Now             func() time.Time
	Sleep           func(ctx context.Context, d time.Duration) error
}

func NewDispatcher(campaigns CampaignStore, users UserStore, logs LogStore, q queue.Enqueuer, gw gateway.Gateway, n notify.Notifier, l *slog.Logger) *Dispatcher {
	if l == nil {
		l = logger.Discard()
	}
	if n == nil {
		n = notify.NewLogNotifier(l)
	}
	return &Dispatcher{
		Campaigns:       campaigns,
		Users:           users,
		Logs:            logs,
		Queue:           q,
		Gateway:         gw,
		Notifier:        n,
		Retention:       NewRetentionPolicy(campaigns, logs, l),
		Logger:          l,
		PauseDelay:      DefaultPauseDelay,
		EnqueueAttempts: 3,
		EnqueueBackoff:  time.Second,
		Now:             time.Now,
		Sleep:           sleep,
	}
}

// Process runs job to a boundary: paused, completed or failed.
//
// Errors returned before the first send are safe to retry. Once sending has
// started a retry would repeat sends, so any error after that point is
// permanent.
func (d *Dispatcher) Process(ctx context.Context, job model.Job) (Result, error) {
	log := d.Logger.With("campaign_id", job.CampaignID, "cursor", job.Cursor)

	campaign, err := d.Campaigns.GetByID(ctx, job.CampaignID)
	if err != nil {
		return d.fail(err, "load campaign %d", job.CampaignID)
	}
	if campaign.Status == model.CampaignCompleted {
		log.Info("campaign already completed, skipping job")
		return Result{State: StateCompleted}, nil
	}
	if !campaign.Status.Valid() {
		return d.fail(appErrors.NewInvalidTransition(campaign.ID, string(campaign.Status), string(model.CampaignRunning)), "load campaign %d", campaign.ID)
	}

	user, err := d.Users.GetByID(ctx, campaign.UserID)
	if err != nil {
		return d.fail(err, "load user %d", campaign.UserID)
	}

	if campaign.Status == model.CampaignPaused {
		if err := d.transition(ctx, campaign, model.CampaignRunning); err != nil {
			return d.fail(err, "resume campaign %d", campaign.ID)
		}
		log.Info("campaign resumed", "leads", len(job.Leads))
	}

	res := Result{State: StateProcessing}
	msg := gateway.Message{
		Subject:      job.Subject,
		TemplateHTML: job.TemplateHTML,
		Attachments:  job.Attachments,
	}

	for i, lead := range job.Leads {
		if err := d.pace(ctx, i); err != nil {
			return d.interrupt(ctx, log, job, i, res, err)
		}

		out := d.Gateway.Send(ctx, user, lead, msg)
		switch out.Kind {
		case gateway.Success:
			res.Sent++
			if err := d.Campaigns.IncrementSentCount(ctx, campaign.ID, 1); err != nil {
				log.Error("failed to increment sent count", "lead", lead.Email, "error", err)
			}
			d.appendLog(ctx, log, campaign.ID, model.LogSent, "Sent to "+lead.Email)

		case gateway.RateLimited:
			log.Warn("send limit reached", "index", job.Cursor+i, "code", out.Code, "reason", out.Reason)
			return d.pause(ctx, log, user, campaign, job, i, res)

		default:
			res.Failed++
			log.Warn("send failed", "lead", lead.Email, "code", out.Code, "reason", out.Reason)
			d.appendLog(ctx, log, campaign.ID, model.LogFailed, fmt.Sprintf("Failed for %s: %s", lead.Email, out.Reason))
		}
	}

	return d.complete(ctx, log, user, campaign, res)
}

// transition writes a status change the state machine allows. The store
// checks again against the stored status.
func (d *Dispatcher) transition(ctx context.Context, c *model.Campaign, to model.CampaignStatus) error {
	if !model.CanTransition(c.Status, to) {
		return appErrors.NewInvalidTransition(c.ID, string(c.Status), string(to))
	}
	if err := d.Campaigns.UpdateStatus(ctx, c.ID, to); err != nil {
		return err
	}
	c.Status = to
	return nil
}

// pace waits SendInterval before every send but the first.
func (d *Dispatcher) pace(ctx context.Context, i int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if i == 0 || d.SendInterval <= 0 {
		return nil
	}
	if d.Sleep == nil {
		return sleep(ctx, d.SendInterval)
	}
	return d.Sleep(ctx, d.SendInterval)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// fail classifies an error raised before any send.
func (d *Dispatcher) fail(err error, format string, args ...any) (Result, error) {
	err = fmt.Errorf(format+": %w", append(args, err)...)
	if appErrors.IsNotFound(err) || appErrors.IsInvalidTransition(err) {
		err = appErrors.Permanent(err)
	}
	return Result{State: StateFailed}, err
}

// pause stops at lead index i of job and schedules the unsent tail.
func (d *Dispatcher) pause(ctx context.Context, log *slog.Logger, user *model.User, campaign *model.Campaign, job model.Job, i int, res Result) (Result, error) {
	rest := job.Remainder(i)
	resumeAt := d.Now().Add(d.PauseDelay)
	res.Remainder = &rest
	res.ResumeAt = resumeAt

	if err := d.transition(ctx, campaign, model.CampaignPaused); err != nil {
		// still reschedule: the resumed job sets RUNNING either way
		log.Error("failed to mark campaign paused", "error", err)
	}

	if err := d.enqueue(ctx, rest, d.PauseDelay); err != nil {
		res.State = StateFailed
		d.appendLog(ctx, log, job.CampaignID, model.LogPaused,
			fmt.Sprintf("Daily limit hit, campaign paused; rescheduling %d leads failed: %v", len(rest.Leads), err))
		d.notify(ctx, log, user, notify.SubjectPaused, notify.PausedBody(resumeAt))
		return res, appErrors.Permanent(fmt.Errorf("reschedule campaign %d: %w", job.CampaignID, err))
	}

	res.State = StatePaused
	d.appendLog(ctx, log, job.CampaignID, model.LogPaused,
		fmt.Sprintf("Daily limit hit, campaign paused and rescheduled (%d leads from position %d)", len(rest.Leads), rest.Cursor))
	d.notify(ctx, log, user, notify.SubjectPaused, notify.PausedBody(resumeAt))
	log.Info("campaign paused", "sent", res.Sent, "remaining", len(rest.Leads), "resume_at", resumeAt)
	return res, nil
}

// interrupt hands the unsent tail back to the queue, undelayed, when ctx is
// cancelled between sends. The campaign stays RUNNING.
func (d *Dispatcher) interrupt(ctx context.Context, log *slog.Logger, job model.Job, i int, res Result, cause error) (Result, error) {
	rest := job.Remainder(i)
	res.Remainder = &rest
	if err := d.enqueue(context.WithoutCancel(ctx), rest, 0); err != nil {
		res.State = StateFailed
		return res, appErrors.Permanent(fmt.Errorf("requeue campaign %d after %v: %w", job.CampaignID, cause, err))
	}
	res.State = StateProcessing
	log.Warn("send loop interrupted, remainder requeued", "remaining", len(rest.Leads), "from", rest.Cursor, "error", cause)
	return res, nil
}

func (d *Dispatcher) complete(ctx context.Context, log *slog.Logger, user *model.User, campaign *model.Campaign, res Result) (Result, error) {
	campaignID := campaign.ID
	if err := d.transition(ctx, campaign, model.CampaignCompleted); err != nil {
		res.State = StateFailed
		return res, appErrors.Permanent(fmt.Errorf("complete campaign %d: %w", campaignID, err))
	}
	res.State = StateCompleted
	d.appendLog(ctx, log, campaignID, model.LogCompleted, fmt.Sprintf("Campaign %d completed", campaignID))
	d.notify(ctx, log, user, notify.SubjectCompleted, notify.CompletedBody(campaignID))
	d.prune(ctx, log, user.ID)
	log.Info("campaign completed", "sent", res.Sent, "failed", res.Failed)
	return res, nil
}

func (d *Dispatcher) enqueue(ctx context.Context, job model.Job, delay time.Duration) error {
	attempts := d.EnqueueAttempts
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = d.Queue.Enqueue(ctx, job, delay); err == nil {
			return nil
		}
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * d.EnqueueBackoff):
		}
	}
	return err
}

// appendLog records a log entry. A failed write is reported and dropped.
func (d *Dispatcher) appendLog(ctx context.Context, log *slog.Logger, campaignID int, status model.LogStatus, message string) {
	if err := d.Logs.Create(ctx, campaignID, status, message); err != nil {
		log.Error("failed to write campaign log", "status", status, "error", err)
	}
}

// notify and prune are best effort: their errors are logged and never returned.
func (d *Dispatcher) notify(ctx context.Context, log *slog.Logger, user *model.User, subject, body string) {
	if d.Notifier == nil {
		return
	}
	if err := d.Notifier.Notify(ctx, user, subject, body); err != nil {
		log.Warn("notification failed", "subject", subject, "error", err)
	}
}

func (d *Dispatcher) prune(ctx context.Context, log *slog.Logger, userID int) {
	if d.Retention == nil {
		return
	}
	deleted, err := d.Retention.Prune(ctx, userID)
	if err != nil {
		log.Warn("log retention failed", "user_id", userID, "error", err)
		return
	}
	if deleted > 0 {
		log.Info("old campaign logs pruned", "user_id", userID, "deleted", deleted)
	}
}
