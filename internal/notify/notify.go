// Package notify reports campaign milestones to the campaign owner.
// Delivery is best effort: callers log a failed notification and move on.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/unclebandit/campaign-dispatch/internal/model"
	"github.com/unclebandit/campaign-dispatch/internal/pkg/logger"
)

const (
	SubjectPaused    = "Daily Limit Reached — Campaign Paused"
	SubjectCompleted = "Campaign Completed"
)

type Notifier interface {
	Notify(ctx context.Context, user *model.User, subject, body string) error
}

// PausedBody is the report sent when a campaign is paused until resumeAt.
func PausedBody(resumeAt time.Time) string {
	return "Paused. Will resume at " + resumeAt.UTC().Format(time.RFC3339)
}

// CompletedBody is the report sent when every lead of a campaign was attempted.
func CompletedBody(campaignID int) string {
	return fmt.Sprintf("Campaign %d completed successfully.", campaignID)
}

// LogNotifier writes the report to the structured log instead of mailing it.
type LogNotifier struct {
	Logger *slog.Logger
}

func NewLogNotifier(l *slog.Logger) *LogNotifier {
	if l == nil {
		l = logger.Discard()
	}
	return &LogNotifier{Logger: l}
}

func (n *LogNotifier) Notify(ctx context.Context, user *model.User, subject, body string) error {
	n.Logger.InfoContext(ctx, "report",
		"user_id", user.ID,
		"email", user.Email,
		"subject", subject,
		"body", body,
	)
	return nil
}

var _ Notifier = (*LogNotifier)(nil)
