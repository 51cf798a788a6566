// internal/model/log_entry.go
package model

import "time"

type LogStatus string

const (
	LogSent      LogStatus = "SENT"
	LogFailed    LogStatus = "FAILED"
	LogPaused    LogStatus = "PAUSED"
	LogCompleted LogStatus = "COMPLETED"
)

// LogEntry is an append-only record of something that happened to a campaign.
type LogEntry struct {
	ID         int       `db:"id" json:"id"`
	CampaignID int       `db:"campaign_id" json:"campaign_id"`
	Status     LogStatus `db:"status" json:"status"`
	Message    string    `db:"message" json:"message"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
