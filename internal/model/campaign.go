// internal/model/campaign.go
package model

import "time"

type CampaignStatus string

const (
	CampaignRunning   CampaignStatus = "RUNNING"
	CampaignPaused    CampaignStatus = "PAUSED"
	CampaignCompleted CampaignStatus = "COMPLETED"
)

type Campaign struct {
	ID        int            `db:"id" json:"id"`
	UserID    int            `db:"user_id" json:"user_id"`
	Name      string         `db:"name" json:"name"`
	Status    CampaignStatus `db:"status" json:"status"`
	SentCount int            `db:"sent_count" json:"sent_count"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt *time.Time     `db:"updated_at" json:"updated_at,omitempty"`
}

// Valid reports whether s is one of the known campaign states.
func (s CampaignStatus) Valid() bool {
	switch s {
	case CampaignRunning, CampaignPaused, CampaignCompleted:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed out of s.
func (s CampaignStatus) Terminal() bool {
	return s == CampaignCompleted
}

// CanTransition reports whether a campaign may move from one status to another.
// Staying in the same non-terminal state is allowed.
func CanTransition(from, to CampaignStatus) bool {
	if !from.Valid() || !to.Valid() || from.Terminal() {
		return false
	}
	if from == to {
		return true
	}
	switch from {
	case CampaignRunning:
		return to == CampaignPaused || to == CampaignCompleted
	case CampaignPaused:
		return to == CampaignRunning
	}
	return false
}

// SourcesFor lists the statuses a campaign may be in for a write of to to be legal.
func SourcesFor(to CampaignStatus) []CampaignStatus {
	var out []CampaignStatus
	for _, from := range []CampaignStatus{CampaignRunning, CampaignPaused, CampaignCompleted} {
		if CanTransition(from, to) {
			out = append(out, from)
		}
	}
	return out
}
