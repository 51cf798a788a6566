package service

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/unclebandit/campaign-dispatch/internal/model"
	"github.com/unclebandit/campaign-dispatch/internal/pkg/logger"
)

// DefaultRetainedCampaigns is how many of a user's newest campaigns keep their logs.
const DefaultRetainedCampaigns = 4

type CampaignLister interface {
	ListByUser(ctx context.Context, userID int) ([]*model.Campaign, error)
}

type LogPruner interface {
	DeleteByCampaignIDs(ctx context.Context, campaignIDs []int) (int64, error)
}

// RetentionPolicy bounds log storage per user. Logs of the Keep most
// recently created campaigns are kept; logs of older campaigns are deleted
// once those campaigns are COMPLETED.
type RetentionPolicy struct {
	Campaigns CampaignLister
	Logs      LogPruner
	Keep      int
	Logger    *slog.Logger
}

func NewRetentionPolicy(campaigns CampaignLister, logs LogPruner, l *slog.Logger) *RetentionPolicy {
	if l == nil {
		l = logger.Discard()
	}
	return &RetentionPolicy{Campaigns: campaigns, Logs: logs, Keep: DefaultRetainedCampaigns, Logger: l}
}

// Prune deletes logs of userID's older completed campaigns and returns the
// number of rows removed.
func (p *RetentionPolicy) Prune(ctx context.Context, userID int) (int64, error) {
	campaigns, err := p.Campaigns.ListByUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("list campaigns for user %d: %w", userID, err)
	}

	// newest first; id breaks ties between equal timestamps
	campaigns = slices.Clone(campaigns)
	slices.SortStableFunc(campaigns, func(a, b *model.Campaign) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})

	keep := max(p.Keep, 0)
	if len(campaigns) <= keep {
		return 0, nil
	}

	var ids []int
	for _, c := range campaigns[keep:] {
		if c.Status != model.CampaignCompleted {
			p.Logger.Debug("retention skipping active campaign", "campaign_id", c.ID, "status", c.Status)
			continue
		}
		ids = append(ids, c.ID)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	deleted, err := p.Logs.DeleteByCampaignIDs(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("delete logs for %d campaigns: %w", len(ids), err)
	}
	return deleted, nil
}
