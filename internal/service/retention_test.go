package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/campaign-dispatch/internal/model"
)

type staticLister struct {
	campaigns []*model.Campaign
	err       error
}

func (s *staticLister) ListByUser(ctx context.Context, userID int) ([]*model.Campaign, error) {
	return s.campaigns, s.err
}

type recordingPruner struct {
	ids [][]int
}

func (r *recordingPruner) DeleteByCampaignIDs(ctx context.Context, ids []int) (int64, error) {
	r.ids = append(r.ids, ids)
	return int64(len(ids) * 10), nil
}

func TestRetentionPolicy_Prune(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	at := func(h int) time.Time { return t0.Add(time.Duration(h) * time.Hour) }

	tests := []struct {
		name      string
		campaigns []*model.Campaign
		want      []int
	}{
		{
			name: "four or fewer",
			campaigns: []*model.Campaign{
				{ID: 1, Status: model.CampaignCompleted, CreatedAt: at(1)},
				{ID: 2, Status: model.CampaignCompleted, CreatedAt: at(2)},
			},
		},
		{
			name: "six completed, unordered input",
			campaigns: []*model.Campaign{
				{ID: 3, Status: model.CampaignCompleted, CreatedAt: at(3)},
				{ID: 1, Status: model.CampaignCompleted, CreatedAt: at(1)},
				{ID: 6, Status: model.CampaignCompleted, CreatedAt: at(6)},
				{ID: 2, Status: model.CampaignCompleted, CreatedAt: at(2)},
				{ID: 5, Status: model.CampaignCompleted, CreatedAt: at(5)},
				{ID: 4, Status: model.CampaignCompleted, CreatedAt: at(4)},
			},
			want: []int{2, 1},
		},
		{
			name: "equal timestamps fall back to id",
			campaigns: []*model.Campaign{
				{ID: 10, Status: model.CampaignCompleted, CreatedAt: at(1)},
				{ID: 11, Status: model.CampaignCompleted, CreatedAt: at(1)},
				{ID: 12, Status: model.CampaignCompleted, CreatedAt: at(1)},
				{ID: 13, Status: model.CampaignCompleted, CreatedAt: at(1)},
				{ID: 14, Status: model.CampaignCompleted, CreatedAt: at(1)},
			},
			want: []int{10},
		},
		{
			name: "active old campaigns keep their logs",
			campaigns: []*model.Campaign{
				{ID: 1, Status: model.CampaignPaused, CreatedAt: at(1)},
				{ID: 2, Status: model.CampaignRunning, CreatedAt: at(2)},
				{ID: 3, Status: model.CampaignCompleted, CreatedAt: at(3)},
				{ID: 4, Status: model.CampaignCompleted, CreatedAt: at(4)},
				{ID: 5, Status: model.CampaignCompleted, CreatedAt: at(5)},
				{ID: 6, Status: model.CampaignCompleted, CreatedAt: at(6)},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pruner := &recordingPruner{}
			p := NewRetentionPolicy(&staticLister{campaigns: tt.campaigns}, pruner, nil)

			deleted, err := p.Prune(context.Background(), 7)
			require.NoError(t, err)

			if tt.want == nil {
				assert.Zero(t, deleted)
				assert.Empty(t, pruner.ids)
				return
			}
			require.Len(t, pruner.ids, 1)
			assert.Equal(t, tt.want, pruner.ids[0])
			assert.Equal(t, int64(len(tt.want)*10), deleted)
		})
	}
}

func TestRetentionPolicy_ListError(t *testing.T) {
	p := NewRetentionPolicy(&staticLister{err: errors.New("timeout")}, &recordingPruner{}, nil)
	_, err := p.Prune(context.Background(), 1)
	assert.ErrorContains(t, err, "timeout")
}
