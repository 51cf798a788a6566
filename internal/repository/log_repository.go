package repository

import (
	"context"
	"database/sql"

	"github.com/lib/pq"

	"github.com/unclebandit/campaign-dispatch/internal/model"
)

type LogRepositoryInterface interface {
	Create(ctx context.Context, campaignID int, status model.LogStatus, message string) error
	ListByCampaign(ctx context.Context, campaignID int) ([]*model.LogEntry, error)
	CountByStatus(ctx context.Context, campaignID int) (map[model.LogStatus]int, error)
	DeleteByCampaignIDs(ctx context.Context, campaignIDs []int) (int64, error)
}

// LogRepository stores campaign log entries. Entries are never updated.
type LogRepository struct {
	DB *sql.DB
}

func (r *LogRepository) Create(ctx context.Context, campaignID int, status model.LogStatus, message string) error {
	query := `INSERT INTO logs (campaign_id, status, message, created_at) VALUES ($1, $2, $3, NOW())`
	_, err := r.DB.ExecContext(ctx, query, campaignID, status, message)
	return err
}

func (r *LogRepository) ListByCampaign(ctx context.Context, campaignID int) ([]*model.LogEntry, error) {
	query := `
		SELECT id, campaign_id, status, message, created_at
		FROM logs
		WHERE campaign_id=$1
		ORDER BY created_at, id
	`
	rows, err := r.DB.QueryContext(ctx, query, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []*model.LogEntry{}
	for rows.Next() {
		e := &model.LogEntry{}
		if err := rows.Scan(&e.ID, &e.CampaignID, &e.Status, &e.Message, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *LogRepository) CountByStatus(ctx context.Context, campaignID int) (map[model.LogStatus]int, error) {
	query := `SELECT status, COUNT(*) FROM logs WHERE campaign_id=$1 GROUP BY status`
	rows, err := r.DB.QueryContext(ctx, query, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := map[model.LogStatus]int{
		model.LogSent:   0,
		model.LogFailed: 0,
		model.LogPaused: 0,
	}
	for rows.Next() {
		var status model.LogStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// DeleteByCampaignIDs removes every log row of the given campaigns.
func (r *LogRepository) DeleteByCampaignIDs(ctx context.Context, campaignIDs []int) (int64, error) {
	if len(campaignIDs) == 0 {
		return 0, nil
	}
	ids := make([]int64, len(campaignIDs))
	for i, id := range campaignIDs {
		ids[i] = int64(id)
	}
	res, err := r.DB.ExecContext(ctx, `DELETE FROM logs WHERE campaign_id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

var _ LogRepositoryInterface = (*LogRepository)(nil)
