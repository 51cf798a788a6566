package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	appErrors "github.com/unclebandit/campaign-dispatch/internal/errors"
	"github.com/unclebandit/campaign-dispatch/internal/model"
)

type CampaignRepositoryInterface interface {
	Create(ctx context.Context, c *model.Campaign) error
	GetByID(ctx context.Context, id int) (*model.Campaign, error)
	UpdateStatus(ctx context.Context, id int, status model.CampaignStatus) error
	IncrementSentCount(ctx context.Context, id, n int) error
	ListByUser(ctx context.Context, userID int) ([]*model.Campaign, error)
	ListCampaigns(ctx context.Context, offset, limit int, status string) ([]*model.Campaign, int, error)
}

type CampaignRepository struct {
	DB *sql.DB
}

const campaignColumns = `id, user_id, name, status, sent_count, created_at, updated_at`

func scanCampaign(row interface{ Scan(...any) error }, c *model.Campaign) error {
	return row.Scan(&c.ID, &c.UserID, &c.Name, &c.Status, &c.SentCount, &c.CreatedAt, &c.UpdatedAt)
}

func (r *CampaignRepository) Create(ctx context.Context, c *model.Campaign) error {
	c.CreatedAt = time.Now().UTC()
	if c.Status == "" {
		c.Status = model.CampaignRunning
	}
	query := `
		INSERT INTO campaigns (user_id, name, status, sent_count, created_at)
		VALUES ($1, $2, $3, 0, $4)
		RETURNING id
	`
	return r.DB.QueryRowContext(ctx, query, c.UserID, c.Name, c.Status, c.CreatedAt).Scan(&c.ID)
}

func (r *CampaignRepository) GetByID(ctx context.Context, id int) (*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id=$1`
	var c model.Campaign
	if err := scanCampaign(r.DB.QueryRowContext(ctx, query, id), &c); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewCampaignNotFound(id)
		}
		return nil, err
	}
	return &c, nil
}

// UpdateStatus only writes when the stored status is a legal source for the
// new one. The guard lives in the statement so it also holds for concurrent
// writers.
func (r *CampaignRepository) UpdateStatus(ctx context.Context, id int, status model.CampaignStatus) error {
	sources := model.SourcesFor(status)
	if len(sources) == 0 {
		return appErrors.NewInvalidTransition(id, "", string(status))
	}
	from := make([]string, len(sources))
	for i, s := range sources {
		from[i] = string(s)
	}

	query := `UPDATE campaigns SET status=$1, updated_at=$2 WHERE id=$3 AND status = ANY($4)`
	res, err := r.DB.ExecContext(ctx, query, status, time.Now().UTC(), id, pq.StringArray(from))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	var current model.CampaignStatus
	err = r.DB.QueryRowContext(ctx, `SELECT status FROM campaigns WHERE id=$1`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.NewCampaignNotFound(id)
	}
	if err != nil {
		return err
	}
	return appErrors.NewInvalidTransition(id, string(current), string(status))
}

// IncrementSentCount is a relative update so concurrent jobs never lose counts.
func (r *CampaignRepository) IncrementSentCount(ctx context.Context, id, n int) error {
	query := `UPDATE campaigns SET sent_count = sent_count + $1, updated_at=$2 WHERE id=$3`
	_, err := r.DB.ExecContext(ctx, query, n, time.Now().UTC(), id)
	return err
}

// ListByUser returns the user's campaigns newest first. The id tiebreak keeps
// the order stable when campaigns share a creation timestamp.
func (r *CampaignRepository) ListByUser(ctx context.Context, userID int) ([]*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE user_id=$1 ORDER BY created_at DESC, id DESC`
	rows, err := r.DB.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	campaigns := []*model.Campaign{}
	for rows.Next() {
		c := &model.Campaign{}
		if err := scanCampaign(rows, c); err != nil {
			return nil, err
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, rows.Err()
}

func (r *CampaignRepository) ListCampaigns(ctx context.Context, offset, limit int, status string) ([]*model.Campaign, int, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM campaigns WHERE 1=1`
	args := []interface{}{}

	if status != "" {
		query += ` AND status=$1`
		countQuery += ` AND status=$1`
		args = append(args, status)
	}

	var total int
	if err := r.DB.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	campaigns := []*model.Campaign{}
	for rows.Next() {
		c := &model.Campaign{}
		if err := scanCampaign(rows, c); err != nil {
			return nil, 0, err
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, total, rows.Err()
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
