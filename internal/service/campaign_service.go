// internal/service/campaign_service.go
package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	appErrors "github.com/unclebandit/campaign-dispatch/internal/errors"
	"github.com/unclebandit/campaign-dispatch/internal/model"
	"github.com/unclebandit/campaign-dispatch/internal/pkg/logger"
	"github.com/unclebandit/campaign-dispatch/internal/queue"
	"github.com/unclebandit/campaign-dispatch/internal/render"
	"github.com/unclebandit/campaign-dispatch/internal/repository"
)

type CampaignService struct {
	CampaignRepo repository.CampaignRepositoryInterface
	UserRepo     repository.UserRepositoryInterface
	LogRepo      repository.LogRepositoryInterface
	Queue        queue.Enqueuer
	Renderer     *render.Renderer
	Logger       *slog.Logger
}

func NewCampaignService(campaigns repository.CampaignRepositoryInterface, users repository.UserRepositoryInterface, logs repository.LogRepositoryInterface, q queue.Enqueuer, l *slog.Logger) *CampaignService {
	if l == nil {
		l = logger.Discard()
	}
	return &CampaignService{
		CampaignRepo: campaigns,
		UserRepo:     users,
		LogRepo:      logs,
		Queue:        q,
		Renderer:     render.NewRenderer(),
		Logger:       l,
	}
}

// CreateCampaignInput is everything needed to start a campaign.
type CreateCampaignInput struct {
	UserID       int                `json:"user_id"`
	Name         string             `json:"name"`
	Subject      string             `json:"subject"`
	TemplateHTML string             `json:"template_html"`
	Leads        []model.Lead       `json:"leads"`
	Attachments  []model.Attachment `json:"attachments,omitempty"`
}

type CampaignDetails struct {
	ID        int                  `json:"id"`
	UserID    int                  `json:"user_id"`
	Name      string               `json:"name"`
	Status    model.CampaignStatus `json:"status"`
	SentCount int                  `json:"sent_count"`
	CreatedAt time.Time            `json:"created_at"`
	UpdatedAt *time.Time           `json:"updated_at,omitempty"`
	Stats     map[string]int       `json:"stats"`
}

func (s *CampaignService) validate(in CreateCampaignInput) error {
	if in.UserID <= 0 {
		return appErrors.NewValidation("user_id", "must be positive")
	}
	if strings.TrimSpace(in.Name) == "" {
		return appErrors.NewValidation("name", "cannot be empty")
	}
	if strings.TrimSpace(in.TemplateHTML) == "" {
		return appErrors.NewValidation("template_html", "cannot be empty")
	}
	if err := s.Renderer.Validate(in.TemplateHTML); err != nil {
		return appErrors.NewValidation("template_html", err.Error())
	}
	if err := s.Renderer.Validate(in.Subject); err != nil {
		return appErrors.NewValidation("subject", err.Error())
	}
	if len(in.Leads) == 0 {
		return appErrors.NewValidation("leads", "at least one lead is required")
	}
	for i, lead := range in.Leads {
		if _, err := mail.ParseAddress(lead.Email); err != nil {
			return appErrors.NewValidation(fmt.Sprintf("leads[%d].email", i), "not a valid address")
		}
	}
	for i, a := range in.Attachments {
		if strings.TrimSpace(a.Filename) == "" {
			return appErrors.NewValidation(fmt.Sprintf("attachments[%d].filename", i), "cannot be empty")
		}
	}
	return nil
}

// CreateCampaign stores a RUNNING campaign and enqueues its first job.
func (s *CampaignService) CreateCampaign(ctx context.Context, in CreateCampaignInput) (*model.Campaign, error) {
	if err := s.validate(in); err != nil {
		return nil, err
	}
	if _, err := s.UserRepo.GetByID(ctx, in.UserID); err != nil {
		if appErrors.IsNotFound(err) {
			return nil, appErrors.NewValidation("user_id", "unknown user")
		}
		return nil, err
	}

	c := &model.Campaign{
		UserID: in.UserID,
		Name:   strings.TrimSpace(in.Name),
		Status: model.CampaignRunning,
	}
	if err := s.CampaignRepo.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("create campaign: %w", err)
	}

	job := model.Job{
		CampaignID:   c.ID,
		Leads:        in.Leads,
		Subject:      in.Subject,
		TemplateHTML: in.TemplateHTML,
		Attachments:  in.Attachments,
	}
	if err := s.Queue.Enqueue(ctx, job, 0); err != nil {
		s.Logger.Error("failed to enqueue campaign", "campaign_id", c.ID, "error", err)
		return nil, fmt.Errorf("enqueue campaign %d: %w", c.ID, err)
	}

	s.Logger.Info("campaign created", "campaign_id", c.ID, "user_id", c.UserID, "leads", len(in.Leads))
	return c, nil
}

// GetCampaign returns the campaign with log counts per status.
func (s *CampaignService) GetCampaign(ctx context.Context, id int) (*CampaignDetails, error) {
	c, err := s.CampaignRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	counts, err := s.LogRepo.CountByStatus(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("count logs for campaign %d: %w", id, err)
	}

	stats := map[string]int{"total": 0}
	for status, n := range counts {
		stats[strings.ToLower(string(status))] = n
		stats["total"] += n
	}

	return &CampaignDetails{
		ID:        c.ID,
		UserID:    c.UserID,
		Name:      c.Name,
		Status:    c.Status,
		SentCount: c.SentCount,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
		Stats:     stats,
	}, nil
}

// ListCampaigns fetches campaigns with pagination
func (s *CampaignService) ListCampaigns(ctx context.Context, page, pageSize int, status string) ([]model.Campaign, map[string]int, error) {
	if status != "" && !model.CampaignStatus(status).Valid() {
		return nil, nil, appErrors.NewValidation("status", "unknown status "+status)
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	offset := (page - 1) * pageSize

	ptrs, total, err := s.CampaignRepo.ListCampaigns(ctx, offset, pageSize, status)
	if err != nil {
		return nil, nil, err
	}

	campaigns := make([]model.Campaign, len(ptrs))
	for i, c := range ptrs {
		campaigns[i] = *c
	}

	totalPages := (total + pageSize - 1) / pageSize
	pagination := map[string]int{
		"page":        page,
		"page_size":   pageSize,
		"total_count": total,
		"total_pages": totalPages,
	}
	return campaigns, pagination, nil
}

// ListLogs returns the log entries of an existing campaign.
func (s *CampaignService) ListLogs(ctx context.Context, campaignID int) ([]*model.LogEntry, error) {
	if _, err := s.CampaignRepo.GetByID(ctx, campaignID); err != nil {
		return nil, err
	}
	return s.LogRepo.ListByCampaign(ctx, campaignID)
}
