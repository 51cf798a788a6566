// internal/controller/campaign_controller.go
package controller

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	appErrors "github.com/unclebandit/campaign-dispatch/internal/errors"
	"github.com/unclebandit/campaign-dispatch/internal/handler"
	"github.com/unclebandit/campaign-dispatch/internal/model"
	"github.com/unclebandit/campaign-dispatch/internal/pkg/logger"
	"github.com/unclebandit/campaign-dispatch/internal/service"
)

// CampaignAPI is the part of service.CampaignService the controller calls.
type CampaignAPI interface {
	CreateCampaign(ctx context.Context, in service.CreateCampaignInput) (*model.Campaign, error)
	GetCampaign(ctx context.Context, id int) (*service.CampaignDetails, error)
	ListCampaigns(ctx context.Context, page, pageSize int, status string) ([]model.Campaign, map[string]int, error)
}

type CampaignController struct {
	CampaignService CampaignAPI
	Logger          *slog.Logger
}

func NewCampaignController(svc CampaignAPI, l *slog.Logger) *CampaignController {
	if l == nil {
		l = logger.Discard()
	}
	return &CampaignController{CampaignService: svc, Logger: l}
}

// maxBodyBytes bounds a create request, attachments included.
const maxBodyBytes = 25 << 20

func (c *CampaignController) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var body service.CreateCampaignInput
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		handler.WriteError(w, c.Logger, appErrors.NewValidation("body", err.Error()))
		return
	}

	campaign, err := c.CampaignService.CreateCampaign(r.Context(), body)
	if err != nil {
		handler.WriteError(w, c.Logger, err)
		return
	}
	handler.WriteJSON(w, http.StatusCreated, campaign)
}

func (c *CampaignController) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	status := r.URL.Query().Get("status")

	campaigns, pagination, err := c.CampaignService.ListCampaigns(r.Context(), page, pageSize, status)
	if err != nil {
		handler.WriteError(w, c.Logger, err)
		return
	}

	handler.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"data":       campaigns,
		"pagination": pagination,
	})
}

func (c *CampaignController) GetCampaignDetails(w http.ResponseWriter, r *http.Request) {
	id, err := handler.CampaignID(r)
	if err != nil {
		handler.WriteError(w, c.Logger, err)
		return
	}

	details, err := c.CampaignService.GetCampaign(r.Context(), id)
	if err != nil {
		handler.WriteError(w, c.Logger, err)
		return
	}
	handler.WriteJSON(w, http.StatusOK, details)
}
