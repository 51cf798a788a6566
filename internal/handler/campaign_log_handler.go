// internal/handler/campaign_log_handler.go
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	appErrors "github.com/unclebandit/campaign-dispatch/internal/errors"
	"github.com/unclebandit/campaign-dispatch/internal/model"
	"github.com/unclebandit/campaign-dispatch/internal/pkg/logger"
)

type LogLister interface {
	ListLogs(ctx context.Context, campaignID int) ([]*model.LogEntry, error)
}

// CampaignLogHandler serves the log entries of a campaign.
type CampaignLogHandler struct {
	Service LogLister
	Logger  *slog.Logger
}

func NewCampaignLogHandler(svc LogLister, l *slog.Logger) *CampaignLogHandler {
	if l == nil {
		l = logger.Discard()
	}
	return &CampaignLogHandler{Service: svc, Logger: l}
}

// ListLogsHandler handles GET /campaigns/{id}/logs.
func (h *CampaignLogHandler) ListLogsHandler(w http.ResponseWriter, r *http.Request) {
	id, err := CampaignID(r)
	if err != nil {
		WriteError(w, h.Logger, err)
		return
	}

	entries, err := h.Service.ListLogs(r.Context(), id)
	if err != nil {
		WriteError(w, h.Logger, err)
		return
	}
	if entries == nil {
		entries = []*model.LogEntry{}
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"campaign_id": id,
		"data":        entries,
	})
}

// CampaignID parses the {id} route parameter.
func CampaignID(r *http.Request) (int, error) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		return 0, appErrors.NewValidation("id", "invalid campaign id")
	}
	return id, nil
}
