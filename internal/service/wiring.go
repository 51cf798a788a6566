package service

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/unclebandit/campaign-dispatch/internal/config"
	"github.com/unclebandit/campaign-dispatch/internal/gateway"
	"github.com/unclebandit/campaign-dispatch/internal/notify"
	"github.com/unclebandit/campaign-dispatch/internal/pkg/distlock"
	"github.com/unclebandit/campaign-dispatch/internal/queue"
	"github.com/unclebandit/campaign-dispatch/internal/repository"
)

// DefaultLockTTL is the lifetime of a campaign lock between extensions.
const DefaultLockTTL = 2 * time.Minute

// NewDispatchWorker assembles the Postgres stores, the configured gateway
// and notifier, and a dispatcher consuming q. Campaign locks use Redis when
// rdb is non-nil and Postgres advisory locks otherwise.
func NewDispatchWorker(ctx context.Context, cfg *config.Config, db *sql.DB, rdb *redis.Client, q queue.Queue, l *slog.Logger) (*Worker, error) {
	gw, err := gateway.New(ctx, cfg.Gateway)
	if err != nil {
		return nil, fmt.Errorf("gateway: %w", err)
	}
	n, err := notify.New(ctx, cfg.Notifier, cfg.Gateway.SES, l)
	if err != nil {
		return nil, fmt.Errorf("notifier: %w", err)
	}

	campaigns := &repository.CampaignRepository{DB: db}
	d := NewDispatcher(
		campaigns,
		&repository.UserRepository{DB: db},
		&repository.LogRepository{DB: db},
		q, gw, n, l,
	)
	d.SendInterval = cfg.Gateway.SendInterval()
	locks := distlock.NewFactory(rdb, db, DefaultLockTTL)
	return NewWorker(d, q, locks, DefaultLockTTL, l), nil
}
