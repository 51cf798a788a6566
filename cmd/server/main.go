// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/unclebandit/campaign-dispatch/internal/config"
	"github.com/unclebandit/campaign-dispatch/internal/controller"
	"github.com/unclebandit/campaign-dispatch/internal/db"
	"github.com/unclebandit/campaign-dispatch/internal/handler"
	"github.com/unclebandit/campaign-dispatch/internal/pkg/logger"
	"github.com/unclebandit/campaign-dispatch/internal/queue"
	"github.com/unclebandit/campaign-dispatch/internal/repository"
	"github.com/unclebandit/campaign-dispatch/internal/service"
)

func main() {
	cfg, err := config.LoadFromEnv(os.Getenv("CONFIG_PATH"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}
	log := logger.New(os.Stderr, logger.ParseLevel(cfg.Log.Level))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	database, err := db.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer database.Close()

	q, err := queue.New(cfg.Queue, log)
	if err != nil {
		return err
	}
	defer q.Close()

	// an in-memory queue only reaches consumers in this process
	if cfg.Queue.Driver == "memory" {
		worker, err := service.NewDispatchWorker(ctx, cfg, database, nil, q, log)
		if err != nil {
			return err
		}
		if err := worker.Start(ctx); err != nil {
			return err
		}
		log.Warn("running dispatch worker in-process; delayed jobs are lost on restart")
	}

	campaignRepo := &repository.CampaignRepository{DB: database}
	userRepo := &repository.UserRepository{DB: database}
	logRepo := &repository.LogRepository{DB: database}
	campaignService := service.NewCampaignService(campaignRepo, userRepo, logRepo, q, log)

	router := controller.NewRouter(
		controller.NewCampaignController(campaignService, log),
		handler.NewCampaignLogHandler(campaignService, log),
		cfg.Server.AllowedOrigins,
	)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server running", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
