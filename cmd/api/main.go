package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"escrowflow/auth"
	"escrowflow/config"
	"escrowflow/db"
	"escrowflow/dispute"
	"escrowflow/escrow"
	"escrowflow/httpapi"
	"escrowflow/juror"
	"escrowflow/logger"
	"escrowflow/reputation"

	"go.uber.org/zap"
)

// reputationAdapter narrows the reputation service to the recorder
// interfaces the escrow and dispute services expect.
type reputationAdapter struct {
	svc *reputation.Service
}

func (a reputationAdapter) RecordTransaction(ctx context.Context, user string, success bool, relatedID string) error {
	_, err := a.svc.RecordTransaction(ctx, user, success, relatedID)
	return err
}

func (a reputationAdapter) RecordArbitration(ctx context.Context, user string, won bool, relatedID string) error {
	_, err := a.svc.RecordArbitration(ctx, user, won, relatedID)
	return err
}

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Init(logger.Config{Level: "info", Format: "json"})
		logger.L().Fatal("load config", zap.Error(err))
	}

	logger.Init(cfg.Log)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.L().Fatal("connect database", zap.Error(err))
	}
	defer pool.Close()

	reputationSvc := reputation.NewService(pool, reputation.NewRepository(pool))
	recorder := reputationAdapter{svc: reputationSvc}
	jurorSvc := juror.NewService(juror.NewRepository(pool), cfg.MinimumStake)
	disputeRepo := dispute.NewRepository(pool)
	disputeSvc := dispute.NewService(pool, disputeRepo, recorder, jurorSvc)
	escrowSvc := escrow.NewService(pool, escrow.NewRepository(pool), recorder, disputeRepo)
	authSvc := auth.NewService(auth.NewRepository(pool), cfg.JWTSecret)

	server := httpapi.NewServer(escrowSvc, disputeSvc, reputationSvc, jurorSvc, authSvc)

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.L().Info("listening", zap.String("addr", cfg.Listen))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.L().Fatal("serve", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.L().Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.L().Error("shutdown", zap.Error(err))
	}
}
