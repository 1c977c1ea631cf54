package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/oncallsupport/rotator/config"
	"github.com/oncallsupport/rotator/internal/command"
	"github.com/oncallsupport/rotator/internal/crypto"
	"github.com/oncallsupport/rotator/internal/health"
	"github.com/oncallsupport/rotator/internal/infrastructure/postgres"
	ctxlog "github.com/oncallsupport/rotator/internal/log"
	"github.com/oncallsupport/rotator/internal/metrics"
	"github.com/oncallsupport/rotator/internal/secrets"
	"github.com/oncallsupport/rotator/internal/trigger"
	httptransport "github.com/oncallsupport/rotator/internal/transport/http"
	"github.com/oncallsupport/rotator/internal/transport/http/handler"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger := ctxlog.NewLogger(cfg.Env, cfg.SlogLevel())

	if cfg.Env != "local" {
		gin.SetMode(gin.ReleaseMode)
	}

	bundle, err := secrets.Load(cfg.Secrets)
	if err != nil {
		log.Fatalf("secrets: %v", err)
	}

	encryptor, err := crypto.New(bundle.EncryptionKey)
	if err != nil {
		log.Fatalf("encryption key: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		stop()
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()

	taskRepo := postgres.NewTaskRepository(pool, encryptor, logger)
	installRepo := postgres.NewInstallationRepository(pool, encryptor, logger)

	hc := &http.Client{Timeout: 30 * time.Second}
	triggerAPI := trigger.NewClient(hc, cfg.SchedulerURL, cfg.SchedulerToken)
	reconciler := trigger.NewReconciler(
		triggerAPI,
		cfg.TriggerPrefix,
		cfg.TriggerTarget,
		time.Duration(cfg.TriggerGraceSec)*time.Second,
		logger,
	)

	commands := command.NewHandler(taskRepo, installRepo, reconciler, time.Now, logger)
	slackHandler := handler.NewSlackHandler(commands, logger)
	oauthHandler := handler.NewOAuthHandler(
		installRepo,
		hc,
		cfg.SlackBaseURL,
		cfg.OAuthBaseURL,
		bundle.SlackClientID,
		bundle.SlackClientSecret,
		[]byte(cfg.JWTSecret),
		logger,
	)

	metrics.Register()
	checker := health.NewChecker(pool, triggerAPI, logger, prometheus.DefaultRegisterer)

	srv := http.Server{
		Addr:    ":" + cfg.Port,
		Handler: httptransport.NewRouter(logger, bundle.SlackSigningSecret, slackHandler, oauthHandler),
	}

	metricsSrv := metrics.NewServer(":"+cfg.MetricsPort, checker)

	go func() {
		logger.Info("server started", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	<-ctx.Done()
	stop()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "error", err)
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}
}
