// rotator runs one sync invocation: it is what the external scheduler's
// trigger executes at each wake-up. It syncs every due rotation, then
// re-points the trigger at the next one and exits.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/oncallsupport/rotator/config"
	"github.com/oncallsupport/rotator/internal/crypto"
	"github.com/oncallsupport/rotator/internal/email"
	"github.com/oncallsupport/rotator/internal/infrastructure/postgres"
	ctxlog "github.com/oncallsupport/rotator/internal/log"
	"github.com/oncallsupport/rotator/internal/metrics"
	"github.com/oncallsupport/rotator/internal/pagerduty"
	"github.com/oncallsupport/rotator/internal/rotation"
	"github.com/oncallsupport/rotator/internal/secrets"
	"github.com/oncallsupport/rotator/internal/slack"
	"github.com/oncallsupport/rotator/internal/trigger"
)

const invocationTimeout = 10 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger := ctxlog.NewLogger(cfg.Env, cfg.SlogLevel())

	bundle, err := secrets.Load(cfg.Secrets)
	if err != nil {
		log.Fatalf("secrets: %v", err)
	}

	encryptor, err := crypto.New(bundle.EncryptionKey)
	if err != nil {
		log.Fatalf("encryption key: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), invocationTimeout)
	defer cancel()

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()

	metrics.Register()

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

	syncer := rotation.NewSyncer(rotation.Policy{
		MaxExtraMembers: cfg.MaxExtraGroupMembers,
		Strict:          cfg.StrictGroupGuard,
	}, logger)

	orchestrator := rotation.NewOrchestrator(
		taskRepo,
		installRepo,
		syncer,
		reconciler,
		func(token string) rotation.SlackAPI {
			return slack.New(hc, cfg.SlackBaseURL, token, logger)
		},
		func(token string) rotation.PagerAPI {
			return pagerduty.New(hc, cfg.PagerDutyBaseURL, token)
		},
		cfg.WorkerCount,
		logger,
	)

	if err := orchestrator.Run(ctx, time.Now()); err != nil {
		logger.Error("invocation failed", "error", err)
		alert(ctx, cfg, logger, err)
		os.Exit(1)
	}
}

// alert emails the ops address when an invocation fails outright; a
// broken trigger means no future wake-up, so this cannot be a
// metrics-only signal.
func alert(ctx context.Context, cfg *config.Config, logger *slog.Logger, err error) {
	sender := email.NewSender(cfg.Env, cfg.ResendAPIKey, cfg.ResendFrom, logger)
	body := fmt.Sprintf("<p>Rotation sync failed and the wake-up trigger may be stale.</p><pre>%v</pre>", err)
	if sendErr := sender.Send(ctx, cfg.OpsAlertEmail, "rotator: sync invocation failed", body); sendErr != nil {
		logger.Error("ops alert email failed", "error", sendErr)
	}
}
