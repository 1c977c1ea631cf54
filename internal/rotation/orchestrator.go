package rotation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/oncallsupport/rotator/internal/cron"
	"github.com/oncallsupport/rotator/internal/domain"
	"github.com/oncallsupport/rotator/internal/metrics"
	"github.com/oncallsupport/rotator/internal/repository"
)

// Reconciler converges the external trigger set on the desired next
// wake-up.
type Reconciler interface {
	Reconcile(ctx context.Context, desired *cron.Occurrence, now time.Time) error
}

// Orchestrator runs one full invocation: sync every due task, advance
// occurrences, and point the external scheduler at the globally earliest
// one.
type Orchestrator struct {
	tasks    repository.TaskRepository
	installs repository.InstallationRepository
	syncer   *Syncer

	reconciler Reconciler
	slackFor   func(token string) SlackAPI
	pagerFor   func(token string) PagerAPI

	workers int
	logger  *slog.Logger
}

func NewOrchestrator(
	tasks repository.TaskRepository,
	installs repository.InstallationRepository,
	syncer *Syncer,
	reconciler Reconciler,
	slackFor func(token string) SlackAPI,
	pagerFor func(token string) PagerAPI,
	workers int,
	logger *slog.Logger,
) *Orchestrator {
	if workers < 1 {
		workers = 1
	}
	return &Orchestrator{
		tasks:      tasks,
		installs:   installs,
		syncer:     syncer,
		reconciler: reconciler,
		slackFor:   slackFor,
		pagerFor:   pagerFor,
		workers:    workers,
		logger:     logger.With("component", "orchestrator"),
	}
}

// Run processes every due task and reconciles the wake-up trigger once.
// Per-task failures are logged and skipped so one broken task cannot
// starve the rest; a reconciliation failure is fatal for the invocation.
func (o *Orchestrator) Run(ctx context.Context, now time.Time) error {
	installations, err := o.installs.ScanAll(ctx)
	if err != nil {
		return fmt.Errorf("load installations: %w", err)
	}
	byTeam := make(map[string]*domain.Installation, len(installations))
	for _, i := range installations {
		byTeam[i.TeamID] = i
	}

	tasks, err := o.tasks.ScanAll(ctx)
	if err != nil {
		return fmt.Errorf("load tasks: %w", err)
	}
	o.logger.Info("loaded tasks", "count", len(tasks))

	var due []*domain.Task
	for _, t := range tasks {
		if t.Due(now) {
			due = append(due, t)
		} else if !t.Retired() {
			o.logger.Info("task not due yet", "task_id", t.TaskID, "next", t.NextLocal)
		}
	}
	metrics.TasksDue.Set(float64(len(due)))

	// Each task's sync is fully self-contained (own credentials, own
	// group, own channel), so due tasks fan out across a bounded pool.
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)
	for _, t := range due {
		g.Go(func() error {
			nextUnix, nextLocal, err := o.processTask(gctx, byTeam, t, now)
			if err != nil {
				// Occurrence left untouched: the task is retried on the
				// next wake-up instead of being silently dropped.
				metrics.SyncsTotal.WithLabelValues("failure").Inc()
				o.logger.Error("task sync failed", "team", t.Team, "task_id", t.TaskID, "error", err)
				return nil
			}
			metrics.SyncsTotal.WithLabelValues("success").Inc()
			mu.Lock()
			t.NextUnix, t.NextLocal = nextUnix, nextLocal
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	// Globally earliest next occurrence across all live tasks, due or not.
	var earliest *domain.Task
	for _, t := range tasks {
		if t.NextUnix > 0 && (earliest == nil || t.NextUnix < earliest.NextUnix) {
			earliest = t
		}
	}
	if earliest == nil {
		// Dormant until a new task is created, which reconciles its own
		// occurrence independently.
		o.logger.Info("no task has a future occurrence, not scheduling a trigger")
		return nil
	}

	desired, err := cron.NextIn(earliest.CronExpr, earliest.Timezone, now)
	if err != nil {
		return fmt.Errorf("evaluate earliest task %s: %w", earliest.TaskID, err)
	}
	if desired == nil {
		o.logger.Warn("earliest task expired between selection and evaluation", "task_id", earliest.TaskID)
		return nil
	}

	if err := o.reconciler.Reconcile(ctx, desired, now); err != nil {
		return fmt.Errorf("reconcile trigger: %w", err)
	}

	o.logger.Info("invocation finished", "due", len(due), "next_wakeup", desired.Time)
	return nil
}

// processTask syncs one due task and computes its advanced occurrence.
func (o *Orchestrator) processTask(ctx context.Context, byTeam map[string]*domain.Installation, t *domain.Task, now time.Time) (int64, string, error) {
	install, ok := byTeam[t.TeamID]
	if !ok {
		return 0, "", fmt.Errorf("%w: team %s", domain.ErrInstallationNotFound, t.TeamID)
	}

	pdToken := t.PagerDutyToken
	if pdToken == nil {
		pdToken = install.PagerDutyToken
	}
	if pdToken == nil {
		return 0, "", domain.ErrMissingCredential
	}

	if _, err := o.syncer.Sync(ctx, o.slackFor(install.AccessToken), o.pagerFor(*pdToken), t, now); err != nil {
		return 0, "", err
	}

	occ, err := cron.NextIn(t.CronExpr, t.Timezone, now)
	if err != nil {
		return 0, "", fmt.Errorf("compute next occurrence: %w", err)
	}

	nextUnix, nextLocal := int64(domain.RetiredSentinel), ""
	if occ != nil {
		nextUnix, nextLocal = occ.Unix, occ.Time.Format(time.RFC3339)
	}

	if err := o.tasks.UpdateOccurrence(ctx, t.Team, t.TaskID, nextUnix, nextLocal, now.UTC()); err != nil {
		return 0, "", fmt.Errorf("persist occurrence: %w", err)
	}
	return nextUnix, nextLocal, nil
}
