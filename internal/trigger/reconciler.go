package trigger

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/oncallsupport/rotator/internal/cron"
	"github.com/oncallsupport/rotator/internal/metrics"
)

// DefaultGrace is how long a past-due trigger is left alone before the
// cleanup pass deletes it. The window avoids racing an in-flight
// invocation that is still processing the very trigger being evaluated.
const DefaultGrace = 300 * time.Second

// Reconciler owns every trigger carrying its name prefix; entries with
// other names are invisible to it, so deployments can share one
// scheduler service.
type Reconciler struct {
	api       API
	prefix    string
	targetRef string
	grace     time.Duration
	logger    *slog.Logger
}

func NewReconciler(api API, namePrefix, targetRef string, grace time.Duration, logger *slog.Logger) *Reconciler {
	if grace <= 0 {
		grace = DefaultGrace
	}
	return &Reconciler{
		api:       api,
		prefix:    namePrefix,
		targetRef: targetRef,
		grace:     grace,
		logger:    logger.With("component", "trigger_reconciler"),
	}
}

type entry struct {
	trigger Trigger
	unix    int64
}

// Reconcile converges the remote trigger set on the earlier of desired
// and whatever future trigger already exists, then garbage-collects the
// rest. Any scheduler-service failure aborts the call; no partial
// bookkeeping is kept, and the same decision is re-derived next wake-up.
func (r *Reconciler) Reconcile(ctx context.Context, desired *cron.Occurrence, now time.Time) error {
	start := time.Now()
	defer func() {
		metrics.ReconcileDuration.Observe(time.Since(start).Seconds())
	}()

	listed, err := r.api.List(ctx, r.prefix)
	if err != nil {
		return fmt.Errorf("list triggers: %w", err)
	}

	entries := make([]entry, 0, len(listed))
	for _, t := range listed {
		unix, ok := r.parseName(t.Name)
		if !ok {
			// Unparsable names are foreign; leave them alone.
			r.logger.Warn("skipping trigger with unparsable name", "name", t.Name)
			continue
		}
		entries = append(entries, entry{trigger: t, unix: unix})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].unix < entries[j].unix })

	// The nearest existing trigger that is still in the future and no
	// later than what we are about to request.
	var currentNext *entry
	for i := range entries {
		if entries[i].unix > now.Unix() && entries[i].unix <= desired.Unix {
			currentNext = &entries[i]
			break
		}
	}

	effective := desired.Unix
	if currentNext == nil || desired.Unix < currentNext.unix {
		created := Trigger{
			Name:       r.name(desired.Unix),
			Expression: desired.OneShotExpr,
			Timezone:   desired.Location.String(),
			TargetRef:  r.targetRef,
			Description: fmt.Sprintf("next rotation at %s (%s), cron: %s",
				desired.Time.Format("2006-01-02T15:04:05"), desired.Location, desired.Cron),
		}
		if err := r.api.Create(ctx, created); err != nil {
			return fmt.Errorf("create trigger %s: %w", created.Name, err)
		}
		metrics.TriggersCreatedTotal.Inc()
		r.logger.Info("created trigger", "name", created.Name, "at", desired.Time)
	} else {
		effective = currentNext.unix
		r.logger.Info("keeping existing trigger", "name", currentNext.trigger.Name)
	}

	staleCutoff := now.Unix() - int64(r.grace.Seconds())
	for _, e := range entries {
		if e.unix > effective || e.unix <= staleCutoff {
			if err := r.api.Delete(ctx, e.trigger.Name); err != nil {
				return fmt.Errorf("delete trigger %s: %w", e.trigger.Name, err)
			}
			metrics.TriggersDeletedTotal.Inc()
			r.logger.Info("deleted trigger", "name", e.trigger.Name)
		}
	}

	return nil
}

func (r *Reconciler) name(unix int64) string {
	return r.prefix + strconv.FormatInt(unix, 10)
}

// parseName recovers the timestamp a trigger represents from its name.
func (r *Reconciler) parseName(name string) (int64, bool) {
	rest, ok := strings.CutPrefix(name, r.prefix)
	if !ok {
		return 0, false
	}
	unix, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return 0, false
	}
	return unix, true
}
