// Package rotation runs the per-task roster-diff-and-update pipeline and
// the invocation-level orchestration around it.
package rotation

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/oncallsupport/rotator/internal/domain"
	"github.com/oncallsupport/rotator/internal/metrics"
	"github.com/oncallsupport/rotator/internal/pagerduty"
	"github.com/oncallsupport/rotator/internal/slack"
)

// SlackAPI is the slice of the Slack client the sync needs.
type SlackAPI interface {
	FindUserByEmail(ctx context.Context, email string) (*slack.User, error)
	FindGroupByNameOrHandle(ctx context.Context, name string) (*slack.UserGroup, error)
	ListGroupMembers(ctx context.Context, groupID string) ([]string, error)
	SetGroupMembers(ctx context.Context, groupID string, userIDs []string) error
	PostMessage(ctx context.Context, channelID, text string) error
}

// PagerAPI is the slice of the PagerDuty client the sync needs.
type PagerAPI interface {
	OnCallUsers(ctx context.Context, scheduleID string, from time.Time) ([]pagerduty.User, error)
}

// Policy controls the wrong-group misconfiguration guard: a current
// membership more than MaxExtraMembers larger than the roster suggests
// the task points at the wrong group.
type Policy struct {
	MaxExtraMembers int
	// Strict aborts the sync on a guard hit instead of only logging it.
	Strict bool
}

var DefaultPolicy = Policy{MaxExtraMembers: 2}

// Syncer reconciles one user group's membership with the on-call roster.
type Syncer struct {
	policy Policy
	logger *slog.Logger
}

func NewSyncer(policy Policy, logger *slog.Logger) *Syncer {
	return &Syncer{policy: policy, logger: logger.With("component", "roster_sync")}
}

// Sync fetches the roster due at now, diffs it against the group, and
// applies the update. It reports whether membership actually changed.
// Any failure leaves the task untouched for retry on the next wake-up.
func (s *Syncer) Sync(ctx context.Context, slackAPI SlackAPI, pagerAPI PagerAPI, task *domain.Task, now time.Time) (bool, error) {
	start := time.Now()
	defer func() {
		metrics.SyncDuration.Observe(time.Since(start).Seconds())
	}()

	logger := s.logger.With("team", task.Team, "task_id", task.TaskID)

	onCall, err := pagerAPI.OnCallUsers(ctx, task.PagerDutyScheduleID, now)
	if err != nil {
		return false, fmt.Errorf("fetch on-call roster: %w", err)
	}
	logger.Info("fetched on-call roster", "count", len(onCall))

	// Provider order is preserved; duplicates are the provider's call.
	desired := make([]string, 0, len(onCall))
	for _, u := range onCall {
		su, err := slackAPI.FindUserByEmail(ctx, u.Email)
		if err != nil {
			return false, fmt.Errorf("resolve on-call user %s: %w", u.Email, err)
		}
		desired = append(desired, su.ID)
	}

	group, err := slackAPI.FindGroupByNameOrHandle(ctx, task.UserGroupHandle)
	if err != nil {
		return false, fmt.Errorf("resolve user group: %w", err)
	}

	current, err := slackAPI.ListGroupMembers(ctx, group.ID)
	if err != nil {
		return false, fmt.Errorf("list group members: %w", err)
	}

	if len(current) > len(desired)+s.policy.MaxExtraMembers {
		logger.Warn("current group much larger than roster, is the group correct?",
			"group", group.Handle, "current", len(current), "desired", len(desired))
		if s.policy.Strict {
			return false, fmt.Errorf("%w: group %s has %d members, roster has %d",
				domain.ErrGroupTooLarge, group.Handle, len(current), len(desired))
		}
	}

	changed := !slices.Equal(desired, current)
	logger.Info("updating user group", "group", group.Handle, "members", desired, "changed", changed)

	// Always issue the update; the no-op case costs one call and keeps
	// this path simple.
	if err := slackAPI.SetGroupMembers(ctx, group.ID, desired); err != nil {
		return false, fmt.Errorf("update group members: %w", err)
	}

	if changed {
		mentions := make([]string, len(desired))
		for i, id := range desired {
			mentions[i] = fmt.Sprintf("<@%s>", id)
		}
		msg := fmt.Sprintf("Updated support user group <!subteam^%s> to: %s",
			group.ID, strings.Join(mentions, ", "))
		if err := slackAPI.PostMessage(ctx, task.ChannelID, msg); err != nil {
			return false, fmt.Errorf("post notification: %w", err)
		}
		metrics.GroupMembersChangedTotal.Inc()
	}

	return changed, nil
}
