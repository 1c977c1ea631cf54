package domain

import (
	"fmt"
	"time"
)

// Task is one team's rotation rule: keep the members of a Slack user
// group in sync with a PagerDuty schedule, on a cron in the task's
// timezone.
type Task struct {
	// Team is the partition key, "<team_id>:<enterprise_id>".
	Team string
	// TaskID is derived from channel, user group and PagerDuty schedule,
	// so re-issuing an identical command overwrites instead of duplicating.
	TaskID string

	// NextUnix is the next due time in epoch seconds. A value <= 0 means
	// the task is retired: no future occurrence, excluded from the due
	// check and from earliest-trigger selection.
	NextUnix int64
	// NextLocal is a human-readable rendering of NextUnix in the task's
	// timezone (RFC 3339).
	NextLocal string

	TeamID              string
	TeamDomain          string
	ChannelID           string
	ChannelName         string
	EnterpriseID        string
	EnterpriseName      string
	IsEnterpriseInstall bool

	UserGroupID         string
	UserGroupHandle     string
	PagerDutyScheduleID string
	// PagerDutyToken overrides the installation-level token when set.
	PagerDutyToken *string
	CronExpr       string
	Timezone       string

	CreatedByUserID   string
	CreatedByUserName string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Due reports whether the task must be synced at now.
func (t *Task) Due(now time.Time) bool {
	return t.NextUnix > 0 && t.NextUnix <= now.Unix()
}

// Retired reports whether the task has no future occurrence.
func (t *Task) Retired() bool {
	return t.NextUnix <= 0
}

// Retire marks the task as having no future occurrence.
func (t *Task) Retire() {
	t.NextUnix = RetiredSentinel
	t.NextLocal = ""
}

// RetiredSentinel is the NextUnix value written when a task's cron has
// no reachable future match.
const RetiredSentinel = -1

// TeamKey builds the composite partition key for a workspace.
func TeamKey(teamID, enterpriseID string) string {
	return fmt.Sprintf("%s:%s", teamID, enterpriseID)
}

// TaskKeyFor derives the deterministic task id from the command targets.
func TaskKeyFor(channelName, channelID, groupHandle, groupID, pagerScheduleID string) string {
	return fmt.Sprintf("%s:%s:%s:%s:%s", channelName, channelID, groupHandle, groupID, pagerScheduleID)
}
