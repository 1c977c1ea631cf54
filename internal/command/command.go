package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"
	"github.com/spf13/cobra"

	"github.com/oncallsupport/rotator/internal/cron"
	"github.com/oncallsupport/rotator/internal/domain"
	"github.com/oncallsupport/rotator/internal/metrics"
	"github.com/oncallsupport/rotator/internal/repository"
	"github.com/oncallsupport/rotator/internal/rotation"
)

// Request is one parsed slash-command invocation, straight from the
// form fields Slack posts.
type Request struct {
	TeamID              string
	TeamDomain          string
	ChannelID           string
	ChannelName         string
	EnterpriseID        string
	EnterpriseName      string
	IsEnterpriseInstall bool

	UserID   string
	UserName string

	Command string
	Text    string
}

// Result is the command's reply, one mrkdwn section per entry.
type Result struct {
	Sections []string
}

// UsageError is a problem with what the user typed, rendered back to
// them verbatim instead of being treated as a server failure.
type UsageError struct {
	Message string
}

func (e *UsageError) Error() string { return e.Message }

func usagef(format string, args ...any) *UsageError {
	return &UsageError{Message: fmt.Sprintf(format, args...)}
}

// groupMentionRe matches the escaped form Slack substitutes for a typed
// @group mention: <!subteam^ID|@handle>.
var groupMentionRe = regexp.MustCompile(`<!subteam\^(\w+)\|@([^>]+)>`)

// smartQuotes undoes the typographic quote substitution Slack clients
// apply, which would otherwise break word splitting.
var smartQuotes = strings.NewReplacer("“", `"`, "”", `"`, "‘", `'`, "’", `'`)

// Handler executes slash commands against the stores and the trigger
// reconciler.
type Handler struct {
	tasks      repository.TaskRepository
	installs   repository.InstallationRepository
	reconciler rotation.Reconciler
	now        func() time.Time
	logger     *slog.Logger
}

func NewHandler(
	tasks repository.TaskRepository,
	installs repository.InstallationRepository,
	reconciler rotation.Reconciler,
	now func() time.Time,
	logger *slog.Logger,
) *Handler {
	if now == nil {
		now = time.Now
	}
	return &Handler{
		tasks:      tasks,
		installs:   installs,
		reconciler: reconciler,
		now:        now,
		logger:     logger.With("component", "command"),
	}
}

// Handle parses and runs one invocation. Input problems come back as
// *UsageError; anything else is a server-side failure.
func (h *Handler) Handle(ctx context.Context, req *Request) (*Result, error) {
	args, err := shellquote.Split(smartQuotes.Replace(req.Text))
	if err != nil {
		metrics.CommandsTotal.WithLabelValues("unparsable", "rejected").Inc()
		return nil, usagef("Could not parse command: %v", err)
	}

	name := "help"
	if len(args) > 0 {
		name = args[0]
	}

	res := &Result{}
	root := h.grammar(req, res)
	root.SetArgs(args)
	root.SetOut(&strings.Builder{})
	root.SetErr(&strings.Builder{})

	if err := root.ExecuteContext(ctx); err != nil {
		if isInputError(err) {
			err = usagef("%v", err)
		}
		outcome := "failure"
		var usage *UsageError
		if errors.As(err, &usage) {
			outcome = "rejected"
		}
		metrics.CommandsTotal.WithLabelValues(name, outcome).Inc()
		return nil, err
	}

	metrics.CommandsTotal.WithLabelValues(name, "success").Inc()
	return res, nil
}

// isInputError spots cobra's own parse failures, which describe what
// the user typed and belong in front of them.
func isInputError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "unknown command") ||
		strings.Contains(msg, "unknown flag") ||
		strings.Contains(msg, "required flag") ||
		strings.Contains(msg, "invalid argument")
}

func (h *Handler) grammar(req *Request, res *Result) *cobra.Command {
	root := &cobra.Command{
		Use:           strings.TrimPrefix(req.Command, "/"),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res.Sections = append(res.Sections,
				"Available commands: schedule, list-schedules, setup-pagerduty, new")
			return nil
		},
	}

	schedule := &cobra.Command{
		Use:           "schedule",
		Short:         "Keep a user group in sync with a PagerDuty schedule",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	var (
		userGroup  string
		pdSchedule string
		pdAPIKey   string
		cronExpr   string
		timezone   string
	)
	schedule.Flags().StringVar(&userGroup, "user-group", "", "user group mention, e.g. @support")
	schedule.Flags().StringVar(&pdSchedule, "pagerduty-schedule", "", "PagerDuty schedule id")
	schedule.Flags().StringVar(&pdAPIKey, "pagerduty-api-key", "", "PagerDuty token for this schedule only")
	schedule.Flags().StringVar(&cronExpr, "cron", "", "when to sync, cron syntax")
	schedule.Flags().StringVar(&timezone, "timezone", "UTC", "IANA timezone for the cron")
	_ = schedule.MarkFlagRequired("user-group")
	_ = schedule.MarkFlagRequired("pagerduty-schedule")
	_ = schedule.MarkFlagRequired("cron")
	schedule.RunE = func(cmd *cobra.Command, _ []string) error {
		return h.schedule(cmd.Context(), req, res, userGroup, pdSchedule, pdAPIKey, cronExpr, timezone)
	}

	listSchedules := &cobra.Command{
		Use:           "list-schedules",
		Short:         "List this workspace's sync schedules",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	all := listSchedules.Flags().Bool("all", false, "list every workspace's schedules")
	listSchedules.RunE = func(cmd *cobra.Command, _ []string) error {
		return h.listSchedules(cmd.Context(), req, res, *all)
	}

	setupPagerduty := &cobra.Command{
		Use:           "setup-pagerduty",
		Short:         "Store the workspace PagerDuty token",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	var apiKey string
	setupPagerduty.Flags().StringVar(&apiKey, "pagerduty-api-key", "", "PagerDuty token")
	_ = setupPagerduty.MarkFlagRequired("pagerduty-api-key")
	setupPagerduty.RunE = func(cmd *cobra.Command, _ []string) error {
		return h.setupPagerduty(cmd.Context(), req, res, apiKey)
	}

	newCmd := &cobra.Command{
		Use:           "new",
		Short:         "Interactive schedule setup",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(_ *cobra.Command, _ []string) error {
			res.Sections = append(res.Sections, "Show wizard to add new schedule")
			return nil
		},
	}

	root.AddCommand(schedule, listSchedules, setupPagerduty, newCmd)
	return root
}

func (h *Handler) schedule(ctx context.Context, req *Request, res *Result, userGroup, pdSchedule, pdAPIKey, cronExpr, timezone string) error {
	m := groupMentionRe.FindStringSubmatch(userGroup)
	if m == nil {
		return usagef("Invalid user group: %s", userGroup)
	}
	groupID, groupHandle := m[1], m[2]

	if _, err := cron.LoadLocation(timezone); err != nil {
		return usagef("Invalid timezone: %s", timezone)
	}

	now := h.now()
	occ, err := cron.NextIn(cronExpr, timezone, now)
	if err != nil {
		return usagef("Invalid cron expression %q: %v", cronExpr, err)
	}
	if occ == nil {
		return usagef("The cron %q has no future occurrence", cronExpr)
	}

	var token *string
	if pdAPIKey != "" {
		token = &pdAPIKey
	}

	task := &domain.Task{
		Team:   domain.TeamKey(req.TeamID, req.EnterpriseID),
		TaskID: domain.TaskKeyFor(req.ChannelName, req.ChannelID, groupHandle, groupID, pdSchedule),

		NextUnix:  occ.Unix,
		NextLocal: occ.Time.Format(time.RFC3339),

		TeamID:              req.TeamID,
		TeamDomain:          req.TeamDomain,
		ChannelID:           req.ChannelID,
		ChannelName:         req.ChannelName,
		EnterpriseID:        req.EnterpriseID,
		EnterpriseName:      req.EnterpriseName,
		IsEnterpriseInstall: req.IsEnterpriseInstall,

		UserGroupID:         groupID,
		UserGroupHandle:     groupHandle,
		PagerDutyScheduleID: pdSchedule,
		PagerDutyToken:      token,
		CronExpr:            cronExpr,
		Timezone:            timezone,

		CreatedByUserID:   req.UserID,
		CreatedByUserName: req.UserName,
		CreatedAt:         now.UTC(),
		UpdatedAt:         now.UTC(),
	}

	if err := h.tasks.Put(ctx, task); err != nil {
		return fmt.Errorf("save task: %w", err)
	}

	// The new occurrence may be earlier than whatever trigger is
	// pending, so converge right away instead of waiting for the next
	// wake-up.
	if err := h.reconciler.Reconcile(ctx, occ, now); err != nil {
		return fmt.Errorf("reconcile trigger: %w", err)
	}

	h.logger.Info("schedule created", "team", task.Team, "task_id", task.TaskID, "next", task.NextLocal)
	res.Sections = append(res.Sections, fmt.Sprintf(
		"Update user group: %s|%s based on pagerduty schedule: %s, at: %s",
		groupID, groupHandle, pdSchedule, cronExpr,
	))
	return nil
}

func (h *Handler) listSchedules(ctx context.Context, req *Request, res *Result, all bool) error {
	var (
		tasks []*domain.Task
		err   error
	)
	if all {
		tasks, err = h.tasks.ScanAll(ctx)
	} else {
		tasks, err = h.tasks.ListByTeam(ctx, domain.TeamKey(req.TeamID, req.EnterpriseID))
	}
	if err != nil {
		return fmt.Errorf("list tasks: %w", err)
	}

	if len(tasks) == 0 {
		res.Sections = append(res.Sections, "No schedules yet. Create one with the schedule command.")
		return nil
	}
	for _, t := range tasks {
		next := t.NextLocal
		if t.Retired() {
			next = "never (expired)"
		}
		res.Sections = append(res.Sections, fmt.Sprintf(
			"## %s\nUpdate %s on %s\nNext schedule: %s",
			t.ChannelName, t.UserGroupHandle, t.CronExpr, next,
		))
	}
	return nil
}

func (h *Handler) setupPagerduty(ctx context.Context, req *Request, res *Result, apiKey string) error {
	team := domain.TeamKey(req.TeamID, req.EnterpriseID)
	if err := h.installs.UpdatePagerDutyToken(ctx, team, apiKey); err != nil {
		if errors.Is(err, domain.ErrInstallationNotFound) {
			return usagef("This workspace has not installed the app yet")
		}
		return fmt.Errorf("update pagerduty token: %w", err)
	}

	h.logger.Info("pagerduty token stored", "team", team)
	res.Sections = append(res.Sections, "Setup pagerduty with api key")
	return nil
}
