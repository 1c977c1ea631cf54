package rotation_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/oncallsupport/rotator/internal/domain"
	"github.com/oncallsupport/rotator/internal/pagerduty"
	"github.com/oncallsupport/rotator/internal/rotation"
	"github.com/oncallsupport/rotator/internal/slack"
)

// ---- fakes ----

type fakeSlack struct {
	usersByEmail map[string]string // email -> id
	group        *slack.UserGroup
	members      []string

	setGroupID string
	setMembers []string
	setCalls   int
	messages   []string
}

func (f *fakeSlack) FindUserByEmail(_ context.Context, email string) (*slack.User, error) {
	id, ok := f.usersByEmail[email]
	if !ok {
		return nil, fmt.Errorf("%w: email %s", domain.ErrUserNotFound, email)
	}
	return &slack.User{ID: id, Name: strings.Split(email, "@")[0]}, nil
}

func (f *fakeSlack) FindGroupByNameOrHandle(_ context.Context, name string) (*slack.UserGroup, error) {
	if f.group == nil || (f.group.Name != name && f.group.Handle != name) {
		return nil, fmt.Errorf("%w: %s", domain.ErrUserGroupNotFound, name)
	}
	return f.group, nil
}

func (f *fakeSlack) ListGroupMembers(_ context.Context, _ string) ([]string, error) {
	return f.members, nil
}

func (f *fakeSlack) SetGroupMembers(_ context.Context, groupID string, userIDs []string) error {
	f.setGroupID, f.setMembers = groupID, userIDs
	f.setCalls++
	return nil
}

func (f *fakeSlack) PostMessage(_ context.Context, _, text string) error {
	f.messages = append(f.messages, text)
	return nil
}

type fakePager struct {
	users []pagerduty.User
	err   error
}

func (f *fakePager) OnCallUsers(_ context.Context, _ string, _ time.Time) ([]pagerduty.User, error) {
	return f.users, f.err
}

// ---- helpers ----

var syncNow = time.Date(2023, 6, 1, 9, 0, 0, 0, time.UTC)

func testTask() *domain.Task {
	return &domain.Task{
		Team:                "T1:E1",
		TaskID:              "support:C1:oncall:S1:PSCHED1",
		TeamID:              "T1",
		ChannelID:           "C1",
		UserGroupHandle:     "oncall",
		PagerDutyScheduleID: "PSCHED1",
		CronExpr:            "0 9 ? * MON-FRI *",
		Timezone:            "UTC",
		NextUnix:            syncNow.Unix(),
	}
}

func supportGroup() *slack.UserGroup {
	return &slack.UserGroup{ID: "S1", Name: "On-call Support", Handle: "oncall"}
}

func newSyncer() *rotation.Syncer {
	return rotation.NewSyncer(rotation.DefaultPolicy, slog.New(slog.DiscardHandler))
}

// ---- tests ----

func TestSync_MembershipChangedPostsOneNotification(t *testing.T) {
	sl := &fakeSlack{
		usersByEmail: map[string]string{"alice@example.com": "U1", "bob@example.com": "U2"},
		group:        supportGroup(),
		members:      []string{"U9"},
	}
	pd := &fakePager{users: []pagerduty.User{
		{Name: "Alice", Email: "alice@example.com"},
		{Name: "Bob", Email: "bob@example.com"},
	}}

	changed, err := newSyncer().Sync(context.Background(), sl, pd, testTask(), syncNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !changed {
		t.Error("changed = false, want true")
	}
	if sl.setGroupID != "S1" {
		t.Errorf("updated group %q, want S1", sl.setGroupID)
	}
	if len(sl.setMembers) != 2 || sl.setMembers[0] != "U1" || sl.setMembers[1] != "U2" {
		t.Errorf("members = %v, want provider order [U1 U2]", sl.setMembers)
	}
	if len(sl.messages) != 1 {
		t.Fatalf("posted %d messages, want exactly 1", len(sl.messages))
	}
	for _, want := range []string{"<!subteam^S1>", "<@U1>", "<@U2>"} {
		if !strings.Contains(sl.messages[0], want) {
			t.Errorf("notification %q missing %q", sl.messages[0], want)
		}
	}
}

func TestSync_UnchangedMembershipStillUpdatesButStaysQuiet(t *testing.T) {
	sl := &fakeSlack{
		usersByEmail: map[string]string{"alice@example.com": "U1"},
		group:        supportGroup(),
		members:      []string{"U1"},
	}
	pd := &fakePager{users: []pagerduty.User{{Name: "Alice", Email: "alice@example.com"}}}

	changed, err := newSyncer().Sync(context.Background(), sl, pd, testTask(), syncNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if changed {
		t.Error("changed = true, want false")
	}
	if sl.setCalls != 1 {
		t.Errorf("update calls = %d, want 1 (update is unconditional)", sl.setCalls)
	}
	if len(sl.messages) != 0 {
		t.Errorf("messages = %v, want none when membership is unchanged", sl.messages)
	}
}

func TestSync_UnresolvableEmailIsFatal(t *testing.T) {
	sl := &fakeSlack{
		usersByEmail: map[string]string{},
		group:        supportGroup(),
	}
	pd := &fakePager{users: []pagerduty.User{{Name: "Ghost", Email: "ghost@example.com"}}}

	_, err := newSyncer().Sync(context.Background(), sl, pd, testTask(), syncNow)
	if !errors.Is(err, domain.ErrUserNotFound) {
		t.Errorf("error = %v, want ErrUserNotFound", err)
	}
	if sl.setCalls != 0 {
		t.Error("group was updated despite a failed resolution")
	}
}

func TestSync_MissingGroupIsFatal(t *testing.T) {
	sl := &fakeSlack{
		usersByEmail: map[string]string{"alice@example.com": "U1"},
		group:        nil,
	}
	pd := &fakePager{users: []pagerduty.User{{Name: "Alice", Email: "alice@example.com"}}}

	_, err := newSyncer().Sync(context.Background(), sl, pd, testTask(), syncNow)
	if !errors.Is(err, domain.ErrUserGroupNotFound) {
		t.Errorf("error = %v, want ErrUserGroupNotFound", err)
	}
}

func TestSync_OversizeGuardAdvisoryByDefault(t *testing.T) {
	sl := &fakeSlack{
		usersByEmail: map[string]string{"alice@example.com": "U1"},
		group:        supportGroup(),
		members:      []string{"U2", "U3", "U4", "U5", "U6"},
	}
	pd := &fakePager{users: []pagerduty.User{{Name: "Alice", Email: "alice@example.com"}}}

	if _, err := newSyncer().Sync(context.Background(), sl, pd, testTask(), syncNow); err != nil {
		t.Fatalf("advisory policy must not abort: %v", err)
	}
	if sl.setCalls != 1 {
		t.Error("update skipped under the advisory policy")
	}
}

func TestSync_OversizeGuardStrictAborts(t *testing.T) {
	sl := &fakeSlack{
		usersByEmail: map[string]string{"alice@example.com": "U1"},
		group:        supportGroup(),
		members:      []string{"U2", "U3", "U4", "U5", "U6"},
	}
	pd := &fakePager{users: []pagerduty.User{{Name: "Alice", Email: "alice@example.com"}}}

	s := rotation.NewSyncer(rotation.Policy{MaxExtraMembers: 2, Strict: true}, slog.New(slog.DiscardHandler))
	_, err := s.Sync(context.Background(), sl, pd, testTask(), syncNow)
	if !errors.Is(err, domain.ErrGroupTooLarge) {
		t.Errorf("error = %v, want ErrGroupTooLarge", err)
	}
	if sl.setCalls != 0 {
		t.Error("strict policy must abort before the update call")
	}
}

func TestSync_PagerFailurePropagates(t *testing.T) {
	sl := &fakeSlack{group: supportGroup()}
	pd := &fakePager{err: &pagerduty.APIError{StatusCode: 503}}

	_, err := newSyncer().Sync(context.Background(), sl, pd, testTask(), syncNow)
	var apiErr *pagerduty.APIError
	if !errors.As(err, &apiErr) {
		t.Errorf("error = %v, want *pagerduty.APIError", err)
	}
}
