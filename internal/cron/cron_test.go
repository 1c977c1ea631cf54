package cron_test

import (
	"errors"
	"testing"
	"time"

	"github.com/oncallsupport/rotator/internal/cron"
	"github.com/oncallsupport/rotator/internal/domain"
)

func melbourne(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Australia/Melbourne")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	return loc
}

func TestNext_SundayRollsToMonday(t *testing.T) {
	loc := melbourne(t)
	from := time.Date(2023, 1, 1, 9, 0, 1, 0, loc) // Sunday

	occ, err := cron.Next("0 0 9 ? * MON-FRI *", loc, from)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if occ == nil {
		t.Fatal("expected an occurrence")
	}

	if occ.Cron != "0 9 ? * MON-FRI *" {
		t.Errorf("canonical cron = %q, want seconds stripped", occ.Cron)
	}
	want := time.Date(2023, 1, 2, 9, 0, 0, 0, loc) // Monday
	if !occ.Time.Equal(want) {
		t.Errorf("next = %v, want %v", occ.Time, want)
	}
	if occ.Unix != 1672610400 {
		t.Errorf("unix = %d, want 1672610400", occ.Unix)
	}
	if occ.OneShotExpr != "0 9 2 1 * 2023" {
		t.Errorf("one-shot = %q, want pinned to Jan 2 2023", occ.OneShotExpr)
	}
}

func TestNext_FridaySkipsWeekend(t *testing.T) {
	loc := melbourne(t)
	from := time.Date(2023, 1, 6, 9, 0, 1, 0, loc) // Friday, just past 9am

	occ, err := cron.Next("0 0 9 ? * MON-FRI *", loc, from)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if occ == nil {
		t.Fatal("expected an occurrence")
	}

	want := time.Date(2023, 1, 9, 9, 0, 0, 0, loc) // the following Monday
	if !occ.Time.Equal(want) {
		t.Errorf("next = %v, want %v", occ.Time, want)
	}
	if occ.Unix != 1673215200 {
		t.Errorf("unix = %d, want 1673215200", occ.Unix)
	}
	if occ.OneShotExpr != "0 9 9 1 * 2023" {
		t.Errorf("one-shot = %q, want pinned to Jan 9 2023", occ.OneShotExpr)
	}
}

func TestNext_SecondsFieldDoesNotChangeResult(t *testing.T) {
	loc := melbourne(t)
	from := time.Date(2023, 1, 1, 9, 0, 1, 0, loc)

	with, err := cron.Next("0 0 9 ? * MON-FRI *", loc, from)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	without, err := cron.Next("0 9 ? * MON-FRI *", loc, from)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if with == nil || without == nil {
		t.Fatal("expected occurrences for both forms")
	}
	if with.Unix != without.Unix || with.Cron != without.Cron || with.OneShotExpr != without.OneShotExpr {
		t.Errorf("forms diverge: %+v vs %+v", with, without)
	}
}

func TestNext_StrictlyAfterReference(t *testing.T) {
	loc := melbourne(t)
	// Monday 09:00:00 exactly matches the expression; the evaluator
	// must still return a later instant.
	from := time.Date(2023, 1, 2, 9, 0, 0, 0, loc)

	occ, err := cron.Next("0 9 ? * MON-FRI *", loc, from)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if occ == nil {
		t.Fatal("expected an occurrence")
	}
	if !occ.Time.After(from) {
		t.Errorf("next = %v, not strictly after %v", occ.Time, from)
	}
	want := time.Date(2023, 1, 3, 9, 0, 0, 0, loc)
	if !occ.Time.Equal(want) {
		t.Errorf("next = %v, want %v", occ.Time, want)
	}
}

func TestNext_ExpiredYearRetires(t *testing.T) {
	loc := melbourne(t)
	from := time.Date(2023, 6, 1, 0, 0, 0, 0, loc)

	occ, err := cron.Next("0 9 1 1 * 2020", loc, from)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if occ != nil {
		t.Errorf("expected retirement, got occurrence at %v", occ.Time)
	}
}

func TestNext_FutureFixedYear(t *testing.T) {
	loc := melbourne(t)
	from := time.Date(2023, 6, 1, 0, 0, 0, 0, loc)

	occ, err := cron.Next("30 8 1 3 * 2025", loc, from)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if occ == nil {
		t.Fatal("expected an occurrence")
	}
	want := time.Date(2025, 3, 1, 8, 30, 0, 0, loc)
	if !occ.Time.Equal(want) {
		t.Errorf("next = %v, want %v", occ.Time, want)
	}
	if occ.OneShotExpr != "30 8 1 3 * 2025" {
		t.Errorf("one-shot = %q", occ.OneShotExpr)
	}
}

func TestNext_MalformedExpression(t *testing.T) {
	loc := melbourne(t)
	from := time.Now()

	for _, expr := range []string{"", "not a cron", "61 9 * * *", "0 9 * *", "0 9 * * * 20xx"} {
		if _, err := cron.Next(expr, loc, from); !errors.Is(err, domain.ErrInvalidCronExpr) {
			t.Errorf("Next(%q) error = %v, want ErrInvalidCronExpr", expr, err)
		}
	}
}

func TestLoadLocation(t *testing.T) {
	if _, err := cron.LoadLocation("Not/AZone"); !errors.Is(err, domain.ErrInvalidTimezone) {
		t.Errorf("error = %v, want ErrInvalidTimezone", err)
	}
	loc, err := cron.LoadLocation("")
	if err != nil || loc != time.UTC {
		t.Errorf("empty name: loc=%v err=%v, want UTC", loc, err)
	}
}
