// Package cron computes the next concrete occurrence of a rotation
// schedule in an arbitrary timezone.
//
// Accepted field forms:
//
//	5 fields: minute hour dom month dow
//	6 fields: minute hour dom month dow year
//	7 fields: second minute hour dom month dow year
//
// When seconds are absent a leading 0 is synthesized before evaluation,
// and the canonical (seconds-stripped) form is what callers should treat
// as the task's logical expression: two expressions that normalize to
// the same canonical form evaluate identically.
package cron

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/oncallsupport/rotator/internal/domain"
	robfig "github.com/robfig/cron/v3"
)

// Occurrence is the next concrete firing of an expression.
type Occurrence struct {
	// Cron is the canonical expression with the seconds field stripped.
	Cron     string
	Location *time.Location
	// OneShotExpr pins the occurrence to its exact year/month/day/hour/
	// minute, usable to register a trigger that fires exactly once.
	OneShotExpr string
	// Unix is the occurrence in epoch seconds, strictly after the
	// reference instant passed to Next.
	Unix int64
	// Time is the occurrence rendered in Location.
	Time time.Time
}

var parser = robfig.NewParser(
	robfig.Second | robfig.Minute | robfig.Hour | robfig.Dom | robfig.Month | robfig.Dow,
)

// Next returns the first occurrence of expr strictly after from,
// evaluated in loc. A nil occurrence with a nil error means the
// expression has no reachable future match (e.g. a fixed year in the
// past) and the caller should retire the task.
func Next(expr string, loc *time.Location, from time.Time) (*Occurrence, error) {
	fields := strings.Fields(expr)

	var seconds, year string
	var core []string
	switch len(fields) {
	case 5:
		seconds, core, year = "0", fields, "*"
	case 6:
		// Six fields carry a trailing year, never leading seconds.
		seconds, core, year = "0", fields[:5], fields[5]
	case 7:
		seconds, core, year = fields[0], fields[1:6], fields[6]
	default:
		return nil, fmt.Errorf("%w: %q has %d fields, want 5-7", domain.ErrInvalidCronExpr, expr, len(fields))
	}

	spec := seconds + " " + strings.Join(replaceQuestionMarks(core), " ")
	sched, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", domain.ErrInvalidCronExpr, expr, err)
	}

	years, err := parseYears(year)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", domain.ErrInvalidCronExpr, expr, err)
	}

	canonical := strings.Join(append(append([]string{}, core...), year), " ")

	at := from.In(loc)
	next := sched.Next(at)
	for {
		if next.IsZero() {
			return nil, nil
		}
		if years.contains(next.Year()) {
			break
		}
		// Jump the search to the start of the next permitted year
		// instead of stepping match by match.
		y, ok := years.after(next.Year())
		if !ok {
			return nil, nil
		}
		base := time.Date(y, time.January, 1, 0, 0, 0, 0, loc).Add(-time.Second)
		next = sched.Next(base)
	}

	return &Occurrence{
		Cron:        canonical,
		Location:    loc,
		OneShotExpr: oneShot(next),
		Unix:        next.Unix(),
		Time:        next,
	}, nil
}

// NextIn is Next with the timezone given by IANA name.
func NextIn(expr, tz string, from time.Time) (*Occurrence, error) {
	loc, err := LoadLocation(tz)
	if err != nil {
		return nil, err
	}
	return Next(expr, loc, from)
}

// LoadLocation resolves an IANA timezone name, defaulting to UTC when
// empty.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidTimezone, name)
	}
	return loc, nil
}

// oneShot renders a one-off expression pinned to at's local date-time:
// "minute hour dom month * year".
func oneShot(at time.Time) string {
	return fmt.Sprintf("%d %d %d %d * %d",
		at.Minute(), at.Hour(), at.Day(), int(at.Month()), at.Year())
}

// replaceQuestionMarks maps ? to * in dom/dow so the two spellings
// evaluate identically.
func replaceQuestionMarks(core []string) []string {
	out := make([]string, len(core))
	for i, f := range core {
		if f == "?" {
			out[i] = "*"
		} else {
			out[i] = f
		}
	}
	return out
}

// yearSet is the parsed year constraint. A nil list means unconstrained.
type yearSet struct {
	list []int
}

func (s yearSet) contains(y int) bool {
	if s.list == nil {
		return true
	}
	for _, v := range s.list {
		if v == y {
			return true
		}
	}
	return false
}

// after returns the smallest permitted year strictly greater than y.
func (s yearSet) after(y int) (int, bool) {
	if s.list == nil {
		return y + 1, true
	}
	best, ok := 0, false
	for _, v := range s.list {
		if v > y && (!ok || v < best) {
			best, ok = v, true
		}
	}
	return best, ok
}

func parseYears(field string) (yearSet, error) {
	if field == "*" || field == "?" {
		return yearSet{}, nil
	}

	var list []int
	for _, part := range strings.Split(field, ",") {
		lo, hi, found := strings.Cut(part, "-")
		from, err := strconv.Atoi(lo)
		if err != nil {
			return yearSet{}, fmt.Errorf("bad year %q", part)
		}
		to := from
		if found {
			if to, err = strconv.Atoi(hi); err != nil || to < from {
				return yearSet{}, fmt.Errorf("bad year range %q", part)
			}
		}
		for y := from; y <= to; y++ {
			list = append(list, y)
		}
	}
	return yearSet{list: list}, nil
}
