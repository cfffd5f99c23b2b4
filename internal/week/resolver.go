// Package week converts instants between UTC and a display timezone and
// computes calendar-week boundaries in that zone. Weeks are resolved in
// the display zone, never in UTC, so a PR merged at 23:30 local time lands
// in the correct local week even when its UTC timestamp is the next day.
package week

import (
	"fmt"
	"strings"
	"time"

	"github.com/yukimura/gminor/internal/domain"
)

// ParseWeekday maps a configured weekday name onto time.Weekday. The
// empty string selects Monday, the default week start.
func ParseWeekday(name string) (time.Weekday, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "monday":
		return time.Monday, nil
	case "tuesday":
		return time.Tuesday, nil
	case "wednesday":
		return time.Wednesday, nil
	case "thursday":
		return time.Thursday, nil
	case "friday":
		return time.Friday, nil
	case "saturday":
		return time.Saturday, nil
	case "sunday":
		return time.Sunday, nil
	}
	return time.Monday, fmt.Errorf("invalid week start day %q", name)
}

// Resolver holds a display timezone and the configured week-start weekday.
// It is pure and stateless; all methods are safe for concurrent use.
type Resolver struct {
	name      string
	loc       *time.Location
	weekStart time.Weekday
}

// NewResolver validates the IANA zone name and returns a resolver whose
// weeks begin on startDay (Monday in the default configuration).
func NewResolver(timezone string, startDay time.Weekday) (*Resolver, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidTimezone, timezone)
	}
	return &Resolver{name: timezone, loc: loc, weekStart: startDay}, nil
}

// Timezone returns the IANA identifier the resolver was built with.
func (r *Resolver) Timezone() string { return r.name }

// UTCToLocal converts an instant to the display timezone.
func (r *Resolver) UTCToLocal(t time.Time) time.Time { return t.In(r.loc) }

// LocalToUTC converts an instant to UTC.
func (r *Resolver) LocalToUTC(t time.Time) time.Time { return t.UTC() }

// WeekStart returns midnight of the configured start weekday, in the
// display zone, for the week containing t.
func (r *Resolver) WeekStart(t time.Time) time.Time {
	local := t.In(r.loc)
	offset := (int(local.Weekday()) - int(r.weekStart) + 7) % 7
	day := local.AddDate(0, 0, -offset)
	return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, r.loc)
}

// WeekBoundaries returns the inclusive local week start and the exclusive
// week end (start + 7 days) covering t.
func (r *Resolver) WeekBoundaries(t time.Time) (start, end time.Time) {
	start = r.WeekStart(t)
	return start, start.AddDate(0, 0, 7)
}

// WeekRangeUTC converts a local week window to the half-open UTC range
// used for store queries.
func (r *Resolver) WeekRangeUTC(weekStart time.Time) (startUTC, endUTC time.Time) {
	return weekStart.UTC(), weekStart.AddDate(0, 0, 7).UTC()
}

// Weeks enumerates the local week-start instants covering [from, to],
// ascending. Both bounds are snapped to their containing weeks, so the
// result is gap-free and never empty for from <= to.
func (r *Resolver) Weeks(from, to time.Time) []time.Time {
	first := r.WeekStart(from)
	last := r.WeekStart(to)
	var weeks []time.Time
	for w := first; !w.After(last); w = w.AddDate(0, 0, 7) {
		weeks = append(weeks, w)
	}
	return weeks
}
