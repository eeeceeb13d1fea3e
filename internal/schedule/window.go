// Package schedule holds the pure calendar arithmetic behind the booking
// views: visible-window computation for the calendar modes and expansion of
// recurring slot rules into concrete time slots.
package schedule

import (
	"errors"
	"time"
)

const (
	ViewDay    = "day"
	ViewWeek   = "week"
	ViewMonth  = "month"
	ViewAgenda = "agenda"
)

const agendaDays = 14

var (
	ErrUnknownView    = errors.New("unknown calendar view")
	ErrInvalidRule    = errors.New("invalid recurring rule")
	ErrNoFutureSlots  = errors.New("rule generates no future slots")
	ErrInvalidTimeTag = errors.New("times must be in HH:MM format")
)

// Window is a half-open interval [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// WindowFor computes the visible calendar window for a view mode and anchor
// date. Weeks are Sunday-aligned, months cover the anchor's calendar month,
// day is a single 24h window and agenda spans the anchor plus 14 days.
func WindowFor(view string, anchor time.Time) (Window, error) {
	day := startOfDay(anchor)
	switch view {
	case ViewDay:
		return Window{Start: day, End: day.AddDate(0, 0, 1)}, nil
	case ViewWeek:
		sunday := day.AddDate(0, 0, -int(day.Weekday()))
		return Window{Start: sunday, End: sunday.AddDate(0, 0, 7)}, nil
	case ViewMonth:
		first := time.Date(anchor.Year(), anchor.Month(), 1, 0, 0, 0, 0, anchor.Location())
		return Window{Start: first, End: first.AddDate(0, 1, 0)}, nil
	case ViewAgenda:
		return Window{Start: day, End: day.AddDate(0, 0, agendaDays)}, nil
	default:
		return Window{}, ErrUnknownView
	}
}

func startOfDay(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location())
}

// Slot is a concrete bookable interval produced from a recurring rule.
type Slot struct {
	Start time.Time
	End   time.Time
}

// RecurringRule describes repeated availability: the selected weekdays within
// [StartDate, EndDate] (whole days, inclusive), at the listed HH:MM times.
type RecurringRule struct {
	StartDate       time.Time
	EndDate         time.Time
	Weekdays        []time.Weekday
	Times           []string
	DurationMinutes int
}

// Expand generates the rule's slots, dropping anything starting before now.
func (r RecurringRule) Expand(now time.Time) ([]Slot, error) {
	if r.StartDate.IsZero() || r.EndDate.IsZero() || r.EndDate.Before(r.StartDate) {
		return nil, ErrInvalidRule
	}
	if len(r.Weekdays) == 0 || len(r.Times) == 0 {
		return nil, ErrInvalidRule
	}
	duration := r.DurationMinutes
	if duration <= 0 {
		duration = 60
	}

	times := make([]time.Duration, 0, len(r.Times))
	for _, tag := range r.Times {
		offset, err := parseTimeOfDay(tag)
		if err != nil {
			return nil, err
		}
		times = append(times, offset)
	}

	var slots []Slot
	lastDay := startOfDay(r.EndDate)
	for day := startOfDay(r.StartDate); !day.After(lastDay); day = day.AddDate(0, 0, 1) {
		if !containsWeekday(r.Weekdays, day.Weekday()) {
			continue
		}
		for _, offset := range times {
			start := day.Add(offset)
			if start.Before(now) {
				continue
			}
			slots = append(slots, Slot{
				Start: start,
				End:   start.Add(time.Duration(duration) * time.Minute),
			})
		}
	}

	if len(slots) == 0 {
		return nil, ErrNoFutureSlots
	}
	return slots, nil
}

func parseTimeOfDay(tag string) (time.Duration, error) {
	parsed, err := time.Parse("15:04", tag)
	if err != nil {
		return 0, ErrInvalidTimeTag
	}
	return time.Duration(parsed.Hour())*time.Hour + time.Duration(parsed.Minute())*time.Minute, nil
}

func containsWeekday(list []time.Weekday, w time.Weekday) bool {
	for _, d := range list {
		if d == w {
			return true
		}
	}
	return false
}
