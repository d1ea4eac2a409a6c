// Package schedule selects the events that belong to a calendar day and
// orders them for the list-style views.
package schedule

import (
	"sort"
	"time"

	"skycal/internal/model"
)

// Hidden is the set of source ids currently toggled off.
type Hidden map[string]struct{}

// Has reports whether id is hidden. A nil set hides nothing.
func (h Hidden) Has(id string) bool {
	_, ok := h[id]
	return ok
}

// Occupies reports whether ev appears on day. Day bounds are taken in day's
// location. All-day events end exclusively; timed events count on their end
// day too, so an event ending exactly at midnight still shows on that day.
func Occupies(ev model.CalendarEvent, day time.Time) bool {
	loc := day.Location()
	d := floor(day, loc)
	startDay := floor(ev.Start, loc)
	endDay := floor(ev.End, loc)

	if d.Before(startDay) {
		return false
	}
	if ev.IsAllDay {
		return d.Before(endDay)
	}
	return !d.After(endDay)
}

// EventsForDay returns the events of visible sources that occupy day, in the
// order they appear in events.
func EventsForDay(day time.Time, events []model.CalendarEvent, hidden Hidden) []model.CalendarEvent {
	out := make([]model.CalendarEvent, 0)
	for _, ev := range events {
		if hidden.Has(ev.SourceID) {
			continue
		}
		if Occupies(ev, day) {
			out = append(out, ev)
		}
	}
	return out
}

// SortForList orders events for the month and compact week views: all-day
// events first in their original order, then timed events by start time.
// Ties keep the original (fetch) order. The input is sorted in place and
// returned for convenience.
func SortForList(events []model.CalendarEvent) []model.CalendarEvent {
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if a.IsAllDay != b.IsAllDay {
			return a.IsAllDay
		}
		if a.IsAllDay {
			return false
		}
		return a.Start.Before(b.Start)
	})
	return events
}

// SplitAllDay partitions events into the all-day lane and the timed grid,
// preserving order within each part.
func SplitAllDay(events []model.CalendarEvent) (allDay, timed []model.CalendarEvent) {
	for _, ev := range events {
		if ev.IsAllDay {
			allDay = append(allDay, ev)
		} else {
			timed = append(timed, ev)
		}
	}
	return allDay, timed
}

// MaxAllDay is the largest number of visible all-day events on any of days.
// The week-standard view sizes its all-day lane with it so columns line up.
func MaxAllDay(days []time.Time, events []model.CalendarEvent, hidden Hidden) int {
	max := 0
	for _, day := range days {
		n := 0
		for _, ev := range EventsForDay(day, events, hidden) {
			if ev.IsAllDay {
				n++
			}
		}
		if n > max {
			max = n
		}
	}
	return max
}

// Truncate keeps at most limit events and reports how many were cut.
// A limit <= 0 keeps everything.
func Truncate(events []model.CalendarEvent, limit int) ([]model.CalendarEvent, int) {
	if limit <= 0 || len(events) <= limit {
		return events, 0
	}
	return events[:limit], len(events) - limit
}

func floor(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
