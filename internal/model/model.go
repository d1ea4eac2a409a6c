package model

import (
	"fmt"
	"time"
)

// ViewMode selects one of the three interchangeable calendar views.
type ViewMode string

const (
	ViewMonth        ViewMode = "month"
	ViewWeekCompact  ViewMode = "week-compact"
	ViewWeekStandard ViewMode = "week-standard"
)

// ViewModes lists every supported view in the order the mode switcher shows them.
var ViewModes = []ViewMode{ViewMonth, ViewWeekCompact, ViewWeekStandard}

// ParseViewMode validates a view mode string.
func ParseViewMode(s string) (ViewMode, error) {
	switch m := ViewMode(s); m {
	case ViewMonth, ViewWeekCompact, ViewWeekStandard:
		return m, nil
	default:
		return "", fmt.Errorf("unknown view mode %q", s)
	}
}

// IsWeek reports whether the mode is one of the week variants.
func (m ViewMode) IsWeek() bool {
	return m == ViewWeekCompact || m == ViewWeekStandard
}

// Attendee is a single attendee entry as reported by the source.
type Attendee struct {
	Identity string `json:"identity"`
}

// CalendarEvent is the canonical, post-normalization event.
//
// For all-day events Start/End are local midnights and End is exclusive, so a
// one-day event has End == Start + 1 day. Timed events carry their instants
// converted into the display timezone.
type CalendarEvent struct {
	ID          string `json:"id"`
	Summary     string `json:"summary,omitempty"`
	Description string `json:"description,omitempty"`
	Location    string `json:"location,omitempty"`

	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	IsAllDay bool      `json:"all_day"`

	// SourceID is the configured entity this event was fetched from.
	SourceID string `json:"source_id"`
	// Color is resolved at fetch time from config or the default palette.
	Color string `json:"color"`

	Attendees []Attendee `json:"attendees,omitempty"`
}

// Duration returns End - Start.
func (e CalendarEvent) Duration() time.Duration {
	return e.End.Sub(e.Start)
}
