package window

import (
	"errors"
	"fmt"
	"time"

	"skycal/internal/model"
)

var (
	// ErrInvalidHourRange is returned for week-standard windows whose hours
	// are outside 0–23 or inverted.
	ErrInvalidHourRange = errors.New("invalid hour range")
	// ErrEmptyWindow is returned when the configured week days select nothing.
	ErrEmptyWindow = errors.New("view window is empty")
)

// Options carries the configuration that shapes a window.
type Options struct {
	// FirstDayOfWeek is 0 (Sunday) through 6 (Saturday).
	FirstDayOfWeek time.Weekday
	// WeekDays restricts the non-rolling week views. Empty means all seven.
	WeekDays []time.Weekday
	// RollingDays, when non-nil, replaces week semantics with anchor + N days.
	RollingDays *int
	// StartHour/EndHour bound the week-standard grid, inclusive.
	StartHour int
	EndHour   int
}

// HourRange is the inclusive visible hour range of the week-standard grid.
type HourRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Hours enumerates every hour row in the range.
func (h HourRange) Hours() []int {
	out := make([]int, 0, h.End-h.Start+1)
	for i := h.Start; i <= h.End; i++ {
		out = append(out, i)
	}
	return out
}

// ViewWindow is the ordered set of visible days for one view.
type ViewWindow struct {
	Mode model.ViewMode
	Days []time.Time
	// Hours is only set for week-standard.
	Hours *HourRange
}

// Compute derives the visible days for mode around anchor. Days are local
// midnights in anchor's location, in chronological order.
func Compute(mode model.ViewMode, anchor time.Time, opts Options) (ViewWindow, error) {
	w := ViewWindow{Mode: mode}

	switch mode {
	case model.ViewMonth:
		w.Days = monthDays(anchor, opts.FirstDayOfWeek)
	case model.ViewWeekCompact, model.ViewWeekStandard:
		if opts.RollingDays != nil {
			days, err := rollingDays(anchor, *opts.RollingDays)
			if err != nil {
				return ViewWindow{}, err
			}
			w.Days = days
		} else {
			w.Days = weekDays(anchor, opts.FirstDayOfWeek, opts.WeekDays)
		}
	default:
		return ViewWindow{}, fmt.Errorf("unknown view mode %q", mode)
	}

	if len(w.Days) == 0 {
		return ViewWindow{}, ErrEmptyWindow
	}

	if mode == model.ViewWeekStandard {
		hr, err := ValidateHours(opts.StartHour, opts.EndHour)
		if err != nil {
			return ViewWindow{}, err
		}
		w.Hours = &hr
	}
	return w, nil
}

// ValidateHours checks 0 <= start <= end <= 23.
func ValidateHours(start, end int) (HourRange, error) {
	if start < 0 || start > 23 || end < 0 || end > 23 {
		return HourRange{}, fmt.Errorf("%w: hours must be within 0-23, got %d-%d", ErrInvalidHourRange, start, end)
	}
	if start > end {
		return HourRange{}, fmt.Errorf("%w: start hour %d is after end hour %d", ErrInvalidHourRange, start, end)
	}
	return HourRange{Start: start, End: end}, nil
}

// LeadingDays is the number of previous-month cells before the 1st.
func LeadingDays(firstOfMonth time.Weekday, firstDayOfWeek time.Weekday) int {
	return (int(firstOfMonth) - int(firstDayOfWeek) + 7) % 7
}

func monthDays(anchor time.Time, fdow time.Weekday) []time.Time {
	y, m, _ := anchor.Date()
	loc := anchor.Location()

	first := time.Date(y, m, 1, 0, 0, 0, 0, loc)
	lead := LeadingDays(first.Weekday(), fdow)
	daysInMonth := DaysIn(y, m, loc)

	total := lead + daysInMonth
	trailing := 0
	if rem := total % 7; rem != 0 {
		trailing = 7 - rem
	}
	total += trailing

	days := make([]time.Time, 0, total)
	for i := 0; i < total; i++ {
		days = append(days, time.Date(y, m, 1-lead+i, 0, 0, 0, 0, loc))
	}
	return days
}

// WeekStart returns the most recent day on or before anchor whose weekday is
// fdow, at local midnight.
func WeekStart(anchor time.Time, fdow time.Weekday) time.Time {
	y, m, d := anchor.Date()
	diff := (int(anchor.Weekday()) - int(fdow) + 7) % 7
	return time.Date(y, m, d-diff, 0, 0, 0, 0, anchor.Location())
}

func weekDays(anchor time.Time, fdow time.Weekday, allowed []time.Weekday) []time.Time {
	start := WeekStart(anchor, fdow)
	keep := weekdaySet(allowed)

	days := make([]time.Time, 0, 7)
	for i := 0; i < 7; i++ {
		day := start.AddDate(0, 0, i)
		if keep[day.Weekday()] {
			days = append(days, day)
		}
	}
	return days
}

func rollingDays(anchor time.Time, n int) ([]time.Time, error) {
	if n < 0 {
		return nil, fmt.Errorf("rolling days must not be negative, got %d", n)
	}
	start := Day(anchor)
	days := make([]time.Time, 0, n+1)
	for i := 0; i <= n; i++ {
		days = append(days, start.AddDate(0, 0, i))
	}
	return days, nil
}

func weekdaySet(allowed []time.Weekday) map[time.Weekday]bool {
	set := make(map[time.Weekday]bool, 7)
	if len(allowed) == 0 {
		for d := time.Sunday; d <= time.Saturday; d++ {
			set[d] = true
		}
		return set
	}
	for _, d := range allowed {
		set[d] = true
	}
	return set
}

// Day truncates t to local midnight.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// DaysIn returns the number of days in month m of year y.
func DaysIn(y int, m time.Month, loc *time.Location) int {
	return time.Date(y, m+1, 0, 0, 0, 0, 0, loc).Day()
}
