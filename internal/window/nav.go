package window

import (
	"fmt"
	"time"

	"skycal/internal/model"
)

// Direction of a prev/next navigation step.
type Direction int

const (
	Backward Direction = -1
	Forward  Direction = 1
)

var weekdayShort = [7]string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

// Shift moves the anchor one period in dir: one calendar month for the month
// view, N+1 days in rolling mode, seven days otherwise.
//
// Month steps clamp the day of month (Jan 31 -> Feb 29) instead of
// overflowing into the month after, so a step never skips a month.
func Shift(mode model.ViewMode, anchor time.Time, dir Direction, rollingDays *int) time.Time {
	if mode == model.ViewMonth {
		y, m, d := anchor.Date()
		target := m + time.Month(dir)
		if dim := DaysIn(y, target, anchor.Location()); d > dim {
			d = dim
		}
		hh, mm, ss := anchor.Clock()
		return time.Date(y, target, d, hh, mm, ss, anchor.Nanosecond(), anchor.Location())
	}

	step := 7
	if rollingDays != nil {
		step = *rollingDays + 1
	}
	return anchor.AddDate(0, 0, int(dir)*step)
}

// DayHeaders returns the short weekday names starting at fdow.
func DayHeaders(fdow time.Weekday) []string {
	out := make([]string, 0, 7)
	for i := 0; i < 7; i++ {
		out = append(out, weekdayShort[(int(fdow)+i)%7])
	}
	return out
}

// WeekdayShort returns the three-letter name of d.
func WeekdayShort(d time.Weekday) string {
	return weekdayShort[d]
}

// PeriodLabel renders the header title: "June 2024" for the month view,
// "June 1-7, 2024" or "May 30 - June 5, 2024" for week views.
func PeriodLabel(mode model.ViewMode, anchor time.Time, days []time.Time) string {
	if mode == model.ViewMonth {
		return fmt.Sprintf("%s %d", anchor.Month(), anchor.Year())
	}
	if len(days) == 0 {
		return ""
	}
	start, end := days[0], days[len(days)-1]
	if start.Month() == end.Month() {
		return fmt.Sprintf("%s %d-%d, %d", start.Month(), start.Day(), end.Day(), start.Year())
	}
	return fmt.Sprintf("%s %d - %s %d, %d", start.Month(), start.Day(), end.Month(), end.Day(), start.Year())
}

// RowWeekNumber is the ISO week number shown next to a month-grid row that
// starts on rowStart. The fourth cell decides, which matches ISO rules for
// Monday-first grids.
func RowWeekNumber(rowStart time.Time) int {
	_, wk := rowStart.AddDate(0, 0, 3).ISOWeek()
	return wk
}
