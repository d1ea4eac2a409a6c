// Package layout places the timed events of one day into side-by-side
// columns for the hour-gridded week view.
package layout

import (
	"fmt"
	"sort"
	"time"

	"skycal/internal/model"
)

// ColumnMode picks the denominator used for block widths.
type ColumnMode string

const (
	// ColumnsPerDay gives every block on a day the same column count.
	ColumnsPerDay ColumnMode = "day"
	// ColumnsPerCluster sizes each block by the columns its overlap cluster
	// actually needs, so an isolated event keeps the full day width.
	ColumnsPerCluster ColumnMode = "cluster"
)

// ParseColumnMode accepts "", "day" or "cluster".
func ParseColumnMode(s string) (ColumnMode, error) {
	switch m := ColumnMode(s); m {
	case "":
		return ColumnsPerDay, nil
	case ColumnsPerDay, ColumnsPerCluster:
		return m, nil
	default:
		return "", fmt.Errorf("unknown column mode %q", s)
	}
}

// Options bounds the visible hours and tunes packing.
type Options struct {
	// StartHour/EndHour are the inclusive visible hour rows. Events starting
	// outside them are dropped, not clipped.
	StartHour int
	EndHour   int
	// MinDurationMinutes lifts shorter (including zero and negative) events
	// to this length before overlap testing. Zero disables the clamp.
	MinDurationMinutes int
	Mode               ColumnMode
	// Day, when set, is the day being laid out. An event carried over from
	// an earlier day then starts at 00:00 instead of at its own clock time.
	// Without it every event is read against its start day.
	Day time.Time
}

// Block is one positioned event. Offsets and durations are in hours relative
// to StartHour so the caller can scale them by its own hour height.
type Block struct {
	Event            model.CalendarEvent `json:"event"`
	Column           int                 `json:"column"`
	TotalColumns     int                 `json:"total_columns"`
	StartOffsetHours float64             `json:"start_offset_hours"`
	DurationHours    float64             `json:"duration_hours"`
}

// Rect is a block mapped to the day column. Left and Width are fractions of
// the column width; Top and Height are in the hourHeight unit.
type Rect struct {
	Left   float64 `json:"left"`
	Width  float64 `json:"width"`
	Top    float64 `json:"top"`
	Height float64 `json:"height"`
}

// Rect maps b to a rectangle with hourHeight units per hour.
func (b Block) Rect(hourHeight float64) Rect {
	total := b.TotalColumns
	if total < 1 {
		total = 1
	}
	return Rect{
		Left:   float64(b.Column) / float64(total),
		Width:  1 / float64(total),
		Top:    b.StartOffsetHours * hourHeight,
		Height: b.DurationHours * hourHeight,
	}
}

type placed struct {
	ev         model.CalendarEvent
	start, end int // minutes of day
	col        int
	cluster    int
}

func (p placed) overlaps(o placed) bool {
	return p.start < o.end && p.end > o.start
}

// LayoutDay assigns columns to the timed events of a single day.
//
// Events are packed greedily: sorted by start minute, longer first on ties,
// each goes into the first column with no half-open overlap. Output order is
// the packing order.
func LayoutDay(events []model.CalendarEvent, opts Options) []Block {
	items := make([]placed, 0, len(events))
	for _, ev := range events {
		if ev.IsAllDay {
			continue
		}
		start, end := minutesOfDay(ev, opts.Day)
		if h := start / 60; h < opts.StartHour || h > opts.EndHour {
			continue
		}
		if opts.MinDurationMinutes > 0 && end-start < opts.MinDurationMinutes {
			end = start + opts.MinDurationMinutes
		}
		items = append(items, placed{ev: ev, start: start, end: end})
	}
	if len(items) == 0 {
		return nil
	}

	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.start != b.start {
			return a.start < b.start
		}
		return a.end-a.start > b.end-b.start
	})

	var columns [][]int // indexes into items
	cluster, clusterEnd := -1, 0
	for i := range items {
		it := &items[i]
		if cluster < 0 || it.start >= clusterEnd {
			cluster++
			clusterEnd = it.end
		} else if it.end > clusterEnd {
			clusterEnd = it.end
		}
		it.cluster = cluster

		it.col = -1
		for c, members := range columns {
			free := true
			for _, idx := range members {
				if items[idx].overlaps(*it) {
					free = false
					break
				}
			}
			if free {
				it.col = c
				break
			}
		}
		if it.col < 0 {
			it.col = len(columns)
			columns = append(columns, nil)
		}
		columns[it.col] = append(columns[it.col], i)
	}

	width := make(map[int]int)
	for _, it := range items {
		if opts.Mode == ColumnsPerCluster {
			if it.col+1 > width[it.cluster] {
				width[it.cluster] = it.col + 1
			}
		} else {
			width[it.cluster] = len(columns)
		}
	}

	blocks := make([]Block, 0, len(items))
	for _, it := range items {
		blocks = append(blocks, Block{
			Event:            it.ev,
			Column:           it.col,
			TotalColumns:     width[it.cluster],
			StartOffsetHours: float64(it.start)/60 - float64(opts.StartHour),
			DurationHours:    float64(it.end-it.start) / 60,
		})
	}
	return blocks
}

// minutesOfDay reads the start and end clock times of ev on day. The part
// before day's midnight is cut off and an event still running at the end of
// day runs to the bottom of the grid.
func minutesOfDay(ev model.CalendarEvent, day time.Time) (int, int) {
	if day.IsZero() {
		day = ev.Start
	}
	loc := day.Location()
	y, m, d := day.Date()
	dayStart := time.Date(y, m, d, 0, 0, 0, 0, loc)
	dayEnd := dayStart.AddDate(0, 0, 1)

	s := ev.Start.In(loc)
	e := ev.End.In(loc)
	start := s.Hour()*60 + s.Minute()
	if s.Before(dayStart) {
		start = 0
	}
	end := e.Hour()*60 + e.Minute()
	if e.After(s) && !e.Before(dayEnd) {
		end = 24 * 60
	}
	return start, end
}
