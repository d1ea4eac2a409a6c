package ics

import (
	"errors"
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	appLog "skycal/internal/log"
)

const defaultMaxOccurrencesPerEvent = 5000

// Range is the window occurrences are expanded into.
type Range struct {
	Start time.Time
	End   time.Time
}

// Occurrence is one concrete instance of a component.
type Occurrence struct {
	UID         string
	InstanceKey string
	Summary     string
	Description string
	Location    string
	AllDay      bool
	Start       time.Time
	End         time.Time
	Recurring   bool
}

// ExpandResult is the expanded instances plus the UIDs that hit the cap.
type ExpandResult struct {
	Occurrences []Occurrence
	Truncated   []string
}

// Expand turns components into the occurrences that intersect rng:
// single events, RRULE series with EXDATE removal, and RECURRENCE-ID
// overrides. maxPerEvent caps each series; zero uses the default.
// Occurrences are ordered by start, then UID.
func Expand(comps []Component, rng Range, maxPerEvent int) (ExpandResult, error) {
	var result ExpandResult
	if rng.End.Before(rng.Start) {
		return result, errors.New("expand: range end is before range start")
	}
	if maxPerEvent <= 0 {
		maxPerEvent = defaultMaxOccurrencesPerEvent
	}

	bases := make(map[string][]Component)
	overrides := make(map[string][]Component)
	uids := make([]string, 0)
	for _, c := range comps {
		if c.IsOverride() {
			overrides[c.UID] = append(overrides[c.UID], c)
			continue
		}
		if _, seen := bases[c.UID]; !seen {
			uids = append(uids, c.UID)
		}
		bases[c.UID] = append(bases[c.UID], c)
	}

	for _, uid := range uids {
		truncated := false
		for _, c := range bases[uid] {
			occ, hitCap := expandComponent(c, overrides[uid], rng, maxPerEvent)
			truncated = truncated || hitCap
			result.Occurrences = append(result.Occurrences, occ...)
		}
		if truncated {
			result.Truncated = append(result.Truncated, uid)
			appLog.Error("expand: truncated occurrences for UID due to cap",
				errors.New("max occurrences reached"),
				"uid", uid,
				"cap", maxPerEvent,
			)
		}
	}

	sort.SliceStable(result.Occurrences, func(i, j int) bool {
		a, b := result.Occurrences[i], result.Occurrences[j]
		if !a.Start.Equal(b.Start) {
			return a.Start.Before(b.Start)
		}
		return a.UID < b.UID
	})
	return result, nil
}

func expandComponent(c Component, overrides []Component, rng Range, maxPerEvent int) ([]Occurrence, bool) {
	if c.RawRRule == "" {
		if !intersects(c.Start, c.End, rng) {
			return nil, false
		}
		return []Occurrence{makeOccurrence(c, c.Start, c.End, false)}, false
	}
	return expandSeries(c, overrides, rng, maxPerEvent)
}

func expandSeries(c Component, overrides []Component, rng Range, maxPerEvent int) ([]Occurrence, bool) {
	r, err := rrule.StrToRRule(c.RawRRule)
	if err != nil {
		appLog.Error("expand: failed to parse RRULE", err, "uid", c.UID, "rrule", c.RawRRule)
		return nil, false
	}
	r.DTStart(c.Start)

	var set rrule.Set
	set.RRule(r)
	loc := c.Start.Location()
	for _, ex := range c.ExDates {
		set.ExDate(ex.In(loc))
	}

	// Widen the lower bound by the event length so a series instance that
	// started before the window but still runs into it is kept.
	dur := c.End.Sub(c.Start)
	times := set.Between(rng.Start.Add(-dur).In(loc), rng.End.In(loc), true)

	hitCap := false
	if len(times) > maxPerEvent {
		times = times[:maxPerEvent]
		hitCap = true
	}

	// All-day spans are counted in days so DST shifts don't skew the end.
	days := 0
	if c.AllDay {
		sy, sm, sd := c.Start.Date()
		ey, em, ed := c.End.Date()
		days = int(time.Date(ey, em, ed, 0, 0, 0, 0, time.UTC).Sub(time.Date(sy, sm, sd, 0, 0, 0, 0, time.UTC)).Hours() / 24)
		if days < 1 {
			days = 1
		}
	}

	out := make([]Occurrence, 0, len(times))
	for _, start := range times {
		var end time.Time
		if c.AllDay {
			start = time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())
			end = start.AddDate(0, 0, days)
		} else {
			end = start.Add(dur)
		}

		if o, ok := findOverride(overrides, start); ok {
			if intersects(o.Start, o.End, rng) {
				out = append(out, makeOccurrence(o, o.Start, o.End, true))
			}
			continue
		}
		if !intersects(start, end, rng) {
			continue
		}
		out = append(out, makeOccurrence(c, start, end, true))
	}
	return out, hitCap
}

// findOverride returns the override whose RECURRENCE-ID equals start.
func findOverride(overrides []Component, start time.Time) (Component, bool) {
	for _, o := range overrides {
		if o.Recurrence != nil && o.Recurrence.Equal(start) {
			return o, true
		}
	}
	return Component{}, false
}

func makeOccurrence(c Component, start, end time.Time, recurring bool) Occurrence {
	occ := Occurrence{
		UID:         c.UID,
		Summary:     c.Summary,
		Description: c.Description,
		Location:    c.Location,
		AllDay:      c.AllDay,
		Start:       start,
		End:         end,
		Recurring:   recurring,
	}
	occ.InstanceKey = start.UTC().Format(time.RFC3339)
	if c.AllDay {
		occ.InstanceKey = start.Format("2006-01-02")
	}
	return occ
}

// intersects treats the event as [start, end] and the range as [rng.Start,
// rng.End]; zero-length events on a boundary count.
func intersects(start, end time.Time, rng Range) bool {
	if end.Before(start) {
		end = start
	}
	return !end.Before(rng.Start) && !start.After(rng.End)
}
