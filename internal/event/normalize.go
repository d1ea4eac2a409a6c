package event

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"skycal/internal/model"
)

// ErrMalformedEvent marks a record whose start or end matches none of the
// recognized time encodings. Callers skip such records.
var ErrMalformedEvent = errors.New("malformed event")

const dateLayout = "2006-01-02"

// localDateTimeLayouts are tried, in order, for date-times without an offset.
var localDateTimeLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// Times is the canonical time triple of a normalized event.
type Times struct {
	Start    time.Time
	End      time.Time
	IsAllDay bool
}

// Normalize resolves the raw start/end encodings of one record into canonical
// times in loc. The all-day flag follows the start encoding. A missing end
// yields a one-day all-day event or a zero-length timed event; an end before
// the start is pulled up to the start.
func Normalize(raw RawEvent, loc *time.Location) (Times, error) {
	if loc == nil {
		loc = time.Local
	}
	if raw.Start == nil {
		return Times{}, fmt.Errorf("%w: start has no recognized encoding", ErrMalformedEvent)
	}

	allDay := IsAllDay(raw.Start)
	start, err := parseRawTime(raw.Start, loc)
	if err != nil {
		return Times{}, fmt.Errorf("%w: start: %v", ErrMalformedEvent, err)
	}

	var end time.Time
	if raw.End == nil {
		end = start
	} else {
		end, err = parseRawTime(raw.End, loc)
		if err != nil {
			return Times{}, fmt.Errorf("%w: end: %v", ErrMalformedEvent, err)
		}
	}

	if allDay {
		start = floorDay(start)
		end = floorDay(end)
		if !end.After(start) {
			end = start.AddDate(0, 0, 1)
		}
	} else if end.Before(start) {
		end = start
	}

	return Times{Start: start, End: end, IsAllDay: allDay}, nil
}

// ToCalendarEvent normalizes raw and copies its descriptive fields. Source
// tagging (SourceID, Color, synthesized ID) is left to the fetch layer.
func ToCalendarEvent(raw RawEvent, loc *time.Location) (model.CalendarEvent, error) {
	t, err := Normalize(raw, loc)
	if err != nil {
		return model.CalendarEvent{}, err
	}

	id := raw.ID
	if id == "" {
		id = raw.UID
	}

	ev := model.CalendarEvent{
		ID:          id,
		Summary:     raw.Summary,
		Description: raw.Description,
		Location:    raw.Location,
		Start:       t.Start,
		End:         t.End,
		IsAllDay:    t.IsAllDay,
	}
	for _, a := range raw.Attendees {
		if ident := attendeeIdentity(a); ident != "" {
			ev.Attendees = append(ev.Attendees, model.Attendee{Identity: ident})
		}
	}
	return ev, nil
}

// IsAllDay classifies a raw time: {date} objects and bare strings without a
// 'T' are all-day, everything else is timed.
func IsAllDay(t RawTime) bool {
	switch v := t.(type) {
	case AllDayDate:
		return true
	case LegacyString:
		return !strings.Contains(v.Text, "T")
	default:
		return false
	}
}

func parseRawTime(t RawTime, loc *time.Location) (time.Time, error) {
	switch v := t.(type) {
	case Timed:
		t, err := parseDateTime(v.DateTime, zoneOr(v.TimeZone, loc))
		if err != nil {
			return time.Time{}, err
		}
		return t.In(loc), nil
	case AllDayDate:
		return time.ParseInLocation(dateLayout, strings.TrimSpace(v.Date), loc)
	case LegacyString:
		s := strings.TrimSpace(v.Text)
		if !strings.Contains(s, "T") {
			return time.ParseInLocation(dateLayout, s, loc)
		}
		return parseDateTime(s, loc)
	default:
		return time.Time{}, errors.New("no recognized time encoding")
	}
}

// parseDateTime accepts RFC 3339 (with offset) and falls back to local
// date-times interpreted in loc. The result is always expressed in loc.
func parseDateTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.In(loc), nil
	}
	for _, layout := range localDateTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date-time %q", s)
}

// zoneOr resolves an IANA zone name attached to a {dateTime} object; it only
// matters for offset-less values.
func zoneOr(name string, fallback *time.Location) *time.Location {
	if name == "" {
		return fallback
	}
	if loc, err := time.LoadLocation(name); err == nil {
		return loc
	}
	return fallback
}

func floorDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func attendeeIdentity(a RawAttendee) string {
	for _, s := range []string{a.Identity, a.Email, a.DisplayName, a.Name} {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}
