package event

import (
	"bytes"
	"encoding/json"
)

// RawTime is the time encoding of one raw event boundary. Exactly one of
// Timed, AllDayDate or LegacyString; a nil RawTime means the record carried
// no recognizable encoding.
type RawTime interface {
	isRawTime()
}

// Timed is the {"dateTime": ...} object form.
type Timed struct {
	DateTime string
	TimeZone string
}

// AllDayDate is the {"date": "YYYY-MM-DD"} object form.
type AllDayDate struct {
	Date string
}

// LegacyString is a bare ISO-8601 string. It is all-day when it has no 'T'
// time component.
type LegacyString struct {
	Text string
}

func (Timed) isRawTime()        {}
func (AllDayDate) isRawTime()   {}
func (LegacyString) isRawTime() {}

// RawAttendee is an attendee as sources report them.
type RawAttendee struct {
	Identity    string `json:"identity,omitempty"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	Name        string `json:"name,omitempty"`
}

// RawEvent is a single record as returned by a calendar data provider,
// before normalization.
type RawEvent struct {
	ID          string
	UID         string
	Summary     string
	Description string
	Location    string
	Start       RawTime
	End         RawTime
	Attendees   []RawAttendee
}

type rawEventJSON struct {
	ID          string          `json:"id"`
	UID         string          `json:"uid"`
	Summary     string          `json:"summary"`
	Description string          `json:"description"`
	Location    string          `json:"location"`
	Start       json.RawMessage `json:"start"`
	End         json.RawMessage `json:"end"`
	Attendees   []RawAttendee   `json:"attendees"`
}

type rawTimeObject struct {
	DateTime string `json:"dateTime,omitempty"`
	Date     string `json:"date,omitempty"`
	TimeZone string `json:"timeZone,omitempty"`
}

// UnmarshalJSON detects the time encoding of start/end once. An unknown
// shape is kept as a nil RawTime so a single bad record does not fail the
// whole batch; Normalize rejects it later.
func (r *RawEvent) UnmarshalJSON(data []byte) error {
	var aux rawEventJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*r = RawEvent{
		ID:          aux.ID,
		UID:         aux.UID,
		Summary:     aux.Summary,
		Description: aux.Description,
		Location:    aux.Location,
		Start:       decodeRawTime(aux.Start),
		End:         decodeRawTime(aux.End),
		Attendees:   aux.Attendees,
	}
	return nil
}

// MarshalJSON writes the event back in the provider wire shape.
func (r RawEvent) MarshalJSON() ([]byte, error) {
	aux := struct {
		ID          string        `json:"id,omitempty"`
		UID         string        `json:"uid,omitempty"`
		Summary     string        `json:"summary,omitempty"`
		Description string        `json:"description,omitempty"`
		Location    string        `json:"location,omitempty"`
		Start       any           `json:"start,omitempty"`
		End         any           `json:"end,omitempty"`
		Attendees   []RawAttendee `json:"attendees,omitempty"`
	}{
		ID:          r.ID,
		UID:         r.UID,
		Summary:     r.Summary,
		Description: r.Description,
		Location:    r.Location,
		Start:       encodeRawTime(r.Start),
		End:         encodeRawTime(r.End),
		Attendees:   r.Attendees,
	}
	return json.Marshal(aux)
}

func decodeRawTime(msg json.RawMessage) RawTime {
	msg = bytes.TrimSpace(msg)
	if len(msg) == 0 || bytes.Equal(msg, []byte("null")) {
		return nil
	}
	switch msg[0] {
	case '"':
		var s string
		if err := json.Unmarshal(msg, &s); err != nil || s == "" {
			return nil
		}
		return LegacyString{Text: s}
	case '{':
		var obj rawTimeObject
		if err := json.Unmarshal(msg, &obj); err != nil {
			return nil
		}
		if obj.DateTime != "" {
			return Timed{DateTime: obj.DateTime, TimeZone: obj.TimeZone}
		}
		if obj.Date != "" {
			return AllDayDate{Date: obj.Date}
		}
	}
	return nil
}

func encodeRawTime(t RawTime) any {
	switch v := t.(type) {
	case Timed:
		return rawTimeObject{DateTime: v.DateTime, TimeZone: v.TimeZone}
	case AllDayDate:
		return rawTimeObject{Date: v.Date}
	case LegacyString:
		return v.Text
	default:
		return nil
	}
}
