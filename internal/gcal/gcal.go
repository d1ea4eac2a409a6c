// Package gcal reads public Google calendars: the Calendar v3 API with an
// API key, falling back to the calendar's public ICS feed.
package gcal

import (
	"context"
	"fmt"
	"net/url"
	"time"

	calendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"skycal/internal/event"
	"skycal/internal/ics"
	appLog "skycal/internal/log"
)

// Calendar maps a source id to a Google calendar id.
type Calendar struct {
	ID         string
	CalendarID string
	Name       string
}

// Provider serves Google calendars as sources.
type Provider struct {
	svc       *calendar.Service
	calendars map[string]Calendar
	feeds     *ics.Provider
}

// New creates a provider. fetcher backs the public ICS fallback; extra
// client options are appended after the API key.
func New(ctx context.Context, apiKey string, cals []Calendar, fetcher *ics.Fetcher, opts ...option.ClientOption) (*Provider, error) {
	clientOpts := append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	svc, err := calendar.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Calendar service: %w", err)
	}

	p := &Provider{
		svc:       svc,
		calendars: make(map[string]Calendar, len(cals)),
		feeds:     ics.NewProvider(fetcher),
	}
	for _, c := range cals {
		if c.CalendarID == "" {
			c.CalendarID = c.ID
		}
		p.calendars[c.ID] = c
		p.feeds.AddFeed(ics.Feed{ID: c.ID, URL: PublicFeedURL(c.CalendarID), Name: c.Name})
	}
	return p, nil
}

// PublicFeedURL is the public ICS address of a Google calendar.
func PublicFeedURL(calendarID string) string {
	return "https://calendar.google.com/calendar/ical/" + url.PathEscape(calendarID) + "/public/basic.ics"
}

// Has reports whether id is a configured Google calendar.
func (p *Provider) Has(id string) bool {
	_, ok := p.calendars[id]
	return ok
}

// Name returns the configured display name.
func (p *Provider) Name(id string) string {
	return p.calendars[id].Name
}

// ListEvents pages through events.list with recurring events expanded.
func (p *Provider) ListEvents(ctx context.Context, sourceID string, start, end time.Time) ([]event.RawEvent, error) {
	cal, ok := p.calendars[sourceID]
	if !ok {
		return nil, fmt.Errorf("unknown google calendar %q", sourceID)
	}

	call := p.svc.Events.List(cal.CalendarID).
		TimeMin(start.Format(time.RFC3339)).
		TimeMax(end.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		MaxResults(250)

	out := make([]event.RawEvent, 0)
	err := call.Pages(ctx, func(page *calendar.Events) error {
		for _, item := range page.Items {
			if item.Status == "cancelled" {
				continue
			}
			out = append(out, ToRawEvent(item))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	appLog.Debug("gcal list completed", "source", sourceID, "events", len(out))
	return out, nil
}

// GetEventsREST reads the public ICS feed over whole days.
func (p *Provider) GetEventsREST(ctx context.Context, sourceID string, startDate, endDate time.Time) ([]event.RawEvent, error) {
	if !p.Has(sourceID) {
		return nil, fmt.Errorf("unknown google calendar %q", sourceID)
	}
	return p.feeds.ListEvents(ctx, sourceID, startDate, endDate.AddDate(0, 0, 1))
}

// ToRawEvent converts an API event into the raw record shape.
func ToRawEvent(item *calendar.Event) event.RawEvent {
	raw := event.RawEvent{
		ID:          item.Id,
		UID:         item.ICalUID,
		Summary:     item.Summary,
		Description: item.Description,
		Location:    item.Location,
		Start:       rawTime(item.Start),
		End:         rawTime(item.End),
	}
	for _, a := range item.Attendees {
		if a == nil {
			continue
		}
		raw.Attendees = append(raw.Attendees, event.RawAttendee{
			Email:       a.Email,
			DisplayName: a.DisplayName,
		})
	}
	return raw
}

func rawTime(t *calendar.EventDateTime) event.RawTime {
	switch {
	case t == nil:
		return nil
	case t.DateTime != "":
		return event.Timed{DateTime: t.DateTime, TimeZone: t.TimeZone}
	case t.Date != "":
		return event.AllDayDate{Date: t.Date}
	default:
		return nil
	}
}
