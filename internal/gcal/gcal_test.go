package gcal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	calendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"skycal/internal/event"
	"skycal/internal/ics"
)

func TestToRawEvent(t *testing.T) {
	timed := ToRawEvent(&calendar.Event{
		Id:       "abc",
		ICalUID:  "abc@google.com",
		Summary:  "Swim",
		Start:    &calendar.EventDateTime{DateTime: "2024-06-05T17:00:00+02:00", TimeZone: "Europe/Berlin"},
		End:      &calendar.EventDateTime{DateTime: "2024-06-05T18:00:00+02:00"},
		Attendees: []*calendar.EventAttendee{
			{Email: "kid@example.com", DisplayName: "Kid"},
			nil,
		},
	})
	assert.Equal(t, "abc", timed.ID)
	assert.Equal(t, "abc@google.com", timed.UID)
	assert.Equal(t, event.Timed{DateTime: "2024-06-05T17:00:00+02:00", TimeZone: "Europe/Berlin"}, timed.Start)
	require.Len(t, timed.Attendees, 1)
	assert.Equal(t, "Kid", timed.Attendees[0].DisplayName)

	allDay := ToRawEvent(&calendar.Event{
		Start: &calendar.EventDateTime{Date: "2024-06-10"},
		End:   &calendar.EventDateTime{Date: "2024-06-11"},
	})
	assert.Equal(t, event.AllDayDate{Date: "2024-06-10"}, allDay.Start)

	assert.Nil(t, ToRawEvent(&calendar.Event{}).Start)
}

func TestPublicFeedURL(t *testing.T) {
	assert.Equal(t,
		"https://calendar.google.com/calendar/ical/en.usa%23holiday@group.v.calendar.google.com/public/basic.ics",
		PublicFeedURL("en.usa#holiday@group.v.calendar.google.com"),
	)
}

func TestListEventsPages(t *testing.T) {
	var pages int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pages++
		q := r.URL.Query()
		assert.Equal(t, "true", q.Get("singleEvents"))
		assert.Equal(t, "startTime", q.Get("orderBy"))

		resp := calendar.Events{}
		if q.Get("pageToken") == "" {
			resp.Items = []*calendar.Event{
				{Id: "1", Summary: "One", Start: &calendar.EventDateTime{Date: "2024-06-05"}, End: &calendar.EventDateTime{Date: "2024-06-06"}},
				{Id: "x", Status: "cancelled"},
			}
			resp.NextPageToken = "p2"
		} else {
			resp.Items = []*calendar.Event{
				{Id: "2", Summary: "Two", Start: &calendar.EventDateTime{DateTime: "2024-06-07T10:00:00Z"}, End: &calendar.EventDateTime{DateTime: "2024-06-07T11:00:00Z"}},
			}
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	ctx := context.Background()
	p, err := New(ctx, "key",
		[]Calendar{{ID: "holidays", CalendarID: "en.usa#holiday@group.v.calendar.google.com", Name: "Holidays"}},
		ics.NewFetcher(t.TempDir(), nil),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)
	assert.True(t, p.Has("holidays"))
	assert.Equal(t, "Holidays", p.Name("holidays"))

	evs, err := p.ListEvents(ctx, "holidays", time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, evs, 2)
	assert.Equal(t, "1", evs[0].ID)
	assert.Equal(t, "2", evs[1].ID)
	assert.Equal(t, 2, pages)

	_, err = p.ListEvents(ctx, "unknown", time.Now(), time.Now())
	assert.Error(t, err)
}

const holidayFeed = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:-//test//EN\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:inside@google.com\r\n" +
	"DTSTART:20240607T150000Z\r\n" +
	"DTEND:20240607T160000Z\r\n" +
	"SUMMARY:Last Day\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:outside@google.com\r\n" +
	"DTSTART:20240608T150000Z\r\n" +
	"DTEND:20240608T160000Z\r\n" +
	"SUMMARY:Too Late\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

// rewriteHost sends every request to target, keeping the path.
type rewriteHost struct{ target string }

func (rt rewriteHost) RoundTrip(r *http.Request) (*http.Response, error) {
	u, err := url.Parse(rt.target)
	if err != nil {
		return nil, err
	}
	r = r.Clone(r.Context())
	r.URL.Scheme = u.Scheme
	r.URL.Host = u.Host
	r.Host = u.Host
	return http.DefaultTransport.RoundTrip(r)
}

func TestGetEventsRESTReadsPublicFeed(t *testing.T) {
	var feedPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/calendar/ical/") {
			feedPath = r.URL.Path
			w.Header().Set("Content-Type", "text/calendar")
			_, _ = w.Write([]byte(holidayFeed))
			return
		}
		http.Error(w, `{"error":{"code":403,"message":"API key not valid"}}`, http.StatusForbidden)
	}))
	defer srv.Close()

	ctx := context.Background()
	feedClient := &http.Client{Transport: rewriteHost{target: srv.URL}}
	p, err := New(ctx, "bad-key",
		[]Calendar{{ID: "holidays", CalendarID: "en.usa#holiday@group.v.calendar.google.com", Name: "Holidays"}},
		ics.NewFetcher(t.TempDir(), feedClient),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)

	startDate := time.Date(2024, 6, 5, 0, 0, 0, 0, time.UTC)
	endDate := time.Date(2024, 6, 7, 0, 0, 0, 0, time.UTC)

	_, err = p.ListEvents(ctx, "holidays", startDate, endDate)
	require.Error(t, err)

	evs, err := p.GetEventsREST(ctx, "holidays", startDate, endDate)
	require.NoError(t, err)
	assert.Equal(t, "/calendar/ical/en.usa#holiday@group.v.calendar.google.com/public/basic.ics", feedPath)
	require.Len(t, evs, 1)
	assert.Equal(t, "Last Day", evs[0].Summary)
	assert.Equal(t, "inside@google.com", evs[0].UID)

	_, err = p.GetEventsREST(ctx, "unknown", startDate, endDate)
	assert.Error(t, err)
}
