package widget

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skycal/internal/config"
	"skycal/internal/fetch"
	"skycal/internal/model"
)

type stubEvents struct {
	mu      sync.Mutex
	sources []fetch.Source
	events  []model.CalendarEvent
	forced  []time.Time
}

func (s *stubEvents) Refresh(_ context.Context, force bool, anchor time.Time) fetch.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	if force {
		s.forced = append(s.forced, anchor)
	}
	return fetch.Report{Outcome: "ran", Forced: force}
}

func (s *stubEvents) Snapshot() []model.CalendarEvent { return s.events }
func (s *stubEvents) Sources() []fetch.Source         { return s.sources }

type stubNamer map[string]string

func (n stubNamer) DisplayName(_ context.Context, id string) string { return n[id] }

var utc = time.UTC

func at(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, utc)
}

func timed(id, src string, start, end time.Time) model.CalendarEvent {
	return model.CalendarEvent{ID: id, Summary: id, SourceID: src, Start: start, End: end}
}

func allDay(id, src string, start time.Time, days int) model.CalendarEvent {
	return model.CalendarEvent{ID: id, Summary: id, SourceID: src, IsAllDay: true, Start: start, End: start.AddDate(0, 0, days)}
}

func newTestWidget(t *testing.T, mutate func(c *config.Config)) (*Widget, *stubEvents) {
	t.Helper()
	cfg := &config.Config{
		Entities: []string{"calendar.family", "school"},
		Timezone: "UTC",
		ICS:      []config.ICSConfig{{ID: "school", URL: "https://example.com/s.ics", Name: "School"}},
	}
	if mutate != nil {
		mutate(cfg)
	}
	cfg.Normalize()

	ev := &stubEvents{sources: []fetch.Source{{ID: "calendar.family"}, {ID: "school", Color: "#00ff00"}}}
	// Wednesday
	now := at(2024, 6, 5, 10, 30)
	w, err := New(cfg, ev, func() time.Time { return now })
	require.NoError(t, err)
	return w, ev
}

func TestNewStartsOnDefaultViewToday(t *testing.T) {
	w, _ := newTestWidget(t, func(c *config.Config) { c.ViewMode = "week-compact" })
	s := w.State()
	assert.Equal(t, model.ViewWeekCompact, s.Mode)
	assert.Equal(t, at(2024, 6, 5, 0, 0), s.Anchor)
	assert.Empty(t, s.Hidden)
}

func TestNewRejectsBadConfig(t *testing.T) {
	cfg := &config.Config{DefaultView: "agenda"}
	cfg.Normalize()
	_, err := New(cfg, &stubEvents{}, nil)
	assert.True(t, errors.Is(err, config.ErrConfiguration))
}

func TestNavigationForcesRefresh(t *testing.T) {
	w, ev := newTestWidget(t, nil)
	ctx := context.Background()

	s := w.Next(ctx)
	assert.Equal(t, at(2024, 7, 5, 0, 0), s.Anchor)
	s = w.Previous(ctx)
	s = w.Previous(ctx)
	assert.Equal(t, at(2024, 5, 5, 0, 0), s.Anchor)
	s = w.Today(ctx)
	assert.Equal(t, at(2024, 6, 5, 0, 0), s.Anchor)

	require.Len(t, ev.forced, 4)
	assert.Equal(t, at(2024, 7, 5, 0, 0), ev.forced[0])
}

func TestNavigationWeekAndRolling(t *testing.T) {
	w, _ := newTestWidget(t, func(c *config.Config) { c.ViewMode = "week-standard" })
	assert.Equal(t, at(2024, 6, 12, 0, 0), w.Next(context.Background()).Anchor)

	two := 2
	w, _ = newTestWidget(t, func(c *config.Config) {
		c.ViewMode = "week-compact"
		c.RollingDays = &two
	})
	assert.Equal(t, at(2024, 6, 2, 0, 0), w.Previous(context.Background()).Anchor)
}

func TestSetAnchor(t *testing.T) {
	w, ev := newTestWidget(t, nil)
	s := w.SetAnchor(time.Date(2024, 2, 29, 15, 0, 0, 0, time.FixedZone("X", 3600)))
	assert.Equal(t, at(2024, 2, 29, 0, 0), s.Anchor)
	assert.Empty(t, ev.forced)

	v, err := w.View()
	require.NoError(t, err)
	assert.Equal(t, "February 2024", v.PeriodLabel)
}

func TestSetViewModeKeepsAnchor(t *testing.T) {
	w, ev := newTestWidget(t, nil)
	s, err := w.SetViewMode("week-standard")
	require.NoError(t, err)
	assert.Equal(t, model.ViewWeekStandard, s.Mode)
	assert.Equal(t, at(2024, 6, 5, 0, 0), s.Anchor)
	assert.Empty(t, ev.forced)

	_, err = w.SetViewMode("year")
	assert.Error(t, err)
}

func TestToggleSourceHidesEvents(t *testing.T) {
	w, ev := newTestWidget(t, nil)
	ev.events = []model.CalendarEvent{
		timed("dentist", "calendar.family", at(2024, 6, 5, 9, 0), at(2024, 6, 5, 10, 0)),
		timed("pe", "school", at(2024, 6, 5, 11, 0), at(2024, 6, 5, 12, 0)),
	}
	day := at(2024, 6, 5, 0, 0)
	assert.Len(t, w.EventsForDay(day), 2)

	s, err := w.ToggleSource("school")
	require.NoError(t, err)
	assert.Equal(t, []string{"school"}, s.Hidden)
	got := w.EventsForDay(day)
	require.Len(t, got, 1)
	assert.Equal(t, "dentist", got[0].ID)

	s, err = w.ToggleSource("school")
	require.NoError(t, err)
	assert.Empty(t, s.Hidden)
	assert.Len(t, w.EventsForDay(day), 2)

	_, err = w.ToggleSource("calendar.nope")
	assert.Error(t, err)
}

func TestMonthView(t *testing.T) {
	w, ev := newTestWidget(t, func(c *config.Config) { c.FirstDayOfWeek = 1 })
	ev.events = []model.CalendarEvent{
		timed("a", "calendar.family", at(2024, 6, 5, 8, 0), at(2024, 6, 5, 9, 0)),
		timed("b", "calendar.family", at(2024, 6, 5, 12, 0), at(2024, 6, 5, 13, 0)),
		timed("c", "school", at(2024, 6, 5, 7, 0), at(2024, 6, 5, 7, 30)),
		timed("d", "school", at(2024, 6, 5, 18, 0), at(2024, 6, 5, 19, 0)),
		allDay("trip", "calendar.family", at(2024, 6, 5, 0, 0), 1),
	}

	v, err := w.View()
	require.NoError(t, err)
	assert.Equal(t, model.ViewMonth, v.Mode)
	assert.Equal(t, "Family Calendar", v.Title)
	assert.Equal(t, "June 2024", v.PeriodLabel)
	assert.Equal(t, []string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}, v.DayHeaders)
	assert.Empty(t, v.Hours)

	// June 2024 starts on a Saturday: five leading May cells on a Monday grid.
	require.Len(t, v.Days, 35)
	assert.Equal(t, "2024-05-27", v.Days[0].Date)
	assert.False(t, v.Days[0].InMonth)
	assert.Equal(t, 22, v.Days[0].WeekNumber)
	assert.Zero(t, v.Days[1].WeekNumber)
	assert.Equal(t, 23, v.Days[7].WeekNumber)

	wed := v.Days[9]
	assert.Equal(t, "2024-06-05", wed.Date)
	assert.True(t, wed.Today)
	assert.True(t, wed.InMonth)
	require.Len(t, wed.Events, 3)
	assert.Equal(t, "trip", wed.Events[0].ID)
	assert.Equal(t, "c", wed.Events[1].ID)
	assert.Equal(t, "a", wed.Events[2].ID)
	assert.Equal(t, 2, wed.More)
}

func TestMonthViewWithoutWeekNumbers(t *testing.T) {
	off := false
	w, _ := newTestWidget(t, func(c *config.Config) { c.ShowWeekNumbers = &off })
	v, err := w.View()
	require.NoError(t, err)
	for _, d := range v.Days {
		assert.Zero(t, d.WeekNumber)
	}
}

func TestWeekCompactView(t *testing.T) {
	w, ev := newTestWidget(t, func(c *config.Config) {
		c.ViewMode = "week-compact"
		c.WeekDays = []int{1, 2, 3, 4, 5}
	})
	ev.events = []model.CalendarEvent{
		timed("late", "calendar.family", at(2024, 6, 4, 20, 0), at(2024, 6, 4, 21, 0)),
		timed("early", "school", at(2024, 6, 4, 8, 0), at(2024, 6, 4, 9, 0)),
	}

	v, err := w.View()
	require.NoError(t, err)
	assert.Equal(t, "June 3-7, 2024", v.PeriodLabel)
	assert.Equal(t, []string{"Mon", "Tue", "Wed", "Thu", "Fri"}, v.DayHeaders)
	require.Len(t, v.Days, 5)

	tue := v.Days[1]
	require.Len(t, tue.Events, 2)
	assert.Equal(t, "early", tue.Events[0].ID)
	assert.Equal(t, "late", tue.Events[1].ID)
	assert.Zero(t, tue.More)
}

func TestWeekStandardView(t *testing.T) {
	w, ev := newTestWidget(t, func(c *config.Config) { c.ViewMode = "week-standard" })
	ev.events = []model.CalendarEvent{
		allDay("camp", "school", at(2024, 6, 4, 0, 0), 2),
		allDay("trash", "calendar.family", at(2024, 6, 5, 0, 0), 1),
		timed("a", "calendar.family", at(2024, 6, 5, 9, 0), at(2024, 6, 5, 10, 0)),
		timed("b", "school", at(2024, 6, 5, 9, 30), at(2024, 6, 5, 11, 0)),
		timed("night", "school", at(2024, 6, 5, 23, 0), at(2024, 6, 5, 23, 30)),
	}

	v, err := w.View()
	require.NoError(t, err)
	assert.Equal(t, "June 2-8, 2024", v.PeriodLabel)
	assert.Equal(t, 8, v.Hours[0])
	assert.Equal(t, 21, v.Hours[len(v.Hours)-1])
	assert.Equal(t, 2, v.MaxAllDay)

	wed := v.Days[3]
	assert.Equal(t, "2024-06-05", wed.Date)
	require.Len(t, wed.AllDay, 2)
	assert.Empty(t, wed.Events)
	require.Len(t, wed.Blocks, 2)
	assert.Equal(t, "a", wed.Blocks[0].Event.ID)
	assert.Equal(t, 0, wed.Blocks[0].Column)
	assert.Equal(t, 1, wed.Blocks[1].Column)
	assert.Equal(t, 2, wed.Blocks[0].TotalColumns)
	assert.InDelta(t, 1.0, wed.Blocks[0].StartOffsetHours, 1e-9)

	_, err = w.ToggleSource("school")
	require.NoError(t, err)
	v, err = w.View()
	require.NoError(t, err)
	assert.Equal(t, 1, v.MaxAllDay)
	require.Len(t, v.Days[3].Blocks, 1)
	assert.Equal(t, 1, v.Days[3].Blocks[0].TotalColumns)
}

func TestSourceBadges(t *testing.T) {
	w, _ := newTestWidget(t, nil)

	v, err := w.View()
	require.NoError(t, err)
	require.Len(t, v.Sources, 2)
	assert.Equal(t, SourceBadge{ID: "calendar.family", Name: "family", Initial: "F", Color: fetch.DefaultColor(0)}, v.Sources[0])
	assert.Equal(t, SourceBadge{ID: "school", Name: "School", Initial: "S", Color: "#00ff00"}, v.Sources[1])

	w.LoadNames(context.Background(), stubNamer{"calendar.family": "Müller Family"})
	_, err = w.ToggleSource("calendar.family")
	require.NoError(t, err)
	v, err = w.View()
	require.NoError(t, err)
	assert.Equal(t, "Müller Family", v.Sources[0].Name)
	assert.Equal(t, "M", v.Sources[0].Initial)
	assert.True(t, v.Sources[0].Hidden)
}

func TestShortNameAndInitial(t *testing.T) {
	assert.Equal(t, "family", ShortName("calendar.family"))
	assert.Equal(t, "a.b", ShortName("calendar.a.b"))
	assert.Equal(t, "school", ShortName("school"))
	assert.Equal(t, "calendar.", ShortName("calendar."))
	assert.Equal(t, "Ö", Initial("östlich"))
	assert.Equal(t, "", Initial(""))
}

func TestPresentationPassThrough(t *testing.T) {
	w, _ := newTestWidget(t, func(c *config.Config) {
		c.CompactHeader = true
		c.HeightScale = 1.5
		c.HeaderColor = "#123456"
	})
	v, err := w.View()
	require.NoError(t, err)
	assert.Equal(t, Presentation{HeightScale: 1.5, CompactHeader: true, HeaderColor: "#123456"}, v.Presentation)
}

type ctxRecorder struct {
	stubEvents
	errs []error
}

func (c *ctxRecorder) Refresh(ctx context.Context, force bool, anchor time.Time) fetch.Report {
	c.errs = append(c.errs, ctx.Err())
	return c.stubEvents.Refresh(ctx, force, anchor)
}

func TestNavigationRefreshOutlivesCaller(t *testing.T) {
	cfg := &config.Config{Entities: []string{"calendar.family"}, Timezone: "UTC"}
	cfg.Normalize()
	rec := &ctxRecorder{}
	w, err := New(cfg, rec, func() time.Time { return at(2024, 6, 5, 10, 0) })
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := w.Next(ctx)

	assert.Equal(t, at(2024, 7, 5, 0, 0), s.Anchor)
	require.Len(t, rec.errs, 1)
	assert.NoError(t, rec.errs[0])
}

func TestRollingZeroShowsSingleDay(t *testing.T) {
	zero := 0
	w, _ := newTestWidget(t, func(c *config.Config) {
		c.ViewMode = "week-compact"
		c.RollingDays = &zero
	})

	v, err := w.View()
	require.NoError(t, err)
	require.Len(t, v.Days, 1)
	assert.Equal(t, "2024-06-05", v.Days[0].Date)

	assert.Equal(t, at(2024, 6, 6, 0, 0), w.Next(context.Background()).Anchor)
	v, err = w.View()
	require.NoError(t, err)
	require.Len(t, v.Days, 1)
	assert.Equal(t, "2024-06-06", v.Days[0].Date)
}
