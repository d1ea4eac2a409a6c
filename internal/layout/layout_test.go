package layout

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skycal/internal/model"
)

func ev(id string, sh, sm, eh, em int) model.CalendarEvent {
	return model.CalendarEvent{
		ID:    id,
		Start: time.Date(2024, 6, 3, sh, sm, 0, 0, time.UTC),
		End:   time.Date(2024, 6, 3, eh, em, 0, 0, time.UTC),
	}
}

func byID(blocks []Block) map[string]Block {
	out := make(map[string]Block, len(blocks))
	for _, b := range blocks {
		out[b.Event.ID] = b
	}
	return out
}

var fullDay = Options{StartHour: 0, EndHour: 23}

func TestOverlappingEventsShareDayColumns(t *testing.T) {
	blocks := byID(LayoutDay([]model.CalendarEvent{
		ev("A", 9, 0, 10, 0),
		ev("B", 9, 30, 10, 30),
		ev("C", 10, 0, 11, 0),
	}, fullDay))
	require.Len(t, blocks, 3)

	assert.NotEqual(t, blocks["A"].Column, blocks["B"].Column)
	assert.NotEqual(t, blocks["B"].Column, blocks["C"].Column)
	assert.Equal(t, blocks["A"].Column, blocks["C"].Column)
	for _, b := range blocks {
		assert.Equal(t, 2, b.TotalColumns)
	}
}

func TestDisjointEventsSingleColumn(t *testing.T) {
	blocks := LayoutDay([]model.CalendarEvent{
		ev("A", 8, 0, 9, 0),
		ev("B", 9, 0, 10, 0),
		ev("C", 13, 0, 14, 0),
	}, fullDay)
	require.Len(t, blocks, 3)
	for _, b := range blocks {
		assert.Equal(t, 0, b.Column)
		assert.Equal(t, 1, b.TotalColumns)
	}
}

func TestLongerEventPlacedFirstOnTie(t *testing.T) {
	blocks := LayoutDay([]model.CalendarEvent{
		ev("short", 9, 0, 9, 30),
		ev("long", 9, 0, 12, 0),
	}, fullDay)
	require.Len(t, blocks, 2)
	assert.Equal(t, "long", blocks[0].Event.ID)
	assert.Equal(t, 0, blocks[0].Column)
	assert.Equal(t, 1, blocks[1].Column)
}

func TestStableOnIdenticalIntervals(t *testing.T) {
	blocks := LayoutDay([]model.CalendarEvent{
		ev("first", 9, 0, 10, 0),
		ev("second", 9, 0, 10, 0),
	}, fullDay)
	assert.Equal(t, "first", blocks[0].Event.ID)
	assert.Equal(t, "second", blocks[1].Event.ID)
}

func TestGeometry(t *testing.T) {
	blocks := LayoutDay([]model.CalendarEvent{ev("A", 9, 30, 11, 0)}, Options{StartHour: 8, EndHour: 20})
	require.Len(t, blocks, 1)
	assert.InDelta(t, 1.5, blocks[0].StartOffsetHours, 1e-9)
	assert.InDelta(t, 1.5, blocks[0].DurationHours, 1e-9)

	r := blocks[0].Rect(60)
	assert.InDelta(t, 0, r.Left, 1e-9)
	assert.InDelta(t, 1, r.Width, 1e-9)
	assert.InDelta(t, 90, r.Top, 1e-9)
	assert.InDelta(t, 90, r.Height, 1e-9)
}

func TestRectSplitsWidth(t *testing.T) {
	b := Block{Column: 2, TotalColumns: 4, StartOffsetHours: 1, DurationHours: 0.5}
	r := b.Rect(40)
	assert.InDelta(t, 0.5, r.Left, 1e-9)
	assert.InDelta(t, 0.25, r.Width, 1e-9)
	assert.InDelta(t, 40, r.Top, 1e-9)
	assert.InDelta(t, 20, r.Height, 1e-9)
}

func TestEventsOutsideHoursDropped(t *testing.T) {
	blocks := LayoutDay([]model.CalendarEvent{
		ev("early", 6, 0, 9, 0),
		ev("in", 8, 45, 9, 15),
		ev("lastRow", 20, 30, 21, 0),
		ev("late", 21, 0, 22, 0),
	}, Options{StartHour: 8, EndHour: 20})
	got := byID(blocks)
	assert.Contains(t, got, "in")
	assert.Contains(t, got, "lastRow")
	assert.NotContains(t, got, "early")
	assert.NotContains(t, got, "late")
}

func TestAllDaySkipped(t *testing.T) {
	e := ev("A", 0, 0, 0, 0)
	e.IsAllDay = true
	assert.Empty(t, LayoutDay([]model.CalendarEvent{e}, fullDay))
}

func TestZeroDurationStillPlaced(t *testing.T) {
	blocks := LayoutDay([]model.CalendarEvent{ev("zero", 10, 0, 10, 0)}, fullDay)
	require.Len(t, blocks, 1)
	assert.Zero(t, blocks[0].DurationHours)
}

func TestMinDurationClamp(t *testing.T) {
	opts := fullDay
	opts.MinDurationMinutes = 15

	blocks := byID(LayoutDay([]model.CalendarEvent{
		ev("zero", 10, 0, 10, 0),
		ev("next", 10, 10, 10, 40),
	}, opts))
	assert.InDelta(t, 0.25, blocks["zero"].DurationHours, 1e-9)
	// the clamped block now overlaps the next event
	assert.NotEqual(t, blocks["zero"].Column, blocks["next"].Column)
}

func TestClusterMode(t *testing.T) {
	events := []model.CalendarEvent{
		ev("A", 9, 0, 10, 0),
		ev("B", 9, 0, 10, 0),
		ev("C", 9, 30, 10, 30),
		ev("solo", 14, 0, 15, 0),
	}

	day := byID(LayoutDay(events, fullDay))
	assert.Equal(t, 3, day["solo"].TotalColumns)

	opts := fullDay
	opts.Mode = ColumnsPerCluster
	cl := byID(LayoutDay(events, opts))
	assert.Equal(t, 3, cl["A"].TotalColumns)
	assert.Equal(t, 3, cl["C"].TotalColumns)
	assert.Equal(t, 1, cl["solo"].TotalColumns)
	assert.Equal(t, 0, cl["solo"].Column)
}

func TestCrossMidnightRunsToEndOfDay(t *testing.T) {
	e := model.CalendarEvent{
		ID:    "party",
		Start: time.Date(2024, 6, 3, 22, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 6, 4, 1, 0, 0, 0, time.UTC),
	}
	blocks := LayoutDay([]model.CalendarEvent{e}, fullDay)
	require.Len(t, blocks, 1)
	assert.InDelta(t, 2.0, blocks[0].DurationHours, 1e-9)
}

func TestCrossMidnightContinuesFromTopOfNextDay(t *testing.T) {
	e := model.CalendarEvent{
		ID:    "late",
		Start: time.Date(2024, 6, 1, 23, 30, 0, 0, time.UTC),
		End:   time.Date(2024, 6, 2, 0, 15, 0, 0, time.UTC),
	}

	first := fullDay
	first.Day = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	blocks := LayoutDay([]model.CalendarEvent{e}, first)
	require.Len(t, blocks, 1)
	assert.InDelta(t, 23.5, blocks[0].StartOffsetHours, 1e-9)
	assert.InDelta(t, 0.5, blocks[0].DurationHours, 1e-9)

	next := fullDay
	next.Day = time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC)
	blocks = LayoutDay([]model.CalendarEvent{e}, next)
	require.Len(t, blocks, 1)
	assert.InDelta(t, 0, blocks[0].StartOffsetHours, 1e-9)
	assert.InDelta(t, 0.25, blocks[0].DurationHours, 1e-9)
}

func TestMultiDayMiddleFillsWholeDay(t *testing.T) {
	e := model.CalendarEvent{
		ID:    "shift",
		Start: time.Date(2024, 6, 1, 20, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 6, 3, 6, 0, 0, 0, time.UTC),
	}
	opts := fullDay
	opts.Day = time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC)
	blocks := LayoutDay([]model.CalendarEvent{e}, opts)
	require.Len(t, blocks, 1)
	assert.InDelta(t, 0, blocks[0].StartOffsetHours, 1e-9)
	assert.InDelta(t, 24, blocks[0].DurationHours, 1e-9)
}

func TestParseColumnMode(t *testing.T) {
	m, err := ParseColumnMode("")
	require.NoError(t, err)
	assert.Equal(t, ColumnsPerDay, m)

	m, err = ParseColumnMode("cluster")
	require.NoError(t, err)
	assert.Equal(t, ColumnsPerCluster, m)

	_, err = ParseColumnMode("tight")
	assert.Error(t, err)
}
