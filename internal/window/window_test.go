package window

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skycal/internal/model"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func intPtr(n int) *int { return &n }

func TestMonthWindowCompleteness(t *testing.T) {
	for year := 2023; year <= 2025; year++ {
		for month := time.January; month <= time.December; month++ {
			for fdow := time.Sunday; fdow <= time.Saturday; fdow++ {
				anchor := time.Date(year, month, 15, 13, 0, 0, 0, time.UTC)
				w, err := Compute(model.ViewMonth, anchor, Options{FirstDayOfWeek: fdow})
				require.NoError(t, err)

				days := w.Days
				require.Zero(t, len(days)%7, "%s %d fdow=%d", month, year, fdow)
				assert.Equal(t, fdow, days[0].Weekday())

				inMonth := 0
				seenCurrent, seenNext := false, false
				for i, d := range days {
					if i > 0 {
						require.Equal(t, days[i-1].AddDate(0, 0, 1), d, "chronological")
					}
					switch {
					case d.Month() == month:
						inMonth++
						require.False(t, seenNext, "current month after trailing overflow")
						seenCurrent = true
					case !seenCurrent:
						// leading overflow must be the previous month
						assert.Equal(t, date(year, month, 0).Month(), d.Month())
					default:
						seenNext = true
						assert.Equal(t, date(year, month+1, 1).Month(), d.Month())
					}
				}
				assert.Equal(t, DaysIn(year, month, time.UTC), inMonth)
				assert.Less(t, len(days)-inMonth, 14)
			}
		}
	}
}

func TestMonthWindowLeadingCount(t *testing.T) {
	// June 2024 starts on a Saturday.
	w, err := Compute(model.ViewMonth, date(2024, 6, 10), Options{FirstDayOfWeek: time.Sunday})
	require.NoError(t, err)
	assert.Equal(t, date(2024, 5, 26), w.Days[0])
	assert.Len(t, w.Days, 42)
	assert.Equal(t, date(2024, 7, 6), w.Days[len(w.Days)-1])

	w, err = Compute(model.ViewMonth, date(2024, 6, 10), Options{FirstDayOfWeek: time.Saturday})
	require.NoError(t, err)
	assert.Equal(t, date(2024, 6, 1), w.Days[0])
	assert.Len(t, w.Days, 35)
}

func TestMonthWindowEvenMonthHasNoOverflow(t *testing.T) {
	// February 2026 starts on a Sunday and has 28 days.
	w, err := Compute(model.ViewMonth, date(2026, 2, 3), Options{FirstDayOfWeek: time.Sunday})
	require.NoError(t, err)
	assert.Len(t, w.Days, 28)
	assert.Equal(t, date(2026, 2, 1), w.Days[0])
	assert.Equal(t, date(2026, 2, 28), w.Days[27])
}

func TestWeekWindow(t *testing.T) {
	// 2024-06-05 is a Wednesday.
	anchor := time.Date(2024, 6, 5, 18, 30, 0, 0, time.UTC)

	w, err := Compute(model.ViewWeekCompact, anchor, Options{FirstDayOfWeek: time.Monday})
	require.NoError(t, err)
	require.Len(t, w.Days, 7)
	assert.Equal(t, date(2024, 6, 3), w.Days[0])
	assert.Equal(t, date(2024, 6, 9), w.Days[6])
	assert.Nil(t, w.Hours)
}

func TestWeekWindowFiltersWeekDays(t *testing.T) {
	anchor := date(2024, 6, 5)
	opts := Options{
		FirstDayOfWeek: time.Sunday,
		WeekDays:       []time.Weekday{time.Friday, time.Monday, time.Wednesday},
	}
	w, err := Compute(model.ViewWeekCompact, anchor, opts)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{date(2024, 6, 3), date(2024, 6, 5), date(2024, 6, 7)}, w.Days)
}

func TestWeekStartOnAnchorDay(t *testing.T) {
	anchor := time.Date(2024, 6, 3, 7, 0, 0, 0, time.UTC) // Monday
	assert.Equal(t, date(2024, 6, 3), WeekStart(anchor, time.Monday))
	assert.Equal(t, date(2024, 6, 2), WeekStart(anchor, time.Sunday))
	assert.Equal(t, date(2024, 5, 28), WeekStart(anchor, time.Tuesday))
}

func TestRollingWindowSize(t *testing.T) {
	anchor := time.Date(2024, 6, 5, 22, 0, 0, 0, time.UTC)
	for _, n := range []int{0, 1, 3, 6, 13} {
		for _, mode := range []model.ViewMode{model.ViewWeekCompact, model.ViewWeekStandard} {
			opts := Options{
				FirstDayOfWeek: time.Thursday,
				WeekDays:       []time.Weekday{time.Saturday},
				RollingDays:    intPtr(n),
				StartHour:      8,
				EndHour:        20,
			}
			w, err := Compute(mode, anchor, opts)
			require.NoError(t, err)
			require.Len(t, w.Days, n+1)
			assert.Equal(t, date(2024, 6, 5), w.Days[0])
			assert.Equal(t, date(2024, 6, 5+n), w.Days[n])
		}
	}
}

func TestRollingWindowNegative(t *testing.T) {
	_, err := Compute(model.ViewWeekCompact, date(2024, 6, 5), Options{RollingDays: intPtr(-1)})
	assert.Error(t, err)
}

func TestWeekStandardHours(t *testing.T) {
	w, err := Compute(model.ViewWeekStandard, date(2024, 6, 5), Options{StartHour: 8, EndHour: 21})
	require.NoError(t, err)
	require.NotNil(t, w.Hours)
	assert.Equal(t, HourRange{Start: 8, End: 21}, *w.Hours)
	assert.Len(t, w.Hours.Hours(), 14)

	_, err = Compute(model.ViewWeekStandard, date(2024, 6, 5), Options{StartHour: 22, EndHour: 21})
	assert.True(t, errors.Is(err, ErrInvalidHourRange))

	_, err = Compute(model.ViewWeekStandard, date(2024, 6, 5), Options{StartHour: 0, EndHour: 24})
	assert.True(t, errors.Is(err, ErrInvalidHourRange))
}

func TestUnknownMode(t *testing.T) {
	_, err := Compute(model.ViewMode("agenda"), date(2024, 6, 5), Options{})
	assert.Error(t, err)
}

func TestDaysFollowAnchorLocationAcrossDST(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	// DST starts 2024-03-10 in New York.
	anchor := time.Date(2024, 3, 12, 12, 0, 0, 0, loc)
	w, err := Compute(model.ViewWeekCompact, anchor, Options{FirstDayOfWeek: time.Sunday})
	require.NoError(t, err)
	for _, d := range w.Days {
		assert.Equal(t, 0, d.Hour())
		assert.Equal(t, loc, d.Location())
	}
	assert.Equal(t, 10, w.Days[0].Day())
	assert.Equal(t, 16, w.Days[6].Day())
}
