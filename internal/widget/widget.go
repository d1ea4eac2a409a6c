// Package widget is the top-level controller. It owns the navigation state
// and the hidden-source set and builds the view model the UI renders.
package widget

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"skycal/internal/config"
	"skycal/internal/fetch"
	"skycal/internal/layout"
	appLog "skycal/internal/log"
	"skycal/internal/model"
	"skycal/internal/schedule"
	"skycal/internal/window"
)

// MonthEventLimit is the number of events a month cell lists before "+N more".
const MonthEventLimit = 3

// Events is the part of the fetch coordinator the widget drives.
type Events interface {
	Refresh(ctx context.Context, force bool, anchor time.Time) fetch.Report
	Snapshot() []model.CalendarEvent
	Sources() []fetch.Source
}

// Namer resolves remote display names for sources without a configured one.
type Namer interface {
	DisplayName(ctx context.Context, sourceID string) string
}

// ViewState is the navigation state: what is shown and around which date.
type ViewState struct {
	Mode   model.ViewMode `json:"mode"`
	Anchor time.Time      `json:"anchor"`
	Hidden []string       `json:"hidden"`
}

// Widget is safe for concurrent use. Commands and View never observe a
// half-applied navigation step.
type Widget struct {
	cfg     *config.Config
	events  Events
	clock   func() time.Time
	loc     *time.Location
	winOpts window.Options
	layOpts layout.Options

	mu     sync.RWMutex
	mode   model.ViewMode
	anchor time.Time
	hidden schedule.Hidden
	names  map[string]string
}

// New builds a widget showing cfg's default view around today. clock may be
// nil for time.Now.
func New(cfg *config.Config, events Events, clock func() time.Time) (*Widget, error) {
	if clock == nil {
		clock = time.Now
	}
	mode, err := model.ParseViewMode(cfg.DefaultView)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrConfiguration, err)
	}
	colMode, err := layout.ParseColumnMode(cfg.Layout.ColumnMode)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrConfiguration, err)
	}
	if _, err := window.ValidateHours(cfg.StartHour(), cfg.EndHour()); err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrConfiguration, err)
	}

	w := &Widget{
		cfg:     cfg,
		events:  events,
		clock:   clock,
		loc:     cfg.Location(),
		winOpts: WindowOptions(cfg),
		layOpts: layout.Options{
			StartHour:          cfg.StartHour(),
			EndHour:            cfg.EndHour(),
			MinDurationMinutes: cfg.MinDuration(),
			Mode:               colMode,
		},
		mode:   mode,
		hidden: schedule.Hidden{},
		names:  map[string]string{},
	}
	w.anchor = w.today()
	return w, nil
}

// WindowOptions converts the card options into window options.
func WindowOptions(cfg *config.Config) window.Options {
	opts := window.Options{
		FirstDayOfWeek: time.Weekday(cfg.FirstDayOfWeek),
		RollingDays:    cfg.RollingDays,
		StartHour:      cfg.StartHour(),
		EndHour:        cfg.EndHour(),
	}
	for _, d := range cfg.WeekDays {
		opts.WeekDays = append(opts.WeekDays, time.Weekday(d))
	}
	return opts
}

func (w *Widget) today() time.Time {
	return window.Day(w.clock().In(w.loc))
}

// LoadNames asks n for the display name of every source that has no
// configured one. Lookups that fail leave the id-derived name in place.
func (w *Widget) LoadNames(ctx context.Context, n Namer) {
	names := make(map[string]string)
	for _, src := range w.events.Sources() {
		if name := n.DisplayName(ctx, src.ID); name != "" {
			names[src.ID] = name
		}
	}
	w.mu.Lock()
	w.names = names
	w.mu.Unlock()
	appLog.Debug("source names loaded", "resolved", len(names))
}

// State returns a copy of the current navigation state.
func (w *Widget) State() ViewState {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stateLocked()
}

func (w *Widget) stateLocked() ViewState {
	s := ViewState{Mode: w.mode, Anchor: w.anchor, Hidden: make([]string, 0, len(w.hidden))}
	for _, src := range w.events.Sources() {
		if w.hidden.Has(src.ID) {
			s.Hidden = append(s.Hidden, src.ID)
		}
	}
	return s
}

// Next moves one period forward and forces a refresh.
func (w *Widget) Next(ctx context.Context) ViewState {
	return w.navigate(ctx, func(mode model.ViewMode, anchor time.Time) time.Time {
		return window.Shift(mode, anchor, window.Forward, w.cfg.RollingDays)
	})
}

// Previous moves one period back and forces a refresh.
func (w *Widget) Previous(ctx context.Context) ViewState {
	return w.navigate(ctx, func(mode model.ViewMode, anchor time.Time) time.Time {
		return window.Shift(mode, anchor, window.Backward, w.cfg.RollingDays)
	})
}

// Today jumps back to the current date and forces a refresh.
func (w *Widget) Today(ctx context.Context) ViewState {
	return w.navigate(ctx, func(model.ViewMode, time.Time) time.Time {
		return w.today()
	})
}

func (w *Widget) navigate(ctx context.Context, step func(model.ViewMode, time.Time) time.Time) ViewState {
	w.mu.Lock()
	w.anchor = step(w.mode, w.anchor)
	state := w.stateLocked()
	w.mu.Unlock()

	appLog.Debug("navigated", "mode", string(state.Mode), "anchor", state.Anchor.Format(time.DateOnly))
	// The step is already applied; finish the fetch even if the caller leaves.
	w.events.Refresh(context.WithoutCancel(ctx), true, state.Anchor)
	return state
}

// SetAnchor moves the view to date without refetching.
func (w *Widget) SetAnchor(date time.Time) ViewState {
	y, m, d := date.Date()
	w.mu.Lock()
	defer w.mu.Unlock()
	w.anchor = time.Date(y, m, d, 0, 0, 0, 0, w.loc)
	return w.stateLocked()
}

// SetViewMode switches the view without touching the anchor or refetching.
func (w *Widget) SetViewMode(mode string) (ViewState, error) {
	m, err := model.ParseViewMode(mode)
	if err != nil {
		return ViewState{}, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.mode = m
	return w.stateLocked(), nil
}

// ToggleSource hides a visible source or shows a hidden one.
func (w *Widget) ToggleSource(id string) (ViewState, error) {
	if !w.hasSource(id) {
		return ViewState{}, fmt.Errorf("unknown source %q", id)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.hidden.Has(id) {
		delete(w.hidden, id)
	} else {
		w.hidden[id] = struct{}{}
	}
	return w.stateLocked(), nil
}

func (w *Widget) hasSource(id string) bool {
	for _, src := range w.events.Sources() {
		if src.ID == id {
			return true
		}
	}
	return false
}

// EventsForDay returns the visible events on date, in fetch order.
func (w *Widget) EventsForDay(date time.Time) []model.CalendarEvent {
	w.mu.RLock()
	hidden := w.hiddenCopy()
	w.mu.RUnlock()
	y, m, d := date.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, w.loc)
	return schedule.EventsForDay(day, w.events.Snapshot(), hidden)
}

func (w *Widget) hiddenCopy() schedule.Hidden {
	out := make(schedule.Hidden, len(w.hidden))
	for id := range w.hidden {
		out[id] = struct{}{}
	}
	return out
}

// SourceBadge is one entry of the source legend.
type SourceBadge struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Initial string `json:"initial"`
	Color   string `json:"color"`
	Hidden  bool   `json:"hidden"`
}

// Day is one visible cell or column.
type Day struct {
	Date       string `json:"date"`
	Weekday    string `json:"weekday"`
	InMonth    bool   `json:"in_month"`
	Today      bool   `json:"today"`
	WeekNumber int    `json:"week_number,omitempty"`

	// Events is the stacked list of the month and compact week views.
	Events []model.CalendarEvent `json:"events,omitempty"`
	More   int                   `json:"more,omitempty"`

	// AllDay and Blocks are set for the standard week view.
	AllDay []model.CalendarEvent `json:"all_day,omitempty"`
	Blocks []layout.Block        `json:"blocks,omitempty"`
}

// Presentation carries the styling options through untouched.
type Presentation struct {
	CompactHeight bool    `json:"compact_height"`
	HeightScale   float64 `json:"height_scale"`
	CompactHeader bool    `json:"compact_header"`
	HeaderColor   string  `json:"header_color"`
}

// View is the complete render model for the current state.
type View struct {
	Mode         model.ViewMode `json:"mode"`
	Title        string         `json:"title"`
	Anchor       string         `json:"anchor"`
	Today        string         `json:"today"`
	PeriodLabel  string         `json:"period_label"`
	DayHeaders   []string       `json:"day_headers"`
	Sources      []SourceBadge  `json:"sources"`
	Days         []Day          `json:"days"`
	Hours        []int          `json:"hours,omitempty"`
	MaxAllDay    int            `json:"max_all_day"`
	Presentation Presentation   `json:"presentation"`
}

// View builds the render model from the current state and event snapshot.
func (w *Widget) View() (View, error) {
	w.mu.RLock()
	mode, anchor := w.mode, w.anchor
	hidden := w.hiddenCopy()
	names := w.names
	w.mu.RUnlock()

	win, err := window.Compute(mode, anchor, w.winOpts)
	if err != nil {
		return View{}, err
	}
	events := w.events.Snapshot()
	today := w.today()

	v := View{
		Mode:        mode,
		Title:       w.cfg.Title,
		Anchor:      anchor.Format(time.DateOnly),
		Today:       today.Format(time.DateOnly),
		PeriodLabel: window.PeriodLabel(mode, anchor, win.Days),
		Sources:     w.badges(hidden, names),
		Days:        make([]Day, 0, len(win.Days)),
		Presentation: Presentation{
			CompactHeight: w.cfg.CompactHeight,
			HeightScale:   w.cfg.HeightScale,
			CompactHeader: w.cfg.CompactHeader,
			HeaderColor:   w.cfg.HeaderColor,
		},
	}
	if mode == model.ViewMonth {
		v.DayHeaders = window.DayHeaders(w.winOpts.FirstDayOfWeek)
	} else {
		for _, d := range win.Days {
			v.DayHeaders = append(v.DayHeaders, window.WeekdayShort(d.Weekday()))
		}
	}
	if win.Hours != nil {
		v.Hours = win.Hours.Hours()
		v.MaxAllDay = schedule.MaxAllDay(win.Days, events, hidden)
	}

	for i, d := range win.Days {
		cell := Day{
			Date:    d.Format(time.DateOnly),
			Weekday: window.WeekdayShort(d.Weekday()),
			InMonth: d.Month() == anchor.Month(),
			Today:   d.Equal(today),
		}
		dayEvents := schedule.EventsForDay(d, events, hidden)

		switch mode {
		case model.ViewMonth:
			if w.cfg.WeekNumbers() && i%7 == 0 {
				cell.WeekNumber = window.RowWeekNumber(d)
			}
			cell.Events, cell.More = schedule.Truncate(schedule.SortForList(dayEvents), MonthEventLimit)
		case model.ViewWeekCompact:
			cell.Events = schedule.SortForList(dayEvents)
		case model.ViewWeekStandard:
			allDay, timed := schedule.SplitAllDay(dayEvents)
			cell.AllDay = allDay
			opts := w.layOpts
			opts.Day = d
			cell.Blocks = layout.LayoutDay(timed, opts)
		}
		v.Days = append(v.Days, cell)
	}
	return v, nil
}

func (w *Widget) badges(hidden schedule.Hidden, names map[string]string) []SourceBadge {
	srcs := w.events.Sources()
	out := make([]SourceBadge, 0, len(srcs))
	for i, src := range srcs {
		name := w.configuredName(src.ID)
		if name == "" {
			name = names[src.ID]
		}
		if name == "" {
			name = ShortName(src.ID)
		}
		out = append(out, SourceBadge{
			ID:      src.ID,
			Name:    name,
			Initial: Initial(name),
			Color:   fetch.ColorFor(src, i),
			Hidden:  hidden.Has(src.ID),
		})
	}
	return out
}

func (w *Widget) configuredName(id string) string {
	for _, f := range w.cfg.ICS {
		if f.ID == id {
			return f.Name
		}
	}
	for _, g := range w.cfg.Google.Calendars {
		if g.ID == id {
			return g.Name
		}
	}
	return ""
}

// ShortName derives a name from an id: "calendar.family" -> "family".
func ShortName(id string) string {
	if _, after, ok := strings.Cut(id, "."); ok && after != "" {
		return after
	}
	return id
}

// Initial is the upper-cased first letter of name.
func Initial(name string) string {
	r, _ := utf8.DecodeRuneInString(name)
	if r == utf8.RuneError {
		return ""
	}
	return string(unicode.ToUpper(r))
}
