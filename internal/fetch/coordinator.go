// Package fetch aggregates events from every configured calendar source into
// one time-sorted set, with a primary and a fallback channel per source.
package fetch

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"

	"skycal/internal/event"
	appLog "skycal/internal/log"
	"skycal/internal/metrics"
	"skycal/internal/model"
)

// Provider is the calendar data service. ListEvents is the primary channel;
// GetEventsREST is the fallback and only receives date-only bounds.
type Provider interface {
	ListEvents(ctx context.Context, sourceID string, start, end time.Time) ([]event.RawEvent, error)
	GetEventsREST(ctx context.Context, sourceID string, startDate, endDate time.Time) ([]event.RawEvent, error)
}

const (
	ChannelPrimary  = "primary"
	ChannelFallback = "fallback"
)

const (
	DefaultStaleness     = 60 * time.Second
	DefaultSourceTimeout = 20 * time.Second
	DefaultPastDays      = 30
	DefaultFutureDays    = 60
)

// SourceError is a failed fetch attempt for one source on one channel.
type SourceError struct {
	SourceID string
	Channel  string
	Err      error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("fetch %s via %s: %v", e.SourceID, e.Channel, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// Source is one configured calendar. Color overrides the palette when set.
type Source struct {
	ID    string
	Color string
}

// Options configures a Coordinator. Zero values pick the defaults above.
type Options struct {
	Sources       []Source
	Location      *time.Location
	Staleness     time.Duration
	SourceTimeout time.Duration
	PastDays      int
	FutureDays    int
	// FollowAnchor centers the fetch band on the navigated anchor instead of
	// on the current time.
	FollowAnchor bool

	Now     func() time.Time
	Metrics *metrics.Recorder
	Tracer  trace.Tracer
}

// SourceResult summarizes one source in a refresh.
type SourceResult struct {
	SourceID string `json:"source_id"`
	// Channel is the channel that produced events, empty if both failed.
	Channel   string   `json:"channel,omitempty"`
	Events    int      `json:"events"`
	Malformed int      `json:"malformed,omitempty"`
	Errors    []string `json:"errors,omitempty"`

	errs []error
}

func (r *SourceResult) fail(err error) {
	r.errs = append(r.errs, err)
	r.Errors = append(r.Errors, err.Error())
}

// Report describes one Refresh call.
type Report struct {
	Outcome     string         `json:"outcome"`
	Forced      bool           `json:"forced"`
	StartedAt   time.Time      `json:"started_at"`
	Duration    time.Duration  `json:"duration_ns"`
	WindowStart time.Time      `json:"window_start,omitzero"`
	WindowEnd   time.Time      `json:"window_end,omitzero"`
	Events      int            `json:"events"`
	Sources     []SourceResult `json:"sources,omitempty"`

	Errors []error `json:"-"`
}

// Coordinator owns the merged event set.
type Coordinator struct {
	provider Provider
	opts     Options

	inProgress atomic.Bool

	mu          sync.RWMutex
	events      []model.CalendarEvent
	lastRefresh time.Time
	lastReport  Report
}

// NewCoordinator builds a coordinator over provider.
func NewCoordinator(provider Provider, opts Options) *Coordinator {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Staleness <= 0 {
		opts.Staleness = DefaultStaleness
	}
	if opts.SourceTimeout <= 0 {
		opts.SourceTimeout = DefaultSourceTimeout
	}
	if opts.PastDays <= 0 {
		opts.PastDays = DefaultPastDays
	}
	if opts.FutureDays <= 0 {
		opts.FutureDays = DefaultFutureDays
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Tracer == nil {
		opts.Tracer = noop.NewTracerProvider().Tracer("skycal/fetch")
	}
	return &Coordinator{provider: provider, opts: opts}
}

// Sources returns the configured sources in order.
func (c *Coordinator) Sources() []Source {
	return append([]Source(nil), c.opts.Sources...)
}

// Snapshot returns the current merged event set. Callers must not mutate it;
// a refresh replaces the slice rather than writing into it.
func (c *Coordinator) Snapshot() []model.CalendarEvent {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.events
}

// LastReport returns the report of the last refresh that ran.
func (c *Coordinator) LastReport() Report {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastReport
}

// Invalidate clears the staleness marker so the next Refresh runs.
func (c *Coordinator) Invalidate() {
	c.mu.Lock()
	c.lastRefresh = time.Time{}
	c.mu.Unlock()
}

// FetchWindow is the band requested from every source: PastDays before and
// FutureDays after now, or after anchor when FollowAnchor is set.
func (c *Coordinator) FetchWindow(anchor time.Time) (time.Time, time.Time) {
	center := c.opts.Now()
	if c.opts.FollowAnchor && !anchor.IsZero() {
		center = anchor
	}
	center = center.In(c.opts.Location)
	return center.AddDate(0, 0, -c.opts.PastDays), center.AddDate(0, 0, c.opts.FutureDays)
}

// Refresh fetches every source and replaces the event set. It is skipped when
// another refresh is running, or when the last one finished less than the
// staleness threshold ago and force is false. If ctx is done by the time
// the sources return, nothing is replaced and the outcome is "canceled".
// anchor only matters with FollowAnchor.
func (c *Coordinator) Refresh(ctx context.Context, force bool, anchor time.Time) Report {
	startedAt := c.opts.Now()
	report := Report{Forced: force, StartedAt: startedAt}

	if !c.inProgress.CompareAndSwap(false, true) {
		report.Outcome = metrics.OutcomeSkippedBusy
		c.opts.Metrics.RecordRefresh(ctx, report.Outcome, 0)
		appLog.Debug("refresh skipped: already in progress")
		return report
	}
	defer c.inProgress.Store(false)

	if force {
		c.Invalidate()
	}
	c.mu.RLock()
	last := c.lastRefresh
	c.mu.RUnlock()
	if !last.IsZero() && startedAt.Sub(last) < c.opts.Staleness {
		report.Outcome = metrics.OutcomeSkippedFresh
		c.opts.Metrics.RecordRefresh(ctx, report.Outcome, 0)
		appLog.Debug("refresh skipped: events are fresh", "age", startedAt.Sub(last).String())
		return report
	}

	ctx, span := c.opts.Tracer.Start(ctx, "refresh", trace.WithAttributes(
		attribute.Bool("forced", force),
		attribute.Int("sources", len(c.opts.Sources)),
	))
	defer span.End()

	start, end := c.FetchWindow(anchor)
	report.WindowStart, report.WindowEnd = start, end
	appLog.Info("refresh started",
		"sources", len(c.opts.Sources),
		"forced", force,
		"window_start", start.Format(time.RFC3339),
		"window_end", end.Format(time.RFC3339),
	)

	perSource := make([][]model.CalendarEvent, len(c.opts.Sources))
	results := make([]SourceResult, len(c.opts.Sources))

	// Each task reports its failure through results; the group only joins.
	var g errgroup.Group
	for i, src := range c.opts.Sources {
		g.Go(func() error {
			perSource[i], results[i] = c.fetchSource(ctx, i, src, start, end)
			return nil
		})
	}
	_ = g.Wait()

	// An abandoned caller is not a source failure: keep the previous set.
	if err := ctx.Err(); err != nil {
		report.Outcome = metrics.OutcomeCanceled
		report.Sources = results
		report.Duration = c.opts.Now().Sub(startedAt)
		c.opts.Metrics.RecordRefresh(ctx, report.Outcome, 0)
		span.SetStatus(codes.Error, "refresh canceled")
		appLog.Info("refresh canceled, keeping previous events", "reason", err.Error())
		return report
	}

	merged := make([]model.CalendarEvent, 0)
	for i, evs := range perSource {
		merged = append(merged, evs...)
		report.Errors = append(report.Errors, results[i].errs...)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Start.Before(merged[j].Start)
	})

	report.Outcome = metrics.OutcomeRan
	report.Events = len(merged)
	report.Sources = results
	report.Duration = c.opts.Now().Sub(startedAt)

	c.mu.Lock()
	c.events = merged
	c.lastRefresh = c.opts.Now()
	c.lastReport = report
	c.mu.Unlock()

	c.opts.Metrics.RecordRefresh(ctx, report.Outcome, report.Duration)
	span.SetAttributes(attribute.Int("events", len(merged)))
	if len(report.Errors) > 0 {
		span.SetStatus(codes.Error, "one or more sources failed")
	}
	appLog.Info("refresh finished",
		"events", len(merged),
		"failed_sources", countFailed(results),
		"duration", report.Duration.String(),
	)
	return report
}

func (c *Coordinator) fetchSource(ctx context.Context, idx int, src Source, start, end time.Time) ([]model.CalendarEvent, SourceResult) {
	ctx, span := c.opts.Tracer.Start(ctx, "fetch_source", trace.WithAttributes(attribute.String("source", src.ID)))
	defer span.End()

	res := SourceResult{SourceID: src.ID}

	raws, err := c.attempt(ctx, src.ID, ChannelPrimary, func(ctx context.Context) ([]event.RawEvent, error) {
		return c.provider.ListEvents(ctx, src.ID, start, end)
	})
	if err == nil {
		res.Channel = ChannelPrimary
	} else {
		res.fail(err)
		appLog.Error("primary fetch failed, trying fallback", err, "source", src.ID)

		startDate, endDate := dateOnly(start), dateOnly(end)
		raws, err = c.attempt(ctx, src.ID, ChannelFallback, func(ctx context.Context) ([]event.RawEvent, error) {
			return c.provider.GetEventsREST(ctx, src.ID, startDate, endDate)
		})
		if err != nil {
			res.fail(err)
			appLog.Error("fallback fetch failed", err, "source", src.ID)
			span.SetStatus(codes.Error, "both channels failed")
			return nil, res
		}
		res.Channel = ChannelFallback
	}
	span.SetAttributes(attribute.String("channel", res.Channel))

	color := ColorFor(src, idx)
	out := make([]model.CalendarEvent, 0, len(raws))
	for _, raw := range raws {
		ev, err := event.ToCalendarEvent(raw, c.opts.Location)
		if err != nil {
			res.Malformed++
			appLog.Debug("skipping malformed event", "source", src.ID, "uid", raw.UID, "id", raw.ID, "reason", err.Error())
			continue
		}
		ev.SourceID = src.ID
		ev.Color = color
		if ev.ID == "" {
			ev.ID = SyntheticID(src.ID, ev)
		}
		out = append(out, ev)
	}
	res.Events = len(out)
	if res.Malformed > 0 {
		appLog.Info("skipped malformed events", "source", src.ID, "count", res.Malformed)
		c.opts.Metrics.RecordMalformed(ctx, src.ID, res.Malformed)
	}
	return out, res
}

func (c *Coordinator) attempt(ctx context.Context, sourceID, channel string, fn func(context.Context) ([]event.RawEvent, error)) ([]event.RawEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.SourceTimeout)
	defer cancel()

	raws, err := fn(ctx)
	if err != nil {
		c.opts.Metrics.RecordSourceFetch(ctx, channel, metrics.ResultError)
		return nil, &SourceError{SourceID: sourceID, Channel: channel, Err: err}
	}
	c.opts.Metrics.RecordSourceFetch(ctx, channel, metrics.ResultSuccess)
	return raws, nil
}

// SyntheticID derives a stable id for events whose source supplied none.
func SyntheticID(sourceID string, ev model.CalendarEvent) string {
	name := sourceID + "\x00" + ev.Summary + "\x00" + ev.Start.UTC().Format(time.RFC3339)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func countFailed(results []SourceResult) int {
	n := 0
	for _, r := range results {
		if r.Channel == "" {
			n++
		}
	}
	return n
}
