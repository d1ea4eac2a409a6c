package ics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"skycal/internal/event"
)

// Provider serves ICS feeds as calendar sources. The primary channel fetches
// the feed over the network; the fallback re-reads the last cached body.
type Provider struct {
	fetcher     *Fetcher
	maxPerEvent int

	mu    sync.RWMutex
	feeds map[string]Feed
}

// NewProvider serves feeds through fetcher.
func NewProvider(fetcher *Fetcher, feeds ...Feed) *Provider {
	p := &Provider{
		fetcher: fetcher,
		feeds:   make(map[string]Feed, len(feeds)),
	}
	for _, f := range feeds {
		p.AddFeed(f)
	}
	return p
}

// AddFeed registers or replaces a feed.
func (p *Provider) AddFeed(f Feed) {
	p.mu.Lock()
	p.feeds[f.ID] = f
	p.mu.Unlock()
}

// Has reports whether id is a registered feed.
func (p *Provider) Has(id string) bool {
	_, ok := p.feed(id)
	return ok
}

// Name is the configured display name of a feed, if any.
func (p *Provider) Name(id string) string {
	f, _ := p.feed(id)
	return f.Name
}

func (p *Provider) feed(id string) (Feed, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	f, ok := p.feeds[id]
	return f, ok
}

// ListEvents downloads the feed and expands it into [start, end].
func (p *Provider) ListEvents(ctx context.Context, sourceID string, start, end time.Time) ([]event.RawEvent, error) {
	f, ok := p.feed(sourceID)
	if !ok {
		return nil, fmt.Errorf("unknown ics feed %q", sourceID)
	}
	res, err := p.fetcher.Fetch(ctx, f)
	if err != nil {
		return nil, err
	}
	return p.expand(res, Range{Start: start, End: end})
}

// GetEventsREST expands the cached body over whole days startDate through
// endDate.
func (p *Provider) GetEventsREST(_ context.Context, sourceID string, startDate, endDate time.Time) ([]event.RawEvent, error) {
	f, ok := p.feed(sourceID)
	if !ok {
		return nil, fmt.Errorf("unknown ics feed %q", sourceID)
	}
	res, err := p.fetcher.Cached(f)
	if err != nil {
		return nil, err
	}
	return p.expand(res, Range{Start: startDate, End: endDate.AddDate(0, 0, 1)})
}

func (p *Provider) expand(res FetchResult, rng Range) ([]event.RawEvent, error) {
	comps, err := Parse(res.Feed, res.Body)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", res.Feed.ID, err)
	}
	expanded, err := Expand(comps, rng, p.maxPerEvent)
	if err != nil {
		return nil, err
	}
	out := make([]event.RawEvent, 0, len(expanded.Occurrences))
	for _, occ := range expanded.Occurrences {
		out = append(out, occ.Raw())
	}
	return out, nil
}

// Raw renders the occurrence in the record shape calendar services return:
// {date} objects for all-day instances, {dateTime} objects otherwise.
func (o Occurrence) Raw() event.RawEvent {
	raw := event.RawEvent{
		ID:          o.UID,
		UID:         o.UID,
		Summary:     o.Summary,
		Description: o.Description,
		Location:    o.Location,
	}
	if o.Recurring {
		raw.ID = o.UID + "_" + o.InstanceKey
	}
	if o.AllDay {
		raw.Start = event.AllDayDate{Date: o.Start.Format("2006-01-02")}
		raw.End = event.AllDayDate{Date: o.End.Format("2006-01-02")}
	} else {
		raw.Start = event.Timed{DateTime: o.Start.Format(time.RFC3339)}
		raw.End = event.Timed{DateTime: o.End.Format(time.RFC3339)}
	}
	return raw
}
