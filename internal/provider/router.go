// Package provider routes a source id to the backend that serves it.
package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"skycal/internal/event"
)

// ErrUnknownSource is returned for ids no backend claims.
var ErrUnknownSource = errors.New("unknown calendar source")

// Backend is one calendar service.
type Backend interface {
	ListEvents(ctx context.Context, sourceID string, start, end time.Time) ([]event.RawEvent, error)
	GetEventsREST(ctx context.Context, sourceID string, startDate, endDate time.Time) ([]event.RawEvent, error)
}

// Namer is implemented by backends that know a display name for a source.
type Namer interface {
	Name(sourceID string) string
}

// FriendlyNamer looks names up remotely, like Home Assistant entity state.
type FriendlyNamer interface {
	FriendlyName(ctx context.Context, sourceID string) (string, error)
}

// Router dispatches explicitly registered ids to their backend and
// everything else to the default backend, if one is set.
type Router struct {
	routes   map[string]Backend
	fallback Backend
}

// NewRouter creates a router whose unregistered ids go to def (may be nil).
func NewRouter(def Backend) *Router {
	return &Router{routes: make(map[string]Backend), fallback: def}
}

// Route sends every id in ids to b.
func (r *Router) Route(b Backend, ids ...string) {
	for _, id := range ids {
		r.routes[id] = b
	}
}

// Backend returns the backend serving id.
func (r *Router) Backend(id string) (Backend, error) {
	if b, ok := r.routes[id]; ok {
		return b, nil
	}
	if r.fallback != nil {
		return r.fallback, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownSource, id)
}

func (r *Router) ListEvents(ctx context.Context, sourceID string, start, end time.Time) ([]event.RawEvent, error) {
	b, err := r.Backend(sourceID)
	if err != nil {
		return nil, err
	}
	return b.ListEvents(ctx, sourceID, start, end)
}

func (r *Router) GetEventsREST(ctx context.Context, sourceID string, startDate, endDate time.Time) ([]event.RawEvent, error) {
	b, err := r.Backend(sourceID)
	if err != nil {
		return nil, err
	}
	return b.GetEventsREST(ctx, sourceID, startDate, endDate)
}

// DisplayName resolves a source's display name from its backend: the
// configured name first, then a remote friendly name. It returns "" when
// neither is known.
func (r *Router) DisplayName(ctx context.Context, sourceID string) string {
	b, err := r.Backend(sourceID)
	if err != nil {
		return ""
	}
	if n, ok := b.(Namer); ok {
		if name := n.Name(sourceID); name != "" {
			return name
		}
	}
	if fn, ok := b.(FriendlyNamer); ok {
		name, err := fn.FriendlyName(ctx, sourceID)
		if err == nil {
			return name
		}
	}
	return ""
}
