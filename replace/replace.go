// Package replace implements the "newest event wins" resolver for
// replaceable and addressable events. It is grounded on
// database/query.go's former AcceptEvent delete-then-insert shape,
// generalized from "kind 0 or addressable" to the full NIP-01
// classification and given explicit per-address serialization, since the
// store contract no longer assumes a single process-wide writer mutex.
package replace

import (
	"context"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/subzero-relay/subzero/model"
	"github.com/subzero-relay/subzero/store"
)

type Resolver struct {
	store store.Store
	locks *xsync.MapOf[string, *sync.Mutex]
}

func NewResolver(s store.Store) *Resolver {
	return &Resolver{
		store: s,
		locks: xsync.NewMapOf[string, *sync.Mutex](),
	}
}

func (r *Resolver) lockFor(address string) *sync.Mutex {
	mu, _ := r.locks.LoadOrCompute(address, func() *sync.Mutex { return new(sync.Mutex) })

	return mu
}

// Resolve applies the replaceable/addressable resolution algorithm of the
// relay kernel spec: query existing events at the incoming event's
// address, and if the incoming event is not strictly newer than all of
// them (created_at, ties by lexicographically smaller id) reject it with
// model.ErrReplacedByNewer; otherwise atomically replace them.
func (r *Resolver) Resolve(ctx context.Context, event *model.Event) (accepted bool, err error) {
	address := event.Address()
	if address == "" {
		return false, nil
	}

	mu := r.lockFor(address)
	mu.Lock()
	defer mu.Unlock()

	filter := model.Filter{
		Kinds:   []int{event.Kind},
		Authors: []string{event.PubKey},
	}
	if event.IsAddressable() {
		filter.Tags = model.TagMap{"d": {event.Tags.GetD()}}
	}

	sub := &model.Subscription{Filters: model.Filters{filter}}

	for existing, qerr := range r.store.Query(ctx, sub) {
		if qerr != nil {
			return false, qerr
		}
		if !isNewer(event, existing) {
			return false, model.ErrReplacedByNewer
		}
	}

	return r.store.Replace(ctx, event)
}

// isNewer reports whether incoming supersedes existing: strictly greater
// created_at, or equal created_at with a lexicographically smaller id.
func isNewer(incoming, existing *model.Event) bool {
	if incoming.CreatedAt != existing.CreatedAt {
		return incoming.CreatedAt > existing.CreatedAt
	}

	return incoming.ID < existing.ID
}
