// Package policy re-architects the teacher's package-level callback vars
// (wsEventListener/wsSubscriptionListener in server/ws/ws.go) into a typed,
// ordered registry, per the redesign flag in the relay kernel spec: chains
// of typed handler values with an explicit iteration contract instead of
// dynamically typed callables.
package policy

import (
	"context"
	"log"

	"github.com/hashicorp/go-multierror"

	"github.com/subzero-relay/subzero/model"
	"github.com/subzero-relay/subzero/store"
)

type (
	RejectEventFunc  func(ctx context.Context, event *model.Event) (reject bool, reason string)
	RejectFilterFunc func(ctx context.Context, filters model.Filters) (reject bool, reason string)
	StoreEventFunc   func(ctx context.Context, event *model.Event) (accepted bool, err error)
	QueryEventsFunc  func(ctx context.Context, sub *model.Subscription) store.EventIterator
	CountEventsFunc  func(ctx context.Context, sub *model.Subscription) (int64, error)
	DeleteEventFunc  func(ctx context.Context, sub *model.Subscription, ownerPubKey string) error
	ReplaceEventFunc func(ctx context.Context, event *model.Event) (accepted bool, err error)
)

// Chain is an ordered set of handler registries for every pipeline stage
// spec'd for the relay kernel, plus a per-kind rejection sub-chain.
type Chain struct {
	RejectEvent       []RejectEventFunc
	RejectFilter      []RejectFilterFunc
	StoreEvent        []StoreEventFunc
	QueryEvents       []QueryEventsFunc
	CountEvents       []CountEventsFunc
	DeleteEvent       []DeleteEventFunc
	ReplaceEvent      []ReplaceEventFunc
	RejectEventByKind map[int][]RejectEventFunc
}

func New() *Chain {
	return &Chain{RejectEventByKind: make(map[int][]RejectEventFunc)}
}

// CheckEvent runs the general reject chain then the kind-specific one; the
// first handler to report reject=true short-circuits with its reason.
func (c *Chain) CheckEvent(ctx context.Context, event *model.Event) (reject bool, reason string) {
	for _, h := range c.RejectEvent {
		if reject, reason = h(ctx, event); reject {
			return true, reason
		}
	}
	for _, h := range c.RejectEventByKind[event.Kind] {
		if reject, reason = h(ctx, event); reject {
			return true, reason
		}
	}

	return false, ""
}

func (c *Chain) CheckFilters(ctx context.Context, filters model.Filters) (reject bool, reason string) {
	for _, h := range c.RejectFilter {
		if reject, reason = h(ctx, filters); reject {
			return true, reason
		}
	}

	return false, ""
}

// Store runs handlers in order until one accepts; later handlers (intended
// for secondary archivers) never run once the primary store has won.
func (c *Chain) Store(ctx context.Context, event *model.Event) (accepted bool, err error) {
	for _, h := range c.StoreEvent {
		if accepted, err = h(ctx, event); accepted || err != nil {
			return accepted, err
		}
	}

	return false, nil
}

func (c *Chain) Replace(ctx context.Context, event *model.Event) (accepted bool, err error) {
	for _, h := range c.ReplaceEvent {
		if accepted, err = h(ctx, event); accepted || err != nil {
			return accepted, err
		}
	}

	return false, nil
}

// Query concatenates every handler's output, deduplicated by event id.
func (c *Chain) Query(ctx context.Context, sub *model.Subscription) store.EventIterator {
	handlers := c.QueryEvents

	return func(yield func(*model.Event, error) bool) {
		seen := make(map[string]struct{})
		for _, h := range handlers {
			for event, err := range h(ctx, sub) {
				if err != nil {
					if !yield(nil, err) {
						return
					}

					continue
				}
				if _, dup := seen[event.ID]; dup {
					continue
				}
				seen[event.ID] = struct{}{}
				if !yield(event, nil) {
					return
				}
			}
		}
	}
}

func (c *Chain) Count(ctx context.Context, sub *model.Subscription) (total int64, err error) {
	for _, h := range c.CountEvents {
		n, herr := h(ctx, sub)
		if herr != nil {
			return 0, herr
		}
		total += n
	}

	return total, nil
}

// Delete runs every handler; a failure is logged and does not stop the
// handlers after it. All failures are returned together as one error.
func (c *Chain) Delete(ctx context.Context, sub *model.Subscription, ownerPubKey string) error {
	var mErr *multierror.Error
	for _, h := range c.DeleteEvent {
		if err := h(ctx, sub, ownerPubKey); err != nil {
			mErr = multierror.Append(mErr, err)
			log.Printf("delete handler failed: %v", err)
		}
	}

	return mErr.ErrorOrNil()
}
