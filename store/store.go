// Package store defines the abstract persistence contract a relay backend
// must satisfy. Concrete backends (database/query.SQLiteStore is the
// reference one) are injected into the policy chain and the group module
// through this interface rather than depended on directly.
package store

import (
	"context"
	"iter"

	"github.com/subzero-relay/subzero/model"
)

// EventIterator is a lazy sequence of (event, error) pairs. Implementations
// MUST NOT require buffering all results before the first is yielded.
type EventIterator = iter.Seq2[*model.Event, error]

type Store interface {
	// Init performs idempotent setup (schema creation, migrations).
	Init(ctx context.Context) error

	// Store persists a regular event. It MUST reject a duplicate id by
	// returning accepted=false, model.ErrDuplicate.
	Store(ctx context.Context, event *model.Event) (accepted bool, err error)

	// Query streams events matching sub.Filters.
	Query(ctx context.Context, sub *model.Subscription) EventIterator

	// Count returns the number of events matching sub.Filters.
	Count(ctx context.Context, sub *model.Subscription) (int64, error)

	// Delete removes every event matching sub.Filters owned by ownerPubKey.
	Delete(ctx context.Context, sub *model.Subscription, ownerPubKey string) (applied bool, err error)

	// Replace atomically supplants every event at event's address with
	// event, without comparing timestamps; deciding that event is the
	// newest is the caller's job (see replace.Resolver). It MUST either
	// fully apply or leave the store unchanged.
	Replace(ctx context.Context, event *model.Event) (accepted bool, err error)
}
