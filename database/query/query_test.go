// SPDX-License-Identifier: ice License 1.0

package query

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/require"

	"github.com/subzero-relay/subzero/model"
	"github.com/subzero-relay/subzero/store"
)

const testDeadline = 30 * time.Second

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	db := New(":memory:")
	ctx, cancel := context.WithTimeout(context.Background(), testDeadline)
	defer cancel()
	require.NoError(t, db.Init(ctx))

	return db
}

func fixtureEvent(pubkey string, kind int, tags nostr.Tags) *model.Event {
	return &model.Event{
		Event: nostr.Event{
			ID:        uuid.NewString(),
			PubKey:    pubkey,
			CreatedAt: nostr.Timestamp(time.Now().Unix()),
			Kind:      kind,
			Tags:      tags,
			Content:   "content-" + uuid.NewString(),
			Sig:       "sig-" + uuid.NewString(),
		},
	}
}

func collect(t *testing.T, it store.EventIterator) []*model.Event {
	t.Helper()

	var out []*model.Event
	for ev, err := range it {
		require.NoError(t, err)
		out = append(out, ev)
	}

	return out
}

func TestSQLiteStore_StoreAndQuery(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), testDeadline)
	defer cancel()
	db := newTestStore(t)

	ev1 := fixtureEvent("alice", nostr.KindTextNote, nostr.Tags{})
	accepted, err := db.Store(ctx, ev1)
	require.NoError(t, err)
	require.True(t, accepted)

	ev2 := fixtureEvent("alice", nostr.KindTextNote, nostr.Tags{})
	accepted, err = db.Store(ctx, ev2)
	require.NoError(t, err)
	require.True(t, accepted)

	stored := collect(t, db.Query(ctx, &model.Subscription{Filters: model.Filters{{Kinds: []int{nostr.KindTextNote}}}}))
	require.Len(t, stored, 2)

	ids := []string{stored[0].ID, stored[1].ID}
	require.Contains(t, ids, ev1.ID)
	require.Contains(t, ids, ev2.ID)
}

func TestSQLiteStore_StoreRejectsDuplicateID(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), testDeadline)
	defer cancel()
	db := newTestStore(t)

	ev := fixtureEvent("alice", nostr.KindTextNote, nostr.Tags{})
	accepted, err := db.Store(ctx, ev)
	require.NoError(t, err)
	require.True(t, accepted)

	accepted, err = db.Store(ctx, ev)
	require.ErrorIs(t, err, model.ErrDuplicate)
	require.False(t, accepted)
}

func TestSQLiteStore_Count(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), testDeadline)
	defer cancel()
	db := newTestStore(t)

	for i := 0; i < 3; i++ {
		_, err := db.Store(ctx, fixtureEvent("bob", nostr.KindTextNote, nostr.Tags{}))
		require.NoError(t, err)
	}

	n, err := db.Count(ctx, &model.Subscription{Filters: model.Filters{{Authors: []string{"bob"}}}})
	require.NoError(t, err)
	require.EqualValues(t, 3, n)
}

func TestSQLiteStore_DeleteScopedToOwner(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), testDeadline)
	defer cancel()
	db := newTestStore(t)

	ev := fixtureEvent("alice", nostr.KindTextNote, nostr.Tags{})
	_, err := db.Store(ctx, ev)
	require.NoError(t, err)

	sub := &model.Subscription{Filters: model.Filters{{IDs: []string{ev.ID}}}}

	applied, err := db.Delete(ctx, sub, "mallory")
	require.NoError(t, err)
	require.False(t, applied, "delete must not apply when ownerPubKey does not match the event author")

	applied, err = db.Delete(ctx, sub, "alice")
	require.NoError(t, err)
	require.True(t, applied)

	n, err := db.Count(ctx, &model.Subscription{Filters: model.Filters{{IDs: []string{ev.ID}}}})
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestSQLiteStore_ReplaceKeepsOnlyNewest(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), testDeadline)
	defer cancel()
	db := newTestStore(t)

	older := fixtureEvent("alice", nostr.KindFollowList, nostr.Tags{})
	older.CreatedAt = nostr.Timestamp(1)
	accepted, err := db.Replace(ctx, older)
	require.NoError(t, err)
	require.True(t, accepted)

	newer := fixtureEvent("alice", nostr.KindFollowList, nostr.Tags{})
	newer.CreatedAt = nostr.Timestamp(2)
	accepted, err = db.Replace(ctx, newer)
	require.NoError(t, err)
	require.True(t, accepted)

	stored := collect(t, db.Query(ctx, &model.Subscription{Filters: model.Filters{{Kinds: []int{nostr.KindFollowList}, Authors: []string{"alice"}}}}))
	require.Len(t, stored, 1)
	require.Equal(t, newer.ID, stored[0].ID)
}

func TestSQLiteStore_ReplaceIsAddressScoped(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), testDeadline)
	defer cancel()
	db := newTestStore(t)

	evA := fixtureEvent("alice", 30000, nostr.Tags{{"d", "list-a"}})
	accepted, err := db.Replace(ctx, evA)
	require.NoError(t, err)
	require.True(t, accepted)

	evB := fixtureEvent("alice", 30000, nostr.Tags{{"d", "list-b"}})
	accepted, err = db.Replace(ctx, evB)
	require.NoError(t, err)
	require.True(t, accepted)

	stored := collect(t, db.Query(ctx, &model.Subscription{Filters: model.Filters{{Kinds: []int{30000}, Authors: []string{"alice"}}}}))
	require.Len(t, stored, 2)
}
