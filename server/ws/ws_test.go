// SPDX-License-Identifier: ice License 1.0

package ws

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subzero-relay/subzero/model"
	"github.com/subzero-relay/subzero/policy"
)

const testDeadline = 30 * time.Second

// fakeWriter stands in for a real websocket connection: it records every
// frame written to it instead of touching the network.
type fakeWriter struct {
	mu      sync.Mutex
	written [][]byte
	closed  bool
}

func (w *fakeWriter) WriteMessage(data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.written = append(w.written, append([]byte(nil), data...))

	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true

	return nil
}

func (w *fakeWriter) messages() [][]byte {
	w.mu.Lock()
	defer w.mu.Unlock()

	return append([][]byte(nil), w.written...)
}

func fixtureEvent(kind int) *model.Event {
	return fixtureEventWithTags(kind, nostr.Tags{})
}

func fixtureEventWithTags(kind int, tags nostr.Tags) *model.Event {
	priv := nostr.GeneratePrivateKey()
	pub, _ := nostr.GetPublicKey(priv)
	ev := &model.Event{
		Event: nostr.Event{
			PubKey:    pub,
			CreatedAt: nostr.Timestamp(time.Now().Unix()),
			Kind:      kind,
			Tags:      tags,
			Content:   uuid.NewString(),
		},
	}
	if err := ev.Sign(priv); err != nil {
		panic(err)
	}

	return ev
}

func newTestHandler() *handler {
	return NewHandler(policy.New(), nil, "")
}

func TestHandler_HandleEvent_StoresRegularEvent(t *testing.T) {
	h := newTestHandler()
	var stored []*model.Event
	h.Chain.StoreEvent = []policy.StoreEventFunc{
		func(_ context.Context, event *model.Event) (bool, error) {
			stored = append(stored, event)

			return true, nil
		},
	}

	ev := fixtureEvent(nostr.KindTextNote)
	reason, err := h.handleEvent(context.Background(), ev)
	require.NoError(t, err)
	require.Empty(t, reason)
	require.Len(t, stored, 1)
	assert.Equal(t, ev.ID, stored[0].ID)
}

func TestHandler_HandleEvent_RejectedByChain(t *testing.T) {
	h := newTestHandler()
	h.Chain.RejectEvent = []policy.RejectEventFunc{
		func(context.Context, *model.Event) (bool, string) {
			return true, "blocked: test policy"
		},
	}
	var stored bool
	h.Chain.StoreEvent = []policy.StoreEventFunc{
		func(context.Context, *model.Event) (bool, error) {
			stored = true

			return true, nil
		},
	}

	reason, err := h.handleEvent(context.Background(), fixtureEvent(nostr.KindTextNote))
	require.NoError(t, err)
	assert.Equal(t, "blocked: test policy", reason)
	assert.False(t, stored, "a rejected event must never reach the store chain")
}

func TestHandler_HandleEvent_EphemeralSkipsPersistence(t *testing.T) {
	h := newTestHandler()
	var stored bool
	h.Chain.StoreEvent = []policy.StoreEventFunc{
		func(context.Context, *model.Event) (bool, error) {
			stored = true

			return true, nil
		},
	}

	reason, err := h.handleEvent(context.Background(), fixtureEvent(model.KindEphemeralMin))
	require.NoError(t, err)
	assert.Empty(t, reason)
	assert.False(t, stored, "ephemeral events must never be persisted")
}

func TestHandler_HandleEvent_ReplaceableGoesThroughReplaceChain(t *testing.T) {
	h := newTestHandler()
	var replaced, stored bool
	h.Chain.ReplaceEvent = []policy.ReplaceEventFunc{
		func(context.Context, *model.Event) (bool, error) {
			replaced = true

			return true, nil
		},
	}
	h.Chain.StoreEvent = []policy.StoreEventFunc{
		func(context.Context, *model.Event) (bool, error) {
			stored = true

			return true, nil
		},
	}

	reason, err := h.handleEvent(context.Background(), fixtureEvent(nostr.KindFollowList))
	require.NoError(t, err)
	assert.Empty(t, reason)
	assert.True(t, replaced)
	assert.False(t, stored, "a replaceable event must not also go through the plain store chain")
}

func TestHandler_HandleEvent_ReplacedByNewerSurfacesReason(t *testing.T) {
	h := newTestHandler()
	h.Chain.ReplaceEvent = []policy.ReplaceEventFunc{
		func(context.Context, *model.Event) (bool, error) {
			return false, model.ErrReplacedByNewer
		},
	}

	reason, err := h.handleEvent(context.Background(), fixtureEvent(nostr.KindFollowList))
	require.NoError(t, err, "a stale replaceable event is a rejection, not an error")
	assert.Equal(t, "replaced by newer", reason)
}

func TestHandler_HandleEvent_DeletionDispatchesToDeleteChain(t *testing.T) {
	h := newTestHandler()
	var deletedFilters model.Filters
	h.Chain.DeleteEvent = []policy.DeleteEventFunc{
		func(_ context.Context, sub *model.Subscription, ownerPubKey string) error {
			deletedFilters = sub.Filters

			return nil
		},
	}
	var stored bool
	h.Chain.StoreEvent = []policy.StoreEventFunc{
		func(context.Context, *model.Event) (bool, error) {
			stored = true

			return true, nil
		},
	}

	target := fixtureEvent(nostr.KindTextNote)
	deletion := fixtureEventWithTags(nostr.KindDeletion, nostr.Tags{{"e", target.ID}})
	reason, err := h.handleEvent(context.Background(), deletion)
	require.NoError(t, err)
	assert.Empty(t, reason)
	require.Len(t, deletedFilters, 1)
	assert.Equal(t, []string{target.ID}, deletedFilters[0].IDs)
	assert.False(t, stored, "the deletion event itself is not persisted")
}

func TestHandler_HandleEventEnvelope_WritesOKBeforeBroadcast(t *testing.T) {
	h := newTestHandler()
	h.Chain.StoreEvent = []policy.StoreEventFunc{
		func(context.Context, *model.Event) (bool, error) { return true, nil },
	}

	publisher := &fakeWriter{}
	subscriber := &fakeWriter{}
	ev := fixtureEvent(nostr.KindTextNote)
	h.subListeners = map[Writer]map[string]*subscription{
		subscriber: {"sub1": {Subscription: &model.Subscription{Filters: model.Filters{{Kinds: []int{nostr.KindTextNote}}}}, SubscriptionID: "sub1"}},
		publisher:  {"sub2": {Subscription: &model.Subscription{Filters: model.Filters{{Kinds: []int{nostr.KindTextNote}}}}, SubscriptionID: "sub2"}},
	}

	h.handleEventEnvelope(context.Background(), publisher, &model.EventEnvelope{Events: []*model.Event{ev}})

	msgs := publisher.messages()
	require.Len(t, msgs, 2, "OK then the publisher's own EVENT frame")
	var asArray []json.RawMessage
	require.NoError(t, json.Unmarshal(msgs[0], &asArray))
	assert.Equal(t, `"OK"`, string(asArray[0]))
	require.NoError(t, json.Unmarshal(msgs[1], &asArray))
	assert.Equal(t, `"EVENT"`, string(asArray[0]))
	require.Len(t, subscriber.messages(), 1)
}

func TestHandler_CancelSubscription_RemovesListener(t *testing.T) {
	h := newTestHandler()
	w := &fakeWriter{}
	h.subListeners = map[Writer]map[string]*subscription{
		w: {"sub1": {Subscription: &model.Subscription{}, SubscriptionID: "sub1"}},
	}

	require.NoError(t, h.CancelSubscription(context.Background(), w, nil))
	assert.Empty(t, h.subListeners)
}
