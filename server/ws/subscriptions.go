// SPDX-License-Identifier: ice License 1.0

package ws

import (
	"context"
	"log"

	"github.com/cockroachdb/errors"
	"github.com/gookit/goutil/errorx"
	"github.com/hashicorp/go-multierror"
	"github.com/nbd-wtf/go-nostr"

	"github.com/subzero-relay/subzero/group"
	"github.com/subzero-relay/subzero/model"
)

// handleEvent runs the reject chain, then routes to the replacement
// resolver or the plain store chain depending on classification, and
// finally through the group module for group-scoped events. Ephemeral
// events skip persistence entirely but are still reported accepted so the
// caller broadcasts them.
func (h *handler) handleEvent(ctx context.Context, event *model.Event) (reason string, err error) {
	if reject, why := h.Chain.CheckEvent(ctx, event); reject {
		return why, nil
	}

	isGroupEvent := h.Group != nil && group.IsGroupEvent(event)

	if isGroupEvent {
		if reject, why := h.Group.RejectEvent(ctx, event); reject {
			return why, nil
		}
	}

	if event.Kind == nostr.KindDeletion {
		if err = h.deleteReferencedEvents(ctx, event); err != nil {
			return "", errorx.Withf(err, "failed to process deletion event")
		}

		return "", nil
	}

	if event.IsEphemeral() {
		if isGroupEvent {
			if _, err = h.Group.Store(ctx, event); err != nil {
				return "", errorx.Withf(err, "failed group dispatch for ephemeral event")
			}
		}

		return "", nil
	}

	var accepted bool
	switch {
	case event.IsReplaceable() || event.IsAddressable():
		accepted, err = h.Chain.Replace(ctx, event)
	default:
		accepted, err = h.Chain.Store(ctx, event)
	}
	if errors.Is(err, model.ErrReplacedByNewer) {
		return err.Error(), nil
	}
	if err != nil {
		return "", errorx.Withf(err, "failed to persist event")
	}
	if !accepted {
		return "could not store: event was not accepted", nil
	}

	if isGroupEvent {
		if _, gerr := h.Group.Store(ctx, event); gerr != nil {
			return "", errorx.Withf(gerr, "failed group dispatch")
		}
	}

	return "", nil
}

// deleteReferencedEvents implements NIP-09: a kind-5 event's e/a tags name
// the events it retracts. Each reference becomes a filter scoped to the
// deletion event's own pubkey, so a publisher can never retract events it
// doesn't own, and runs through the delete chain. The deletion event itself
// is not stored, matching the teacher's AcceptEvent handling of
// nostr.KindDeletion.
func (h *handler) deleteReferencedEvents(ctx context.Context, event *model.Event) error {
	refs, err := model.ParseEventReference(event.Tags)
	if err != nil {
		return errorx.Withf(err, "failed to parse deletion references")
	}

	filters := make(model.Filters, 0, len(refs))
	for _, ref := range refs {
		filters = append(filters, ref.Filter())
	}
	if len(filters) == 0 {
		return nil
	}

	return h.Chain.Delete(ctx, &model.Subscription{Filters: filters}, event.PubKey)
}

func (h *handler) handleReq(ctx context.Context, respWriter Writer, sub *subscription) error {
	if reject, reason := h.Chain.CheckFilters(ctx, sub.Filters); reject {
		closed := nostr.ClosedEnvelope{SubscriptionID: sub.SubscriptionID, Reason: reason}

		return h.writeResponse(respWriter, &closed)
	}

	var mErr *multierror.Error
	for event, qerr := range h.Chain.Query(ctx, sub.Subscription) {
		if qerr != nil {
			return errorx.Withf(qerr, "failed to query events for subscription %+v", sub)
		}
		mErr = multierror.Append(mErr, h.writeResponse(respWriter, &model.EventEnvelope{SubscriptionID: &sub.SubscriptionID, Events: []*model.Event{event}}))
	}
	if mErr.ErrorOrNil() != nil {
		return errorx.Withf(mErr, "failed to write events for subscription %+v", sub)
	}

	eos := nostr.EOSEEnvelope(sub.SubscriptionID)
	err := h.writeResponse(respWriter, &eos)

	h.subListenersMx.Lock()
	defer h.subListenersMx.Unlock()
	subsFromCurrConnection, ok := h.subListeners[respWriter]
	if !ok {
		subsFromCurrConnection = make(map[string]*subscription)
		if h.subListeners == nil {
			h.subListeners = make(map[Writer]map[string]*subscription)
		}
		h.subListeners[respWriter] = subsFromCurrConnection
	}
	subsFromCurrConnection[sub.SubscriptionID] = sub

	return err
}

func (h *handler) handleCount(ctx context.Context, respWriter Writer, e *nostr.CountEnvelope) error {
	sub := &model.Subscription{Filters: e.Filters}
	if reject, reason := h.Chain.CheckFilters(ctx, sub.Filters); reject {
		closed := nostr.ClosedEnvelope{SubscriptionID: e.SubscriptionID, Reason: reason}

		return h.writeResponse(respWriter, &closed)
	}

	total, err := h.Chain.Count(ctx, sub)
	if err != nil {
		closed := nostr.ClosedEnvelope{SubscriptionID: e.SubscriptionID, Reason: "internal error"}

		return h.writeResponse(respWriter, &closed)
	}
	e.Count = &total

	return h.writeResponse(respWriter, e)
}

// Broadcast fans ev out to every live subscription it matches. It is the
// shape group.Module.Broadcast requires, so relay-synthesized events (role
// changes, membership updates) reach subscribers the same way a
// client-submitted event does.
func (h *handler) Broadcast(ev *model.Event) {
	if err := h.notifyListenersAboutNewEvent(ev); err != nil {
		log.Printf("ERROR: failed to broadcast synthesized event %v: %v", ev.ID, err)
	}
}

// notifyListenersAboutNewEvent fans the event out to every live subscription
// it matches, one EVENT frame per subscription per the expanded spec's
// broadcast-duplication decision (no per-connection dedup).
func (h *handler) notifyListenersAboutNewEvent(ev *model.Event) error {
	h.subListenersMx.Lock()
	defer h.subListenersMx.Unlock()

	var mErr *multierror.Error
	for writer, subs := range h.subListeners {
		for _, sub := range subs {
			if sub.Filters.Match(&ev.Event) {
				envelope := &model.EventEnvelope{SubscriptionID: &sub.SubscriptionID, Events: []*model.Event{ev}}
				mErr = multierror.Append(mErr, h.writeResponse(writer, envelope))
			}
		}
	}

	return mErr.ErrorOrNil()
}

func (h *handler) CancelSubscription(_ context.Context, respWriter Writer, subID *string) error {
	h.subListenersMx.Lock()
	defer h.subListenersMx.Unlock()

	subs, found := h.subListeners[respWriter]
	if !found {
		return nil
	}

	if subID == nil {
		delete(h.subListeners, respWriter)

		return nil
	}

	delete(subs, *subID)
	if len(subs) == 0 {
		delete(h.subListeners, respWriter)
	}

	if err := h.writeResponse(respWriter, &nostr.ClosedEnvelope{SubscriptionID: *subID, Reason: ""}); err != nil {
		return errorx.Withf(err, "failed to write CLOSED message")
	}

	return nil
}
