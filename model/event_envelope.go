package model

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// EventEnvelope is a superset of nostr's ["EVENT", <event>] client message:
// it additionally accepts a batch of events in one frame, optionally
// addressed to a subscription ID, so a client publishing a burst of
// backfilled events does not pay one round trip per event.
//
// For the common single-event, no-subscription-ID case it encodes byte
// for byte like the upstream nostr.EventEnvelope.
type EventEnvelope struct {
	SubscriptionID *string
	Events         []*Event
}

func (*EventEnvelope) Label() string {
	return string(EnvelopeTypeEvent)
}

func (v *EventEnvelope) UnmarshalJSON(data []byte) error {
	arr := gjson.ParseBytes(data).Array()
	if len(arr) < 2 {
		return fmt.Errorf("failed to decode EVENT envelope: missing event")
	}

	start := 1
	if arr[1].Type == gjson.String {
		subID := arr[1].Str
		v.SubscriptionID = &subID
		start = 2
	}

	if start >= len(arr) {
		return fmt.Errorf("failed to decode EVENT envelope: missing event")
	}

	v.Events = make([]*Event, 0, len(arr)-start)
	for i := start; i < len(arr); i++ {
		var ev Event
		if err := json.Unmarshal([]byte(arr[i].Raw), &ev.Event); err != nil {
			return fmt.Errorf("%w -- on event %d", err, i-start)
		}
		v.Events = append(v.Events, &ev)
	}

	return nil
}

func (v *EventEnvelope) MarshalJSON() ([]byte, error) {
	data := make([]any, 0, len(v.Events)+2)
	data = append(data, EnvelopeTypeEvent)

	if v.SubscriptionID != nil {
		data = append(data, *v.SubscriptionID)
	}

	for _, ev := range v.Events {
		data = append(data, ev.Event)
	}

	return json.Marshal(data)
}

func (v *EventEnvelope) String() string {
	data, _ := json.Marshal(v)
	return string(data)
}
