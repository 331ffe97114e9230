// SPDX-License-Identifier: ice License 1.0

package model

import (
	"testing"

	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/require"
)

func TestEventSignVerify(t *testing.T) {
	t.Parallel()

	t.Run("ValidSignature", func(t *testing.T) {
		var ev Event
		ev.Kind = nostr.KindTextNote
		ev.CreatedAt = 1
		ev.Content = "hello"

		pk := nostr.GeneratePrivateKey()
		require.NotEmpty(t, pk)
		require.NoError(t, ev.Sign(pk))
		require.True(t, ev.CheckID())

		ok, err := ev.CheckSignature()
		require.NoError(t, err)
		require.True(t, ok)
	})
	t.Run("TamperedContent", func(t *testing.T) {
		var ev Event
		ev.Kind = nostr.KindTextNote
		ev.CreatedAt = 1
		ev.Content = "hello"

		pk := nostr.GeneratePrivateKey()
		require.NoError(t, ev.Sign(pk))

		ev.Content = "tampered"
		require.False(t, ev.CheckID())
	})
	t.Run("BadSignature", func(t *testing.T) {
		var ev Event
		ev.Kind = nostr.KindTextNote
		ev.CreatedAt = 1
		ev.Content = "hello"

		pk := nostr.GeneratePrivateKey()
		require.NoError(t, ev.Sign(pk))
		ev.Sig = ev.Sig[:len(ev.Sig)-2] + "00"

		ok, err := ev.CheckSignature()
		require.NoError(t, err)
		require.False(t, ok)
	})
}

func TestEventClassify(t *testing.T) {
	t.Parallel()

	cases := []struct {
		kind int
		want Classification
	}{
		{0, ClassReplaceable},
		{1, ClassRegular},
		{3, ClassReplaceable},
		{1000, ClassRegular},
		{9999, ClassRegular},
		{10002, ClassReplaceable},
		{19999, ClassReplaceable},
		{20000, ClassEphemeral},
		{29999, ClassEphemeral},
		{30000, ClassAddressable},
		{39000, ClassAddressable},
	}

	for _, tc := range cases {
		var ev Event
		ev.Kind = tc.kind
		require.Equalf(t, tc.want, ev.Classify(), "kind %d", tc.kind)
	}
}

func TestEventEnvelopeEncodeDecode(t *testing.T) {
	t.Parallel()

	t.Run("SingleEvent", func(t *testing.T) {
		var ev Event
		ev.Kind = nostr.KindTextNote
		ev.CreatedAt = 1
		ev.Content = "foo"
		ev.Tags = Tags{{"bar", "baz"}}

		envelopeSubzero := EventEnvelope{
			Events: []*Event{&ev},
		}
		envelopeNostr := nostr.EventEnvelope{
			Event: ev.Event,
		}

		t.Run("EncodeDecode", func(t *testing.T) {
			data, err := envelopeSubzero.MarshalJSON()
			require.NoError(t, err)
			t.Logf("data: %s", string(data))
			require.NotEmpty(t, data)

			dataNostr, err := envelopeNostr.MarshalJSON()
			require.NoError(t, err)
			t.Logf("dataNostr: %s", string(dataNostr))
			require.NotEmpty(t, dataNostr)

			require.Equal(t, dataNostr, data)

			// Cannot do deep equal because of internal fields.
			//                                 @@ -17,3 +17,4 @@
			// Sig: (string) "",
			// -    extra: (map[string]interface {}) <nil>
			// +    extra: (map[string]interface {}) {
			// +    }
			//	}

			e := nostr.ParseMessage(data)
			require.NotNil(t, e)
			require.Equal(t, envelopeSubzero.Events[0].Event.Content, e.(*nostr.EventEnvelope).Event.Content)
			require.Equal(t, envelopeSubzero.Events[0].Event.Tags, e.(*nostr.EventEnvelope).Event.Tags)
			require.Equal(t, envelopeSubzero.Events[0].Event.CreatedAt, e.(*nostr.EventEnvelope).Event.CreatedAt)
			require.Equal(t, envelopeSubzero.Events[0].Event.Kind, e.(*nostr.EventEnvelope).Event.Kind)

			e2, err := ParseMessage(dataNostr)
			require.NoError(t, err)
			require.NotNil(t, e2)
			require.Equal(t, envelopeSubzero.Events[0].Event.Content, e2.(*EventEnvelope).Events[0].Content)
			require.Equal(t, envelopeSubzero.Events[0].Event.Tags, e2.(*EventEnvelope).Events[0].Tags)
			require.Equal(t, envelopeSubzero.Events[0].Event.CreatedAt, e2.(*EventEnvelope).Events[0].CreatedAt)
			require.Equal(t, envelopeSubzero.Events[0].Event.Kind, e2.(*EventEnvelope).Events[0].Kind)
		})
	})
	t.Run("MultipleEventsNoSubscriptionID", func(t *testing.T) {
		envelope := EventEnvelope{
			Events: []*Event{
				{
					Event: nostr.Event{
						Content:   "foo",
						CreatedAt: 1,
						Kind:      nostr.KindTextNote,
					},
				},
				{
					Event: nostr.Event{
						Content:   "bar",
						CreatedAt: 2,
						Kind:      nostr.KindTorrent,
					},
				},
			},
		}

		t.Run("EncodeDecode", func(t *testing.T) {
			data, err := envelope.MarshalJSON()
			require.NoError(t, err)
			t.Logf("data: %s", string(data))
			require.NotEmpty(t, data)

			e, err := ParseMessage(data)
			require.NoError(t, err)
			require.NotNil(t, e)
			require.IsType(t, &EventEnvelope{}, e)
			require.Nil(t, e.(*EventEnvelope).SubscriptionID)
			require.Len(t, e.(*EventEnvelope).Events, 2)
		})
	})
	t.Run("MultipleEvents", func(t *testing.T) {
		subID := "subscription ID"
		envelope := EventEnvelope{
			SubscriptionID: &subID,
			Events: []*Event{
				{
					Event: nostr.Event{
						Content:   "foo",
						CreatedAt: 1,
						Kind:      nostr.KindTextNote,
					},
				},
				{
					Event: nostr.Event{
						Content:   "bar",
						CreatedAt: 2,
						Kind:      nostr.KindTorrent,
					},
				},
			},
		}

		t.Run("EncodeDecode", func(t *testing.T) {
			data, err := envelope.MarshalJSON()
			require.NoError(t, err)
			t.Logf("data: %s", string(data))
			require.NotEmpty(t, data)

			e, err := ParseMessage(data)
			require.NoError(t, err)
			require.NotNil(t, e)
			require.IsType(t, &EventEnvelope{}, e)
			require.Len(t, e.(*EventEnvelope).Events, 2)
			require.Equal(t, &subID, e.(*EventEnvelope).SubscriptionID)
		})
	})
}
