// SPDX-License-Identifier: ice License 1.0

package model

import (
	"errors"

	"github.com/nbd-wtf/go-nostr"
)

type (
	TagMap    = nostr.TagMap
	Tag       = nostr.Tag
	Tags      = nostr.Tags
	Timestamp = nostr.Timestamp
	Kind      = int
	Filter    = nostr.Filter
	Filters   = nostr.Filters

	Subscription struct {
		ID      string
		Filters Filters
	}
	EventReference interface {
		Filter() Filter
	}
	ReplaceableEventReference struct {
		PubKey string
		DTag   string
		Kind   int
	}
	PlainEventReference struct {
		EventIDs []string
	}
)

var (
	ErrDuplicate       = errors.New("duplicate event")
	ErrReplacedByNewer = errors.New("replaced by newer")
)

// Kind ranges that classify an event, per NIP-01/09/16/33.
const (
	KindEphemeralMin = 20000
	KindEphemeralMax = 30000 // exclusive

	KindAddressableMin = 30000
	KindAddressableMax = 40000 // exclusive

	KindReplaceableRangeMin = 10000
	KindReplaceableRangeMax = 20000 // exclusive

	KindRegularRange1Min = 1000
	KindRegularRange1Max = 10000 // exclusive
	KindRegularRange2Min = 4
	KindRegularRange2Max = 45 // exclusive
)
