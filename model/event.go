// SPDX-License-Identifier: ice License 1.0

package model

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log"

	"github.com/cockroachdb/errors"
	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip13"
)

type (
	Event struct {
		nostr.Event
	}
)

// NarrowReplaceableClassification switches Event.Classify to the narrow view
// the original relay shipped with (kind 0 and addressable kinds only), for
// strict behavioral parity testing. The broad NIP-01 view is the default.
var NarrowReplaceableClassification = false

type Classification int

const (
	ClassRegular Classification = iota
	ClassReplaceable
	ClassEphemeral
	ClassAddressable
)

func (e *Event) Classify() Classification {
	switch {
	case e.Kind >= KindEphemeralMin && e.Kind < KindEphemeralMax:
		return ClassEphemeral
	case e.Kind >= KindAddressableMin && e.Kind < KindAddressableMax:
		return ClassAddressable
	case NarrowReplaceableClassification:
		if e.Kind == 0 {
			return ClassReplaceable
		}
		return ClassRegular
	case e.Kind == 0 || e.Kind == 3 || (e.Kind >= KindReplaceableRangeMin && e.Kind < KindReplaceableRangeMax):
		return ClassReplaceable
	default:
		return ClassRegular
	}
}

func (e *Event) IsEphemeral() bool    { return e.Classify() == ClassEphemeral }
func (e *Event) IsReplaceable() bool  { return e.Classify() == ClassReplaceable }
func (e *Event) IsAddressable() bool  { return e.Classify() == ClassAddressable }
func (e *Event) IsRegular() bool      { return e.Classify() == ClassRegular }

// Address returns the identity of a replaceable/addressable event:
// "kind:pubkey:d" for addressable kinds, "kind:pubkey" otherwise.
// Returns "" for events that are neither replaceable nor addressable.
func (e *Event) Address() string {
	switch e.Classify() {
	case ClassAddressable:
		return fmt.Sprintf("%d:%s:%s", e.Kind, e.PubKey, e.Tags.GetD())
	case ClassReplaceable:
		return fmt.Sprintf("%d:%s", e.Kind, e.PubKey)
	default:
		return ""
	}
}

func (e *Event) CheckNIP13Difficulty(minLeadingZeroBits int) error {
	if minLeadingZeroBits == 0 {
		return nil
	}
	if err := nip13.Check(e.GetID(), minLeadingZeroBits); err != nil {
		log.Printf("difficulty: %v < %v, id:%v", nip13.Difficulty(e.GetID()), minLeadingZeroBits, e.GetID())

		return err
	}

	return nil
}

func (e *Event) GenerateNIP13(ctx context.Context, minLeadingZeroBits int) error {
	if minLeadingZeroBits == 0 {
		return nil
	}
	tag, err := nip13.DoWork(ctx, e.Event, minLeadingZeroBits)
	if err != nil {
		log.Printf("can't do mining by the provided difficulty:%v", minLeadingZeroBits)

		return err
	}
	e.Tags = append(e.Tags, tag)

	return nil
}

// CheckID verifies that e.ID equals the canonical SHA-256 hash of the event.
func (e *Event) CheckID() bool {
	hash := sha256.Sum256(e.Serialize())

	return fmt.Sprintf("%x", hash) == e.ID
}

// CheckSignature verifies e.Sig is a valid Schnorr signature over e.ID by e.PubKey.
func (e *Event) CheckSignature() (bool, error) {
	ok, err := e.Event.CheckSignature()

	return ok, errors.Wrap(err, "failed to check schnorr signature")
}

func (e *Event) GetTag(tagName string) Tag {
	for _, tag := range e.Tags {
		if tag.Key() == tagName {
			return tag
		}
	}

	return nil
}

// HasTag reports whether any tag named tagName exists.
func (e *Event) HasTag(tagName string) bool {
	return e.GetTag(tagName) != nil
}

// GetTagValues returns the second element of every tag named tagName.
func (e *Event) GetTagValues(tagName string) []string {
	var values []string
	for _, tag := range e.Tags {
		if tag.Key() == tagName && len(tag) > 1 {
			values = append(values, tag[1])
		}
	}

	return values
}
