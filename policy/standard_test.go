// SPDX-License-Identifier: ice License 1.0

package policy

import (
	"context"
	"testing"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subzero-relay/subzero/model"
)

func signedEvent(t *testing.T, kind int, content string, tags nostr.Tags, createdAt time.Time) *model.Event {
	t.Helper()

	priv := nostr.GeneratePrivateKey()
	pub, err := nostr.GetPublicKey(priv)
	require.NoError(t, err)
	ev := &model.Event{Event: nostr.Event{
		PubKey: pub, CreatedAt: nostr.Timestamp(createdAt.Unix()), Kind: kind, Tags: tags, Content: content,
	}}
	require.NoError(t, ev.Sign(priv))

	return ev
}

func TestForbidKinds(t *testing.T) {
	p := ForbidKinds(nostr.KindTextNote)
	reject, _ := p(context.Background(), signedEvent(t, nostr.KindTextNote, "", nil, time.Now()))
	assert.True(t, reject)

	reject, _ = p(context.Background(), signedEvent(t, nostr.KindFollowList, "", nil, time.Now()))
	assert.False(t, reject)
}

func TestMaxTags(t *testing.T) {
	p := MaxTags(1)
	reject, _ := p(context.Background(), signedEvent(t, nostr.KindTextNote, "", nostr.Tags{{"a"}, {"b"}}, time.Now()))
	assert.True(t, reject)

	reject, _ = p(context.Background(), signedEvent(t, nostr.KindTextNote, "", nostr.Tags{{"a"}}, time.Now()))
	assert.False(t, reject)
}

func TestMaxContentBytes(t *testing.T) {
	p := MaxContentBytes(3)
	reject, _ := p(context.Background(), signedEvent(t, nostr.KindTextNote, "toolong", nil, time.Now()))
	assert.True(t, reject)

	reject, _ = p(context.Background(), signedEvent(t, nostr.KindTextNote, "ok", nil, time.Now()))
	assert.False(t, reject)
}

func TestCreatedAtWindow(t *testing.T) {
	p := CreatedAtWindow(time.Minute, time.Minute)

	reject, _ := p(context.Background(), signedEvent(t, nostr.KindTextNote, "", nil, time.Now()))
	assert.False(t, reject)

	reject, _ = p(context.Background(), signedEvent(t, nostr.KindTextNote, "", nil, time.Now().Add(time.Hour)))
	assert.True(t, reject, "too far in the future must be rejected")

	reject, _ = p(context.Background(), signedEvent(t, nostr.KindTextNote, "", nil, time.Now().Add(-time.Hour)))
	assert.True(t, reject, "too far in the past must be rejected")
}

func TestBlockAndAllowPubKeys(t *testing.T) {
	ev := signedEvent(t, nostr.KindTextNote, "", nil, time.Now())

	block := BlockPubKeys(ev.PubKey)
	reject, _ := block(context.Background(), ev)
	assert.True(t, reject)

	allow := AllowPubKeys(ev.PubKey)
	reject, _ = allow(context.Background(), ev)
	assert.False(t, reject)

	other := signedEvent(t, nostr.KindTextNote, "", nil, time.Now())
	reject, _ = allow(context.Background(), other)
	assert.True(t, reject)
}

func TestRequireAuthForKinds(t *testing.T) {
	authed := func(ctx context.Context) (string, bool) { return "", false }
	p := RequireAuthForKinds(authed, 9005)

	reject, reason := p(context.Background(), signedEvent(t, 9005, "", nil, time.Now()))
	assert.True(t, reject)
	assert.Contains(t, reason, "auth-required")

	reject, _ = p(context.Background(), signedEvent(t, nostr.KindTextNote, "", nil, time.Now()))
	assert.False(t, reject, "kinds outside the required set must pass through")

	authed = func(ctx context.Context) (string, bool) { return "somepubkey", true }
	p = RequireAuthForKinds(authed, 9005)
	reject, _ = p(context.Background(), signedEvent(t, 9005, "", nil, time.Now()))
	assert.False(t, reject)
}

func TestRequiredTagsPerKind(t *testing.T) {
	p := RequiredTagsPerKind(map[int][]string{nostr.KindTextNote: {"p"}})

	reject, _ := p(context.Background(), signedEvent(t, nostr.KindTextNote, "", nostr.Tags{{"e", "x"}}, time.Now()))
	assert.True(t, reject)

	reject, _ = p(context.Background(), signedEvent(t, nostr.KindTextNote, "", nostr.Tags{{"p", "x"}, {"nonce", "1", "8"}}, time.Now()))
	assert.False(t, reject, "p is allowed, nonce is always allowed")
}

func TestNonEmptyContentForKinds(t *testing.T) {
	p := NonEmptyContentForKinds(nostr.KindTextNote)

	reject, _ := p(context.Background(), signedEvent(t, nostr.KindTextNote, "", nil, time.Now()))
	assert.True(t, reject)

	reject, _ = p(context.Background(), signedEvent(t, nostr.KindTextNote, "hi", nil, time.Now()))
	assert.False(t, reject)
}

func TestBlockTagValues(t *testing.T) {
	p := BlockTagValues("t", "spam")

	reject, _ := p(context.Background(), signedEvent(t, nostr.KindTextNote, "", nostr.Tags{{"t", "spam"}}, time.Now()))
	assert.True(t, reject)

	reject, _ = p(context.Background(), signedEvent(t, nostr.KindTextNote, "", nostr.Tags{{"t", "ham"}}, time.Now()))
	assert.False(t, reject)
}

func TestSignatureLengthSanity(t *testing.T) {
	p := SignatureLengthSanity()
	ev := signedEvent(t, nostr.KindTextNote, "", nil, time.Now())

	reject, _ := p(context.Background(), ev)
	assert.False(t, reject)

	ev.Sig = ev.Sig[:len(ev.Sig)-1]
	reject, _ = p(context.Background(), ev)
	assert.True(t, reject)
}

func TestValidSignature(t *testing.T) {
	p := ValidSignature()
	ev := signedEvent(t, nostr.KindTextNote, "", nil, time.Now())

	reject, _ := p(context.Background(), ev)
	assert.False(t, reject)

	ev.Content = "tampered"
	reject, _ = p(context.Background(), ev)
	assert.True(t, reject, "content tampering must invalidate the id hash")
}

func TestValidateKindProfileMetadata(t *testing.T) {
	p := ValidateKindProfileMetadata()

	reject, _ := p(context.Background(), signedEvent(t, 0, "not json", nil, time.Now()))
	assert.True(t, reject)

	reject, _ = p(context.Background(), signedEvent(t, 0, `{"name":"alice"}`, nil, time.Now()))
	assert.False(t, reject)

	reject, _ = p(context.Background(), signedEvent(t, 0, `{"about":"no name"}`, nil, time.Now()))
	assert.True(t, reject, "missing name field must be rejected")

	reject, _ = p(context.Background(), signedEvent(t, nostr.KindTextNote, "not json", nil, time.Now()))
	assert.False(t, reject, "policy only applies to kind 0")
}

func TestValidateKindContent(t *testing.T) {
	p := ValidateKindContent()

	reject, _ := p(context.Background(), signedEvent(t, nostr.KindTextNote, `{"not":"plain text"}`, nil, time.Now()))
	assert.True(t, reject, "nip-01: kind-1 content must not be json")

	reject, _ = p(context.Background(), signedEvent(t, nostr.KindTextNote, "plain text", nil, time.Now()))
	assert.False(t, reject)

	reject, _ = p(context.Background(), signedEvent(t, nostr.KindFollowList, "", nostr.Tags{{"p", "somepubkey"}}, time.Now()))
	assert.False(t, reject)

	reject, _ = p(context.Background(), signedEvent(t, nostr.KindFollowList, "", nil, time.Now()))
	assert.True(t, reject, "nip-02: follow list must carry at least one p tag")
}

func TestRequireProofOfWork(t *testing.T) {
	p := RequireProofOfWork(0)
	reject, _ := p(context.Background(), signedEvent(t, nostr.KindTextNote, "", nil, time.Now()))
	assert.False(t, reject, "zero difficulty requirement always passes")
}
