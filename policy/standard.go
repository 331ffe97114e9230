package policy

import (
	"context"
	"encoding/json"
	"slices"
	"time"

	"github.com/subzero-relay/subzero/model"
)

// ForbidKinds rejects any event whose kind is in the given set.
func ForbidKinds(kinds ...int) RejectEventFunc {
	blocked := make(map[int]struct{}, len(kinds))
	for _, k := range kinds {
		blocked[k] = struct{}{}
	}

	return func(_ context.Context, event *model.Event) (bool, string) {
		if _, ok := blocked[event.Kind]; ok {
			return true, "kind is not accepted by this relay"
		}

		return false, ""
	}
}

// MaxTags rejects events carrying more than n tags.
func MaxTags(n int) RejectEventFunc {
	return func(_ context.Context, event *model.Event) (bool, string) {
		if len(event.Tags) > n {
			return true, "too many tags"
		}

		return false, ""
	}
}

// MaxContentBytes rejects events whose content exceeds n bytes.
func MaxContentBytes(n int) RejectEventFunc {
	return func(_ context.Context, event *model.Event) (bool, string) {
		if len(event.Content) > n {
			return true, "content is too large"
		}

		return false, ""
	}
}

// CreatedAtWindow rejects events whose created_at is more than future
// seconds ahead of, or more than past seconds behind, wall-clock time.
func CreatedAtWindow(future, past time.Duration) RejectEventFunc {
	return func(_ context.Context, event *model.Event) (bool, string) {
		now := time.Now()
		ts := time.Unix(int64(event.CreatedAt), 0)
		if future > 0 && ts.After(now.Add(future)) {
			return true, "created_at is too far in the future"
		}
		if past > 0 && ts.Before(now.Add(-past)) {
			return true, "created_at is too far in the past"
		}

		return false, ""
	}
}

// BlockPubKeys rejects events authored by any of the given pubkeys.
func BlockPubKeys(pubkeys ...string) RejectEventFunc {
	blocked := make(map[string]struct{}, len(pubkeys))
	for _, pk := range pubkeys {
		blocked[pk] = struct{}{}
	}

	return func(_ context.Context, event *model.Event) (bool, string) {
		if _, ok := blocked[event.PubKey]; ok {
			return true, "pubkey is blocked"
		}

		return false, ""
	}
}

// AllowPubKeys rejects every event except those authored by the given
// pubkeys (an allowlist relay).
func AllowPubKeys(pubkeys ...string) RejectEventFunc {
	allowed := make(map[string]struct{}, len(pubkeys))
	for _, pk := range pubkeys {
		allowed[pk] = struct{}{}
	}

	return func(_ context.Context, event *model.Event) (bool, string) {
		if _, ok := allowed[event.PubKey]; !ok {
			return true, "pubkey is not allowed"
		}

		return false, ""
	}
}

// AuthPubKey resolves the pubkey authenticated on the current connection,
// if any. Wired by the dispatcher from the connection's AUTH state.
type AuthPubKey func(ctx context.Context) (pubkey string, authenticated bool)

// RequireAuthForKinds rejects the listed kinds unless the connection has
// completed NIP-42 AUTH.
func RequireAuthForKinds(authed AuthPubKey, kinds ...int) RejectEventFunc {
	required := make(map[int]struct{}, len(kinds))
	for _, k := range kinds {
		required[k] = struct{}{}
	}

	return func(ctx context.Context, event *model.Event) (bool, string) {
		if _, ok := required[event.Kind]; !ok {
			return false, ""
		}
		if _, ok := authed(ctx); !ok {
			return true, "auth-required: this kind requires authentication"
		}

		return false, ""
	}
}

// RequiredTagsPerKind generalizes the teacher's KindSupportedTags map: for
// kinds present in the map, every tag name on the event must be one of the
// allowed names (the "nonce" tag is always allowed, for NIP-13).
func RequiredTagsPerKind(allowed map[int][]string) RejectEventFunc {
	return func(_ context.Context, event *model.Event) (bool, string) {
		supported, ok := allowed[event.Kind]
		if !ok {
			return false, ""
		}
	next:
		for _, tag := range event.Tags {
			if tag.Key() == "nonce" {
				continue
			}
			if slices.Contains(supported, tag.Key()) {
				continue next
			}

			return true, "unsupported tag for this event kind"
		}

		return false, ""
	}
}

// NonEmptyContentForKinds rejects the listed kinds if content is empty.
func NonEmptyContentForKinds(kinds ...int) RejectEventFunc {
	required := make(map[int]struct{}, len(kinds))
	for _, k := range kinds {
		required[k] = struct{}{}
	}

	return func(_ context.Context, event *model.Event) (bool, string) {
		if _, ok := required[event.Kind]; ok && event.Content == "" {
			return true, "content must not be empty for this kind"
		}

		return false, ""
	}
}

// BlockTagValues rejects events carrying tagName with any of values.
func BlockTagValues(tagName string, values ...string) RejectEventFunc {
	blocked := make(map[string]struct{}, len(values))
	for _, v := range values {
		blocked[v] = struct{}{}
	}

	return func(_ context.Context, event *model.Event) (bool, string) {
		for _, v := range event.GetTagValues(tagName) {
			if _, ok := blocked[v]; ok {
				return true, "tag value is blocked"
			}
		}

		return false, ""
	}
}

// SignatureLengthSanity rejects events whose sig isn't the expected 128
// hex characters, ahead of the more expensive CheckSignature call.
func SignatureLengthSanity() RejectEventFunc {
	const schnorrSigHexLen = 128

	return func(_ context.Context, event *model.Event) (bool, string) {
		if len(event.Sig) != schnorrSigHexLen {
			return true, "invalid signature length"
		}

		return false, ""
	}
}

// ValidSignature verifies the id hash and the Schnorr signature.
// SignatureLengthSanity is usually installed ahead of it so malformed
// signatures are rejected before the costlier check runs.
func ValidSignature() RejectEventFunc {
	return func(_ context.Context, event *model.Event) (bool, string) {
		if !event.CheckID() {
			return true, "invalid: id does not match the event hash"
		}
		ok, err := event.CheckSignature()
		if err != nil || !ok {
			return true, "invalid: signature verification failed"
		}

		return false, ""
	}
}

// ValidateKindProfileMetadata lifts the teacher's
// validateKindProfileMetadataEvent out of model.Validate as a standalone
// standard policy, per NIP-01/NIP-24.
func ValidateKindProfileMetadata() RejectEventFunc {
	return func(_ context.Context, event *model.Event) (bool, string) {
		if event.Kind != 0 {
			return false, ""
		}
		if !json.Valid([]byte(event.Content)) {
			return true, "kind-0 content must be stringified json"
		}
		var parsed model.ProfileMetadataContent
		if err := json.Unmarshal([]byte(event.Content), &parsed); err != nil {
			return true, "kind-0 content has the wrong json fields"
		}
		if parsed.Name == "" {
			return true, "kind-0 content is missing the name field"
		}

		return false, ""
	}
}

// ValidateKindContent adapts the teacher's per-kind content/tag switch
// (model.Event.Validate: NIP-02/10/18/23/25/32 checks) into a standard
// policy, for relays that want the fuller validation beyond
// RequiredTagsPerKind / NonEmptyContentForKinds.
func ValidateKindContent() RejectEventFunc {
	return func(_ context.Context, event *model.Event) (bool, string) {
		if err := event.Validate(); err != nil {
			return true, err.Error()
		}

		return false, ""
	}
}

// RequireProofOfWork rejects events that do not carry the required NIP-13
// leading-zero-bit difficulty, built on the teacher's kept nip13 hooks.
func RequireProofOfWork(minLeadingZeroBits int) RejectEventFunc {
	return func(_ context.Context, event *model.Event) (bool, string) {
		if err := event.CheckNIP13Difficulty(minLeadingZeroBits); err != nil {
			return true, "insufficient proof of work difficulty"
		}

		return false, ""
	}
}
