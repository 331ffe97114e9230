// SPDX-License-Identifier: ice License 1.0

package ws

import (
	"github.com/cockroachdb/errors"
	"github.com/nbd-wtf/go-nostr"

	"github.com/subzero-relay/subzero/model"
)

// handleAuth verifies a NIP-42 kind-22242 event against the challenge issued
// on connection open: its "challenge" tag must match and its signature must
// check out. This replaces the teacher's bool-only stub with a real AUTH
// flow.
func (h *handler) handleAuth(respWriter Writer, e *nostr.AuthEnvelope) error {
	event := model.Event{Event: e.Event}

	h.connStateMx.Lock()
	st, ok := h.connState[respWriter]
	h.connStateMx.Unlock()

	var reason string
	switch {
	case !ok:
		reason = "internal error: no challenge issued for this connection"
	case event.Kind != nostr.KindClientAuthentication:
		reason = "invalid: wrong event kind for AUTH"
	case challengeTag(&event) != st.authChallenge:
		reason = "invalid: challenge does not match"
	default:
		if ok, err := event.CheckSignature(); err != nil || !ok {
			reason = "invalid: signature verification failed"
		}
	}

	success := reason == ""
	if success {
		h.connStateMx.Lock()
		st.authenticated = true
		st.authPubKey = event.PubKey
		h.connStateMx.Unlock()
	}

	resp := &nostr.OKEnvelope{EventID: event.ID, OK: success, Reason: reason}

	return errors.Wrap(h.writeResponse(respWriter, resp), "failed to write AUTH response")
}

func challengeTag(event *model.Event) string {
	if t := event.GetTag("challenge"); t != nil {
		return t.Value()
	}

	return ""
}
