// SPDX-License-Identifier: ice License 1.0

package ws

import (
	"context"
	"io"
	"sync"
	stdlibtime "time"

	"github.com/subzero-relay/subzero/group"
	"github.com/subzero-relay/subzero/model"
	"github.com/subzero-relay/subzero/policy"
)

type (
	// Writer is the minimal contract the handler needs from a connection:
	// concurrency-safe message writes, independent of transport.
	Writer interface {
		WriteMessage(data []byte) error
		io.Closer
	}

	Config struct {
		CertPath                string              `yaml:"certPath"`
		KeyPath                 string              `yaml:"keyPath"`
		NIP13MinLeadingZeroBits int                 `yaml:"nip13MinLeadingZeroBits"`
		Port                    uint16              `yaml:"port"`
		WriteTimeout            stdlibtime.Duration `yaml:"writeTimeout"`
		ReadTimeout             stdlibtime.Duration `yaml:"readTimeout"`
	}
)

type (
	subscription struct {
		*model.Subscription
		SubscriptionID string
	}

	connState struct {
		authChallenge string
		authPubKey    string
		authenticated bool
	}

	handler struct {
		subListenersMx sync.Mutex
		subListeners   map[Writer]map[string]*subscription

		connStateMx sync.Mutex
		connState   map[Writer]*connState

		Chain *policy.Chain
		Group *group.Module
		Relay string
	}
)

const applicationYamlKey = "cmd/subzero"

// AuthPubKey satisfies policy.AuthPubKey, resolving the pubkey authenticated
// on ctx's connection, if any.
func (h *handler) AuthPubKey(ctx context.Context) (string, bool) {
	w, ok := ctx.Value(ctxKeyWriter).(Writer)
	if !ok {
		return "", false
	}

	h.connStateMx.Lock()
	defer h.connStateMx.Unlock()

	st, ok := h.connState[w]
	if !ok || !st.authenticated {
		return "", false
	}

	return st.authPubKey, true
}

type ctxKey string

const ctxKeyWriter ctxKey = "ws-writer"
