// SPDX-License-Identifier: ice License 1.0

package ws

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"io"
	"log"
	"net"
	"net/http"
	"sync"

	"github.com/cockroachdb/errors"
	gobwasws "github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/hashicorp/go-multierror"
	"github.com/nbd-wtf/go-nostr"

	"github.com/subzero-relay/subzero/group"
	"github.com/subzero-relay/subzero/model"
	"github.com/subzero-relay/subzero/policy"
)

// NewHandler wires a fresh dispatcher against the given policy chain and
// group module (nil if groups are disabled), matching the teacher's
// single-goroutine-per-connection shape in server/ws/ws.go.
func NewHandler(chain *policy.Chain, grp *group.Module, relayPubKey string) *handler {
	return &handler{
		subListeners: make(map[Writer]map[string]*subscription),
		connState:    make(map[Writer]*connState),
		Chain:        chain,
		Group:        grp,
		Relay:        relayPubKey,
	}
}

// conn adapts a raw net.Conn (post websocket handshake) to Writer, guarding
// concurrent writers (the read loop's synchronous responses and the
// broadcast fan-out both write to the same socket). reader wraps conn with
// whatever UpgradeHTTP already buffered off the hijacked connection.
type conn struct {
	net.Conn
	reader io.Reader
	mu     sync.Mutex
}

func (c *conn) Read(p []byte) (int, error) {
	return c.reader.Read(p)
}

func (c *conn) WriteMessage(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return wsutil.WriteServerMessage(c.Conn, gobwasws.OpText, data)
}

// ServeHTTP upgrades the request to a websocket connection and runs the read
// loop until the client disconnects, mirroring the teacher's http2 upgrade
// handler (internal/http2/server.go) with the HTTP/3/WebTransport sibling
// dropped per the expanded spec's single-transport scope.
func (h *handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	netConn, brw, _, err := gobwasws.UpgradeHTTP(r, w)
	if err != nil {
		log.Printf("ERROR:%v", errors.Wrap(err, "failed to upgrade websocket connection"))

		return
	}

	c := &conn{Conn: netConn, reader: netConn}
	if brw != nil {
		c.reader = brw.Reader
	}
	ctx := context.WithValue(r.Context(), ctxKeyWriter, Writer(c))
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	h.issueChallenge(c)

	defer func() {
		if cErr := c.Close(); cErr != nil {
			log.Printf("ERROR:%v", errors.Wrap(cErr, "failed to close websocket conn"))
		}
	}()

	h.Read(ctx, c)
}

func (h *handler) Read(ctx context.Context, stream Writer) {
	c, ok := stream.(*conn)
	if !ok {
		log.Panic("Read called with a non-*conn Writer")
	}

	for {
		msgBytes, opCode, err := wsutil.ReadClientData(c)
		if err != nil {
			closed := new(wsutil.ClosedError)
			if !errors.As(err, closed) && !errors.Is(err, io.EOF) {
				log.Printf("WARN: unexpected read error: %v", err)
			}

			break
		}
		if len(msgBytes) > 0 && opCode == gobwasws.OpText {
			h.Handle(ctx, stream, msgBytes)
		}
	}

	if err := h.CancelSubscription(ctx, stream, nil); err != nil {
		log.Printf("ERROR:%v", errors.Wrap(err, "failed to cancel subscriptions opened on closing conn"))
	}

	h.connStateMx.Lock()
	delete(h.connState, stream)
	h.connStateMx.Unlock()
}

func (h *handler) Handle(ctx context.Context, respWriter Writer, msgBytes []byte) {
	input, err := model.ParseMessage(msgBytes)
	if err != nil {
		notice := nostr.NoticeEnvelope(err.Error())
		log.Printf("ERROR:%v", multierror.Append(err, h.writeResponse(respWriter, &notice)).ErrorOrNil())

		return
	}

	switch e := input.(type) {
	case *model.EventEnvelope:
		h.handleEventEnvelope(ctx, respWriter, e)

		return
	case *nostr.ReqEnvelope:
		err = h.handleReq(ctx, respWriter, &subscription{Subscription: &model.Subscription{Filters: e.Filters}, SubscriptionID: e.SubscriptionID})
	case *nostr.CountEnvelope:
		err = h.handleCount(ctx, respWriter, e)

		return
	case *nostr.CloseEnvelope:
		subID := string(*e)
		err = h.CancelSubscription(ctx, respWriter, &subID)
	case *nostr.AuthEnvelope:
		err = h.handleAuth(respWriter, e)
	default:
		err = errors.Errorf("unknown message type %v", input.Label())
	}

	if err != nil {
		err = errors.Wrapf(err, "error: failed to handle %v %+v", input.Label(), input)
		notice := nostr.NoticeEnvelope(err.Error())
		log.Printf("ERROR:%v", multierror.Append(err, h.writeResponse(respWriter, &notice)).ErrorOrNil())
	}
}

// handleEventEnvelope implements invariant 5: the OK response for a
// submitted event is always written before that event is broadcast to
// other subscribers.
func (h *handler) handleEventEnvelope(ctx context.Context, respWriter Writer, e *model.EventEnvelope) {
	for _, event := range e.Events {
		reason, err := h.handleEvent(ctx, event)
		accepted := err == nil && reason == ""
		resp := &nostr.OKEnvelope{EventID: event.ID, OK: accepted}
		if err != nil {
			log.Printf("ERROR: failed to handle event %v: %v", event.ID, err)
			resp.Reason = "internal error"
		} else if reason != "" {
			resp.Reason = reason
		}

		if wErr := h.writeResponse(respWriter, resp); wErr != nil {
			log.Printf("ERROR: write event response %v: %v", event.ID, wErr)

			return
		}

		if accepted {
			if err = h.notifyListenersAboutNewEvent(event); err != nil {
				log.Printf("ERROR: failed to notify subscribers about new event: %v", err)
			}
		}
	}
}

func (h *handler) writeResponse(respWriter Writer, envelope nostr.Envelope) error {
	b, err := envelope.MarshalJSON()
	if err != nil {
		return errors.Wrapf(err, "failed to serialize %+v into json", envelope)
	}

	return respWriter.WriteMessage(b)
}

func newChallenge() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		log.Printf("ERROR:%v", errors.Wrap(err, "failed to generate auth challenge"))
	}

	return hex.EncodeToString(buf)
}

func (h *handler) issueChallenge(w Writer) {
	challenge := newChallenge()

	h.connStateMx.Lock()
	if h.connState == nil {
		h.connState = make(map[Writer]*connState)
	}
	h.connState[w] = &connState{authChallenge: challenge}
	h.connStateMx.Unlock()

	auth := nostr.AuthEnvelope{Challenge: &challenge}
	if err := h.writeResponse(w, &auth); err != nil {
		log.Printf("ERROR:%v", errors.Wrap(err, "failed to write AUTH challenge"))
	}
}
