// SPDX-License-Identifier: ice License 1.0

package main

import (
	"context"
	"log"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/spf13/cobra"

	"github.com/subzero-relay/subzero/database/query"
	"github.com/subzero-relay/subzero/group"
	"github.com/subzero-relay/subzero/model"
	"github.com/subzero-relay/subzero/policy"
	"github.com/subzero-relay/subzero/replace"
	httpserver "github.com/subzero-relay/subzero/server"
	httpinfo "github.com/subzero-relay/subzero/server/http"
	wsserver "github.com/subzero-relay/subzero/server/ws"
)

var (
	port               uint16
	cert               string
	key                string
	databasePath       string
	relaySecKey        string
	minLeadingZeroBits int
	maxTags            int
	maxContentBytes    int

	subzero = &cobra.Command{
		Use:   "subzero",
		Short: "subzero",
		Run: func(_ *cobra.Command, _ []string) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			if databasePath == ":memory:" {
				log.Print("using in-memory database")
			} else {
				log.Print("using database at ", databasePath)
			}

			backend := query.New(databasePath)
			if err := backend.Init(ctx); err != nil {
				log.Panic(err)
			}

			if relaySecKey == "" {
				relaySecKey = nostr.GeneratePrivateKey()
				pub, _ := nostr.GetPublicKey(relaySecKey)
				log.Printf("no --relay-key given, generated an ephemeral one (pubkey %v)", pub)
			}

			grp, err := group.New(backend.DB, backend, relaySecKey)
			if err != nil {
				log.Panic(err)
			}
			if err = grp.Init(ctx); err != nil {
				log.Panic(err)
			}

			relayPubKey, err := nostr.GetPublicKey(relaySecKey)
			if err != nil {
				log.Panic(err)
			}

			chain := policy.New()
			wsHandler := wsserver.NewHandler(chain, grp, relayPubKey)
			grp.Broadcast = wsHandler.Broadcast

			resolver := replace.NewResolver(backend)
			chain.RejectEvent = []policy.RejectEventFunc{
				policy.SignatureLengthSanity(),
				policy.ValidSignature(),
				policy.CreatedAtWindow(15*time.Minute, 0),
				policy.MaxTags(maxTags),
				policy.MaxContentBytes(maxContentBytes),
				policy.ValidateKindProfileMetadata(),
				policy.ValidateKindContent(),
				policy.RequireProofOfWork(minLeadingZeroBits),
				policy.RequireAuthForKinds(wsHandler.AuthPubKey, group.KindDeleteEvent, group.KindDeleteGroup),
			}
			chain.StoreEvent = []policy.StoreEventFunc{backend.Store}
			chain.QueryEvents = []policy.QueryEventsFunc{backend.Query}
			chain.CountEvents = []policy.CountEventsFunc{backend.Count}
			chain.ReplaceEvent = []policy.ReplaceEventFunc{resolver.Resolve}
			chain.DeleteEvent = []policy.DeleteEventFunc{
				func(ctx context.Context, sub *model.Subscription, ownerPubKey string) error {
					_, err := backend.Delete(ctx, sub, ownerPubKey)

					return err
				},
			}

			httpserver.ListenAndServe(ctx, cancel, &httpserver.Config{
				Config: wsserver.Config{
					CertPath:                cert,
					KeyPath:                 key,
					Port:                    port,
					NIP13MinLeadingZeroBits: minLeadingZeroBits,
				},
				Info: httpinfo.Config{
					MinLeadingZeroBits: minLeadingZeroBits,
				},
			}, wsHandler)
		},
	}

	initFlags = func() {
		subzero.Flags().StringVar(&databasePath, "database", ":memory:", "path to the sqlite database")
		subzero.Flags().StringVar(&cert, "cert", "", "path to tls certificate for the http/ws server (TLS)")
		subzero.Flags().StringVar(&key, "key", "", "path to tls key for the http/ws server (TLS)")
		subzero.Flags().Uint16Var(&port, "port", 0, "port to communicate with clients (http/websocket)")
		subzero.Flags().StringVar(&relaySecKey, "relay-key", "", "hex private key the relay signs synthesized group events with (generated if omitted)")
		subzero.Flags().IntVar(&minLeadingZeroBits, "minLeadingZeroBits", 0, "min leading zero bits according to NIP-13")
		subzero.Flags().IntVar(&maxTags, "max-tags", 2000, "max number of tags an event may carry")
		subzero.Flags().IntVar(&maxContentBytes, "max-content-bytes", 100000, "max size of an event's content field")
		if err := subzero.MarkFlagRequired("port"); err != nil {
			log.Print(err)
		}
	}
)

func init() {
	initFlags()
}

func main() {
	if err := subzero.Execute(); err != nil {
		log.Panic(err)
	}
}
