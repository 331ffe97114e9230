// SPDX-License-Identifier: ice License 1.0

package http

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/nbd-wtf/go-nostr/nip11"
)

// supportedNIPs lists what this relay kernel actually implements: basic
// protocol flow and NIP-09 deletion and NIP-11 self-description and NIP-13
// proof of work and NIP-29 moderated groups and NIP-42 authentication. It
// intentionally omits NIPs the teacher advertised that this relay does not
// implement (uploads, zaps, search, and the rest of the teacher's wider
// surface).
var supportedNIPs = []int{1, 9, 11, 13, 29, 42}

type (
	// Config is the "info" section of the relay configuration: everything
	// that ends up in the NIP-11 relay information document, plus the PoW
	// floor also consulted by policy.RequireProofOfWork.
	Config struct {
		Name               string `yaml:"name"`
		Description        string `yaml:"description"`
		PubKey             string `yaml:"pubkey"`
		Contact            string `yaml:"contact"`
		Software           string `yaml:"software"`
		Version            string `yaml:"version"`
		MinLeadingZeroBits int    `yaml:"minLeadingZeroBits"`
	}
	nip11handler struct {
		cfg *Config
	}
)

func NewNIP11Handler(cfg *Config) http.Handler {
	if cfg == nil {
		cfg = &Config{}
	}

	return &nip11handler{cfg: cfg}
}

func (n *nip11handler) ServeHTTP(writer http.ResponseWriter, req *http.Request) {
	if req.Header.Get("Accept") != "application/nostr+json" {
		writer.WriteHeader(http.StatusBadRequest)

		return
	}
	writer.Header().Add("Content-Type", "application/json")
	info := n.info()
	bytes, err := json.Marshal(info)
	if err != nil {
		log.Printf("ERROR:%v", errors.Wrapf(err, "failed to serialize NIP11 json %+v", info))
	}
	if _, err = writer.Write(bytes); err != nil {
		log.Printf("ERROR:%v", errors.Wrap(err, "failed to write NIP11 response"))
	}
}

func (n *nip11handler) info() nip11.RelayInformationDocument {
	name, description, pubkey, contact, software, version := "subzero", "subzero", "~", "~", "subzero", "~"
	if n.cfg.Name != "" {
		name = n.cfg.Name
	}
	if n.cfg.Description != "" {
		description = n.cfg.Description
	}
	if n.cfg.PubKey != "" {
		pubkey = n.cfg.PubKey
	}
	if n.cfg.Contact != "" {
		contact = n.cfg.Contact
	}
	if n.cfg.Software != "" {
		software = n.cfg.Software
	}
	if n.cfg.Version != "" {
		version = n.cfg.Version
	}

	return nip11.RelayInformationDocument{
		Name:          name,
		Description:   description,
		PubKey:        pubkey,
		Contact:       contact,
		SupportedNIPs: supportedNIPs,
		Software:      software,
		Version:       version,
		Limitation: &nip11.RelayLimitationDocument{
			MinPowDifficulty: n.cfg.MinLeadingZeroBits,
			AuthRequired:     false,
		},
	}
}
