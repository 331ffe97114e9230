// SPDX-License-Identifier: ice License 1.0

package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nbd-wtf/go-nostr/nip11"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNIP11_RequiresNostrAcceptHeader(t *testing.T) {
	h := NewNIP11Handler(&Config{})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNIP11_ReturnsConfiguredDocument(t *testing.T) {
	cfg := &Config{
		Name:               "my-relay",
		Description:        "a test relay",
		PubKey:             "deadbeef",
		Contact:            "admin@example.com",
		Software:           "subzero",
		Version:            "0.0.1",
		MinLeadingZeroBits: 8,
	}
	h := NewNIP11Handler(cfg)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept", "application/nostr+json")
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var info nip11.RelayInformationDocument
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, cfg.Name, info.Name)
	assert.Equal(t, cfg.Description, info.Description)
	assert.Equal(t, cfg.PubKey, info.PubKey)
	assert.Equal(t, cfg.Contact, info.Contact)
	assert.Equal(t, supportedNIPs, info.SupportedNIPs)
	require.NotNil(t, info.Limitation)
	assert.Equal(t, cfg.MinLeadingZeroBits, info.Limitation.MinPowDifficulty)
}

func TestNIP11_DefaultsWhenFieldsEmpty(t *testing.T) {
	h := NewNIP11Handler(nil)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept", "application/nostr+json")
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	var info nip11.RelayInformationDocument
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, "subzero", info.Name)
	assert.Equal(t, "subzero", info.Software)
}
