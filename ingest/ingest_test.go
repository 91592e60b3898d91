package ingest

import (
	"bytes"
	"crypto/ed25519"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/require"

	"github.com/sgn-project/sgnd/fanout"
	itesting "github.com/sgn-project/sgnd/internal/testing"
	"github.com/sgn-project/sgnd/ku"
	"github.com/sgn-project/sgnd/kustore"
	"github.com/sgn-project/sgnd/metrics"
	"github.com/sgn-project/sgnd/outbox"
	"github.com/sgn-project/sgnd/seencache"
	"github.com/sgn-project/sgnd/signing"
	"github.com/sgn-project/sgnd/trust"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	db := itesting.CreateTestDB(t)
	kuStore, err := kustore.Open(db, "")
	require.NoError(t, err)
	obStore := outbox.Open(db)
	mx := metrics.New()

	trustPath := t.TempDir() + "/trust.json"
	trustStore, err := trust.Open(trustPath, nil)
	require.NoError(t, err)

	hub := fanout.NewHub(obStore, kuStore, mx)

	return &Server{
		DB:      db,
		KUs:     kuStore,
		Outbox:  obStore,
		Trust:   trustStore,
		Seen:    seencache.New(0, 0),
		Metrics: mx,
		Hub:     hub,
	}
}

func samplePayload() ku.KU {
	return ku.KU{
		SchemaID:    "sgn.ku.v1",
		Type:        "note.created",
		ContentType: ku.DefaultContentType,
		Payload:     map[string]interface{}{"title": "hello"},
		Parents:     []string{},
		Sources:     []map[string]interface{}{},
		Tests:       []string{},
		Provenance:  ku.Provenance{AgentPubkey: "agent-1"},
		Tags:        []string{},
	}
}

func TestPublishThenDuplicate(t *testing.T) {
	s := newTestServer(t)
	handler := s.Routes()

	body, _ := json.Marshal(publishRequest{KU: samplePayload()})
	req := httptest.NewRequest(http.MethodPost, "/publish", bytes.NewReader(body))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var first publishResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &first))
	require.True(t, first.Stored)
	require.True(t, first.Enqueued)

	req2 := httptest.NewRequest(http.MethodPost, "/publish", bytes.NewReader(body))
	w2 := httptest.NewRecorder()
	handler.ServeHTTP(w2, req2)
	require.Equal(t, http.StatusOK, w2.Code)

	var second publishResponse
	require.NoError(t, json.Unmarshal(w2.Body.Bytes(), &second))
	require.False(t, second.Stored)
	require.False(t, second.Enqueued)
	require.True(t, second.Deduplicated)
	require.Equal(t, first.CID, second.CID)

	latest, err := s.Outbox.LatestSeq()
	require.NoError(t, err)
	require.Equal(t, int64(1), latest)
}

func pemFor(t *testing.T, pub ed25519.PublicKey) string {
	t.Helper()
	der, err := x509.MarshalPKIXPublicKey(pub)
	require.NoError(t, err)
	block := &pem.Block{Type: "PUBLIC KEY", Bytes: der}
	return string(pem.EncodeToMemory(block))
}

func TestPublishVerifyEnforceRejectThenAllow(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, s.Trust.SetMode(trust.ModeEnforce))
	handler := s.Routes()

	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	k := samplePayload()
	require.NoError(t, signing.Sign(&k, priv, pub))

	body, _ := json.Marshal(publishRequest{KU: k, Verify: true, PubPEM: pemFor(t, pub)})
	req := httptest.NewRequest(http.MethodPost, "/publish?verify=true", bytes.NewReader(body))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusForbidden, w.Code)

	keyID, err := signing.KeyID(pub)
	require.NoError(t, err)
	require.NoError(t, s.Trust.Add(keyID, nil))

	req2 := httptest.NewRequest(http.MethodPost, "/publish?verify=true", bytes.NewReader(body))
	w2 := httptest.NewRecorder()
	handler.ServeHTTP(w2, req2)
	require.Equal(t, http.StatusOK, w2.Code)
}

func TestGetKUNotFound(t *testing.T) {
	s := newTestServer(t)
	handler := s.Routes()

	req := httptest.NewRequest(http.MethodGet, "/ku/cid-blake3:doesnotexist", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusNotFound, w.Code)
}

// rotationSignPayload mirrors trust.rotationPayload's cbor shape so the
// test can produce the same canonical bytes prev_sig is computed over,
// without reaching into the trust package's unexported type.
type rotationSignPayload struct {
	PrevKeyID string `cbor:"prev_key_id"`
	NewKeyID  string `cbor:"new_key_id"`
	Reason    string `cbor:"reason"`
	Ts        string `cbor:"ts"`
}

func rotationAttestationKU(t *testing.T, prevPriv ed25519.PrivateKey, prevKeyID, newKeyID, reason, ts string) ku.KU {
	t.Helper()
	encMode, err := cbor.CanonicalEncOptions().EncMode()
	require.NoError(t, err)
	canonical, err := encMode.Marshal(rotationSignPayload{
		PrevKeyID: prevKeyID,
		NewKeyID:  newKeyID,
		Reason:    reason,
		Ts:        ts,
	})
	require.NoError(t, err)
	sig := ed25519.Sign(prevPriv, canonical)

	payload := ku.AttestationRotateKey{
		PrevKeyID: prevKeyID,
		NewKeyID:  newKeyID,
		Reason:    reason,
		Ts:        ts,
		PrevSig:   base64.RawURLEncoding.EncodeToString(sig),
	}
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	var asMap map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &asMap))

	return ku.KU{
		SchemaID:    "sgn.ku.v1",
		Type:        ku.TypeAttestationRotateKey,
		ContentType: ku.DefaultContentType,
		Payload:     asMap,
		Parents:     []string{},
		Sources:     []map[string]interface{}{},
		Tests:       []string{},
		Provenance:  ku.Provenance{AgentPubkey: "agent-1"},
		Tags:        []string{},
	}
}

func TestPublishAttestationRotateKeyAppliesRotation(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, s.Trust.SetMode(trust.ModeEnforce))
	handler := s.Routes()

	prevPub, prevPriv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	newPub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	prevKeyID, err := signing.KeyID(prevPub)
	require.NoError(t, err)
	newKeyID, err := signing.KeyID(newPub)
	require.NoError(t, err)

	k := rotationAttestationKU(t, prevPriv, prevKeyID, newKeyID, "routine", "2026-07-31T00:00:00Z")
	body, _ := json.Marshal(publishRequest{KU: k, PrevPubPEM: pemFor(t, prevPub)})

	// prev_key_id is not yet trusted: rotation must be rejected.
	req := httptest.NewRequest(http.MethodPost, "/publish", bytes.NewReader(body))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusForbidden, w.Code)
	require.False(t, s.Trust.IsTrusted(newKeyID).Trusted)

	// Trust prev_key_id, then the same rotation KU must apply and add
	// new_key_id to the allow-list.
	require.NoError(t, s.Trust.Add(prevKeyID, nil))

	req2 := httptest.NewRequest(http.MethodPost, "/publish", bytes.NewReader(body))
	w2 := httptest.NewRecorder()
	handler.ServeHTTP(w2, req2)
	require.Equal(t, http.StatusOK, w2.Code)

	var resp publishResponse
	require.NoError(t, json.Unmarshal(w2.Body.Bytes(), &resp))
	require.True(t, resp.Stored)
	require.True(t, s.Trust.IsTrusted(newKeyID).Trusted)
}

func TestHealthAndLive(t *testing.T) {
	s := newTestServer(t)
	handler := s.Routes()

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w2 := httptest.NewRecorder()
	handler.ServeHTTP(w2, httptest.NewRequest(http.MethodGet, "/live", nil))
	require.Equal(t, http.StatusNoContent, w2.Code)
}
