package ingest

import (
	"net/http"

	"github.com/sgn-project/sgnd/canon"
	"github.com/sgn-project/sgnd/errors"
	"github.com/sgn-project/sgnd/ku"
	"github.com/sgn-project/sgnd/kustore"
	"github.com/sgn-project/sgnd/logger"
	"github.com/sgn-project/sgnd/metrics"
	"github.com/sgn-project/sgnd/outbox"
	"github.com/sgn-project/sgnd/signing"
	"github.com/sgn-project/sgnd/trust"
)

type publishRequest struct {
	KU     ku.KU  `json:"ku"`
	Verify bool   `json:"verify"`
	PubPEM string `json:"pub_pem"`
	// PrevPubPEM is required only when ku.type is
	// ku.TypeAttestationRotateKey: the public key prev_sig was signed
	// with, used to authorize the rotation (§4.3).
	PrevPubPEM string `json:"prev_pub_pem,omitempty"`
}

type publishResponse struct {
	CID          string `json:"cid"`
	Stored       bool   `json:"stored"`
	Enqueued     bool   `json:"enqueued"`
	Deduplicated bool   `json:"deduplicated,omitempty"`
	Trusted      *bool  `json:"trusted,omitempty"`
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	timer := metrics.NewTimer(s.Metrics.HTTPPublish)
	defer func() { timer.Stop(); s.Metrics.HTTPPublishCount.Inc() }()

	var req publishRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", nil)
		return
	}
	ku.NormalizeNumbers(&req.KU)

	if err := ku.Validate(&req.KU); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_ku", map[string]interface{}{
			"details": []string{err.Error()},
		})
		return
	}

	if req.KU.Type == ku.TypeAttestationRotateKey {
		var payload ku.AttestationRotateKey
		if err := ku.ParsePayload(&req.KU, &payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_ku", map[string]interface{}{
				"details": []string{err.Error()},
			})
			return
		}
		prevPub, err := parsePubPEM(req.PrevPubPEM)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_signature", nil)
			return
		}
		if err := s.Trust.ApplyRotation(&payload, prevPub); err != nil {
			writeError(w, http.StatusForbidden, "untrusted_key", map[string]interface{}{
				"reason": err.Error(),
			})
			return
		}
	}

	var trusted *bool
	if req.Verify {
		pub, err := parsePubPEM(req.PubPEM)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_signature", nil)
			return
		}
		if err := signing.Verify(&req.KU, pub); err != nil {
			writeError(w, http.StatusBadRequest, "bad_signature", nil)
			return
		}

		keyID, err := signing.KeyID(pub)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_signature", nil)
			return
		}
		decision := s.Trust.IsTrusted(keyID)
		trusted = &decision.Trusted
		if !decision.Trusted {
			if s.Trust.Mode() == trust.ModeEnforce {
				writeError(w, http.StatusForbidden, "untrusted_key", map[string]interface{}{
					"reason": decision.Reason,
				})
				return
			}
			logger.Warnw("publishing from untrusted key in warn mode", "key_id", keyID, "reason", decision.Reason)
		}
	}

	cid, err := canon.CID(&req.KU)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_ku", map[string]interface{}{
			"details": []string{err.Error()},
		})
		return
	}

	if s.Seen.Seen(cid) {
		s.Metrics.KUsDeduplicatedTotal.Inc()
		writeJSON(w, http.StatusOK, publishResponse{CID: cid, Deduplicated: true, Trusted: trusted})
		return
	}

	exists, err := s.KUs.Exists(cid)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "storage", nil)
		return
	}
	if exists {
		s.Metrics.KUsDeduplicatedTotal.Inc()
		writeJSON(w, http.StatusOK, publishResponse{CID: cid, Deduplicated: true, Trusted: trusted})
		return
	}

	canonical, err := canon.CanonicalBytes(&req.KU)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_ku", nil)
		return
	}

	tx, err := s.DB.Begin()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "storage", nil)
		return
	}
	if err := kustore.PutTx(tx, cid, canonical, &req.KU); err != nil {
		tx.Rollback()
		writeError(w, http.StatusInternalServerError, "storage", nil)
		return
	}
	if _, err := outbox.EnqueueTx(tx, cid); err != nil {
		tx.Rollback()
		writeError(w, http.StatusInternalServerError, "storage", nil)
		return
	}
	if err := tx.Commit(); err != nil {
		writeError(w, http.StatusInternalServerError, "storage", nil)
		return
	}

	// Best-effort mirror only; reported by /admin/consistency, never a
	// correctness fault (§4.4).
	_ = s.KUs.WriteBlob(cid, canonical)

	s.Metrics.DBKUStoredTotal.Inc()
	writeJSON(w, http.StatusOK, publishResponse{CID: cid, Stored: true, Enqueued: true, Trusted: trusted})
}

type verifyRequest struct {
	KU     ku.KU  `json:"ku"`
	PubPEM string `json:"pub_pem"`
}

type verifyResponse struct {
	OK      bool   `json:"ok"`
	Reason  string `json:"reason,omitempty"`
	Trusted bool   `json:"trusted"`
	KeyID   string `json:"key_id,omitempty"`
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	timer := metrics.NewTimer(s.Metrics.HTTPVerify)
	defer func() { timer.Stop(); s.Metrics.HTTPVerifyCount.Inc() }()

	var req verifyRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", nil)
		return
	}
	ku.NormalizeNumbers(&req.KU)

	pub, err := parsePubPEM(req.PubPEM)
	if err != nil {
		writeJSON(w, http.StatusOK, verifyResponse{OK: false, Reason: "bad_sig_header"})
		return
	}

	keyID, _ := signing.KeyID(pub)
	resp := verifyResponse{KeyID: keyID}

	if err := signing.Verify(&req.KU, pub); err != nil {
		var verr *signing.VerifyError
		if errors.As(err, &verr) {
			resp.Reason = string(verr.Reason)
		}
		resp.OK = false
	} else {
		resp.OK = true
	}

	if keyID != "" {
		resp.Trusted = s.Trust.IsTrusted(keyID).Trusted
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetKU(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	cid := cidFromPath(r.URL.Path)
	if cid == "" {
		writeError(w, http.StatusBadRequest, "bad_request", nil)
		return
	}

	// Per §9 Open Question 2: /ku/:cid does not honor trust policy,
	// preserving the source's behavior of not hiding revoked-key KUs.
	k, err := s.KUs.Get(cid)
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", nil)
		return
	}
	writeJSON(w, http.StatusOK, k)
}
