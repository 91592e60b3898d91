package ingest

import (
	"net/http"
	"time"
)

type healthResponse struct {
	Status      string `json:"status"`
	KUCount     int    `json:"ku_count"`
	OutboxReady bool   `json:"outbox_ready"`
	WSClients   int    `json:"ws_clients"`
	DBReadMS    int64  `json:"db_read_ms"`
	DBWriteMS   int64  `json:"db_write_ms"`
	QueueLen    int64  `json:"queue_len"`
}

// dbReadWriteProbeSLO bounds how slow a health probe read/write may be
// before /ready reports unhealthy.
const dbReadWriteProbeSLO = 200 * time.Millisecond

func (s *Server) probeHealth() (healthResponse, bool) {
	resp := healthResponse{Status: "healthy"}

	readStart := time.Now()
	var one int
	readErr := s.DB.QueryRow("SELECT 1").Scan(&one)
	resp.DBReadMS = time.Since(readStart).Milliseconds()

	writeStart := time.Now()
	_, writeErr := s.DB.Exec("PRAGMA user_version = user_version")
	resp.DBWriteMS = time.Since(writeStart).Milliseconds()

	count, countErr := s.KUs.Count()
	resp.KUCount = count

	latest, seqErr := s.Outbox.LatestSeq()
	resp.QueueLen = latest
	resp.OutboxReady = seqErr == nil

	resp.WSClients = s.Hub.ClientCount()

	healthy := readErr == nil && writeErr == nil && countErr == nil && seqErr == nil &&
		resp.DBReadMS <= dbReadWriteProbeSLO.Milliseconds() &&
		resp.DBWriteMS <= dbReadWriteProbeSLO.Milliseconds()
	if !healthy {
		resp.Status = "unhealthy"
	}
	return resp, healthy
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	resp, _ := s.probeHealth()
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	resp, healthy := s.probeHealth()
	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	if r.URL.Query().Get("format") == "prom" {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		if err := s.Metrics.RenderProm(w); err != nil {
			writeError(w, http.StatusInternalServerError, "metrics_render_failed", nil)
		}
		return
	}

	data, err := s.Metrics.RenderJSON()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "metrics_render_failed", nil)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

type consistencyResponse struct {
	TotalDB    int `json:"total_db"`
	TotalFS    int `json:"total_fs"`
	Mismatches int `json:"mismatches"`
}

func (s *Server) handleConsistency(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	report, err := s.KUs.Consistency()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "storage", nil)
		return
	}
	totalFS := report.TotalRows - len(report.MissingBlobs) + len(report.OrphanedBlobs)
	writeJSON(w, http.StatusOK, consistencyResponse{
		TotalDB:    report.TotalRows,
		TotalFS:    totalFS,
		Mismatches: len(report.MissingBlobs) + len(report.OrphanedBlobs),
	})
}

func (s *Server) handleTrustReload(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	if err := s.Trust.Reload(); err != nil {
		writeError(w, http.StatusInternalServerError, "trust_reload_failed", nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"reloaded": true})
}
