// Package ingest implements the HTTP surface of §6.1: the publish/verify
// pipeline (C7), health/readiness probes, metrics rendering, and the
// trust-reload and consistency admin endpoints. The WebSocket /events
// route is delegated to fanout.Hub.
package ingest

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/sgn-project/sgnd/fanout"
	"github.com/sgn-project/sgnd/kustore"
	"github.com/sgn-project/sgnd/metrics"
	"github.com/sgn-project/sgnd/outbox"
	"github.com/sgn-project/sgnd/seencache"
	"github.com/sgn-project/sgnd/trust"
)

// Server holds every component a handler needs, wired by the daemon root
// and borrowed by handlers (§9's "single ownership, handlers borrow").
type Server struct {
	DB      *sql.DB
	KUs     *kustore.Store
	Outbox  *outbox.Store
	Trust   *trust.Store
	Seen    *seencache.Cache
	Metrics *metrics.Registry
	Hub     *fanout.Hub

	StartedAt time.Time
}

// Routes returns the HTTP handler implementing §6.1's full surface.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/publish", s.handlePublish)
	mux.HandleFunc("/verify", s.handleVerify)
	mux.HandleFunc("/ku/", s.handleGetKU)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)
	mux.HandleFunc("/live", s.handleLive)
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.HandleFunc("/admin/consistency", s.handleConsistency)
	mux.HandleFunc("/trust/reload", s.handleTrustReload)
	mux.HandleFunc("/events", s.Hub.ServeHTTP)

	return mux
}
