// Package fanout implements the outbox-driven WebSocket fan-out hub
// (C8): one goroutine per connected subscriber, each replaying the
// outbox from its own delivery cursor with bounded in-flight deliveries
// and a delivery-independent heartbeat.
package fanout

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/sgn-project/sgnd/kustore"
	"github.com/sgn-project/sgnd/logger"
	"github.com/sgn-project/sgnd/metrics"
	"github.com/sgn-project/sgnd/outbox"
)

const (
	// InFlightLimit bounds outstanding unacked deliveries per subscriber
	// before the hub pauses sending to that client (§4.5 step 5).
	InFlightLimit = 256
	// HeartbeatInterval is how often a health frame is sent, independent
	// of delivery progress (§4.5 step 6).
	HeartbeatInterval = 5 * time.Second
	// PollInterval is how often each client's delivery loop re-checks the
	// outbox for new rows (and, when saturated, its in-flight budget).
	PollInterval = 200 * time.Millisecond
	// ReadTimeout is the idle read deadline; a client that never pings
	// or acks within this window is dropped.
	ReadTimeout = 90 * time.Second
	// WriteTimeout bounds a single frame write.
	WriteTimeout = 5 * time.Second
	// ReplayCap bounds how far back a ?since= request may reach, per
	// the open question in §9 on unbounded historical replay.
	ReplayCap = 1000
)

// Frame is the wire shape of every message exchanged over /events.
type Frame struct {
	Type string      `json:"type"`
	CID  string      `json:"cid,omitempty"`
	KU   interface{} `json:"ku,omitempty"`
	TS   int64       `json:"ts,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub tracks connected clients. Register/Unregister are safe for
// concurrent use; the hub itself holds no delivery state, since each
// client drives its own outbox replay independently.
type Hub struct {
	store *outbox.Store
	kus   *kustore.Store
	mx    metrics.Registry

	mu      sync.Mutex
	clients map[string]*Client
}

// NewHub wires a Hub against the outbox and KU stores it replays from.
func NewHub(store *outbox.Store, kus *kustore.Store, mx *metrics.Registry) *Hub {
	return &Hub{store: store, kus: kus, mx: *mx, clients: make(map[string]*Client)}
}

// ServeHTTP upgrades the request to a websocket and runs the subscriber's
// delivery loop until the connection closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warnw("websocket upgrade failed", "error", err)
		return
	}

	subscriberID := r.URL.Query().Get("subscriber_id")
	if subscriberID == "" {
		subscriberID = uuid.NewString()
	}
	if err := h.store.InitCursor(subscriberID); err != nil {
		logger.Errorw("failed to init cursor", "subscriber_id", subscriberID, "error", err)
		conn.Close()
		return
	}

	startSeq, err := h.startSeqFor(subscriberID, r.URL.Query().Get("since"))
	if err != nil {
		logger.Errorw("failed to resolve replay start", "subscriber_id", subscriberID, "error", err)
		conn.Close()
		return
	}

	c := newClient(h, conn, subscriberID, startSeq)
	h.register(c)
	defer h.unregister(c)

	c.run()
}

// startSeqFor resolves the outbox seq a subscriber's delivery loop should
// start just after. An explicit ?since= takes precedence (bounded by
// ReplayCap); otherwise a subscriber with a known cursor resumes from it,
// and a brand-new subscriber starts at the current tail rather than
// replaying the full history (§6.2: "absent ⇒ new subscriber starts at
// current tail").
func (h *Hub) startSeqFor(subscriberID, sinceParam string) (int64, error) {
	latest, err := h.store.LatestSeq()
	if err != nil {
		return 0, err
	}

	if sinceParam != "" {
		since, perr := strconv.ParseInt(sinceParam, 10, 64)
		if perr != nil {
			since = latest
		}
		if floor := latest - ReplayCap; since < floor {
			since = floor
		}
		if since < 0 {
			since = 0
		}
		return since, nil
	}

	last, err := h.store.LastAcked(subscriberID)
	if err != nil {
		return 0, err
	}
	if last > 0 {
		return last, nil
	}
	return latest, nil
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.id] = c
	h.mx.WSClients.Inc()
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.id]; ok {
		delete(h.clients, c.id)
		h.mx.WSClients.Dec()
	}
}

// ClientCount reports the number of currently connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
