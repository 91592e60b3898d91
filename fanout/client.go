package fanout

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/sgn-project/sgnd/logger"
)

// deliveryRateLimit smooths bursts of outbox catch-up (e.g. after a
// reconnect with a deep ?since=) into a steady per-subscriber send rate,
// rather than writing hundreds of frames in a single scheduler tick.
const deliveryRateLimit = 200 // frames/sec

// Client drives one subscriber's delivery loop: outbox replay bounded by
// an in-flight window, ack processing, and an independent heartbeat.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	id   string

	writeMu sync.Mutex

	mu        sync.Mutex
	inFlight  map[string]int64 // cid -> seq, awaiting ack
	contig    int64            // highest contiguous acked seq, persisted via outbox.Ack
	highWater int64            // highest seq sent so far
	startSeq  int64            // resolved replay start, from Hub.startSeqFor

	limiter *rate.Limiter

	done chan struct{}
}

func newClient(h *Hub, conn *websocket.Conn, subscriberID string, startSeq int64) *Client {
	return &Client{
		hub:      h,
		conn:     conn,
		id:       subscriberID,
		inFlight: make(map[string]int64),
		startSeq: startSeq,
		limiter:  rate.NewLimiter(rate.Limit(deliveryRateLimit), deliveryRateLimit),
		done:     make(chan struct{}),
	}
}

// run starts the read pump, heartbeat, and delivery loop, and blocks
// until the connection is closed by any of them.
func (c *Client) run() {
	c.contig = c.startSeq
	c.highWater = c.startSeq

	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); c.readPump() }()
	go func() { defer wg.Done(); c.heartbeatLoop() }()
	go func() { defer wg.Done(); c.deliveryLoop() }()
	wg.Wait()
}

func (c *Client) closeOnce() {
	select {
	case <-c.done:
	default:
		close(c.done)
		c.conn.Close()
	}
}

// readPump processes incoming ack frames. Any read error (including a
// clean close) ends the subscriber's session.
func (c *Client) readPump() {
	defer c.closeOnce()
	c.conn.SetReadDeadline(time.Now().Add(ReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(ReadTimeout))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(ReadTimeout))
		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			logger.Warnw("malformed frame from subscriber", "subscriber_id", c.id, "error", err)
			continue
		}
		if f.Type != "ack" || f.CID == "" {
			continue
		}
		c.handleAck(f.CID)
	}
}

// handleAck removes cid from the in-flight map and advances the
// persisted cursor to the highest contiguous acked seq, per §4.5's
// "monotonic per subscriber" property: a non-contiguous ack retires its
// own in-flight entry but does not advance the cursor past older,
// still-unacked rows.
func (c *Client) handleAck(cid string) {
	c.mu.Lock()
	seq, ok := c.inFlight[cid]
	if !ok {
		c.mu.Unlock()
		return
	}
	delete(c.inFlight, cid)

	if seq == c.contig+1 {
		c.contig = seq
		for c.alreadyRetired(c.contig + 1) {
			c.contig++
		}
	}
	contig := c.contig
	c.mu.Unlock()

	c.hub.mx.NetAcked.Inc()
	if err := c.hub.store.Ack(c.id, contig); err != nil {
		logger.Errorw("failed to persist ack", "subscriber_id", c.id, "error", err)
	}
}

// alreadyRetired reports whether seq was sent and is no longer in the
// in-flight map, meaning it was already acked out of order and the
// contiguous cursor can now advance past it.
func (c *Client) alreadyRetired(seq int64) bool {
	if seq > c.highWater {
		return false
	}
	for _, s := range c.inFlight {
		if s == seq {
			return false
		}
	}
	return true
}

func (c *Client) heartbeatLoop() {
	ticker := time.NewTicker(HeartbeatInterval)
	defer ticker.Stop()
	defer c.closeOnce()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			f := Frame{Type: "health", TS: time.Now().Unix()}
			if err := c.writeFrame(f); err != nil {
				return
			}
		}
	}
}

func (c *Client) deliveryLoop() {
	defer c.closeOnce()
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
		}

		c.mu.Lock()
		budget := InFlightLimit - len(c.inFlight)
		after := c.highWater
		c.mu.Unlock()
		if budget <= 0 {
			continue // backpressure: in-flight map is saturated
		}

		entries, err := c.hub.store.After(after, budget)
		if err != nil {
			logger.Errorw("failed to read outbox", "subscriber_id", c.id, "error", err)
			continue
		}
		for _, e := range entries {
			if err := c.limiter.Wait(context.Background()); err != nil {
				return
			}
			k, err := c.hub.kus.Get(e.CID)
			if err != nil {
				logger.Errorw("failed to load ku for delivery", "cid", e.CID, "error", err)
				continue
			}
			if err := c.writeFrame(Frame{Type: "ku", CID: e.CID, KU: k}); err != nil {
				return
			}

			c.mu.Lock()
			c.inFlight[e.CID] = e.Seq
			if e.Seq > c.highWater {
				c.highWater = e.Seq
			}
			c.mu.Unlock()
			c.hub.mx.NetDelivered.Inc()
		}
	}
}

func (c *Client) writeFrame(f Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}
