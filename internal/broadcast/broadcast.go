// Package broadcast implements the WebSocket Broadcaster (C11): it
// receives published events, buffers them per bounding-box room for up
// to 500ms (or until a batch size is reached), dedupes by icao24 with
// latest-wins, and fans out one aircraft:update message per room.
// Grounded on the teacher's struct-with-mutex concurrency idiom and on
// gorilla/websocket (already in the stack via the teacher's dependency
// on real-time delivery).
package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"aircraftdata/internal/events"
	"aircraftdata/pkg/adsb"
)

const (
	flushInterval  = 500 * time.Millisecond
	maxBatchSize   = 200
	roomPrecision  = 0.01
)

// Conn is the subset of *websocket.Conn the hub needs, so tests can swap
// in a fake without opening a real socket.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Bounds identifies a client's subscribed rectangle.
type Bounds struct {
	LatMin, LonMin, LatMax, LonMax float64
}

// roomKey rounds a bounds rectangle to roomPrecision degrees so near-
// identical subscriptions share one room instead of fragmenting.
func roomKey(b Bounds) string {
	round := func(v float64) float64 { return math.Round(v/roomPrecision) * roomPrecision }
	return fmt.Sprintf("%.2f,%.2f,%.2f,%.2f", round(b.LatMin), round(b.LonMin), round(b.LatMax), round(b.LonMax))
}

func (b Bounds) contains(lat, lon float64) bool {
	return lat >= b.LatMin && lat <= b.LatMax && lon >= b.LonMin && lon <= b.LonMax
}

type client struct {
	conn Conn
	send chan []byte
}

type room struct {
	mu      sync.Mutex
	bounds  Bounds
	clients map[*client]struct{}
	buffer  map[string]adsb.AircraftState // icao24 -> latest state
}

// Hub fans out position updates to subscribed WebSocket clients, grouped
// into bounding-box rooms.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]*room

	stopOnce sync.Once
	stop     chan struct{}
}

// New constructs a Hub and starts its periodic per-room flush loop.
func New() *Hub {
	h := &Hub{rooms: make(map[string]*room), stop: make(chan struct{})}
	go h.flushLoop()
	return h
}

// Close stops the flush loop.
func (h *Hub) Close() {
	h.stopOnce.Do(func() { close(h.stop) })
}

// Subscribe registers conn to receive updates for bounds, returning an
// unsubscribe function. The caller owns reading conn's close/error state.
func (h *Hub) Subscribe(conn Conn, bounds Bounds) (unsubscribe func()) {
	key := roomKey(bounds)

	h.mu.Lock()
	r, ok := h.rooms[key]
	if !ok {
		r = &room{bounds: bounds, clients: make(map[*client]struct{}), buffer: make(map[string]adsb.AircraftState)}
		h.rooms[key] = r
	}
	h.mu.Unlock()

	c := &client{conn: conn, send: make(chan []byte, 16)}
	r.mu.Lock()
	r.clients[c] = struct{}{}
	r.mu.Unlock()

	go c.writeLoop()

	return func() {
		r.mu.Lock()
		delete(r.clients, c)
		empty := len(r.clients) == 0
		r.mu.Unlock()
		close(c.send)

		if empty {
			h.mu.Lock()
			if len(r.clients) == 0 {
				delete(h.rooms, key)
			}
			h.mu.Unlock()
		}
	}
}

func (c *client) writeLoop() {
	for msg := range c.send {
		if err := c.conn.WriteMessage(1, msg); err != nil { // 1 = websocket.TextMessage
			return
		}
	}
}

// Publish implements events.Broadcast. It drops events with no valid
// position and otherwise buffers the state into every room whose bounds
// contain it, keyed by icao24 with latest-wins.
func (h *Hub) Publish(ctx context.Context, env events.Envelope) error {
	var state adsb.AircraftState
	if err := json.Unmarshal(env.Payload, &state); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	if !hasValidPosition(state) {
		return nil
	}

	h.mu.RLock()
	rooms := make([]*room, 0, len(h.rooms))
	for _, r := range h.rooms {
		rooms = append(rooms, r)
	}
	h.mu.RUnlock()

	for _, r := range rooms {
		if !r.bounds.contains(state.Latitude, state.Longitude) {
			continue
		}
		r.mu.Lock()
		r.buffer[state.ICAO24] = state
		shouldFlush := len(r.buffer) >= maxBatchSize
		r.mu.Unlock()
		if shouldFlush {
			r.flush()
		}
	}
	return nil
}

func hasValidPosition(state adsb.AircraftState) bool {
	if state.Latitude < -90 || state.Latitude > 90 {
		return false
	}
	if state.Longitude < -180 || state.Longitude > 180 {
		return false
	}
	if state.Latitude == 0 && state.Longitude == 0 {
		return false // null-island sentinel for "no position reported"
	}
	return true
}

func (h *Hub) flushLoop() {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-h.stop:
			return
		case <-ticker.C:
			h.mu.RLock()
			rooms := make([]*room, 0, len(h.rooms))
			for _, r := range h.rooms {
				rooms = append(rooms, r)
			}
			h.mu.RUnlock()
			for _, r := range rooms {
				r.flush()
			}
		}
	}
}

// incrementalMessage is the wire shape for a room's batched update.
type incrementalMessage struct {
	Type string `json:"type"`
	Data struct {
		Updated []adsb.AircraftState `json:"updated"`
	} `json:"data"`
}

func (r *room) flush() {
	r.mu.Lock()
	if len(r.buffer) == 0 {
		r.mu.Unlock()
		return
	}
	updated := make([]adsb.AircraftState, 0, len(r.buffer))
	for _, s := range r.buffer {
		updated = append(updated, s)
	}
	r.buffer = make(map[string]adsb.AircraftState)
	clients := make([]*client, 0, len(r.clients))
	for c := range r.clients {
		clients = append(clients, c)
	}
	r.mu.Unlock()

	msg := incrementalMessage{Type: "incremental"}
	msg.Data.Updated = updated
	b, err := json.Marshal(msg)
	if err != nil {
		return
	}

	for _, c := range clients {
		select {
		case c.send <- b:
		default: // slow client; drop rather than block the room
		}
	}
}
