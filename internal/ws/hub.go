package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bmcscout/bmcscout/internal/api"
	"github.com/bmcscout/bmcscout/internal/store"
)

const (
	// writeTimeout is the deadline for a single write to a client.
	writeTimeout = 10 * time.Second

	// pongWait is how long to wait for a pong response before treating the
	// connection as dead.
	pongWait = 60 * time.Second

	// pingPeriod controls how often the server sends WebSocket ping frames.
	// Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// sendBufSize is the per-client outgoing message buffer depth.
	sendBufSize = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Allow all origins — callers should apply CORS at the reverse-proxy level.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Message is the JSON envelope sent to clients. Event is "snapshot" for a
// full fleet state (on connect, and whenever a device leaves the fleet) or
// "delta" carrying only the devices whose snapshot changed since the last
// frame.
type Message struct {
	Event string               `json:"event"`
	Data  api.SnapshotResponse `json:"data"`
}

// Hub manages WebSocket client connections. Each tick it compares the store
// against what it last sent and pushes a delta frame; quiet ticks send
// nothing.
//
// All client bookkeeping happens inside Run: registration and removal flow
// through channels, so Run is the only goroutine that touches the client set
// and the only one that closes a client's send channel.
type Hub struct {
	store    *store.Store
	interval time.Duration

	register   chan *client
	unregister chan *client
	done       chan struct{}

	// clients is owned by the Run loop. Nothing else may touch it.
	clients map[*client]struct{}
	count   atomic.Int64
}

// client represents one connected WebSocket client.
type client struct {
	conn *websocket.Conn
	send chan []byte
}

// New creates a Hub that reads from st and broadcasts every interval.
func New(st *store.Store, interval time.Duration) *Hub {
	return &Hub{
		store:      st,
		interval:   interval,
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		clients:    make(map[*client]struct{}),
	}
}

// Run owns the client set: it admits and removes clients, sends the connect
// snapshot, and pushes delta frames on each tick. Run blocks until ctx is
// cancelled, then closes all active connections.
func (h *Hub) Run(ctx context.Context) {
	t := time.NewTicker(h.interval)
	defer t.Stop()
	defer h.closeAll()

	lastSent := make(map[string]time.Time)

	for {
		select {
		case <-ctx.Done():
			return

		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.count.Store(int64(len(h.clients)))
			// Full fleet state on connect so dashboards render immediately.
			if data, err := marshalMessage("snapshot", api.BuildSnapshot(h.store)); err == nil {
				h.sendTo(c, data)
			}

		case c := <-h.unregister:
			h.drop(c)

		case <-t.C:
			h.tick(lastSent)
		}
	}
}

// ServeHTTP upgrades the HTTP connection to WebSocket and hands the client to
// the Run loop. Blocks until the connection closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the error response.
		return
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, sendBufSize),
	}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
	}()

	go c.writePump()
	c.readPump() // blocks until connection closes
}

// Count returns the number of currently connected clients.
func (h *Hub) Count() int {
	return int(h.count.Load())
}

// --- run-loop internals (single goroutine, no locking) ----------------------

// tick diffs the store against lastSent and pushes one frame: a "delta" with
// only the changed devices, or a full "snapshot" when a device left the fleet
// and clients need to drop it.
func (h *Hub) tick(lastSent map[string]time.Time) {
	if len(h.clients) == 0 {
		return
	}

	entries := h.store.List()

	live := make(map[string]struct{}, len(entries))
	var changed []*store.Entry
	for _, e := range entries {
		id := e.Snapshot.DeviceID
		live[id] = struct{}{}
		if e.UpdatedAt.After(lastSent[id]) {
			changed = append(changed, e)
		}
	}

	removed := false
	for id := range lastSent {
		if _, ok := live[id]; !ok {
			removed = true
			delete(lastSent, id)
		}
	}

	var (
		data []byte
		err  error
	)
	switch {
	case removed:
		data, err = marshalMessage("snapshot", api.BuildSnapshot(h.store))
	case len(changed) > 0:
		data, err = marshalMessage("delta", deltaSnapshot(h.store, changed))
	default:
		return
	}
	if err != nil {
		return
	}

	for _, e := range entries {
		lastSent[e.Snapshot.DeviceID] = e.UpdatedAt
	}
	for c := range h.clients {
		h.sendTo(c, data)
	}
}

func (h *Hub) sendTo(c *client, data []byte) {
	select {
	case c.send <- data:
	default:
		// Client's outgoing buffer is full — disconnect it.
		h.drop(c)
	}
}

func (h *Hub) drop(c *client) {
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
		h.count.Store(int64(len(h.clients)))
	}
}

func (h *Hub) closeAll() {
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
	h.count.Store(0)
	close(h.done)
}

// --- frame building ----------------------------------------------------------

func marshalMessage(event string, data api.SnapshotResponse) ([]byte, error) {
	return json.Marshal(Message{Event: event, Data: data})
}

// deltaSnapshot builds a snapshot payload restricted to the given entries.
func deltaSnapshot(st *store.Store, entries []*store.Entry) api.SnapshotResponse {
	devices := make([]api.DeviceResponse, 0, len(entries))
	for _, e := range entries {
		devices = append(devices, api.BuildDevice(st, e))
	}
	return api.SnapshotResponse{
		Devices:     devices,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
	}
}

// writePump drains the client's send channel and forwards messages to the
// WebSocket connection. It also sends periodic ping frames. Runs in its own
// goroutine per client.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				// Channel was closed (hub is shutting down or client removed).
				c.conn.WriteMessage(websocket.CloseMessage, []byte{}) //nolint:errcheck
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump reads frames from the connection to process control messages (pong,
// close) and detect disconnects. Blocks until the connection closes.
func (c *client) readPump() {
	defer c.conn.Close()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}
