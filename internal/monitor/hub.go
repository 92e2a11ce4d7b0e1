// internal/monitor/hub.go
package monitor

import (
	"encoding/hex"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/tamzrod/cec-compliance/internal/adapter"
	"github.com/tamzrod/cec-compliance/internal/cec"
	"github.com/tamzrod/cec-compliance/internal/follower"
)

const (
	clientQueue  = 64
	writeTimeout = 5 * time.Second
	// DefaultMaxClients bounds concurrent websocket subscribers.
	DefaultMaxClients = 16
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Frame is one websocket message.
type Frame struct {
	Type string    `json:"type"` // traffic, event or snapshot
	At   time.Time `json:"at"`

	Dir   follower.Direction `json:"dir,omitempty"`
	Bytes string             `json:"bytes,omitempty"`
	Text  string             `json:"text,omitempty"`

	Event    string `json:"event,omitempty"`
	PhysAddr string `json:"phys_addr,omitempty"`
	Lost     int    `json:"lost,omitempty"`

	Snapshot *follower.Snapshot `json:"snapshot,omitempty"`
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans follower traffic out to websocket subscribers and keeps the
// latest follower snapshot. It implements follower.Publisher; publishing
// never blocks, a slow subscriber loses frames.
type Hub struct {
	log zerolog.Logger
	now func() time.Time

	mu         sync.RWMutex
	clients    map[*wsClient]struct{}
	maxClients int
	snap       *follower.Snapshot
	dropped    int
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		log:        log,
		now:        time.Now,
		clients:    make(map[*wsClient]struct{}),
		maxClients: DefaultMaxClients,
	}
}

func (h *Hub) Traffic(dir follower.Direction, m *cec.Msg) {
	at := m.RxTimestamp
	if dir == follower.DirTx || at.IsZero() {
		at = m.TxTimestamp
	}
	if at.IsZero() {
		at = h.now()
	}
	h.broadcast(Frame{Type: "traffic", At: at, Dir: dir, Bytes: hex.EncodeToString(m.Bytes()), Text: m.String()})
}

func (h *Hub) Event(ev adapter.Event) {
	f := Frame{Type: "event", At: ev.At, Event: ev.Kind.String()}
	switch ev.Kind {
	case adapter.EventStateChange:
		f.PhysAddr = ev.PhysAddr.String()
	case adapter.EventLostMessages:
		f.Lost = ev.Lost
	}
	h.broadcast(f)
}

func (h *Hub) Snapshot(s follower.Snapshot) {
	h.mu.Lock()
	changed := h.snap == nil || !sameState(*h.snap, s)
	h.snap = &s
	h.mu.Unlock()

	if changed {
		h.broadcast(Frame{Type: "snapshot", At: s.At, Snapshot: &s})
	}
}

// sameState compares snapshots ignoring the timestamp.
func sameState(a, b follower.Snapshot) bool {
	a.At, b.At = time.Time{}, time.Time{}
	return a == b
}

// Latest returns the last published follower snapshot.
func (h *Hub) Latest() (follower.Snapshot, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.snap == nil {
		return follower.Snapshot{}, false
	}
	return *h.snap, true
}

// Clients returns the number of connected subscribers.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) broadcast(f Frame) {
	b, err := json.Marshal(f)
	if err != nil {
		h.log.Error().Err(err).Msg("frame encode failed")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- b:
		default:
			h.dropped++
		}
	}
}

// ServeWS upgrades the request and streams frames until the peer goes away.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &wsClient{conn: conn, send: make(chan []byte, clientQueue)}
	h.mu.Lock()
	if len(h.clients) >= h.maxClients {
		h.mu.Unlock()
		h.log.Warn().Str("remote", r.RemoteAddr).Msg("max clients reached, rejecting")
		_ = conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.log.Info().Str("remote", r.RemoteAddr).Msg("monitor client connected")

	go c.writeLoop()

	// Inbound frames are ignored; reading detects the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug().Err(err).Msg("monitor client read")
			}
			break
		}
	}

	h.mu.Lock()
	delete(h.clients, c)
	close(c.send)
	h.mu.Unlock()
	h.log.Info().Str("remote", r.RemoteAddr).Msg("monitor client disconnected")
}

func (c *wsClient) writeLoop() {
	defer c.conn.Close()
	for b := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
			return
		}
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
