package display

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/noah-isme/kasir-gateway/internal/obs"
)

const (
	kioskSendBuffer  = 8
	kioskWriteWait   = 5 * time.Second
	kioskPingPeriod  = 30 * time.Second
	kioskReadTimeout = 70 * time.Second
)

// Hub fans snapshots out to attached kiosk screens. Each screen receives the
// current snapshot on attach and every subsequent transition. A screen that
// cannot keep up is dropped; it reattaches and receives a fresh snapshot.
type Hub struct {
	Source func() Snapshot
	Log    zerolog.Logger

	upgrader websocket.Upgrader

	mu      sync.Mutex
	lastSeq uint64
	clients map[*kioskClient]struct{}
}

type kioskClient struct {
	conn *websocket.Conn
	send chan Snapshot
}

// NewHub wires a hub to a snapshot source.
func NewHub(source func() Snapshot, log zerolog.Logger) *Hub {
	return &Hub{
		Source: source,
		Log:    log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Kiosks live on the store LAN behind the gateway.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: map[*kioskClient]struct{}{},
	}
}

// ServeHTTP upgrades the request and attaches the screen.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("display: kiosk upgrade")
		return
	}
	c := &kioskClient{conn: conn, send: make(chan Snapshot, kioskSendBuffer)}

	// Register before fetching the attach snapshot, under the hub mutex, so a
	// transition landing during attach reaches this screen through Broadcast
	// instead of falling into the gap.
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	c.send <- h.Source()
	h.mu.Unlock()
	h.setGauge(n)
	h.Log.Info().Str("remote", r.RemoteAddr).Int("clients", n).Msg("display: kiosk attached")

	go h.writeLoop(c)
	go h.readLoop(c)
}

// Broadcast queues a snapshot to every attached screen. Install it as a state
// subscriber. Snapshots carrying a sequence older than one already broadcast
// are discarded: overlapping transitions may deliver out of order, and a
// screen must never move backwards.
func (h *Hub) Broadcast(snap Snapshot) {
	h.mu.Lock()
	if snap.Seq != 0 {
		if snap.Seq <= h.lastSeq {
			h.mu.Unlock()
			return
		}
		h.lastSeq = snap.Seq
	}
	var slow []*kioskClient
	for c := range h.clients {
		select {
		case c.send <- snap:
		default:
			slow = append(slow, c)
		}
	}
	for _, c := range slow {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	if len(slow) > 0 {
		h.Log.Warn().Int("dropped", len(slow)).Msg("display: dropped slow kiosk clients")
		h.setGauge(n)
	}
}

// Close detaches every screen, used on shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	h.setGauge(0)
}

func (h *Hub) writeLoop(c *kioskClient) {
	ping := time.NewTicker(kioskPingPeriod)
	defer func() {
		ping.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case snap, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(kioskWriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.conn.WriteJSON(snap); err != nil {
				return
			}
		case <-ping.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(kioskWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readLoop drains inbound frames so pong handling works and detects closure.
// Kiosk screens are passive and send nothing meaningful.
func (h *Hub) readLoop(c *kioskClient) {
	defer h.detach(c)
	_ = c.conn.SetReadDeadline(time.Now().Add(kioskReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(kioskReadTimeout))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) detach(c *kioskClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	_ = c.conn.Close()
	h.setGauge(n)
}

func (h *Hub) setGauge(n int) {
	if obs.DisplayKioskClients != nil {
		obs.DisplayKioskClients.Set(float64(n))
	}
}
