package api

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/nidhogg/smalltown/internal/sim"
)

// snapshotEvery interleaves a full world snapshot into the stream after
// this many events, so late joiners and lossy clients re-sync without
// polling.
const snapshotEvery = 3

const clientBuffer = 64

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsFrame is the envelope written to websocket clients.
type wsFrame struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Hub fans simulation events out to websocket clients. Slow clients are
// dropped rather than allowed to stall the tick goroutine.
type Hub struct {
	simulation *sim.Simulation
	logger     *zap.Logger

	mu        sync.Mutex
	clients   map[*client]struct{}
	eventSeen int
}

type client struct {
	conn *websocket.Conn
	send chan wsFrame
}

// NewHub creates an empty hub.
func NewHub(simulation *sim.Simulation, logger *zap.Logger) *Hub {
	return &Hub{
		simulation: simulation,
		logger:     logger,
		clients:    make(map[*client]struct{}),
	}
}

// ServeWS upgrades the connection and streams events. Each new client
// first receives a full world snapshot.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{conn: conn, send: make(chan wsFrame, clientBuffer)}
	c.send <- wsFrame{Type: "world_snapshot", Data: h.simulation.Snapshot()}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.logger.Info("websocket client connected", zap.String("remote", r.RemoteAddr))

	go h.writeLoop(c)
	go h.readLoop(c)
}

// HandleEvent is registered as a simulation listener. It never blocks:
// frames to full client buffers are dropped and the periodic snapshot
// covers the gap. Sends happen under mu; send channels are only closed
// after the client leaves the map, so a closed channel is never sent to.
func (h *Hub) HandleEvent(e sim.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.eventSeen++
	frames := []wsFrame{{Type: string(e.Type), Data: e}}
	if h.eventSeen%snapshotEvery == 0 {
		frames = append(frames, wsFrame{Type: "world_snapshot", Data: h.simulation.Snapshot()})
	}

	for c := range h.clients {
		for _, f := range frames {
			select {
			case c.send <- f:
			default:
			}
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	defer h.drop(c)
	for frame := range c.send {
		if err := c.conn.WriteJSON(frame); err != nil {
			return
		}
	}
}

// readLoop discards client messages; the socket is outbound-only. It
// exists to observe the close handshake.
func (h *Hub) readLoop(c *client) {
	defer h.drop(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// drop removes a client. Closing the send channel terminates the
// client's writeLoop; the first of readLoop/writeLoop to get here wins
// and the other finds the client already gone.
func (h *Hub) drop(c *client) {
	h.mu.Lock()
	_, present := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if present {
		close(c.send)
		c.conn.Close()
	}
}

// Close disconnects all clients.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()
	for _, c := range clients {
		close(c.send)
		c.conn.Close()
	}
}
