package control

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// EventRecord is the payload broadcast to websocket subscribers on every
// finalized event (spec.md §4.9, §11: "optional push channel ... not in
// spec.md, supplementing it"), kept intentionally narrow since this
// boundary only ever needs to announce finalized meteor events.
type EventRecord struct {
	Camera         string  `json:"camera"`
	Timestamp      string  `json:"timestamp"`
	StartPoint     [2]float64 `json:"start_point"`
	EndPoint       [2]float64 `json:"end_point"`
	LengthPixels   float64 `json:"length_pixels"`
	Confidence     float64 `json:"confidence"`
	PeakBrightness float64 `json:"peak_brightness"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// EventHub broadcasts EventRecords to every connected websocket client for
// one camera: a connection set guarded by a mutex, ping/pong keep-alive,
// and write-on-broadcast, narrowed to a single event-notification stream.
type EventHub struct {
	camera string
	logger *log.Logger

	mu      sync.RWMutex
	clients map[*websocket.Conn]struct{}
}

// NewEventHub returns an empty hub for the named camera.
func NewEventHub(camera string, logger *log.Logger) *EventHub {
	return &EventHub{camera: camera, logger: logger, clients: make(map[*websocket.Conn]struct{})}
}

// ServeHTTP upgrades the request to a websocket and registers the
// connection (spec.md §6 "GET /events/ws").
func (h *EventHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("control: websocket upgrade failed: %v", err)
		return
	}

	h.mu.Lock()
	h.clients[conn] = struct{}{}
	h.mu.Unlock()

	go h.readPump(conn)
}

func (h *EventHub) readPump(conn *websocket.Conn) {
	defer func() {
		h.unregister(conn)
		conn.Close()
	}()

	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	go func() {
		for range ticker.C {
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (h *EventHub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
}

// Broadcast sends rec as JSON to every connected client, dropping and
// unregistering any connection whose write fails.
func (h *EventHub) Broadcast(rec EventRecord) {
	rec.Camera = h.camera

	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for c := range h.clients {
		conns = append(conns, c)
	}
	h.mu.RUnlock()
	if len(conns) == 0 {
		return
	}

	data, err := json.Marshal(rec)
	if err != nil {
		h.logger.Printf("control: failed marshaling event record: %v", err)
		return
	}

	for _, conn := range conns {
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.unregister(conn)
			conn.Close()
		}
	}
}

// ClientCount returns the number of currently connected clients.
func (h *EventHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
