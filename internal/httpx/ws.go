package httpx

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ariefcatur/go-bizops/internal/docstore"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 256
)

// DocumentSource supplies the current documents replayed to a new client.
type DocumentSource interface {
	Documents(collection string) []docstore.Document
}

// ChangeMessage is the frame pushed to WebSocket clients.
type ChangeMessage struct {
	Type       docstore.ChangeType `json:"type"`
	Collection string              `json:"collection"`
	ID         string              `json:"id"`
	Data       json.RawMessage     `json:"data,omitempty"`
	At         time.Time           `json:"at"`
}

// Hub pushes document changes to WebSocket clients. A client that falls
// behind is disconnected.
type Hub struct {
	Source      DocumentSource
	Collections []string
	log         logrus.FieldLogger
	upgrader    websocket.Upgrader

	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

type wsClient struct {
	send   chan []byte
	filter map[string]bool // nil means every collection
}

func (c *wsClient) wants(collection string) bool {
	return c.filter == nil || c.filter[collection]
}

func NewHub(src DocumentSource, collections []string, log logrus.FieldLogger) *Hub {
	return &Hub{
		Source:      src,
		Collections: collections,
		log:         log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[*wsClient]struct{}),
	}
}

// Broadcast is a state.Listener.
func (h *Hub) Broadcast(ch docstore.Change) {
	msg, err := encodeChange(ch)
	if err != nil {
		h.log.WithError(err).Warn("encode change")
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if !c.wants(ch.Collection) {
			continue
		}
		select {
		case c.send <- msg:
		default:
			h.drop(c)
		}
	}
}

// drop must be called with h.mu held.
func (h *Hub) drop(c *wsClient) {
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeWS upgrades the request and streams changes. ?collections=a,b
// narrows the stream; current documents are sent first as added.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	var filter map[string]bool
	if q := strings.TrimSpace(r.URL.Query().Get("collections")); q != "" {
		filter = map[string]bool{}
		for _, c := range strings.Split(q, ",") {
			if c = strings.TrimSpace(c); c != "" {
				filter[c] = true
			}
		}
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response
		h.log.WithError(err).Debug("websocket upgrade failed")
		return
	}
	c := h.register(filter)

	go h.writePump(conn, c)
	h.readPump(conn, c)
}

// register replays under the hub lock so no broadcast slips between the
// replay and the live stream.
func (h *Hub) register(filter map[string]bool) *wsClient {
	h.mu.Lock()
	defer h.mu.Unlock()

	var replay [][]byte
	if h.Source != nil {
		for _, coll := range h.Collections {
			if filter != nil && !filter[coll] {
				continue
			}
			for _, d := range h.Source.Documents(coll) {
				msg, err := encodeChange(docstore.Change{
					Type: docstore.ChangeAdded, Collection: coll, ID: d.ID, Doc: d, At: d.UpdatedAt,
				})
				if err != nil {
					continue
				}
				replay = append(replay, msg)
			}
		}
	}
	c := &wsClient{send: make(chan []byte, len(replay)+sendBuffer), filter: filter}
	for _, msg := range replay {
		c.send <- msg
	}
	h.clients[c] = struct{}{}
	return c
}

func (h *Hub) unregister(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.drop(c)
}

// readPump discards client frames and returns when the connection dies.
func (h *Hub) readPump(conn *websocket.Conn, c *wsClient) {
	defer func() {
		h.unregister(c)
		_ = conn.Close()
	}()
	conn.SetReadLimit(4096)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(conn *websocket.Conn, c *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func encodeChange(ch docstore.Change) ([]byte, error) {
	m := ChangeMessage{Type: ch.Type, Collection: ch.Collection, ID: ch.ID, At: ch.At}
	if ch.Type != docstore.ChangeRemoved {
		m.Data = ch.Doc.Data
	}
	return json.Marshal(m)
}
