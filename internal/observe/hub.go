// Package observe is an optional, disabled-by-default websocket bridge
// that rebroadcasts the server's observability hooks (CLIENT_INFO_
// CHANGED, SERVER_LISTENING_CHANGED, registry membership changes) as
// JSON for debugging and dashboards, with opt-in per-client brotli
// compression.
package observe

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ninevoltz/rgbsdk/internal/dal/registry"
	"github.com/ninevoltz/rgbsdk/internal/sdk/server"
	"github.com/ninevoltz/rgbsdk/pkg/log"
)

// Hub owns the set of connected debug clients and rebroadcasts events
// to all of them.
type Hub struct {
	clients   map[*Client]bool
	broadcast chan []byte
	register  chan *Client
	unregister chan *Client

	log log.Logger
	mu  sync.Mutex
}

// NewHub returns an unstarted Hub.
func NewHub(logger log.Logger) *Hub {
	if logger == nil {
		logger = log.NewNullLogger()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		log:        logger,
	}
}

// Attach subscribes the hub to srv's observability hooks and reg's
// membership-change notifications. Call once, before Run.
func (h *Hub) Attach(srv *server.Server, reg *registry.Registry) {
	srv.OnClientInfoChanged(func(info server.ClientInfo) {
		h.broadcastJSON(EventClientInfo, ClientInfoEvent{
			RemoteAddr: info.RemoteAddr,
			ClientName: info.ClientName,
			Connected:  info.Connected,
			RTTMillis:  float64(info.RTT) / float64(time.Millisecond),
		})
	})
	srv.OnServerListeningChanged(func(ev server.ListeningEvent) {
		body := ServerListeningEvent{Addr: ev.Addr, Listening: ev.Listening}
		if ev.Err != nil {
			body.Err = ev.Err.Error()
		}
		h.broadcastJSON(EventServerListening, body)
	})

	watch := reg.Watch()
	go func() {
		for range watch {
			h.broadcastJSON(EventDeviceListChanged, DeviceListChangedEvent{
				ControllerCount: len(reg.All()),
			})
		}
	}()
}

func (h *Hub) broadcastJSON(t EventType, body interface{}) {
	data, err := json.Marshal(body)
	if err != nil {
		h.log.Warnf("observe: marshal event %d: %v", t, err)
		return
	}
	select {
	case h.broadcast <- append([]byte{byte(t)}, data...):
	default:
		h.log.Warnf("observe: broadcast channel full, dropping event %d", t)
	}
}

// Run drives the hub's register/unregister/broadcast loop until
// stopped is closed.
func (h *Hub) Run(stopped <-chan struct{}) {
	for {
		select {
		case <-stopped:
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
			}
			h.clients = make(map[*Client]bool)
			h.mu.Unlock()
			return
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
		case msg := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					delete(h.clients, c)
					close(c.send)
				}
			}
			h.mu.Unlock()
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Handler returns an http.HandlerFunc that upgrades the connection to a
// websocket and registers a new Client with the hub.
func (h *Hub) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.log.Warnf("observe: upgrade: %v", err)
			return
		}
		c := newClient(h, conn)
		h.register <- c
		go c.writePump()
		go c.readPump()
	}
}
