// Package proxy implements the Intercept Proxy: the HTTP front door that
// normalizes JSON-RPC, gates it through the firewall, and either
// forwards upstream or returns a structured block. Route shapes and
// response bodies are grounded on
// original_source/plimsoll/proxy/interceptor.py.
package proxy

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/plimsoll/firewall/pkg/txview"
)

// BlockFeed fans out firewall BLOCK verdicts to connected observability
// clients in real time. Hub/broadcast shape adapted from
// internal/websocket/dag_streamer.go's DAGStreamer, retargeted from DAG
// node/edge events to firewall BlockEvents.
type BlockFeed struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan txview.BlockEvent
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	mu         sync.RWMutex
	upgrader   websocket.Upgrader
	log        *log.Logger
}

// NewBlockFeed constructs a BlockFeed; callers must run Run in a
// goroutine before serving HandleWebSocket requests.
func NewBlockFeed() *BlockFeed {
	return &BlockFeed{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan txview.BlockEvent, 256),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log: log.New(log.Writer(), "[Proxy] ", log.LstdFlags),
	}
}

// Run drives the hub's register/unregister/broadcast loop. It never
// returns; callers invoke it with `go feed.Run()`.
func (f *BlockFeed) Run() {
	for {
		select {
		case client := <-f.register:
			f.mu.Lock()
			f.clients[client] = true
			f.mu.Unlock()
			f.log.Printf("block feed client connected (total: %d)", len(f.clients))

		case client := <-f.unregister:
			f.mu.Lock()
			if _, ok := f.clients[client]; ok {
				delete(f.clients, client)
				client.Close()
			}
			f.mu.Unlock()
			f.log.Printf("block feed client disconnected (total: %d)", len(f.clients))

		case evt := <-f.broadcast:
			f.mu.RLock()
			for client := range f.clients {
				if err := client.WriteJSON(evt); err != nil {
					f.log.Printf("block feed write error: %v", err)
					client.Close()
					delete(f.clients, client)
				}
			}
			f.mu.RUnlock()
		}
	}
}

// HandleWebSocket upgrades an HTTP request to a long-lived feed
// connection.
func (f *BlockFeed) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.log.Printf("block feed upgrade error: %v", err)
		return
	}
	f.register <- conn

	go func() {
		defer func() { f.unregister <- conn }()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

// Publish pushes a BlockEvent to the broadcast channel, timestamping it
// if the caller left it zero.
func (f *BlockFeed) Publish(evt txview.BlockEvent) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	select {
	case f.broadcast <- evt:
	default:
		f.log.Printf("block feed channel full, dropping event for %s", evt.Target)
	}
}
