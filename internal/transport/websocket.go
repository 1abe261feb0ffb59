// SPDX-License-Identifier: MIT
package transport

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	applog "sigscope/internal/log"
)

const (
	broadcastQueue = 256
	writeTimeout   = time.Second
)

// WebSocketTransport broadcasts every message as JSON to all connected
// WebSocket clients. Messages are queued; when the queue is full they are
// dropped rather than stalling the caller.
type WebSocketTransport struct {
	path      string
	upgrader  websocket.Upgrader
	clients   map[*websocket.Conn]bool
	clientsMu sync.Mutex
	draining  bool // Set by Close; late upgrades are refused.
	broadcast chan any
	listener  net.Listener
	server    *http.Server
	done      chan struct{}

	closeMu sync.RWMutex // Guards closed against Send.
	closed  bool
	dropped atomic.Uint64

	log *zap.SugaredLogger
}

// NewWebSocketTransport listens on addr and serves the WebSocket endpoint at
// path. addr may use port 0; Addr reports the bound address.
func NewWebSocketTransport(addr, path string) (*WebSocketTransport, error) {
	if path == "" {
		path = "/ws"
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("websocket listen on %s: %w", addr, err)
	}

	wst := &WebSocketTransport{
		path: path,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan any, broadcastQueue),
		listener:  ln,
		done:      make(chan struct{}),
		log:       applog.Named("websocket"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(path, wst.handleWebSocket)
	wst.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		wst.log.Infof("Starting WebSocket server on ws://%s%s", ln.Addr(), path)
		if err := wst.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			wst.log.Errorf("Server error: %v", err)
		}
	}()
	go wst.handleBroadcasts()

	return wst, nil
}

// Addr returns the address the server is bound to.
func (wst *WebSocketTransport) Addr() string {
	return wst.listener.Addr().String()
}

// URL returns the WebSocket URL clients connect to.
func (wst *WebSocketTransport) URL() string {
	return "ws://" + wst.Addr() + wst.path
}

// ClientCount returns the number of connected clients.
func (wst *WebSocketTransport) ClientCount() int {
	wst.clientsMu.Lock()
	defer wst.clientsMu.Unlock()
	return len(wst.clients)
}

// handleWebSocket upgrades HTTP connections to WebSocket.
func (wst *WebSocketTransport) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := wst.upgrader.Upgrade(w, r, nil)
	if err != nil {
		wst.log.Warnf("Upgrade error: %v", err)
		return
	}

	wst.clientsMu.Lock()
	if wst.draining {
		wst.clientsMu.Unlock()
		conn.Close()
		return
	}
	wst.clients[conn] = true
	total := len(wst.clients)
	wst.clientsMu.Unlock()
	wst.log.Infof("Client connected from %s, total: %d", conn.RemoteAddr(), total)

	// Clients only listen; a read error means they went away.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				wst.drop(conn)
				return
			}
		}
	}()
}

func (wst *WebSocketTransport) drop(conn *websocket.Conn) {
	wst.clientsMu.Lock()
	_, ok := wst.clients[conn]
	delete(wst.clients, conn)
	total := len(wst.clients)
	wst.clientsMu.Unlock()

	conn.Close()
	if ok {
		wst.log.Infof("Client disconnected, total: %d", total)
	}
}

// handleBroadcasts sends queued messages to all connected clients.
func (wst *WebSocketTransport) handleBroadcasts() {
	defer close(wst.done)

	for data := range wst.broadcast {
		wst.clientsMu.Lock()
		for client := range wst.clients {
			client.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := client.WriteJSON(data); err != nil {
				wst.log.Warnf("Error sending to client: %v", err)
				client.Close()
				delete(wst.clients, client)
			}
		}
		wst.clientsMu.Unlock()
	}
}

// Send queues data for broadcast. A full queue drops the message.
func (wst *WebSocketTransport) Send(data any) error {
	wst.closeMu.RLock()
	defer wst.closeMu.RUnlock()

	if wst.closed {
		return ErrClosed
	}

	select {
	case wst.broadcast <- data:
	default:
		if n := wst.dropped.Add(1); n%100 == 1 {
			wst.log.Warnf("Broadcast queue full, %d messages dropped so far", n)
		}
	}
	return nil
}

// Close stops the server and disconnects every client. It is safe to call
// more than once.
func (wst *WebSocketTransport) Close() error {
	wst.closeMu.Lock()
	if wst.closed {
		wst.closeMu.Unlock()
		return nil
	}
	wst.closed = true
	close(wst.broadcast)
	wst.closeMu.Unlock()

	<-wst.done

	wst.log.Info("Closing server")
	err := wst.server.Close()

	wst.clientsMu.Lock()
	wst.draining = true
	for client := range wst.clients {
		client.Close()
	}
	wst.clients = make(map[*websocket.Conn]bool)
	wst.clientsMu.Unlock()

	return err
}

// Ensure WebSocketTransport satisfies the interface
var _ Transport = (*WebSocketTransport)(nil)
