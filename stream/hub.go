// Package stream fans cache snapshots out to websocket subscribers. The hub
// is a plain consumer of the price cache: it wakes on updates, reads a
// point-in-time snapshot, and forwards the entries verbatim.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/rustyeddy/papertrade/market"
)

const writeTimeout = 5 * time.Second

// Hub upgrades HTTP requests to websockets and pushes the full price
// snapshot to every connected client whenever the cache updates, throttled
// to at most one frame per interval.
type Hub struct {
	cache    *market.Cache
	log      zerolog.Logger
	interval time.Duration
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewHub(cache *market.Cache, interval time.Duration, log zerolog.Logger) *Hub {
	return &Hub{
		cache:    cache,
		log:      log,
		interval: interval,
		upgrader: websocket.Upgrader{
			// The trading UI is served from the same origin; anything else
			// talking to a paper-trading sandbox is fine too.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]struct{}),
	}
}

// Start launches the broadcast loop.
func (h *Hub) Start() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cancel != nil {
		return errors.New("stream: already started")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	h.cancel = cancel
	h.done = done

	go h.run(ctx, done)
	return nil
}

// Stop halts the loop, waits for it, and closes every client connection.
func (h *Hub) Stop() error {
	h.mu.Lock()
	cancel, done := h.cancel, h.done
	h.cancel, h.done = nil, nil
	h.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done

	h.mu.Lock()
	for conn := range h.clients {
		conn.Close()
	}
	h.clients = make(map[*websocket.Conn]struct{})
	h.mu.Unlock()
	return nil
}

func (h *Hub) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		// Wake on any cache update, with the interval as both the wait
		// bound and the per-frame throttle.
		if !h.cache.WaitForUpdate(h.interval) {
			continue
		}
		h.broadcast()

		select {
		case <-ctx.Done():
			return
		case <-time.After(h.interval):
		}
	}
}

func (h *Hub) broadcast() {
	entries := h.cache.All()
	if len(entries) == 0 {
		return
	}

	payload, err := json.Marshal(entries)
	if err != nil {
		h.log.Error().Err(err).Msg("marshal price snapshot")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for conn := range h.clients {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			h.log.Debug().Err(err).Msg("dropping slow or closed client")
			conn.Close()
			delete(h.clients, conn)
		}
	}
}

// ServeHTTP upgrades the request and registers the client. Inbound messages
// are drained and discarded; the stream is one-way. Connections are refused
// while the hub is not running: nothing would ever serve them.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	running := h.cancel != nil
	h.mu.Unlock()
	if !running {
		http.Error(w, "price stream is not running", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	h.mu.Lock()
	if h.cancel == nil {
		// Stop ran between the check and the upgrade.
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[conn] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.log.Info().Int("clients", n).Msg("stream client connected")

	go func() {
		defer func() {
			h.mu.Lock()
			delete(h.clients, conn)
			h.mu.Unlock()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
