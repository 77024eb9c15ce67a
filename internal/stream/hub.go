// Package stream pushes capture progress to websocket subscribers.
package stream

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/shehryarbajwa/pagestitch/internal/executor"
)

const (
	writeWait  = 10 * time.Second
	bufferSize = 32
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type subscriber struct {
	events chan executor.Progress
}

// Hub fans progress events out to the subscribers of each tab
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[*subscriber]struct{}
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[*subscriber]struct{})}
}

// Publish delivers p to every subscriber of p.TabID. Slow subscribers miss
// events rather than stall the capture.
func (h *Hub) Publish(p executor.Progress) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.subs[p.TabID] {
		select {
		case sub.events <- p:
		default:
		}
	}
}

// Subscribers returns how many clients watch tabID
func (h *Hub) Subscribers(tabID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[tabID])
}

// ServeTab upgrades the request and streams tabID's progress as JSON until
// the client goes away.
func (h *Hub) ServeTab(w http.ResponseWriter, r *http.Request, tabID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Failed to upgrade connection: %v", err)
		return
	}
	defer conn.Close()

	sub := h.subscribe(tabID)
	defer h.unsubscribe(tabID, sub)

	log.Printf("📡 Progress subscriber connected for tab %s", tabID)

	// The client never sends anything; reading only detects the close.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Printf("WebSocket error (tab %s): %v", tabID, err)
				}
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			log.Printf("Progress subscriber disconnected from tab %s", tabID)
			return
		case <-r.Context().Done():
			return
		case p := <-sub.events:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(p); err != nil {
				log.Printf("Failed to write progress (tab %s): %v", tabID, err)
				return
			}
		}
	}
}

func (h *Hub) subscribe(tabID string) *subscriber {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub := &subscriber{events: make(chan executor.Progress, bufferSize)}
	if h.subs[tabID] == nil {
		h.subs[tabID] = make(map[*subscriber]struct{})
	}
	h.subs[tabID][sub] = struct{}{}
	return sub
}

func (h *Hub) unsubscribe(tabID string, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.subs[tabID], sub)
	if len(h.subs[tabID]) == 0 {
		delete(h.subs, tabID)
	}
}
