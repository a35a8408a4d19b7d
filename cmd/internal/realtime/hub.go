package realtime

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	feedv1 "github.com/volskaya/norman/cmd/shared/contracts/feed/v1"
)

// SubscriberObserver is told how many feed clients are connected.
type SubscriberObserver interface {
	FeedSubscribers(n int)
}

// Hub fans moderation activity out to every connected feed client.
//
// Publish never blocks: a client whose send queue is full misses the event.
// Client.Send is never closed by the hub, so a broadcast racing an
// unsubscribe cannot panic.
type Hub struct {
	log *slog.Logger
	obs SubscriberObserver

	mu      sync.RWMutex
	clients map[string]*Client
}

// NewHub constructs a Hub. obs may be nil.
func NewHub(log *slog.Logger, obs SubscriberObserver) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{log: log, obs: obs, clients: make(map[string]*Client)}
}

// Subscribe registers a client for broadcasts.
func (h *Hub) Subscribe(c *Client) {
	if c == nil || c.SessionID == "" {
		return
	}
	h.mu.Lock()
	h.clients[c.SessionID] = c
	n := len(h.clients)
	h.mu.Unlock()

	h.observe(n)
	h.log.Info("feed.subscribe", "session_id", c.SessionID, "subscribers", n)
}

// Unsubscribe removes a client and signals it to stop.
func (h *Hub) Unsubscribe(sessionID string) {
	h.mu.Lock()
	c, ok := h.clients[sessionID]
	delete(h.clients, sessionID)
	n := len(h.clients)
	h.mu.Unlock()

	if !ok {
		return
	}
	c.Close()
	h.observe(n)
	h.log.Info("feed.unsubscribe", "session_id", sessionID, "subscribers", n)
}

// Len returns the number of subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish broadcasts one activity record. It implements gate.ActivitySink.
func (h *Hub) Publish(a feedv1.Activity) {
	now := time.Now().UTC()
	if a.At.IsZero() {
		a.At = now
	}
	payload, err := json.Marshal(a)
	if err != nil {
		h.log.Error("feed.encode.fail", "kind", a.Kind, "err", err)
		return
	}
	env := newEnvelope(feedv1.TypeActivity, payload, now)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, c := range h.clients {
		select {
		case <-c.Done():
		case c.Send <- env:
		default:
			h.log.Warn("feed.drop", "session_id", id, "kind", a.Kind)
		}
	}
}

func (h *Hub) observe(n int) {
	if h.obs != nil {
		h.obs.FeedSubscribers(n)
	}
}
