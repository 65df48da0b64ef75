package ws

import (
	"sync"

	"github.com/fdmcneill2019/p2p-lending-resume-version/internal/observability"
)

type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]map[*Client]struct{}
	clients     map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{
		subscribers: map[string]map[*Client]struct{}{},
		clients:     map[*Client]struct{}{},
	}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client] = struct{}{}
	observability.WSClients.Set(float64(len(h.clients)))
}

func (h *Hub) Subscribe(channel string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subscribers[channel]; !ok {
		h.subscribers[channel] = map[*Client]struct{}{}
	}
	h.subscribers[channel][client] = struct{}{}
	client.addChannel(channel)
}

func (h *Hub) Unsubscribe(channel string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.remove(channel, client)
	client.removeChannel(channel)
}

func (h *Hub) UnsubscribeAll(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, channel := range client.listChannels() {
		h.remove(channel, client)
	}
	delete(h.clients, client)
	observability.WSClients.Set(float64(len(h.clients)))
}

func (h *Hub) remove(channel string, client *Client) {
	if subs, ok := h.subscribers[channel]; ok {
		delete(subs, client)
		if len(subs) == 0 {
			delete(h.subscribers, channel)
		}
	}
}

// Publish sends payload to every subscriber of channel and reports how many received it.
func (h *Hub) Publish(channel string, payload []byte) int {
	h.mu.RLock()
	subs := make([]*Client, 0, len(h.subscribers[channel]))
	for c := range h.subscribers[channel] {
		subs = append(subs, c)
	}
	h.mu.RUnlock()

	for _, c := range subs {
		c.send(payload)
	}
	return len(subs)
}
