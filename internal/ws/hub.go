package ws

import (
	"sync"
)

// Hub tracks the live capture connections. An employee holds at most one
// session at a time; anonymous capture-only clients are not limited.
type Hub struct {
	clients   map[*Client]bool
	employees map[string]*Client
	mu        sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:   make(map[*Client]bool),
		employees: make(map[string]*Client),
	}
}

// Register adds client, or returns ErrCaptureInProgress when its employee is
// already in a session.
func (h *Hub) Register(client *Client) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if client.employeeID != "" {
		if _, busy := h.employees[client.employeeID]; busy {
			return errEmployeeBusy
		}
		h.employees[client.employeeID] = client
	}
	h.clients[client] = true
	return nil
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	if h.employees[client.employeeID] == client {
		delete(h.employees, client.employeeID)
	}
}

// CancelAll stops every running session, e.g. on shutdown.
func (h *Hub) CancelAll() int {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.cancel()
	}
	return len(clients)
}

func (h *Hub) ConnectedClients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients)
}

// InSession reports whether employeeID currently has a live session.
func (h *Hub) InSession(employeeID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	_, ok := h.employees[employeeID]
	return ok
}
