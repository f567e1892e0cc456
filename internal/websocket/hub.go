package websocket

import (
	"encoding/json"
	"sync"
)

// Event types pushed to dashboard clients. The front-end polls the status
// endpoint as a fallback; these pushes just make the deposit screen update
// as soon as a webhook lands.
const (
	EventBalance = "balance"
	EventPayment = "payment"
)

type BalanceUpdate struct {
	BalanceEUR string `json:"balance_eur"`
	Currency   string `json:"currency"`
}

type PaymentUpdate struct {
	TransactionID string `json:"transaction_id"`
	PaymentID     string `json:"payment_id"`
	Status        string `json:"status"`
	PaymentStatus string `json:"payment_status"`
}

type event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
	}
}

func (h *Hub) Register(userID string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[userID] == nil {
		h.clients[userID] = make(map[*Client]struct{})
	}
	h.clients[userID][client] = struct{}{}
}

func (h *Hub) Unregister(userID string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[userID] == nil {
		return
	}
	delete(h.clients[userID], client)
	if len(h.clients[userID]) == 0 {
		delete(h.clients, userID)
	}
}

func (h *Hub) BroadcastBalance(userID string, update BalanceUpdate) {
	h.broadcast(userID, event{Type: EventBalance, Data: update})
}

func (h *Hub) BroadcastPayment(userID string, update PaymentUpdate) {
	h.broadcast(userID, event{Type: EventPayment, Data: update})
}

func (h *Hub) broadcast(userID string, evt event) {
	payload, _ := json.Marshal(evt)
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients[userID] {
		select {
		case client.send <- payload:
		default:
		}
	}
}
