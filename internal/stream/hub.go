// Package stream fans wallet ledger events out to websocket subscribers.
package stream

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"partnerledger/internal/domain"
	"partnerledger/pkg/logger"
)

// Event is the wire format pushed to subscribers.
type Event struct {
	Type        string                    `json:"type"`
	PartnerID   uuid.UUID                 `json:"partner_id"`
	Transaction *domain.WalletTransaction `json:"transaction"`
	At          time.Time                 `json:"at"`
}

// Hub tracks per-partner subscriber connections. Publish never blocks the
// ledger: slow subscribers are dropped.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uuid.UUID]map[*subscriber]struct{}
	logger logger.Logger
}

type subscriber struct {
	conn *websocket.Conn
	send chan Event
}

func NewHub(log logger.Logger) *Hub {
	return &Hub{
		subs:   make(map[uuid.UUID]map[*subscriber]struct{}),
		logger: log,
	}
}

// Publish delivers the ledger change to every subscriber of the partner.
func (h *Hub) Publish(partnerID uuid.UUID, event string, wtx *domain.WalletTransaction) {
	evt := Event{
		Type:        event,
		PartnerID:   partnerID,
		Transaction: wtx,
		At:          time.Now().UTC(),
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs[partnerID] {
		select {
		case sub.send <- evt:
		default:
			// Subscriber is not keeping up; it will be cleaned up on write error.
		}
	}
}

// Subscribe registers a connection for a partner's events and pumps them until
// the connection drops.
func (h *Hub) Subscribe(partnerID uuid.UUID, conn *websocket.Conn) {
	sub := &subscriber{
		conn: conn,
		send: make(chan Event, 16),
	}

	h.mu.Lock()
	if h.subs[partnerID] == nil {
		h.subs[partnerID] = make(map[*subscriber]struct{})
	}
	h.subs[partnerID][sub] = struct{}{}
	h.mu.Unlock()

	h.logger.Debug("Wallet stream subscriber attached", map[string]interface{}{
		"partner_id": partnerID,
	})

	go h.writePump(partnerID, sub)
	h.readPump(partnerID, sub)
}

func (h *Hub) writePump(partnerID uuid.UUID, sub *subscriber) {
	for evt := range sub.send {
		sub.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := sub.conn.WriteJSON(evt); err != nil {
			h.detach(partnerID, sub)
			return
		}
	}
}

// readPump discards client messages; its job is detecting disconnects.
func (h *Hub) readPump(partnerID uuid.UUID, sub *subscriber) {
	defer h.detach(partnerID, sub)
	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) detach(partnerID uuid.UUID, sub *subscriber) {
	h.mu.Lock()
	if set, ok := h.subs[partnerID]; ok {
		if _, attached := set[sub]; attached {
			delete(set, sub)
			close(sub.send)
			if len(set) == 0 {
				delete(h.subs, partnerID)
			}
		}
	}
	h.mu.Unlock()
	sub.conn.Close()
}
