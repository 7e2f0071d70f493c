package handler

import (
	"net/http"

	"github.com/gorilla/websocket"

	"partnerledger/internal/stream"
	"partnerledger/pkg/logger"
)

// StreamHandler upgrades admin-console connections to the live wallet feed.
type StreamHandler struct {
	hub    *stream.Hub
	logger logger.Logger

	upgrader websocket.Upgrader
}

func NewStreamHandler(hub *stream.Hub, log logger.Logger) *StreamHandler {
	return &StreamHandler{
		hub:    hub,
		logger: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origin is enforced by the CORS middleware upstream.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// WalletStream subscribes the caller to a partner's ledger events.
func (h *StreamHandler) WalletStream(w http.ResponseWriter, r *http.Request) {
	partnerID, ok := partnerIDFromPath(w, r)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed", map[string]interface{}{
			"error":      err.Error(),
			"partner_id": partnerID,
		})
		return
	}

	h.hub.Subscribe(partnerID, conn)
}
