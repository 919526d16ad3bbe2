// internal/api/handler/webhook.go
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"chatpay-wallet/internal/service"
	"chatpay-wallet/internal/util"
)

// WebhookHandler receives chat messages from the messaging channel.
type WebhookHandler struct {
	responder
	chat service.ChatService
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(chat service.ChatService, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{responder: responder{logger: logger}, chat: chat}
}

// InboundMessage is the webhook payload for one user message or button tap.
type InboundMessage struct {
	From     string `json:"from"`
	Name     string `json:"name"`
	Text     string `json:"text"`
	ButtonID string `json:"button_id"`
}

// Verify echoes the subscription challenge.
// GET /webhook
func (h *WebhookHandler) Verify(w http.ResponseWriter, r *http.Request) {
	challenge := r.URL.Query().Get("challenge")
	if challenge == "" {
		h.respondWithError(w, util.ErrInvalidInput)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(challenge))
}

// Receive handles one inbound message and returns the reply to send.
// POST /webhook
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	var msg InboundMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		h.respondWithError(w, util.ErrInvalidInput)
		return
	}
	if msg.From == "" || (msg.Text == "" && msg.ButtonID == "") {
		h.respondWithError(w, util.ErrInvalidInput)
		return
	}

	out, err := h.chat.HandleMessage(r.Context(), service.Inbound{
		Handle:   msg.From,
		Name:     msg.Name,
		Text:     msg.Text,
		ButtonID: msg.ButtonID,
	})
	if err != nil {
		h.respondWithError(w, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, out)
}
