package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"halcon/internal/middleware"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// processTimeout bounds background processing of one webhook message
const processTimeout = 2 * time.Minute

// MessageProcessor handles one accepted chat message off the request path.
type MessageProcessor interface {
	ProcessMessage(ctx context.Context, fromNumber, message, messageID string)
}

// WebhookHandler receives Meta WhatsApp Cloud API callbacks: the GET
// verification handshake and POST message notifications. Messages are
// acknowledged immediately and processed in a background goroutine so Meta
// never waits on a scrape.
type WebhookHandler struct {
	verifyToken string
	processor   MessageProcessor
	logger      *zap.Logger
}

func NewWebhookHandler(verifyToken string, processor MessageProcessor, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		verifyToken: verifyToken,
		processor:   processor,
		logger:      logger,
	}
}

// RegisterRoutes registers webhook routes
func (h *WebhookHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1/webhooks/whatsapp", func(r chi.Router) {
		r.Get("/", h.Verify)
		r.Post("/", h.Receive)
	})
}

// Verify answers Meta's webhook verification handshake: echo the challenge
// when the verify token matches, 403 otherwise.
func (h *WebhookHandler) Verify(w http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("hub.mode")
	token := r.URL.Query().Get("hub.verify_token")
	challenge := r.URL.Query().Get("hub.challenge")

	if mode == "subscribe" && token == h.verifyToken {
		h.logger.Info("Webhook verification successful")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(challenge))
		return
	}

	h.logger.Warn("Webhook verification failed", zap.String("mode", mode))
	middleware.RespondWithError(w, http.StatusForbidden, "verification failed")
}

// Meta Cloud API webhook envelope, reduced to the fields the flow reads.
type webhookPayload struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Messages []struct {
					From string `json:"from"`
					ID   string `json:"id"`
					Type string `json:"type"`
					Text struct {
						Body string `json:"body"`
					} `json:"text"`
				} `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type webhookAck struct {
	Status    string `json:"status"`
	MessageID string `json:"message_id,omitempty"`
}

// Receive accepts a webhook notification. Non-message events, non-text
// messages and malformed envelopes are acknowledged as ignored; only an
// unreadable body is an error.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	var payload webhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.logger.Warn("Unreadable webhook payload", zap.Error(err))
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	message, ok := firstTextMessage(payload)
	if !ok {
		h.logger.Info("Ignoring webhook without a text message")
		middleware.RespondWithJSON(w, http.StatusOK, webhookAck{Status: "ignored"})
		return
	}

	h.logger.Info("Accepted WhatsApp message",
		zap.String("message_id", message.ID),
		zap.String("from", message.From),
	)

	// Detached from the request context: the webhook response must not
	// wait for the pipeline, but cancellation still applies via timeout.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), processTimeout)
		defer cancel()
		h.processor.ProcessMessage(ctx, message.From, message.Body, message.ID)
	}()

	middleware.RespondWithJSON(w, http.StatusOK, webhookAck{Status: "accepted", MessageID: message.ID})
}

type incomingMessage struct {
	From string
	ID   string
	Body string
}

func firstTextMessage(payload webhookPayload) (incomingMessage, bool) {
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			for _, msg := range change.Value.Messages {
				if msg.Type != "text" || msg.Text.Body == "" {
					continue
				}
				return incomingMessage{From: msg.From, ID: msg.ID, Body: msg.Text.Body}, true
			}
		}
	}
	return incomingMessage{}, false
}
