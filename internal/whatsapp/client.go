package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"halcon/internal/domain"
	"halcon/internal/normalize"

	"go.uber.org/zap"
)

// DefaultAPIURL is the Meta WhatsApp Cloud API base
const DefaultAPIURL = "https://graph.facebook.com/v18.0"

// maxLinkMessages bounds how many listings are sent as individual messages
const maxLinkMessages = 5

// Client sends text messages through the WhatsApp Cloud API. A missing API
// key disables sending (messages are logged and dropped) so the webhook flow
// keeps working in unconfigured environments.
type Client struct {
	httpClient    *http.Client
	apiURL        string
	apiKey        string
	phoneNumberID string
	logger        *zap.Logger
}

func NewClient(apiURL, apiKey, phoneNumberID string, logger *zap.Logger) *Client {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	return &Client{
		httpClient:    &http.Client{Timeout: 10 * time.Second},
		apiURL:        apiURL,
		apiKey:        apiKey,
		phoneNumberID: phoneNumberID,
		logger:        logger,
	}
}

type textPayload struct {
	MessagingProduct string   `json:"messaging_product"`
	To               string   `json:"to"`
	Type             string   `json:"type"`
	Text             textBody `json:"text"`
}

type textBody struct {
	Body string `json:"body"`
}

// SendText delivers one text message to a phone number.
func (c *Client) SendText(ctx context.Context, to, body string) error {
	if c.apiKey == "" {
		c.logger.Warn("WhatsApp API key not configured, skipping send", zap.String("to", to))
		return nil
	}

	payload, err := json.Marshal(textPayload{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "text",
		Text:             textBody{Body: body},
	})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	endpoint := fmt.Sprintf("%s/%s/messages", c.apiURL, c.phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("send message: status %d", resp.StatusCode)
	}

	c.logger.Info("WhatsApp message sent", zap.String("to", to))
	return nil
}

// SendListings sends each of the top listings as its own formatted message.
func (c *Client) SendListings(ctx context.Context, to string, listings []domain.Listing) error {
	if len(listings) > maxLinkMessages {
		listings = listings[:maxLinkMessages]
	}

	var firstErr error
	for i, listing := range listings {
		if err := c.SendText(ctx, to, FormatListing(i+1, listing)); err != nil {
			c.logger.Error("Failed to send listing message",
				zap.String("to", to),
				zap.Int("position", i+1),
				zap.Error(err),
			)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// FormatListing renders one listing as a WhatsApp message body.
func FormatListing(position int, listing domain.Listing) string {
	title := listing.Title
	if runes := []rune(title); len(runes) > 80 {
		title = string(runes[:80])
	}

	body := fmt.Sprintf("*%d. %s*\n💰 Precio: %s %s\n📦 Estado: %s\n",
		position, title, normalize.FormatCOP(listing.Price), listing.Currency, listing.ConditionLabel)
	if listing.FreeShipping {
		body += "🚚 Envío gratis\n"
	}
	body += "🔗 " + listing.URL
	return body
}
