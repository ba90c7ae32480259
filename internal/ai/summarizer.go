package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"halcon/internal/domain"
	"halcon/internal/normalize"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// Summarizer composes the short Spanish status message sent back over chat
// before the listing links. Like the extractor it degrades instead of
// failing: when the model call errors, a deterministic summary is built from
// the results directly.
type Summarizer struct {
	client  ChatClient
	model   string
	timeout time.Duration
	logger  *zap.Logger
}

func NewSummarizer(client ChatClient, model string, timeout time.Duration, logger *zap.Logger) *Summarizer {
	return &Summarizer{
		client:  client,
		model:   model,
		timeout: timeout,
		logger:  logger,
	}
}

// Summarize produces a WhatsApp-sized message describing the search outcome.
func (s *Summarizer) Summarize(ctx context.Context, queryText string, query domain.StructuredQuery, listings []domain.Listing) string {
	if len(listings) == 0 {
		return fmt.Sprintf("❌ No encontré productos para '%s'. Intenta con una búsqueda diferente.", query.ProductName)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	message, err := s.summarize(ctx, queryText, listings)
	if err != nil {
		s.logger.Warn("Summary generation degraded to template", zap.Error(err))
		return fmt.Sprintf(
			"🔍 Encontré %d opciones de %s. El precio más bajo mostrado es %s. Te envío los mejores resultados.",
			len(listings), query.ProductName, normalize.FormatCOP(listings[0].Price),
		)
	}
	return message
}

func (s *Summarizer) summarize(ctx context.Context, queryText string, listings []domain.Listing) (string, error) {
	top := listings
	if len(top) > 3 {
		top = top[:3]
	}

	type highlight struct {
		Title     string `json:"title"`
		Price     string `json:"price"`
		Condition string `json:"condition"`
	}
	highlights := make([]highlight, 0, len(top))
	for _, l := range top {
		highlights = append(highlights, highlight{
			Title:     truncate(l.Title, 60),
			Price:     normalize.FormatCOP(l.Price),
			Condition: l.ConditionLabel,
		})
	}
	encoded, _ := json.Marshal(highlights)

	prompt := fmt.Sprintf(`Genera un mensaje corto y amigable en español para WhatsApp resumiendo estos productos de Mercado Libre.

Query original: %s
Productos encontrados: %d en total

Top resultados:
%s

Requisitos:
- Máximo 250 caracteres
- Empieza con el emoji 🔍
- Menciona cuántos productos encontraste
- No incluyas enlaces, se envían por separado`, queryText, len(listings), encoded)

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       s.model,
		Messages:    []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleUser, Content: prompt}},
		Temperature: 0.7,
		MaxTokens:   150,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", ErrEmptyCompletion
	}
	return resp.Choices[0].Message.Content, nil
}
