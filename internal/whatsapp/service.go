package whatsapp

import (
	"context"

	"halcon/internal/domain"
	"halcon/internal/pipeline"

	"go.uber.org/zap"
)

// Searcher is the discovery pipeline as the messaging flow sees it.
type Searcher interface {
	Search(ctx context.Context, queryText string, numResultsHint int) (*pipeline.Result, error)
}

// Summarizer composes the human-readable summary sent before the links.
type Summarizer interface {
	Summarize(ctx context.Context, queryText string, query domain.StructuredQuery, listings []domain.Listing) string
}

// Sender is the message transport used by the service.
type Sender interface {
	SendText(ctx context.Context, to, body string) error
	SendListings(ctx context.Context, to string, listings []domain.Listing) error
}

// Service handles an incoming chat message end to end: run the discovery
// pipeline, then answer with a summary followed by the listing links. It is
// invoked from a background goroutine after the webhook has already been
// acknowledged, so failures are reported back to the user, never to Meta.
type Service struct {
	searcher   Searcher
	summarizer Summarizer
	sender     Sender
	logger     *zap.Logger
}

func NewService(searcher Searcher, summarizer Summarizer, sender Sender, logger *zap.Logger) *Service {
	return &Service{
		searcher:   searcher,
		summarizer: summarizer,
		sender:     sender,
		logger:     logger,
	}
}

// ProcessMessage runs one user message through the pipeline and replies.
func (s *Service) ProcessMessage(ctx context.Context, fromNumber, message, messageID string) {
	log := s.logger.With(
		zap.String("message_id", messageID),
		zap.String("from", fromNumber),
	)
	log.Info("Processing WhatsApp message")

	result, err := s.searcher.Search(ctx, message, 0)
	if err != nil {
		log.Error("Search failed for WhatsApp message", zap.Error(err))
		if sendErr := s.sender.SendText(ctx, fromNumber,
			"❌ Lo siento, hubo un error procesando tu búsqueda. Por favor intenta de nuevo en unos momentos."); sendErr != nil {
			log.Error("Failed to send error message", zap.Error(sendErr))
		}
		return
	}

	if len(result.Listings) == 0 {
		noResults := "❌ No encontré productos para '" + result.StructuredQuery.ProductName +
			"'. Intenta con una búsqueda diferente o ajusta los filtros."
		if err := s.sender.SendText(ctx, fromNumber, noResults); err != nil {
			log.Error("Failed to send no-results message", zap.Error(err))
		}
		return
	}

	summary := s.summarizer.Summarize(ctx, message, result.StructuredQuery, result.Listings)
	if err := s.sender.SendText(ctx, fromNumber, summary); err != nil {
		log.Error("Failed to send summary message", zap.Error(err))
	}
	if err := s.sender.SendListings(ctx, fromNumber, result.Listings); err != nil {
		log.Error("Failed to send listing messages", zap.Error(err))
	}

	log.Info("WhatsApp message processed",
		zap.Int("listings", len(result.Listings)),
		zap.String("source_tier", string(result.SourceTier)),
	)
}
