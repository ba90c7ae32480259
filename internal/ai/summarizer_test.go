package ai

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"halcon/internal/domain"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

func summaryListings(t *testing.T) []domain.Listing {
	t.Helper()
	first, err := domain.NewListing("iPhone 13 128GB", 1850000, "COP", domain.ConditionLabelNew, "", "https://articulo.mercadolibre.com.co/MCO-1", true, "Bogotá")
	if err != nil {
		t.Fatalf("building listing: %v", err)
	}
	second, err := domain.NewListing("iPhone 13 usado", 1500000, "COP", domain.ConditionLabelUsed, "", "https://articulo.mercadolibre.com.co/MCO-2", false, "Medellín")
	if err != nil {
		t.Fatalf("building listing: %v", err)
	}
	return []domain.Listing{first, second}
}

func TestSummarizeEmptyResults(t *testing.T) {
	client := &fakeChatClient{}
	summarizer := NewSummarizer(client, "gpt-4o-mini", 5*time.Second, zap.NewNop())

	query := domain.StructuredQuery{ProductName: "iPhone 13", Condition: domain.ConditionAny, NumResults: 10}
	message := summarizer.Summarize(context.Background(), "busco iphone 13", query, nil)

	if !strings.Contains(message, "No encontré productos") {
		t.Errorf("expected empty-result message, got %q", message)
	}
	if !strings.Contains(message, "iPhone 13") {
		t.Errorf("message should name the product, got %q", message)
	}
	if len(client.requests) != 0 {
		t.Error("no model call should be made for empty results")
	}
}

func TestSummarizeUsesModelResponse(t *testing.T) {
	client := &fakeChatClient{
		response: openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{{
				Message: openai.ChatCompletionMessage{Content: "🔍 Encontré 2 iPhone 13, desde $1.500.000."},
			}},
		},
	}
	summarizer := NewSummarizer(client, "gpt-4o-mini", 5*time.Second, zap.NewNop())

	query := domain.StructuredQuery{ProductName: "iPhone 13", Condition: domain.ConditionAny, NumResults: 10}
	message := summarizer.Summarize(context.Background(), "busco iphone 13", query, summaryListings(t))

	if message != "🔍 Encontré 2 iPhone 13, desde $1.500.000." {
		t.Errorf("expected model content, got %q", message)
	}
}

func TestSummarizeDegradesToTemplate(t *testing.T) {
	tests := []struct {
		name   string
		client *fakeChatClient
	}{
		{
			name:   "transport error",
			client: &fakeChatClient{err: errors.New("connection refused")},
		},
		{
			name:   "empty completion",
			client: &fakeChatClient{response: openai.ChatCompletionResponse{}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			summarizer := NewSummarizer(tt.client, "gpt-4o-mini", 5*time.Second, zap.NewNop())

			query := domain.StructuredQuery{ProductName: "iPhone 13", Condition: domain.ConditionAny, NumResults: 10}
			message := summarizer.Summarize(context.Background(), "busco iphone 13", query, summaryListings(t))

			if !strings.Contains(message, "Encontré 2 opciones de iPhone 13") {
				t.Errorf("expected template summary, got %q", message)
			}
			if !strings.Contains(message, "$1.850.000") {
				t.Errorf("template should show the first listing price, got %q", message)
			}
		})
	}
}
