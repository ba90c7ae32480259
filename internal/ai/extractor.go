package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"halcon/internal/domain"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const extractFunctionName = "extract_product_info"

var (
	ErrNoToolCall      = errors.New("no tool call in model response")
	ErrEmptyCompletion = errors.New("empty completion in model response")
	ErrInvalidOutput   = errors.New("model output failed validation")
)

// ChatClient is the slice of the OpenAI client the extractor needs.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Extractor turns free-text Spanish product requests into structured queries
// using a single function-constrained model call. It never surfaces an error:
// any failure degrades to a deterministic fallback query.
type Extractor struct {
	client  ChatClient
	model   string
	timeout time.Duration
	logger  *zap.Logger
}

// NewExtractor creates an Extractor backed by the given chat client.
func NewExtractor(client ChatClient, model string, timeout time.Duration, logger *zap.Logger) *Extractor {
	return &Extractor{
		client:  client,
		model:   model,
		timeout: timeout,
		logger:  logger,
	}
}

// extractParameters is the JSON schema the model must fill. Constraining the
// call to a function keeps the happy path free of free-text parsing.
var extractParameters = json.RawMessage(`{
	"type": "object",
	"properties": {
		"product_name": {
			"type": "string",
			"description": "Main product name or category to search for"
		},
		"max_price": {
			"type": "number",
			"description": "Maximum price in Colombian Pesos. Convert '2 millones' to 2000000, '500 mil' to 500000, 'un millón' to 1000000"
		},
		"condition": {
			"type": "string",
			"enum": ["new", "used", "any"],
			"description": "'new' for nuevo, 'used' for usado or segunda mano, 'any' when unspecified"
		},
		"num_results": {
			"type": "integer",
			"minimum": 1,
			"maximum": 50,
			"description": "Number of results desired, default 10"
		},
		"extra_filters": {
			"type": "object",
			"description": "Any additional filters mentioned in the query"
		}
	},
	"required": ["product_name"]
}`)

const systemPrompt = `Eres un asistente experto en extraer información de búsquedas de productos para Mercado Libre Colombia.

Analiza el mensaje del usuario y extrae el nombre del producto, el precio máximo, la condición y la cantidad de resultados deseada.

Reglas de precios:
- "2 millones" o "2M" → 2000000
- "500 mil" o "500k" → 500000
- "un millón" → 1000000
- "1.5 millones" → 1500000
- "menos de X", "máximo X" o "hasta X" fijan max_price; sin mención de precio no incluyas max_price

Reglas de condición:
- "nuevo" o "nueva" → "new"
- "usado", "usada" o "segunda mano" → "used"
- sin especificar o "cualquiera" → "any"

Ejemplos:
- "Busco iPhone 15 menos de 2 millones" → {product_name: "iPhone 15", max_price: 2000000, condition: "any", num_results: 10}
- "Dame 5 laptops para programar nuevas" → {product_name: "laptops para programar", condition: "new", num_results: 5}`

type extractedArgs struct {
	ProductName  string                 `json:"product_name"`
	MaxPrice     *float64               `json:"max_price"`
	Condition    string                 `json:"condition"`
	NumResults   *int                   `json:"num_results"`
	ExtraFilters map[string]interface{} `json:"extra_filters"`
}

// Extract converts raw query text into a StructuredQuery. The model is
// attempted exactly once with a fixed timeout; timeout, transport errors,
// malformed arguments and validation failures all route to the fallback
// query. The returned flag reports whether the fallback was used.
func (e *Extractor) Extract(ctx context.Context, rawText string) (domain.StructuredQuery, bool) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	query, err := e.extract(ctx, rawText)
	if err != nil {
		e.logger.Warn("Intent extraction degraded to fallback",
			zap.String("query", truncate(rawText, 80)),
			zap.Error(err),
		)
		return domain.FallbackQuery(rawText), true
	}

	e.logger.Info("Intent extracted",
		zap.String("product_name", query.ProductName),
		zap.String("condition", string(query.Condition)),
		zap.Int("num_results", query.NumResults),
	)
	return query, false
}

func (e *Extractor) extract(ctx context.Context, rawText string) (domain.StructuredQuery, error) {
	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: e.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: rawText},
		},
		Tools: []openai.Tool{{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        extractFunctionName,
				Description: "Extract product search parameters from a user query in Spanish",
				Parameters:  extractParameters,
			},
		}},
		ToolChoice: openai.ToolChoice{
			Type:     openai.ToolTypeFunction,
			Function: openai.ToolFunction{Name: extractFunctionName},
		},
		Temperature: 0.1,
	})
	if err != nil {
		return domain.StructuredQuery{}, fmt.Errorf("chat completion: %w", err)
	}

	if len(resp.Choices) == 0 || len(resp.Choices[0].Message.ToolCalls) == 0 {
		return domain.StructuredQuery{}, ErrNoToolCall
	}

	var args extractedArgs
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.ToolCalls[0].Function.Arguments), &args); err != nil {
		return domain.StructuredQuery{}, fmt.Errorf("decode tool arguments: %w", err)
	}

	condition := domain.Condition(args.Condition)
	if args.Condition == "" {
		condition = domain.ConditionAny
	}
	numResults := domain.DefaultNumResults
	if args.NumResults != nil {
		numResults = *args.NumResults
	}

	query, err := domain.NewStructuredQuery(args.ProductName, args.MaxPrice, condition, numResults, args.ExtraFilters)
	if err != nil {
		return domain.StructuredQuery{}, fmt.Errorf("%w: %v", ErrInvalidOutput, err)
	}
	return query, nil
}

func truncate(s string, n int) string {
	if runes := []rune(s); len(runes) > n {
		return string(runes[:n])
	}
	return s
}
