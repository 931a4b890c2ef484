package ai

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	genai "github.com/google/generative-ai-go/genai"
)

// GeminiClient wraps the Google Generative AI SDK with a circuit breaker
// and a rate limiter shared by all callers.
type GeminiClient struct {
	client         *genai.Client
	breaker        *gobreaker.CircuitBreaker
	rateLimiter    *rate.Limiter
	generateModel  string
	embeddingModel string
}

type RateLimits struct {
	RPM int // Requests per minute
	TPM int // Tokens per minute
	RPD int // Requests per day
}

func NewGeminiClient(ctx context.Context, apiKey, generateModel, embeddingModel, tier string) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}

	limits := getRateLimits(tier)

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "GeminiAPI",
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("Circuit breaker %s: %s -> %s", name, from, to)
		},
	})

	// RPM limit with some buffer
	rateLimiter := rate.NewLimiter(rate.Limit(float64(limits.RPM)*0.9/60.0), limits.RPM/10+1)

	return &GeminiClient{
		client:         client,
		breaker:        breaker,
		rateLimiter:    rateLimiter,
		generateModel:  generateModel,
		embeddingModel: embeddingModel,
	}, nil
}

func getRateLimits(tier string) RateLimits {
	switch tier {
	case "free":
		return RateLimits{RPM: 10, TPM: 250000, RPD: 250}
	case "tier1":
		return RateLimits{RPM: 1000, TPM: 1000000, RPD: 10000}
	case "tier2":
		return RateLimits{RPM: 2000, TPM: 4000000, RPD: 50000}
	default:
		return RateLimits{RPM: 10, TPM: 250000, RPD: 250}
	}
}

// Embed returns an embedding vector for the given text.
func (gc *GeminiClient) Embed(ctx context.Context, text string) ([]float32, error) {
	tracer := otel.Tracer("gemini-client")
	ctx, span := tracer.Start(ctx, "gemini.embed_content")
	defer span.End()

	span.SetAttributes(
		attribute.String("gemini.model", gc.embeddingModel),
		attribute.Int("gemini.input_chars", len(text)),
	)

	if err := gc.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	result, err := gc.breaker.Execute(func() (interface{}, error) {
		model := gc.client.EmbeddingModel(gc.embeddingModel)
		resp, err := model.EmbedContent(ctx, genai.Text(text))
		if err != nil {
			return nil, err
		}
		if resp.Embedding == nil {
			return nil, errors.New("no embedding returned")
		}
		return resp.Embedding.Values, nil
	})
	if err != nil {
		span.SetAttributes(attribute.Bool("gemini.error", true))
		return nil, err
	}

	return result.([]float32), nil
}

// Generate runs a single batch completion at the given temperature.
func (gc *GeminiClient) Generate(ctx context.Context, prompt string, temperature float32) (string, error) {
	tracer := otel.Tracer("gemini-client")
	ctx, span := tracer.Start(ctx, "gemini.generate_content")
	defer span.End()

	span.SetAttributes(
		attribute.String("gemini.model", gc.generateModel),
		attribute.Float64("gemini.temperature", float64(temperature)),
		attribute.Int("gemini.prompt_chars", len(prompt)),
	)

	if err := gc.rateLimiter.Wait(ctx); err != nil {
		return "", err
	}

	result, err := gc.breaker.Execute(func() (interface{}, error) {
		model := gc.client.GenerativeModel(gc.generateModel)
		model.SetTemperature(temperature)

		resp, err := model.GenerateContent(ctx, genai.Text(prompt))
		if err != nil {
			return nil, err
		}

		text := extractText(resp)
		if text == "" {
			return nil, errors.New("no candidates in response")
		}
		return text, nil
	})
	if err != nil {
		span.SetAttributes(attribute.Bool("gemini.error", true))
		return "", fmt.Errorf("gemini generate failed: %w", err)
	}

	return result.(string), nil
}

// GenerateStream runs an incremental completion, invoking emit for each
// text fragment in generation order. A non-nil error from emit stops the
// stream and releases the underlying call.
func (gc *GeminiClient) GenerateStream(ctx context.Context, prompt string, temperature float32, emit func(fragment string) error) error {
	tracer := otel.Tracer("gemini-client")
	ctx, span := tracer.Start(ctx, "gemini.generate_content_stream")
	defer span.End()

	span.SetAttributes(
		attribute.String("gemini.model", gc.generateModel),
		attribute.Float64("gemini.temperature", float64(temperature)),
	)

	if err := gc.rateLimiter.Wait(ctx); err != nil {
		return err
	}

	_, err := gc.breaker.Execute(func() (interface{}, error) {
		model := gc.client.GenerativeModel(gc.generateModel)
		model.SetTemperature(temperature)

		iter := model.GenerateContentStream(ctx, genai.Text(prompt))
		for {
			resp, err := iter.Next()
			if err == iterator.Done {
				return nil, nil
			}
			if err != nil {
				return nil, err
			}
			if fragment := extractText(resp); fragment != "" {
				if err := emit(fragment); err != nil {
					return nil, err
				}
			}
		}
	})
	if err != nil {
		span.SetAttributes(attribute.Bool("gemini.error", true))
		return fmt.Errorf("gemini stream failed: %w", err)
	}

	return nil
}

func (gc *GeminiClient) Close() error {
	return gc.client.Close()
}

func extractText(resp *genai.GenerateContentResponse) string {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}

	text := ""
	for _, part := range resp.Candidates[0].Content.Parts {
		if textPart, ok := part.(genai.Text); ok {
			text += string(textPart)
		}
	}
	return text
}
