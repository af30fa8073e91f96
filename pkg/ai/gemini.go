package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/api/option"
)

const providerGemini = "gemini"

// GeminiConfig defines configuration options for the Gemini scorer.
type GeminiConfig struct {
	APIKey      string
	Model       string
	MaxTokens   int32
	Temperature float32
	Timeout     time.Duration
	Logger      zerolog.Logger

	// ClientOptions are appended after the API key, e.g. to point the client at another endpoint.
	ClientOptions []option.ClientOption
}

// GeminiScorer implements Scorer against the Google Gemini API.
type GeminiScorer struct {
	client *genai.Client
	model  *genai.GenerativeModel
	cfg    GeminiConfig
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewGeminiScorer builds a Gemini-backed scorer. Call Close when done.
func NewGeminiScorer(ctx context.Context, cfg GeminiConfig) (*GeminiScorer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-1.5-flash"
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 1500
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	opts := append([]option.ClientOption{option.WithAPIKey(cfg.APIKey)}, cfg.ClientOptions...)
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize gemini client: %w", err)
	}

	model := client.GenerativeModel(cfg.Model)
	model.SetTemperature(cfg.Temperature)
	model.SetMaxOutputTokens(cfg.MaxTokens)
	model.ResponseMIMEType = "application/json"
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(scoringSystemPrompt())}}

	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	return &GeminiScorer{
		client: client,
		model:  model,
		cfg:    cfg,
		tracer: otel.Tracer("github.com/noah-isme/hackhub-api/pkg/ai/gemini"),
		logger: logger.With().Str("component", "gemini_scorer").Logger(),
	}, nil
}

// Score sends the composite prompt to Gemini and parses the structured response.
func (s *GeminiScorer) Score(parent context.Context, input ScoringInput) (ScoringResult, error) {
	ctx, span := s.tracer.Start(parent, "gemini.score", trace.WithAttributes(
		attribute.String("model", s.cfg.Model),
	))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	start := time.Now()
	resp, err := s.model.GenerateContent(ctx, genai.Text(buildScoringPrompt(input)))
	scoringDuration.WithLabelValues(providerGemini, s.cfg.Model).Observe(time.Since(start).Seconds())
	if err != nil {
		return ScoringResult{}, s.fail(span, upstreamError(ctx, providerGemini, err))
	}

	content := responseText(resp)
	if content == "" {
		return ScoringResult{}, s.fail(span, malformedError(providerGemini, errors.New("no text candidates returned from gemini")))
	}

	result, err := parseScoringResponse(providerGemini, content)
	if err != nil {
		scoringErr, _ := AsScoringError(err)
		return ScoringResult{}, s.fail(span, scoringErr)
	}

	result.Model = s.cfg.Model
	s.logger.Debug().Float64("score", result.Score).Msg("submission scored")
	return result, nil
}

// Close releases the underlying client connection.
func (s *GeminiScorer) Close() error {
	return s.client.Close()
}

func (s *GeminiScorer) fail(span trace.Span, err *ScoringError) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, string(err.Kind))
	return recordFailure(s.cfg.Model, err)
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	builder := strings.Builder{}
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				builder.WriteString(string(text))
			}
		}
		if builder.Len() > 0 {
			break
		}
	}
	return strings.TrimSpace(builder.String())
}
