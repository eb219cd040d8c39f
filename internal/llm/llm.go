// Package llm wraps the Gemini SDK behind the small completion and
// embedding contracts the pipeline depends on.
package llm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"google.golang.org/genai"

	"snitch/internal/core"
)

const (
	// DefaultModel is the default Gemini model for generation.
	DefaultModel = "gemini-flash-lite-latest"
	// DefaultEmbeddingModel is the default model for generating embeddings.
	DefaultEmbeddingModel = "gemini-embedding-001"
	// DefaultEmbeddingDimensions is the output dimension for embeddings (Matryoshka).
	DefaultEmbeddingDimensions = int32(768)
	// DefaultTemperature is the sampling temperature when the config leaves
	// ai.gemini.temperature unset.
	DefaultTemperature = float32(0.7)
)

// CompletionRequest is one bounded call to the text-completion service.
type CompletionRequest struct {
	System      string        // System prompt (persona framing), may be empty
	Prompt      string        // User prompt
	MaxTokens   int32         // Generation cap; 0 uses the client default
	Temperature float32       // Sampling temperature; 0 uses the client default
	Timeout     time.Duration // Per-call deadline; 0 uses the client default
}

// CompletionClient is the text-completion collaborator contract. The
// pipeline depends on this interface so stages can be tested with fakes.
type CompletionClient interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// Embedder turns text into a fixed-length vector, deterministic for a fixed
// model version.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float64, error)
}

// Client implements CompletionClient and Embedder against Gemini.
type Client struct {
	modelName      string
	embeddingModel string
	maxTokens      int32
	temperature    float32
	timeout        time.Duration
	gClient        *genai.Client
}

// NewClient creates a new LLM client. The API key is read from the
// environment (GEMINI_API_KEY and variants) or viper (ai.gemini.api_key).
func NewClient(modelName string) (*Client, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		if apiKey = os.Getenv("GOOGLE_GEMINI_API_KEY"); apiKey == "" {
			if apiKey = os.Getenv("GOOGLE_AI_API_KEY"); apiKey == "" {
				apiKey = viper.GetString("ai.gemini.api_key")
			}
		}
	}
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required. Set GEMINI_API_KEY or ai.gemini.api_key in config")
	}

	if modelName == "" {
		modelName = viper.GetString("ai.gemini.model")
		if modelName == "" {
			modelName = DefaultModel
		}
	}
	embeddingModel := viper.GetString("ai.gemini.embedding_model")
	if embeddingModel == "" {
		embeddingModel = DefaultEmbeddingModel
	}

	maxTokens := viper.GetInt32("ai.gemini.max_tokens")
	if maxTokens == 0 {
		maxTokens = 2048
	}
	temperature := float32(viper.GetFloat64("ai.gemini.temperature"))
	if temperature <= 0 {
		temperature = DefaultTemperature
	}
	timeout, err := time.ParseDuration(viper.GetString("ai.gemini.timeout"))
	if err != nil || timeout <= 0 {
		timeout = 30 * time.Second
	}

	gClient, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Client{
		modelName:      modelName,
		embeddingModel: embeddingModel,
		maxTokens:      maxTokens,
		temperature:    temperature,
		timeout:        timeout,
		gClient:        gClient,
	}, nil
}

// resolveRequest fills zero-valued request fields from the client defaults.
func (c *Client) resolveRequest(req CompletionRequest) (maxTokens int32, temperature float32, timeout time.Duration) {
	maxTokens = req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}
	temperature = req.Temperature
	if temperature <= 0 {
		temperature = c.temperature
	}
	timeout = req.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}
	return maxTokens, temperature, timeout
}

// Complete issues one generation call with a deadline and classifies
// failures into the transient taxonomy.
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	maxTokens, temperature, timeout := c.resolveRequest(req)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cfg := &genai.GenerateContentConfig{
		MaxOutputTokens: maxTokens,
		Temperature:     genai.Ptr(temperature),
	}
	if req.System != "" {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.System}},
		}
	}

	contents := []*genai.Content{{
		Parts: []*genai.Part{{Text: req.Prompt}},
		Role:  "user",
	}}

	resp, err := c.gClient.Models.GenerateContent(ctx, c.modelName, contents, cfg)
	if err != nil {
		return "", classify(err)
	}

	text := resp.Text()
	if text == "" {
		return "", core.NewTransientError(core.FailureInvalidResponseShape, fmt.Errorf("empty response from model"))
	}

	return text, nil
}

// GenerateEmbedding generates a vector embedding for the given text.
// Uses Matryoshka truncation to a fixed 768 dimensions.
func (c *Client) GenerateEmbedding(ctx context.Context, text string) ([]float64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	contents := []*genai.Content{{
		Parts: []*genai.Part{{Text: text}},
		Role:  "user",
	}}

	dims := DefaultEmbeddingDimensions
	cfg := &genai.EmbedContentConfig{
		OutputDimensionality: &dims,
	}

	resp, err := c.gClient.Models.EmbedContent(ctx, c.embeddingModel, contents, cfg)
	if err != nil {
		return nil, classify(err)
	}

	if resp == nil || len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil {
		return nil, core.NewTransientError(core.FailureInvalidResponseShape, fmt.Errorf("no embedding values returned"))
	}

	values := resp.Embeddings[0].Values
	embedding := make([]float64, len(values))
	for i, val := range values {
		embedding[i] = float64(val)
	}

	return embedding, nil
}

// ModelName returns the configured generation model.
func (c *Client) ModelName() string { return c.modelName }

// classify maps SDK errors onto the transient failure taxonomy.
func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return core.NewTransientError(core.FailureTimeout, err)
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == 429:
			return core.NewTransientError(core.FailureRateLimited, err)
		case apiErr.Code >= 500:
			return core.NewTransientError(core.FailureServiceUnavailable, err)
		}
		return fmt.Errorf("completion request rejected: %w", err)
	}

	// Network-level failures come back as plain errors.
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "deadline") || strings.Contains(msg, "timeout"):
		return core.NewTransientError(core.FailureTimeout, err)
	case strings.Contains(msg, "connection") || strings.Contains(msg, "unavailable"):
		return core.NewTransientError(core.FailureServiceUnavailable, err)
	}
	return core.NewTransientError(core.FailureServiceUnavailable, err)
}
