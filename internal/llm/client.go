package llm

import (
	"context"
	"fmt"
	"strings"

	vertex "cloud.google.com/go/vertexai/genai"
	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Generation is a model reply with its token usage.
type Generation struct {
	Text           string
	Model          string
	PromptTokens   int
	ResponseTokens int
	TotalTokens    int
	// Estimated is set when the provider returned no usage metadata.
	Estimated bool
}

// Client sends a prompt to a model.
type Client interface {
	Generate(ctx context.Context, prompt string) (*Generation, error)
	// Model is the model name Generate calls.
	Model() string
	Close() error
}

// NewClient returns the client for config.Provider.
func NewClient(ctx context.Context, config *Config) (Client, error) {
	if config == nil {
		config = DefaultConfig()
	}

	switch config.Provider {
	case ProviderGemini, "":
		return NewGeminiClient(ctx, config)
	case ProviderVertex:
		return NewVertexClient(ctx, config)
	default:
		return nil, fmt.Errorf("unsupported LLM provider %q", config.Provider)
	}
}

// GeminiClient calls the Gemini API.
type GeminiClient struct {
	client *genai.Client
	config *Config
}

// NewGeminiClient creates a Gemini API client from config.APIKey.
func NewGeminiClient(ctx context.Context, config *Config) (*GeminiClient, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if config.ExtractionModel() == "" {
		return nil, fmt.Errorf("no model configured for tier %s", config.Tier)
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(config.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiClient{client: client, config: config}, nil
}

// Generate sends prompt to the extraction model.
func (c *GeminiClient) Generate(ctx context.Context, prompt string) (*Generation, error) {
	ctx, cancel := withTimeout(ctx, c.config)
	defer cancel()

	name := c.Model()
	model := c.client.GenerativeModel(name)
	model.SetTemperature(c.config.Temperature)

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return nil, &APICallError{Provider: ProviderGemini, Model: name, Message: "generate content failed", Cause: err}
	}
	text, err := geminiText(resp)
	if err != nil {
		return nil, &APICallError{Provider: ProviderGemini, Model: name, Message: "unusable response", Cause: err}
	}

	gen := &Generation{Text: text, Model: name}
	if u := resp.UsageMetadata; u != nil {
		gen.PromptTokens = int(u.PromptTokenCount)
		gen.ResponseTokens = int(u.CandidatesTokenCount)
		gen.TotalTokens = int(u.TotalTokenCount)
	}
	fillUsage(gen, prompt)
	return gen, nil
}

// Model returns the extraction model name.
func (c *GeminiClient) Model() string {
	return c.config.ExtractionModel()
}

// Close releases the underlying connection.
func (c *GeminiClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

func geminiText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates in response")
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("no content in response")
	}

	var parts []string
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			parts = append(parts, string(text))
		}
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("no text parts in response")
	}
	return strings.Join(parts, ""), nil
}

// VertexClient calls Gemini models through Vertex AI.
type VertexClient struct {
	client *vertex.Client
	config *Config
}

// NewVertexClient creates a Vertex AI client for config.Project and config.Region.
func NewVertexClient(ctx context.Context, config *Config) (*VertexClient, error) {
	if config.Project == "" || config.Region == "" {
		return nil, fmt.Errorf("vertex: project and region cannot be empty")
	}
	if config.ExtractionModel() == "" {
		return nil, fmt.Errorf("no model configured for tier %s", config.Tier)
	}

	client, err := vertex.NewClient(ctx, config.Project, config.Region)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vertex AI client: %w", err)
	}

	return &VertexClient{client: client, config: config}, nil
}

// Generate sends prompt to the extraction model.
func (c *VertexClient) Generate(ctx context.Context, prompt string) (*Generation, error) {
	ctx, cancel := withTimeout(ctx, c.config)
	defer cancel()

	name := c.Model()
	model := c.client.GenerativeModel(name)
	model.SetTemperature(c.config.Temperature)

	resp, err := model.GenerateContent(ctx, vertex.Text(prompt))
	if err != nil {
		return nil, &APICallError{Provider: ProviderVertex, Model: name, Message: "generate content failed", Cause: err}
	}
	text, err := vertexText(resp)
	if err != nil {
		return nil, &APICallError{Provider: ProviderVertex, Model: name, Message: "unusable response", Cause: err}
	}

	gen := &Generation{Text: text, Model: name}
	if u := resp.UsageMetadata; u != nil {
		gen.PromptTokens = int(u.PromptTokenCount)
		gen.ResponseTokens = int(u.CandidatesTokenCount)
		gen.TotalTokens = int(u.TotalTokenCount)
	}
	fillUsage(gen, prompt)
	return gen, nil
}

// Model returns the extraction model name.
func (c *VertexClient) Model() string {
	return c.config.ExtractionModel()
}

// Close releases the underlying connection.
func (c *VertexClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

func vertexText(resp *vertex.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates in response")
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("no content in response")
	}

	var sb strings.Builder
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(vertex.Text); ok {
			sb.WriteString(string(text))
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("no text parts in response")
	}
	return sb.String(), nil
}

// fillUsage estimates whatever counts the provider left at zero.
func fillUsage(gen *Generation, prompt string) {
	if gen.PromptTokens == 0 {
		gen.PromptTokens = EstimateTokens(prompt)
		gen.Estimated = true
	}
	if gen.ResponseTokens == 0 {
		gen.ResponseTokens = EstimateTokens(gen.Text)
		gen.Estimated = true
	}
	if gen.TotalTokens == 0 {
		gen.TotalTokens = gen.PromptTokens + gen.ResponseTokens
	}
}

func withTimeout(ctx context.Context, config *Config) (context.Context, context.CancelFunc) {
	if config.Timeout > 0 {
		return context.WithTimeout(ctx, config.Timeout)
	}
	return context.WithCancel(ctx)
}
