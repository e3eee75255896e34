// Package googleai provides a Gemini-backed implementation of the embeddings
// client via the Google Gen AI SDK.
package googleai

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"google.golang.org/genai"

	"github.com/testvault/portal/internal/embeddings"
	vecmath "github.com/testvault/portal/pkg/embeddings"
)

var (
	// ErrEmptyInput is returned when an embedding is requested for empty input.
	ErrEmptyInput = errors.New("googleai: input text is empty")
	// ErrInvalidDims is returned when dimensions is not positive.
	ErrInvalidDims = errors.New("googleai: embedding dimensions must be positive")
	// ErrNoEmbeddingInResponse is returned when the API response contains no embedding data.
	ErrNoEmbeddingInResponse = errors.New("googleai: no embedding in response")
	// ErrDimensionMismatch is returned when the response embedding length does not match configured dimensions.
	ErrDimensionMismatch = errors.New("googleai: embedding dimension mismatch")
)

const defaultModel = "gemini-embedding-001"

// Client calls the Gemini embeddings API via the Google Gen AI SDK.
type Client struct {
	client     *genai.Client
	model      string
	dimensions int
}

var _ embeddings.Client = (*Client)(nil)

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithModel sets the embedding model name (e.g. gemini-embedding-001). Empty uses default.
func WithModel(model string) ClientOption {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
	}
}

// NewClient creates a Gemini embeddings client. dimensions must match the
// database vector column.
func NewClient(ctx context.Context, apiKey string, dimensions int, opts ...ClientOption) (*Client, error) {
	if dimensions <= 0 || dimensions > math.MaxInt32 {
		return nil, ErrInvalidDims
	}

	genaiClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("googleai client: %w", err)
	}

	client := &Client{
		client:     genaiClient,
		model:      defaultModel,
		dimensions: dimensions,
	}
	for _, opt := range opts {
		opt(client)
	}

	return client, nil
}

// Model returns the model tag stored next to vectors produced by this client.
func (c *Client) Model() string { return c.model }

// GetEmbedding returns the embedding vector for the given text.
func (c *Client) GetEmbedding(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.GetEmbeddings(ctx, []string{text})
	if err != nil {
		return nil, err
	}

	return vecs[0], nil
}

// GetEmbeddings returns embedding vectors for the given texts in one API call.
// Each returned slice length equals the configured dimensions.
func (c *Client) GetEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}

	contents := make([]*genai.Content, 0, len(texts))

	for _, text := range texts {
		text = strings.TrimSpace(text)
		if text == "" {
			return nil, ErrEmptyInput
		}

		contents = append(contents, genai.NewContentFromText(text, genai.RoleUser))
	}

	//nolint:gosec // G115: dimensions is bounded above by math.MaxInt32 at construction
	dimInt32 := int32(c.dimensions)

	resp, err := c.client.Models.EmbedContent(ctx, c.model, contents, &genai.EmbedContentConfig{
		OutputDimensionality: &dimInt32,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini embedding: %w", err)
	}

	if len(resp.Embeddings) != len(texts) {
		return nil, ErrNoEmbeddingInResponse
	}

	out := make([][]float32, len(resp.Embeddings))

	for i, emb := range resp.Embeddings {
		if len(emb.Values) != c.dimensions {
			return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(emb.Values), c.dimensions)
		}

		vec := make([]float32, len(emb.Values))
		copy(vec, emb.Values)
		// Gemini output below the model's native dimensionality is not unit
		// length; cosine search expects it to be.
		vecmath.NormalizeL2(vec)
		out[i] = vec
	}

	return out, nil
}
