package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"math/rand"
	"net/http"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

const embeddingModel = "text-embedding-3-large"

// EmbedClient generates embeddings through the model gateway.
// The gateway is asked for vectors truncated to the store dimension so
// every vector matches the similarity index regardless of model default.
type EmbedClient struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewEmbeddingBackend selects the embedding variant once at startup.
func NewEmbeddingBackend(cfg domain.BackendsConfig) domain.EmbeddingBackend {
	if cfg.ModelAPIKey == "" {
		return &DegradedEmbedder{}
	}
	timeout := time.Duration(cfg.EmbedTimeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &EmbedClient{
		apiKey:  cfg.ModelAPIKey,
		baseURL: cfg.ModelBaseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type embedRequest struct {
	Model      string `json:"model"`
	Input      string `json:"input"`
	Dimensions int    `json:"dimensions"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed returns a vector of the fixed store dimension.
func (c *EmbedClient) Embed(ctx context.Context, text string) ([]float32, error) {
	payload := embedRequest{
		Model:      embeddingModel,
		Input:      text,
		Dimensions: domain.EmbeddingDimension,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCollaboratorUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: embedding gateway returned %d", domain.ErrCollaboratorUnavailable, resp.StatusCode)
	}

	var parsed embedResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode embed response: %w", err)
	}
	if len(parsed.Data) == 0 {
		return nil, fmt.Errorf("%w: no embedding returned", domain.ErrUnparsableResponse)
	}

	vec := parsed.Data[0].Embedding
	if len(vec) != domain.EmbeddingDimension {
		return nil, fmt.Errorf("expected %d dimensions, got %d", domain.EmbeddingDimension, len(vec))
	}
	return vec, nil
}

// Dimension returns the fixed vector length.
func (c *EmbedClient) Dimension() int { return domain.EmbeddingDimension }

// Mode reports the live variant.
func (c *EmbedClient) Mode() domain.BackendMode { return domain.ModeLive }

// DegradedEmbedder derives vectors deterministically from the input
// text, so identical text always maps to the identical vector. Seed
// patterns and queries therefore remain comparable across restarts.
type DegradedEmbedder struct{}

// Embed returns the deterministic vector for text.
func (d *DegradedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return DeterministicVector(text), nil
}

// Dimension returns the fixed vector length.
func (d *DegradedEmbedder) Dimension() int { return domain.EmbeddingDimension }

// Mode reports the degraded variant.
func (d *DegradedEmbedder) Mode() domain.BackendMode { return domain.ModeDegraded }

// DeterministicVector hashes text into a seed and expands it to a
// pseudo-random vector of the store dimension. Shared with the seed
// patterns so cold-store similarity search behaves consistently.
func DeterministicVector(text string) []float32 {
	h := fnv.New64a()
	h.Write([]byte(text))
	rng := rand.New(rand.NewSource(int64(h.Sum64())))

	vec := make([]float32, domain.EmbeddingDimension)
	for i := range vec {
		vec[i] = rng.Float32()
	}
	return vec
}
