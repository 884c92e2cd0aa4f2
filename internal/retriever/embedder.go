package retriever

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"math"
	"net/http"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	taberrors "tabula/internal/errors"
	"tabula/internal/utils"
)

const maxEmbedBatch = 100

// EmbedderConfig holds embedding configuration.
type EmbedderConfig struct {
	Model     string // default text-embedding-3-small
	APIKey    string
	BaseURL   string // default https://api.openai.com/v1
	CacheSize int    // LRU entries, default 10000
}

// Embedder generates text embeddings.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

var modelDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// openaiEmbedder talks to an OpenAI-compatible embeddings endpoint with an
// LRU cache in front.
type openaiEmbedder struct {
	config     EmbedderConfig
	httpClient *http.Client
	cache      *lru.Cache[string, []float32]
	logger     *utils.Logger
}

// NewEmbedder creates an embedder for the given endpoint.
func NewEmbedder(config EmbedderConfig) (Embedder, error) {
	if config.Model == "" {
		config.Model = "text-embedding-3-small"
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://api.openai.com/v1"
	}
	if config.CacheSize == 0 {
		config.CacheSize = 10000
	}

	cache, err := lru.New[string, []float32](config.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create cache: %w", err)
	}

	return &openaiEmbedder{
		config:     config,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		cache:      cache,
		logger:     utils.NewComponentLogger("embedder"),
	}, nil
}

func (e *openaiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if cached, ok := e.cache.Get(text); ok {
		return cached, nil
	}
	embeddings, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

func (e *openaiEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("no texts provided")
	}
	if len(texts) > maxEmbedBatch {
		return nil, fmt.Errorf("batch size exceeds limit: %d > %d", len(texts), maxEmbedBatch)
	}

	results := make([][]float32, len(texts))
	var uncachedIndices []int
	var uncachedTexts []string
	for i, text := range texts {
		if cached, ok := e.cache.Get(text); ok {
			results[i] = cached
		} else {
			uncachedIndices = append(uncachedIndices, i)
			uncachedTexts = append(uncachedTexts, text)
		}
	}
	if len(uncachedTexts) == 0 {
		return results, nil
	}

	embeddings, err := taberrors.RetryWithResultAndLog(ctx, taberrors.DefaultRetryConfig(), func(ctx context.Context) ([][]float32, error) {
		return e.callAPI(ctx, uncachedTexts)
	}, e.logger)
	if err != nil {
		return nil, fmt.Errorf("embed batch: %w", err)
	}

	for i, idx := range uncachedIndices {
		e.cache.Add(texts[idx], embeddings[i])
		results[idx] = embeddings[i]
	}
	return results, nil
}

func (e *openaiEmbedder) Dimensions() int {
	if dims, ok := modelDimensions[e.config.Model]; ok {
		return dims
	}
	return 1536
}

func (e *openaiEmbedder) callAPI(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(map[string]any{
		"model": e.config.Model,
		"input": texts,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.config.BaseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.config.APIKey)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		apiErr := fmt.Errorf("embeddings API error %d: %s", resp.StatusCode, string(raw))
		if taberrors.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, &taberrors.TransientError{Err: apiErr, StatusCode: resp.StatusCode}
		}
		return nil, &taberrors.PermanentError{Err: apiErr, StatusCode: resp.StatusCode}
	}

	var apiResp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	embeddings := make([][]float32, len(texts))
	for _, item := range apiResp.Data {
		if item.Index < 0 || item.Index >= len(embeddings) {
			return nil, fmt.Errorf("invalid embedding index: %d", item.Index)
		}
		embeddings[item.Index] = item.Embedding
	}
	return embeddings, nil
}

// mockEmbedder produces deterministic pseudo-embeddings from a text hash.
// It backs the mock provider and keeps tests off the network.
type mockEmbedder struct {
	dims int
}

// NewMockEmbedder creates a deterministic offline embedder.
func NewMockEmbedder(dims int) Embedder {
	if dims <= 0 {
		dims = 64
	}
	return &mockEmbedder{dims: dims}
}

func (m *mockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, m.dims)
	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()
	var norm float64
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		v := float32(int64(seed>>11)) / float32(1<<52)
		vec[i] = v
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec, nil
}

func (m *mockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := m.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (m *mockEmbedder) Dimensions() int {
	return m.dims
}
