package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/sony/gobreaker"
)

// HTTP calls an OpenAI-compatible /v1/embeddings endpoint, such as a
// text-embeddings-inference server hosting all-MiniLM-L6-v2. Calls go through
// a circuit breaker so a dead embedding server costs one fast failure per
// request instead of a timeout.
type HTTP struct {
	Endpoint string
	Model    string
	APIKey   string
	Client   *http.Client

	dim int
	cb  *gobreaker.CircuitBreaker
}

func NewHTTP(endpoint, model, apiKey string, dim int, timeout time.Duration) *HTTP {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTP{
		Endpoint: endpoint,
		Model:    model,
		APIKey:   apiKey,
		Client:   &http.Client{Timeout: timeout},
		dim:      dim,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "embeddings",
			MaxRequests: 3,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.Requests >= 3 && float64(c.TotalFailures)/float64(c.Requests) >= 0.6
			},
		}),
	}
}

func (h *HTTP) Dimension() int { return h.dim }

// State exposes the breaker state; /health reports it through the Indexer.
func (h *HTTP) State() gobreaker.State { return h.cb.State() }

type embeddingRequest struct {
	Model string   `json:"model,omitempty"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (h *HTTP) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out, err := h.cb.Execute(func() (interface{}, error) {
		return h.call(ctx, texts)
	})
	if err != nil {
		return nil, err
	}
	return out.([][]float32), nil
}

func (h *HTTP) call(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(embeddingRequest{Model: h.Model, Input: texts})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if h.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.APIKey)
	}

	resp, err := h.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("embedding server error %d: %s", resp.StatusCode, truncate(string(raw), 200))
	}

	var parsed embeddingResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode embeddings: %w", err)
	}
	if len(parsed.Data) != len(texts) {
		return nil, fmt.Errorf("embedding server returned %d vectors for %d inputs", len(parsed.Data), len(texts))
	}
	sort.Slice(parsed.Data, func(i, j int) bool { return parsed.Data[i].Index < parsed.Data[j].Index })

	vecs := make([][]float32, len(parsed.Data))
	for i, d := range parsed.Data {
		if h.dim > 0 && len(d.Embedding) != h.dim {
			return nil, fmt.Errorf("embedding dimension %d, want %d", len(d.Embedding), h.dim)
		}
		vecs[i] = d.Embedding
	}
	return vecs, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
