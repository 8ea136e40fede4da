// Package embed computes question embeddings, flags near-duplicates and
// persists vectors for semantic search.
package embed

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/toricodesthings/pdf-quiz-extraction-service/internal/config"
	"github.com/toricodesthings/pdf-quiz-extraction-service/internal/types"
)

// ErrUnavailable wraps every embedding or storage failure. Callers treat it
// as soft: questions are returned without embeddings.
var ErrUnavailable = errors.New("embedding unavailable")

// Embedder maps texts to fixed-size vectors. Implementations must be safe
// for concurrent use.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// New builds the embedder selected by cfg.EmbedProvider. It returns nil for
// "none".
func New(cfg config.Config) (Embedder, error) {
	switch strings.ToLower(cfg.EmbedProvider) {
	case "", "none":
		return nil, nil
	case "hash":
		return NewHash(cfg.EmbedDim), nil
	case "http":
		if cfg.EmbedEndpoint == "" {
			return nil, errors.New("EMBED_ENDPOINT is required for the http provider")
		}
		return NewHTTP(cfg.EmbedEndpoint, cfg.EmbedModel, cfg.EmbedAPIKey, cfg.EmbedDim, cfg.EmbedTimeout), nil
	default:
		return nil, fmt.Errorf("unknown embed provider %q", cfg.EmbedProvider)
	}
}

// QuestionText is what gets embedded for a question: the stem followed by the
// option texts.
func QuestionText(q types.Question) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(q.Question))
	for _, o := range q.Options {
		b.WriteString("\n")
		b.WriteString(o.Label)
		b.WriteString(". ")
		b.WriteString(strings.TrimSpace(o.Text))
	}
	return b.String()
}

// Cosine returns the cosine similarity of a and b, or 0 when either is zero
// or the lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	n := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= n
	}
}
