package embed

import (
	"context"
	"errors"
	"fmt"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/toricodesthings/pdf-quiz-extraction-service/internal/metrics"
	"github.com/toricodesthings/pdf-quiz-extraction-service/internal/types"
)

// ErrSearchDisabled is returned by Search when no embedder or store is wired.
var ErrSearchDisabled = errors.New("semantic search is not configured")

// Indexer embeds questions, marks near-duplicates and stores the vectors.
// Either dependency may be nil: without an embedder Index is a no-op, and
// without a store vectors are used for duplicate detection only.
type Indexer struct {
	emb      Embedder
	store    Store
	dupScore float64
	log      *zap.Logger
}

func NewIndexer(emb Embedder, store Store, dupScore float64, log *zap.Logger) *Indexer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Indexer{emb: emb, store: store, dupScore: dupScore, log: log}
}

func (ix *Indexer) Enabled() bool { return ix != nil && ix.emb != nil }

func (ix *Indexer) Searchable() bool { return ix.Enabled() && ix.store != nil }

// BreakerState reports the remote embedder's circuit breaker ("closed",
// "half-open", "open"), or "" when the embedder has none.
func (ix *Indexer) BreakerState() string {
	if !ix.Enabled() {
		return ""
	}
	if b, ok := ix.emb.(interface{ State() gobreaker.State }); ok {
		return b.State().String()
	}
	return ""
}

// Index embeds qs and sets DuplicateOf on questions whose cosine similarity
// to an earlier question in the same document reaches the duplicate score.
// It returns the number of questions embedded. Every failure is wrapped in
// ErrUnavailable; qs is left unchanged in that case.
func (ix *Indexer) Index(ctx context.Context, f File, qs []types.Question) (int, error) {
	if !ix.Enabled() || len(qs) == 0 {
		return 0, nil
	}
	texts := make([]string, len(qs))
	for i, q := range qs {
		texts[i] = QuestionText(q)
	}
	vecs, err := ix.emb.Embed(ctx, texts)
	if err != nil {
		return 0, ix.unavailable("embed", err)
	}
	if len(vecs) != len(qs) {
		return 0, ix.unavailable("embed", fmt.Errorf("got %d vectors for %d questions", len(vecs), len(qs)))
	}

	dups := make([]string, len(qs))
	for i := range vecs {
		for j := 0; j < i; j++ {
			if dups[j] == "" && Cosine(vecs[i], vecs[j]) >= ix.dupScore {
				dups[i] = qs[j].ID
				break
			}
		}
	}

	if ix.store != nil {
		recs := make([]Record, len(qs))
		for i, q := range qs {
			q.DuplicateOf = dups[i]
			recs[i] = Record{Question: q, ContentHash: ContentHash(q), Vector: vecs[i]}
		}
		if err := ix.store.Save(ctx, f, recs); err != nil {
			return 0, ix.unavailable("store", err)
		}
	}

	for i := range qs {
		qs[i].DuplicateOf = dups[i]
	}
	return len(qs), nil
}

// Search embeds query and returns the closest stored questions.
func (ix *Indexer) Search(ctx context.Context, query string, limit int) ([]types.SearchHit, error) {
	if !ix.Searchable() {
		return nil, ErrSearchDisabled
	}
	vecs, err := ix.emb.Embed(ctx, []string{query})
	if err != nil || len(vecs) != 1 {
		if err == nil {
			err = errors.New("no vector for query")
		}
		return nil, ix.unavailable("embed", err)
	}
	hits, err := ix.store.Search(ctx, vecs[0], limit)
	if err != nil {
		return nil, ix.unavailable("search", err)
	}
	return hits, nil
}

func (ix *Indexer) Close() {
	if ix != nil && ix.store != nil {
		ix.store.Close()
	}
}

func (ix *Indexer) unavailable(stage string, err error) error {
	metrics.Anomalies.WithLabelValues(metrics.AnomalyEmbedUnavailable).Inc()
	ix.log.Warn("embedding unavailable", zap.String("stage", stage), zap.Error(err))
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, stage, err)
}
