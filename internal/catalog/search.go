// Package catalog provides the amenity knowledge base: typed records,
// the pgvector-backed store, and free-text semantic search over it.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/ai"
)

// SimilarityThreshold is the fixed cosine-similarity cutoff for searches.
// It controls the recall/precision tradeoff; results at or below it are
// excluded by the store itself.
const SimilarityThreshold = 0.7

// searchTimeout bounds one embed-plus-search round trip.
const searchTimeout = 10 * time.Second

// ErrInvalidTopK indicates a non-positive result limit.
var ErrInvalidTopK = errors.New("top_k must be positive")

// Searcher turns free-text queries into bounded similarity searches.
// It embeds the query, then delegates ranking and threshold filtering to the
// store. No re-ranking happens here; ordering is whatever the store returns.
//
// Searcher is safe for concurrent use.
type Searcher struct {
	store    Querier
	embedder ai.Embedder
	logger   *slog.Logger
}

// NewSearcher creates a Searcher.
// logger may be nil, in which case slog.Default() is used.
func NewSearcher(store Querier, embedder ai.Embedder, logger *slog.Logger) *Searcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Searcher{
		store:    store,
		embedder: embedder,
		logger:   logger,
	}
}

// Search embeds query and returns at most topK amenities with similarity
// above SimilarityThreshold, sorted descending by similarity.
// topK <= 0 fails with ErrInvalidTopK before any store call is issued.
func (s *Searcher) Search(ctx context.Context, query string, topK int) ([]ScoredAmenity, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidTopK, topK)
	}

	queryCtx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	resp, err := s.embedder.Embed(queryCtx, &ai.EmbedRequest{
		Input: []*ai.Document{
			ai.DocumentFromText(query, nil),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding returned for query")
	}

	results, err := s.store.SearchAmenities(queryCtx, resp.Embeddings[0].Embedding, SimilarityThreshold, topK)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	s.logger.Debug("amenity search completed",
		"query_len", len(query),
		"top_k", topK,
		"result_count", len(results),
	)
	return results, nil
}

// Amenity fetches one amenity by id. Lookups go straight to the store;
// nothing is embedded.
func (s *Searcher) Amenity(ctx context.Context, id int64) (*Amenity, error) {
	return s.store.GetAmenity(ctx, id)
}

// Ping verifies the underlying store is reachable. Used by the agent
// factory's fail-fast construction check.
func (s *Searcher) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}
