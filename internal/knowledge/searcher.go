package knowledge

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/CIRWEL/unitares-sub004/internal/model"
)

// SemanticResult is a discovery id and its raw similarity score from an
// optional vector index. The Service hydrates full Discovery records from
// the primary store, which remains the source of truth.
type SemanticResult struct {
	DiscoveryID uuid.UUID
	Score       float32
}

// Searcher is the capability interface for an optional semantic search
// backend (pgvector, qdrant, ...). Without one, SemanticSearch returns
// ErrNoSearcher; the lexical/FTS Search path never uses a Searcher.
// Implementations must be safe for concurrent use.
type Searcher interface {
	Search(ctx context.Context, embedding []float32, limit int) ([]SemanticResult, error)
	Healthy(ctx context.Context) error
}

// ErrNoSearcher is returned by SemanticSearch when the Service was built
// without a Searcher.
var ErrNoSearcher = errors.New("knowledge: no semantic searcher configured")

// SemanticHydrated pairs a fully-loaded Discovery with its semantic score.
type SemanticHydrated struct {
	Discovery model.Discovery
	Score     float32
}

// SemanticSearch finds discoveries by embedding similarity through the
// configured Searcher, then hydrates each hit from the primary store. Hits
// that no longer exist in the store (deleted since indexing) are silently
// dropped rather than failing the whole request.
func (s *Service) SemanticSearch(ctx context.Context, embedding []float32, limit int) ([]SemanticHydrated, error) {
	if s.searcher == nil {
		return nil, ErrNoSearcher
	}

	hits, err := s.searcher.Search(ctx, embedding, limit)
	if err != nil {
		return nil, err
	}

	out := make([]SemanticHydrated, 0, len(hits))
	for _, h := range hits {
		d, err := s.store.GetDiscovery(ctx, h.DiscoveryID)
		if err != nil {
			continue
		}
		out = append(out, SemanticHydrated{Discovery: d, Score: h.Score})
	}
	return out, nil
}
