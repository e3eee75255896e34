package search

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/testvault/portal/internal/embeddings"
	"github.com/testvault/portal/internal/models"
)

// shortQueryFloor is the similarity floor for queries of at most two content
// words. Short text embeddings cluster loosely, so the usual floor would
// discard most genuine matches.
const shortQueryFloor = 0.2

// NearestSearcher is the vector-query surface of the entities repository.
type NearestSearcher interface {
	NearestByEmbedding(
		ctx context.Context, kind models.EntityKind, model string, queryEmbedding []float32,
		allowIDs []uuid.UUID, minScore float64, limit, probes int,
	) ([]models.EntityWithScore, error)
}

// FloorSource supplies the runtime-tuned similarity floor. May be nil; the
// configured DefaultFloor applies.
type FloorSource interface {
	SimilarityFloor(ctx context.Context) float64
}

// VectorIndexParams configures a VectorIndex.
type VectorIndexParams struct {
	Embedder embeddings.Client
	Searcher NearestSearcher

	// DefaultFloor is the similarity floor for long queries; shorter queries
	// use a lowered floor. Default 0.4.
	DefaultFloor float64

	// Floor overrides DefaultFloor per query when set.
	Floor FloorSource

	// Limit is the nearest-neighbor result cap per query. Default 50.
	Limit int

	// Probes tunes ivfflat recall per query; 0 keeps the server default.
	Probes int

	// Timeout bounds one embed-plus-search round trip. Zero disables it.
	Timeout time.Duration
}

// VectorIndex runs semantic queries: embed the text, then nearest-neighbor
// search with a floor adapted to the query length. The underlying index is
// approximate; callers must tolerate a small fraction of missed neighbors.
type VectorIndex struct {
	embedder embeddings.Client
	searcher NearestSearcher

	defaultFloor float64
	floorSource  FloorSource
	limit        int
	probes       int
	timeout      time.Duration
}

// NewVectorIndex creates a VectorIndex from params.
func NewVectorIndex(p VectorIndexParams) *VectorIndex {
	if p.DefaultFloor <= 0 {
		p.DefaultFloor = 0.4
	}

	if p.Limit <= 0 {
		p.Limit = 50
	}

	return &VectorIndex{
		embedder:     p.Embedder,
		searcher:     p.Searcher,
		defaultFloor: p.DefaultFloor,
		floorSource:  p.Floor,
		limit:        p.Limit,
		probes:       p.Probes,
		timeout:      p.Timeout,
	}
}

// Embed returns the embedding for text, or nil for blank input.
func (v *VectorIndex) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	return v.embedder.GetEmbedding(ctx, text)
}

// Search embeds query and returns entities of the given kind scored by
// cosine similarity, restricted to allowIDs when non-empty. Results below
// the adaptive floor are dropped by the store.
func (v *VectorIndex) Search(
	ctx context.Context, kind models.EntityKind, query string, allowIDs []uuid.UUID,
) ([]models.EntityWithScore, error) {
	if v.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.timeout)
		defer cancel()
	}

	vec, err := v.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	if vec == nil {
		return nil, nil
	}

	floor := v.defaultFloor
	if v.floorSource != nil {
		floor = v.floorSource.SimilarityFloor(ctx)
	}

	return v.searcher.NearestByEmbedding(
		ctx, kind, v.embedder.Model(), vec, allowIDs, adaptFloor(floor, query), v.limit, v.probes,
	)
}

// FloorFor returns the similarity floor for a query: lowered for one or two
// content words, intermediate for three or four, the default otherwise.
func (v *VectorIndex) FloorFor(query string) float64 {
	return adaptFloor(v.defaultFloor, query)
}

func adaptFloor(floor float64, query string) float64 {
	n := countContentWords(query)

	switch {
	case n <= 2:
		return min(shortQueryFloor, floor)
	case n <= 4:
		return min((shortQueryFloor+floor)/2, floor)
	default:
		return floor
	}
}

// countContentWords counts words that carry meaning for similarity: alphanumeric
// tokens longer than two characters.
func countContentWords(query string) int {
	n := 0

	for _, w := range strings.Fields(strings.ToLower(query)) {
		w = strings.TrimFunc(w, func(r rune) bool {
			return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
		})

		if len(w) > 2 {
			n++
		}
	}

	return n
}
