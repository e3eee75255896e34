package search

import (
	"sort"

	"github.com/google/uuid"

	"github.com/testvault/portal/internal/models"
)

// BoostBonus is the additive score for ids carrying a soft signal (e.g. a
// loosely matched module hint). Applied at most once per id.
const BoostBonus = 0.15

// Merge combines structured and vector result sets into one ranked ID list,
// descending by combined score:
//
//	structured only:  (1 - semanticWeight) * 1.0
//	vector only:      semanticWeight * similarity
//	both:             sum of the two components
//
// boostIDs add BoostBonus once per id on top of either. Ties break by
// structured scan order, then vector rank. When there are no vector results
// and no boosts the structured list is returned verbatim, skipping score
// computation entirely.
func Merge(
	structuredIDs []uuid.UUID, vectorResults []models.EntityWithScore,
	semanticWeight float64, boostIDs []uuid.UUID,
) []uuid.UUID {
	if len(vectorResults) == 0 && len(boostIDs) == 0 {
		return structuredIDs
	}

	type ranked struct {
		id        uuid.UUID
		score     float64
		structPos int // scan position, len(structuredIDs) when absent
		vectorPos int // vector rank, len(vectorResults) when absent
		insertPos int
	}

	entries := make(map[uuid.UUID]*ranked, len(structuredIDs)+len(vectorResults))
	order := make([]*ranked, 0, len(structuredIDs)+len(vectorResults))

	add := func(id uuid.UUID) *ranked {
		if e, ok := entries[id]; ok {
			return e
		}

		e := &ranked{
			id:        id,
			structPos: len(structuredIDs),
			vectorPos: len(vectorResults),
			insertPos: len(order),
		}
		entries[id] = e
		order = append(order, e)

		return e
	}

	for i, id := range structuredIDs {
		e := add(id)
		e.score += (1 - semanticWeight) * 1.0
		e.structPos = i
	}

	for i, res := range vectorResults {
		e := add(res.ID)
		e.score += semanticWeight * res.Score

		if i < e.vectorPos {
			e.vectorPos = i
		}
	}

	boosted := make(map[uuid.UUID]struct{}, len(boostIDs))

	for _, id := range boostIDs {
		if _, dup := boosted[id]; dup {
			continue
		}

		if e, ok := entries[id]; ok {
			e.score += BoostBonus
			boosted[id] = struct{}{}
		}
	}

	sort.SliceStable(order, func(i, j int) bool {
		a, b := order[i], order[j]

		if a.score != b.score {
			return a.score > b.score
		}

		if a.structPos != b.structPos {
			return a.structPos < b.structPos
		}

		if a.vectorPos != b.vectorPos {
			return a.vectorPos < b.vectorPos
		}

		return a.insertPos < b.insertPos
	})

	out := make([]uuid.UUID, len(order))
	for i, e := range order {
		out[i] = e.id
	}

	return out
}
