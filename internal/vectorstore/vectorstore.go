// Package vectorstore provides the per-community message embedding index.
// Every read and write is scoped to a community; the contract has no
// unscoped surface.
package vectorstore

import (
	"context"
	"time"

	"snitch/internal/core"
)

// VectorStore stores message records with their embeddings and serves
// similarity queries. Cross-community leakage is a correctness violation:
// implementations must apply the community partition on every operation.
type VectorStore interface {
	// Upsert stores the record under communityID, keyed by message ID.
	// A record's vector and score are immutable once written: repeated
	// upserts of the same ID are no-ops, never duplicates.
	Upsert(ctx context.Context, communityID string, rec *core.MessageRecord) error

	// Query returns up to q.Limit records from communityID ordered by
	// cosine similarity to q.Embedding (highest first), with score
	// metadata attached.
	Query(ctx context.Context, communityID string, q SearchQuery) ([]SearchResult, error)

	// Window returns all records for communityID with timestamps in
	// [start, end), ordered by timestamp ascending.
	Window(ctx context.Context, communityID string, start, end time.Time) ([]core.MessageRecord, error)
}

// SearchQuery configures a similarity query within one community.
type SearchQuery struct {
	// Embedding is the query vector (768-dim).
	Embedding []float64

	// Limit is the maximum number of results to return (default: 10).
	Limit int

	// SimilarityThreshold is the minimum cosine similarity (default: 0.7).
	SimilarityThreshold float64

	// Since filters out records older than this timestamp when non-zero.
	Since time.Time
}

// SearchResult is one similar message and its similarity score.
type SearchResult struct {
	Record     core.MessageRecord
	Similarity float64 // Cosine similarity, higher = more similar
}

// DefaultSearchQuery returns sensible defaults for a query vector.
func DefaultSearchQuery(embedding []float64) SearchQuery {
	return SearchQuery{
		Embedding:           embedding,
		Limit:               10,
		SimilarityThreshold: 0.7,
	}
}
