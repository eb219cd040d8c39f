package vectorstore

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"snitch/internal/core"
)

// MemoryStore is an in-memory VectorStore for tests and local development.
// It applies the same community partitioning rules as the pgvector store.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]map[string]core.MessageRecord // communityID -> messageID -> record
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]map[string]core.MessageRecord)}
}

// Upsert stores the record if its ID is new within the community.
func (m *MemoryStore) Upsert(ctx context.Context, communityID string, rec *core.MessageRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	partition, ok := m.records[communityID]
	if !ok {
		partition = make(map[string]core.MessageRecord)
		m.records[communityID] = partition
	}
	if _, exists := partition[rec.ID]; exists {
		return nil // immutable once written
	}
	partition[rec.ID] = *rec
	return nil
}

// Query returns the community's records by descending cosine similarity.
func (m *MemoryStore) Query(ctx context.Context, communityID string, q SearchQuery) ([]SearchResult, error) {
	if q.Limit == 0 {
		q.Limit = 10
	}
	if q.SimilarityThreshold == 0 {
		q.SimilarityThreshold = 0.7
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var results []SearchResult
	for _, rec := range m.records[communityID] {
		if !q.Since.IsZero() && rec.Timestamp.Before(q.Since) {
			continue
		}
		sim := CosineSimilarity(q.Embedding, rec.Embedding)
		if sim < q.SimilarityThreshold {
			continue
		}
		results = append(results, SearchResult{Record: rec, Similarity: sim})
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	if len(results) > q.Limit {
		results = results[:q.Limit]
	}
	return results, nil
}

// Window returns the community's records in [start, end) ordered by timestamp.
func (m *MemoryStore) Window(ctx context.Context, communityID string, start, end time.Time) ([]core.MessageRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var records []core.MessageRecord
	for _, rec := range m.records[communityID] {
		if rec.Timestamp.Before(start) || !rec.Timestamp.Before(end) {
			continue
		}
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Timestamp.Before(records[j].Timestamp)
	})
	return records, nil
}

// Count returns the number of records stored for a community.
func (m *MemoryStore) Count(communityID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records[communityID])
}

// CosineSimilarity computes the cosine similarity of two vectors. Vectors
// of unequal or zero length score 0.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
