package vectorstore

import (
	"context"
	"testing"
	"time"

	"snitch/internal/core"
)

func msgRecord(id, community string, score float64, embedding []float64, ts time.Time) *core.MessageRecord {
	return &core.MessageRecord{
		ID:               id,
		CommunityID:      community,
		ChannelID:        "chan-1",
		AuthorID:         "author-1",
		Content:          "content for " + id,
		Timestamp:        ts,
		ControversyScore: score,
		Embedding:        embedding,
	}
}

func TestUpsertIdempotent(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	first := msgRecord("msg-1", "guild-a", 4.2, []float64{1, 0, 0}, ts)
	if err := store.Upsert(ctx, "guild-a", first); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	// Re-inserting the same message with a different score must not change
	// the stored record.
	second := msgRecord("msg-1", "guild-a", 99.0, []float64{0, 1, 0}, ts)
	if err := store.Upsert(ctx, "guild-a", second); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	if got := store.Count("guild-a"); got != 1 {
		t.Fatalf("expected 1 record, got %d", got)
	}
	window, err := store.Window(ctx, "guild-a", ts.Add(-time.Hour), ts.Add(time.Hour))
	if err != nil {
		t.Fatalf("window: %v", err)
	}
	if len(window) != 1 {
		t.Fatalf("expected 1 record in window, got %d", len(window))
	}
	if window[0].ControversyScore != 4.2 {
		t.Errorf("controversy score mutated on re-insert: got %v, want 4.2", window[0].ControversyScore)
	}
	if window[0].Embedding[0] != 1 {
		t.Errorf("embedding mutated on re-insert: got %v", window[0].Embedding)
	}
}

func TestCommunityIsolation(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	if err := store.Upsert(ctx, "guild-a", msgRecord("msg-1", "guild-a", 1, []float64{1, 0, 0}, ts)); err != nil {
		t.Fatalf("upsert guild-a: %v", err)
	}
	if err := store.Upsert(ctx, "guild-b", msgRecord("msg-2", "guild-b", 1, []float64{1, 0, 0}, ts)); err != nil {
		t.Fatalf("upsert guild-b: %v", err)
	}

	results, err := store.Query(ctx, "guild-a", SearchQuery{Embedding: []float64{1, 0, 0}, Limit: 10, SimilarityThreshold: 0.5})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	for _, r := range results {
		if r.Record.CommunityID != "guild-a" {
			t.Errorf("query leaked record from community %q", r.Record.CommunityID)
		}
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result for guild-a, got %d", len(results))
	}

	window, err := store.Window(ctx, "guild-b", ts.Add(-time.Hour), ts.Add(time.Hour))
	if err != nil {
		t.Fatalf("window: %v", err)
	}
	if len(window) != 1 || window[0].ID != "msg-2" {
		t.Fatalf("expected only guild-b's record, got %+v", window)
	}
}

func TestQueryThresholdAndOrder(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	_ = store.Upsert(ctx, "g", msgRecord("near", "g", 1, []float64{1, 0.1, 0}, ts))
	_ = store.Upsert(ctx, "g", msgRecord("far", "g", 1, []float64{0, 1, 0}, ts))
	_ = store.Upsert(ctx, "g", msgRecord("exact", "g", 1, []float64{1, 0, 0}, ts))

	results, err := store.Query(ctx, "g", SearchQuery{Embedding: []float64{1, 0, 0}, Limit: 10, SimilarityThreshold: 0.8})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results above threshold, got %d", len(results))
	}
	if results[0].Record.ID != "exact" {
		t.Errorf("expected exact match first, got %q", results[0].Record.ID)
	}
	if results[0].Similarity < results[1].Similarity {
		t.Errorf("results not ordered by similarity: %v then %v", results[0].Similarity, results[1].Similarity)
	}
}

func TestWindowBounds(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	_ = store.Upsert(ctx, "g", msgRecord("before", "g", 1, nil, base.Add(-time.Minute)))
	_ = store.Upsert(ctx, "g", msgRecord("start", "g", 1, nil, base))
	_ = store.Upsert(ctx, "g", msgRecord("mid", "g", 1, nil, base.Add(time.Hour)))
	_ = store.Upsert(ctx, "g", msgRecord("end", "g", 1, nil, base.Add(2*time.Hour)))

	window, err := store.Window(ctx, "g", base, base.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("window: %v", err)
	}
	if len(window) != 2 {
		t.Fatalf("expected 2 records (start inclusive, end exclusive), got %d", len(window))
	}
	if window[0].ID != "start" || window[1].ID != "mid" {
		t.Errorf("window not ordered by timestamp: %q, %q", window[0].ID, window[1].ID)
	}
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float64
		want float64
	}{
		{"identical", []float64{1, 2, 3}, []float64{1, 2, 3}, 1},
		{"orthogonal", []float64{1, 0}, []float64{0, 1}, 0},
		{"opposite", []float64{1, 0}, []float64{-1, 0}, -1},
		{"zero vector", []float64{0, 0}, []float64{1, 1}, 0},
		{"length mismatch", []float64{1}, []float64{1, 2}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineSimilarity(tt.a, tt.b)
			if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("CosineSimilarity() = %v, want %v", got, tt.want)
			}
		})
	}
}
