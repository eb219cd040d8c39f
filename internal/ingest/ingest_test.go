package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"snitch/internal/core"
	"snitch/internal/scoring"
	"snitch/internal/vectorstore"
)

type fakeEmbedder struct {
	failOn map[string]bool
	calls  int
}

func (f *fakeEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float64, error) {
	f.calls++
	if f.failOn[text] {
		return nil, errors.New("embedding unavailable")
	}
	return []float64{1, 0, 0}, nil
}

func rawMsg(id, content string) core.RawMessage {
	return core.RawMessage{
		ID:        id,
		ChannelID: "chan-1",
		AuthorID:  "author-1",
		Content:   content,
		Timestamp: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestIngestible(t *testing.T) {
	tests := []struct {
		name string
		msg  core.RawMessage
		want bool
	}{
		{"normal message", rawMsg("1", "this is a perfectly fine message"), true},
		{"too short", rawMsg("2", "hi there"), false},
		{"whitespace padding", rawMsg("3", "   short    "), false},
		{"link only", rawMsg("4", "https://example.com/some/long/path"), false},
		{"multiple links only", rawMsg("5", "https://a.example.com https://b.example.com"), false},
		{"link with commentary", rawMsg("6", "look at this https://example.com absolutely wild"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Ingestible(tt.msg); got != tt.want {
				t.Errorf("Ingestible() = %v, want %v", got, tt.want)
			}
		})
	}

	bot := rawMsg("7", "long enough content from a bot account")
	bot.AuthorBot = true
	if Ingestible(bot) {
		t.Error("bot messages must be filtered")
	}
}

func TestIngestStoresScoredRecords(t *testing.T) {
	store := vectorstore.NewMemoryStore()
	svc := NewService(scoring.NewScorer(scoring.DefaultWeights()), &fakeEmbedder{}, store)

	raw := []core.RawMessage{
		rawMsg("1", "a genuinely interesting discussion point"),
		rawMsg("2", "ok"),
	}
	result, err := svc.Ingest(context.Background(), "guild-1", raw)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if result.Ingested != 1 || result.Filtered != 1 || result.Skipped != 0 {
		t.Fatalf("result = %+v", result)
	}
	if result.BatchID == "" {
		t.Error("expected a batch ID")
	}

	window, err := store.Window(context.Background(), "guild-1",
		time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("window: %v", err)
	}
	if len(window) != 1 {
		t.Fatalf("expected 1 stored record, got %d", len(window))
	}
	rec := window[0]
	if rec.CommunityID != "guild-1" {
		t.Errorf("community = %q", rec.CommunityID)
	}
	if len(rec.Embedding) == 0 {
		t.Error("expected embedding to be set")
	}
	if rec.BatchID != result.BatchID {
		t.Errorf("batch ID = %q, want %q", rec.BatchID, result.BatchID)
	}
	if rec.ControversyScore < 0 {
		t.Errorf("controversy score negative: %v", rec.ControversyScore)
	}
}

func TestIngestSkipsEmbeddingFailures(t *testing.T) {
	store := vectorstore.NewMemoryStore()
	embedder := &fakeEmbedder{failOn: map[string]bool{"this one fails to embed": true}}
	svc := NewService(scoring.NewScorer(scoring.DefaultWeights()), embedder, store)

	raw := []core.RawMessage{
		rawMsg("1", "this one fails to embed"),
		rawMsg("2", "this one embeds without trouble"),
	}
	result, err := svc.Ingest(context.Background(), "guild-1", raw)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if result.Skipped != 1 || result.Ingested != 1 {
		t.Fatalf("result = %+v", result)
	}
	if store.Count("guild-1") != 1 {
		t.Fatalf("expected 1 record stored, got %d", store.Count("guild-1"))
	}
}

func TestIngestIdempotentAcrossBatches(t *testing.T) {
	store := vectorstore.NewMemoryStore()
	svc := NewService(scoring.NewScorer(scoring.DefaultWeights()), &fakeEmbedder{}, store)

	raw := []core.RawMessage{rawMsg("1", "the same message seen in two windows")}
	first, err := svc.Ingest(context.Background(), "guild-1", raw)
	if err != nil {
		t.Fatalf("first ingest: %v", err)
	}
	if _, err := svc.Ingest(context.Background(), "guild-1", raw); err != nil {
		t.Fatalf("second ingest: %v", err)
	}

	if store.Count("guild-1") != 1 {
		t.Fatalf("expected 1 record after re-ingest, got %d", store.Count("guild-1"))
	}
	window, _ := store.Window(context.Background(), "guild-1",
		time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC))
	if window[0].BatchID != first.BatchID {
		t.Error("re-ingest must not overwrite the original record")
	}
}
