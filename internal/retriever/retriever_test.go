package retriever

import (
	"context"
	"math"
	"testing"
	"time"

	"snitch/internal/core"
	"snitch/internal/vectorstore"
)

var base = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func record(id string, score float64, embedding []float64, ts time.Time) core.MessageRecord {
	return core.MessageRecord{
		ID:               id,
		CommunityID:      "guild-1",
		Content:          "message " + id,
		Timestamp:        ts,
		ControversyScore: score,
		Embedding:        embedding,
	}
}

func TestClusterMessagesSingleLinkage(t *testing.T) {
	// a and b are near-identical; c chains to b but not to a. Single
	// linkage pulls all three into one cluster. d is alone.
	a := record("a", 1, []float64{1, 0, 0}, base)
	b := record("b", 1, []float64{0.98, 0.2, 0}, base.Add(time.Minute))
	c := record("c", 1, []float64{0.9, 0.43, 0}, base.Add(2*time.Minute))
	d := record("d", 1, []float64{0, 0, 1}, base.Add(3*time.Minute))

	clusters := ClusterMessages([]core.MessageRecord{a, b, c, d}, 0.95)
	if len(clusters) != 2 {
		t.Fatalf("expected 2 clusters, got %d", len(clusters))
	}

	sizes := map[int]int{}
	for _, cl := range clusters {
		sizes[len(cl.Messages)]++
	}
	if sizes[3] != 1 || sizes[1] != 1 {
		t.Fatalf("expected one cluster of 3 and one of 1, got %v", sizes)
	}
}

func TestClusterCompositeScore(t *testing.T) {
	a := record("a", 2, []float64{1, 0}, base)
	b := record("b", 4, []float64{1, 0.01}, base.Add(time.Minute))

	clusters := ClusterMessages([]core.MessageRecord{a, b}, 0.9)
	if len(clusters) != 1 {
		t.Fatalf("expected 1 cluster, got %d", len(clusters))
	}
	cl := clusters[0]
	if cl.MeanControversy != 3 {
		t.Errorf("mean controversy = %v, want 3", cl.MeanControversy)
	}
	want := 3 * math.Log(3)
	if diff := cl.CompositeScore - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("composite score = %v, want %v", cl.CompositeScore, want)
	}
	if !cl.Latest.Equal(base.Add(time.Minute)) {
		t.Errorf("latest = %v", cl.Latest)
	}
}

func TestLargerQuietClusterCanOutrankSmallLoudOne(t *testing.T) {
	// A 9-message cluster at controversy 2 must outrank a 3-message
	// cluster at controversy 3: 2*ln(10) > 3*ln(4).
	var records []core.MessageRecord
	for i := 0; i < 9; i++ {
		records = append(records, record(
			"big-"+string(rune('a'+i)), 2, []float64{1, 0, 0},
			base.Add(time.Duration(i)*time.Minute)))
	}
	for i := 0; i < 3; i++ {
		records = append(records, record(
			"small-"+string(rune('a'+i)), 3, []float64{0, 1, 0},
			base.Add(time.Duration(i)*time.Minute)))
	}

	clusters := ClusterMessages(records, 0.9)
	RankClusters(clusters)
	if len(clusters) != 2 {
		t.Fatalf("expected 2 clusters, got %d", len(clusters))
	}
	if len(clusters[0].Messages) != 9 {
		t.Errorf("expected the 9-message cluster first, got size %d (score %v vs %v)",
			len(clusters[0].Messages), clusters[0].CompositeScore, clusters[1].CompositeScore)
	}
}

func TestRankClustersTieBreakByRecency(t *testing.T) {
	older := Cluster{ID: "older", CompositeScore: 5, Latest: base}
	newer := Cluster{ID: "newer", CompositeScore: 5, Latest: base.Add(time.Hour)}

	clusters := []Cluster{older, newer}
	RankClusters(clusters)
	if clusters[0].ID != "newer" {
		t.Errorf("expected the most recent cluster to win the tie, got %q", clusters[0].ID)
	}
}

func TestSelectCandidatesEmptyWindow(t *testing.T) {
	store := vectorstore.NewMemoryStore()
	r := New(store, DefaultOptions())

	clusters, err := r.SelectCandidates(context.Background(), "guild-1", base)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(clusters) != 0 {
		t.Fatalf("expected no clusters for empty window, got %d", len(clusters))
	}
}

func TestSelectCandidatesRespectsWindowAndLimit(t *testing.T) {
	store := vectorstore.NewMemoryStore()
	ctx := context.Background()

	// Four well-separated topics, one of them outside the window.
	topics := [][]float64{{1, 0, 0, 0}, {0, 1, 0, 0}, {0, 0, 1, 0}, {0, 0, 0, 1}}
	for i, emb := range topics {
		ts := base.Add(-time.Hour)
		if i == 3 {
			ts = base.Add(-48 * time.Hour)
		}
		rec := record("t"+string(rune('a'+i)), float64(i+1), emb, ts)
		if err := store.Upsert(ctx, "guild-1", &rec); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	opts := DefaultOptions()
	opts.MaxClusters = 2
	r := New(store, opts)

	clusters, err := r.SelectCandidates(ctx, "guild-1", base)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(clusters) != 2 {
		t.Fatalf("expected 2 clusters after limit, got %d", len(clusters))
	}
	if clusters[0].CompositeScore < clusters[1].CompositeScore {
		t.Error("clusters not ranked by composite score")
	}
	for _, cl := range clusters {
		for _, msg := range cl.Messages {
			if msg.Timestamp.Before(base.Add(-24 * time.Hour)) {
				t.Errorf("message %s outside the lookback window", msg.ID)
			}
		}
	}
}

func TestClusterExcerpts(t *testing.T) {
	cl := Cluster{Messages: []core.MessageRecord{
		{Content: "first"}, {Content: "second"}, {Content: "third"},
	}}
	excerpts := cl.Excerpts(2)
	if len(excerpts) != 2 || excerpts[0] != "first" || excerpts[1] != "second" {
		t.Fatalf("excerpts = %v", excerpts)
	}
}
