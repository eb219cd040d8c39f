// Package retriever groups a community's recent messages into conversation
// clusters and ranks them for the newsletter pipeline.
package retriever

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"snitch/internal/config"
	"snitch/internal/core"
	"snitch/internal/logger"
	"snitch/internal/vectorstore"
)

// Cluster is one conversation thread reconstructed from embeddings.
type Cluster struct {
	ID              string
	Messages        []core.MessageRecord // Ordered by timestamp ascending
	MeanControversy float64
	CompositeScore  float64
	Latest          time.Time
}

// Excerpts returns up to limit message excerpts for prompt grounding.
func (c *Cluster) Excerpts(limit int) []string {
	excerpts := make([]string, 0, limit)
	for _, msg := range c.Messages {
		if len(excerpts) >= limit {
			break
		}
		excerpts = append(excerpts, msg.Content)
	}
	return excerpts
}

// Options control clustering and ranking.
type Options struct {
	SimilarityThreshold float64       // Single-linkage merge threshold
	MaxClusters         int           // Clusters returned after ranking
	Window              time.Duration // Lookback from now
}

// FromConfig builds Options from the retriever config section.
func FromConfig(c config.Retriever) Options {
	return Options{
		SimilarityThreshold: c.SimilarityThreshold,
		MaxClusters:         c.MaxClusters,
		Window:              time.Duration(c.WindowHours) * time.Hour,
	}
}

// DefaultOptions returns the standard retriever tuning.
func DefaultOptions() Options {
	return Options{
		SimilarityThreshold: 0.82,
		MaxClusters:         3,
		Window:              24 * time.Hour,
	}
}

// Retriever selects candidate conversation clusters from the vector store.
type Retriever struct {
	store vectorstore.VectorStore
	opts  Options
	log   *slog.Logger
}

// New creates a retriever over the given store.
func New(store vectorstore.VectorStore, opts Options) *Retriever {
	return &Retriever{store: store, opts: opts, log: logger.Get()}
}

// SelectCandidates fetches the community's window and returns the top
// clusters by composite score. An empty window yields an empty slice, not
// an error.
func (r *Retriever) SelectCandidates(ctx context.Context, communityID string, now time.Time) ([]Cluster, error) {
	records, err := r.store.Window(ctx, communityID, now.Add(-r.opts.Window), now)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch message window: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	clusters := ClusterMessages(records, r.opts.SimilarityThreshold)
	RankClusters(clusters)

	if len(clusters) > r.opts.MaxClusters {
		clusters = clusters[:r.opts.MaxClusters]
	}
	r.log.Debug("Selected candidate clusters",
		"community_id", communityID, "window_messages", len(records), "clusters", len(clusters))
	return clusters, nil
}

// ClusterMessages groups records by single-linkage agglomeration: two
// clusters merge while any cross pair of messages meets the similarity
// threshold. Messages without embeddings form singleton clusters.
func ClusterMessages(records []core.MessageRecord, threshold float64) []Cluster {
	parent := make([]int, len(records))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[rb] = ra
		}
	}

	for i := 0; i < len(records); i++ {
		if len(records[i].Embedding) == 0 {
			continue
		}
		for j := i + 1; j < len(records); j++ {
			if len(records[j].Embedding) == 0 {
				continue
			}
			if vectorstore.CosineSimilarity(records[i].Embedding, records[j].Embedding) >= threshold {
				union(i, j)
			}
		}
	}

	groups := make(map[int][]core.MessageRecord)
	var order []int
	for i, rec := range records {
		root := find(i)
		if _, seen := groups[root]; !seen {
			order = append(order, root)
		}
		groups[root] = append(groups[root], rec)
	}

	clusters := make([]Cluster, 0, len(order))
	for n, root := range order {
		cluster := Cluster{ID: fmt.Sprintf("cluster-%d", n+1), Messages: groups[root]}
		sort.Slice(cluster.Messages, func(i, j int) bool {
			return cluster.Messages[i].Timestamp.Before(cluster.Messages[j].Timestamp)
		})

		var sum float64
		for _, msg := range cluster.Messages {
			sum += msg.ControversyScore
			if msg.Timestamp.After(cluster.Latest) {
				cluster.Latest = msg.Timestamp
			}
		}
		cluster.MeanControversy = sum / float64(len(cluster.Messages))
		cluster.CompositeScore = cluster.MeanControversy * math.Log(float64(len(cluster.Messages))+1)
		clusters = append(clusters, cluster)
	}
	return clusters
}

// RankClusters orders clusters by composite score descending. Ties go to
// the cluster with the most recent message.
func RankClusters(clusters []Cluster) {
	sort.SliceStable(clusters, func(i, j int) bool {
		if clusters[i].CompositeScore != clusters[j].CompositeScore {
			return clusters[i].CompositeScore > clusters[j].CompositeScore
		}
		return clusters[i].Latest.After(clusters[j].Latest)
	})
}
