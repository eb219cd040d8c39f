// Package ingest turns raw chat history into scored, embedded message
// records inside a community's partition.
package ingest

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"snitch/internal/core"
	"snitch/internal/llm"
	"snitch/internal/logger"
	"snitch/internal/scoring"
	"snitch/internal/vectorstore"
)

// MinContentLength is the shortest message worth ingesting.
const MinContentLength = 10

// Service scores and embeds raw messages and writes them to the vector
// store. Every run is tagged with a fresh batch ID.
type Service struct {
	scorer   *scoring.Scorer
	embedder llm.Embedder
	store    vectorstore.VectorStore
	log      *slog.Logger
}

// NewService creates an ingestion service.
func NewService(scorer *scoring.Scorer, embedder llm.Embedder, store vectorstore.VectorStore) *Service {
	return &Service{
		scorer:   scorer,
		embedder: embedder,
		store:    store,
		log:      logger.Get(),
	}
}

// Result summarizes one ingestion run.
type Result struct {
	BatchID  string
	Ingested int
	Filtered int
	Skipped  int // embedding failures
}

// Ingest filters, scores, embeds, and upserts raw messages for one
// community. Messages that fail embedding are skipped, not fatal; the rest
// of the batch still lands. Re-ingesting known message IDs is a no-op.
func (s *Service) Ingest(ctx context.Context, communityID string, raw []core.RawMessage) (*Result, error) {
	result := &Result{BatchID: uuid.New().String()}

	for _, msg := range raw {
		if !Ingestible(msg) {
			result.Filtered++
			continue
		}

		record := core.MessageRecord{
			ID:          msg.ID,
			CommunityID: communityID,
			ChannelID:   msg.ChannelID,
			AuthorID:    msg.AuthorID,
			Content:     msg.Content,
			Timestamp:   msg.Timestamp,
			ReplyCount:  msg.ReplyCount,
			Reactions:   msg.Reactions,
			BatchID:     result.BatchID,
		}
		record.ControversyScore = s.scorer.Score(&record)

		embedding, err := s.embedder.GenerateEmbedding(ctx, msg.Content)
		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			s.log.Warn("Skipping message after embedding failure",
				"community_id", communityID, "message_id", msg.ID, "error", err)
			result.Skipped++
			continue
		}
		record.Embedding = embedding

		if err := s.store.Upsert(ctx, communityID, &record); err != nil {
			return result, err
		}
		result.Ingested++
	}

	s.log.Info("Ingestion batch complete",
		"community_id", communityID, "batch_id", result.BatchID,
		"ingested", result.Ingested, "filtered", result.Filtered, "skipped", result.Skipped)
	return result, nil
}

// Ingestible reports whether a raw message carries enough signal to store.
// Bot messages, very short messages, and link-only messages are dropped.
func Ingestible(msg core.RawMessage) bool {
	if msg.AuthorBot {
		return false
	}
	content := strings.TrimSpace(msg.Content)
	if len(content) < MinContentLength {
		return false
	}
	if linkOnly(content) {
		return false
	}
	return true
}

func linkOnly(content string) bool {
	for _, field := range strings.Fields(content) {
		if !strings.HasPrefix(field, "http://") && !strings.HasPrefix(field, "https://") {
			return false
		}
	}
	return true
}
