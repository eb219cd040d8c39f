package vectorstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"snitch/internal/core"
)

// PgVectorStore implements VectorStore on PostgreSQL with the pgvector
// extension, using cosine distance for similarity.
type PgVectorStore struct {
	db *sql.DB
}

// NewPgVectorStore creates a pgvector-backed store.
func NewPgVectorStore(db *sql.DB) *PgVectorStore {
	return &PgVectorStore{db: db}
}

// Migrate creates the messages table and its indexes if absent.
func (p *PgVectorStore) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS messages (
			id            TEXT PRIMARY KEY,
			community_id  TEXT NOT NULL,
			channel_id    TEXT NOT NULL,
			author_id     TEXT NOT NULL,
			content       TEXT NOT NULL,
			ts            TIMESTAMPTZ NOT NULL,
			reply_count   INTEGER NOT NULL DEFAULT 0,
			reactions     JSONB NOT NULL DEFAULT '[]',
			controversy   DOUBLE PRECISION NOT NULL DEFAULT 0,
			embedding     vector(768),
			batch_id      TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_community_ts ON messages (community_id, ts)`,
	}
	for _, stmt := range statements {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate messages table: %w", err)
		}
	}
	return nil
}

// CreateIndex creates the HNSW similarity index. Separate from Migrate so
// it can run after bulk ingestion.
func (p *PgVectorStore) CreateIndex(ctx context.Context) error {
	indexQuery := `
		CREATE INDEX IF NOT EXISTS idx_messages_embedding_hnsw
		ON messages
		USING hnsw (embedding vector_cosine_ops)
		WITH (m = 16, ef_construction = 64)
	`
	if _, err := p.db.ExecContext(ctx, indexQuery); err != nil {
		return fmt.Errorf("failed to create embedding index: %w", err)
	}
	return nil
}

// Upsert inserts the record if its ID is new. ON CONFLICT DO NOTHING keeps
// re-ingestion idempotent and preserves vector/score immutability.
func (p *PgVectorStore) Upsert(ctx context.Context, communityID string, rec *core.MessageRecord) error {
	if rec.CommunityID != communityID {
		return fmt.Errorf("record community %q does not match partition %q", rec.CommunityID, communityID)
	}

	reactions, err := json.Marshal(rec.Reactions)
	if err != nil {
		return fmt.Errorf("failed to encode reactions: %w", err)
	}

	query := `
		INSERT INTO messages (id, community_id, channel_id, author_id, content, ts,
		                      reply_count, reactions, controversy, embedding, batch_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::vector, $11)
		ON CONFLICT (id) DO NOTHING
	`
	_, err = p.db.ExecContext(ctx, query,
		rec.ID, rec.CommunityID, rec.ChannelID, rec.AuthorID, rec.Content, rec.Timestamp,
		rec.ReplyCount, reactions, rec.ControversyScore, formatVector(rec.Embedding), rec.BatchID,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert message %s: %w", rec.ID, err)
	}
	return nil
}

// Query runs a cosine similarity search scoped to communityID.
func (p *PgVectorStore) Query(ctx context.Context, communityID string, q SearchQuery) ([]SearchResult, error) {
	if q.Limit == 0 {
		q.Limit = 10
	}
	if q.SimilarityThreshold == 0 {
		q.SimilarityThreshold = 0.7
	}

	sinceClause := ""
	args := []interface{}{communityID, formatVector(q.Embedding), q.SimilarityThreshold, q.Limit}
	if !q.Since.IsZero() {
		sinceClause = "AND m.ts >= $5"
		args = append(args, q.Since)
	}

	sqlQuery := fmt.Sprintf(`
		SELECT m.id, m.community_id, m.channel_id, m.author_id, m.content, m.ts,
		       m.reply_count, m.reactions, m.controversy, m.batch_id,
		       1 - (m.embedding <=> $2::vector) AS similarity
		FROM messages m
		WHERE m.community_id = $1
		  AND m.embedding IS NOT NULL
		  AND 1 - (m.embedding <=> $2::vector) >= $3
		  %s
		ORDER BY m.embedding <=> $2::vector
		LIMIT $4
	`, sinceClause)

	rows, err := p.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var result SearchResult
		var reactions []byte
		if err := rows.Scan(
			&result.Record.ID, &result.Record.CommunityID, &result.Record.ChannelID,
			&result.Record.AuthorID, &result.Record.Content, &result.Record.Timestamp,
			&result.Record.ReplyCount, &reactions, &result.Record.ControversyScore,
			&result.Record.BatchID, &result.Similarity,
		); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		if err := json.Unmarshal(reactions, &result.Record.Reactions); err != nil {
			return nil, fmt.Errorf("failed to decode reactions: %w", err)
		}
		results = append(results, result)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return results, nil
}

// Window returns the community's records in [start, end), embeddings
// included, ordered by timestamp.
func (p *PgVectorStore) Window(ctx context.Context, communityID string, start, end time.Time) ([]core.MessageRecord, error) {
	query := `
		SELECT id, community_id, channel_id, author_id, content, ts,
		       reply_count, reactions, controversy, embedding::text, batch_id
		FROM messages
		WHERE community_id = $1 AND ts >= $2 AND ts < $3
		ORDER BY ts ASC
	`
	rows, err := p.db.QueryContext(ctx, query, communityID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query window: %w", err)
	}
	defer rows.Close()

	var records []core.MessageRecord
	for rows.Next() {
		var rec core.MessageRecord
		var reactions []byte
		var embedding sql.NullString
		if err := rows.Scan(
			&rec.ID, &rec.CommunityID, &rec.ChannelID, &rec.AuthorID, &rec.Content,
			&rec.Timestamp, &rec.ReplyCount, &reactions, &rec.ControversyScore,
			&embedding, &rec.BatchID,
		); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		if err := json.Unmarshal(reactions, &rec.Reactions); err != nil {
			return nil, fmt.Errorf("failed to decode reactions: %w", err)
		}
		if embedding.Valid {
			rec.Embedding, err = parseVector(embedding.String)
			if err != nil {
				return nil, fmt.Errorf("failed to decode embedding for %s: %w", rec.ID, err)
			}
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return records, nil
}

// Purge deletes a community's records older than cutoff. Retention policy
// is driven by the caller.
func (p *PgVectorStore) Purge(ctx context.Context, communityID string, cutoff time.Time) (int64, error) {
	result, err := p.db.ExecContext(ctx,
		`DELETE FROM messages WHERE community_id = $1 AND ts < $2`, communityID, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge messages: %w", err)
	}
	return result.RowsAffected()
}

// formatVector converts []float64 to PostgreSQL vector format.
// Example: [0.1, 0.2, 0.3] -> "[0.1,0.2,0.3]"
func formatVector(embedding []float64) string {
	if len(embedding) == 0 {
		return "[]"
	}

	parts := make([]string, len(embedding))
	for i, val := range embedding {
		parts[i] = fmt.Sprintf("%f", val)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// parseVector converts PostgreSQL vector text back to []float64.
func parseVector(s string) ([]float64, error) {
	s = strings.Trim(strings.TrimSpace(s), "[]")
	if s == "" {
		return nil, nil
	}
	fields := strings.Split(s, ",")
	out := make([]float64, len(fields))
	for i, f := range fields {
		var v float64
		if _, err := fmt.Sscanf(strings.TrimSpace(f), "%g", &v); err != nil {
			return nil, fmt.Errorf("invalid vector element %q: %w", f, err)
		}
		out[i] = v
	}
	return out, nil
}
