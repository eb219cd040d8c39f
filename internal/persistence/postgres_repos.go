package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"snitch/internal/core"
)

// postgresCommunityRepo implements CommunityRepository for PostgreSQL
type postgresCommunityRepo struct {
	db *sql.DB
}

const communityColumns = `id, name, persona, news_channel_id, source_channel_id, newsletter_time, enabled, admin_user_ids, last_dispatched_at, created_at, updated_at`

func (r *postgresCommunityRepo) Create(ctx context.Context, community *core.Community) error {
	now := time.Now().UTC()
	query := `
		INSERT INTO communities (` + communityColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.db.ExecContext(ctx, query,
		community.ID, community.Name, string(community.Persona),
		community.NewsChannelID, community.SourceChannelID, community.NewsletterTime,
		community.Enabled, pq.Array(community.AdminUserIDs),
		nullableTime(community.LastDispatchedAt), now, now,
	)
	return err
}

func (r *postgresCommunityRepo) Get(ctx context.Context, id string) (*core.Community, error) {
	query := `SELECT ` + communityColumns + ` FROM communities WHERE id = $1`
	row := r.db.QueryRowContext(ctx, query, id)
	community, err := scanCommunity(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return community, err
}

func (r *postgresCommunityRepo) ListEnabled(ctx context.Context) ([]core.Community, error) {
	query := `SELECT ` + communityColumns + ` FROM communities WHERE enabled = TRUE ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var communities []core.Community
	for rows.Next() {
		community, err := scanCommunity(rows)
		if err != nil {
			return nil, err
		}
		communities = append(communities, *community)
	}
	return communities, rows.Err()
}

func (r *postgresCommunityRepo) Update(ctx context.Context, community *core.Community) error {
	query := `
		UPDATE communities
		SET name = $2, persona = $3, news_channel_id = $4, source_channel_id = $5,
		    newsletter_time = $6, enabled = $7, admin_user_ids = $8, updated_at = $9
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query,
		community.ID, community.Name, string(community.Persona),
		community.NewsChannelID, community.SourceChannelID, community.NewsletterTime,
		community.Enabled, pq.Array(community.AdminUserIDs), time.Now().UTC(),
	)
	if err != nil {
		return err
	}
	return requireRow(result, community.ID)
}

func (r *postgresCommunityRepo) SetEnabled(ctx context.Context, id string, enabled bool) error {
	query := `UPDATE communities SET enabled = $2, updated_at = $3 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, enabled, time.Now().UTC())
	if err != nil {
		return err
	}
	return requireRow(result, id)
}

func (r *postgresCommunityRepo) TouchDispatched(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE communities SET last_dispatched_at = $2, updated_at = $3 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, at.UTC(), time.Now().UTC())
	if err != nil {
		return err
	}
	return requireRow(result, id)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCommunity(row rowScanner) (*core.Community, error) {
	var community core.Community
	var persona string
	var adminUserIDs pq.StringArray
	var lastDispatchedAt sql.NullTime

	err := row.Scan(
		&community.ID, &community.Name, &persona,
		&community.NewsChannelID, &community.SourceChannelID, &community.NewsletterTime,
		&community.Enabled, &adminUserIDs, &lastDispatchedAt,
		&community.CreatedAt, &community.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	community.Persona = core.Persona(persona)
	community.AdminUserIDs = []string(adminUserIDs)
	if lastDispatchedAt.Valid {
		community.LastDispatchedAt = lastDispatchedAt.Time
	}
	return &community, nil
}

func nullableTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

func requireRow(result sql.Result, id string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("no row with id %s", id)
	}
	return nil
}

// postgresTipRepo implements TipRepository for PostgreSQL
type postgresTipRepo struct {
	db *sql.DB
}

func (r *postgresTipRepo) Create(ctx context.Context, tip *core.Tip) error {
	query := `
		INSERT INTO tips (id, community_id, submitted_at, content, anonymous)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.ExecContext(ctx, query,
		tip.ID, tip.CommunityID, tip.SubmittedAt.UTC(), tip.Content, tip.Anonymous,
	)
	return err
}

func (r *postgresTipRepo) ListSince(ctx context.Context, communityID string, since time.Time) ([]core.Tip, error) {
	query := `
		SELECT id, community_id, submitted_at, content, anonymous
		FROM tips
		WHERE community_id = $1 AND submitted_at >= $2
		ORDER BY submitted_at ASC
	`
	rows, err := r.db.QueryContext(ctx, query, communityID, since.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tips []core.Tip
	for rows.Next() {
		var tip core.Tip
		if err := rows.Scan(&tip.ID, &tip.CommunityID, &tip.SubmittedAt, &tip.Content, &tip.Anonymous); err != nil {
			return nil, err
		}
		tips = append(tips, tip)
	}
	return tips, rows.Err()
}

// postgresDispatchRepo implements DispatchRepository for PostgreSQL
type postgresDispatchRepo struct {
	db *sql.DB
}

func (r *postgresDispatchRepo) Claim(ctx context.Context, communityID, date string) error {
	// The UNIQUE(community_id, date) constraint makes this insert the
	// compare-and-set: exactly one concurrent claimer gets a row in.
	now := time.Now().UTC()
	query := `
		INSERT INTO dispatches (community_id, date, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (community_id, date) DO NOTHING
	`
	result, err := r.db.ExecContext(ctx, query, communityID, date, string(core.DispatchRunning), now)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return core.ErrDuplicateDispatch
	}
	return nil
}

func (r *postgresDispatchRepo) Finalize(ctx context.Context, communityID, date, artifactRef string) error {
	query := `
		UPDATE dispatches
		SET status = $3, artifact_ref = $4, updated_at = $5
		WHERE community_id = $1 AND date = $2 AND status = $6
	`
	result, err := r.db.ExecContext(ctx, query,
		communityID, date, string(core.DispatchDispatched), artifactRef,
		time.Now().UTC(), string(core.DispatchRunning),
	)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("no running dispatch for community %s on %s", communityID, date)
	}
	return nil
}

func (r *postgresDispatchRepo) MarkFailed(ctx context.Context, communityID, date string) error {
	query := `
		UPDATE dispatches
		SET status = $3, updated_at = $4
		WHERE community_id = $1 AND date = $2 AND status = $5
	`
	_, err := r.db.ExecContext(ctx, query,
		communityID, date, string(core.DispatchFailed),
		time.Now().UTC(), string(core.DispatchRunning),
	)
	return err
}

func (r *postgresDispatchRepo) Release(ctx context.Context, communityID, date string) error {
	query := `DELETE FROM dispatches WHERE community_id = $1 AND date = $2 AND status = $3`
	_, err := r.db.ExecContext(ctx, query, communityID, date, string(core.DispatchRunning))
	return err
}

func (r *postgresDispatchRepo) GetForDate(ctx context.Context, communityID, date string) (*core.DispatchRecord, error) {
	query := `
		SELECT community_id, date, status, COALESCE(artifact_ref, ''), created_at, updated_at
		FROM dispatches
		WHERE community_id = $1 AND date = $2
	`
	row := r.db.QueryRowContext(ctx, query, communityID, date)

	var record core.DispatchRecord
	var status string
	err := row.Scan(&record.CommunityID, &record.Date, &status, &record.ArtifactRef, &record.CreatedAt, &record.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	record.Status = core.DispatchStatus(status)
	return &record, nil
}
