// Package persistence provides database abstraction interfaces for storing communities, tips, and dispatch records
package persistence

import (
	"context"
	"time"

	"snitch/internal/core"
)

// CommunityRepository handles community persistence operations
type CommunityRepository interface {
	// Create inserts a new community
	Create(ctx context.Context, community *core.Community) error

	// Get retrieves a community by ID
	Get(ctx context.Context, id string) (*core.Community, error)

	// ListEnabled retrieves all enabled communities
	ListEnabled(ctx context.Context) ([]core.Community, error)

	// Update updates an existing community
	Update(ctx context.Context, community *core.Community) error

	// SetEnabled flips the enabled flag without touching other config
	SetEnabled(ctx context.Context, id string, enabled bool) error

	// TouchDispatched records the timestamp of the last successful dispatch
	TouchDispatched(ctx context.Context, id string, at time.Time) error
}

// TipRepository handles tip persistence operations. Tips are write-once.
type TipRepository interface {
	// Create inserts a new tip
	Create(ctx context.Context, tip *core.Tip) error

	// ListSince retrieves a community's tips submitted after a given time
	ListSince(ctx context.Context, communityID string, since time.Time) ([]core.Tip, error)
}

// DispatchRepository handles the per-day dispatch ledger. The (community,
// date) pair is unique; Claim is the only way to create a record and it is
// safe to race.
type DispatchRepository interface {
	// Claim conditionally inserts a 'running' record for (communityID, date).
	// It returns core.ErrDuplicateDispatch when a record already exists,
	// whatever its status.
	Claim(ctx context.Context, communityID, date string) error

	// Finalize transitions a claimed record to 'dispatched' and stores the
	// posted message reference.
	Finalize(ctx context.Context, communityID, date, artifactRef string) error

	// MarkFailed transitions a claimed record to 'failed'. Failed records
	// stay in place and keep blocking same-day claims.
	MarkFailed(ctx context.Context, communityID, date string) error

	// Release deletes a claimed record so a later run may retry. Used when
	// the post itself failed and no message reached the channel.
	Release(ctx context.Context, communityID, date string) error

	// GetForDate retrieves the record for (communityID, date), or nil
	GetForDate(ctx context.Context, communityID, date string) (*core.DispatchRecord, error)
}

// Database aggregates the repositories behind a single connection
type Database interface {
	Communities() CommunityRepository
	Tips() TipRepository
	Dispatches() DispatchRepository

	Ping(ctx context.Context) error
	Close() error
}
