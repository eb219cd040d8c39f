package persistence

import (
	"context"
	"fmt"
	"sync"
	"time"

	"snitch/internal/core"
)

// MemoryDB implements the Database interface in memory. It enforces the
// same (community, date) dispatch uniqueness as the Postgres implementation
// and is safe for concurrent use.
type MemoryDB struct {
	communities *memoryCommunityRepo
	tips        *memoryTipRepo
	dispatches  *memoryDispatchRepo
}

// NewMemoryDB creates an empty in-memory database.
func NewMemoryDB() *MemoryDB {
	return &MemoryDB{
		communities: &memoryCommunityRepo{items: make(map[string]core.Community)},
		tips:        &memoryTipRepo{},
		dispatches:  &memoryDispatchRepo{items: make(map[string]core.DispatchRecord)},
	}
}

func (m *MemoryDB) Communities() CommunityRepository { return m.communities }
func (m *MemoryDB) Tips() TipRepository              { return m.tips }
func (m *MemoryDB) Dispatches() DispatchRepository   { return m.dispatches }
func (m *MemoryDB) Ping(ctx context.Context) error   { return nil }
func (m *MemoryDB) Close() error                     { return nil }

type memoryCommunityRepo struct {
	mu    sync.RWMutex
	items map[string]core.Community
}

func (r *memoryCommunityRepo) Create(ctx context.Context, community *core.Community) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.items[community.ID]; exists {
		return fmt.Errorf("community %s already exists", community.ID)
	}
	now := time.Now().UTC()
	community.CreatedAt = now
	community.UpdatedAt = now
	r.items[community.ID] = *community
	return nil
}

func (r *memoryCommunityRepo) Get(ctx context.Context, id string) (*core.Community, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	community, ok := r.items[id]
	if !ok {
		return nil, nil
	}
	return &community, nil
}

func (r *memoryCommunityRepo) ListEnabled(ctx context.Context) ([]core.Community, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var communities []core.Community
	for _, community := range r.items {
		if community.Enabled {
			communities = append(communities, community)
		}
	}
	return communities, nil
}

func (r *memoryCommunityRepo) Update(ctx context.Context, community *core.Community) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.items[community.ID]; !exists {
		return fmt.Errorf("no row with id %s", community.ID)
	}
	community.UpdatedAt = time.Now().UTC()
	r.items[community.ID] = *community
	return nil
}

func (r *memoryCommunityRepo) SetEnabled(ctx context.Context, id string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	community, exists := r.items[id]
	if !exists {
		return fmt.Errorf("no row with id %s", id)
	}
	community.Enabled = enabled
	community.UpdatedAt = time.Now().UTC()
	r.items[id] = community
	return nil
}

func (r *memoryCommunityRepo) TouchDispatched(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	community, exists := r.items[id]
	if !exists {
		return fmt.Errorf("no row with id %s", id)
	}
	community.LastDispatchedAt = at.UTC()
	community.UpdatedAt = time.Now().UTC()
	r.items[id] = community
	return nil
}

type memoryTipRepo struct {
	mu   sync.RWMutex
	tips []core.Tip
}

func (r *memoryTipRepo) Create(ctx context.Context, tip *core.Tip) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tips = append(r.tips, *tip)
	return nil
}

func (r *memoryTipRepo) ListSince(ctx context.Context, communityID string, since time.Time) ([]core.Tip, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var tips []core.Tip
	for _, tip := range r.tips {
		if tip.CommunityID == communityID && !tip.SubmittedAt.Before(since) {
			tips = append(tips, tip)
		}
	}
	return tips, nil
}

type memoryDispatchRepo struct {
	mu    sync.Mutex
	items map[string]core.DispatchRecord
}

func dispatchKey(communityID, date string) string {
	return communityID + "|" + date
}

func (r *memoryDispatchRepo) Claim(ctx context.Context, communityID, date string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := dispatchKey(communityID, date)
	if _, exists := r.items[key]; exists {
		return core.ErrDuplicateDispatch
	}
	now := time.Now().UTC()
	r.items[key] = core.DispatchRecord{
		CommunityID: communityID,
		Date:        date,
		Status:      core.DispatchRunning,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return nil
}

func (r *memoryDispatchRepo) Finalize(ctx context.Context, communityID, date, artifactRef string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := dispatchKey(communityID, date)
	record, exists := r.items[key]
	if !exists || record.Status != core.DispatchRunning {
		return fmt.Errorf("no running dispatch for community %s on %s", communityID, date)
	}
	record.Status = core.DispatchDispatched
	record.ArtifactRef = artifactRef
	record.UpdatedAt = time.Now().UTC()
	r.items[key] = record
	return nil
}

func (r *memoryDispatchRepo) MarkFailed(ctx context.Context, communityID, date string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := dispatchKey(communityID, date)
	record, exists := r.items[key]
	if !exists || record.Status != core.DispatchRunning {
		return nil
	}
	record.Status = core.DispatchFailed
	record.UpdatedAt = time.Now().UTC()
	r.items[key] = record
	return nil
}

func (r *memoryDispatchRepo) Release(ctx context.Context, communityID, date string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := dispatchKey(communityID, date)
	record, exists := r.items[key]
	if exists && record.Status == core.DispatchRunning {
		delete(r.items, key)
	}
	return nil
}

func (r *memoryDispatchRepo) GetForDate(ctx context.Context, communityID, date string) (*core.DispatchRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, exists := r.items[dispatchKey(communityID, date)]
	if !exists {
		return nil, nil
	}
	return &record, nil
}
