package persistence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"snitch/internal/core"
)

func TestClaimRejectsSecondClaim(t *testing.T) {
	db := NewMemoryDB()
	ctx := context.Background()

	if err := db.Dispatches().Claim(ctx, "guild-1", "2025-06-01"); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	err := db.Dispatches().Claim(ctx, "guild-1", "2025-06-01")
	if !errors.Is(err, core.ErrDuplicateDispatch) {
		t.Fatalf("second claim: got %v, want ErrDuplicateDispatch", err)
	}

	// A different date or community claims independently.
	if err := db.Dispatches().Claim(ctx, "guild-1", "2025-06-02"); err != nil {
		t.Errorf("claim on next day: %v", err)
	}
	if err := db.Dispatches().Claim(ctx, "guild-2", "2025-06-01"); err != nil {
		t.Errorf("claim for other community: %v", err)
	}
}

func TestClaimConcurrent(t *testing.T) {
	db := NewMemoryDB()
	ctx := context.Background()

	const claimers = 16
	var wg sync.WaitGroup
	won := make(chan struct{}, claimers)
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if db.Dispatches().Claim(ctx, "guild-1", "2025-06-01") == nil {
				won <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(won)

	winners := 0
	for range won {
		winners++
	}
	if winners != 1 {
		t.Fatalf("expected exactly 1 winning claim, got %d", winners)
	}
}

func TestFinalizeAndFailedLifecycle(t *testing.T) {
	db := NewMemoryDB()
	ctx := context.Background()

	if err := db.Dispatches().Claim(ctx, "guild-1", "2025-06-01"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := db.Dispatches().Finalize(ctx, "guild-1", "2025-06-01", "msg-123"); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	record, err := db.Dispatches().GetForDate(ctx, "guild-1", "2025-06-01")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if record == nil || record.Status != core.DispatchDispatched {
		t.Fatalf("expected dispatched record, got %+v", record)
	}
	if record.ArtifactRef != "msg-123" {
		t.Errorf("artifact ref = %q, want msg-123", record.ArtifactRef)
	}

	// Finalizing twice has nothing to transition.
	if err := db.Dispatches().Finalize(ctx, "guild-1", "2025-06-01", "msg-456"); err == nil {
		t.Error("expected error finalizing an already-dispatched record")
	}

	// A failed record keeps blocking same-day claims.
	if err := db.Dispatches().Claim(ctx, "guild-2", "2025-06-01"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := db.Dispatches().MarkFailed(ctx, "guild-2", "2025-06-01"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if err := db.Dispatches().Claim(ctx, "guild-2", "2025-06-01"); !errors.Is(err, core.ErrDuplicateDispatch) {
		t.Errorf("claim after failure: got %v, want ErrDuplicateDispatch", err)
	}
}

func TestReleaseAllowsReclaim(t *testing.T) {
	db := NewMemoryDB()
	ctx := context.Background()

	if err := db.Dispatches().Claim(ctx, "guild-1", "2025-06-01"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := db.Dispatches().Release(ctx, "guild-1", "2025-06-01"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := db.Dispatches().Claim(ctx, "guild-1", "2025-06-01"); err != nil {
		t.Fatalf("reclaim after release: %v", err)
	}

	// Release only removes running records.
	if err := db.Dispatches().Finalize(ctx, "guild-1", "2025-06-01", "msg-1"); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if err := db.Dispatches().Release(ctx, "guild-1", "2025-06-01"); err != nil {
		t.Fatalf("release dispatched: %v", err)
	}
	record, _ := db.Dispatches().GetForDate(ctx, "guild-1", "2025-06-01")
	if record == nil || record.Status != core.DispatchDispatched {
		t.Errorf("dispatched record must survive a release, got %+v", record)
	}
}

func TestCommunityRepo(t *testing.T) {
	db := NewMemoryDB()
	ctx := context.Background()

	community := &core.Community{
		ID:             "guild-1",
		Name:           "Test Guild",
		Persona:        core.PersonaSassyReporter,
		NewsletterTime: "09:00",
		Enabled:        true,
		AdminUserIDs:   []string{"owner-1"},
	}
	if err := db.Communities().Create(ctx, community); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := db.Communities().Create(ctx, community); err == nil {
		t.Error("expected error on duplicate create")
	}

	got, err := db.Communities().Get(ctx, "guild-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.Name != "Test Guild" {
		t.Fatalf("get returned %+v", got)
	}
	if !got.IsAdmin("owner-1") || got.IsAdmin("stranger") {
		t.Error("admin check mismatch")
	}

	if err := db.Communities().SetEnabled(ctx, "guild-1", false); err != nil {
		t.Fatalf("set enabled: %v", err)
	}
	enabled, err := db.Communities().ListEnabled(ctx)
	if err != nil {
		t.Fatalf("list enabled: %v", err)
	}
	if len(enabled) != 0 {
		t.Errorf("expected no enabled communities, got %d", len(enabled))
	}

	at := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	if err := db.Communities().TouchDispatched(ctx, "guild-1", at); err != nil {
		t.Fatalf("touch dispatched: %v", err)
	}
	got, _ = db.Communities().Get(ctx, "guild-1")
	if !got.LastDispatchedAt.Equal(at) {
		t.Errorf("last dispatched = %v, want %v", got.LastDispatchedAt, at)
	}
}

func TestTipRepoListSince(t *testing.T) {
	db := NewMemoryDB()
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	_ = db.Tips().Create(ctx, &core.Tip{ID: "t1", CommunityID: "g1", SubmittedAt: base.Add(-time.Hour), Content: "old", Anonymous: true})
	_ = db.Tips().Create(ctx, &core.Tip{ID: "t2", CommunityID: "g1", SubmittedAt: base.Add(time.Hour), Content: "new", Anonymous: true})
	_ = db.Tips().Create(ctx, &core.Tip{ID: "t3", CommunityID: "g2", SubmittedAt: base.Add(time.Hour), Content: "other guild", Anonymous: true})

	tips, err := db.Tips().ListSince(ctx, "g1", base)
	if err != nil {
		t.Fatalf("list since: %v", err)
	}
	if len(tips) != 1 || tips[0].ID != "t2" {
		t.Fatalf("expected only t2, got %+v", tips)
	}
}
