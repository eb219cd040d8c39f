package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"snitch/internal/core"
	"snitch/internal/persistence"
)

type countingRunner struct {
	mu   sync.Mutex
	runs map[string]int // communityID|date -> count
	err  error
}

func newCountingRunner() *countingRunner {
	return &countingRunner{runs: make(map[string]int)}
}

func (r *countingRunner) Run(ctx context.Context, community *core.Community, date string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[community.ID+"|"+date]++
	return r.err
}

func (r *countingRunner) count(communityID, date string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runs[communityID+"|"+date]
}

func seedCommunity(t *testing.T, db persistence.Database, id, newsletterTime string) {
	t.Helper()
	err := db.Communities().Create(context.Background(), &core.Community{
		ID:             id,
		Name:           "Guild " + id,
		Persona:        core.PersonaSassyReporter,
		NewsChannelID:  "chan-" + id,
		NewsletterTime: newsletterTime,
		Enabled:        true,
	})
	if err != nil {
		t.Fatalf("seed community: %v", err)
	}
}

func testScheduler(db persistence.Database, runner Runner, now time.Time) *Scheduler {
	s := New(db, runner, DefaultOptions())
	s.now = func() time.Time { return now }
	return s
}

func TestDue(t *testing.T) {
	community := &core.Community{NewsletterTime: "09:00"}
	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	if Due(community, day.Add(8*time.Hour+59*time.Minute)) {
		t.Error("due before newsletter time")
	}
	if !Due(community, day.Add(9*time.Hour)) {
		t.Error("not due exactly at newsletter time")
	}
	if !Due(community, day.Add(23*time.Hour)) {
		t.Error("not due later in the day")
	}

	malformed := &core.Community{NewsletterTime: "9am"}
	if Due(malformed, day.Add(12*time.Hour)) {
		t.Error("malformed newsletter time must never be due")
	}
}

func TestTickRunsDueCommunitiesOnce(t *testing.T) {
	db := persistence.NewMemoryDB()
	seedCommunity(t, db, "guild-due", "09:00")
	seedCommunity(t, db, "guild-later", "22:00")

	runner := newCountingRunner()
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	s := testScheduler(db, runner, now)

	s.Tick(context.Background())
	s.wg.Wait()

	if got := runner.count("guild-due", "2025-06-01"); got != 1 {
		t.Errorf("due community ran %d times, want 1", got)
	}
	if got := runner.count("guild-later", "2025-06-01"); got != 0 {
		t.Errorf("not-yet-due community ran %d times, want 0", got)
	}

	// A second tick the same day finds the record and skips.
	s.Tick(context.Background())
	s.wg.Wait()
	if got := runner.count("guild-due", "2025-06-01"); got != 1 {
		t.Errorf("second tick re-ran the community: %d runs", got)
	}
}

func TestTickSkipsDisabledCommunities(t *testing.T) {
	db := persistence.NewMemoryDB()
	seedCommunity(t, db, "guild-off", "09:00")
	_ = db.Communities().SetEnabled(context.Background(), "guild-off", false)

	runner := newCountingRunner()
	s := testScheduler(db, runner, time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))

	s.Tick(context.Background())
	s.wg.Wait()
	if got := runner.count("guild-off", "2025-06-01"); got != 0 {
		t.Errorf("disabled community ran %d times", got)
	}
}

func TestConcurrentTicksDispatchOnce(t *testing.T) {
	db := persistence.NewMemoryDB()
	seedCommunity(t, db, "guild-1", "09:00")

	runner := newCountingRunner()
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	s := testScheduler(db, runner, now)

	var ticks sync.WaitGroup
	for i := 0; i < 8; i++ {
		ticks.Add(1)
		go func() {
			defer ticks.Done()
			s.Tick(context.Background())
		}()
	}
	ticks.Wait()
	s.wg.Wait()

	if got := runner.count("guild-1", "2025-06-01"); got != 1 {
		t.Fatalf("concurrent ticks ran the community %d times, want exactly 1", got)
	}
}

func TestTickNextDayRunsAgain(t *testing.T) {
	db := persistence.NewMemoryDB()
	seedCommunity(t, db, "guild-1", "09:00")

	runner := newCountingRunner()
	s := testScheduler(db, runner, time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))
	s.Tick(context.Background())
	s.wg.Wait()

	s.now = func() time.Time { return time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC) }
	s.Tick(context.Background())
	s.wg.Wait()

	if got := runner.count("guild-1", "2025-06-01"); got != 1 {
		t.Errorf("day one runs = %d", got)
	}
	if got := runner.count("guild-1", "2025-06-02"); got != 1 {
		t.Errorf("day two runs = %d", got)
	}
}

func TestParseNewsletterTime(t *testing.T) {
	hour, minute, err := ParseNewsletterTime("18:30")
	if err != nil || hour != 18 || minute != 30 {
		t.Errorf("ParseNewsletterTime(18:30) = %d:%d, %v", hour, minute, err)
	}
	for _, bad := range []string{"", "9am", "25:00", "12:60", "noon"} {
		if _, _, err := ParseNewsletterTime(bad); err == nil {
			t.Errorf("ParseNewsletterTime(%q) accepted", bad)
		}
	}
}
