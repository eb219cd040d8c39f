package scheduler

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"snitch/internal/core"
	"snitch/internal/dispatch"
	"snitch/internal/ingest"
	"snitch/internal/llm"
	"snitch/internal/persistence"
	"snitch/internal/pipeline"
	"snitch/internal/retriever"
	"snitch/internal/scoring"
	"snitch/internal/vectorstore"
)

// stageClient answers the three stages in order from canned outputs.
type stageClient struct {
	fail bool
}

func (c *stageClient) Complete(ctx context.Context, req llm.CompletionRequest) (string, error) {
	if c.fail {
		return "", errors.New("model exploded")
	}
	switch {
	case strings.Contains(req.System, "NEWS DESK"):
		return "**STORY 1:**\nHeadline: Big Channel Energy\nNewsworthiness: High engagement\nKey Players: several regulars\nSummary: The channel argued about everything at once.\nSource Cluster: 1\n", nil
	case strings.Contains(req.System, "EDITOR-IN-CHIEF"):
		return "Story: 1\nReasoning: It's the only story and it's a good one.", nil
	case strings.Contains(req.System, "STAR REPORTER"):
		return "HEADLINE: Big Channel Energy\nOne user said \"the channel argued about absolutely everything today and loved it\" and honestly, same.", nil
	}
	return "", errors.New("unexpected stage")
}

type stageEmbedder struct{}

func (stageEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float64, error) {
	return []float64{1, 0, 0}, nil
}

type historyStub struct {
	messages []core.RawMessage
	err      error
}

func (h *historyStub) FetchHistory(ctx context.Context, channelID string, since time.Time) ([]core.RawMessage, error) {
	return h.messages, h.err
}

type posterStub struct {
	posted int
	fail   bool
}

func (p *posterStub) PostNewsletter(ctx context.Context, channelID, content string) (string, error) {
	if p.fail {
		return "", errors.New("post rejected")
	}
	p.posted++
	return "msg-1", nil
}

func runnerFixture(t *testing.T, client llm.CompletionClient, poster dispatch.ChatPoster, messages []core.RawMessage) (*NewsletterRunner, persistence.Database) {
	t.Helper()
	db := persistence.NewMemoryDB()
	seedCommunity(t, db, "guild-1", "09:00")

	store := vectorstore.NewMemoryStore()
	ingestSvc := ingest.NewService(scoring.NewScorer(scoring.DefaultWeights()), stageEmbedder{}, store)

	opts := pipeline.DefaultOptions()
	opts.RetryBackoff = time.Millisecond
	pipe := pipeline.New(client, opts)

	runner := NewNewsletterRunner(
		&historyStub{messages: messages},
		ingestSvc,
		retriever.New(store, retriever.DefaultOptions()),
		pipe,
		dispatch.New(poster, db),
		db,
		24*time.Hour,
	)
	runner.now = func() time.Time { return time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC) }
	return runner, db
}

func windowMessages(n int) []core.RawMessage {
	base := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	msgs := make([]core.RawMessage, n)
	for i := range msgs {
		msgs[i] = core.RawMessage{
			ID:        "m" + string(rune('a'+i)),
			ChannelID: "chan-guild-1",
			AuthorID:  "user-1",
			Content:   "the channel argued about absolutely everything today and loved it",
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		}
	}
	return msgs
}

func claim(t *testing.T, db persistence.Database) {
	t.Helper()
	if err := db.Dispatches().Claim(context.Background(), "guild-1", "2025-06-01"); err != nil {
		t.Fatalf("claim: %v", err)
	}
}

func community(t *testing.T, db persistence.Database) *core.Community {
	t.Helper()
	c, err := db.Communities().Get(context.Background(), "guild-1")
	if err != nil || c == nil {
		t.Fatalf("get community: %v", err)
	}
	return c
}

func TestRunnerHappyPath(t *testing.T) {
	poster := &posterStub{}
	runner, db := runnerFixture(t, &stageClient{}, poster, windowMessages(6))
	claim(t, db)

	if err := runner.Run(context.Background(), community(t, db), "2025-06-01"); err != nil {
		t.Fatalf("run: %v", err)
	}
	if poster.posted != 1 {
		t.Errorf("posted %d newsletters", poster.posted)
	}
	record, _ := db.Dispatches().GetForDate(context.Background(), "guild-1", "2025-06-01")
	if record == nil || record.Status != core.DispatchDispatched {
		t.Fatalf("record = %+v", record)
	}
}

func TestRunnerQuietDayReleasesClaim(t *testing.T) {
	runner, db := runnerFixture(t, &stageClient{}, &posterStub{}, windowMessages(2))
	claim(t, db)

	if err := runner.Run(context.Background(), community(t, db), "2025-06-01"); err != nil {
		t.Fatalf("quiet run must not error: %v", err)
	}
	record, _ := db.Dispatches().GetForDate(context.Background(), "guild-1", "2025-06-01")
	if record != nil {
		t.Fatalf("quiet day must release the claim, got %+v", record)
	}
}

func TestRunnerPipelineFailureMarksFailed(t *testing.T) {
	runner, db := runnerFixture(t, &stageClient{fail: true}, &posterStub{}, windowMessages(6))
	claim(t, db)

	if err := runner.Run(context.Background(), community(t, db), "2025-06-01"); err == nil {
		t.Fatal("expected pipeline failure to surface")
	}
	record, _ := db.Dispatches().GetForDate(context.Background(), "guild-1", "2025-06-01")
	if record == nil || record.Status != core.DispatchFailed {
		t.Fatalf("record = %+v, want failed", record)
	}
}

func TestRunnerPostFailureReleasesClaim(t *testing.T) {
	runner, db := runnerFixture(t, &stageClient{}, &posterStub{fail: true}, windowMessages(6))
	claim(t, db)

	if err := runner.Run(context.Background(), community(t, db), "2025-06-01"); err == nil {
		t.Fatal("expected post failure to surface")
	}
	record, _ := db.Dispatches().GetForDate(context.Background(), "guild-1", "2025-06-01")
	if record != nil {
		t.Fatalf("post failure must release the claim, got %+v", record)
	}
}
