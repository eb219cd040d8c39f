package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"snitch/internal/core"
	"snitch/internal/dispatch"
	"snitch/internal/ingest"
	"snitch/internal/logger"
	"snitch/internal/persistence"
	"snitch/internal/pipeline"
	"snitch/internal/retriever"
)

// HistoryFetcher reads recent channel history for ingestion.
type HistoryFetcher interface {
	FetchHistory(ctx context.Context, channelID string, since time.Time) ([]core.RawMessage, error)
}

// NewsletterRunner is the production Runner: it optionally ingests the
// community's window, selects candidate clusters, generates the article,
// and dispatches it.
type NewsletterRunner struct {
	fetcher    HistoryFetcher
	ingest     *ingest.Service
	retriever  *retriever.Retriever
	pipeline   *pipeline.Pipeline
	dispatcher *dispatch.Dispatcher
	db         persistence.Database
	window     time.Duration
	now        func() time.Time
}

// NewNewsletterRunner wires the full run path. fetcher may be nil when
// ingestion happens elsewhere.
func NewNewsletterRunner(
	fetcher HistoryFetcher,
	ingestSvc *ingest.Service,
	ret *retriever.Retriever,
	pipe *pipeline.Pipeline,
	dispatcher *dispatch.Dispatcher,
	db persistence.Database,
	window time.Duration,
) *NewsletterRunner {
	return &NewsletterRunner{
		fetcher:    fetcher,
		ingest:     ingestSvc,
		retriever:  ret,
		pipeline:   pipe,
		dispatcher: dispatcher,
		db:         db,
		window:     window,
		now:        time.Now,
	}
}

// Run executes one claimed newsletter run. Outcome handling:
//   - too little content: the claim is released so the run retries once
//     the community has something to talk about
//   - pipeline failure: the claim is marked failed and blocks the day
//   - post failure: the dispatcher releases the claim itself
func (r *NewsletterRunner) Run(ctx context.Context, community *core.Community, date string) error {
	now := r.now().UTC()

	if r.fetcher != nil && r.ingest != nil {
		channelID := community.SourceChannelID
		if channelID == "" {
			channelID = community.NewsChannelID
		}
		if channelID != "" {
			raw, err := r.fetcher.FetchHistory(ctx, channelID, now.Add(-r.window))
			if err != nil {
				logger.Warn("History fetch failed, generating from stored messages",
					"community_id", community.ID, "error", err)
			} else if _, err := r.ingest.Ingest(ctx, community.ID, raw); err != nil {
				logger.Warn("Ingestion failed, generating from stored messages",
					"community_id", community.ID, "error", err)
			}
		}
	}

	clusters, err := r.retriever.SelectCandidates(ctx, community.ID, now)
	if err != nil {
		r.dispatcher.MarkFailed(ctx, community.ID, date)
		return fmt.Errorf("candidate selection failed: %w", err)
	}

	tips, err := r.db.Tips().ListSince(ctx, community.ID, now.Add(-r.window))
	if err != nil {
		logger.Warn("Tip lookup failed, generating without tips",
			"community_id", community.ID, "error", err)
		tips = nil
	}

	article, err := r.pipeline.Generate(ctx, community, clusters, tips)
	if errors.Is(err, core.ErrInsufficientContent) {
		logger.Info("Window too quiet for a newsletter, releasing claim",
			"community_id", community.ID, "date", date)
		if relErr := r.db.Dispatches().Release(ctx, community.ID, date); relErr != nil {
			logger.Error("Failed to release quiet-day claim", relErr,
				"community_id", community.ID, "date", date)
		}
		return nil
	}
	if err != nil {
		r.dispatcher.MarkFailed(ctx, community.ID, date)
		return fmt.Errorf("generation failed: %w", err)
	}

	return r.dispatcher.Dispatch(ctx, community, date, article)
}
