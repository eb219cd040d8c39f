package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"snitch/internal/config"
	"snitch/internal/core"
	"snitch/internal/discord"
	"snitch/internal/dispatch"
	"snitch/internal/ingest"
	"snitch/internal/llm"
	"snitch/internal/persistence"
	"snitch/internal/pipeline"
	"snitch/internal/retriever"
	"snitch/internal/scheduler"
	"snitch/internal/scoring"
)

var (
	newsletterDate string
	newsletterPost bool
)

var newsletterCmd = &cobra.Command{
	Use:   "newsletter <community-id>",
	Short: "Generate a newsletter for one community",
	Long: `Run the newsletter pipeline once for a single community.

By default the generated newsletter is printed to stdout without touching
the dispatch ledger, so the command is safe to run while the scheduler is
live. With --post the run goes through the normal claim-and-dispatch path:
it posts to the community's news channel and records the dispatch, and is
rejected if the day is already claimed.

Examples:
  # Preview today's newsletter
  snitch newsletter 123456789012345678

  # Post for a specific date
  snitch newsletter 123456789012345678 --date 2026-08-27 --post`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runNewsletter(cmd.Context(), args[0])
	},
}

func init() {
	newsletterCmd.Flags().StringVar(&newsletterDate, "date", "", "dispatch date as YYYY-MM-DD (default today, UTC)")
	newsletterCmd.Flags().BoolVar(&newsletterPost, "post", false, "post to the news channel and record the dispatch")
	rootCmd.AddCommand(newsletterCmd)
}

func runNewsletter(ctx context.Context, communityID string) error {
	cfg := config.Get()

	date := newsletterDate
	if date == "" {
		date = time.Now().UTC().Format("2006-01-02")
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return fmt.Errorf("invalid --date %q: want YYYY-MM-DD", newsletterDate)
	}

	db, store, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	community, err := lookupCommunity(ctx, db, communityID)
	if err != nil {
		return err
	}

	client, err := llm.NewClient(cfg.AI.Gemini.Model)
	if err != nil {
		return fmt.Errorf("failed to create LLM client: %w", err)
	}

	ret := retriever.New(store, retriever.FromConfig(cfg.Retriever))
	pipe := pipeline.New(client, pipeline.FromConfig(cfg.Pipeline, cfg.Retriever, client.ModelName()))

	if !newsletterPost {
		return previewNewsletter(ctx, db, community, ret, pipe, cfg)
	}

	// The posting path needs a live session, and runs through the same
	// claim-and-dispatch sequence the scheduler uses.
	bot, err := discord.NewBot(cfg.Discord, db, pipe)
	if err != nil {
		return fmt.Errorf("failed to create bot: %w", err)
	}
	if err := bot.Start(); err != nil {
		return fmt.Errorf("failed to start bot: %w", err)
	}
	defer bot.Stop()

	dispatcher := dispatch.New(discord.NewPosterAdapter(bot), db)

	var fetcher scheduler.HistoryFetcher
	if cfg.Scheduler.IngestOnDemand {
		fetcher = discord.NewHistoryAdapter(bot)
	}
	scorer := scoring.NewScorer(scoring.FromConfig(cfg.Scoring))
	ingestSvc := ingest.NewService(scorer, client, store)
	window := time.Duration(cfg.Retriever.WindowHours) * time.Hour
	runner := scheduler.NewNewsletterRunner(fetcher, ingestSvc, ret, pipe, dispatcher, db, window)

	if err := db.Dispatches().Claim(ctx, communityID, date); err != nil {
		if errors.Is(err, core.ErrDuplicateDispatch) {
			return fmt.Errorf("community %s already has a dispatch for %s", communityID, date)
		}
		return fmt.Errorf("failed to claim dispatch: %w", err)
	}

	if err := runner.Run(ctx, community, date); err != nil {
		return fmt.Errorf("newsletter run failed: %w", err)
	}
	fmt.Printf("Newsletter dispatched for %s on %s\n", community.Name, date)
	return nil
}

// lookupCommunity resolves the ID for the CLI. Repositories return
// (nil, nil) for an unknown community; that case must become an error
// here, before anything claims or dereferences.
func lookupCommunity(ctx context.Context, db persistence.Database, id string) (*core.Community, error) {
	community, err := db.Communities().Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("community %s: %w", id, err)
	}
	if community == nil {
		return nil, fmt.Errorf("community %s not found", id)
	}
	return community, nil
}

func previewNewsletter(ctx context.Context, db persistence.Database, community *core.Community, ret *retriever.Retriever, pipe *pipeline.Pipeline, cfg *config.Config) error {
	now := time.Now().UTC()
	clusters, err := ret.SelectCandidates(ctx, community.ID, now)
	if err != nil {
		return fmt.Errorf("candidate selection failed: %w", err)
	}

	window := time.Duration(cfg.Retriever.WindowHours) * time.Hour
	tips, err := db.Tips().ListSince(ctx, community.ID, now.Add(-window))
	if err != nil {
		tips = nil
	}

	article, err := pipe.Generate(ctx, community, clusters, tips)
	if err != nil {
		if errors.Is(err, core.ErrInsufficientContent) {
			fmt.Println("Not enough recent activity for a newsletter. Quiet day.")
			return nil
		}
		return fmt.Errorf("generation failed: %w", err)
	}

	fmt.Println(dispatch.Render(article))
	return nil
}
