// Package pipeline implements the three-stage newsletter chain: the news
// desk drafts story candidates from conversation clusters, the editor picks
// one headline, and the star reporter writes the article.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"snitch/internal/config"
	"snitch/internal/core"
	"snitch/internal/llm"
	"snitch/internal/logger"
	"snitch/internal/retriever"
)

// maxExcerptsPerCluster bounds prompt size per cluster.
const maxExcerptsPerCluster = 10

// maxBriefMentions caps the one-line briefs added below the main story.
const maxBriefMentions = 3

// Options hold stage-chain tunables.
type Options struct {
	StageTimeout  time.Duration
	MaxRetries    int // Retries per stage on transient failures
	RetryBackoff  time.Duration
	RunBudget     time.Duration
	MinMessages   int // Window short-circuits below this
	MaxStories    int // Stage A candidates kept after parsing
	MaxQuoteChars int // Per-excerpt length cap in prompts
	ModelName     string
}

// FromConfig builds Options from the pipeline and retriever config
// sections.
func FromConfig(p config.Pipeline, r config.Retriever, modelName string) Options {
	return Options{
		StageTimeout:  config.Duration(p.StageTimeout, 30*time.Second),
		MaxRetries:    p.MaxRetries,
		RetryBackoff:  config.Duration(p.RetryBackoff, 2*time.Second),
		RunBudget:     config.Duration(p.RunBudget, 2*time.Minute),
		MinMessages:   r.MinMessages,
		MaxStories:    p.MaxStories,
		MaxQuoteChars: p.MaxQuoteChars,
		ModelName:     modelName,
	}
}

// DefaultOptions returns the standard pipeline tuning.
func DefaultOptions() Options {
	return Options{
		StageTimeout:  30 * time.Second,
		MaxRetries:    2,
		RetryBackoff:  2 * time.Second,
		RunBudget:     2 * time.Minute,
		MinMessages:   5,
		MaxStories:    5,
		MaxQuoteChars: 200,
		ModelName:     llm.DefaultModel,
	}
}

// Pipeline runs the full newsletter chain for one community.
type Pipeline struct {
	client llm.CompletionClient
	opts   Options
	log    *slog.Logger
}

// New creates a pipeline over the given completion client.
func New(client llm.CompletionClient, opts Options) *Pipeline {
	return &Pipeline{client: client, opts: opts, log: logger.Get()}
}

// Generate runs the strict A -> B -> C chain over the ranked clusters and
// returns the finished article. Tips are anonymous reader leads offered to
// the news desk alongside the clusters; they never count toward the
// minimum-content gate. It returns core.ErrInsufficientContent when the
// window carries too few messages; no partial article is ever returned.
func (p *Pipeline) Generate(ctx context.Context, community *core.Community, clusters []retriever.Cluster, tips []core.Tip) (*core.Article, error) {
	total := 0
	for _, cluster := range clusters {
		total += len(cluster.Messages)
	}
	if len(clusters) == 0 || total < p.opts.MinMessages {
		return nil, core.ErrInsufficientContent
	}

	ctx, cancel := context.WithTimeout(ctx, p.opts.RunBudget)
	defer cancel()

	started := time.Now()

	candidates, err := p.newsDesk(ctx, community, clusters, tips)
	if err != nil {
		return nil, fmt.Errorf("news desk stage: %w", err)
	}

	selected, err := p.editorChief(ctx, community, candidates)
	if err != nil {
		return nil, fmt.Errorf("editor stage: %w", err)
	}

	article, err := p.starReporter(ctx, community, selected)
	if err != nil {
		return nil, fmt.Errorf("reporter stage: %w", err)
	}

	article.BriefMentions = briefMentions(candidates, selected)
	p.log.Info("Newsletter generated",
		"community_id", community.ID, "headline", article.Headline,
		"candidates", len(candidates), "fallback_selection", selected.Fallback,
		"duration", time.Since(started))
	return article, nil
}

// newsDesk is Stage A: clusters in, grounded story candidates out.
func (p *Pipeline) newsDesk(ctx context.Context, community *core.Community, clusters []retriever.Cluster, tips []core.Tip) ([]core.StoryCandidate, error) {
	var candidates []core.StoryCandidate
	err := p.callStage(ctx, "news_desk", func(ctx context.Context) error {
		raw, err := p.client.Complete(ctx, llm.CompletionRequest{
			System:  newsDeskSystem(community.Persona),
			Prompt:  newsDeskPrompt(clusters, tips, maxExcerptsPerCluster, p.opts.MaxQuoteChars),
			Timeout: p.opts.StageTimeout,
		})
		if err != nil {
			return err
		}
		candidates, err = parseStoryCandidates(raw, clusters)
		if err == nil && p.opts.MaxStories > 0 && len(candidates) > p.opts.MaxStories {
			candidates = candidates[:p.opts.MaxStories]
		}
		return err
	})
	return candidates, err
}

// editorChief is Stage B: candidates in, exactly one selection out.
// Ambiguous output deterministically falls back to the top-ranked
// candidate instead of failing the run.
func (p *Pipeline) editorChief(ctx context.Context, community *core.Community, candidates []core.StoryCandidate) (*core.SelectedStory, error) {
	var selected core.SelectedStory
	err := p.callStage(ctx, "editor_chief", func(ctx context.Context) error {
		raw, err := p.client.Complete(ctx, llm.CompletionRequest{
			System:  editorChiefSystem(community.Persona),
			Prompt:  editorChiefPrompt(candidates),
			Timeout: p.opts.StageTimeout,
		})
		if err != nil {
			return err
		}
		selected = parseSelectedStory(raw, candidates)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if selected.Fallback {
		p.log.Warn("Editorial selection was ambiguous, falling back to top-ranked candidate",
			"community_id", community.ID, "headline", selected.Headline)
	}
	return &selected, nil
}

// starReporter is Stage C: selection in, quoted article out.
func (p *Pipeline) starReporter(ctx context.Context, community *core.Community, story *core.SelectedStory) (*core.Article, error) {
	var article *core.Article
	err := p.callStage(ctx, "star_reporter", func(ctx context.Context) error {
		raw, err := p.client.Complete(ctx, llm.CompletionRequest{
			System:  starReporterSystem(community.Persona),
			Prompt:  starReporterPrompt(story, p.opts.MaxQuoteChars),
			Timeout: p.opts.StageTimeout,
		})
		if err != nil {
			return err
		}
		headline, body, err := parseArticle(raw, story)
		if err != nil {
			return err
		}
		article = &core.Article{
			Headline:    headline,
			Intro:       introFor(community.Persona),
			Body:        body,
			Conclusion:  conclusionFor(community.Persona),
			Persona:     community.Persona,
			ModelUsed:   p.opts.ModelName,
			GeneratedAt: time.Now().UTC(),
		}
		return nil
	})
	return article, err
}

// callStage runs one stage with retries. Transient failures retry up to
// MaxRetries with doubling backoff; grounding failures retry exactly once;
// everything else fails immediately.
func (p *Pipeline) callStage(ctx context.Context, stage string, fn func(context.Context) error) error {
	backoff := p.opts.RetryBackoff
	groundingRetried := false

	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		var grounding *core.GroundingError
		switch {
		case errors.As(err, &grounding):
			if groundingRetried {
				return err
			}
			groundingRetried = true
			p.log.Warn("Stage output failed grounding check, retrying once",
				"stage", stage, "detail", grounding.Detail)
		case core.IsTransient(err):
			if attempt >= p.opts.MaxRetries {
				return err
			}
			p.log.Warn("Stage failed transiently, backing off",
				"stage", stage, "attempt", attempt+1, "backoff", backoff, "error", err)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff *= 2
		default:
			return err
		}
	}
}

// briefMentions returns one-line briefs for up to three candidates that
// did not make the headline.
func briefMentions(candidates []core.StoryCandidate, selected *core.SelectedStory) []string {
	var mentions []string
	for _, candidate := range candidates {
		if candidate.Headline == selected.Headline && candidate.ClusterID == selected.ClusterID {
			continue
		}
		if len(mentions) >= maxBriefMentions {
			break
		}
		mentions = append(mentions, candidate.Headline)
	}
	return mentions
}
