// Package dispatch posts finished newsletters and keeps the per-day
// dispatch ledger consistent with what actually reached the channel.
package dispatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"snitch/internal/core"
	"snitch/internal/logger"
	"snitch/internal/persistence"
)

// ChatPoster posts a rendered newsletter to a community channel and
// returns a reference to the posted message.
type ChatPoster interface {
	PostNewsletter(ctx context.Context, channelID string, content string) (string, error)
}

// Dispatcher owns the post-then-record sequence.
type Dispatcher struct {
	poster      ChatPoster
	dispatches  persistence.DispatchRepository
	communities persistence.CommunityRepository
}

// New creates a dispatcher.
func New(poster ChatPoster, db persistence.Database) *Dispatcher {
	return &Dispatcher{
		poster:      poster,
		dispatches:  db.Dispatches(),
		communities: db.Communities(),
	}
}

// Dispatch posts the article to the community's news channel and finalizes
// the day's dispatch record. The caller must already hold the claim for
// (community, date).
//
// If the post fails, the provisional record is released so a later run can
// retry: a missed newsletter beats a duplicate one, but an unposted claim
// must not block the rest of the day.
func (d *Dispatcher) Dispatch(ctx context.Context, community *core.Community, date string, article *core.Article) error {
	if community.NewsChannelID == "" {
		if err := d.dispatches.MarkFailed(ctx, community.ID, date); err != nil {
			logger.Error("Failed to mark dispatch failed", err, "community_id", community.ID)
		}
		return &core.ConfigError{CommunityID: community.ID, Missing: "news_channel_id"}
	}

	ref, err := d.poster.PostNewsletter(ctx, community.NewsChannelID, Render(article))
	if err != nil {
		logger.Error("Newsletter post failed, releasing claim", err,
			"community_id", community.ID, "date", date)
		if releaseErr := d.dispatches.Release(ctx, community.ID, date); releaseErr != nil {
			logger.Error("Failed to release dispatch claim", releaseErr,
				"community_id", community.ID, "date", date)
		}
		return fmt.Errorf("failed to post newsletter: %w", err)
	}

	if err := d.dispatches.Finalize(ctx, community.ID, date, ref); err != nil {
		// The message is out; the record must reflect that even if this
		// update fails. Log loudly and surface the error.
		logger.Error("Newsletter posted but record finalization failed", err,
			"community_id", community.ID, "date", date, "artifact_ref", ref)
		return fmt.Errorf("failed to finalize dispatch record: %w", err)
	}

	if err := d.communities.TouchDispatched(ctx, community.ID, time.Now().UTC()); err != nil {
		logger.Warn("Failed to update last dispatch timestamp",
			"community_id", community.ID, "error", err)
	}

	logger.Info("Newsletter dispatched",
		"community_id", community.ID, "date", date, "artifact_ref", ref)
	return nil
}

// MarkFailed records a pipeline failure against the held claim. The failed
// record stays for the rest of the day so retries don't storm the model.
func (d *Dispatcher) MarkFailed(ctx context.Context, communityID, date string) {
	if err := d.dispatches.MarkFailed(ctx, communityID, date); err != nil {
		logger.Error("Failed to mark dispatch failed", err,
			"community_id", communityID, "date", date)
	}
}

// Render formats the article for posting: persona intro, headline, body,
// the brief mentions block, and the persona sign-off.
func Render(article *core.Article) string {
	var b strings.Builder
	if article.Intro != "" {
		fmt.Fprintf(&b, "%s\n\n", article.Intro)
	}
	fmt.Fprintf(&b, "## 📰 %s\n\n%s\n", article.Headline, article.Body)
	if len(article.BriefMentions) > 0 {
		b.WriteString("\n**Also on the wire:**\n")
		for _, mention := range article.BriefMentions {
			fmt.Fprintf(&b, "- %s\n", mention)
		}
	}
	if article.Conclusion != "" {
		fmt.Fprintf(&b, "\n%s\n", article.Conclusion)
	}
	return b.String()
}
