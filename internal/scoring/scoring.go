// Package scoring derives a controversy score for ingested messages from
// reply, reaction, and keyword signals.
package scoring

import (
	"strings"
	"time"

	"snitch/internal/config"
	"snitch/internal/core"
)

// Weights is the single tunable table for the scorer. Every contribution is
// a weighted, capped term; there are no other constants in the scoring path.
type Weights struct {
	ReplyVelocityWeight float64       // Weight on replies per hour since posting
	ReplyVelocityCap    float64       // Cap on replies per hour before weighting
	ReactionWeight      float64       // Weight on total reaction count
	NegativeWeight      float64       // Extra weight on disagreement-category reactions
	KeywordIncrement    float64       // Contribution per debate-lexicon match
	KeywordCap          float64       // Cap on the total keyword contribution
	MinVelocityWindow   time.Duration // Floor on message age when computing velocity
}

// FromConfig builds Weights from the scoring config table.
func FromConfig(c config.Scoring) Weights {
	return Weights{
		ReplyVelocityWeight: c.ReplyVelocityWeight,
		ReplyVelocityCap:    c.ReplyVelocityCap,
		ReactionWeight:      c.ReactionWeight,
		NegativeWeight:      c.NegativeWeight,
		KeywordIncrement:    c.KeywordIncrement,
		KeywordCap:          c.KeywordCap,
		MinVelocityWindow:   time.Duration(c.MinVelocityWindowMin) * time.Minute,
	}
}

// DefaultWeights returns the tuning used when no config is loaded (tests,
// one-shot CLI runs).
func DefaultWeights() Weights {
	return Weights{
		ReplyVelocityWeight: 0.5,
		ReplyVelocityCap:    10.0,
		ReactionWeight:      0.1,
		NegativeWeight:      0.3,
		KeywordIncrement:    0.25,
		KeywordCap:          1.0,
		MinVelocityWindow:   10 * time.Minute,
	}
}

// negativeEmoji tags reactions that signal disagreement.
var negativeEmoji = map[string]bool{
	"👎": true,
	"😠": true,
	"🤬": true,
	"😤": true,
	"💀": true,
	"🙄": true,
}

// debateLexicon lists debate-indicative terms. Matching is case-insensitive
// substring; each match contributes KeywordIncrement up to KeywordCap.
var debateLexicon = []string{
	"wrong", "disagree", "actually", "prove", "false", "lie",
	"stupid", "dumb", "ridiculous", "nonsense", "source?",
}

// Scorer computes controversy scores. It never fails: absent signals
// contribute zero.
type Scorer struct {
	weights Weights
	now     func() time.Time
}

// NewScorer creates a scorer with the given weight table.
func NewScorer(weights Weights) *Scorer {
	return &Scorer{weights: weights, now: time.Now}
}

// NewScorerAt creates a scorer with a fixed clock, for deterministic tests.
func NewScorerAt(weights Weights, now func() time.Time) *Scorer {
	return &Scorer{weights: weights, now: now}
}

// Score returns a non-negative controversy score for the message. The score
// is monotonically non-decreasing in reply count and reaction count.
func (s *Scorer) Score(msg *core.MessageRecord) float64 {
	score := 0.0

	// Reply velocity: replies per hour since posting, capped. The age floor
	// keeps brand-new messages from producing unbounded velocity.
	if msg.ReplyCount > 0 {
		age := s.now().Sub(msg.Timestamp)
		if age < s.weights.MinVelocityWindow {
			age = s.weights.MinVelocityWindow
		}
		velocity := float64(msg.ReplyCount) / age.Hours()
		if velocity > s.weights.ReplyVelocityCap {
			velocity = s.weights.ReplyVelocityCap
		}
		score += velocity * s.weights.ReplyVelocityWeight
	}

	total := 0
	negative := 0
	for _, r := range msg.Reactions {
		if r.Count < 0 {
			continue
		}
		total += r.Count
		if negativeEmoji[r.Emoji] {
			negative += r.Count
		}
	}
	score += float64(total) * s.weights.ReactionWeight
	score += float64(negative) * s.weights.NegativeWeight

	score += s.keywordBoost(msg.Content)

	if score < 0 {
		return 0
	}
	return score
}

func (s *Scorer) keywordBoost(content string) float64 {
	if content == "" {
		return 0
	}
	lower := strings.ToLower(content)
	boost := 0.0
	for _, term := range debateLexicon {
		if strings.Contains(lower, term) {
			boost += s.weights.KeywordIncrement
			if boost >= s.weights.KeywordCap {
				return s.weights.KeywordCap
			}
		}
	}
	return boost
}
