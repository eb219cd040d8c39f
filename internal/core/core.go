package core

import "time"

// Persona selects the writing-style template applied to generated text.
type Persona string

const (
	PersonaSassyReporter           Persona = "sassy_reporter"
	PersonaInvestigativeJournalist Persona = "investigative_journalist"
	PersonaGossipColumnist         Persona = "gossip_columnist"
	PersonaSportsCommentator       Persona = "sports_commentator"
	PersonaWeatherAnchor           Persona = "weather_anchor"
	PersonaConspiracyTheorist      Persona = "conspiracy_theorist"
)

// Personas lists every selectable persona.
func Personas() []Persona {
	return []Persona{
		PersonaSassyReporter,
		PersonaInvestigativeJournalist,
		PersonaGossipColumnist,
		PersonaSportsCommentator,
		PersonaWeatherAnchor,
		PersonaConspiracyTheorist,
	}
}

// Valid reports whether p is a known persona.
func (p Persona) Valid() bool {
	for _, known := range Personas() {
		if p == known {
			return true
		}
	}
	return false
}

// Community is one chat server (tenant) with its own configuration and
// message partition. Communities are soft-disabled, never deleted.
type Community struct {
	ID               string    `json:"id"`                 // Guild snowflake, also the storage partition key
	Name             string    `json:"name"`               // Guild display name
	Persona          Persona   `json:"persona"`            // Active writing persona
	NewsChannelID    string    `json:"news_channel_id"`    // Channel the newsletter is posted to
	SourceChannelID  string    `json:"source_channel_id"`  // Channel read for on-demand commands (empty = invoking channel)
	NewsletterTime   string    `json:"newsletter_time"`    // Dispatch time of day, "HH:MM" UTC
	Enabled          bool      `json:"enabled"`            // False after the bot is removed from the guild
	AdminUserIDs     []string  `json:"admin_user_ids"`     // Users allowed to run config commands (owner implied)
	LastDispatchedAt time.Time `json:"last_dispatched_at"` // Timestamp of the last successful dispatch
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// IsAdmin reports whether the user may run configuration commands.
func (c *Community) IsAdmin(userID string) bool {
	for _, id := range c.AdminUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Reaction is one emoji reaction aggregate on a message.
type Reaction struct {
	Emoji string `json:"emoji"`
	Count int    `json:"count"`
}

// MessageRecord is one chat message observed during an ingestion window.
// The embedding vector and controversy score are immutable once computed;
// re-ingestion of the same ID is an idempotent no-op.
type MessageRecord struct {
	ID               string     `json:"id"`                // Message snowflake
	CommunityID      string     `json:"community_id"`      // Partition key; all access is scoped to it
	ChannelID        string     `json:"channel_id"`        // Channel the message was posted in
	AuthorID         string     `json:"author_id"`         // Author snowflake
	Content          string     `json:"content"`           // Raw message text
	Timestamp        time.Time  `json:"timestamp"`         // Message creation time
	ReplyCount       int        `json:"reply_count"`       // Observed replies at ingestion time
	Reactions        []Reaction `json:"reactions"`         // Reaction aggregates by emoji
	ControversyScore float64    `json:"controversy_score"` // Derived engagement metric, non-negative
	Embedding        []float64  `json:"embedding"`         // Content vector, fixed length per model version
	BatchID          string     `json:"batch_id"`          // Ingestion batch identifier
}

// TotalReactions sums reaction counts across all emoji.
func (m *MessageRecord) TotalReactions() int {
	total := 0
	for _, r := range m.Reactions {
		total += r.Count
	}
	return total
}

// Tip is anonymous user-submitted text used as an optional retrieval seed.
// Tips are write-once and read-only afterwards.
type Tip struct {
	ID          string    `json:"id"`
	CommunityID string    `json:"community_id"`
	SubmittedAt time.Time `json:"submitted_at"`
	Content     string    `json:"content"`
	Anonymous   bool      `json:"anonymous"`
}

// DispatchStatus tracks the lifecycle of a dispatch record.
type DispatchStatus string

const (
	// DispatchRunning marks a claimed run that has not yet posted.
	DispatchRunning DispatchStatus = "running"
	// DispatchDispatched marks a confirmed post.
	DispatchDispatched DispatchStatus = "dispatched"
	// DispatchFailed marks a run that failed after claiming; it blocks
	// same-day retries.
	DispatchFailed DispatchStatus = "failed"
)

// DispatchRecord is the fact that a community received (or claimed) a
// newsletter on a given date. Unique per (community, date).
type DispatchRecord struct {
	CommunityID string         `json:"community_id"`
	Date        string         `json:"date"` // Calendar date, "2006-01-02" UTC
	Status      DispatchStatus `json:"status"`
	ArtifactRef string         `json:"artifact_ref"` // Posted message reference, set on dispatch
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// StoryCandidate is the Stage A artifact: one potential story grounded in a
// conversation cluster.
type StoryCandidate struct {
	Headline       string   `json:"headline"`
	Summary        string   `json:"summary"`
	Newsworthiness string   `json:"newsworthiness"`
	KeyPlayers     string   `json:"key_players"`
	ClusterID      string   `json:"cluster_id"`      // Cluster the story derives from
	CompositeScore float64  `json:"composite_score"` // Carried from the retriever ranking
	Excerpts       []string `json:"excerpts"`        // Source message excerpts backing the story
}

// SelectedStory is the Stage B artifact: exactly one candidate plus the
// editorial justification.
type SelectedStory struct {
	StoryCandidate
	Justification string `json:"justification"`
	Fallback      bool   `json:"fallback"` // True when selection fell back to the top-ranked candidate
}

// Article is the Stage C artifact handed to dispatch.
type Article struct {
	Headline      string    `json:"headline"`
	Intro         string    `json:"intro"` // Persona-voiced opening flourish
	Body          string    `json:"body"`
	BriefMentions []string  `json:"brief_mentions"` // One-line briefs for non-headline candidates
	Conclusion    string    `json:"conclusion"`     // Persona-voiced sign-off
	Persona       Persona   `json:"persona"`
	ModelUsed     string    `json:"model_used"`
	GeneratedAt   time.Time `json:"generated_at"`
}

// FactCheckVerdict is the closed verdict set for fact-check requests.
type FactCheckVerdict string

const (
	VerdictTrue               FactCheckVerdict = "True"
	VerdictFalse              FactCheckVerdict = "False"
	VerdictNeedsInvestigation FactCheckVerdict = "Needs Investigation"
)

// RawMessage is a platform message as fetched from chat history, before
// scoring and embedding.
type RawMessage struct {
	ID         string     `json:"id"`
	ChannelID  string     `json:"channel_id"`
	AuthorID   string     `json:"author_id"`
	AuthorBot  bool       `json:"author_bot"`
	Content    string     `json:"content"`
	Timestamp  time.Time  `json:"timestamp"`
	ReplyCount int        `json:"reply_count"`
	Reactions  []Reaction `json:"reactions"`
}
