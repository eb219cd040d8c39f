package pipeline

import (
	"regexp"
	"strconv"
	"strings"

	"snitch/internal/core"
	"snitch/internal/retriever"
)

// minQuoteWords is the shortest verbatim excerpt fragment that counts as a
// real quote in the final article.
const minQuoteWords = 5

var storyHeaderRe = regexp.MustCompile(`(?m)^\s*\*\*STORY\s+(\d+):?\*\*:?\s*$`)
var selectedStoryRe = regexp.MustCompile(`(?mi)^\s*Story:\s*(?:\[)?(?:story\s*)?#?(\d+)`)
var numberRe = regexp.MustCompile(`\d+`)

// parseStoryCandidates parses Stage A output into candidates bound to
// their source clusters. Candidates that reference a cluster outside the
// provided set, or that miss required fields, fail the grounding check.
func parseStoryCandidates(raw string, clusters []retriever.Cluster) ([]core.StoryCandidate, error) {
	sections := splitStorySections(raw)
	if len(sections) == 0 {
		return nil, &core.GroundingError{Stage: "news_desk", Detail: "no story sections in output"}
	}

	var candidates []core.StoryCandidate
	for _, section := range sections {
		fields := parseFields(section)

		headline := fields["headline"]
		summary := fields["summary"]
		if headline == "" || summary == "" {
			return nil, &core.GroundingError{Stage: "news_desk", Detail: "candidate missing headline or summary"}
		}

		clusterNum, ok := parseClusterRef(fields["source cluster"])
		if !ok || clusterNum < 1 || clusterNum > len(clusters) {
			return nil, &core.GroundingError{Stage: "news_desk", Detail: "candidate references unknown cluster"}
		}
		cluster := clusters[clusterNum-1]

		candidates = append(candidates, core.StoryCandidate{
			Headline:       headline,
			Summary:        summary,
			Newsworthiness: fields["newsworthiness"],
			KeyPlayers:     fields["key players"],
			ClusterID:      cluster.ID,
			CompositeScore: cluster.CompositeScore,
			Excerpts:       cluster.Excerpts(maxExcerptsPerCluster),
		})
	}
	return candidates, nil
}

// splitStorySections breaks Stage A output into per-story blocks.
func splitStorySections(raw string) []string {
	indexes := storyHeaderRe.FindAllStringIndex(raw, -1)
	var sections []string
	for i, idx := range indexes {
		end := len(raw)
		if i+1 < len(indexes) {
			end = indexes[i+1][0]
		}
		sections = append(sections, raw[idx[1]:end])
	}
	return sections
}

// parseFields extracts "Key: value" lines, lowercasing keys. Values may
// wrap onto following lines until the next key.
func parseFields(section string) map[string]string {
	fields := make(map[string]string)
	var currentKey string
	for _, line := range strings.Split(section, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			currentKey = ""
			continue
		}
		if key, value, found := strings.Cut(trimmed, ":"); found && isFieldKey(key) {
			currentKey = strings.ToLower(strings.TrimSpace(key))
			fields[currentKey] = strings.TrimSpace(trimValueBrackets(value))
			continue
		}
		if currentKey != "" {
			fields[currentKey] = strings.TrimSpace(fields[currentKey] + " " + trimmed)
		}
	}
	return fields
}

func isFieldKey(key string) bool {
	switch strings.ToLower(strings.TrimSpace(key)) {
	case "headline", "newsworthiness", "key players", "summary", "source cluster":
		return true
	}
	return false
}

func trimValueBrackets(value string) string {
	value = strings.TrimSpace(value)
	value = strings.TrimPrefix(value, "[")
	value = strings.TrimSuffix(value, "]")
	return value
}

func parseClusterRef(value string) (int, bool) {
	match := numberRe.FindString(value)
	if match == "" {
		return 0, false
	}
	n, err := strconv.Atoi(match)
	if err != nil {
		return 0, false
	}
	return n, true
}

// parseSelectedStory parses Stage B output into exactly one selection.
// Anything ambiguous (zero or multiple selections, out-of-range story
// number) falls back deterministically to the top-ranked candidate.
func parseSelectedStory(raw string, candidates []core.StoryCandidate) core.SelectedStory {
	matches := selectedStoryRe.FindAllStringSubmatch(raw, -1)
	if len(matches) != 1 {
		return fallbackSelection(candidates)
	}

	n, err := strconv.Atoi(matches[0][1])
	if err != nil || n < 1 || n > len(candidates) {
		return fallbackSelection(candidates)
	}

	return core.SelectedStory{
		StoryCandidate: candidates[n-1],
		Justification:  parseReasoning(raw),
	}
}

// fallbackSelection picks the candidate carried from the top-ranked
// cluster. Candidates preserve retriever rank order on composite score.
func fallbackSelection(candidates []core.StoryCandidate) core.SelectedStory {
	best := 0
	for i := 1; i < len(candidates); i++ {
		if candidates[i].CompositeScore > candidates[best].CompositeScore {
			best = i
		}
	}
	return core.SelectedStory{
		StoryCandidate: candidates[best],
		Justification:  "Selected by rank after an ambiguous editorial pass.",
		Fallback:       true,
	}
}

func parseReasoning(raw string) string {
	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(line)
		if key, value, found := strings.Cut(trimmed, ":"); found &&
			strings.EqualFold(strings.TrimSpace(key), "reasoning") {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

// parseArticle parses Stage C output and verifies the article quotes its
// source excerpts verbatim. An article with no real quote is ungrounded.
func parseArticle(raw string, story *core.SelectedStory) (headline, body string, err error) {
	headline = story.Headline
	body = strings.TrimSpace(raw)

	if line, rest, found := strings.Cut(body, "\n"); found || strings.HasPrefix(body, "HEADLINE:") {
		trimmed := strings.TrimSpace(line)
		if after, ok := strings.CutPrefix(trimmed, "HEADLINE:"); ok {
			headline = strings.TrimSpace(after)
			body = strings.TrimSpace(rest)
		}
	}
	if body == "" {
		return "", "", &core.GroundingError{Stage: "star_reporter", Detail: "empty article body"}
	}
	if !quotesExcerpt(body, story.Excerpts) {
		return "", "", &core.GroundingError{Stage: "star_reporter", Detail: "article has no verbatim quote from the source excerpts"}
	}
	return headline, body, nil
}

// quotesExcerpt reports whether the body contains at least minQuoteWords
// consecutive words taken verbatim from any excerpt. Comparison ignores
// case and punctuation-adjacent whitespace differences.
func quotesExcerpt(body string, excerpts []string) bool {
	normalBody := normalizeWords(body)
	joined := " " + strings.Join(normalBody, " ") + " "

	for _, excerpt := range excerpts {
		words := normalizeWords(excerpt)
		if len(words) < minQuoteWords {
			// Short excerpts count when quoted whole.
			if len(words) > 0 && strings.Contains(joined, " "+strings.Join(words, " ")+" ") {
				return true
			}
			continue
		}
		for i := 0; i+minQuoteWords <= len(words); i++ {
			fragment := " " + strings.Join(words[i:i+minQuoteWords], " ") + " "
			if strings.Contains(joined, fragment) {
				return true
			}
		}
	}
	return false
}

func normalizeWords(s string) []string {
	var words []string
	for _, field := range strings.Fields(strings.ToLower(s)) {
		word := strings.Trim(field, `.,!?;:"'()[]*_~`)
		if word != "" {
			words = append(words, word)
		}
	}
	return words
}

// parseVerdict maps fact-check output onto the closed verdict set. The
// first verdict word found wins; unrecognizable output defaults to
// Needs Investigation.
func parseVerdict(raw string) core.FactCheckVerdict {
	upper := strings.ToUpper(raw)
	needsIdx := strings.Index(upper, "NEEDS INVESTIGATION")
	trueIdx := strings.Index(upper, "TRUE")
	falseIdx := strings.Index(upper, "FALSE")

	best := core.VerdictNeedsInvestigation
	bestIdx := needsIdx
	if trueIdx >= 0 && (bestIdx < 0 || trueIdx < bestIdx) {
		best = core.VerdictTrue
		bestIdx = trueIdx
	}
	if falseIdx >= 0 && (bestIdx < 0 || falseIdx < bestIdx) {
		best = core.VerdictFalse
		bestIdx = falseIdx
	}
	if bestIdx < 0 {
		return core.VerdictNeedsInvestigation
	}
	return best
}
