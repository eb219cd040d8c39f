package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"snitch/internal/core"
)

func recentMessages(n int) []core.RawMessage {
	msgs := make([]core.RawMessage, n)
	for i := range msgs {
		msgs[i] = core.RawMessage{
			ID:        "m" + string(rune('a'+i)),
			Content:   "something happened in the channel just now",
			Timestamp: time.Date(2025, 6, 1, 12, i, 0, 0, time.UTC),
		}
	}
	return msgs
}

func TestBreakingNews(t *testing.T) {
	client := &scriptedClient{responses: map[string][]response{
		"BREAKING NEWS": {{text: "BREAKING: the channel is in chaos once again! 🚨"}},
	}}
	p := New(client, fastOptions())

	bulletin, err := p.BreakingNews(context.Background(), testCommunity(), recentMessages(5))
	if err != nil {
		t.Fatalf("breaking news: %v", err)
	}
	if bulletin == "" {
		t.Fatal("empty bulletin")
	}
}

func TestBreakingNewsInsufficientMessages(t *testing.T) {
	p := New(&scriptedClient{responses: map[string][]response{}}, fastOptions())

	_, err := p.BreakingNews(context.Background(), testCommunity(), recentMessages(1))
	if !errors.Is(err, core.ErrInsufficientContent) {
		t.Fatalf("got %v, want ErrInsufficientContent", err)
	}
}

func TestLeak(t *testing.T) {
	client := &scriptedClient{responses: map[string][]response{
		"INSIDER LEAK": {{text: "Sources tell us something big is brewing..."}},
	}}
	p := New(client, fastOptions())

	scoop, err := p.Leak(context.Background(), testCommunity(), recentMessages(4))
	if err != nil {
		t.Fatalf("leak: %v", err)
	}
	if scoop == "" {
		t.Fatal("empty scoop")
	}
}

func TestFactCheckVerdicts(t *testing.T) {
	tests := []struct {
		name       string
		modelSays  string
		want       core.FactCheckVerdict
		wantRemark string
	}{
		{"clear true", "TRUE\nHonestly, checks out.", core.VerdictTrue, "Honestly, checks out."},
		{"clear false", "FALSE", core.VerdictFalse, ""},
		{"explicit unknown", "NEEDS INVESTIGATION\nThe plot thickens.", core.VerdictNeedsInvestigation, "The plot thickens."},
		{"rambling output", "well, it's hard to say really", core.VerdictNeedsInvestigation, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &scriptedClient{responses: map[string][]response{
				"FACT-CHECK": {{text: tt.modelSays}},
			}}
			p := New(client, fastOptions())

			verdict, remark, err := p.FactCheck(context.Background(), testCommunity(), "the moon landing was filmed in my garage")
			if err != nil {
				t.Fatalf("fact check: %v", err)
			}
			if verdict != tt.want {
				t.Errorf("verdict = %q, want %q", verdict, tt.want)
			}
			if remark != tt.wantRemark {
				t.Errorf("remark = %q, want %q", remark, tt.wantRemark)
			}
		})
	}
}

func TestFactCheckEmptyMessage(t *testing.T) {
	p := New(&scriptedClient{responses: map[string][]response{}}, fastOptions())

	_, _, err := p.FactCheck(context.Background(), testCommunity(), "   ")
	if !errors.Is(err, core.ErrInsufficientContent) {
		t.Fatalf("got %v, want ErrInsufficientContent", err)
	}
}

func TestFactCheckTransientRetry(t *testing.T) {
	client := &scriptedClient{responses: map[string][]response{
		"FACT-CHECK": {
			{err: core.NewTransientError(core.FailureRateLimited, errors.New("429"))},
			{text: "FALSE\nAbsolutely not."},
		},
	}}
	p := New(client, fastOptions())

	verdict, _, err := p.FactCheck(context.Background(), testCommunity(), "claim")
	if err != nil {
		t.Fatalf("fact check: %v", err)
	}
	if verdict != core.VerdictFalse {
		t.Errorf("verdict = %q", verdict)
	}
}
