package pipeline

import (
	"context"
	"strings"

	"snitch/internal/core"
	"snitch/internal/llm"
)

// The compressed path serves on-demand commands with a single completion
// call instead of the full stage chain. It reuses the pipeline's retry
// policy and stage timeout.

// minOnDemandMessages is the smallest window the compressed path accepts.
const minOnDemandMessages = 3

// BreakingNews writes a short bulletin from the channel's recent messages.
func (p *Pipeline) BreakingNews(ctx context.Context, community *core.Community, messages []core.RawMessage) (string, error) {
	return p.compressedCall(ctx, "breaking_news", breakingNewsSystem(community.Persona), messages)
}

// Leak writes a short insider-scoop blurb from the channel's recent
// messages.
func (p *Pipeline) Leak(ctx context.Context, community *core.Community, messages []core.RawMessage) (string, error) {
	return p.compressedCall(ctx, "leak", leakSystem(community.Persona), messages)
}

func (p *Pipeline) compressedCall(ctx context.Context, stage, system string, messages []core.RawMessage) (string, error) {
	if len(messages) < minOnDemandMessages {
		return "", core.ErrInsufficientContent
	}

	var output string
	err := p.callStage(ctx, stage, func(ctx context.Context) error {
		raw, err := p.client.Complete(ctx, llm.CompletionRequest{
			System:  system,
			Prompt:  renderMessages(messages),
			Timeout: p.opts.StageTimeout,
		})
		if err != nil {
			return err
		}
		output = strings.TrimSpace(raw)
		if output == "" {
			return &core.GroundingError{Stage: stage, Detail: "empty bulletin"}
		}
		return nil
	})
	return output, err
}

// FactCheck classifies one message into the closed verdict set and returns
// the verdict plus any witty remark the model added. Output that names no
// verdict resolves to Needs Investigation.
func (p *Pipeline) FactCheck(ctx context.Context, community *core.Community, message string) (core.FactCheckVerdict, string, error) {
	if strings.TrimSpace(message) == "" {
		return "", "", core.ErrInsufficientContent
	}

	var verdict core.FactCheckVerdict
	var remark string
	err := p.callStage(ctx, "fact_check", func(ctx context.Context) error {
		raw, err := p.client.Complete(ctx, llm.CompletionRequest{
			System:  factCheckSystem(community.Persona),
			Prompt:  "Fact-check this message:\n" + message,
			Timeout: p.opts.StageTimeout,
		})
		if err != nil {
			return err
		}
		verdict = parseVerdict(raw)
		remark = factCheckRemark(raw)
		return nil
	})
	if err != nil {
		return "", "", err
	}
	return verdict, remark, nil
}

// factCheckRemark returns everything after the verdict line.
func factCheckRemark(raw string) string {
	_, rest, found := strings.Cut(strings.TrimSpace(raw), "\n")
	if !found {
		return ""
	}
	return strings.TrimSpace(rest)
}
