package summarizer

import (
	"context"
	"strings"
)

// Generator is a text-in/text-out call to an external generation service.
type Generator interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// ChunkSummarizer summarizes one chunk of text.
type ChunkSummarizer interface {
	Summarize(ctx context.Context, chunkText string) (string, error)
}

// PromptSummarizer applies a fixed PromptTemplate to every chunk. It makes a
// single call per chunk and does not retry; retry policy belongs to the
// Orchestrator.
type PromptSummarizer struct {
	generator Generator
	prompt    PromptTemplate
}

func NewPromptSummarizer(generator Generator, prompt PromptTemplate) *PromptSummarizer {
	return &PromptSummarizer{generator: generator, prompt: prompt}
}

// PromptVersion reports the template version stamped onto cached summaries.
func (s *PromptSummarizer) PromptVersion() string {
	return s.prompt.Version
}

func (s *PromptSummarizer) Summarize(ctx context.Context, chunkText string) (string, error) {
	out, err := s.generator.Generate(ctx, s.prompt.System, chunkText)
	if err != nil {
		return "", SummarizationError(err)
	}

	out = strings.TrimSpace(out)
	if out == "" {
		return "", SummarizationError(ErrEmptyResponse)
	}

	return out, nil
}
