// Package research implements the prospect enrichment pipeline: public-record
// lookups, capacity scoring, and optional LLM summarization.
package research

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/prospector/internal/engine"
	"github.com/ternarybob/prospector/internal/interfaces"
	"github.com/ternarybob/prospector/internal/models"
)

// Service implements the ResearchPipeline interface over a set of public
// data sources.
type Service struct {
	sources []Source
	llm     interfaces.LLMService
	logger  arbor.ILogger
}

// NewService creates the pipeline. llm may be nil; summaries are then
// skipped and results carry findings only.
func NewService(sources []Source, llm interfaces.LLMService, logger arbor.ILogger) *Service {
	return &Service{
		sources: sources,
		llm:     llm,
		logger:  logger,
	}
}

// ExecuteResearch runs the full enrichment for one prospect: query every
// source, aggregate findings into a score and tier, and summarize.
//
// Per-source failures fail the whole item: a partially researched prospect
// with a confident-looking score is worse than a retried one.
func (s *Service) ExecuteResearch(ctx context.Context, input models.ProspectInput, opts interfaces.PipelineOptions) (*models.ResearchResult, error) {
	if input.IsEmpty() {
		return nil, fmt.Errorf("%w: prospect has no name or company", engine.ErrInvalidInput)
	}

	var findings []Finding
	for _, source := range s.sources {
		sourceFindings, err := source.Search(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", source.Name(), err)
		}
		findings = append(findings, sourceFindings...)

		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	score, tier := ScoreFindings(findings)

	result := &models.ResearchResult{
		Score:   score,
		Tier:    tier,
		Sources: sourcesOf(findings),
	}

	if !opts.SkipVerification {
		result.Verified = verified(findings)
	}

	if s.llm != nil && len(findings) > 0 {
		summary, err := s.summarize(ctx, input, findings, score, tier)
		if err != nil {
			// A missing summary does not invalidate the score
			s.logger.Warn().Err(err).Str("prospect", input.Name).Msg("Summary generation failed")
		} else {
			result.Summary = summary
		}
	}

	s.logger.Info().
		Str("prospect", input.Name).
		Float64("score", score).
		Str("tier", tier).
		Int("findings", len(findings)).
		Msg("Prospect research completed")

	return result, nil
}

// summarize asks the LLM for a short donor-research brief grounded in the
// findings. The findings are passed as JSON so the model cannot hallucinate
// beyond the gathered evidence.
func (s *Service) summarize(ctx context.Context, input models.ProspectInput, findings []Finding, score float64, tier string) (string, error) {
	evidence, err := json.Marshal(findings)
	if err != nil {
		return "", fmt.Errorf("failed to serialize findings: %w", err)
	}

	prompt := fmt.Sprintf(
		"Prospect: %s\nCapacity score: %.0f (tier %s)\nEvidence (JSON):\n%s\n\n"+
			"Write a 2-3 sentence donor research brief. Mention only facts present in the evidence.",
		describeProspect(input), score, tier, string(evidence))

	response, err := s.llm.Chat(ctx, []interfaces.Message{
		{Role: "system", Content: "You are a donor research assistant for a nonprofit. Be factual and concise."},
		{Role: "user", Content: prompt},
	})
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(response), nil
}

func describeProspect(input models.ProspectInput) string {
	parts := []string{input.Name}
	if input.Company != "" {
		parts = append(parts, input.Company)
	}
	if input.City != "" || input.State != "" {
		parts = append(parts, strings.TrimSpace(input.City+" "+input.State))
	}
	return strings.Join(parts, ", ")
}
