package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/scanpipe/scanpipe/internal/core/domain"
	"github.com/scanpipe/scanpipe/internal/faults"
	"github.com/scanpipe/scanpipe/internal/inference"
)

// enhance runs the report enhancement stage: ground the scan
// description in retrieved reference material and have the language
// model produce a structured report.
func (p *Pipeline) enhance(ctx context.Context, exec *Execution) error {
	result, err := p.results.GetByJob(ctx, exec.JobID)
	if err != nil {
		return fmt.Errorf("load prior results: %w", err)
	}
	if strings.TrimSpace(result.ImageDescription) == "" {
		return faults.Validationf("missing image description for job %s", exec.JobID)
	}

	if err := p.setInProgress(ctx, exec, domain.JobStatusConverting, domain.StageLLMEnhancement); err != nil {
		return err
	}

	docs := p.retrieveContext(ctx, result.ImageDescription)
	contextDocs := make([]string, 0, len(docs))
	for _, d := range docs {
		contextDocs = append(contextDocs, d.Content)
	}

	resp, err := faults.RetryValue(ctx, p.retry, func(ctx context.Context) (*inference.EnhanceResponse, error) {
		return p.enhancer.Enhance(ctx, inference.EnhanceRequest{
			JobID:       exec.JobID,
			Description: result.ImageDescription,
			ContextDocs: contextDocs,
		})
	})
	if err != nil {
		return fmt.Errorf("invoke language model: %w", err)
	}
	if strings.TrimSpace(resp.EnhancedReport) == "" {
		return faults.Permanentf("language model did not return enhanced report")
	}

	overall := extractConfidence(resp.EnhancedReport)
	sources, inferred := extractSources(resp.EnhancedReport, docs)

	patch := domain.ResultPatch{
		EnhancedReport: resp.EnhancedReport,
		ConfidenceScores: map[string]any{
			"llm_overall":   overall,
			"llm_findings":  overall,
			"llm_diagnosis": overall - 0.1,
		},
		ProcessingMetrics: map[string]any{
			"llm_model_version":   resp.ModelVersion,
			"llm_context_docs":    len(contextDocs),
			"llm_sources":         sources,
			"llm_source_inferred": inferred,
		},
	}
	if err := p.results.Upsert(ctx, exec.JobID, patch); err != nil {
		return fmt.Errorf("record enhanced report: %w", err)
	}

	p.logger.Info("enhancement complete", "job_id", exec.JobID,
		"context_docs", len(contextDocs), "confidence", overall)
	return nil
}

// retrieveContext fetches reference documents for report grounding.
// Retrieval failures degrade to an ungrounded report rather than
// failing the stage.
func (p *Pipeline) retrieveContext(ctx context.Context, query string) []inference.Document {
	resp, err := p.knowledge.Search(ctx, inference.SearchRequest{
		Query: query,
		TopK:  p.cfg.KnowledgeTopK,
	})
	if err != nil {
		p.logger.Warn("knowledge retrieval failed, continuing without context", "error", err)
		return nil
	}
	return resp.Documents
}

// extractConfidence reads the model's self-reported confidence out of
// the report text.
func extractConfidence(report string) float64 {
	lower := strings.ToLower(report)
	switch {
	case strings.Contains(lower, "high confidence"):
		return 0.9
	case strings.Contains(lower, "medium confidence"):
		return 0.7
	case strings.Contains(lower, "low confidence"):
		return 0.5
	}
	return 0.8
}

// extractSources finds which retrieved documents the report actually
// cites by title. When nothing matches, the top-ranked document is
// assumed as the source and flagged inferred.
func extractSources(report string, docs []inference.Document) (sources []string, inferred bool) {
	lower := strings.ToLower(report)
	for _, d := range docs {
		if d.Title != "" && strings.Contains(lower, strings.ToLower(d.Title)) {
			sources = append(sources, d.Title)
		}
	}
	if len(sources) == 0 && len(docs) > 0 {
		return []string{docs[0].Title}, true
	}
	return sources, false
}
