package domain

import "time"

// Result holds the accumulated pipeline output for a job. At most one
// exists per job; stages fill in their own fields incrementally.
type Result struct {
	ResultID          string         `json:"result_id" db:"result_id"`
	JobID             string         `json:"job_id" db:"job_id"`
	SegmentationKey   string         `json:"segmentation_result_key,omitempty" db:"segmentation_result_key"`
	ImageDescription  string         `json:"image_description,omitempty" db:"image_description"`
	EnhancedReport    string         `json:"enhanced_report,omitempty" db:"enhanced_report"`
	ConfidenceScores  map[string]any `json:"confidence_scores,omitempty" db:"-"`
	ProcessingMetrics map[string]any `json:"processing_metrics,omitempty" db:"-"`
	CreatedAt         time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at" db:"updated_at"`
}

// ResultPatch is one stage's contribution to a job's Result. Map entries
// are merged under the given keys; entries written by other stages are
// never touched.
type ResultPatch struct {
	SegmentationKey   string
	ImageDescription  string
	EnhancedReport    string
	ConfidenceScores  map[string]any
	ProcessingMetrics map[string]any
}

// Merge applies a patch to the result in place. Empty patch fields leave
// the existing values alone so repeated application is idempotent.
func (r *Result) Merge(p ResultPatch) {
	if p.SegmentationKey != "" {
		r.SegmentationKey = p.SegmentationKey
	}
	if p.ImageDescription != "" {
		r.ImageDescription = p.ImageDescription
	}
	if p.EnhancedReport != "" {
		r.EnhancedReport = p.EnhancedReport
	}
	if len(p.ConfidenceScores) > 0 {
		if r.ConfidenceScores == nil {
			r.ConfidenceScores = make(map[string]any)
		}
		for k, v := range p.ConfidenceScores {
			r.ConfidenceScores[k] = v
		}
	}
	if len(p.ProcessingMetrics) > 0 {
		if r.ProcessingMetrics == nil {
			r.ProcessingMetrics = make(map[string]any)
		}
		for k, v := range p.ProcessingMetrics {
			r.ProcessingMetrics[k] = v
		}
	}
}
