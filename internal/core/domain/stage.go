package domain

// Stage names the four pipeline steps. The values double as the stage
// identifiers in failure payloads and metric labels.
type Stage string

const (
	StageSegmentation   Stage = "segmentation"
	StageVLMProcessing  Stage = "vlm_processing"
	StageLLMEnhancement Stage = "llm_enhancement"
	StageResultsStorage Stage = "results_storage"
)

// InProgressStatus returns the job status a stage sets when it begins.
func (s Stage) InProgressStatus() JobStatus {
	switch s {
	case StageSegmentation:
		return JobStatusSegmenting
	case StageVLMProcessing:
		return JobStatusConverting
	case StageLLMEnhancement:
		return JobStatusEnhancing
	case StageResultsStorage:
		return JobStatusStoring
	}
	return JobStatusUploaded
}
