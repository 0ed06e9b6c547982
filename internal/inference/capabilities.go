package inference

import "context"

// DefaultVLMPrompt is used when a job carries no custom prompt.
const DefaultVLMPrompt = "Describe the medical findings in this MRI image in detail."

// SegmentRequest asks the segmentation model to process a scan.
type SegmentRequest struct {
	JobID     string `json:"job_id"`
	ImageData []byte `json:"image_data"`
}

// SegmentResponse carries the segmentation model's output.
type SegmentResponse struct {
	SegmentationData []byte  `json:"segmentation_data"`
	Confidence       float64 `json:"confidence"`
	ModelVersion     string  `json:"model_version"`
}

// DescribeRequest asks the vision-language model to describe a scan.
type DescribeRequest struct {
	JobID     string `json:"job_id"`
	ImageData []byte `json:"image_data"`
	Prompt    string `json:"prompt"`
}

// DescribeResponse carries the vision-language model's output.
type DescribeResponse struct {
	TextDescription string  `json:"text_description"`
	Confidence      float64 `json:"confidence"`
	ModelVersion    string  `json:"model_version"`
}

// EnhanceRequest asks the language model to produce a structured report.
type EnhanceRequest struct {
	JobID       string   `json:"job_id"`
	Description string   `json:"description"`
	ContextDocs []string `json:"context_docs"`
}

// EnhanceResponse carries the language model's output.
type EnhanceResponse struct {
	EnhancedReport string `json:"enhanced_report"`
	ModelVersion   string `json:"model_version"`
}

// Document is one knowledge base hit.
type Document struct {
	Title   string  `json:"title"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// SearchRequest queries the knowledge base.
type SearchRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

// SearchResponse carries knowledge base hits, best first.
type SearchResponse struct {
	Documents []Document `json:"documents"`
}

// Segmenter invokes the image segmentation model.
type Segmenter interface {
	Segment(ctx context.Context, req SegmentRequest) (*SegmentResponse, error)
}

// Describer invokes the vision-language model.
type Describer interface {
	Describe(ctx context.Context, req DescribeRequest) (*DescribeResponse, error)
}

// Enhancer invokes the report-writing language model.
type Enhancer interface {
	Enhance(ctx context.Context, req EnhanceRequest) (*EnhanceResponse, error)
}

// KnowledgeBase retrieves reference material for report grounding.
type KnowledgeBase interface {
	Search(ctx context.Context, req SearchRequest) (*SearchResponse, error)
}

// Endpoints bundles the capability clients over one HTTP client.
type Endpoints struct {
	client *Client
	cfg    Config
}

// NewEndpoints builds capability clients from endpoint configuration.
func NewEndpoints(cfg Config) *Endpoints {
	return &Endpoints{client: NewClient(cfg.Timeout), cfg: cfg}
}

func (e *Endpoints) Segment(ctx context.Context, req SegmentRequest) (*SegmentResponse, error) {
	var out SegmentResponse
	if err := e.client.postJSON(ctx, e.cfg.SegmenterURL, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (e *Endpoints) Describe(ctx context.Context, req DescribeRequest) (*DescribeResponse, error) {
	if req.Prompt == "" {
		req.Prompt = DefaultVLMPrompt
	}
	var out DescribeResponse
	if err := e.client.postJSON(ctx, e.cfg.VLMURL, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (e *Endpoints) Enhance(ctx context.Context, req EnhanceRequest) (*EnhanceResponse, error) {
	var out EnhanceResponse
	if err := e.client.postJSON(ctx, e.cfg.LLMURL, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (e *Endpoints) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	var out SearchResponse
	if err := e.client.postJSON(ctx, e.cfg.KnowledgeURL, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Close releases the underlying HTTP client.
func (e *Endpoints) Close() error {
	return e.client.Close()
}
