package domain

import (
	"encoding/json"
	"testing"
	"time"
)

func TestParseJobStatus(t *testing.T) {
	tests := []struct {
		in      string
		want    JobStatus
		wantErr bool
	}{
		{"uploaded", JobStatusUploaded, false},
		{"segmenting", JobStatusSegmenting, false},
		{"converting", JobStatusConverting, false},
		{"enhancing", JobStatusEnhancing, false},
		{"storing", JobStatusStoring, false},
		{"completed", JobStatusCompleted, false},
		{"failed", JobStatusFailed, false},
		{"UPLOADED", "", true},
		{"done", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		got, err := ParseJobStatus(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseJobStatus(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseJobStatus(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestJobJSONRoundTrip(t *testing.T) {
	job := Job{
		JobID:            "5b6f2f76-0b0a-4a8e-9a32-6a2f6a5da111",
		UserID:           "system",
		OriginalImageKey: "uploads/patient.nii",
		Status:           JobStatusFailed,
		ErrorMessage:     "VLM model did not return valid text description",
		CreatedAt:        time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC),
		UpdatedAt:        time.Date(2025, 4, 1, 12, 5, 0, 0, time.UTC),
	}

	data, err := json.Marshal(job)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got Job
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if got.JobID != job.JobID {
		t.Errorf("job_id = %q, want %q", got.JobID, job.JobID)
	}
	if got.Status != job.Status {
		t.Errorf("status = %q, want %q", got.Status, job.Status)
	}
	if got.ErrorMessage != job.ErrorMessage {
		t.Errorf("error_message = %q, want %q", got.ErrorMessage, job.ErrorMessage)
	}
	if !got.UpdatedAt.Equal(job.UpdatedAt) {
		t.Errorf("updated_at = %v, want %v", got.UpdatedAt, job.UpdatedAt)
	}
}

func TestResultMergeKeepsOtherStages(t *testing.T) {
	r := &Result{
		JobID:            "job-1",
		SegmentationKey:  "segmentation-results/job-1/mask.nii.gz",
		ConfidenceScores: map[string]any{"segmentation": 0.92},
	}

	r.Merge(ResultPatch{
		ImageDescription: "axial T2 slice with hyperintense lesion",
		ConfidenceScores: map[string]any{"vlm": 0.81},
	})

	if r.SegmentationKey != "segmentation-results/job-1/mask.nii.gz" {
		t.Errorf("segmentation key overwritten: %q", r.SegmentationKey)
	}
	if r.ConfidenceScores["segmentation"] != 0.92 {
		t.Errorf("segmentation confidence lost: %v", r.ConfidenceScores)
	}
	if r.ConfidenceScores["vlm"] != 0.81 {
		t.Errorf("vlm confidence missing: %v", r.ConfidenceScores)
	}

	// Identical patch applied twice changes nothing.
	before := *r
	r.Merge(ResultPatch{ImageDescription: "axial T2 slice with hyperintense lesion"})
	if r.ImageDescription != before.ImageDescription {
		t.Errorf("idempotent merge changed description")
	}
}

func TestUploadEventParse(t *testing.T) {
	direct := `{"bucket_name":"mri-uploads","object_key":"uploads/patient.nii","event_name":"object:created","event_time":"2025-04-01T12:00:00Z","object_size":1024000,"etag":"abc123"}`

	ev, err := ParseUploadEvent([]byte(direct))
	if err != nil {
		t.Fatalf("direct parse: %v", err)
	}
	if ev.Bucket != "mri-uploads" || ev.ObjectKey != "uploads/patient.nii" {
		t.Errorf("unexpected event: %+v", ev)
	}
	if ev.ObjectSize != 1024000 {
		t.Errorf("object_size = %d, want 1024000", ev.ObjectSize)
	}

	wrapped, _ := json.Marshal(map[string]string{"Message": direct})
	ev2, err := ParseUploadEvent(wrapped)
	if err != nil {
		t.Fatalf("wrapped parse: %v", err)
	}
	if ev2.ETag != "abc123" {
		t.Errorf("etag = %q, want abc123", ev2.ETag)
	}

	if _, err := ParseUploadEvent([]byte("not json")); err == nil {
		t.Error("expected error for malformed payload")
	}
	if _, err := ParseUploadEvent([]byte(`{"object_size":5}`)); err == nil {
		t.Error("expected error for missing bucket/key")
	}
}
