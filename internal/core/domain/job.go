package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// JobStatus represents the lifecycle state of an analysis job.
type JobStatus string

const (
	JobStatusUploaded   JobStatus = "uploaded"
	JobStatusSegmenting JobStatus = "segmenting"
	JobStatusConverting JobStatus = "converting"
	JobStatusEnhancing  JobStatus = "enhancing"
	JobStatusStoring    JobStatus = "storing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether the status permits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// ParseJobStatus converts a string into a JobStatus.
func ParseJobStatus(str string) (JobStatus, error) {
	switch JobStatus(str) {
	case JobStatusUploaded, JobStatusSegmenting, JobStatusConverting,
		JobStatusEnhancing, JobStatusStoring, JobStatusCompleted, JobStatusFailed:
		return JobStatus(str), nil
	}
	return "", fmt.Errorf("invalid job status: %s", str)
}

// Job is one analysis job per submitted image.
type Job struct {
	JobID            string    `json:"job_id" db:"job_id"`
	UserID           string    `json:"user_id" db:"user_id"`
	OriginalImageKey string    `json:"original_image_key" db:"original_image_key"`
	DedupeKey        string    `json:"-" db:"dedupe_key"`
	Status           JobStatus `json:"status" db:"status"`
	ErrorMessage     string    `json:"error_message,omitempty" db:"error_message"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time `json:"updated_at" db:"updated_at"`
}

// DedupeKeyFor derives the idempotency key for a distinct image arrival.
// Duplicate queue deliveries of the same upload produce the same key.
func DedupeKeyFor(bucket, objectKey, etag string) string {
	return fmt.Sprintf("%s/%s@%s", bucket, objectKey, etag)
}

// MarshalJSON renders timestamps in RFC 3339 for the external read model.
func (j Job) MarshalJSON() ([]byte, error) {
	type alias Job
	return json.Marshal(struct {
		alias
		CreatedAt string `json:"created_at"`
		UpdatedAt string `json:"updated_at"`
	}{
		alias:     alias(j),
		CreatedAt: j.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: j.UpdatedAt.UTC().Format(time.RFC3339),
	})
}
