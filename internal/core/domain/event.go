package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// UploadEvent is one "new image" notification from the ingestion queue.
type UploadEvent struct {
	Bucket     string    `json:"bucket_name"`
	ObjectKey  string    `json:"object_key"`
	EventName  string    `json:"event_name"`
	EventTime  time.Time `json:"event_time"`
	ObjectSize int64     `json:"object_size"`
	ETag       string    `json:"etag"`
}

// envelope is the optional one-level wrapping some publishers apply.
type envelope struct {
	Message string `json:"Message"`
}

// ParseUploadEvent decodes a queue message body into an UploadEvent,
// unwrapping a single envelope level if present. A body that decodes but
// lacks the bucket or object key is malformed.
func ParseUploadEvent(body []byte) (*UploadEvent, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err == nil && env.Message != "" {
		body = []byte(env.Message)
	}

	var ev UploadEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("invalid upload event payload: %w", err)
	}
	if ev.Bucket == "" || ev.ObjectKey == "" {
		return nil, fmt.Errorf("invalid upload event: missing bucket_name or object_key")
	}
	return &ev, nil
}
