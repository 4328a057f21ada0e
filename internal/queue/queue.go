package queue

import (
	"context"
	"encoding/json"
	"time"
)

// JobTypeProcessLead drives an inbound lead through fetch, extraction and delivery.
const JobTypeProcessLead = "process_lead"

// Job is a unit of background work
type Job struct {
	ID        int64                  `json:"id"`
	Type      string                 `json:"type"`
	Payload   map[string]interface{} `json:"payload"`
	CreatedAt time.Time              `json:"created_at"`
	NextRunAt time.Time              `json:"next_run_at"`
	Attempts  int                    `json:"attempts"`
}

// Queue is implemented by the PostgreSQL and Redis backends.
// A dequeued job stays invisible to other workers until it is completed,
// retried or failed.
type Queue interface {
	Enqueue(ctx context.Context, jobType string, payload map[string]interface{}) error
	EnqueueWithDelay(ctx context.Context, jobType string, payload map[string]interface{}, delay time.Duration) error

	// Dequeue returns nil, nil when no job is due
	Dequeue(ctx context.Context) (*Job, error)

	Complete(ctx context.Context, jobID int64) error
	Retry(ctx context.Context, jobID int64, delay time.Duration) error
	Fail(ctx context.Context, jobID int64, errorMsg string) error

	// Pending counts jobs waiting to run, due or not
	Pending(ctx context.Context) (int64, error)

	HealthCheck(ctx context.Context) error
	Close() error
}

// NewJobPayload builds the payload of a process_lead job
func NewJobPayload(leadID int64) map[string]interface{} {
	return map[string]interface{}{
		"lead_id": leadID,
	}
}

// GetLeadID reads lead_id back out of a payload. JSON decoding turns the
// id into a float64 or json.Number depending on the backend.
func GetLeadID(payload map[string]interface{}) (int64, bool) {
	raw, ok := payload["lead_id"]
	if !ok {
		return 0, false
	}

	switch v := raw.(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i, true
		}
	}

	return 0, false
}
