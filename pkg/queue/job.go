// Package queue implements an at-least-once delayed-retry job queue on Redis.
// Jobs move wait -> active -> (removed | delayed | failed). Delayed jobs are
// promoted back to wait once their backoff elapses; jobs that exhaust their
// attempts are kept on the failed list for inspection.
package queue

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	BackoffExponential = "exponential"
	BackoffFixed       = "fixed"
)

type BackoffOptions struct {
	Type  string        `json:"type"`
	Delay time.Duration `json:"delay"`
}

type JobOptions struct {
	Attempts         int            `json:"attempts"`
	Backoff          BackoffOptions `json:"backoff"`
	RemoveOnComplete bool           `json:"removeOnComplete"`
	RemoveOnFail     bool           `json:"removeOnFail"`
}

type Job struct {
	ID           string          `json:"id"`
	Data         json.RawMessage `json:"data"`
	Opts         JobOptions      `json:"opts"`
	AttemptsMade int             `json:"attemptsMade"`
	FailedReason string          `json:"failedReason,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	FinishedAt   *time.Time      `json:"finishedAt,omitempty"`
}

// Decode unmarshals the job payload into v.
func (j *Job) Decode(v interface{}) error {
	if err := json.Unmarshal(j.Data, v); err != nil {
		return fmt.Errorf("decode job %s: %w", j.ID, err)
	}
	return nil
}

// HasAttemptsLeft reports whether a failed run should be retried.
func (j *Job) HasAttemptsLeft() bool {
	attempts := j.Opts.Attempts
	if attempts < 1 {
		attempts = 1
	}
	return j.AttemptsMade < attempts
}

func encodeJob(job *Job) (string, error) {
	data, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("encode job %s: %w", job.ID, err)
	}
	return string(data), nil
}

func decodeJob(raw string) (*Job, error) {
	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return nil, fmt.Errorf("decode job: %w", err)
	}
	return &job, nil
}
