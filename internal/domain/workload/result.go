package workload

import (
	"time"

	"github.com/google/uuid"
)

// Result records the outcome of one workload execution. Exactly one Result
// is produced per execution, success or failure, and handed to the sink.
type Result struct {
	// ID is the unique row identifier.
	ID string `json:"id"`

	// SetupID identifies the harness instance's logical environment.
	SetupID string `json:"setup_id"`

	// TestName is the executed workload's name.
	TestName string `json:"test_name"`

	// StartTime is the UTC time the execution began.
	StartTime time.Time `json:"start_time"`

	// ExecutionSeconds is the measured wall-clock duration.
	ExecutionSeconds float64 `json:"execution_time_seconds"`

	// Success reports whether the workload completed.
	Success bool `json:"success"`

	// ErrorMessage holds the failure text; empty on success.
	ErrorMessage string `json:"error_message,omitempty"`
}

// NewResult creates a Result for a workload execution that started at start.
func NewResult(setupID, testName string, start time.Time) *Result {
	return &Result{
		ID:        uuid.New().String(),
		SetupID:   setupID,
		TestName:  testName,
		StartTime: start.UTC(),
	}
}

// Complete marks the result successful with the measured duration.
func (r *Result) Complete(seconds float64) {
	r.ExecutionSeconds = seconds
	r.Success = true
	r.ErrorMessage = ""
}

// Fail marks the result failed. The duration covers time spent up to the
// failure so partial progress is still visible in the sink.
func (r *Result) Fail(seconds float64, err error) {
	r.ExecutionSeconds = seconds
	r.Success = false
	if err != nil {
		r.ErrorMessage = err.Error()
	}
}
