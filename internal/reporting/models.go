package reporting

import "time"

// CallsSummary aggregates call lifecycle transitions since process start.
type CallsSummary struct {
	Since time.Time `json:"since"`

	TotalCalls     int `json:"total_calls"`
	FailedCalls    int `json:"failed_calls"`
	AnsweredCalls  int `json:"answered_calls"`
	CompletedCalls int `json:"completed_calls"`

	// InProgressCalls is initiated minus completed, floored at zero. Calls
	// that end without a record are still counted as completed.
	InProgressCalls int `json:"in_progress_calls"`

	// Durations run from initiation to the end event and only cover calls
	// whose record was known when they ended.
	TotalDurationSeconds   int `json:"total_duration_seconds"`
	AverageDurationSeconds int `json:"average_duration_seconds"`
}
