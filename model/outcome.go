package model

import "time"

// Status is the terminal state of one batch attempt.
type Status string

const (
	// StatusSuccess means the evaluation tool exited zero and every test passed.
	StatusSuccess Status = "success"
	// StatusFailed means the tool ran to completion but some assertions did
	// not pass. This is expected LLM noise, not an infrastructure error.
	StatusFailed Status = "failed"
	// StatusTimeout means the batch exceeded its wall-clock budget and the
	// process group was killed.
	StatusTimeout Status = "timeout"
	// StatusRateLimited means the result artifact carried 429 markers.
	StatusRateLimited Status = "rate_limited"
	// StatusOverloaded means the result artifact carried 503 markers.
	StatusOverloaded Status = "service_overloaded"
	// StatusError covers unexpected process-level failures, including a tool
	// that exited zero without writing its result artifact.
	StatusError Status = "error"
)

// Infra reports whether the status is attributable to the serving backend
// rather than to a wrong model answer.
func (s Status) Infra() bool {
	switch s {
	case StatusTimeout, StatusRateLimited, StatusOverloaded, StatusError:
		return true
	}
	return false
}

// ErrorKind is the classifier's verdict on a result artifact.
type ErrorKind string

const (
	ErrorKindNone        ErrorKind = ""
	ErrorKindRateLimited ErrorKind = "429"
	ErrorKindOverloaded  ErrorKind = "503"
)

// BatchOutcome records one supervised batch attempt.
type BatchOutcome struct {
	// 1-based batch sequence number
	BatchNum int `json:"batch_num"`
	// Terminal status of the attempt
	Status Status `json:"status"`
	// Wall-clock time from process start to exit or kill
	Elapsed time.Duration `json:"elapsed"`
	// Model the attempt ran with, if an override or fallback was in effect
	Model string `json:"model,omitempty"`
	// Number of per-test errors matching an infrastructure marker
	ErrorCount int `json:"error_count,omitempty"`
	// Which marker matched (429 or 503)
	ErrorKind ErrorKind `json:"error_kind,omitempty"`
	// Free-form detail for StatusError
	Error string `json:"error,omitempty"`
}

// RunState is the whole-run mutable state threaded through the escalation
// controller. It is mutated only on the single control goroutine.
type RunState struct {
	// Consecutive infrastructure failures since the last success
	ConsecutiveInfraFailures int `json:"consecutive_infra_failures"`
	// Model currently in effect, empty for the config's own model
	CurrentModel string `json:"current_model,omitempty"`
	// One outcome per attempted batch, in batch order
	Results []BatchOutcome `json:"results"`
}

// Record stores an outcome, replacing any prior outcome for the same batch
// so that a fallback retry overwrites the attempt it supersedes.
func (st *RunState) Record(out BatchOutcome) {
	for i := range st.Results {
		if st.Results[i].BatchNum == out.BatchNum {
			st.Results[i] = out
			return
		}
	}
	st.Results = append(st.Results, out)
}
