package model

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/segmentio/encoding/json"
)

// Summary is the persisted run state: the partial summary written on halt is
// what makes a run resumable with --start, the full summary is written on
// normal completion.
type Summary struct {
	// Timestamp when the summary was written
	Timestamp time.Time `json:"timestamp"`
	// Number of batches that ran to a non-halting outcome; on a halt the
	// batch that tripped it is recorded in State but not counted here
	Completed int `json:"completed"`
	// Total batches in the run's range
	Total int `json:"total"`
	// Whether the run halted before finishing its range
	Partial bool `json:"partial,omitempty"`
	// First batch to pass to --start when resuming a halted run
	ResumeFrom int `json:"resume_from,omitempty"`
	// Final escalation state
	State RunState `json:"state"`
}

// NewSummary snapshots the run state at the moment of persistence.
func NewSummary(st *RunState, total int) Summary {
	return Summary{
		Timestamp: time.Now().UTC(),
		Completed: len(st.Results),
		Total:     total,
		State:     *st,
	}
}

// WriteSummary persists a summary as indented JSON.
func WriteSummary(path string, s Summary) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadSummary loads a previously written summary.
func ReadSummary(path string) (Summary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Summary{}, err
	}
	var s Summary
	if err := json.Unmarshal(data, &s); err != nil {
		return Summary{}, fmt.Errorf("failed to parse summary %s: %w", path, err)
	}
	return s, nil
}
