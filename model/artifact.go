package model

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/segmentio/encoding/json"
)

// ResultArtifact is the JSON file the external evaluation tool writes per
// batch. The schema follows promptfoo's v3 export format; fields the
// orchestrator never interprets are still declared so a merged artifact can
// be loaded back into the tool's own viewer.
type ResultArtifact struct {
	EvalID   string       `json:"evalId"`
	Results  ResultSet    `json:"results"`
	Config   any          `json:"config,omitempty"`
	ShareURL any          `json:"shareableUrl,omitempty"`
	Metadata ArtifactMeta `json:"metadata"`
}

type ArtifactMeta struct {
	ExportedAt string `json:"exportedAt,omitempty"`
	Author     string `json:"author,omitempty"`
}

type ResultSet struct {
	Version   int          `json:"version,omitempty"`
	Timestamp string       `json:"timestamp,omitempty"`
	Results   []TestResult `json:"results"`
	Stats     Stats        `json:"stats"`
	Prompts   []Prompt     `json:"prompts,omitempty"`
}

// TestResult is one evaluated test case.
type TestResult struct {
	ID            string             `json:"id,omitempty"`
	PromptID      string             `json:"promptId,omitempty"`
	PromptIdx     int                `json:"promptIdx"`
	TestIdx       int                `json:"testIdx"`
	Vars          map[string]any     `json:"vars,omitempty"`
	Prompt        any                `json:"prompt,omitempty"`
	Response      *Response          `json:"response,omitempty"`
	GradingResult any                `json:"gradingResult,omitempty"`
	Success       bool               `json:"success"`
	Error         string             `json:"error,omitempty"`
	Score         float64            `json:"score"`
	LatencyMs     int64              `json:"latencyMs,omitempty"`
	NamedScores   map[string]float64 `json:"namedScores,omitempty"`
	TokenUsage    *TokenUsage        `json:"tokenUsage,omitempty"`
}

// Response is the provider reply embedded in a test result. Error carries
// the provider's error text verbatim, which is what the classifier scans.
type Response struct {
	Output     any         `json:"output,omitempty"`
	Error      string      `json:"error,omitempty"`
	TokenUsage *TokenUsage `json:"tokenUsage,omitempty"`
	Cached     bool        `json:"cached,omitempty"`
}

type Stats struct {
	Successes  int        `json:"successes"`
	Failures   int        `json:"failures"`
	Errors     int        `json:"errors"`
	TokenUsage TokenUsage `json:"tokenUsage"`
}

type TokenUsage struct {
	Prompt     int `json:"prompt"`
	Completion int `json:"completion"`
	Cached     int `json:"cached"`
	Total      int `json:"total"`
}

// Prompt is one prompt variant with its aggregated metrics.
type Prompt struct {
	ID       string         `json:"id,omitempty"`
	Raw      any            `json:"raw,omitempty"`
	Label    string         `json:"label,omitempty"`
	Provider string         `json:"provider,omitempty"`
	Metrics  *PromptMetrics `json:"metrics,omitempty"`
}

// PromptMetrics are cumulative per-prompt aggregates. Sums and observation
// counts only; averaging is left to whatever consumes the artifact.
type PromptMetrics struct {
	Score            float64            `json:"score"`
	TestPassCount    int                `json:"testPassCount"`
	TestFailCount    int                `json:"testFailCount"`
	TestErrorCount   int                `json:"testErrorCount"`
	AssertPassCount  int                `json:"assertPassCount"`
	AssertFailCount  int                `json:"assertFailCount"`
	TotalLatencyMs   int64              `json:"totalLatencyMs"`
	NamedScores      map[string]float64 `json:"namedScores"`
	NamedScoresCount map[string]int     `json:"namedScoresCount"`
}

// ReadResultArtifact loads and decodes one batch result file.
func ReadResultArtifact(path string) (*ResultArtifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var a ResultArtifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("failed to parse result artifact %s: %w", path, err)
	}
	return &a, nil
}

// WriteResultArtifact writes an artifact as indented JSON, creating parent
// directories as needed.
func WriteResultArtifact(path string, a *ResultArtifact) error {
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal result artifact: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
