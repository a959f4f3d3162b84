package merge

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/require"

	"github.com/evalbatch/evalbatch/model"
)

func testArtifact(evalID string, results []model.TestResult, stats model.Stats) *model.ResultArtifact {
	return &model.ResultArtifact{
		EvalID: evalID,
		Results: model.ResultSet{
			Version: 3,
			Results: results,
			Stats:   stats,
			Prompts: []model.Prompt{{ID: "prompt-a", Label: "baseline"}},
		},
		Metadata: model.ArtifactMeta{ExportedAt: evalID + "-exported"},
	}
}

func record(promptID string, success bool, score float64, latency int64) model.TestResult {
	return model.TestResult{
		PromptID:  promptID,
		Success:   success,
		Score:     score,
		LatencyMs: latency,
		NamedScores: map[string]float64{
			"safety": score,
		},
	}
}

func writeArtifacts(t *testing.T, dir string, artifacts ...*model.ResultArtifact) []string {
	t.Helper()
	var files []string
	for i, a := range artifacts {
		path := supervisedPath(dir, i+1)
		require.NoError(t, model.WriteResultArtifact(path, a))
		files = append(files, path)
	}
	return files
}

func supervisedPath(dir string, n int) string {
	return filepath.Join(dir, fmt.Sprintf("batch_%02d_results.json", n))
}

func TestMergeStats(t *testing.T) {
	dir := t.TempDir()
	files := writeArtifacts(t, dir,
		testArtifact("eval-1",
			[]model.TestResult{record("prompt-a", true, 1, 100), record("prompt-a", true, 1, 150)},
			model.Stats{Successes: 2, TokenUsage: model.TokenUsage{Prompt: 10, Completion: 5, Total: 15}},
		),
		testArtifact("eval-2",
			[]model.TestResult{record("prompt-a", true, 1, 200), record("prompt-a", false, 0, 50)},
			model.Stats{Successes: 1, Failures: 1, TokenUsage: model.TokenUsage{Prompt: 7, Completion: 3, Total: 10}},
		),
	)

	merged, err := Merge(files)
	require.NoError(t, err)

	require.Equal(t, "merged-eval-1", merged.EvalID)
	require.Len(t, merged.Results.Results, 4)
	require.Equal(t, model.Stats{
		Successes:  3,
		Failures:   1,
		Errors:     0,
		TokenUsage: model.TokenUsage{Prompt: 17, Completion: 8, Total: 25},
	}, merged.Results.Stats)

	// Metadata carries the last batch's export timestamp
	require.Equal(t, "eval-2-exported", merged.Metadata.ExportedAt)
}

func TestMergePromptMetrics(t *testing.T) {
	dir := t.TempDir()
	files := writeArtifacts(t, dir,
		testArtifact("eval-1",
			[]model.TestResult{record("prompt-a", true, 0.5, 100)},
			model.Stats{Successes: 1},
		),
		testArtifact("eval-2",
			[]model.TestResult{
				record("prompt-a", false, 0.25, 300),
				{PromptID: "prompt-a", Error: "429 upstream", Score: 0},
			},
			model.Stats{Successes: 0, Failures: 1, Errors: 1},
		),
	)

	merged, err := Merge(files)
	require.NoError(t, err)

	require.Len(t, merged.Results.Prompts, 1)
	m := merged.Results.Prompts[0].Metrics
	require.NotNil(t, m)
	require.InDelta(t, 0.75, m.Score, 1e-9)
	require.Equal(t, 1, m.TestPassCount)
	require.Equal(t, 1, m.TestFailCount)
	require.Equal(t, 1, m.TestErrorCount)
	require.Equal(t, int64(400), m.TotalLatencyMs)
	// Named metrics are cumulative sums plus observation counts, never
	// averages.
	require.InDelta(t, 0.75, m.NamedScores["safety"], 1e-9)
	require.Equal(t, 2, m.NamedScoresCount["safety"])
}

func TestMergeAssociative(t *testing.T) {
	dir := t.TempDir()
	a := testArtifact("eval-a", []model.TestResult{record("prompt-a", true, 1, 10)}, model.Stats{Successes: 1})
	b := testArtifact("eval-b", []model.TestResult{record("prompt-a", false, 0, 20)}, model.Stats{Failures: 1})
	c := testArtifact("eval-c", []model.TestResult{record("prompt-a", true, 1, 30)}, model.Stats{Successes: 1})
	files := writeArtifacts(t, dir, a, b, c)

	onePass, err := Merge(files)
	require.NoError(t, err)

	// Merge A+B, persist, then merge with C: totals must match the one-pass
	// fold.
	abPath := filepath.Join(dir, "batch_01_results.json")
	ab, err := Merge(files[:2])
	require.NoError(t, err)
	ab.EvalID = "eval-a" // keep the derived-id stamp from compounding
	require.NoError(t, model.WriteResultArtifact(abPath, ab))

	twoPass, err := Merge([]string{abPath, files[2]})
	require.NoError(t, err)

	require.Equal(t, onePass.Results.Stats, twoPass.Results.Stats)
	require.Equal(t, len(onePass.Results.Results), len(twoPass.Results.Results))
	require.Equal(t, onePass.Results.Prompts[0].Metrics, twoPass.Results.Prompts[0].Metrics)
}

func TestMergeIdempotentRecomputation(t *testing.T) {
	dir := t.TempDir()
	files := writeArtifacts(t, dir,
		testArtifact("eval-1", []model.TestResult{record("prompt-a", true, 1, 10)}, model.Stats{Successes: 1}),
		testArtifact("eval-2", []model.TestResult{record("prompt-a", false, 0, 20)}, model.Stats{Failures: 1}),
	)

	first, err := Merge(files)
	require.NoError(t, err)
	second, err := Merge(files)
	require.NoError(t, err)

	firstStats, err := json.Marshal(first.Results.Stats)
	require.NoError(t, err)
	secondStats, err := json.Marshal(second.Results.Stats)
	require.NoError(t, err)
	require.Equal(t, firstStats, secondStats)

	firstMetrics, err := json.Marshal(first.Results.Prompts)
	require.NoError(t, err)
	secondMetrics, err := json.Marshal(second.Results.Prompts)
	require.NoError(t, err)
	require.Equal(t, firstMetrics, secondMetrics)
}

func TestMergeEmptyInput(t *testing.T) {
	_, err := Merge(nil)
	require.Error(t, err)
}

func TestDiscoverSortsByBatchNumber(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"batch_10_results.json",
		"batch_02_results.json",
		"batch_1_results.json",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("{}"), 0o644))
	}
	// Unrelated files are excluded by the pattern
	require.NoError(t, os.WriteFile(filepath.Join(dir, "batch_02_report.html"), []byte(""), 0o644))

	files, err := Discover(dir, DefaultPattern)
	require.NoError(t, err)
	require.Equal(t, []string{
		filepath.Join(dir, "batch_1_results.json"),
		filepath.Join(dir, "batch_02_results.json"),
		filepath.Join(dir, "batch_10_results.json"),
	}, files)
}
