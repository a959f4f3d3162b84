// Package merge folds per-batch result artifacts into one combined dataset
// with recomputed aggregate statistics, so the external tool's viewer can
// show the whole run as a single evaluation.
package merge

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/evalbatch/evalbatch/model"
)

// DefaultPattern matches the result artifacts the supervisor writes.
const DefaultPattern = "batch_*_results.json"

var batchNumRe = regexp.MustCompile(`batch_(\d+)_`)

// Discover lists batch result artifacts under dir, ordered by their embedded
// batch number. The embedded number, not filesystem order, is what keeps the
// merged record sequence aligned with the original test collection.
func Discover(dir, pattern string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, fmt.Errorf("invalid artifact pattern %q: %w", pattern, err)
	}
	sort.Slice(files, func(i, j int) bool {
		ni, iok := batchNum(files[i])
		nj, jok := batchNum(files[j])
		if iok && jok && ni != nj {
			return ni < nj
		}
		return files[i] < files[j]
	})
	return files, nil
}

func batchNum(path string) (int, bool) {
	m := batchNumRe.FindStringSubmatch(filepath.Base(path))
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// Merge loads every artifact and folds them into the first one: result
// records are appended preserving order, stats counters are summed, and
// per-prompt metrics are recomputed from scratch over the combined record
// set. The fold is associative: merging A+B then C gives the same totals as
// merging A, B, C in one pass.
func Merge(files []string) (*model.ResultArtifact, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("no batch result artifacts to merge")
	}

	base, err := model.ReadResultArtifact(files[0])
	if err != nil {
		return nil, err
	}
	totals := base.Results.Stats
	last := base

	for _, f := range files[1:] {
		a, err := model.ReadResultArtifact(f)
		if err != nil {
			return nil, err
		}
		base.Results.Results = append(base.Results.Results, a.Results.Results...)

		totals.Successes += a.Results.Stats.Successes
		totals.Failures += a.Results.Stats.Failures
		totals.Errors += a.Results.Stats.Errors
		totals.TokenUsage.Prompt += a.Results.Stats.TokenUsage.Prompt
		totals.TokenUsage.Completion += a.Results.Stats.TokenUsage.Completion
		totals.TokenUsage.Cached += a.Results.Stats.TokenUsage.Cached
		totals.TokenUsage.Total += a.Results.Stats.TokenUsage.Total

		last = a
	}

	base.Results.Stats = totals
	recomputePromptMetrics(base)
	base.Metadata.ExportedAt = last.Metadata.ExportedAt
	base.EvalID = "merged-" + base.EvalID

	return base, nil
}

// recomputePromptMetrics regroups every result record by prompt identifier
// and rebuilds the cumulative per-prompt aggregates. Sums and observation
// counts only, never averages; averaging is the consumer's job.
func recomputePromptMetrics(a *model.ResultArtifact) {
	byPrompt := make(map[string]*model.PromptMetrics)

	for _, r := range a.Results.Results {
		if r.PromptID == "" {
			continue
		}
		m := byPrompt[r.PromptID]
		if m == nil {
			m = &model.PromptMetrics{
				NamedScores:      map[string]float64{},
				NamedScoresCount: map[string]int{},
			}
			byPrompt[r.PromptID] = m
		}

		m.Score += r.Score
		switch {
		case r.Success:
			m.TestPassCount++
		case r.Error != "":
			m.TestErrorCount++
		default:
			m.TestFailCount++
		}
		m.TotalLatencyMs += r.LatencyMs
		for name, score := range r.NamedScores {
			m.NamedScores[name] += score
			m.NamedScoresCount[name]++
		}
	}

	for i := range a.Results.Prompts {
		if m, ok := byPrompt[a.Results.Prompts[i].ID]; ok {
			a.Results.Prompts[i].Metrics = m
		}
	}
}
