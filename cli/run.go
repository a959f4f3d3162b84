package cli

// This file contains the orchestration loop: batch splitting, per-batch
// supervision, escalation handling and end-of-run persistence.

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/evalbatch/evalbatch/batch"
	"github.com/evalbatch/evalbatch/escalate"
	"github.com/evalbatch/evalbatch/evalconfig"
	"github.com/evalbatch/evalbatch/merge"
	"github.com/evalbatch/evalbatch/model"
	"github.com/evalbatch/evalbatch/supervise"
)

type runOptions struct {
	batchSize  int
	delay      time.Duration
	timeout    time.Duration
	configPath string
	testsPath  string
	start      int
	end        int
	noFallback bool
	model      string
	threshold  int
	tool       []string
	roster     []ModelChoice
	family     string
}

func (a *App) runAction(ctx *cli.Context) error {
	opts := runOptions{
		batchSize:  ctx.Int("batch-size"),
		delay:      time.Duration(ctx.Int("delay")) * time.Second,
		timeout:    time.Duration(ctx.Int("timeout")) * time.Second,
		configPath: ctx.String("config"),
		testsPath:  ctx.String("tests"),
		start:      ctx.Int("start"),
		end:        ctx.Int("end"),
		noFallback: ctx.Bool("no-fallback"),
		model:      ctx.String("model"),
		threshold:  ctx.Int("max-failures"),
		tool:       strings.Fields(ctx.String("eval-cmd")),
		roster:     FallbackModels,
		family:     ctx.String("model-family"),
	}
	if ids := ctx.StringSlice("fallback-models"); len(ids) > 0 {
		opts.roster = make([]ModelChoice, len(ids))
		for i, id := range ids {
			opts.roster[i] = ModelChoice{ID: id}
		}
	}

	tmpl, err := evalconfig.LoadTemplate(opts.configPath)
	if err != nil {
		return err
	}

	var tests []evalconfig.TestCase
	if opts.testsPath != "" {
		tests, err = evalconfig.LoadTests(opts.testsPath)
		if err != nil {
			return err
		}
		a.logger.Info().Int("tests", len(tests)).Str("file", opts.testsPath).Msg("Loaded external test file")
	} else {
		tests = tmpl.Tests()
		a.logger.Info().Int("tests", len(tests)).Str("file", opts.configPath).Msg("Loaded inline tests from config")
	}
	if len(tests) == 0 {
		return errors.New("no tests found: supply --tests or add inline tests to the config")
	}

	batches, err := batch.Split(tests, opts.batchSize)
	if err != nil {
		return err
	}
	total := len(batches)

	startIdx := 0
	if opts.start > 0 {
		startIdx = opts.start - 1
	}
	endIdx := total
	if opts.end > 0 && opts.end < total {
		endIdx = opts.end
	}
	if startIdx >= endIdx {
		return fmt.Errorf("batch range %d-%d is empty (have %d batches)", startIdx+1, endIdx, total)
	}

	a.logger.Info().
		Int("batches", total).
		Int("batch_size", opts.batchSize).
		Dur("delay", opts.delay).
		Dur("timeout", opts.timeout).
		Bool("fallback", !opts.noFallback).
		Str("model", opts.model).
		Msg("Starting batch run")

	st := &model.RunState{CurrentModel: opts.model}

	for i := startIdx; i < endIdx; i++ {
		batchNum := i + 1
		a.logger.Info().
			Int("batch", batchNum).
			Int("total", total).
			Int("tests", len(batches[i])).
			Msg("Preparing batch")

		batchFile, err := evalconfig.WriteBatchFile(generatedDir, batchNum, batches[i])
		if err != nil {
			return fmt.Errorf("failed to write batch %d test file: %w", batchNum, err)
		}
		cfgFile, err := tmpl.Materialize(reportDir, batchNum, batchFile, st.CurrentModel, opts.family)
		if err != nil {
			return fmt.Errorf("failed to materialize batch %d config: %w", batchNum, err)
		}

		out := supervise.Run(a.logger, a.superviseOpts(opts, batchNum, cfgFile, st.CurrentModel))

		dec := escalate.Apply(st, out, opts.threshold, !opts.noFallback)
		if dec.Action == escalate.TryFallback {
			adopted := a.tryFallback(tmpl, batchFile, batchNum, st, opts)
			dec = escalate.Resolve(st, adopted, opts.threshold)
		}
		if dec.Action == escalate.Halt {
			return a.halt(st, batchNum, total, opts, dec.RateLimited)
		}

		// Cooldown between batches. Skipped only when the run halts, never
		// because a batch merely had failing tests.
		if i < endIdx-1 {
			a.logger.Info().Dur("delay", opts.delay).Msg("Cooling down before next batch")
			a.sleep(opts.delay)
		}
	}

	return a.finish(st, total, opts)
}

func (a *App) superviseOpts(opts runOptions, batchNum int, cfgFile, modelID string) supervise.Options {
	return supervise.Options{
		Tool:       opts.tool,
		ConfigPath: cfgFile,
		BatchNum:   batchNum,
		OutputDir:  reportDir,
		Timeout:    opts.timeout,
		Model:      modelID,
	}
}

// halt persists partial progress, prints the exact resumption command and
// returns a non-nil error so the process exits non-zero.
func (a *App) halt(st *model.RunState, batchNum, total int, opts runOptions, rateLimited bool) error {
	sum := model.NewSummary(st, total)
	sum.Partial = true
	sum.ResumeFrom = batchNum
	// The halting batch is recorded in the state but did not complete
	sum.Completed--
	if err := model.WriteSummary(partialSummaryPath, sum); err != nil {
		a.logger.Error().Err(err).Msg("Failed to write partial summary")
	} else {
		a.logger.Info().Str("file", partialSummaryPath).Msg("Partial results saved")
	}

	if rateLimited {
		a.logger.Error().Int("batch", batchNum).Msg("Rate limit hit, stopping execution")
		fmt.Fprintf(a.stdout, "\nRate limit exceeded at batch %d.\n", batchNum)
		fmt.Fprintf(a.stdout, "The limit is active NOW - an immediate retry will hit it again.\n")
		fmt.Fprintf(a.stdout, "Wait for the limit to reset, then resume with:\n\n")
	} else {
		a.logger.Error().
			Int("batch", batchNum).
			Int("consecutive_failures", st.ConsecutiveInfraFailures).
			Msg("Circuit breaker tripped, stopping execution")
		fmt.Fprintf(a.stdout, "\nStopped at batch %d after %d consecutive infrastructure failures.\n",
			batchNum, st.ConsecutiveInfraFailures)
		fmt.Fprintf(a.stdout, "Completed %d/%d batches. To resume:\n\n", sum.Completed, total)
	}
	fmt.Fprintf(a.stdout, "  %s run --start %d --config %s\n\n", AppName, batchNum, opts.configPath)

	return fmt.Errorf("run halted at batch %d", batchNum)
}

// finish writes the full summary and merges the per-batch artifacts when at
// least one batch succeeded.
func (a *App) finish(st *model.RunState, total int, opts runOptions) error {
	var successes, failures, infra int
	for _, r := range st.Results {
		switch {
		case r.Status == model.StatusSuccess:
			successes++
		case r.Status == model.StatusFailed:
			failures++
		case r.Status.Infra():
			infra++
		}
	}
	a.logger.Info().
		Int("batches", len(st.Results)).
		Int("successes", successes).
		Int("failures", failures).
		Int("infra_errors", infra).
		Msg("Batch run complete")

	if err := model.WriteSummary(summaryPath, model.NewSummary(st, total)); err != nil {
		a.logger.Error().Err(err).Msg("Failed to write run summary")
	} else {
		a.logger.Info().Str("file", summaryPath).Msg("Run summary saved")
	}

	if successes == 0 {
		return nil
	}

	files, err := merge.Discover(reportDir, merge.DefaultPattern)
	if err != nil || len(files) == 0 {
		if err != nil {
			a.logger.Warn().Err(err).Msg("Could not discover batch result artifacts")
		}
		return nil
	}
	merged, err := merge.Merge(files)
	if err != nil {
		a.logger.Warn().Err(err).Msg("Could not merge batch results")
		return nil
	}
	if err := model.WriteResultArtifact(mergedResultsPath, merged); err != nil {
		a.logger.Warn().Err(err).Msg("Could not write merged results")
		return nil
	}
	a.logger.Info().
		Int("results", len(merged.Results.Results)).
		Str("file", mergedResultsPath).
		Msg("Merged batch results")
	return nil
}
