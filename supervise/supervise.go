// Package supervise launches the external evaluation tool for one batch and
// enforces a hard wall-clock timeout. A stuck tool is killed at the process
// group level so that child processes (npx spawns node, node spawns workers)
// die with it; the tool's own timeout settings are not trusted.
package supervise

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"al.essio.dev/pkg/shellescape"
	"github.com/rs/zerolog"

	"github.com/evalbatch/evalbatch/classify"
	"github.com/evalbatch/evalbatch/model"
)

// DefaultGrace is the pause between the graceful and the forced kill of a
// timed-out process group.
const DefaultGrace = 2 * time.Second

// Options configures one supervised batch attempt.
type Options struct {
	// Tool is the argv prefix of the evaluation command, e.g. ["npx", "promptfoo"]
	Tool []string
	// ConfigPath is the materialized per-batch config artifact
	ConfigPath string
	// BatchNum is the 1-based batch sequence number
	BatchNum int
	// OutputDir receives the JSON result artifact and the HTML report
	OutputDir string
	// Timeout is the hard wall-clock budget for the attempt
	Timeout time.Duration
	// Grace overrides DefaultGrace when positive
	Grace time.Duration
	// Model is recorded on the outcome for bookkeeping
	Model string
}

// ResultPath names the JSON result artifact for one batch.
func ResultPath(dir string, batchNum int) string {
	return filepath.Join(dir, fmt.Sprintf("batch_%02d_results.json", batchNum))
}

// ReportPath names the human-readable report for one batch.
func ReportPath(dir string, batchNum int) string {
	return filepath.Join(dir, fmt.Sprintf("batch_%02d_report.html", batchNum))
}

// Run executes the evaluation tool for one batch and blocks until the
// process exits or the timeout expires. It always returns an outcome and
// never leaks a live process back to the caller.
func Run(logger zerolog.Logger, opts Options) model.BatchOutcome {
	outcome := model.BatchOutcome{BatchNum: opts.BatchNum, Model: opts.Model}

	if len(opts.Tool) == 0 {
		outcome.Status = model.StatusError
		outcome.Error = "no evaluation command configured"
		return outcome
	}
	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		outcome.Status = model.StatusError
		outcome.Error = err.Error()
		return outcome
	}

	grace := opts.Grace
	if grace <= 0 {
		grace = DefaultGrace
	}

	outJSON := ResultPath(opts.OutputDir, opts.BatchNum)
	outHTML := ReportPath(opts.OutputDir, opts.BatchNum)

	argv := append(append([]string{}, opts.Tool...),
		"eval", "-c", opts.ConfigPath, "-o", outJSON, "-o", outHTML)
	cmd := exec.Command(argv[0], argv[1:]...)
	// Stream tool output so long runs show progress in real time
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	logger.Info().
		Int("batch", opts.BatchNum).
		Dur("timeout", opts.Timeout).
		Str("command", shellescape.QuoteCommand(argv)).
		Msg("Running batch")

	start := time.Now()
	handle, err := startGroup(cmd)
	if err != nil {
		outcome.Status = model.StatusError
		outcome.Error = err.Error()
		return outcome
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	var waitErr error
	select {
	case waitErr = <-done:
	case <-time.After(opts.Timeout):
		outcome.Elapsed = time.Since(start)
		logger.Warn().
			Int("batch", opts.BatchNum).
			Dur("elapsed", outcome.Elapsed).
			Msg("Batch exceeded timeout, killing process group")
		if err := handle.Terminate(); err != nil {
			logger.Debug().Err(err).Msg("Graceful termination failed")
		}
		time.Sleep(grace)
		if err := handle.Kill(); err != nil {
			logger.Debug().Err(err).Msg("Forced kill failed")
		}
		<-done // reap
		outcome.Status = model.StatusTimeout
		return outcome
	}
	outcome.Elapsed = time.Since(start)

	// API errors in the artifact outrank the exit code: the tool exits zero
	// even when every call was rejected upstream.
	kind, count, cerr := classify.Scan(outJSON)
	if cerr != nil {
		logger.Warn().Err(cerr).Int("batch", opts.BatchNum).Msg("Could not check result artifact for API errors")
	}
	switch kind {
	case model.ErrorKindRateLimited:
		logger.Error().
			Int("batch", opts.BatchNum).
			Int("calls", count).
			Msg("Rate limit detected in batch results")
		outcome.Status = model.StatusRateLimited
		outcome.ErrorCount = count
		outcome.ErrorKind = kind
		return outcome
	case model.ErrorKindOverloaded:
		logger.Warn().
			Int("batch", opts.BatchNum).
			Int("calls", count).
			Msg("Service overload detected in batch results")
		outcome.Status = model.StatusOverloaded
		outcome.ErrorCount = count
		outcome.ErrorKind = kind
		return outcome
	}

	exitCode := 0
	if waitErr != nil {
		exitErr, ok := waitErr.(*exec.ExitError)
		if !ok {
			// Something went wrong managing the process itself; make sure
			// nothing is left running before reporting.
			_ = handle.Kill()
			outcome.Status = model.StatusError
			outcome.Error = waitErr.Error()
			return outcome
		}
		exitCode = exitErr.ExitCode()
	}

	if exitCode == 0 {
		if _, err := os.Stat(outJSON); err != nil {
			// A clean exit with no artifact is a crash in disguise, not an
			// empty success.
			outcome.Status = model.StatusError
			outcome.Error = "tool exited 0 without writing a result artifact"
			return outcome
		}
		logger.Info().
			Int("batch", opts.BatchNum).
			Dur("elapsed", outcome.Elapsed).
			Msg("Batch completed")
		outcome.Status = model.StatusSuccess
		return outcome
	}

	logger.Info().
		Int("batch", opts.BatchNum).
		Int("exit_code", exitCode).
		Dur("elapsed", outcome.Elapsed).
		Msg("Batch completed with test failures")
	outcome.Status = model.StatusFailed
	return outcome
}
