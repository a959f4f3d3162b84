package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/evalbatch/evalbatch/escalate"
	"github.com/evalbatch/evalbatch/merge"
)

const AppName = "evalbatch"

// Default on-disk layout, shared by the run, merge and clean commands.
const (
	generatedDir       = "_generated"
	reportDir          = "reports/batches"
	mergedResultsPath  = "reports/merged_results.json"
	summaryPath        = reportDir + "/batch_summary.json"
	partialSummaryPath = reportDir + "/batch_summary_partial.json"
)

type App struct {
	logger zerolog.Logger
	cli    *cli.App

	// Indirection for tests: the cooldown sleep and the stream user-facing
	// resume hints are printed to.
	sleep  func(time.Duration)
	stdout io.Writer
}

func New() *App {

	// Set default log level to info
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	logger :=
		log.Output(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339Nano,
		})

	app := &App{
		logger: logger,
		sleep:  time.Sleep,
		stdout: os.Stdout,
		cli: &cli.App{
			Name:  AppName,
			Usage: "Batch runner for LLM evaluation suites with timeout enforcement, circuit breaking and model fallback",
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  "verbose",
					Usage: "Enable verbose (debug) logging",
				},
			},
			Before: func(ctx *cli.Context) error {
				if ctx.Bool("verbose") {
					zerolog.SetGlobalLevel(zerolog.DebugLevel)
				}
				return nil
			},
		},
	}
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:   "run",
		Usage:  "Split the test suite into batches and run them sequentially through the evaluation tool",
		Action: app.runAction,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "batch-size",
				Usage: "Tests per batch",
				Value: 2,
			},
			&cli.IntFlag{
				Name:  "delay",
				Usage: "Seconds to cool down between batches",
				Value: 60,
			},
			&cli.IntFlag{
				Name:  "timeout",
				Usage: "Max seconds per batch before the process group is killed",
				Value: 120,
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Base evaluation config file",
				Value:   "promptfooconfig.yaml",
			},
			&cli.StringFlag{
				Name:  "tests",
				Usage: "External test file to split (defaults to the config's inline tests)",
			},
			&cli.IntFlag{
				Name:  "start",
				Usage: "First batch number to run (1-based, inclusive)",
			},
			&cli.IntFlag{
				Name:  "end",
				Usage: "Last batch number to run (1-based, inclusive)",
			},
			&cli.BoolFlag{
				Name:  "no-fallback",
				Usage: "Disable automatic fallback to lighter models on timeout or overload",
			},
			&cli.StringFlag{
				Name:  "model",
				Usage: "Override the config's model ID (e.g. google:gemini-2.0-flash)",
			},
			&cli.IntFlag{
				Name:  "max-failures",
				Usage: "Consecutive infrastructure failures before the circuit breaker halts the run",
				Value: escalate.DefaultThreshold,
			},
			&cli.StringFlag{
				Name:  "eval-cmd",
				Usage: "Evaluation tool command prefix",
				Value: "npx promptfoo",
			},
			&cli.StringSliceFlag{
				Name:  "fallback-models",
				Usage: "Override the fallback roster (ordered model IDs, fastest first)",
			},
			&cli.StringFlag{
				Name:  "model-family",
				Usage: "Provider ID prefix eligible for fallback substitution",
				Value: ModelFamilyPrefix,
			},
		},
	})
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:   "merge",
		Usage:  "Merge per-batch result artifacts into a single combined results file",
		Action: app.mergeAction,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "batch-dir",
				Usage: "Directory containing batch result files",
				Value: reportDir,
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Merged output file path",
				Value:   mergedResultsPath,
			},
			&cli.StringFlag{
				Name:  "pattern",
				Usage: "Result file pattern to match",
				Value: merge.DefaultPattern,
			},
		},
	})
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:   "clean",
		Usage:  "Delete batch results, reports and temp files for a fresh run",
		Action: app.cleanAction,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "force",
				Aliases: []string{"f"},
				Usage:   "Delete without asking for confirmation",
			},
			&cli.BoolFlag{
				Name:    "dry-run",
				Aliases: []string{"n"},
				Usage:   "Show what would be deleted without deleting",
			},
		},
	})
	return app
}

func (a *App) Run(args []string) error {
	return a.cli.Run(args)
}

// SetVersion sets the version information for the CLI application
func (a *App) SetVersion(version, commit, date string) {
	a.cli.Version = version
	if commit != "none" && commit != "" {
		if len(commit) > 8 {
			commit = commit[:8]
		}
		a.cli.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)
	}
}
