package cli

import (
	"fmt"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/evalbatch/evalbatch/merge"
	"github.com/evalbatch/evalbatch/model"
)

func (a *App) mergeAction(ctx *cli.Context) error {
	dir := ctx.String("batch-dir")
	output := ctx.String("output")
	pattern := ctx.String("pattern")

	files, err := merge.Discover(dir, pattern)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no batch files found matching %s", filepath.Join(dir, pattern))
	}
	a.logger.Info().Int("files", len(files)).Str("dir", dir).Msg("Merging batch result artifacts")

	merged, err := merge.Merge(files)
	if err != nil {
		return err
	}
	if err := model.WriteResultArtifact(output, merged); err != nil {
		return err
	}

	a.logger.Info().
		Int("results", len(merged.Results.Results)).
		Int("successes", merged.Results.Stats.Successes).
		Int("failures", merged.Results.Stats.Failures).
		Int("errors", merged.Results.Stats.Errors).
		Str("output", output).
		Msg("Merged results written")
	return nil
}
