package cli

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"
)

type cleanCategory struct {
	name    string
	pattern string
}

var cleanCategories = []cleanCategory{
	{"batch results", reportDir + "/batch_*_results.json"},
	{"batch reports", reportDir + "/batch_*_report.html"},
	{"summaries", reportDir + "/batch_summary*.json"},
	{"temp configs", reportDir + "/_temp_config_*.yaml"},
	{"temp tests", generatedDir + "/batch_*_temp.yaml"},
	{"merged results", mergedResultsPath},
}

func (a *App) cleanAction(ctx *cli.Context) error {
	total := 0
	matches := make(map[string][]string, len(cleanCategories))
	for _, cat := range cleanCategories {
		files, err := filepath.Glob(cat.pattern)
		if err != nil {
			return err
		}
		if len(files) > 0 {
			a.logger.Info().Str("category", cat.name).Int("files", len(files)).Msg("Found files to clean")
		}
		matches[cat.name] = files
		total += len(files)
	}

	if total == 0 {
		a.logger.Info().Msg("Nothing to clean up, workspace is already clean")
		return nil
	}

	if ctx.Bool("dry-run") {
		a.logger.Info().Int("files", total).Msg("Dry run, no files deleted")
		return nil
	}

	if !ctx.Bool("force") && !a.confirm(total) {
		a.logger.Info().Msg("Cleanup cancelled")
		return nil
	}

	deleted := 0
	for _, files := range matches {
		for _, f := range files {
			if err := os.Remove(f); err != nil {
				a.logger.Warn().Err(err).Str("file", f).Msg("Could not delete file")
				continue
			}
			deleted++
		}
	}
	a.logger.Info().Int("deleted", deleted).Msg("Cleanup complete, ready for a fresh run")
	return nil
}

func (a *App) confirm(total int) bool {
	a.logger.Info().Int("files", total).Msg("Delete these files? [y/N]")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(line), "y")
}
