package cli

// This file contains the fallback model selector: when a batch times out or
// the backend reports overload, the same batch is retried against an ordered
// roster of lighter models before the circuit breaker gets a say.

import (
	"github.com/evalbatch/evalbatch/evalconfig"
	"github.com/evalbatch/evalbatch/model"
	"github.com/evalbatch/evalbatch/supervise"
)

// ModelChoice is one fallback candidate.
type ModelChoice struct {
	ID          string
	Description string
}

// FallbackModels is the default roster of candidates, fastest first: lighter models
// are more likely to respond within the timeout when the backend is loaded.
var FallbackModels = []ModelChoice{
	{"google:gemini-2.5-flash-lite", "Gemini 2.5 Flash Lite (fastest, lower load)"},
	{"google:gemini-3-pro-preview", "Gemini 3 Pro Preview (heavier capacity)"},
	{"google:gemini-2.5-pro", "Gemini 2.5 Pro (more capacity)"},
}

// ModelFamilyPrefix scopes provider substitution: only provider entries in
// this family are rewritten to a fallback model, everything else is left
// untouched.
const ModelFamilyPrefix = "google:gemini-"

// tryFallback walks the run's roster in order, skipping the model that just
// failed, and retries the same batch with each candidate. A candidate is
// adopted as soon as it actually executes: success or plain test failures
// both count, because accuracy shortfalls under a different model are not an
// infrastructure problem. Returns the adopted model ID, or "" when the
// roster is exhausted.
func (a *App) tryFallback(tmpl *evalconfig.Template, batchFile string, batchNum int, st *model.RunState, opts runOptions) string {
	a.logger.Info().Int("batch", batchNum).Msg("Trying fallback models, fastest first")

	for _, cand := range opts.roster {
		if cand.ID == st.CurrentModel {
			continue
		}
		a.logger.Info().
			Str("model", cand.ID).
			Str("description", cand.Description).
			Int("batch", batchNum).
			Msg("Retrying batch with fallback model")

		cfgFile, err := tmpl.Materialize(reportDir, batchNum, batchFile, cand.ID, opts.family)
		if err != nil {
			a.logger.Warn().Err(err).Str("model", cand.ID).Msg("Could not materialize fallback config")
			continue
		}

		out := supervise.Run(a.logger, a.superviseOpts(opts, batchNum, cfgFile, cand.ID))
		switch out.Status {
		case model.StatusSuccess, model.StatusFailed:
			// Replaces the failing attempt's outcome for this batch
			st.Record(out)
			a.logger.Info().
				Str("model", cand.ID).
				Str("status", string(out.Status)).
				Msg("Fallback model adopted")
			return cand.ID
		default:
			a.logger.Warn().
				Str("model", cand.ID).
				Str("status", string(out.Status)).
				Msg("Fallback model did not work")
		}
	}

	a.logger.Error().Int("batch", batchNum).Msg("All fallback models failed")
	return ""
}
