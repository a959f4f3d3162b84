// Package classify sniffs batch result artifacts for API-level error
// signatures. This is deliberately best-effort text matching against the
// error strings the external tool recorded, not protocol-level error codes:
// the artifact format belongs to the tool, not to us.
package classify

import (
	"os"
	"strings"

	"github.com/evalbatch/evalbatch/model"
)

var rateLimitMarkers = []string{"429", "rate limit", "too many requests"}

var overloadMarkers = []string{"503", "service unavailable", "overloaded"}

// Scan reads the artifact at path and reports whether its per-test errors
// carry rate-limit or overload signatures, plus how many records matched.
// Rate limiting takes priority when both appear: it is the more actionable
// signal. A missing artifact classifies as ErrorKindNone; the supervisor
// decides what absence means.
func Scan(path string) (model.ErrorKind, int, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return model.ErrorKindNone, 0, nil
	}
	artifact, err := model.ReadResultArtifact(path)
	if err != nil {
		return model.ErrorKindNone, 0, err
	}
	return Classify(artifact)
}

// Classify inspects an already-loaded artifact.
func Classify(a *model.ResultArtifact) (model.ErrorKind, int, error) {
	var rateLimited, overloaded int
	for _, r := range a.Results.Results {
		errText := r.Error
		if r.Response != nil && r.Response.Error != "" {
			errText = r.Response.Error
		}
		switch {
		case matchesAny(errText, rateLimitMarkers):
			rateLimited++
		case matchesAny(errText, overloadMarkers):
			overloaded++
		}
	}
	switch {
	case rateLimited > 0:
		return model.ErrorKindRateLimited, rateLimited, nil
	case overloaded > 0:
		return model.ErrorKindOverloaded, overloaded, nil
	}
	return model.ErrorKindNone, 0, nil
}

func matchesAny(s string, markers []string) bool {
	if s == "" {
		return false
	}
	s = strings.ToLower(s)
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
