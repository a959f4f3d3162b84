// Package evalconfig materializes per-batch evaluation configs from a base
// promptfoo-style YAML template. The template is never mutated: every batch
// attempt, including fallback retries, gets an independent derived artifact.
package evalconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const filePrefix = "file://"

// TestCase is one entry of the test collection. The orchestrator never
// inspects its contents, only its identity and order.
type TestCase = any

// Template is a loaded base evaluation config. The document is decoded once
// and deep-copied on every materialization.
type Template struct {
	path string
	doc  map[string]any
}

// LoadTemplate reads and parses the base config YAML.
func LoadTemplate(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	return &Template{path: abs, doc: doc}, nil
}

// Path returns the absolute path the template was loaded from.
func (t *Template) Path() string { return t.path }

// Tests returns the template's inline test collection, if any.
func (t *Template) Tests() []TestCase {
	tests, _ := t.doc["tests"].([]any)
	return tests
}

// LoadTests reads an external test collection file: a YAML list, order
// preserved.
func LoadTests(path string) ([]TestCase, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read test file %s: %w", path, err)
	}
	var tests []TestCase
	if err := yaml.Unmarshal(data, &tests); err != nil {
		return nil, fmt.Errorf("failed to parse test file %s: %w", path, err)
	}
	return tests, nil
}

// BatchFilePath names the isolated test-source artifact for one batch.
// Zero-padded batch numbers keep retries overwriting instead of accumulating.
func BatchFilePath(dir string, batchNum int) string {
	return filepath.Join(dir, fmt.Sprintf("batch_%02d_temp.yaml", batchNum))
}

// ConfigPath names the isolated config artifact for one batch.
func ConfigPath(dir string, batchNum int) string {
	return filepath.Join(dir, fmt.Sprintf("_temp_config_batch_%02d.yaml", batchNum))
}

// WriteBatchFile serializes one batch to its own test-source YAML file and
// returns the file's path.
func WriteBatchFile(dir string, batchNum int, tests []TestCase) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	data, err := yaml.Marshal(tests)
	if err != nil {
		return "", fmt.Errorf("failed to marshal batch %d tests: %w", batchNum, err)
	}
	path := BatchFilePath(dir, batchNum)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// Materialize derives a self-contained config for one batch: the template's
// inline tests are replaced by a file:// reference to the batch file,
// relative prompt paths are anchored to the template's own directory (not the
// process working directory), and, when fallbackModel is non-empty, every
// provider in the given model family is rewritten to it. The derived config
// is written under dir and its path returned.
func (t *Template) Materialize(dir string, batchNum int, batchFile, fallbackModel, familyPrefix string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	doc, ok := deepCopy(t.doc).(map[string]any)
	if !ok {
		return "", fmt.Errorf("config template is not a mapping")
	}
	delete(doc, "tests")

	configDir := filepath.Dir(t.path)
	if prompts, ok := doc["prompts"].([]any); ok {
		for i, p := range prompts {
			if s, ok := p.(string); ok {
				prompts[i] = anchorFileRef(s, configDir)
			}
		}
	}

	if fallbackModel != "" {
		rewriteProviders(doc, fallbackModel, familyPrefix)
	}

	batchAbs, err := filepath.Abs(batchFile)
	if err != nil {
		return "", err
	}
	doc["tests"] = filePrefix + batchAbs

	data, err := yaml.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to marshal batch %d config: %w", batchNum, err)
	}
	path := ConfigPath(dir, batchNum)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// anchorFileRef rewrites a relative file:// reference to an absolute one
// rooted at the config's directory. Absolute references and non-file strings
// pass through untouched.
func anchorFileRef(ref, configDir string) string {
	rest, ok := strings.CutPrefix(ref, filePrefix)
	if !ok || filepath.IsAbs(rest) {
		return ref
	}
	return filePrefix + filepath.Join(configDir, rest)
}

// rewriteProviders swaps the model identifier of every provider entry in the
// given family. Entries for unrelated providers are left untouched.
func rewriteProviders(doc map[string]any, model, familyPrefix string) {
	providers, ok := doc["providers"].([]any)
	if !ok {
		return
	}
	for i, p := range providers {
		switch entry := p.(type) {
		case string:
			if strings.HasPrefix(entry, familyPrefix) {
				providers[i] = model
			}
		case map[string]any:
			if id, ok := entry["id"].(string); ok && strings.HasPrefix(id, familyPrefix) {
				entry["id"] = model
			}
		}
	}
}

// deepCopy clones the YAML document structure so a materialized config never
// aliases the template.
func deepCopy(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = deepCopy(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = deepCopy(item)
		}
		return out
	default:
		return v
	}
}
