//go:build unix

package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func seedWorkspace(t *testing.T) []string {
	t.Helper()
	require.NoError(t, os.MkdirAll(reportDir, 0o755))
	require.NoError(t, os.MkdirAll(generatedDir, 0o755))
	files := []string{
		filepath.Join(reportDir, "batch_01_results.json"),
		filepath.Join(reportDir, "batch_01_report.html"),
		filepath.Join(reportDir, "batch_summary.json"),
		filepath.Join(reportDir, "batch_summary_partial.json"),
		filepath.Join(reportDir, "_temp_config_batch_01.yaml"),
		filepath.Join(generatedDir, "batch_01_temp.yaml"),
		mergedResultsPath,
	}
	for _, f := range files {
		require.NoError(t, os.WriteFile(f, []byte("x"), 0o644))
	}
	return files
}

func TestCleanDryRunKeepsFiles(t *testing.T) {
	chdirTemp(t)
	app, _ := testApp(t)
	files := seedWorkspace(t)

	err := app.Run([]string{AppName, "clean", "--dry-run"})
	require.NoError(t, err)

	for _, f := range files {
		require.FileExists(t, f)
	}
}

func TestCleanForceDeletes(t *testing.T) {
	chdirTemp(t)
	app, _ := testApp(t)
	files := seedWorkspace(t)
	keeper := filepath.Join(reportDir, "notes.txt")
	require.NoError(t, os.WriteFile(keeper, []byte("keep"), 0o644))

	err := app.Run([]string{AppName, "clean", "--force"})
	require.NoError(t, err)

	for _, f := range files {
		require.NoFileExists(t, f)
	}
	require.FileExists(t, keeper)
}

func TestCleanEmptyWorkspace(t *testing.T) {
	chdirTemp(t)
	app, _ := testApp(t)

	err := app.Run([]string{AppName, "clean", "--force"})
	require.NoError(t, err)
}
