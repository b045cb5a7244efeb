package app_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"careline/internal/app"
	"careline/internal/config"
)

func TestOpenUsesWorkspaceConfig(t *testing.T) {
	dir := t.TempDir()
	doc := `workload:
  max_points: 10
  amber_threshold: 0.5
  severity_points: {1: 1, 2: 2, 3: 3, 4: 4}
rules:
  - id: crisis
    dimension: V7_VIGILANCE
    reason: Crisis flag open
    when: 'flags.exists(f, "type" in f && f["type"] == "crisis")'
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.FileName), []byte(doc), 0o644))

	ws, err := app.Open(dir, "", nil)
	require.NoError(t, err)
	defer ws.Close()
	assert.Equal(t, 10, ws.Config.Workload.MaxPoints)
	assert.Equal(t, 1, ws.Engine.Rules.Len())
	assert.FileExists(t, filepath.Join(dir, ".careline", "careline.db"))
}

func TestOpenRejectsBadConfigPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "other.yml")
	require.NoError(t, os.WriteFile(path, []byte("workload: nope\n"), 0o644))
	_, err := app.Open(dir, path, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "other.yml")
}
