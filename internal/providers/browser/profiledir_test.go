package browser

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func readJSON(t *testing.T, path string) map[string]any {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	return doc
}

func TestPrepareCreatesDefaults(t *testing.T) {
	dirs := NewProfileDirs(t.TempDir(), zap.NewNop())

	dir, err := dirs.Prepare(7, false)
	require.NoError(t, err)
	assert.Equal(t, "profile_7", filepath.Base(dir))

	prefs := readJSON(t, filepath.Join(dir, "Default", "Preferences"))
	profile := prefs["profile"].(map[string]any)
	assert.Equal(t, "Normal", profile["exit_type"])
	assert.Equal(t, true, profile["exited_cleanly"])
	assert.Equal(t, float64(restoreLastSession), prefs["session"].(map[string]any)["restore_on_startup"])

	local := readJSON(t, filepath.Join(dir, "Local State"))
	assert.Equal(t, true, local["exited_cleanly"])
}

func TestPreparePatchesExistingProfiles(t *testing.T) {
	root := t.TempDir()
	dirs := NewProfileDirs(root, zap.NewNop())
	dir := dirs.Path(2)

	existing := filepath.Join(dir, "Profile 1", "Preferences")
	require.NoError(t, os.MkdirAll(filepath.Dir(existing), 0o755))
	require.NoError(t, os.WriteFile(existing,
		[]byte(`{"profile":{"exit_type":"Crashed","name":"work"},"extensions":{"a":1}}`), 0o644))

	_, err := dirs.Prepare(2, true)
	require.NoError(t, err)

	prefs := readJSON(t, existing)
	profile := prefs["profile"].(map[string]any)
	assert.Equal(t, "Normal", profile["exit_type"])
	assert.Equal(t, "work", profile["name"], "unrelated keys survive")
	assert.Contains(t, prefs, "extensions")
	assert.Equal(t, float64(openNewTab), prefs["session"].(map[string]any)["restore_on_startup"])

	_, err = os.Stat(filepath.Join(dir, "Default", "Preferences"))
	assert.True(t, os.IsNotExist(err), "only discovered profiles are patched")
}

func TestPrepareLeavesCorruptFiles(t *testing.T) {
	dirs := NewProfileDirs(t.TempDir(), zap.NewNop())
	dir := dirs.Path(1)
	path := filepath.Join(dir, "Default", "Preferences")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := dirs.Prepare(1, false)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{not json", string(data))
}

func TestScratchAndRemove(t *testing.T) {
	root := t.TempDir()
	dirs := NewProfileDirs(root, zap.NewNop())

	scratch, cleanup, err := dirs.Scratch()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(filepath.Base(scratch), "session_"))
	assert.DirExists(t, scratch)
	cleanup()
	assert.NoDirExists(t, scratch)

	dir, err := dirs.Prepare(4, false)
	require.NoError(t, err)
	require.NoError(t, dirs.Remove(4))
	assert.NoDirExists(t, dir)
	assert.NoError(t, dirs.Remove(4), "removing twice is fine")
}
