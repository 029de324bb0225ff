package browser

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/NTGPC/ntglogin-sub000/internal/shared/id"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/bytedance/sonic"
	"go.uber.org/zap"
)

// Startup behaviours written to session.restore_on_startup.
const (
	restoreLastSession = 1
	openNewTab         = 5
)

// ProfileDirs manages per-profile user data directories under one root.
type ProfileDirs struct {
	root   string
	logger *zap.Logger
}

// NewProfileDirs creates a manager rooted at root.
func NewProfileDirs(root string, logger *zap.Logger) *ProfileDirs {
	return &ProfileDirs{root: root, logger: logger}
}

// Path returns the directory of a profile.
func (d *ProfileDirs) Path(profileID int) string {
	return filepath.Join(d.root, "profile_"+strconv.Itoa(profileID))
}

// Prepare ensures the profile directory exists and marks its last run as a
// clean exit so Chromium shows no restore prompt. With proxy credentials
// the browser opens a new tab instead of restoring tabs that would race the
// auth handler.
func (d *ProfileDirs) Prepare(profileID int, proxyCredentials bool) (string, error) {
	dir := d.Path(profileID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create profile dir: %w", err)
	}
	d.patch(dir, proxyCredentials)
	return dir, nil
}

// Scratch creates a transient directory for a launch not tied to a profile.
// The returned func removes it.
func (d *ProfileDirs) Scratch() (string, func(), error) {
	dir := filepath.Join(d.root, id.NewScratchID().String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", nil, fmt.Errorf("failed to create scratch dir: %w", err)
	}
	return dir, func() {
		if err := os.RemoveAll(dir); err != nil {
			d.logger.Warn("failed to remove scratch dir", zap.String("dir", dir), zap.Error(err))
		}
	}, nil
}

// Remove deletes a profile directory. A missing directory is not an error.
func (d *ProfileDirs) Remove(profileID int) error {
	if err := os.RemoveAll(d.Path(profileID)); err != nil {
		return fmt.Errorf("failed to remove profile dir: %w", err)
	}
	return nil
}

func (d *ProfileDirs) patch(dir string, proxyCredentials bool) {
	restore := restoreLastSession
	if proxyCredentials {
		restore = openNewTab
	}

	prefs, err := doublestar.Glob(os.DirFS(dir), "*/Preferences")
	if err != nil || len(prefs) == 0 {
		prefs = []string{"Default/Preferences"}
	}

	for _, rel := range prefs {
		path := filepath.Join(dir, filepath.FromSlash(rel))
		err := patchJSON(path, func(doc map[string]any) {
			profile := child(doc, "profile")
			profile["exit_type"] = "Normal"
			profile["exited_cleanly"] = true
			child(doc, "session")["restore_on_startup"] = restore
		})
		if err != nil {
			d.logger.Warn("failed to patch preferences", zap.String("path", path), zap.Error(err))
		}
	}

	localState := filepath.Join(dir, "Local State")
	if err := patchJSON(localState, func(doc map[string]any) {
		doc["exited_cleanly"] = true
	}); err != nil {
		d.logger.Warn("failed to patch local state", zap.String("path", localState), zap.Error(err))
	}
}

var errCorrupt = errors.New("not a JSON object")

// patchJSON applies edit to the JSON object stored at path, creating the
// file when missing. Unparseable files are left untouched.
func patchJSON(path string, edit func(map[string]any)) error {
	doc := map[string]any{}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return err
	default:
		if err := sonic.ConfigStd.Unmarshal(data, &doc); err != nil || doc == nil {
			return errCorrupt
		}
	}

	edit(doc)

	out, err := sonic.ConfigStd.Marshal(doc)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, out, 0o644)
}

func child(doc map[string]any, key string) map[string]any {
	if m, ok := doc[key].(map[string]any); ok {
		return m
	}
	m := map[string]any{}
	doc[key] = m
	return m
}
