// Package storage keeps execution artifacts on local disk.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"
)

// Screenshots writes captured images under a single directory.
type Screenshots struct {
	dir    string
	logger *zap.Logger
	now    func() time.Time
}

// NewScreenshots creates the directory if needed.
func NewScreenshots(dir string, logger *zap.Logger) (*Screenshots, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create screenshots dir: %w", err)
	}
	return &Screenshots{dir: dir, logger: logger, now: time.Now}, nil
}

// Dir returns the storage root.
func (s *Screenshots) Dir() string { return s.dir }

// Save stores an execution screenshot as job_exec_<id>_<unix>.<ext>, the
// extension taken from the detected image type.
func (s *Screenshots) Save(executionID int, data []byte) (string, error) {
	ext, err := imageExtension(data)
	if err != nil {
		return "", err
	}
	name := fmt.Sprintf("job_exec_%d_%d%s", executionID, s.now().Unix(), ext)
	return s.write(name, data)
}

// SaveAs stores data under name. Directory components are stripped so the
// file always lands inside the storage root; a missing extension is filled
// in from the detected type.
func (s *Screenshots) SaveAs(name string, data []byte) (string, error) {
	ext, err := imageExtension(data)
	if err != nil {
		return "", err
	}
	name = filepath.Base(filepath.Clean("/" + name))
	if name == "/" || name == "." {
		return "", fmt.Errorf("invalid screenshot name %q", name)
	}
	if filepath.Ext(name) == "" {
		name += ext
	}
	return s.write(name, data)
}

func (s *Screenshots) write(name string, data []byte) (string, error) {
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write screenshot: %w", err)
	}
	s.logger.Debug("screenshot stored", zap.String("path", path), zap.Int("bytes", len(data)))
	return path, nil
}

func imageExtension(data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("empty screenshot")
	}
	mtype := mimetype.Detect(data)
	if !strings.HasPrefix(mtype.String(), "image/") {
		return "", fmt.Errorf("screenshot is %s, not an image", mtype.String())
	}
	return mtype.Extension(), nil
}
