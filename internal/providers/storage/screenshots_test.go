package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	pngHeader  = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")
	jpegHeader = []byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}
)

func newStore(t *testing.T) *Screenshots {
	t.Helper()
	s, err := NewScreenshots(filepath.Join(t.TempDir(), "shots"), zap.NewNop())
	require.NoError(t, err)
	s.now = func() time.Time { return time.Unix(1700000000, 0) }
	return s
}

func TestSaveNamesByExecution(t *testing.T) {
	s := newStore(t)

	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"png", pngHeader, "job_exec_12_1700000000.png"},
		{"jpeg", jpegHeader, "job_exec_12_1700000000.jpg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path, err := s.Save(12, tt.data)
			require.NoError(t, err)
			assert.Equal(t, filepath.Join(s.Dir(), tt.want), path)

			got, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, tt.data, got)
		})
	}
}

func TestSaveRejectsNonImages(t *testing.T) {
	s := newStore(t)

	_, err := s.Save(1, nil)
	assert.Error(t, err)

	_, err = s.Save(1, []byte("<html><body>nope</body></html>"))
	assert.ErrorContains(t, err, "not an image")
}

func TestSaveAsStaysInsideRoot(t *testing.T) {
	s := newStore(t)

	path, err := s.SaveAs("../../etc/login", pngHeader)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(s.Dir(), "login.png"), path)

	path, err = s.SaveAs("after-submit.png", pngHeader)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(s.Dir(), "after-submit.png"), path)
}
