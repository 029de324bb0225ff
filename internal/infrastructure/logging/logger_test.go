package logging

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"production", DefaultConfig(), false},
		{"development", DevelopmentConfig(), false},
		{"no outputs", Config{Level: "warn"}, false},
		{"bad level", Config{Level: "loud"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, l.Logger)
		})
	}
}

func TestFileOutputAndComponent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fleet.log")

	l, err := New(Config{Level: "info", OutputPaths: []string{path}})
	require.NoError(t, err)

	l.Component("session").Info("launched")
	_ = l.Sync()

	assert.FileExists(t, path)
}

func TestNop(t *testing.T) {
	l := NewNop()
	assert.NotNil(t, l.Logger)
	assert.NotPanics(t, func() { l.Component("job").Info("dropped") })
}
