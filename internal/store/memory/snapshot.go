package memory

import (
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"

	"github.com/bytedance/sonic"

	"github.com/NTGPC/ntglogin-sub000/internal/domain/fingerprint"
	"github.com/NTGPC/ntglogin-sub000/internal/shared/types"
)

type snapshot struct {
	Profiles    []types.Profile      `json:"profiles"`
	Proxies     []types.Proxy        `json:"proxies"`
	Sessions    []types.Session      `json:"sessions"`
	Workflows   []types.Workflow     `json:"workflows"`
	Assignments []types.Assignment   `json:"assignments"`
	Jobs        []types.Job          `json:"jobs"`
	Executions  []types.Execution    `json:"executions"`
	Presets     []fingerprint.Preset `json:"presets"`
	Sequences   sequences            `json:"sequences"`
}

// Save writes the whole dataset to path, replacing it atomically.
func (s *Store) Save(path string) error {
	s.mu.RLock()
	snap := snapshot{
		Profiles:    slices.Collect(maps.Values(s.profiles)),
		Proxies:     slices.Collect(maps.Values(s.proxies)),
		Sessions:    slices.Collect(maps.Values(s.sessions)),
		Workflows:   slices.Collect(maps.Values(s.workflows)),
		Assignments: slices.Clone(s.assignments),
		Jobs:        slices.Collect(maps.Values(s.jobs)),
		Executions:  slices.Collect(maps.Values(s.executions)),
		Presets:     slices.Collect(maps.Values(s.presets)),
		Sequences:   s.seq,
	}
	s.mu.RUnlock()

	data, err := sonic.ConfigStd.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot dir: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return os.Rename(tmp, path)
}

// Open restores a store from path. A missing file yields an empty store.
func Open(path string) (*Store, error) {
	s := New()

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var snap snapshot
	if err := sonic.ConfigStd.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}

	for _, p := range snap.Profiles {
		s.profiles[p.ID] = p
	}
	for _, p := range snap.Proxies {
		s.proxies[p.ID] = p
	}
	for _, sess := range snap.Sessions {
		s.sessions[sess.ID] = sess
	}
	for _, w := range snap.Workflows {
		s.workflows[w.ID] = w
	}
	for _, j := range snap.Jobs {
		s.jobs[j.ID] = j
	}
	for _, e := range snap.Executions {
		s.executions[e.ID] = e
	}
	for _, p := range snap.Presets {
		s.presets[p.ID] = p
	}
	s.assignments = snap.Assignments
	s.seq = snap.Sequences
	return s, nil
}
