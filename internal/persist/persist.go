// Package persist writes the two on-disk artifacts produced after each
// reassignment: the monitor state file used for crash recovery and the
// flat workspace-assignment list consumed by the declarative config
// tooling. Neither file is ever authoritative over a live snapshot.
package persist

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vpittamp/hyprdist/internal/state"
	"github.com/vpittamp/hyprdist/internal/util"
)

// Store persists monitor state and the derived assignment artifact.
type Store struct {
	statePath       string
	assignmentsPath string
	logger          *util.Logger
}

// NewStore creates a store writing to the given paths.
func NewStore(statePath, assignmentsPath string, logger *util.Logger) *Store {
	return &Store{
		statePath:       statePath,
		assignmentsPath: assignmentsPath,
		logger:          logger,
	}
}

// StatePath returns the monitor state file location.
func (s *Store) StatePath() string { return s.statePath }

// AssignmentsPath returns the assignment artifact location.
func (s *Store) AssignmentsPath() string { return s.assignmentsPath }

// Save writes the monitor state atomically: a concurrent reader sees
// either the old file or the new one, never a partial write.
func (s *Store) Save(ms *state.MonitorState) error {
	data, err := json.MarshalIndent(ms, "", "  ")
	if err != nil {
		return fmt.Errorf("encode monitor state: %w", err)
	}
	if err := writeAtomic(s.statePath, data); err != nil {
		return fmt.Errorf("write monitor state: %w", err)
	}
	return nil
}

// Load reads the monitor state back. A missing file returns (nil, nil); a
// corrupt file is logged and also returns (nil, nil) so startup can
// rebuild from a live snapshot instead of crashing.
func (s *Store) Load() (*state.MonitorState, error) {
	data, err := os.ReadFile(s.statePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read monitor state: %w", err)
	}
	var ms state.MonitorState
	if err := json.Unmarshal(data, &ms); err != nil {
		if s.logger != nil {
			s.logger.Warnf("monitor state file %s is corrupt, ignoring: %v", s.statePath, err)
		}
		return nil, nil
	}
	return &ms, nil
}

// SaveAssignments regenerates the flat {workspace, output} artifact.
func (s *Store) SaveAssignments(ms *state.MonitorState) error {
	data, err := json.MarshalIndent(ms.AssignmentPairs(), "", "  ")
	if err != nil {
		return fmt.Errorf("encode workspace assignments: %w", err)
	}
	if err := writeAtomic(s.assignmentsPath, data); err != nil {
		return fmt.Errorf("write workspace assignments: %w", err)
	}
	return nil
}

// writeAtomic writes data next to the target and renames it into place.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
