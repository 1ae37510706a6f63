package filestore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gobandits/domain/arms"
	"gobandits/internal/errors"
	"gobandits/ports"
)

// RosterStore keeps a roster as an indented JSON document on disk.
type RosterStore struct {
	path string
}

var _ ports.RosterRepository = (*RosterStore)(nil)

// NewRosterStore creates a store backed by the file at path
func NewRosterStore(path string) *RosterStore {
	return &RosterStore{path: path}
}

// Path returns the backing file
func (s *RosterStore) Path() string { return s.path }

// Load reads and validates the roster
func (s *RosterStore) Load(ctx context.Context) (*arms.Roster, error) {
	roster, err := s.LoadRaw(ctx)
	if err != nil {
		return nil, err
	}
	if err := roster.Validate(); err != nil {
		return nil, errors.Wrapf(err, "roster %s", s.path)
	}
	return roster, nil
}

// LoadRaw decodes the roster without validating it, for lint
func (s *RosterStore) LoadRaw(ctx context.Context) (*arms.Roster, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NotFound(fmt.Sprintf("roster file %s", s.path))
		}
		return nil, errors.Wrapf(err, "failed to read roster %s", s.path)
	}

	var roster arms.Roster
	if err := json.Unmarshal(data, &roster); err != nil {
		return nil, errors.WithCode(errors.CodeValidationError, fmt.Errorf("roster %s is not valid JSON: %w", s.path, err))
	}
	if roster.Scripts == nil {
		roster.Scripts = []arms.Script{}
	}
	return &roster, nil
}

// Save writes the roster through a temp file in the same directory and
// renames it over the target, so readers never see a partial document.
func (s *RosterStore) Save(ctx context.Context, roster *arms.Roster) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if roster.Scripts == nil {
		roster = &arms.Roster{Scripts: []arms.Script{}}
	}

	data, err := json.MarshalIndent(roster, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode roster")
	}
	data = append(data, '\n')

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return errors.Wrapf(err, "failed to create temp file in %s", dir)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "failed to write %s", tmpName)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "failed to close %s", tmpName)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return errors.Wrapf(err, "failed to chmod %s", tmpName)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return errors.Wrapf(err, "failed to replace %s", s.path)
	}
	return nil
}
