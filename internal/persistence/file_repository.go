package persistence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"okx-spot-bot-go/internal/models"
)

// fileRepository persists the snapshot as a small JSON file. Writes go through
// a temp file plus rename so a crash mid-write never leaves a torn snapshot.
type fileRepository struct {
	path string
}

// NewFileRepository returns a repository backed by a JSON file at path.
func NewFileRepository(path string) (PositionRepository, error) {
	if path == "" {
		return nil, fmt.Errorf("empty state path")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create state directory: %w", err)
		}
	}
	return &fileRepository{path: path}, nil
}

func (r *fileRepository) Save(state *models.PositionState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}

	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write state temp file: %w", err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}

func (r *fileRepository) Load() (*models.PositionState, error) {
	data, err := os.ReadFile(r.path)
	if err != nil || len(data) == 0 {
		return r.resetToDefault()
	}

	var state models.PositionState
	if err := json.Unmarshal(data, &state); err != nil {
		return r.resetToDefault()
	}
	return &state, nil
}

// resetToDefault writes a zero snapshot back so the on-disk record is always
// readable on the next start.
func (r *fileRepository) resetToDefault() (*models.PositionState, error) {
	state := &models.PositionState{}
	if err := r.Save(state); err != nil {
		return nil, err
	}
	return state, nil
}

func (r *fileRepository) Close() error {
	return nil
}
