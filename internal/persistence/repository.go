package persistence

import "okx-spot-bot-go/internal/models"

// PositionRepository defines the interface for position snapshot persistence.
// It abstracts the underlying storage mechanism (plain file, BadgerDB)
// from the rest of the application.
type PositionRepository interface {
	// Save atomically persists the position snapshot.
	Save(state *models.PositionState) error

	// Load reads the snapshot from storage. If the snapshot is absent, empty
	// or malformed it must return a fresh zero state and write it back, so the
	// caller always starts from a consistent record.
	Load() (*models.PositionState, error)

	// Close gracefully releases the underlying storage.
	Close() error
}
