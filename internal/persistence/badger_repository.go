package persistence

import (
	"encoding/json"
	"errors"

	"okx-spot-bot-go/internal/models"

	"github.com/dgraph-io/badger/v3"
)

// badgerRepository is the BadgerDB implementation of the PositionRepository.
type badgerRepository struct {
	db       *badger.DB
	stateKey []byte
}

// NewBadgerRepository creates and returns a new repository instance connected to a BadgerDB database.
func NewBadgerRepository(dbPath string) (PositionRepository, error) {
	opts := badger.DefaultOptions(dbPath)
	// For this use case, we can disable Badger's own logging to keep our app's logs clean.
	// Errors will still be returned from DB operations.
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return &badgerRepository{
		db:       db,
		stateKey: []byte("position_state"), // single state object per database
	}, nil
}

// Save atomically persists the position snapshot.
// It marshals the state struct into JSON and saves it under a predefined key.
func (r *badgerRepository) Save(state *models.PositionState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}

	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(r.stateKey, data)
	})
}

// Load reads the position snapshot from storage. An absent, empty or
// unparsable value yields a fresh zero snapshot which is written back.
func (r *badgerRepository) Load() (*models.PositionState, error) {
	var state models.PositionState

	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(r.stateKey)
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			if len(val) == 0 {
				return errors.New("state value is empty in database")
			}
			return json.Unmarshal(val, &state)
		})
	})

	if err != nil {
		// Key not found and corrupted data fall back to a default snapshot,
		// but IO-level failures must surface to the caller.
		if errors.Is(err, badger.ErrKeyNotFound) || isDecodeError(err) {
			fresh := &models.PositionState{}
			if saveErr := r.Save(fresh); saveErr != nil {
				return nil, saveErr
			}
			return fresh, nil
		}
		return nil, err
	}

	return &state, nil
}

func isDecodeError(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr) || err.Error() == "state value is empty in database"
}

// Close gracefully closes the connection to the database.
func (r *badgerRepository) Close() error {
	return r.db.Close()
}
