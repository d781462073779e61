package persistence

import (
	"encoding/json"
	"errors"

	"github.com/dgraph-io/badger/v3"
)

// runKeyPrefix namespaces archived runs inside the database.
var runKeyPrefix = []byte("run/")

// badgerRepository is the BadgerDB implementation of the ResultRepository.
type badgerRepository struct {
	db *badger.DB
}

// NewBadgerRepository creates and returns a new repository instance connected to a BadgerDB database.
func NewBadgerRepository(dbPath string) (ResultRepository, error) {
	opts := badger.DefaultOptions(dbPath)
	// For this use case, we can disable Badger's own logging to keep our app's logs clean.
	// Errors will still be returned from DB operations.
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return &badgerRepository{db: db}, nil
}

func runKey(runID string) []byte {
	return append(append([]byte{}, runKeyPrefix...), runID...)
}

// SaveRun atomically archives one completed run.
// The whole envelope is marshaled to JSON and stored under "run/<id>".
func (r *badgerRepository) SaveRun(run *ArchivedRun) error {
	if run.RunID == "" {
		return errors.New("run ID must not be empty")
	}
	data, err := json.Marshal(run)
	if err != nil {
		return err
	}

	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(runKey(run.RunID), data)
	})
}

// LoadRun loads an archived run by ID.
// If the key is not found, it returns (nil, nil) to indicate no run is present.
func (r *badgerRepository) LoadRun(runID string) (*ArchivedRun, error) {
	var run ArchivedRun

	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(runKey(runID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) == 0 {
				return errors.New("archived run is empty in database")
			}
			return json.Unmarshal(val, &run)
		})
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil // The expected "no run found" case.
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRuns returns the IDs of all archived runs.
// Badger iterates keys in byte order, so the result is already sorted.
func (r *badgerRepository) ListRuns() ([]string, error) {
	var ids []string
	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(runKeyPrefix); it.ValidForPrefix(runKeyPrefix); it.Next() {
			ids = append(ids, string(it.Item().Key()[len(runKeyPrefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// Close gracefully closes the connection to the database.
func (r *badgerRepository) Close() error {
	return r.db.Close()
}
