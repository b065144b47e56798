package store

import (
	"context"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/quantumflow/annealflow/internal/models"
)

const badgerPrefix = "agent:profile:"

// BadgerStore implements AgentStore using an embedded BadgerDB
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore opens (or creates) a BadgerDB directory at path
func NewBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).
		WithLoggingLevel(badger.WARNING)
	return openBadgerStore(opts)
}

func openBadgerStore(opts badger.Options) (*BadgerStore, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, storeErr(BackendBadger, "open", fmt.Errorf("failed to open BadgerDB: %w", err))
	}
	return &BadgerStore{db: db}, nil
}

func badgerKey(id string) []byte {
	return []byte(badgerPrefix + id)
}

// LoadAll reads every profile under the agent prefix
func (s *BadgerStore) LoadAll(ctx context.Context) ([]*models.AgentProfile, error) {
	var profiles []*models.AgentProfile

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(badgerPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			err := it.Item().Value(func(val []byte) error {
				profile, err := decodeProfile(val)
				if err != nil {
					return err
				}
				profiles = append(profiles, profile)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, storeErr(BackendBadger, "load", err)
	}

	sortByCreation(profiles)
	return profiles, nil
}

// SaveAll replaces every stored profile in a single transaction
func (s *BadgerStore) SaveAll(ctx context.Context, profiles []*models.AgentProfile) error {
	encoded := make(map[string][]byte, len(profiles))
	for _, p := range profiles {
		data, err := encodeProfile(p)
		if err != nil {
			return storeErr(BackendBadger, "save all", err)
		}
		encoded[p.ID] = data
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		var stale [][]byte

		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(badgerPrefix)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		for it.Rewind(); it.Valid(); it.Next() {
			key := it.Item().KeyCopy(nil)
			if _, keep := encoded[string(key[len(badgerPrefix):])]; !keep {
				stale = append(stale, key)
			}
		}
		it.Close()

		for _, key := range stale {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		for id, data := range encoded {
			if err := txn.Set(badgerKey(id), data); err != nil {
				return err
			}
		}
		return nil
	})
	return storeErr(BackendBadger, "save all", err)
}

// Save replaces one profile
func (s *BadgerStore) Save(ctx context.Context, profile *models.AgentProfile) error {
	data, err := encodeProfile(profile)
	if err != nil {
		return storeErr(BackendBadger, "save", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(badgerKey(profile.ID), data)
	})
	return storeErr(BackendBadger, "save", err)
}

// Delete removes one profile
func (s *BadgerStore) Delete(ctx context.Context, id string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(badgerKey(id))
	})
	return storeErr(BackendBadger, "delete", err)
}

// Close closes the BadgerDB instance
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
