package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"github.com/gmsas95/medicamenta/internal/medication"
)

const medicationPrefix = "medication:"

// BadgerStore keeps each medication as a JSON value under medication:{owner}:{id}
type BadgerStore struct {
	db     *badger.DB
	logger *zap.Logger
}

// OpenBadger opens (or creates) a Badger database at path. With inMemory the path is ignored.
func OpenBadger(path string, inMemory bool) (*badger.DB, error) {
	opts := badger.DefaultOptions(path)
	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts = opts.
		WithLogger(nil).
		WithNumVersionsToKeep(1).
		WithCompactL0OnClose(true).
		WithValueLogFileSize(16 << 20).
		WithMemTableSize(16 << 20)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}
	return db, nil
}

func NewBadgerStore(db *badger.DB, logger *zap.Logger) *BadgerStore {
	return &BadgerStore{db: db, logger: logger}
}

func medicationKey(ownerID, id string) []byte {
	return []byte(medicationPrefix + ownerID + ":" + id)
}

func ownerPrefix(ownerID string) []byte {
	return []byte(medicationPrefix + ownerID + ":")
}

func (s *BadgerStore) FindByID(ctx context.Context, id, ownerID string) (*medication.Medication, error) {
	var p medication.Plain
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(medicationKey(ownerID, id))
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			return json.Unmarshal(v, &p)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load medication %s: %w", id, err)
	}
	return medication.FromPlain(p)
}

func (s *BadgerStore) FindByUserID(ctx context.Context, ownerID string, includeArchived bool) ([]*medication.Medication, error) {
	return s.scan(ctx, ownerPrefix(ownerID), func(m *medication.Medication) bool {
		return includeArchived || !m.IsArchived()
	})
}

func (s *BadgerStore) Save(ctx context.Context, m *medication.Medication) (*medication.Medication, error) {
	data, err := json.Marshal(m.ToPlain())
	if err != nil {
		return nil, fmt.Errorf("failed to encode medication %s: %w", m.ID(), err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(medicationKey(m.UserID(), m.ID()), data)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save medication %s: %w", m.ID(), err)
	}
	return m, nil
}

func (s *BadgerStore) Delete(ctx context.Context, id, ownerID string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(medicationKey(ownerID, id))
	})
	if err != nil {
		return fmt.Errorf("failed to delete medication %s: %w", id, err)
	}
	return nil
}

func (s *BadgerStore) FindLowStock(ctx context.Context, ownerID string, threshold int) ([]*medication.Medication, error) {
	meds, err := s.scan(ctx, ownerPrefix(ownerID), func(m *medication.Medication) bool {
		return !m.IsArchived() && m.CurrentStock() <= threshold
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(meds, func(i, j int) bool { return meds[i].CurrentStock() < meds[j].CurrentStock() })
	return meds, nil
}

func (s *BadgerStore) Exists(ctx context.Context, id, ownerID string) (bool, error) {
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(medicationKey(ownerID, id))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check medication %s: %w", id, err)
	}
	return true, nil
}

// Owners walks the keys only; values are not fetched.
func (s *BadgerStore) Owners(ctx context.Context) ([]string, error) {
	seen := make(map[string]bool)
	var owners []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(medicationPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			rest := strings.TrimPrefix(string(it.Item().Key()), medicationPrefix)
			owner, _, ok := strings.Cut(rest, ":")
			if !ok || seen[owner] {
				continue
			}
			seen[owner] = true
			owners = append(owners, owner)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list owners: %w", err)
	}
	sort.Strings(owners)
	return owners, nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// scan restores every medication under prefix that keep accepts, ordered by creation time.
func (s *BadgerStore) scan(ctx context.Context, prefix []byte, keep func(*medication.Medication) bool) ([]*medication.Medication, error) {
	out := make([]*medication.Medication, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			var p medication.Plain
			if err := item.Value(func(v []byte) error { return json.Unmarshal(v, &p) }); err != nil {
				return err
			}
			m, err := medication.FromPlain(p)
			if err != nil {
				s.logger.Warn("Skipping unreadable medication",
					zap.ByteString("key", item.KeyCopy(nil)),
					zap.Error(err))
				continue
			}
			if keep(m) {
				out = append(out, m)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan medications: %w", err)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt().Equal(out[j].CreatedAt()) {
			return out[i].CreatedAt().Before(out[j].CreatedAt())
		}
		return out[i].ID() < out[j].ID()
	})
	return out, nil
}
