package dedupe

import (
	"encoding/binary"
	"fmt"

	"github.com/cockroachdb/pebble"

	"main/internal/schema"
)

const seenKeySize = 12

// SeenStore persists seen order identifiers in a Pebble database so a
// restarted gateway keeps rejecting replayed IDs.
type SeenStore struct {
	db *pebble.DB
}

// OpenSeenStore opens (or creates) the database at path.
func OpenSeenStore(path string) (*SeenStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open seen store at %s: %w", path, err)
	}
	return &SeenStore{db: db}, nil
}

// Close closes the database.
func (s *SeenStore) Close() error {
	return s.db.Close()
}

// Put records an (account, orderID) pair.
func (s *SeenStore) Put(account schema.AccountID, orderID uint64) error {
	key := encodeSeenKey(account, orderID)
	if err := s.db.Set(key[:], nil, pebble.Sync); err != nil {
		return fmt.Errorf("persist seen id: %w", err)
	}
	return nil
}

// Contains reports whether an (account, orderID) pair was recorded.
func (s *SeenStore) Contains(account schema.AccountID, orderID uint64) (bool, error) {
	key := encodeSeenKey(account, orderID)
	_, closer, err := s.db.Get(key[:])
	if err == pebble.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup seen id: %w", err)
	}
	_ = closer.Close()
	return true, nil
}

// Each calls fn for every recorded (account, orderID) pair.
func (s *SeenStore) Each(fn func(schema.AccountID, uint64)) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return fmt.Errorf("scan seen store: %w", err)
	}
	defer iter.Close()
	for iter.First(); iter.Valid(); iter.Next() {
		key := iter.Key()
		if len(key) != seenKeySize {
			continue
		}
		fn(schema.AccountID(binary.BigEndian.Uint32(key[0:4])), binary.BigEndian.Uint64(key[4:12]))
	}
	return iter.Error()
}

func encodeSeenKey(account schema.AccountID, orderID uint64) [seenKeySize]byte {
	var key [seenKeySize]byte
	binary.BigEndian.PutUint32(key[0:4], uint32(account))
	binary.BigEndian.PutUint64(key[4:12], orderID)
	return key
}
