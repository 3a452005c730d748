package config

import (
	"encoding/binary"
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketPaths = []byte("paths")
	bucketMeta  = []byte("meta")
	keyVersion  = []byte("version")
)

// BoltStore is the reference Store/Writer implementation, backed by a
// single BoltDB file. It holds exactly the durable external state the
// engine is permitted to keep outside rg_state: the raw configuration
// tree and its version.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if absent) the config database under
// dataDir.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "rgmd-config.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open config db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketPaths, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Get implements Store.
func (s *BoltStore) Get(path string) (string, bool, error) {
	var value string
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketPaths).Get([]byte(path))
		if v == nil {
			return nil
		}
		found = true
		value = string(v)
		return nil
	})
	return value, found, err
}

// GetVersion implements Store.
func (s *BoltStore) GetVersion() (int64, error) {
	var version int64
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketMeta).Get(keyVersion)
		if v == nil {
			return nil
		}
		version = int64(binary.BigEndian.Uint64(v))
		return nil
	})
	return version, err
}

// Put implements Writer.
func (s *BoltStore) Put(path, value string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPaths).Put([]byte(path), []byte(value))
	})
}

// Bump implements Writer.
func (s *BoltStore) Bump(v int64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(v))
		return tx.Bucket(bucketMeta).Put(keyVersion, buf)
	})
}
