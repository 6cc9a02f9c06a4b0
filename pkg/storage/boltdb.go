package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/shardset/shardset/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketReplSetConfig = []byte("replset_config")
	bucketChunkVersions = []byte("chunk_versions")
	bucketLocks         = []byte("locks")
)

// BoltStore implements Store using an embedded bbolt database, one file
// per storage node.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if absent) the node's state file under
// dataDir.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "shardset.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketReplSetConfig, bucketChunkVersions, bucketLocks} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("create bucket %s: %w", bucket, err)
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

func (s *BoltStore) Close() error { return s.db.Close() }

func (s *BoltStore) SaveReplSetConfig(cfg types.Config) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(cfg)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketReplSetConfig).Put([]byte(cfg.SetID), data)
	})
}

func (s *BoltStore) LoadReplSetConfig(setID string) (types.Config, bool, error) {
	var cfg types.Config
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketReplSetConfig).Get([]byte(setID))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &cfg)
	})
	return cfg, found, err
}

func (s *BoltStore) SetChunkVersion(ns string, version int64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(version)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketChunkVersions).Put([]byte(ns), data)
	})
}

func (s *BoltStore) GetChunkVersion(ns string) (int64, error) {
	var version int64
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketChunkVersions).Get([]byte(ns))
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &version)
	})
	return version, err
}

func (s *BoltStore) GetLock(name string) (LockDoc, bool, error) {
	var doc LockDoc
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketLocks).Get([]byte(name))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &doc)
	})
	return doc, found, err
}

// EnsureLock inserts an unlocked document for name if none exists yet.
func (s *BoltStore) EnsureLock(name string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLocks)
		if b.Get([]byte(name)) != nil {
			return nil
		}
		data, err := json.Marshal(LockDoc{Name: name, State: 0})
		if err != nil {
			return err
		}
		return b.Put([]byte(name), data)
	})
}

// ForceUnlock unconditionally resets name's document to state=0.
func (s *BoltStore) ForceUnlock(name string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(LockDoc{Name: name, State: 0})
		if err != nil {
			return err
		}
		return tx.Bucket(bucketLocks).Put([]byte(name), data)
	})
}

// CompareAndSwapLock implements the only legal transitions on a lock
// document: (state=0)->(state=1,...) and its inverse (spec §3). The
// current document (or the implicit unlocked zero value if one has
// never been written) must match expected's State and Who before next
// is committed.
func (s *BoltStore) CompareAndSwapLock(expected, next LockDoc) (LockDoc, bool, error) {
	var result LockDoc
	swapped := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLocks)
		current := LockDoc{Name: expected.Name}
		if data := b.Get([]byte(expected.Name)); data != nil {
			if err := json.Unmarshal(data, &current); err != nil {
				return err
			}
		}

		if current.State != expected.State || current.Who != expected.Who {
			result = current
			return nil
		}

		data, err := json.Marshal(next)
		if err != nil {
			return err
		}
		if err := b.Put([]byte(next.Name), data); err != nil {
			return err
		}
		result = next
		swapped = true
		return nil
	})
	return result, swapped, err
}
