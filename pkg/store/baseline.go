package store

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketBaselines = []byte("baselines")

// BaselineEntry is the stored (hash, metadata) pair for one path — the
// FIM's "known good" reference.
type BaselineEntry struct {
	Hash      string            `json:"hash"`
	Metadata  map[string]string `json:"metadata"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// BaselineStore is the keyed store of {path -> hash, metadata} described
// in spec §3.4 / §4.2. Exactly one entry per path; Set upserts.
type BaselineStore struct {
	db *bolt.DB
	mu sync.Mutex
}

// OpenBaselineStore opens (creating if necessary) the baseline database.
func OpenBaselineStore(path string) (*BaselineStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open baseline db: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketBaselines)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create baselines bucket: %w", err)
	}
	return &BaselineStore{db: db}, nil
}

func (s *BaselineStore) Close() error {
	return s.db.Close()
}

// Get returns the baseline for path, or ok=false if none exists.
func (s *BaselineStore) Get(path string) (entry BaselineEntry, ok bool, err error) {
	err = s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketBaselines).Get([]byte(path))
		if data == nil {
			return nil
		}
		ok = true
		return json.Unmarshal(data, &entry)
	})
	if err != nil {
		return BaselineEntry{}, false, fmt.Errorf("get baseline %q: %w", path, err)
	}
	return entry, ok, nil
}

// Set upserts the baseline for path, refreshing UpdatedAt. hash must never
// be empty — an unknown hash means the entry should not exist.
func (s *BaselineStore) Set(path, hash string, metadata map[string]string) error {
	if hash == "" {
		return fmt.Errorf("set baseline %q: empty hash", path)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	err := s.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(bucketBaselines)
		key := []byte(path)

		entry := BaselineEntry{Hash: hash, Metadata: metadata, CreatedAt: now, UpdatedAt: now}
		if existing := bkt.Get(key); existing != nil {
			var prior BaselineEntry
			if err := json.Unmarshal(existing, &prior); err == nil {
				entry.CreatedAt = prior.CreatedAt
			}
		}

		data, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		return bkt.Put(key, data)
	})
	if err != nil {
		return fmt.Errorf("set baseline %q: %w", path, err)
	}
	return nil
}

// Remove deletes the baseline for path, if any.
func (s *BaselineStore) Remove(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketBaselines).Delete([]byte(path))
	})
	if err != nil {
		return fmt.Errorf("remove baseline %q: %w", path, err)
	}
	return nil
}

// All streams every (path, entry) pair for a full verification scan.
func (s *BaselineStore) All(fn func(path string, entry BaselineEntry) error) error {
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketBaselines).ForEach(func(k, v []byte) error {
			var entry BaselineEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				return fmt.Errorf("unmarshal baseline %q: %w", k, err)
			}
			return fn(string(k), entry)
		})
	})
	if err != nil {
		return fmt.Errorf("iterate baselines: %w", err)
	}
	return nil
}

// Count returns the number of baseline entries.
func (s *BaselineStore) Count() (int, error) {
	var n int
	err := s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(bucketBaselines).Stats().KeyN
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("count baselines: %w", err)
	}
	return n, nil
}

// Clear removes all baseline entries.
func (s *BaselineStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bucketBaselines); err != nil {
			return err
		}
		_, err := tx.CreateBucket(bucketBaselines)
		return err
	})
	if err != nil {
		return fmt.Errorf("clear baselines: %w", err)
	}
	return nil
}
