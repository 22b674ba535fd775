// Package store implements the agent's two on-disk bbolt-backed stores:
// the durable event buffer (buffer.db) and the FIM baseline store
// (baseline.db). Both follow the single-writer, bucket-per-collection
// idiom used for the cluster state store this agent was adapted from.
package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/machinekinglabs/lognog-agent/pkg/eventmodel"
)

var bucketEntries = []byte("entries")

// EventBuffer is the durable, ordered, persistent queue of pending log and
// FIM records described in spec §4.1. Keys are the bucket's own
// monotonically increasing sequence number encoded big-endian, so bolt's
// natural key ordering doubles as the insertion-order index — no separate
// secondary index is needed.
type EventBuffer struct {
	db *bolt.DB
	mu sync.Mutex
}

type storedEntry struct {
	Kind      eventmodel.Kind `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	Attempts  int             `json:"attempts"`
}

// OpenEventBuffer opens (creating if necessary) the buffer database at path.
func OpenEventBuffer(path string) (*EventBuffer, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open buffer db: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketEntries)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create entries bucket: %w", err)
	}
	return &EventBuffer{db: db}, nil
}

func (b *EventBuffer) Close() error {
	return b.db.Close()
}

func (b *EventBuffer) enqueue(kind eventmodel.Kind, payload []byte) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var id uint64
	err := b.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(bucketEntries)
		seq, err := bkt.NextSequence()
		if err != nil {
			return err
		}
		id = seq

		entry := storedEntry{Kind: kind, Payload: payload, CreatedAt: time.Now().UTC()}
		data, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("marshal entry: %w", err)
		}
		return bkt.Put(idKey(id), data)
	})
	if err != nil {
		return 0, fmt.Errorf("enqueue: %w", err)
	}
	return id, nil
}

// EnqueueLog enqueues a log record, returning its assigned ID.
func (b *EventBuffer) EnqueueLog(record eventmodel.LogRecord) (uint64, error) {
	payload, err := json.Marshal(record)
	if err != nil {
		return 0, fmt.Errorf("marshal log record: %w", err)
	}
	return b.enqueue(eventmodel.KindLog, payload)
}

// EnqueueFIM enqueues a FIM record, returning its assigned ID.
func (b *EventBuffer) EnqueueFIM(record eventmodel.FIMRecord) (uint64, error) {
	payload, err := json.Marshal(record)
	if err != nil {
		return 0, fmt.Errorf("marshal fim record: %w", err)
	}
	return b.enqueue(eventmodel.KindFIM, payload)
}

// NextBatch returns up to limit oldest pending entries in insertion order.
// It does not remove them.
func (b *EventBuffer) NextBatch(limit int) ([]eventmodel.BufferedEntry, error) {
	var batch []eventmodel.BufferedEntry
	err := b.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketEntries).Cursor()
		for k, v := c.First(); k != nil && len(batch) < limit; k, v = c.Next() {
			var entry storedEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				return fmt.Errorf("unmarshal entry %d: %w", binary.BigEndian.Uint64(k), err)
			}
			batch = append(batch, eventmodel.BufferedEntry{
				ID:       binary.BigEndian.Uint64(k),
				Kind:     entry.Kind,
				Payload:  entry.Payload,
				Attempts: entry.Attempts,
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("next batch: %w", err)
	}
	return batch, nil
}

// Remove deletes acknowledged entries. An empty list is a no-op.
func (b *EventBuffer) Remove(ids []uint64) error {
	if len(ids) == 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	err := b.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(bucketEntries)
		for _, id := range ids {
			if err := bkt.Delete(idKey(id)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("remove entries: %w", err)
	}
	return nil
}

// BumpAttempts atomically increments the attempt counter for each id.
func (b *EventBuffer) BumpAttempts(ids []uint64) error {
	if len(ids) == 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	err := b.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(bucketEntries)
		for _, id := range ids {
			key := idKey(id)
			data := bkt.Get(key)
			if data == nil {
				continue
			}
			var entry storedEntry
			if err := json.Unmarshal(data, &entry); err != nil {
				return fmt.Errorf("unmarshal entry %d: %w", id, err)
			}
			entry.Attempts++
			encoded, err := json.Marshal(entry)
			if err != nil {
				return err
			}
			if err := bkt.Put(key, encoded); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("bump attempts: %w", err)
	}
	return nil
}

// EvictPoison deletes entries whose attempts have reached maxAttempts,
// returning the number evicted.
func (b *EventBuffer) EvictPoison(maxAttempts int) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var evicted int
	err := b.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(bucketEntries)
		var poisoned [][]byte
		c := bkt.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var entry storedEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				return err
			}
			if entry.Attempts >= maxAttempts {
				// Copy the key: bolt reuses the cursor's backing array.
				key := append([]byte(nil), k...)
				poisoned = append(poisoned, key)
			}
		}
		for _, key := range poisoned {
			if err := bkt.Delete(key); err != nil {
				return err
			}
		}
		evicted = len(poisoned)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("evict poison: %w", err)
	}
	return evicted, nil
}

// Count returns the exact number of pending entries.
func (b *EventBuffer) Count() (int, error) {
	var n int
	err := b.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(bucketEntries).Stats().KeyN
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

// Clear removes all pending entries. For administrative use.
func (b *EventBuffer) Clear() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	err := b.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bucketEntries); err != nil {
			return err
		}
		_, err := tx.CreateBucket(bucketEntries)
		return err
	})
	if err != nil {
		return fmt.Errorf("clear: %w", err)
	}
	return nil
}

func idKey(id uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, id)
	return key
}
