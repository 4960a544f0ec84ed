// Package journal is a local crash-recovery log for the Distributor's
// submit step. A ClusterDriver submission and the Postgres write that
// records its distributor ids are two separate operations; a Distributor
// process that dies between them has already launched work the cluster
// is tracking, but the Store has no record of it. journal closes that
// window: Record is called after a successful submission and before the
// Store write, Clear once the Store write lands, and Pending replays
// whatever is still open when a new Distributor process starts.
package journal

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"
)

var bucketSubmissions = []byte("submissions")

// Journal is a single bbolt file holding one bucket of pending batch
// submissions, keyed by batch id.
type Journal struct {
	db *bolt.DB
}

// Open creates (or reuses) the bbolt file at path and ensures its bucket
// exists.
func Open(path string) (*Journal, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSubmissions)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create journal bucket: %w", err)
	}
	return &Journal{db: db}, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

func batchKey(batchID int64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(batchID))
	return key
}

// Record durably notes that batchID has already been submitted to the
// cluster driver with the given array-step-to-distributor-id mapping,
// before the Store has been told about it.
func (j *Journal) Record(batchID int64, stepToDistributorID map[int]string) error {
	data, err := json.Marshal(stepToDistributorID)
	if err != nil {
		return err
	}
	return j.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSubmissions).Put(batchKey(batchID), data)
	})
}

// Clear removes batchID's entry once the Store write it was guarding has
// landed.
func (j *Journal) Clear(batchID int64) error {
	return j.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSubmissions).Delete(batchKey(batchID))
	})
}

// Pending returns every batch submission still awaiting a Store write,
// keyed by batch id.
func (j *Journal) Pending() (map[int64]map[int]string, error) {
	out := make(map[int64]map[int]string)
	err := j.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSubmissions).ForEach(func(k, v []byte) error {
			batchID := int64(binary.BigEndian.Uint64(k))
			var m map[int]string
			if err := json.Unmarshal(v, &m); err != nil {
				return fmt.Errorf("decode journal entry for batch %d: %w", batchID, err)
			}
			out[batchID] = m
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
