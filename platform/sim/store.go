package sim

import (
	"encoding/binary"
	"fmt"
	"path/filepath"
	"time"

	"github.com/boltdb/bolt"

	"github.com/ardnew/softdfu/pkg"
)

var (
	bucketFlash  = []byte("flash")
	bucketBackup = []byte("backup")

	keyMarker = []byte("marker")
)

// Store persists a chip's non-volatile state in a bolt database.
type Store struct {
	db *bolt.DB
}

// OpenStore opens or creates the database at path.
func OpenStore(path string) (*Store, error) {
	db, err := bolt.Open(filepath.Clean(path), 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketFlash); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketBackup)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// flashKey encodes a flash base address as a bucket key.
func flashKey(base uintptr) []byte {
	var key [8]byte
	binary.BigEndian.PutUint64(key[:], uint64(base))
	return key[:]
}

// Load restores flash and backup memory into c. State saved for a flash
// of a different base or size is ignored and c keeps its erased flash.
func (s *Store) Load(c *Chip) error {
	return s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketFlash).Get(flashKey(c.base)); v != nil {
			if len(v) != c.Size() {
				pkg.LogWarn(pkg.ComponentPlatform, "stored flash size mismatch",
					"stored", len(v),
					"want", c.Size())
			} else if err := c.Write(c.base, v); err != nil {
				return err
			}
		}
		if v := tx.Bucket(bucketBackup).Get(keyMarker); v != nil {
			c.StoreMarker(v)
		}
		return nil
	})
}

// Save writes flash and backup memory of c.
func (s *Store) Save(c *Chip) error {
	flash := c.Snapshot()
	backup := c.Backup()
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketFlash).Put(flashKey(c.base), flash); err != nil {
			return err
		}
		return tx.Bucket(bucketBackup).Put(keyMarker, backup)
	})
}
