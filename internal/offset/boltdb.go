package offset

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.etcd.io/bbolt"

	"github.com/dirtail/dirtail/internal/registry"
)

const (
	offsetsBucket  = "offsets"
	sessionsBucket = "sessions"

	// dev(8) + ino(8) + offset(8), big endian.
	recordLen = 24
)

// BoltStore implements Store using BoltDB.
type BoltStore struct {
	db *bbolt.DB
}

// NewBoltStore opens (or creates) the state file at dbPath and records
// runID as the current session.
func NewBoltStore(dbPath, runID string) (*BoltStore, error) {
	// A locked file means another process is already following with
	// the same state file; better to fail fast than to fight over
	// offsets.
	db, err := bbolt.Open(dbPath, 0600, &bbolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open state file (may be locked by another process): %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(offsetsBucket)); err != nil {
			return err
		}
		b, err := tx.CreateBucketIfNotExists([]byte(sessionsBucket))
		if err != nil {
			return err
		}
		if err := b.Put([]byte("run_id"), []byte(runID)); err != nil {
			return err
		}
		return b.Put([]byte("started_at"), []byte(time.Now().UTC().Format(time.RFC3339Nano)))
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize state file: %w", err)
	}

	log.Info().
		Str("state_file", dbPath).
		Str("run_id", runID).
		Msg("Offset store opened")

	return &BoltStore{db: db}, nil
}

// Get retrieves the stored offset for path when its recorded identity
// still matches id.
func (s *BoltStore) Get(ctx context.Context, path string, id registry.Identity) (int64, bool, error) {
	var (
		off   int64
		found bool
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(offsetsBucket))
		if b == nil {
			return fmt.Errorf("bucket not found")
		}
		val := b.Get([]byte(path))
		if val == nil {
			return nil
		}
		if len(val) != recordLen {
			return fmt.Errorf("invalid offset record for %s", path)
		}
		stored := registry.Identity{
			Dev: binary.BigEndian.Uint64(val[0:8]),
			Ino: binary.BigEndian.Uint64(val[8:16]),
		}
		if stored != id {
			// The path was rotated since the offset was saved.
			return nil
		}
		off = int64(binary.BigEndian.Uint64(val[16:24]))
		found = true
		return nil
	})
	if err != nil {
		return 0, false, fmt.Errorf("failed to get offset: %w", err)
	}
	return off, found, nil
}

// Set stores the offset for path together with its identity.
func (s *BoltStore) Set(ctx context.Context, path string, id registry.Identity, offset int64) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(offsetsBucket))
		if b == nil {
			return fmt.Errorf("bucket not found")
		}
		val := make([]byte, recordLen)
		binary.BigEndian.PutUint64(val[0:8], id.Dev)
		binary.BigEndian.PutUint64(val[8:16], id.Ino)
		binary.BigEndian.PutUint64(val[16:24], uint64(offset))
		return b.Put([]byte(path), val)
	})
	if err != nil {
		return fmt.Errorf("failed to set offset: %w", err)
	}
	return nil
}

// Delete removes the stored offset for path.
func (s *BoltStore) Delete(ctx context.Context, path string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(offsetsBucket))
		if b == nil {
			return fmt.Errorf("bucket not found")
		}
		return b.Delete([]byte(path))
	})
	if err != nil {
		return fmt.Errorf("failed to delete offset: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}
