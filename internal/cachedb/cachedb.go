package cachedb

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

const outputsBucket = "outputs"

// DB persists the content hash of every written output so unchanged files
// can be skipped on the next build.
type DB struct {
	bolt *bolt.DB
}

func Open(filename string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return nil, err
	}
	boltd, err := bolt.Open(filename, 0644, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	err = boltd.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(outputsBucket))
		return err
	})
	if err != nil {
		boltd.Close()
		return nil, err
	}
	return &DB{boltd}, nil
}

// Unchanged reports whether distPath still exists on disk and was last
// written with the same content hash.
func (db *DB) Unchanged(distPath string, hash uint64) bool {
	same := false
	db.bolt.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(outputsBucket)).Get([]byte(distPath))
		same = len(v) == 8 && binary.BigEndian.Uint64(v) == hash
		return nil
	})
	if !same {
		return false
	}
	_, err := os.Stat(distPath)
	return err == nil
}

func (db *DB) Put(distPath string, hash uint64) error {
	var v [8]byte
	binary.BigEndian.PutUint64(v[:], hash)
	return db.bolt.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(outputsBucket)).Put([]byte(distPath), v[:])
	})
}

func (db *DB) Close() error {
	return db.bolt.Close()
}
