/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package positions persists how far into each followed file the daemon
// has read, so a restart resumes where the last run stopped instead of
// re-emitting the whole file.
package positions

import (
	"encoding/binary"
	"fmt"

	badger "github.com/dgraph-io/badger/v2"
	"github.com/pkg/errors"
)

// Mark is the durable cursor for one followed file. Dev and Inode pin
// the identity of the file the offset belongs to; when they no longer
// match the file at the path, the file was rotated and the offset is
// stale.
type Mark struct {
	Offset uint64
	Dev    uint64
	Inode  uint64
}

func key(path string) []byte {
	return []byte(fmt.Sprintf("pos.%s", path))
}

type Store struct {
	db *badger.DB
}

// Open opens the position store under dirPath. An empty dirPath opens an
// in-memory store, useful for tests and for runs without a data dir.
func Open(dirPath string) (*Store, error) {
	var badgerOpts badger.Options
	if dirPath == "" {
		badgerOpts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		badgerOpts = badger.DefaultOptions(dirPath).WithSyncWrites(false).WithTruncate(true)
	}
	badgerOpts = badgerOpts.WithLogger(nil)
	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, errors.WithMessage(err, "could not open backing db")
	}

	return &Store{
		db: db,
	}, nil
}

func (s *Store) Put(path string, m Mark) error {
	var buf [24]byte
	binary.BigEndian.PutUint64(buf[0:8], m.Offset)
	binary.BigEndian.PutUint64(buf[8:16], m.Dev)
	binary.BigEndian.PutUint64(buf[16:24], m.Inode)
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(path), buf[:])
	})
}

// Get returns the stored mark for path, or ok=false when none exists.
func (s *Store) Get(path string) (Mark, bool, error) {
	var valCopy []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(path))
		if err != nil {
			return err
		}

		valCopy, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return Mark{}, false, nil
	}
	if err != nil {
		return Mark{}, false, err
	}
	if len(valCopy) != 24 {
		return Mark{}, false, errors.Errorf("malformed mark for %q: %d bytes", path, len(valCopy))
	}

	return Mark{
		Offset: binary.BigEndian.Uint64(valCopy[0:8]),
		Dev:    binary.BigEndian.Uint64(valCopy[8:16]),
		Inode:  binary.BigEndian.Uint64(valCopy[16:24]),
	}, true, nil
}

// Forget drops the mark for a path whose file went away.
func (s *Store) Forget(path string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete(key(path))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		return err
	})
}

func (s *Store) Sync() error {
	return s.db.Sync()
}

func (s *Store) Close() {
	s.db.Close()
}
