package kv

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"go.etcd.io/bbolt"
)

var boltBucket = []byte("kv")

// Bolt is a Store implementation backed by a single bbolt file. All keys
// live in one bucket; bbolt keeps them sorted, so prefix scans are cursor
// seeks.
type Bolt struct {
	db   *bbolt.DB
	opts *Options
}

var _ Store = (*Bolt)(nil)

// BoltOptions configures the bbolt store.
type BoltOptions struct {
	// Options is the common kv options (separator, etc.).
	Options *Options

	// Path is the database file. Required.
	Path string

	// Timeout bounds how long Open waits for the file lock.
	// Default is 5 seconds.
	Timeout time.Duration
}

// NewBolt opens (creating if needed) a bbolt-backed Store.
func NewBolt(bopts BoltOptions) (*Bolt, error) {
	if bopts.Path == "" {
		return nil, errors.New("kv: BoltOptions.Path is required")
	}
	timeout := bopts.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	db, err := bbolt.Open(bopts.Path, 0o600, &bbolt.Options{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("kv: open bolt: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(boltBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("kv: create bucket: %w", err)
	}
	return &Bolt{db: db, opts: bopts.Options}, nil
}

func (b *Bolt) Get(_ context.Context, key Key) ([]byte, error) {
	var val []byte
	err := b.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(boltBucket).Get(b.opts.encode(key))
		if v == nil {
			return ErrNotFound
		}
		val = bytes.Clone(v)
		return nil
	})
	return val, err
}

func (b *Bolt) Set(_ context.Context, key Key, value []byte) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(boltBucket).Put(b.opts.encode(key), value)
	})
}

func (b *Bolt) Delete(_ context.Context, key Key) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(boltBucket).Delete(b.opts.encode(key))
	})
}

func (b *Bolt) List(_ context.Context, prefix Key) iter.Seq2[Entry, error] {
	p := b.opts.scanPrefix(prefix)

	return func(yield func(Entry, error) bool) {
		err := b.db.View(func(tx *bbolt.Tx) error {
			c := tx.Bucket(boltBucket).Cursor()
			for k, v := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, v = c.Next() {
				entry := Entry{Key: b.opts.decode(bytes.Clone(k)), Value: bytes.Clone(v)}
				if !yield(entry, nil) {
					return nil
				}
			}
			return nil
		})
		if err != nil {
			yield(Entry{}, err)
		}
	}
}

// Replace runs the delete-and-store in a single bbolt write transaction.
func (b *Bolt) Replace(_ context.Context, prefix Key, entries []Entry) error {
	if err := b.opts.checkEntries(prefix, entries); err != nil {
		return err
	}
	p := b.opts.scanPrefix(prefix)

	return b.db.Update(func(tx *bbolt.Tx) error {
		bk := tx.Bucket(boltBucket)
		var stale [][]byte
		c := bk.Cursor()
		for k, _ := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, _ = c.Next() {
			stale = append(stale, bytes.Clone(k))
		}
		for _, k := range stale {
			if err := bk.Delete(k); err != nil {
				return err
			}
		}
		for _, e := range entries {
			if err := bk.Put(b.opts.encode(e.Key), e.Value); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *Bolt) Close() error {
	return b.db.Close()
}
