// Package kv provides a small key-value store interface with hierarchical
// keys, used for durable tables such as the session registry.
//
// Keys are string slices (e.g. ["session", "3f2a..."]) encoded with a
// separator byte (default ':'). Besides point reads and writes, every backend
// implements [Store.Replace], which swaps the full contents under a prefix in
// one transaction. Callers that rewrite a whole table use it so a reader never
// observes a half-written table.
//
// Backends: [Badger] (BadgerDB v4), [Bolt] (bbolt) and [Memory] for tests.
package kv

import (
	"bytes"
	"context"
	"errors"
	"iter"
	"strings"
)

// Sentinel errors.
var (
	// ErrNotFound is returned when a key does not exist in the store.
	ErrNotFound = errors.New("kv: not found")
)

// Key is a hierarchical path represented as a slice of string segments.
// Segments must not contain the configured separator.
type Key []string

// String returns the key joined with ':' for display.
func (k Key) String() string {
	return strings.Join(k, ":")
}

// Entry is a key-value pair returned by List and accepted by Replace.
type Entry struct {
	Key   Key
	Value []byte
}

// Store is the interface implemented by every backend.
// Implementations must be safe for concurrent use.
type Store interface {
	// Get retrieves the value for a key. Returns ErrNotFound if not present.
	Get(ctx context.Context, key Key) ([]byte, error)

	// Set stores a key-value pair, overwriting any existing value.
	Set(ctx context.Context, key Key, value []byte) error

	// Delete removes a key. No error if the key does not exist.
	Delete(ctx context.Context, key Key) error

	// List iterates over all entries strictly under prefix, in lexicographic
	// order of the encoded key.
	List(ctx context.Context, prefix Key) iter.Seq2[Entry, error]

	// Replace atomically deletes every entry under prefix and stores entries.
	// Each entry key must lie under prefix.
	Replace(ctx context.Context, prefix Key, entries []Entry) error

	// Close releases any resources held by the store.
	Close() error
}

// DefaultSeparator is the default separator byte used to encode key segments.
const DefaultSeparator byte = ':'

// Options configures store behavior.
type Options struct {
	// Separator joins key segments when encoding. Default is ':' if zero.
	Separator byte
}

func (o *Options) sep() byte {
	if o != nil && o.Separator != 0 {
		return o.Separator
	}
	return DefaultSeparator
}

func (o *Options) encode(k Key) []byte {
	return []byte(strings.Join(k, string(o.sep())))
}

func (o *Options) decode(b []byte) Key {
	return Key(strings.Split(string(b), string(o.sep())))
}

// scanPrefix returns the byte prefix matching keys strictly under prefix.
// The trailing separator keeps "a:b" from matching "a:bc". An empty prefix
// matches everything.
func (o *Options) scanPrefix(prefix Key) []byte {
	if len(prefix) == 0 {
		return nil
	}
	return append(o.encode(prefix), o.sep())
}

// checkEntries verifies every entry key lies under prefix.
func (o *Options) checkEntries(prefix Key, entries []Entry) error {
	p := o.scanPrefix(prefix)
	for _, e := range entries {
		if !bytes.HasPrefix(o.encode(e.Key), p) {
			return errors.New("kv: replace entry " + e.Key.String() + " outside prefix " + prefix.String())
		}
	}
	return nil
}
