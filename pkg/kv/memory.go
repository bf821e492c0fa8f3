package kv

import (
	"bytes"
	"context"
	"iter"
	"maps"
	"slices"
	"sync"
)

// Memory is an in-memory Store. It is safe for concurrent use and intended
// primarily for testing.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
	opts *Options
}

var _ Store = (*Memory)(nil)

// NewMemory creates a new in-memory Store. Pass nil for default options.
func NewMemory(opts *Options) *Memory {
	return &Memory{
		data: make(map[string][]byte),
		opts: opts,
	}
}

func (m *Memory) Get(_ context.Context, key Key) ([]byte, error) {
	m.mu.RLock()
	v, ok := m.data[string(m.opts.encode(key))]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return bytes.Clone(v), nil
}

func (m *Memory) Set(_ context.Context, key Key, value []byte) error {
	m.mu.Lock()
	m.data[string(m.opts.encode(key))] = bytes.Clone(value)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(_ context.Context, key Key) error {
	m.mu.Lock()
	delete(m.data, string(m.opts.encode(key)))
	m.mu.Unlock()
	return nil
}

func (m *Memory) List(_ context.Context, prefix Key) iter.Seq2[Entry, error] {
	p := m.opts.scanPrefix(prefix)

	m.mu.RLock()
	snapshot := make(map[string][]byte)
	for k, v := range m.data {
		if bytes.HasPrefix([]byte(k), p) {
			snapshot[k] = bytes.Clone(v)
		}
	}
	m.mu.RUnlock()

	keys := slices.Sorted(maps.Keys(snapshot))
	return func(yield func(Entry, error) bool) {
		for _, k := range keys {
			if !yield(Entry{Key: m.opts.decode([]byte(k)), Value: snapshot[k]}, nil) {
				return
			}
		}
	}
}

func (m *Memory) Replace(_ context.Context, prefix Key, entries []Entry) error {
	if err := m.opts.checkEntries(prefix, entries); err != nil {
		return err
	}
	p := m.opts.scanPrefix(prefix)

	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.data {
		if bytes.HasPrefix([]byte(k), p) {
			delete(m.data, k)
		}
	}
	for _, e := range entries {
		m.data[string(m.opts.encode(e.Key))] = bytes.Clone(e.Value)
	}
	return nil
}

func (m *Memory) Close() error {
	return nil
}
