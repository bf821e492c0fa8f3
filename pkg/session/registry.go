// Package session keeps one searchable vector index per uploaded document.
//
// A [Registry] owns the table of known sessions and the in-memory [Store] of
// each session that has been touched since start-up. A Store pairs an exact
// vector index with a ledger of {text, source} records aligned by position,
// and persists both as a single snapshot file:
//
//	<session-id>/snapshot.bin
//
// The session table lives in a [kv.Store] as one msgpack row per session
// under the "session" prefix and is rewritten in one transaction on every
// create and delete.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/haivivi/retrieva/go/pkg/embed"
	"github.com/haivivi/retrieva/go/pkg/kv"
	"github.com/haivivi/retrieva/go/pkg/storage"
	"github.com/vmihailenco/msgpack/v5"
)

var metaPrefix = kv.Key{"session"}

// Meta describes a session in the session table.
type Meta struct {
	ID        string    `json:"id" msgpack:"id"`
	Name      string    `json:"name" msgpack:"name"`
	CreatedAt time.Time `json:"created_at" msgpack:"created_at"`
	Filename  string    `json:"filename" msgpack:"filename"`
}

// Config configures a [Registry].
type Config struct {
	// Meta holds the session table. Required.
	Meta kv.Store

	// Files holds session snapshots. Required.
	Files storage.FileStore

	// Embedder is shared by every session. Required. The registry does not
	// close it.
	Embedder embed.Embedder

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Now defaults to time.Now.
	Now func() time.Time

	// NewID defaults to random UUIDs.
	NewID func() string
}

// Registry maps session ids to their metadata and lazily loaded stores.
//
// Registry is safe for concurrent use. The session table is guarded by one
// mutex; loading a store is serialized per session so a snapshot is read at
// most once.
type Registry struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	metas   map[string]Meta
	entries map[string]*entry
	closed  bool
}

// entry guards the lazy load of one session's store.
type entry struct {
	mu      sync.Mutex
	store   *Store
	deleted bool
}

// Open reads the session table and returns a ready registry. Stores are not
// loaded until first use.
func Open(ctx context.Context, cfg Config) (*Registry, error) {
	if cfg.Meta == nil || cfg.Files == nil || cfg.Embedder == nil {
		return nil, errors.New("session: Config.Meta, Config.Files and Config.Embedder are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = func() string { return uuid.New().String() }
	}

	r := &Registry{
		cfg:     cfg,
		logger:  cfg.Logger,
		metas:   make(map[string]Meta),
		entries: make(map[string]*entry),
	}
	for e, err := range cfg.Meta.List(ctx, metaPrefix) {
		if err != nil {
			return nil, fmt.Errorf("%w: read session table: %w", ErrPersistence, err)
		}
		var m Meta
		if err := msgpack.Unmarshal(e.Value, &m); err != nil || m.ID == "" {
			r.logger.Warn("session: skipping malformed table row", "key", e.Key.String(), "error", err)
			continue
		}
		r.metas[m.ID] = m
	}
	r.logger.Debug("session: registry opened", "sessions", len(r.metas))
	return r, nil
}

// Create registers a new session named label, persists the session table
// and returns the new metadata. The session starts with an empty store.
func (r *Registry) Create(ctx context.Context, label string) (Meta, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return Meta{}, ErrClosed
	}

	m := Meta{
		ID:        r.cfg.NewID(),
		Name:      label,
		CreatedAt: r.cfg.Now().UTC().Truncate(time.Second),
		Filename:  label,
	}
	if _, dup := r.metas[m.ID]; dup {
		return Meta{}, fmt.Errorf("session: id %s already exists", m.ID)
	}
	r.metas[m.ID] = m
	if err := r.persistLocked(ctx); err != nil {
		delete(r.metas, m.ID)
		return Meta{}, err
	}
	r.entries[m.ID] = &entry{store: newStore(m.ID, r.cfg.Files, r.cfg.Embedder, r.logger)}
	r.logger.Info("session: created", "session", m.ID, "name", label)
	return m, nil
}

// Lookup returns the metadata of a session.
func (r *Registry) Lookup(id string) (Meta, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return Meta{}, ErrClosed
	}
	m, ok := r.metas[id]
	if !ok {
		return Meta{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return m, nil
}

// Get returns the store of a session, loading its snapshot on first access.
func (r *Registry) Get(ctx context.Context, id string) (*Store, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrClosed
	}
	if _, ok := r.metas[id]; !ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	e, ok := r.entries[id]
	if !ok {
		e = &entry{}
		r.entries[id] = e
	}
	r.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if e.store == nil {
		s, err := loadStore(ctx, id, r.cfg.Files, r.cfg.Embedder, r.logger)
		if err != nil {
			return nil, err
		}
		e.store = s
	}
	return e.store, nil
}

// Outcome classifies a completed delete.
type Outcome int

const (
	// Deleted means the session and all its files are gone.
	Deleted Outcome = iota

	// DeletedWithLeftovers means the session is gone but removing its files
	// failed. The files are orphaned and can be removed by hand.
	DeletedWithLeftovers
)

func (o Outcome) String() string {
	switch o {
	case Deleted:
		return "deleted"
	case DeletedWithLeftovers:
		return "deleted_with_leftovers"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// DeleteResult reports what [Registry.Delete] did.
type DeleteResult struct {
	ID         string
	Outcome    Outcome
	CleanupErr error // set for DeletedWithLeftovers
}

// Partial reports whether files were left behind.
func (d DeleteResult) Partial() bool { return d.Outcome == DeletedWithLeftovers }

// Delete removes a session from the table, persists the table and then
// removes the session's files.
//
// The table is authoritative: once it is persisted the session is deleted,
// and a failure to remove files only degrades the result to
// [DeletedWithLeftovers]. If the table cannot be persisted the session is
// kept and the error wraps [ErrPersistence].
func (r *Registry) Delete(ctx context.Context, id string) (DeleteResult, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return DeleteResult{}, ErrClosed
	}
	m, ok := r.metas[id]
	if !ok {
		r.mu.Unlock()
		return DeleteResult{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	delete(r.metas, id)
	if err := r.persistLocked(ctx); err != nil {
		r.metas[id] = m
		r.mu.Unlock()
		return DeleteResult{}, err
	}
	e := r.entries[id]
	delete(r.entries, id)
	r.mu.Unlock()

	if e != nil {
		e.mu.Lock()
		e.deleted = true
		if e.store != nil {
			e.store.detach()
		}
		e.mu.Unlock()
	}

	res := DeleteResult{ID: id, Outcome: Deleted}
	if err := r.cfg.Files.RemoveAll(ctx, id); err != nil {
		res.Outcome = DeletedWithLeftovers
		res.CleanupErr = err
		r.logger.Warn("session: file cleanup failed", "session", id, "error", err)
	}
	r.logger.Info("session: deleted", "session", id, "outcome", res.Outcome.String())
	return res, nil
}

// List returns all sessions, newest first. Sessions created in the same
// second are ordered by id.
func (r *Registry) List() ([]Meta, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}
	list := make([]Meta, 0, len(r.metas))
	for _, m := range r.metas {
		list = append(list, m)
	}
	slices.SortFunc(list, func(a, b Meta) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return list, nil
}

// Close flushes every store whose last persist failed and shuts the
// registry. Later calls return [ErrClosed]; a second Close returns nil.
// The stores referenced by Config are not closed.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	entries := r.entries
	r.entries = nil
	r.mu.Unlock()

	var errs []error
	for id, e := range entries {
		e.mu.Lock()
		s := e.store
		e.mu.Unlock()
		if s == nil || !s.Dirty() {
			continue
		}
		if err := s.Flush(ctx); err != nil {
			errs = append(errs, err)
			continue
		}
		r.logger.Debug("session: flushed", "session", id)
	}
	return errors.Join(errs...)
}

// persistLocked rewrites the session table. r.mu must be held.
func (r *Registry) persistLocked(ctx context.Context) error {
	rows := make([]kv.Entry, 0, len(r.metas))
	for id, m := range r.metas {
		data, err := msgpack.Marshal(m)
		if err != nil {
			return fmt.Errorf("session: encode meta %s: %w", id, err)
		}
		rows = append(rows, kv.Entry{Key: append(slices.Clone(metaPrefix), id), Value: data})
	}
	if err := r.cfg.Meta.Replace(ctx, metaPrefix, rows); err != nil {
		return fmt.Errorf("%w: write session table: %w", ErrPersistence, err)
	}
	return nil
}
