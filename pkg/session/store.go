package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/haivivi/retrieva/go/pkg/embed"
	"github.com/haivivi/retrieva/go/pkg/storage"
	"github.com/haivivi/retrieva/go/pkg/vecstore"
)

// DefaultK is the number of hits returned when callers do not choose one.
const DefaultK = 3

// Hit is a search result resolved against the ledger.
type Hit struct {
	Text     string  `json:"chunk"`
	Source   string  `json:"source"`
	Distance float32 `json:"distance"`
}

// Store is the vector index and ledger of one session.
//
// Position i of the index and element i of the ledger describe the same
// chunk. Mutations hold the write lock across insert, append and persist, so
// the two never drift apart; searches share a read lock. Embedding runs
// before the lock is taken.
//
// A Store is obtained from [Registry.Get] and stays valid until the session
// is deleted, after which every method returns [ErrSessionNotFound].
type Store struct {
	id       string
	files    storage.FileStore
	embedder embed.Embedder
	logger   *slog.Logger

	mu       sync.RWMutex
	index    *vecstore.Flat
	ledger   []Record
	dirty    bool // last persist failed
	detached bool
}

func newStore(id string, files storage.FileStore, e embed.Embedder, logger *slog.Logger) *Store {
	return &Store{
		id:       id,
		files:    files,
		embedder: e,
		logger:   logger,
		index:    vecstore.NewFlat(e.Dimension()),
	}
}

// loadStore reads the session snapshot. A missing snapshot gives an empty
// store. So does a truncated one, which is logged: it is what an interrupted
// first write leaves behind.
func loadStore(ctx context.Context, id string, files storage.FileStore, e embed.Embedder, logger *slog.Logger) (*Store, error) {
	s := newStore(id, files, e, logger)

	rc, err := files.Read(ctx, snapshotPath(id))
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read snapshot %s: %w", ErrPersistence, id, err)
	}
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return nil, fmt.Errorf("%w: read snapshot %s: %w", ErrPersistence, id, err)
	}

	idx, ledger, err := decodeSnapshot(data)
	if errors.Is(err, io.ErrUnexpectedEOF) {
		logger.Warn("session: incomplete snapshot, starting empty",
			"session", id, "bytes", len(data), "error", err)
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", id, err)
	}
	if idx.Dim() != e.Dimension() {
		return nil, fmt.Errorf("%w: session %s: snapshot dimension %d, embedder %d",
			ErrCorruptedState, id, idx.Dim(), e.Dimension())
	}
	s.index = idx
	s.ledger = ledger
	logger.Debug("session: loaded", "session", id, "records", len(ledger))
	return s, nil
}

// ID returns the session identifier.
func (s *Store) ID() string { return s.id }

// Size returns the number of stored chunks.
func (s *Store) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ledger)
}

// Generation returns how many times the session has been cleared. Positions
// are only comparable within one generation.
func (s *Store) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.Generation()
}

// Add embeds chunks and appends them, all tagged with source, then persists
// the session. An empty chunks slice is a no-op.
//
// If only the persist fails, the chunks stay added in memory and the error
// wraps [ErrPersistence]; [Store.Flush] retries the write.
func (s *Store) Add(ctx context.Context, chunks []string, source string) error {
	if len(chunks) == 0 {
		return nil
	}
	vecs, err := s.embedder.Embed(ctx, chunks)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEmbedding, err)
	}
	if len(vecs) != len(chunks) {
		return fmt.Errorf("%w: %d vectors for %d chunks", ErrEmbedding, len(vecs), len(chunks))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(); err != nil {
		return err
	}

	start, err := s.index.Insert(vecs)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEmbedding, err)
	}
	for _, c := range chunks {
		s.ledger = append(s.ledger, Record{Text: c, Source: source})
	}
	s.logger.Debug("session: added", "session", s.id, "source", source,
		"start", start, "count", len(chunks))
	return s.persistLocked(ctx)
}

// Search returns up to k chunks nearest to query, closest first. k <= 0 or
// an empty session yields no hits and does not call the embedder.
func (s *Store) Search(ctx context.Context, query string, k int) ([]Hit, error) {
	if k <= 0 {
		return nil, nil
	}
	s.mu.RLock()
	empty, err := s.index.Size() == 0, s.checkLocked()
	s.mu.RUnlock()
	if err != nil || empty {
		return nil, err
	}

	vecs, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbedding, err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("%w: %d vectors for 1 query", ErrEmbedding, len(vecs))
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkLocked(); err != nil {
		return nil, err
	}
	nbrs, err := s.index.Search(vecs[0], k)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbedding, err)
	}
	hits := make([]Hit, 0, len(nbrs))
	for _, n := range nbrs {
		if n.Pos < 0 || n.Pos >= len(s.ledger) {
			return nil, fmt.Errorf("%w: session %s: position %d has no record (ledger %d)",
				ErrCorruptedState, s.id, n.Pos, len(s.ledger))
		}
		r := s.ledger[n.Pos]
		hits = append(hits, Hit{Text: r.Text, Source: r.Source, Distance: n.Distance})
	}
	return hits, nil
}

// Clear drops every chunk and persists the empty session.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.detached {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, s.id)
	}
	s.index.Reset()
	s.ledger = nil
	return s.persistLocked(ctx)
}

// Flush writes the session if its last persist failed.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty || s.detached {
		return nil
	}
	return s.persistLocked(ctx)
}

// Dirty reports whether the in-memory state is ahead of durable storage.
func (s *Store) Dirty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dirty
}

// detach marks the store deleted. It waits for in-flight mutations, so no
// snapshot is written after it returns.
func (s *Store) detach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detached = true
	s.dirty = false
}

func (s *Store) checkLocked() error {
	if s.detached {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, s.id)
	}
	if s.index.Size() != len(s.ledger) {
		return fmt.Errorf("%w: session %s: index has %d vectors, ledger %d records",
			ErrCorruptedState, s.id, s.index.Size(), len(s.ledger))
	}
	return nil
}

func (s *Store) persistLocked(ctx context.Context) error {
	if err := s.writeLocked(ctx); err != nil {
		s.dirty = true
		s.logger.Warn("session: persist failed", "session", s.id, "error", err)
		return fmt.Errorf("%w: session %s: %w", ErrPersistence, s.id, err)
	}
	s.dirty = false
	return nil
}

func (s *Store) writeLocked(ctx context.Context) error {
	data, err := encodeSnapshot(s.index, s.ledger)
	if err != nil {
		return err
	}
	w, err := s.files.Write(ctx, snapshotPath(s.id))
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}
