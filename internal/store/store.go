// Package store implements the durable registry store: one JSON document
// per registry under a data directory, guarded by a per-registry lock in
// process and a file lock across processes. All registry mutation in the
// engine goes through Commit; the store hands out clones, never live
// documents.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/bottany/registry-engine/internal/registry"
)

const (
	// lockFileName is the cross-process lock taken on the data directory.
	lockFileName = ".registry-engine.lock"

	dirPerm  = 0o750
	filePerm = 0o600
)

// ErrUnknownRegistry is returned for registry names the store was not
// opened with.
type ErrUnknownRegistry struct {
	Name string
}

func (e *ErrUnknownRegistry) Error() string {
	return fmt.Sprintf("unknown registry %q", e.Name)
}

// Store owns the lifetime of all registry documents.
type Store struct {
	dataDir  string
	dirLock  *flock.Flock
	schema   *jsonschema.Schema
	clock    func() time.Time
	mu       sync.RWMutex
	handles  map[string]*handle
	ordering []string
}

// handle is the in-memory state of one registry.
type handle struct {
	mu  sync.RWMutex
	doc *registry.Document
}

// Option configures the store.
type Option func(*Store)

// WithClock overrides the commit timestamp source, for tests.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) {
		s.clock = clock
	}
}

// Open loads the named registries from dataDir, creating empty documents
// for registries that do not exist yet, and takes the data directory
// lock so two engine processes cannot share a data dir.
func Open(dataDir string, names []string, opts ...Option) (*Store, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("at least one registry name is required")
	}

	if err := os.MkdirAll(dataDir, dirPerm); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dirLock := flock.New(filepath.Join(dataDir, lockFileName))
	locked, err := dirLock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock data directory: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("data directory %s is locked by another process", dataDir)
	}

	sch, err := compileDocumentSchema()
	if err != nil {
		_ = dirLock.Unlock()
		return nil, err
	}

	s := &Store{
		dataDir: dataDir,
		dirLock: dirLock,
		schema:  sch,
		clock:   time.Now,
		handles: make(map[string]*handle, len(names)),
	}
	for _, opt := range opts {
		opt(s)
	}

	for _, name := range names {
		if _, dup := s.handles[name]; dup {
			_ = dirLock.Unlock()
			return nil, fmt.Errorf("duplicate registry name %q", name)
		}
		doc, err := s.loadOrInitialize(name)
		if err != nil {
			_ = dirLock.Unlock()
			return nil, fmt.Errorf("registry %q: %w", name, err)
		}
		s.handles[name] = &handle{doc: doc}
		s.ordering = append(s.ordering, name)
	}

	return s, nil
}

// Close releases the data directory lock.
func (s *Store) Close() error {
	return s.dirLock.Unlock()
}

// Names returns the registry names in configuration order.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.ordering...)
}

// Get returns a clone of the named registry document.
func (s *Store) Get(_ context.Context, name string) (*registry.Document, error) {
	h, err := s.handle(name)
	if err != nil {
		return nil, err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.doc.Clone(), nil
}

// Snapshot returns clones of every registry document, keyed by name.
// Governance validation runs against a snapshot so a concurrent merge
// commit can never produce a torn read.
func (s *Store) Snapshot(ctx context.Context) (map[string]*registry.Document, error) {
	out := make(map[string]*registry.Document, len(s.handles))
	for _, name := range s.Names() {
		doc, err := s.Get(ctx, name)
		if err != nil {
			return nil, err
		}
		out[name] = doc
	}
	return out, nil
}

// Commit replaces the named registry's entries with the staged entry
// set, bumps the version, records the content hash and sync time, and
// persists the document atomically. The caller computes the hash over
// the staged entries; Commit trusts it so the hash the engine compared
// against is exactly the hash that lands on disk.
func (s *Store) Commit(_ context.Context, name string, entries []registry.Entry, contentHash string) (*registry.Document, error) {
	h, err := s.handle(name)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	next := &registry.Document{
		Version:      h.doc.Version + 1,
		ContentHash:  contentHash,
		LastSyncedAt: s.clock().UTC().Truncate(time.Second),
		Entries:      entries,
	}
	if next.Entries == nil {
		next.Entries = []registry.Entry{}
	}

	if err := s.persist(name, next); err != nil {
		return nil, err
	}

	h.doc = next
	return next.Clone(), nil
}

func (s *Store) handle(name string) (*handle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.handles[name]
	if !ok {
		return nil, &ErrUnknownRegistry{Name: name}
	}
	return h, nil
}

func (s *Store) documentPath(name string) string {
	return filepath.Join(s.dataDir, name+".json")
}

// loadOrInitialize reads an existing registry document, or seeds an
// empty one when the file does not exist yet.
func (s *Store) loadOrInitialize(name string) (*registry.Document, error) {
	path := s.documentPath(name)

	data, err := os.ReadFile(path) //nolint:gosec // path is derived from validated config, not request input
	if os.IsNotExist(err) {
		hash, hashErr := registry.ContentHash([]registry.Entry{})
		if hashErr != nil {
			return nil, hashErr
		}
		doc := &registry.Document{
			Version:     0,
			ContentHash: hash,
			Entries:     []registry.Entry{},
		}
		if err := s.persist(name, doc); err != nil {
			return nil, err
		}
		return doc, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read registry document: %w", err)
	}

	if err := validateDocument(s.schema, data); err != nil {
		return nil, err
	}

	var doc registry.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse registry document: %w", err)
	}
	if doc.Entries == nil {
		doc.Entries = []registry.Entry{}
	}

	return &doc, nil
}

// persist writes the document through a temp file and atomic rename.
func (s *Store) persist(name string, doc *registry.Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal registry document: %w", err)
	}

	path := s.documentPath(name)
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, filePerm); err != nil {
		return fmt.Errorf("failed to write temporary registry file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename registry file: %w", err)
	}
	return nil
}
