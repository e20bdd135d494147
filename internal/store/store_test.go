package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bottany/registry-engine/internal/registry"
)

func testEntries() []registry.Entry {
	return []registry.Entry{
		{
			ID:         "oxford",
			Category:   "academic_institutional",
			SourceURL:  "https://ox.ac.uk/page",
			SourceKind: registry.SourceKindInstitutional,
			Refs:       []string{"https://ox.ac.uk/about"},
		},
	}
}

func TestOpenInitializesEmptyDocuments(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s, err := Open(dir, []string{"academic_registry", "animation_awards"})
	require.NoError(t, err)
	defer s.Close()

	require.Equal(t, []string{"academic_registry", "animation_awards"}, s.Names())

	doc, err := s.Get(context.Background(), "academic_registry")
	require.NoError(t, err)
	require.EqualValues(t, 0, doc.Version)
	require.Empty(t, doc.Entries)
	require.NotEmpty(t, doc.ContentHash)

	// Empty documents are persisted immediately.
	_, err = os.Stat(filepath.Join(dir, "academic_registry.json"))
	require.NoError(t, err)
}

func TestCommitBumpsVersionAndPersists(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	dir := t.TempDir()
	s, err := Open(dir, []string{"academic_registry"}, WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	defer s.Close()

	entries := testEntries()
	hash, err := registry.ContentHash(entries)
	require.NoError(t, err)

	committed, err := s.Commit(context.Background(), "academic_registry", entries, hash)
	require.NoError(t, err)
	require.EqualValues(t, 1, committed.Version)
	require.Equal(t, hash, committed.ContentHash)
	require.Equal(t, now, committed.LastSyncedAt)

	// Persisted file round-trips.
	data, err := os.ReadFile(filepath.Join(dir, "academic_registry.json"))
	require.NoError(t, err)
	var doc registry.Document
	require.NoError(t, json.Unmarshal(data, &doc))
	require.EqualValues(t, 1, doc.Version)
	require.Len(t, doc.Entries, 1)
	require.Equal(t, "oxford", doc.Entries[0].ID)
}

func TestReopenLoadsPersistedState(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s, err := Open(dir, []string{"academic_registry"})
	require.NoError(t, err)

	entries := testEntries()
	hash, err := registry.ContentHash(entries)
	require.NoError(t, err)
	_, err = s.Commit(context.Background(), "academic_registry", entries, hash)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s2, err := Open(dir, []string{"academic_registry"})
	require.NoError(t, err)
	defer s2.Close()

	doc, err := s2.Get(context.Background(), "academic_registry")
	require.NoError(t, err)
	require.EqualValues(t, 1, doc.Version)
	require.Equal(t, hash, doc.ContentHash)
	require.Len(t, doc.Entries, 1)
}

func TestOpenRejectsCorruptDocument(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "academic_registry.json"),
		[]byte(`{"version": "not-a-number", "entries": []}`),
		0o600,
	))

	_, err := Open(dir, []string{"academic_registry"})
	require.Error(t, err)
}

func TestOpenRejectsInvalidEntryShape(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "academic_registry.json"),
		[]byte(`{
			"version": 1,
			"content_hash": "abc",
			"entries": [{"id": "x", "category": "publisher", "source_url": "https://a.org", "source_kind": "blog"}]
		}`),
		0o600,
	))

	_, err := Open(dir, []string{"academic_registry"})
	require.Error(t, err)
}

func TestGetReturnsClone(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s, err := Open(dir, []string{"academic_registry"})
	require.NoError(t, err)
	defer s.Close()

	entries := testEntries()
	hash, err := registry.ContentHash(entries)
	require.NoError(t, err)
	_, err = s.Commit(context.Background(), "academic_registry", entries, hash)
	require.NoError(t, err)

	doc, err := s.Get(context.Background(), "academic_registry")
	require.NoError(t, err)
	doc.Entries[0].ID = "mutated"

	again, err := s.Get(context.Background(), "academic_registry")
	require.NoError(t, err)
	require.Equal(t, "oxford", again.Entries[0].ID)
}

func TestUnknownRegistry(t *testing.T) {
	t.Parallel()

	s, err := Open(t.TempDir(), []string{"academic_registry"})
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Get(context.Background(), "nope")
	require.Error(t, err)
	var unknown *ErrUnknownRegistry
	require.ErrorAs(t, err, &unknown)
	require.Equal(t, "nope", unknown.Name)

	_, err = s.Commit(context.Background(), "nope", nil, "hash")
	require.Error(t, err)
}

func TestOpenRefusesSecondProcess(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s, err := Open(dir, []string{"academic_registry"})
	require.NoError(t, err)
	defer s.Close()

	_, err = Open(dir, []string{"academic_registry"})
	require.Error(t, err)
}

func TestSnapshot(t *testing.T) {
	t.Parallel()

	s, err := Open(t.TempDir(), []string{"a", "b"})
	require.NoError(t, err)
	defer s.Close()

	snap, err := s.Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, snap, 2)
	require.Contains(t, snap, "a")
	require.Contains(t, snap, "b")
}
