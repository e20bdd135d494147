// Package registry defines the core data model for curated registries:
// entries, registry documents, and the canonical content hash used for
// change detection.
package registry

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// SourceKind classifies the kind of external source an entry was curated from.
type SourceKind string

const (
	// SourceKindInstitutional marks entries sourced from academic or
	// governmental institutions.
	SourceKindInstitutional SourceKind = "institutional"

	// SourceKindPublisher marks entries sourced from a publisher site.
	SourceKindPublisher SourceKind = "publisher"

	// SourceKindJournalPlatform marks entries sourced from journal
	// hosting platforms.
	SourceKindJournalPlatform SourceKind = "journal_platform"

	// SourceKindPress marks entries sourced from press/newsroom pages.
	SourceKindPress SourceKind = "press"

	// SourceKindOfficialOrg marks entries sourced from an official
	// organization site (awards bodies, standards orgs).
	SourceKindOfficialOrg SourceKind = "official_org"
)

// validSourceKinds is the closed set of accepted source kinds.
var validSourceKinds = map[SourceKind]struct{}{
	SourceKindInstitutional:   {},
	SourceKindPublisher:       {},
	SourceKindJournalPlatform: {},
	SourceKindPress:           {},
	SourceKindOfficialOrg:     {},
}

// Valid reports whether k is a known source kind.
func (k SourceKind) Valid() bool {
	_, ok := validSourceKinds[k]
	return ok
}

// PublisherLike reports whether k is acceptable for publisher-like
// categories (publisher, journal platform, press).
func (k SourceKind) PublisherLike() bool {
	switch k {
	case SourceKindPublisher, SourceKindJournalPlatform, SourceKindPress:
		return true
	default:
		return false
	}
}

// Category is a governed domain tag, e.g. "academic_institutional" or
// "animation". The set of categories is open (it is defined by the
// allowlist policy), so it is validated on load rather than enumerated.
type Category string

// Entry is one curated fact or link within a registry.
type Entry struct {
	// ID is the stable identifier of the entry within its registry.
	ID string `json:"id"`

	// Category is the governed domain tag the entry belongs to.
	Category Category `json:"category"`

	// SourceURL is the URL of the official source the entry was curated from.
	SourceURL string `json:"source_url"`

	// SourceKind classifies the source.
	SourceKind SourceKind `json:"source_kind"`

	// Refs is the ordered list of reference URLs backing the entry.
	// Required for categories flagged require_reference_field.
	Refs []string `json:"refs,omitempty"`

	// Payload carries the registry-specific free-form fields.
	Payload map[string]any `json:"payload,omitempty"`
}

// SourceDomain returns the lowercased hostname of the entry's source URL.
func (e *Entry) SourceDomain() (string, error) {
	u, err := url.Parse(e.SourceURL)
	if err != nil {
		return "", fmt.Errorf("invalid source_url %q: %w", e.SourceURL, err)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", fmt.Errorf("source_url %q has no host", e.SourceURL)
	}
	return host, nil
}

// Document is the persisted form of one registry: an ordered entry list
// plus sync metadata.
type Document struct {
	// Version increases by one on every successful merge.
	Version int64 `json:"version"`

	// ContentHash is the canonical hash of Entries at the last commit.
	ContentHash string `json:"content_hash"`

	// LastSyncedAt is the time of the last successful merge, RFC 3339.
	LastSyncedAt time.Time `json:"last_synced_at"`

	// Entries is the ordered entry list.
	Entries []Entry `json:"entries"`
}

// Clone returns a deep copy of the document. The store hands out clones
// so callers can never mutate persisted state in place.
func (d *Document) Clone() *Document {
	out := &Document{
		Version:      d.Version,
		ContentHash:  d.ContentHash,
		LastSyncedAt: d.LastSyncedAt,
		Entries:      make([]Entry, len(d.Entries)),
	}
	for i := range d.Entries {
		out.Entries[i] = cloneEntry(&d.Entries[i])
	}
	return out
}

func cloneEntry(e *Entry) Entry {
	out := *e
	if e.Refs != nil {
		out.Refs = append([]string(nil), e.Refs...)
	}
	if e.Payload != nil {
		out.Payload = make(map[string]any, len(e.Payload))
		for k, v := range e.Payload {
			out.Payload[k] = v
		}
	}
	return out
}

// ContentHash computes the canonical SHA-256 digest of an entry list.
// encoding/json emits struct fields in declaration order and map keys
// sorted, so the serialization is deterministic for equal content.
func ContentHash(entries []Entry) (string, error) {
	data, err := json.Marshal(entries)
	if err != nil {
		return "", fmt.Errorf("failed to serialize entries for hashing: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
