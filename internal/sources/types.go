// Package sources provides fetchers for official registry sources, the
// selector expansion used by batch directives, and normalization of raw
// source entries into the registry entry shape.
package sources

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bottany/registry-engine/internal/config"
)

// Fetcher retrieves raw entries from an official source for one
// expanded selector. Implementations must honor context cancellation;
// the sync engine wraps each Fetch in its fetch timeout.
type Fetcher interface {
	// Fetch returns the raw entries behind the given selector.
	Fetch(ctx context.Context, selector string) ([]json.RawMessage, error)
}

// NewFetcher creates the fetcher for a registry's source configuration.
func NewFetcher(src *config.SourceConfig) (Fetcher, error) {
	if src == nil {
		return nil, fmt.Errorf("source configuration is required")
	}

	switch src.GetType() {
	case config.SourceTypeAPI:
		return NewAPIFetcher(src.API.Endpoint, 0), nil
	case config.SourceTypeFile:
		return NewFileFetcher(src.File.Path), nil
	default:
		return nil, fmt.Errorf("source has no recognized type")
	}
}

// decodeEntryList extracts the raw entry list from a source payload.
// Sources deliver either a bare JSON array or a document with a
// top-level "entries" array.
func decodeEntryList(data []byte) ([]json.RawMessage, error) {
	var wrapped struct {
		Entries []json.RawMessage `json:"entries"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil && wrapped.Entries != nil {
		return wrapped.Entries, nil
	}

	var list []json.RawMessage
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("payload is neither an entry array nor an entries document: %w", err)
	}
	return list, nil
}
