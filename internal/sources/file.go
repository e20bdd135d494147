package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// selectorPlaceholder is replaced with the sub-selector in file path
// templates.
const selectorPlaceholder = "{selector}"

// fileFetcher reads registry entries from local JSON documents, used for
// curated drops and in tests.
type fileFetcher struct {
	pathTemplate string
}

// NewFileFetcher creates a fetcher reading from a path template. The
// template may contain "{selector}"; without it the same file serves
// every selector.
func NewFileFetcher(pathTemplate string) Fetcher {
	return &fileFetcher{pathTemplate: pathTemplate}
}

// Fetch reads the entries behind one selector from disk.
func (f *fileFetcher) Fetch(_ context.Context, selector string) ([]json.RawMessage, error) {
	path := strings.ReplaceAll(f.pathTemplate, selectorPlaceholder, sanitizeSelector(selector))

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read source file %s: %w", path, err)
	}

	entries, err := decodeEntryList(data)
	if err != nil {
		return nil, fmt.Errorf("invalid payload in %s: %w", path, err)
	}
	return entries, nil
}

// sanitizeSelector keeps selectors from escaping the template directory.
func sanitizeSelector(selector string) string {
	selector = strings.ReplaceAll(selector, "/", "_")
	selector = strings.ReplaceAll(selector, "\\", "_")
	selector = strings.ReplaceAll(selector, "..", "_")
	selector = strings.ReplaceAll(selector, ":", "-")
	return selector
}
