package sources

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/bottany/registry-engine/internal/registry"
)

// reserved top-level fields of a raw source entry; everything else
// lands in the entry payload.
var reservedFields = map[string]struct{}{
	"id":          {},
	"category":    {},
	"source_url":  {},
	"source_kind": {},
	"refs":        {},
}

// NormalizeEntry converts a raw source entry into the registry entry
// shape. Entries missing an id, category, source URL, or carrying an
// unknown source kind fail normalization and are dropped by the engine.
func NormalizeEntry(raw json.RawMessage) (registry.Entry, error) {
	var entry registry.Entry

	if !gjson.ValidBytes(raw) {
		return entry, fmt.Errorf("raw entry is not valid JSON")
	}
	doc := gjson.ParseBytes(raw)
	if !doc.IsObject() {
		return entry, fmt.Errorf("raw entry is not a JSON object")
	}

	entry.ID = doc.Get("id").String()
	if entry.ID == "" {
		return entry, fmt.Errorf("raw entry has no id")
	}

	entry.Category = registry.Category(doc.Get("category").String())
	if entry.Category == "" {
		return registry.Entry{}, fmt.Errorf("entry %q has no category", entry.ID)
	}

	entry.SourceURL = doc.Get("source_url").String()
	if entry.SourceURL == "" {
		return registry.Entry{}, fmt.Errorf("entry %q has no source_url", entry.ID)
	}

	entry.SourceKind = registry.SourceKind(doc.Get("source_kind").String())
	if !entry.SourceKind.Valid() {
		return registry.Entry{}, fmt.Errorf("entry %q has unknown source kind %q", entry.ID, entry.SourceKind)
	}

	for _, ref := range doc.Get("refs").Array() {
		if s := ref.String(); s != "" {
			entry.Refs = append(entry.Refs, s)
		}
	}

	var payload map[string]any
	doc.ForEach(func(key, value gjson.Result) bool {
		name := key.String()
		if _, skip := reservedFields[name]; skip {
			return true
		}
		if payload == nil {
			payload = make(map[string]any)
		}
		payload[name] = value.Value()
		return true
	})
	entry.Payload = payload

	return entry, nil
}
