package store

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// documentSchema is the structural contract every persisted registry
// document must satisfy before the store accepts it.
const documentSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["version", "content_hash", "entries"],
  "properties": {
    "version": {"type": "integer", "minimum": 0},
    "content_hash": {"type": "string"},
    "last_synced_at": {"type": "string"},
    "entries": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "category", "source_url", "source_kind"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "category": {"type": "string", "minLength": 1},
          "source_url": {"type": "string", "minLength": 1},
          "source_kind": {
            "enum": ["institutional", "publisher", "journal_platform", "press", "official_org"]
          },
          "refs": {"type": "array", "items": {"type": "string"}},
          "payload": {"type": "object"}
        }
      }
    }
  }
}`

const documentSchemaURL = "registry-document.schema.json"

func compileDocumentSchema() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(documentSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to parse embedded document schema: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(documentSchemaURL, doc); err != nil {
		return nil, fmt.Errorf("failed to register document schema: %w", err)
	}

	sch, err := compiler.Compile(documentSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("failed to compile document schema: %w", err)
	}
	return sch, nil
}

// validateDocument checks raw registry JSON against the document schema.
func validateDocument(sch *jsonschema.Schema, data []byte) error {
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("document is not valid JSON: %w", err)
	}
	if err := sch.Validate(inst); err != nil {
		return fmt.Errorf("document failed schema validation: %w", err)
	}
	return nil
}
