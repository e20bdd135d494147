// Package policy loads and models the allowlist policy: the per-category
// source domains and kinds a registry entry is permitted to carry, plus
// the global governance rules. The policy is loaded once at startup and
// is immutable for the process lifetime.
package policy

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bottany/registry-engine/internal/registry"
)

// defaultMaxReportItems caps the violation report when the policy does
// not set an explicit limit.
const defaultMaxReportItems = 50

// CategoryPolicy describes what a single governed category permits.
type CategoryPolicy struct {
	// Domains is the set of permitted source domains. A source domain
	// matches when it equals a listed domain or is a subdomain of one.
	Domains []string `json:"domains"`

	// Kinds restricts the permitted source kinds. Empty means any
	// valid kind is acceptable.
	Kinds []registry.SourceKind `json:"kinds,omitempty"`

	// PublisherLike marks categories whose entries must carry a
	// publisher-like source kind (publisher, journal_platform, press).
	PublisherLike bool `json:"publisher_like,omitempty"`
}

// KindPermitted reports whether k is acceptable under this category.
func (c *CategoryPolicy) KindPermitted(k registry.SourceKind) bool {
	if len(c.Kinds) == 0 {
		return true
	}
	for _, allowed := range c.Kinds {
		if k == allowed {
			return true
		}
	}
	return false
}

// DomainAllowed reports whether host matches the category's allowlist.
func (c *CategoryPolicy) DomainAllowed(host string) bool {
	host = strings.ToLower(host)
	for _, d := range c.Domains {
		d = strings.ToLower(d)
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// Rules holds the global governance rule flags.
type Rules struct {
	// RequireReferenceField lists the categories whose entries must
	// carry a non-empty refs list.
	RequireReferenceField []registry.Category `json:"require_reference_field,omitempty"`

	// MaxReportItems caps how many violations a report enumerates.
	MaxReportItems int `json:"max_report_items,omitempty"`

	// BlockOnViolation makes any violation fatal at startup.
	BlockOnViolation bool `json:"block_on_violation"`
}

// Policy is the full allowlist policy document.
type Policy struct {
	Categories map[registry.Category]CategoryPolicy `json:"categories"`
	Rules      Rules                                `json:"rules"`
}

// Category returns the policy for a category, or nil when the category
// is not governed by the allowlist.
func (p *Policy) Category(c registry.Category) *CategoryPolicy {
	cp, ok := p.Categories[c]
	if !ok {
		return nil
	}
	return &cp
}

// ReferenceRequired reports whether entries in category c must carry refs.
func (p *Policy) ReferenceRequired(c registry.Category) bool {
	for _, rc := range p.Rules.RequireReferenceField {
		if rc == c {
			return true
		}
	}
	return false
}

// MaxReportItems returns the configured report cap, falling back to the
// default when unset.
func (p *Policy) MaxReportItems() int {
	if p.Rules.MaxReportItems <= 0 {
		return defaultMaxReportItems
	}
	return p.Rules.MaxReportItems
}

// Load reads and validates the allowlist policy from a JSON document.
func Load(path string) (*Policy, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}

	var p Policy
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse policy file: %w", err)
	}

	if err := p.validate(); err != nil {
		return nil, fmt.Errorf("invalid policy: %w", err)
	}

	return &p, nil
}

func (p *Policy) validate() error {
	if len(p.Categories) == 0 {
		return fmt.Errorf("at least one category must be configured")
	}

	for name, cp := range p.Categories {
		if name == "" {
			return fmt.Errorf("category name cannot be empty")
		}
		if len(cp.Domains) == 0 {
			return fmt.Errorf("category %q: at least one domain is required", name)
		}
		for _, d := range cp.Domains {
			if strings.TrimSpace(d) == "" {
				return fmt.Errorf("category %q: domain cannot be empty", name)
			}
		}
		for _, k := range cp.Kinds {
			if !k.Valid() {
				return fmt.Errorf("category %q: unknown source kind %q", name, k)
			}
		}
	}

	for _, c := range p.Rules.RequireReferenceField {
		if _, ok := p.Categories[c]; !ok {
			return fmt.Errorf("require_reference_field lists ungoverned category %q", c)
		}
	}

	if p.Rules.MaxReportItems < 0 {
		return fmt.Errorf("max_report_items cannot be negative")
	}

	return nil
}
