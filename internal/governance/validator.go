// Package governance enforces the allowlist policy over the registry
// store. Validation is a pure function of a store snapshot and the
// policy; enforcement decides whether startup may proceed.
package governance

import (
	"fmt"
	"sort"

	"github.com/bottany/registry-engine/internal/policy"
	"github.com/bottany/registry-engine/internal/registry"
)

// Rule identifiers recorded in violation reports.
const (
	RuleCategoryNotGoverned   = "category_not_governed"
	RuleInvalidSourceURL      = "invalid_source_url"
	RuleDomainNotAllowlisted  = "domain_not_allowlisted"
	RuleUnknownSourceKind     = "unknown_source_kind"
	RuleKindNotPermitted      = "kind_not_permitted"
	RulePublisherKindRequired = "publisher_kind_required"
	RuleMissingReference      = "missing_reference_field"
)

// Violation is one policy failure for one entry.
type Violation struct {
	Registry string `json:"registry"`
	EntryID  string `json:"entry_id"`
	Rule     string `json:"rule_violated"`
	Detail   string `json:"detail"`
}

// Report is the outcome of one validation run. Violations is capped at
// the policy's max_report_items; Total always carries the true count.
type Report struct {
	Violations []Violation `json:"violations"`
	Total      int         `json:"total"`
	Truncated  bool        `json:"truncated"`
}

// Empty reports whether the run found no violations at all.
func (r *Report) Empty() bool {
	return r.Total == 0
}

// Validate walks every entry of every registry in the snapshot against
// the policy. Registries are visited in name order and entries in stored
// order, so two runs over unchanged state produce identical reports.
func Validate(snapshot map[string]*registry.Document, p *policy.Policy) *Report {
	report := &Report{Violations: []Violation{}}
	limit := p.MaxReportItems()

	names := make([]string, 0, len(snapshot))
	for name := range snapshot {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		doc := snapshot[name]
		for i := range doc.Entries {
			for _, v := range CheckEntry(p, name, &doc.Entries[i]) {
				report.Total++
				if len(report.Violations) < limit {
					report.Violations = append(report.Violations, v)
				} else {
					report.Truncated = true
				}
			}
		}
	}

	return report
}

// CheckEntry applies the allowlist rules to a single entry. The sync
// engine runs the same checks as a pre-merge gate, so a sync can never
// introduce a violation that validation would later flag.
func CheckEntry(p *policy.Policy, registryName string, e *registry.Entry) []Violation {
	var out []Violation
	add := func(rule, detail string) {
		out = append(out, Violation{
			Registry: registryName,
			EntryID:  e.ID,
			Rule:     rule,
			Detail:   detail,
		})
	}

	cp := p.Category(e.Category)
	if cp == nil {
		add(RuleCategoryNotGoverned, fmt.Sprintf("category %q has no allowlist", e.Category))
		return out
	}

	domain, err := e.SourceDomain()
	if err != nil {
		add(RuleInvalidSourceURL, err.Error())
	} else if !cp.DomainAllowed(domain) {
		add(RuleDomainNotAllowlisted,
			fmt.Sprintf("domain %q is not allowlisted for category %q", domain, e.Category))
	}

	switch {
	case !e.SourceKind.Valid():
		add(RuleUnknownSourceKind, fmt.Sprintf("source kind %q is not recognized", e.SourceKind))
	case cp.PublisherLike && !e.SourceKind.PublisherLike():
		add(RulePublisherKindRequired,
			fmt.Sprintf("category %q requires a publisher-like source kind, got %q", e.Category, e.SourceKind))
	case !cp.KindPermitted(e.SourceKind):
		add(RuleKindNotPermitted,
			fmt.Sprintf("source kind %q is not permitted for category %q", e.SourceKind, e.Category))
	}

	if p.ReferenceRequired(e.Category) && len(e.Refs) == 0 {
		add(RuleMissingReference, fmt.Sprintf("category %q requires a non-empty refs list", e.Category))
	}

	return out
}
