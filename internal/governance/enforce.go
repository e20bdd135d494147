package governance

import (
	"fmt"

	"github.com/go-logr/logr"

	"github.com/bottany/registry-engine/internal/policy"
)

// blockedSampleSize is how many violations a BlockedError carries for
// the startup summary.
const blockedSampleSize = 5

// BlockedError is the hard-fail startup gate outcome: the policy blocks
// on violations and the validation run found some.
type BlockedError struct {
	// Count is the total violation count, including truncated items.
	Count int `json:"count"`

	// Sample holds the first few violations for the summary.
	Sample []Violation `json:"sample"`
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("governance blocked startup: %d policy violation(s)", e.Count)
}

// Enforce decides whether startup may proceed given a validation report.
// With block_on_violation set, any violation fails with a BlockedError.
// Otherwise violations are logged and startup continues.
func Enforce(log logr.Logger, report *Report, p *policy.Policy) error {
	if report.Empty() {
		return nil
	}

	if p.Rules.BlockOnViolation {
		sample := report.Violations
		if len(sample) > blockedSampleSize {
			sample = sample[:blockedSampleSize]
		}
		return &BlockedError{Count: report.Total, Sample: sample}
	}

	log.Info("Governance violations found but block_on_violation is disabled",
		"total", report.Total, "reported", len(report.Violations), "truncated", report.Truncated)
	for _, v := range report.Violations {
		log.Info("Policy violation",
			"registry", v.Registry, "entryID", v.EntryID, "rule", v.Rule, "detail", v.Detail)
	}
	return nil
}
