package app

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"

	"github.com/bottany/registry-engine/internal/governance"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate all registries against the allowlist policy",
	Long: `Run a one-shot governance validation over the stored registries and
print the report as JSON. Exits non-zero when the policy sets
block_on_violation and violations exist.`,
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, _ []string) error {
	boot, err := setup()
	if err != nil {
		return err
	}
	defer boot.close()

	ctx := logr.NewContext(context.Background(), boot.log)

	snapshot, err := boot.store.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("failed to snapshot registries: %w", err)
	}
	report := governance.Validate(snapshot, boot.policy)

	output, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}
	cmd.Println(string(output))

	return governance.Enforce(boot.log, report, boot.policy)
}
