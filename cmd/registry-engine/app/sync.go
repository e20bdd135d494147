package app

import (
	"encoding/json"
	"fmt"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"

	"github.com/bottany/registry-engine/internal/sources"
	pkgsync "github.com/bottany/registry-engine/internal/sync"
)

var syncCmd = &cobra.Command{
	Use:   "sync <registry>",
	Short: "Run a one-shot sync for a registry",
	Long: `Fetch the registry's source, merge new entries into the store, and
print the sync result as JSON. The registry must be configured with a
source; the selector defaults to the configured one.`,
	Args: cobra.ExactArgs(1),
	RunE: runSync,
}

func init() {
	syncCmd.Flags().String("selector", "", "Override the configured selector (supports ranges and comma lists)")
	syncCmd.Flags().Bool("force", false, "Commit even when the content hash is unchanged")
}

func runSync(cmd *cobra.Command, args []string) error {
	boot, err := setup()
	if err != nil {
		return err
	}
	defer boot.close()

	registryName := args[0]
	selector, err := cmd.Flags().GetString("selector")
	if err != nil {
		return err
	}
	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}

	regCfg := boot.cfg.Registry(registryName)
	if regCfg == nil {
		return fmt.Errorf("unknown registry %q", registryName)
	}
	if regCfg.Source == nil {
		return fmt.Errorf("registry %q has no source and cannot be synced", registryName)
	}

	fetcher, err := sources.NewFetcher(regCfg.Source)
	if err != nil {
		return fmt.Errorf("failed to build fetcher: %w", err)
	}

	engine := pkgsync.NewEngine(boot.store, boot.policy, boot.cfg)
	ctx := logr.NewContext(cmd.Context(), boot.log)

	result, err := engine.Sync(ctx, pkgsync.Directive{
		Registry: registryName,
		Selector: selector,
		Force:    force,
	}, fetcher)
	if err != nil {
		return err
	}

	output, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to render sync result: %w", err)
	}
	cmd.Println(string(output))
	return nil
}
