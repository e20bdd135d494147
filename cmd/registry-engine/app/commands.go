// Package app provides the command-line entry points for the registry
// engine.
package app

import (
	"fmt"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bottany/registry-engine/internal/config"
	"github.com/bottany/registry-engine/internal/logging"
	"github.com/bottany/registry-engine/internal/policy"
	"github.com/bottany/registry-engine/internal/store"
)

var rootCmd = &cobra.Command{
	Use:               "registry-engine",
	DisableAutoGenTag: true,
	SilenceUsage:      true,
	SilenceErrors:     true,
	Short:             "Registry governance and synchronization engine",
	Long: `Registry governance and synchronization engine: validates curated JSON
registries against an allowlist policy, synchronizes them from official
sources, and ingests signed webhook notifications.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return cmd.Help()
	},
}

// NewRootCmd creates the root command with all subcommands attached.
func NewRootCmd() *cobra.Command {
	rootCmd.PersistentFlags().String("config", "", "Path to configuration file (YAML)")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")

	if err := viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config")); err != nil {
		panic(fmt.Sprintf("failed to bind config flag: %v", err))
	}
	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		panic(fmt.Sprintf("failed to bind debug flag: %v", err))
	}

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(syncCmd)

	return rootCmd
}

// bootstrap holds everything the subcommands share: logger, loaded
// configuration and environment, policy, and the opened store.
type bootstrap struct {
	log    logr.Logger
	flush  func()
	cfg    *config.Config
	env    *config.Env
	policy *policy.Policy
	store  *store.Store
}

// setup loads configuration, policy, and the store. Callers own the
// returned bootstrap and must call close.
func setup() (*bootstrap, error) {
	log, flush, err := logging.New(viper.GetBool("debug"))
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	configPath := viper.GetString("config")
	if configPath == "" {
		flush()
		return nil, fmt.Errorf("--config is required")
	}

	cfg, err := config.LoadConfig(config.WithConfigPath(configPath))
	if err != nil {
		flush()
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	env, err := config.LoadEnv()
	if err != nil {
		flush()
		return nil, err
	}
	env.Apply(cfg)

	pol, err := policy.Load(cfg.PolicyPath)
	if err != nil {
		flush()
		return nil, fmt.Errorf("failed to load policy: %w", err)
	}
	if env.HasBlockOnViolation {
		pol.Rules.BlockOnViolation = env.BlockOnViolation
	}

	st, err := store.Open(cfg.DataDir, cfg.RegistryNames())
	if err != nil {
		flush()
		return nil, fmt.Errorf("failed to open registry store: %w", err)
	}

	log.Info("Configuration loaded",
		"configPath", configPath,
		"dataDir", cfg.DataDir,
		"registries", len(cfg.Registries),
		"blockOnViolation", pol.Rules.BlockOnViolation)

	return &bootstrap{
		log:    log,
		flush:  flush,
		cfg:    cfg,
		env:    env,
		policy: pol,
		store:  st,
	}, nil
}

func (b *bootstrap) close() {
	if err := b.store.Close(); err != nil {
		b.log.Error(err, "Failed to release data directory lock")
	}
	b.flush()
}
