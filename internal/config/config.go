// Package config provides configuration loading and management for the
// registry engine.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// SourceTypeAPI is the type for registry data fetched from HTTP endpoints.
	SourceTypeAPI = "api"

	// SourceTypeFile is the type for registry data read from local files.
	SourceTypeFile = "file"
)

// Defaults applied when the document omits optional settings.
const (
	DefaultDataDir      = "./data"
	DefaultWebhookPath  = "/webhook/eventsub"
	DefaultWebhookAddr  = ":8090"
	DefaultFetchTimeout = 15 * time.Second
)

// Option defines the interface for configuration options.
type Option func(*loaderConfig) error

type loaderConfig struct {
	path string
}

// WithConfigPath loads configuration from a YAML file.
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// Resolve symlinks to prevent symlink attacks.
		// Note that this calls filepath.Clean internally.
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		// Validate the path to prevent path traversal attacks
		if !filepath.IsAbs(realPath) {
			if !filepath.IsLocal(realPath) {
				return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
			}
		}

		cfg.path = realPath
		return nil
	}
}

// Config represents the root configuration structure.
type Config struct {
	// DataDir is the directory holding the registry documents.
	DataDir string `yaml:"dataDir,omitempty"`

	// PolicyPath points at the allowlist policy JSON document.
	PolicyPath string `yaml:"policyPath"`

	// Registries lists the governed registries and their sources.
	Registries []RegistryConfig `yaml:"registries"`

	// Sync holds engine-wide sync settings.
	Sync SyncConfig `yaml:"sync,omitempty"`

	// Webhook holds the webhook ingest settings. The shared secret is
	// never part of this document; it comes from the environment.
	Webhook WebhookConfig `yaml:"webhook,omitempty"`
}

// RegistryConfig defines a single registry and its data source.
type RegistryConfig struct {
	// Name is the identifier for this registry.
	Name string `yaml:"name"`

	// Updatable allows a sync to update existing entries in place when
	// the source re-delivers a known id. Default is append-only.
	Updatable bool `yaml:"updatable,omitempty"`

	// Source describes where the registry syncs from. Registries
	// without a source are curated-only and never synced.
	Source *SourceConfig `yaml:"source,omitempty"`

	// SyncPolicy enables periodic background sync when set.
	SyncPolicy *SyncPolicyConfig `yaml:"syncPolicy,omitempty"`
}

// SourceConfig defines the external source for one registry.
type SourceConfig struct {
	// Type-specific configurations (exactly one must be set).
	API  *APIConfig  `yaml:"api,omitempty"`
	File *FileConfig `yaml:"file,omitempty"`

	// Selector identifies which page/slug/year range to pull, e.g.
	// "annual-awards:2019-2023" or "institutions,museums".
	Selector string `yaml:"selector"`
}

// APIConfig defines an HTTP source endpoint.
type APIConfig struct {
	// Endpoint is the base URL; the handler appends the selector.
	Endpoint string `yaml:"endpoint"`
}

// FileConfig defines a local file source.
type FileConfig struct {
	// Path is a path template; "{selector}" is replaced per sub-fetch.
	Path string `yaml:"path"`
}

// SyncPolicyConfig defines periodic synchronization settings.
type SyncPolicyConfig struct {
	Interval string `yaml:"interval"`
}

// SyncConfig holds engine-wide sync settings.
type SyncConfig struct {
	// FetchTimeout bounds a single sub-fetch.
	FetchTimeout time.Duration `yaml:"fetchTimeout,omitempty"`

	// Pacing is the sleep between sub-fetches of a batch directive.
	Pacing time.Duration `yaml:"pacing,omitempty"`
}

// WebhookConfig holds the webhook ingest settings.
type WebhookConfig struct {
	// Address is the listen address for the webhook server.
	Address string `yaml:"address,omitempty"`

	// Path is the callback path notifications are POSTed to.
	Path string `yaml:"path,omitempty"`

	// CallbackBase is the public base URL registered with the platform.
	CallbackBase string `yaml:"callbackBase,omitempty"`
}

// LoadConfig loads and parses configuration from a YAML file.
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

	if loaderCfg.path == "" {
		return nil, fmt.Errorf("path is required")
	}

	data, err := os.ReadFile(loaderCfg.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	config.applyDefaults()

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir
	}
	if c.Webhook.Address == "" {
		c.Webhook.Address = DefaultWebhookAddr
	}
	if c.Webhook.Path == "" {
		c.Webhook.Path = DefaultWebhookPath
	}
	if c.Sync.FetchTimeout == 0 {
		c.Sync.FetchTimeout = DefaultFetchTimeout
	}
}

// RegistryNames returns the configured registry names in order.
func (c *Config) RegistryNames() []string {
	names := make([]string, 0, len(c.Registries))
	for _, reg := range c.Registries {
		names = append(names, reg.Name)
	}
	return names
}

// Registry returns the configuration for the named registry, or nil.
func (c *Config) Registry(name string) *RegistryConfig {
	for i := range c.Registries {
		if c.Registries[i].Name == name {
			return &c.Registries[i]
		}
	}
	return nil
}

func (c *Config) validate() error {
	if c.PolicyPath == "" {
		return fmt.Errorf("policyPath is required")
	}

	if len(c.Registries) == 0 {
		return fmt.Errorf("at least one registry must be configured")
	}

	registryNames := make(map[string]bool)
	for i, reg := range c.Registries {
		if reg.Name == "" {
			return fmt.Errorf("registry[%d]: name is required", i)
		}
		if registryNames[reg.Name] {
			return fmt.Errorf("registry[%d]: duplicate registry name '%s'", i, reg.Name)
		}
		registryNames[reg.Name] = true

		if err := validateRegistryConfig(&reg, i); err != nil {
			return err
		}
	}

	if c.Sync.Pacing < 0 {
		return fmt.Errorf("sync.pacing cannot be negative")
	}

	return nil
}

func validateRegistryConfig(reg *RegistryConfig, index int) error {
	prefix := fmt.Sprintf("registry[%d] (%s)", index, reg.Name)

	if reg.SyncPolicy != nil {
		if reg.Source == nil {
			return fmt.Errorf("%s: syncPolicy requires a source", prefix)
		}
		if reg.SyncPolicy.Interval == "" {
			return fmt.Errorf("%s: syncPolicy.interval is required", prefix)
		}
		if _, err := time.ParseDuration(reg.SyncPolicy.Interval); err != nil {
			return fmt.Errorf("%s: syncPolicy.interval must be a valid duration (e.g. '30m', '1h'): %w", prefix, err)
		}
	}

	if reg.Source == nil {
		return nil
	}
	return validateSourceConfig(reg.Source, prefix)
}

func validateSourceConfig(src *SourceConfig, prefix string) error {
	configCount := 0
	if src.API != nil {
		configCount++
	}
	if src.File != nil {
		configCount++
	}
	if configCount == 0 {
		return fmt.Errorf("%s: one of api or file configuration must be specified", prefix)
	}
	if configCount > 1 {
		return fmt.Errorf("%s: only one of api or file configuration may be specified", prefix)
	}

	if src.API != nil && src.API.Endpoint == "" {
		return fmt.Errorf("%s: api.endpoint is required", prefix)
	}
	if src.File != nil && src.File.Path == "" {
		return fmt.Errorf("%s: file.path is required", prefix)
	}
	if src.Selector == "" {
		return fmt.Errorf("%s: source.selector is required", prefix)
	}

	return nil
}

// GetType returns the inferred type of the source config based on which
// field is present.
func (s *SourceConfig) GetType() string {
	if s.API != nil {
		return SourceTypeAPI
	}
	if s.File != nil {
		return SourceTypeFile
	}
	return ""
}
