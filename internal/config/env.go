package config

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for all environment variables the engine
// reads, e.g. REGISTRY_ENGINE_WEBHOOK_SECRET.
const EnvPrefix = "REGISTRY_ENGINE"

// Env holds the environment-only settings: the webhook secret never
// appears in the config document, and the rest are deploy-time
// overrides. Read once at startup.
type Env struct {
	// WebhookSecret is the shared HMAC secret for callback signatures.
	WebhookSecret string

	// CallbackBase overrides the public callback base URL.
	CallbackBase string

	// Pacing overrides the sleep between batch sub-fetches.
	Pacing    time.Duration
	HasPacing bool

	// BlockOnViolation overrides the policy's block_on_violation flag.
	BlockOnViolation    bool
	HasBlockOnViolation bool
}

// LoadEnv reads the engine's environment variables.
func LoadEnv() (*Env, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	env := &Env{
		WebhookSecret: v.GetString("webhook_secret"),
		CallbackBase:  v.GetString("callback_base"),
	}

	if raw := v.GetString("sync_pacing"); raw != "" {
		pacing, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s_SYNC_PACING: %w", EnvPrefix, err)
		}
		env.Pacing = pacing
		env.HasPacing = true
	}

	if raw := v.GetString("block_on_violation"); raw != "" {
		block, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s_BLOCK_ON_VIOLATION: %w", EnvPrefix, err)
		}
		env.BlockOnViolation = block
		env.HasBlockOnViolation = true
	}

	return env, nil
}

// Apply folds the environment overrides into the loaded config.
func (e *Env) Apply(cfg *Config) {
	if e.CallbackBase != "" {
		cfg.Webhook.CallbackBase = e.CallbackBase
	}
	if e.HasPacing {
		cfg.Sync.Pacing = e.Pacing
	}
}
