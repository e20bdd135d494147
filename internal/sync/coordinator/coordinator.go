// Package coordinator schedules background syncs for registries that
// carry a sync policy. It polls on a jittered interval and hands due
// registries to the sync engine one at a time.
package coordinator

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/bottany/registry-engine/internal/config"
	"github.com/bottany/registry-engine/internal/sources"
	"github.com/bottany/registry-engine/internal/store"
	pkgsync "github.com/bottany/registry-engine/internal/sync"
)

const (
	// basePollingInterval is the base interval between due-checks.
	basePollingInterval = time.Minute

	// pollingJitter is the maximum random offset applied to the polling
	// interval so multiple instances do not hit sources in lockstep.
	pollingJitter = 10 * time.Second

	// defaultSyncInterval applies when a sync policy has no parseable
	// interval.
	defaultSyncInterval = time.Hour
)

// Coordinator runs periodic syncs for the configured registries.
type Coordinator struct {
	engine *pkgsync.Engine
	store  *store.Store
	cfg    *config.Config

	done chan struct{}

	// mu guards lastAttempt and cancelFunc; Start and Stop may be
	// called from different goroutines.
	mu          sync.Mutex
	cancelFunc  context.CancelFunc
	lastAttempt map[string]time.Time

	now func() time.Time
}

// Option configures the coordinator.
type Option func(*Coordinator)

// WithClock overrides the scheduling clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		c.now = now
	}
}

// New creates a coordinator over the given engine and store.
func New(engine *pkgsync.Engine, st *store.Store, cfg *config.Config, opts ...Option) *Coordinator {
	c := &Coordinator{
		engine:      engine,
		store:       st,
		cfg:         cfg,
		done:        make(chan struct{}),
		lastAttempt: make(map[string]time.Time),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// calculatePollingInterval returns the base polling interval with a
// random jitter applied.
func calculatePollingInterval() time.Duration {
	//nolint:gosec // G404: non-cryptographic randomness is fine for polling jitter
	jitterOffset := time.Duration(rand.Int64N(int64(2*pollingJitter))) - pollingJitter
	return basePollingInterval + jitterOffset
}

// Start runs the coordinator loop. It blocks until the context is
// cancelled.
func (c *Coordinator) Start(ctx context.Context) error {
	log := logr.FromContextOrDiscard(ctx)
	log.Info("Starting background sync coordinator", "registryCount", len(c.scheduled()))

	coordCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancelFunc = cancel
	c.mu.Unlock()
	defer func() {
		close(c.done)
		log.Info("Background sync coordinator shut down")
	}()

	pollingInterval := calculatePollingInterval()
	log.V(1).Info("Configured coordinator polling interval",
		"baseInterval", basePollingInterval,
		"actualInterval", pollingInterval)

	ticker := time.NewTicker(pollingInterval)
	defer ticker.Stop()

	c.runDueSyncs(coordCtx)

	for {
		select {
		case <-ticker.C:
			c.runDueSyncs(coordCtx)
			ticker.Reset(calculatePollingInterval())
		case <-coordCtx.Done():
			log.Info("Sync coordinator stopping")
			return nil
		}
	}
}

// Stop cancels the coordinator loop and waits for it to exit. It is a
// no-op when Start was never called.
func (c *Coordinator) Stop() error {
	c.mu.Lock()
	cancel := c.cancelFunc
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		<-c.done
	}
	return nil
}

// scheduled returns the registries with both a source and a sync policy.
func (c *Coordinator) scheduled() []config.RegistryConfig {
	var out []config.RegistryConfig
	for _, regCfg := range c.cfg.Registries {
		if regCfg.Source != nil && regCfg.SyncPolicy != nil {
			out = append(out, regCfg)
		}
	}
	return out
}

// runDueSyncs checks every scheduled registry and syncs the due ones.
func (c *Coordinator) runDueSyncs(ctx context.Context) {
	for _, regCfg := range c.scheduled() {
		if ctx.Err() != nil {
			return
		}
		if !c.due(ctx, &regCfg) {
			continue
		}
		c.performRegistrySync(ctx, &regCfg)
	}
}

// due reports whether the registry's sync interval has elapsed since
// the later of its last commit and its last attempt. A failed attempt
// counts, so a broken source is not retried on every poll tick.
func (c *Coordinator) due(ctx context.Context, regCfg *config.RegistryConfig) bool {
	interval := syncInterval(ctx, regCfg.SyncPolicy)

	c.mu.Lock()
	last := c.lastAttempt[regCfg.Name]
	c.mu.Unlock()

	if doc, err := c.store.Get(ctx, regCfg.Name); err == nil && doc.LastSyncedAt.After(last) {
		last = doc.LastSyncedAt
	}

	return c.now().Sub(last) >= interval
}

// performRegistrySync runs one sync for a registry and records the
// attempt time.
func (c *Coordinator) performRegistrySync(ctx context.Context, regCfg *config.RegistryConfig) {
	log := logr.FromContextOrDiscard(ctx).WithValues("registry", regCfg.Name)

	c.mu.Lock()
	c.lastAttempt[regCfg.Name] = c.now()
	c.mu.Unlock()

	fetcher, err := sources.NewFetcher(regCfg.Source)
	if err != nil {
		log.Error(err, "Cannot build fetcher for registry")
		return
	}

	log.Info("Starting scheduled sync")
	result, err := c.engine.Sync(ctx, pkgsync.Directive{Registry: regCfg.Name}, fetcher)
	if err != nil {
		log.Error(err, "Scheduled sync failed")
		return
	}

	if result.NoChange {
		log.Info("Scheduled sync found no changes")
		return
	}
	log.Info("Scheduled sync committed",
		"version", result.Version,
		"added", result.Added,
		"updated", result.Updated,
		"commits", result.Commits)
}

// syncInterval parses the registry's sync interval, falling back to the
// default when it is absent or unparseable.
func syncInterval(ctx context.Context, policy *config.SyncPolicyConfig) time.Duration {
	if policy != nil && policy.Interval != "" {
		if interval, err := time.ParseDuration(policy.Interval); err == nil {
			return interval
		}
		logr.FromContextOrDiscard(ctx).Info("Invalid sync interval, using default",
			"interval", policy.Interval, "default", defaultSyncInterval)
	}
	return defaultSyncInterval
}
