// Package sync implements the registry sync engine: it fetches entries
// from official sources, normalizes and policy-checks them, and merges
// them into the registry store without duplicating work or producing
// partial writes.
package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/bottany/registry-engine/internal/config"
	"github.com/bottany/registry-engine/internal/governance"
	"github.com/bottany/registry-engine/internal/policy"
	"github.com/bottany/registry-engine/internal/registry"
	"github.com/bottany/registry-engine/internal/sources"
	"github.com/bottany/registry-engine/internal/store"
	"github.com/bottany/registry-engine/internal/telemetry"
)

// Directive describes one sync invocation.
type Directive struct {
	// Registry is the target registry name.
	Registry string

	// Selector identifies which official page/slug/year range to pull.
	// Empty uses the registry's configured selector.
	Selector string

	// Force commits even when the content hash is unchanged.
	Force bool
}

// SubFetchFailure records one failed sub-fetch of a batch directive.
type SubFetchFailure struct {
	Selector string
	Err      error
}

// Result aggregates the outcome of one sync invocation across all of
// its sub-fetches. Entry-level failures are counts inside a successful
// result, not call failures.
type Result struct {
	Registry string

	// NoChange is true when no sub-item produced a commit.
	NoChange bool

	// Version and ContentHash reflect the registry after the call.
	Version     int64
	ContentHash string

	// Commits counts how many sub-items produced a store commit.
	Commits int

	Added               int
	Updated             int
	IgnoredExisting     int
	NormalizationFailed int
	RejectedByPolicy    int

	// Rejections enumerates the policy pre-check failures.
	Rejections []governance.Violation

	// Failures enumerates failed sub-fetches. The batch continues past
	// them.
	Failures []SubFetchFailure
}

// Engine coordinates sync operations against the registry store. At
// most one sync runs per registry at a time; a second request is
// rejected with a ConflictError.
type Engine struct {
	store   *store.Store
	policy  *policy.Policy
	cfg     *config.Config
	metrics *telemetry.SyncMetrics

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// Option configures the engine.
type Option func(*Engine)

// WithMetrics attaches sync metrics to the engine.
func WithMetrics(m *telemetry.SyncMetrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// NewEngine creates a sync engine over the given store and policy.
func NewEngine(st *store.Store, p *policy.Policy, cfg *config.Config, opts ...Option) *Engine {
	e := &Engine{
		store:    st,
		policy:   p,
		cfg:      cfg,
		inFlight: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Sync executes one directive with the given fetcher. Sub-fetches run
// sequentially with the configured pacing; one sub-fetch failing does
// not abort the rest. A committed sub-item stays committed when the
// context is cancelled between sub-items.
func (e *Engine) Sync(ctx context.Context, directive Directive, fetcher sources.Fetcher) (*Result, error) {
	log := logr.FromContextOrDiscard(ctx).WithValues(
		"registry", directive.Registry,
		"syncID", uuid.NewString())

	regCfg := e.cfg.Registry(directive.Registry)
	if regCfg == nil {
		return nil, fmt.Errorf("unknown registry %q", directive.Registry)
	}

	selector := directive.Selector
	if selector == "" && regCfg.Source != nil {
		selector = regCfg.Source.Selector
	}
	if selector == "" {
		return nil, fmt.Errorf("registry %q has no selector to sync", directive.Registry)
	}

	if !e.acquire(directive.Registry) {
		e.countSync(directive.Registry, "conflict")
		return nil, &ConflictError{Registry: directive.Registry}
	}
	defer e.release(directive.Registry)

	selectors, err := sources.ExpandSelector(selector)
	if err != nil {
		return nil, fmt.Errorf("invalid selector: %w", err)
	}

	current, err := e.store.Get(ctx, directive.Registry)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Registry:    directive.Registry,
		Version:     current.Version,
		ContentHash: current.ContentHash,
	}

	for i, sel := range selectors {
		if i > 0 {
			if err := e.pace(ctx); err != nil {
				log.Info("Sync cancelled between sub-items",
					"completed", i, "remaining", len(selectors)-i)
				result.Failures = append(result.Failures, SubFetchFailure{Selector: sel, Err: err})
				break
			}
		}

		committed, err := e.syncOne(ctx, regCfg, directive, sel, fetcher, current, result)
		if err != nil {
			log.Error(err, "Sub-fetch failed", "selector", sel)
			result.Failures = append(result.Failures, SubFetchFailure{Selector: sel, Err: err})
			continue
		}
		if committed != nil {
			current = committed
			result.Commits++
			result.Version = committed.Version
			result.ContentHash = committed.ContentHash
		}
	}

	// A directive where nothing at all could be fetched is a call
	// failure; the store was never touched.
	if len(result.Failures) == len(selectors) && result.Commits == 0 {
		first := result.Failures[0]
		e.countSync(directive.Registry, "fetch_failed")
		return nil, &FetchError{Registry: directive.Registry, Selector: first.Selector, Err: first.Err}
	}

	result.NoChange = result.Commits == 0
	if result.NoChange {
		e.countSync(directive.Registry, "no_change")
	} else {
		e.countSync(directive.Registry, "merged")
	}

	log.Info("Sync finished",
		"added", result.Added,
		"updated", result.Updated,
		"ignoredExisting", result.IgnoredExisting,
		"normalizationFailed", result.NormalizationFailed,
		"rejectedByPolicy", result.RejectedByPolicy,
		"commits", result.Commits,
		"failures", len(result.Failures),
		"version", result.Version)

	return result, nil
}

// syncOne processes a single sub-fetch: fetch, normalize, policy
// pre-check, staged merge, hash compare, commit. It returns the
// committed document, or nil when the sub-item was a no-op. The merge
// is staged entirely in memory and lands in the store through one
// atomic commit, so a failure anywhere leaves the registry untouched.
func (e *Engine) syncOne(
	ctx context.Context,
	regCfg *config.RegistryConfig,
	directive Directive,
	selector string,
	fetcher sources.Fetcher,
	current *registry.Document,
	result *Result,
) (*registry.Document, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, e.cfg.Sync.FetchTimeout)
	defer cancel()

	raws, err := fetcher.Fetch(fetchCtx, selector)
	if err != nil {
		return nil, err
	}

	// Normalize and policy-check before anything touches the staged
	// entry set. A sync never introduces new violations.
	var candidates []registry.Entry
	for _, raw := range raws {
		entry, err := sources.NormalizeEntry(raw)
		if err != nil {
			result.NormalizationFailed++
			e.countRejection(directive.Registry, "normalization_failed")
			continue
		}

		if violations := governance.CheckEntry(e.policy, directive.Registry, &entry); len(violations) > 0 {
			result.RejectedByPolicy++
			result.Rejections = append(result.Rejections, violations...)
			e.countRejection(directive.Registry, violations[0].Rule)
			continue
		}

		candidates = append(candidates, entry)
	}

	// Staged merge: append new ids, update known ids only for
	// updatable registries.
	staged := make([]registry.Entry, len(current.Entries))
	copy(staged, current.Entries)
	index := make(map[string]int, len(staged))
	for i := range staged {
		index[staged[i].ID] = i
	}

	for _, candidate := range candidates {
		pos, known := index[candidate.ID]
		switch {
		case !known:
			index[candidate.ID] = len(staged)
			staged = append(staged, candidate)
			result.Added++
		case entriesEqual(&staged[pos], &candidate):
			result.IgnoredExisting++
		case regCfg.Updatable:
			staged[pos] = candidate
			result.Updated++
		default:
			result.IgnoredExisting++
		}
	}

	hash, err := registry.ContentHash(staged)
	if err != nil {
		return nil, err
	}
	if hash == current.ContentHash && !directive.Force {
		return nil, nil
	}

	return e.store.Commit(ctx, directive.Registry, staged, hash)
}

// pace sleeps the configured interval between sub-fetches, waking early
// on cancellation.
func (e *Engine) pace(ctx context.Context) error {
	if e.cfg.Sync.Pacing <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(e.cfg.Sync.Pacing)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (e *Engine) acquire(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.inFlight[name]; busy {
		return false
	}
	e.inFlight[name] = struct{}{}
	return true
}

func (e *Engine) release(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inFlight, name)
}

func (e *Engine) countSync(registryName, outcome string) {
	if e.metrics != nil {
		e.metrics.CountSync(registryName, outcome)
	}
}

func (e *Engine) countRejection(registryName, reason string) {
	if e.metrics != nil {
		e.metrics.CountRejection(registryName, reason)
	}
}

// entriesEqual compares two entries by their canonical serialization.
func entriesEqual(a, b *registry.Entry) bool {
	aj, err1 := json.Marshal(a)
	bj, err2 := json.Marshal(b)
	if err1 != nil || err2 != nil {
		return false
	}
	return bytes.Equal(aj, bj)
}
