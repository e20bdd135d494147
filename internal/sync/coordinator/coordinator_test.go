package coordinator

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bottany/registry-engine/internal/config"
	"github.com/bottany/registry-engine/internal/policy"
	"github.com/bottany/registry-engine/internal/registry"
	"github.com/bottany/registry-engine/internal/store"
	pkgsync "github.com/bottany/registry-engine/internal/sync"
)

func writeSourceFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func testPolicy() *policy.Policy {
	return &policy.Policy{
		Categories: map[registry.Category]policy.CategoryPolicy{
			"academic_institutional": {Domains: []string{"ox.ac.uk"}},
		},
	}
}

func testCoordinator(t *testing.T, cfg *config.Config, opts ...Option) (*Coordinator, *store.Store) {
	t.Helper()
	st, err := store.Open(t.TempDir(), cfg.RegistryNames())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	engine := pkgsync.NewEngine(st, testPolicy(), cfg)
	return New(engine, st, cfg, opts...), st
}

func TestScheduledFiltersUnscheduledRegistries(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{
		Registries: []config.RegistryConfig{
			{Name: "curated"},
			{
				Name:   "sourced_only",
				Source: &config.SourceConfig{File: &config.FileConfig{Path: "x"}, Selector: "s"},
			},
			{
				Name:       "scheduled",
				Source:     &config.SourceConfig{File: &config.FileConfig{Path: "x"}, Selector: "s"},
				SyncPolicy: &config.SyncPolicyConfig{Interval: "1h"},
			},
		},
	}
	c, _ := testCoordinator(t, cfg)

	scheduled := c.scheduled()
	require.Len(t, scheduled, 1)
	require.Equal(t, "scheduled", scheduled[0].Name)
}

func TestDueRespectsInterval(t *testing.T) {
	t.Parallel()

	now := time.Now()
	clock := &now

	cfg := &config.Config{
		Registries: []config.RegistryConfig{
			{
				Name:       "academic_registry",
				Source:     &config.SourceConfig{File: &config.FileConfig{Path: "x"}, Selector: "s"},
				SyncPolicy: &config.SyncPolicyConfig{Interval: "1h"},
			},
		},
		Sync: config.SyncConfig{FetchTimeout: time.Second},
	}
	c, _ := testCoordinator(t, cfg, WithClock(func() time.Time { return *clock }))

	regCfg := &cfg.Registries[0]
	ctx := context.Background()

	// Never attempted, no commits: due immediately.
	require.True(t, c.due(ctx, regCfg))

	c.mu.Lock()
	c.lastAttempt["academic_registry"] = now
	c.mu.Unlock()
	require.False(t, c.due(ctx, regCfg))

	later := now.Add(61 * time.Minute)
	clock = &later
	require.True(t, c.due(ctx, regCfg))
}

func TestPerformRegistrySyncCommits(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	sourcePath := writeSourceFile(t, dir, "entries.json", `[{
		"id": "oxford",
		"category": "academic_institutional",
		"source_url": "https://ox.ac.uk/page",
		"source_kind": "institutional"
	}]`)

	cfg := &config.Config{
		Registries: []config.RegistryConfig{
			{
				Name:       "academic_registry",
				Source:     &config.SourceConfig{File: &config.FileConfig{Path: sourcePath}, Selector: "entries"},
				SyncPolicy: &config.SyncPolicyConfig{Interval: "1h"},
			},
		},
		Sync: config.SyncConfig{FetchTimeout: time.Second},
	}
	c, st := testCoordinator(t, cfg)

	c.performRegistrySync(context.Background(), &cfg.Registries[0])

	doc, err := st.Get(context.Background(), "academic_registry")
	require.NoError(t, err)
	require.Len(t, doc.Entries, 1)
	require.EqualValues(t, 1, doc.Version)

	// The attempt was recorded, so the registry is not immediately due.
	require.False(t, c.due(context.Background(), &cfg.Registries[0]))
}

func TestStartStopsOnCancel(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{
		Registries: []config.RegistryConfig{{Name: "academic_registry"}},
	}
	c, _ := testCoordinator(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("coordinator did not stop on cancel")
	}
}

func TestStopWaitsForLoopExit(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{
		Registries: []config.RegistryConfig{{Name: "academic_registry"}},
	}
	c, _ := testCoordinator(t, cfg)

	done := make(chan error, 1)
	go func() { done <- c.Start(context.Background()) }()

	require.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.cancelFunc != nil
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, c.Stop())

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after Stop")
	}
}

func TestStopBeforeStartIsNoop(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{
		Registries: []config.RegistryConfig{{Name: "academic_registry"}},
	}
	c, _ := testCoordinator(t, cfg)
	require.NoError(t, c.Stop())
}

func TestSyncIntervalFallback(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	require.Equal(t, 30*time.Minute, syncInterval(ctx, &config.SyncPolicyConfig{Interval: "30m"}))
	require.Equal(t, defaultSyncInterval, syncInterval(ctx, &config.SyncPolicyConfig{Interval: "bogus"}))
	require.Equal(t, defaultSyncInterval, syncInterval(ctx, nil))
}
