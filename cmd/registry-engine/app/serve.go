package app

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/bottany/registry-engine/internal/governance"
	pkgsync "github.com/bottany/registry-engine/internal/sync"
	"github.com/bottany/registry-engine/internal/sync/coordinator"
	"github.com/bottany/registry-engine/internal/telemetry"
	"github.com/bottany/registry-engine/internal/webhook"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the webhook server and background sync",
	Long: `Run the engine in steady state: validate all registries against the
allowlist policy, then serve the webhook callback endpoint and sync
registries on their configured intervals.

Startup hard-fails when the policy sets block_on_violation and any
registry entry violates it.`,
	RunE: runServe,
}

const gracefulTimeout = 30 * time.Second

func runServe(_ *cobra.Command, _ []string) error {
	boot, err := setup()
	if err != nil {
		return err
	}
	defer boot.close()

	ctx, stop := signal.NotifyContext(
		logr.NewContext(context.Background(), boot.log),
		syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Governance gate: nothing else starts while the stored registries
	// violate a blocking policy.
	snapshot, err := boot.store.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("failed to snapshot registries: %w", err)
	}
	report := governance.Validate(snapshot, boot.policy)
	if err := governance.Enforce(boot.log, report, boot.policy); err != nil {
		return err
	}
	boot.log.Info("Governance gate passed",
		"registries", len(snapshot), "violations", report.Total)

	promRegistry := prometheus.NewRegistry()
	syncMetrics := telemetry.NewSyncMetrics(promRegistry)
	webhookMetrics := telemetry.NewWebhookMetrics(promRegistry)
	for name, doc := range snapshot {
		syncMetrics.SetRegistryVersion(name, doc.Version)
	}

	engine := pkgsync.NewEngine(boot.store, boot.policy, boot.cfg,
		pkgsync.WithMetrics(syncMetrics))

	if boot.env.WebhookSecret == "" {
		boot.log.Info("Webhook secret is not set; the callback endpoint will reject all requests")
	}
	if boot.cfg.Webhook.CallbackBase != "" {
		boot.log.Info("Webhook callback endpoint",
			"url", boot.cfg.Webhook.CallbackBase+boot.cfg.Webhook.Path)
	}

	handler := webhook.NewHandler(boot.env.WebhookSecret,
		webhook.NewLogSink(boot.log.WithName("sink")),
		webhook.WithMetrics(webhookMetrics))
	server := webhook.NewServer(boot.cfg.Webhook, handler, promRegistry)
	syncCoordinator := coordinator.New(engine, boot.store, boot.cfg)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return syncCoordinator.Start(groupCtx)
	})
	group.Go(func() error {
		if err := server.Start(groupCtx); err != nil {
			return fmt.Errorf("webhook server failed: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		// Shut the server down when the signal arrives or a sibling
		// goroutine fails.
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), gracefulTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	err = group.Wait()
	boot.log.Info("Shutdown complete")
	return err
}
