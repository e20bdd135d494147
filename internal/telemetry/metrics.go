// Package telemetry provides Prometheus instrumentation for the
// registry engine.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SyncMetrics holds the instruments for sync engine operations.
type SyncMetrics struct {
	syncsTotal      *prometheus.CounterVec
	rejectionsTotal *prometheus.CounterVec
	registryVersion *prometheus.GaugeVec
}

// NewSyncMetrics creates and registers the sync metrics on the given
// registerer.
func NewSyncMetrics(reg prometheus.Registerer) *SyncMetrics {
	factory := promauto.With(reg)
	return &SyncMetrics{
		syncsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "registry_engine_syncs_total",
			Help: "Sync invocations by registry and outcome",
		}, []string{"registry", "outcome"}),
		rejectionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "registry_engine_entries_rejected_total",
			Help: "Entries dropped during sync by registry and reason",
		}, []string{"registry", "reason"}),
		registryVersion: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "registry_engine_registry_version",
			Help: "Current version of each registry document",
		}, []string{"registry"}),
	}
}

// CountSync records one sync invocation outcome.
func (m *SyncMetrics) CountSync(registry, outcome string) {
	m.syncsTotal.WithLabelValues(registry, outcome).Inc()
}

// CountRejection records one dropped entry.
func (m *SyncMetrics) CountRejection(registry, reason string) {
	m.rejectionsTotal.WithLabelValues(registry, reason).Inc()
}

// SetRegistryVersion records the current version of a registry.
func (m *SyncMetrics) SetRegistryVersion(registry string, version int64) {
	m.registryVersion.WithLabelValues(registry).Set(float64(version))
}

// WebhookMetrics holds the instruments for webhook ingest.
type WebhookMetrics struct {
	requestsTotal *prometheus.CounterVec
	dedupHits     prometheus.Counter
}

// NewWebhookMetrics creates and registers the webhook metrics on the
// given registerer.
func NewWebhookMetrics(reg prometheus.Registerer) *WebhookMetrics {
	factory := promauto.With(reg)
	return &WebhookMetrics{
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "registry_engine_webhook_requests_total",
			Help: "Webhook callback requests by result",
		}, []string{"result"}),
		dedupHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "registry_engine_webhook_dedup_hits_total",
			Help: "Notifications dropped as duplicates of an already-seen message id",
		}),
	}
}

// CountRequest records one webhook request result.
func (m *WebhookMetrics) CountRequest(result string) {
	m.requestsTotal.WithLabelValues(result).Inc()
}

// CountDedupHit records one duplicate notification.
func (m *WebhookMetrics) CountDedupHit() {
	m.dedupHits.Inc()
}
