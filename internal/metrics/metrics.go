package metrics

import (
    "sync"

    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/collectors"
)

var (
    // Registry is the dedicated Prometheus registry for the engine.
    Registry = prometheus.NewRegistry()

    // AdapterRequests counts outbound API calls by platform, operation, and result.
    AdapterRequests = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "adapter_requests_total", Help: "Outbound adapter requests."},
        []string{"platform", "op", "result"},
    )
    // AdapterRetries counts transparently-absorbed retries by platform and operation.
    AdapterRetries = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "adapter_retries_total", Help: "Retries absorbed inside the adapters."},
        []string{"platform", "op"},
    )
    // AdapterDuration records call durations in seconds, retries included.
    AdapterDuration = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{Name: "adapter_request_duration_seconds", Help: "Adapter call duration in seconds.", Buckets: prometheus.DefBuckets},
        []string{"platform", "op"},
    )

    // RoutingOutcomes counts terminal per-order outcomes by result and failed stage.
    RoutingOutcomes = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "routing_outcomes_total", Help: "Per-order routing outcomes."},
        []string{"result", "stage"},
    )

    // InventoryCache counts oracle cache lookups by result (hit/miss/expired).
    InventoryCache = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "inventory_cache_lookups_total", Help: "Inventory oracle cache lookups."},
        []string{"result"},
    )

    // TrackingSyncs counts tracking sync attempts by result.
    TrackingSyncs = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "tracking_syncs_total", Help: "Tracking sync attempts."},
        []string{"result"},
    )
)

// RegisterDefault registers collectors to the engine registry.
func RegisterDefault() {
    regOnce.Do(func() {
        Registry.MustRegister(AdapterRequests)
        Registry.MustRegister(AdapterRetries)
        Registry.MustRegister(AdapterDuration)
        Registry.MustRegister(RoutingOutcomes)
        Registry.MustRegister(InventoryCache)
        Registry.MustRegister(TrackingSyncs)
        // Go/process collectors on our registry
        Registry.MustRegister(collectors.NewGoCollector())
        Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
    })
}

var regOnce sync.Once
