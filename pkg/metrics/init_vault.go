package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initVaultMetrics() {
	r.FilesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "vault_files_total",
			Help: "Vault file operations, by operation and status",
		},
		[]string{"operation", "status"},
	)

	r.OperationDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vault_operation_duration_seconds",
			Help:    "Vault operation duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		},
		[]string{"operation"},
	)
}

func (r *Registry) initKeyMetrics() {
	r.KeyRotations = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "vault_key_rotations_total",
			Help: "Revolving masterkey rotations",
		},
	)

	r.ActiveKeyRevision = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "vault_active_key_revision",
			Help: "Current seed revision of the most recently used revolving masterkey",
		},
	)

	r.KeysLoaded = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "vault_keys_loaded_total",
			Help: "Keystore unlock attempts, by status",
		},
		[]string{"status"},
	)
}
