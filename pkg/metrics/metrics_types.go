package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds every vault metric on a private Prometheus registry.
type Registry struct {
	// Chunk pipeline
	ChunksEncrypted *prometheus.CounterVec
	ChunksDecrypted *prometheus.CounterVec
	AuthFailures    *prometheus.CounterVec
	BytesTotal      *prometheus.CounterVec

	// Vault operations
	FilesTotal        *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec

	// Keys
	KeyRotations      prometheus.Counter
	ActiveKeyRevision prometheus.Gauge
	KeysLoaded        *prometheus.CounterVec

	registry *prometheus.Registry
}

var (
	defaultRegistry *Registry
	once            sync.Once
)

// DefaultRegistry returns the process-wide registry.
func DefaultRegistry() *Registry {
	once.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// NewRegistry creates a registry with all metrics initialized.
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),
	}
	r.initCryptoMetrics()
	r.initVaultMetrics()
	r.initKeyMetrics()
	return r
}

// GetPrometheusRegistry returns the underlying Prometheus registry.
func (r *Registry) GetPrometheusRegistry() *prometheus.Registry {
	return r.registry
}

// WriteTextfile dumps the registry in the text exposition format, for the
// node_exporter textfile collector.
func (r *Registry) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}
