package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initCryptoMetrics() {
	r.ChunksEncrypted = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "vault_chunks_encrypted_total",
			Help: "Chunks encrypted, by scheme",
		},
		[]string{"scheme"},
	)

	r.ChunksDecrypted = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "vault_chunks_decrypted_total",
			Help: "Chunks decrypted and authenticated, by scheme",
		},
		[]string{"scheme"},
	)

	r.AuthFailures = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "vault_auth_failures_total",
			Help: "Header or chunk authentication failures",
		},
		[]string{"scheme", "stage"},
	)

	r.BytesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "vault_bytes_total",
			Help: "Cleartext bytes processed, by direction",
		},
		[]string{"direction"},
	)
}
