package metrics

import "time"

const (
	DirectionEncrypt = "encrypt"
	DirectionDecrypt = "decrypt"

	StageHeader = "header"
	StageChunk  = "chunk"
)

// RecordChunks adds n processed chunks for scheme in the given direction.
func (r *Registry) RecordChunks(direction, scheme string, n uint64) {
	if n == 0 {
		return
	}
	switch direction {
	case DirectionEncrypt:
		r.ChunksEncrypted.WithLabelValues(scheme).Add(float64(n))
	case DirectionDecrypt:
		r.ChunksDecrypted.WithLabelValues(scheme).Add(float64(n))
	}
}

// RecordBytes adds n cleartext bytes for direction.
func (r *Registry) RecordBytes(direction string, n int64) {
	if n > 0 {
		r.BytesTotal.WithLabelValues(direction).Add(float64(n))
	}
}

// RecordAuthFailure counts a failed header or chunk authentication.
func (r *Registry) RecordAuthFailure(scheme, stage string) {
	r.AuthFailures.WithLabelValues(scheme, stage).Inc()
}

// RecordOperation records a finished vault operation.
func (r *Registry) RecordOperation(operation string, err error, duration time.Duration) {
	status := "success"
	if err != nil {
		status = "error"
	}
	r.FilesTotal.WithLabelValues(operation, status).Inc()
	r.OperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordRotation counts a rotation and publishes the new revision.
func (r *Registry) RecordRotation(revision int32) {
	r.KeyRotations.Inc()
	r.ActiveKeyRevision.Set(float64(revision))
}

// RecordKeyLoad counts a keystore unlock attempt.
func (r *Registry) RecordKeyLoad(err error) {
	if err != nil {
		r.KeysLoaded.WithLabelValues("error").Inc()
		return
	}
	r.KeysLoaded.WithLabelValues("success").Inc()
}
