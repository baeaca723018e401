// Package vault stores files encrypted through a Cryptor in a Backend.
package vault

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/dd0wney/cluso-vaultcrypt/pkg/backend"
	"github.com/dd0wney/cluso-vaultcrypt/pkg/encryption"
	"github.com/dd0wney/cluso-vaultcrypt/pkg/logging"
	"github.com/dd0wney/cluso-vaultcrypt/pkg/metrics"
)

const (
	OpEncrypt   = "encrypt"
	OpDecrypt   = "decrypt"
	OpReadRange = "read_range"
	OpStat      = "stat"
	OpInfo      = "info"
	OpDelete    = "delete"
)

// Options configures a Vault. Cryptor and Backend are required.
type Options struct {
	Cryptor *encryption.Cryptor
	Backend backend.Backend
	Logger  logging.Logger
	// Metrics defaults to metrics.DefaultRegistry().
	Metrics *metrics.Registry
	// LegacyPadding pads every new file. SchemeCTRHMAC only.
	LegacyPadding bool
}

// Vault is safe for concurrent use when its Backend is.
type Vault struct {
	cryptor       *encryption.Cryptor
	backend       backend.Backend
	logger        logging.Logger
	metrics       *metrics.Registry
	legacyPadding bool
}

// FileInfo describes a stored file without decrypting its content.
type FileInfo struct {
	Name           string `json:"name"`
	Scheme         string `json:"scheme"`
	Revision       int32  `json:"revision,omitempty"`
	CiphertextSize int64  `json:"ciphertext_size"`
	CleartextSize  int64  `json:"cleartext_size"`
	Chunks         int64  `json:"chunks"`
	Padded         bool   `json:"padded"`
}

func New(opts Options) (*Vault, error) {
	if opts.Cryptor == nil || opts.Backend == nil {
		return nil, fmt.Errorf("%w: vault needs a cryptor and a backend", encryption.ErrInvalidArgument)
	}
	if opts.LegacyPadding && opts.Cryptor.Scheme() != encryption.SchemeCTRHMAC {
		return nil, fmt.Errorf("%w: legacy padding requires %s", encryption.ErrUnsupported, encryption.SchemeCTRHMAC)
	}
	reg := opts.Metrics
	if reg == nil {
		reg = metrics.DefaultRegistry()
	}
	return &Vault{
		cryptor:       opts.Cryptor,
		backend:       opts.Backend,
		logger:        logging.OrNop(opts.Logger).With(logging.Component("vault"), logging.Scheme(opts.Cryptor.Scheme().String())),
		metrics:       reg,
		legacyPadding: opts.LegacyPadding,
	}, nil
}

// Scheme returns the scheme new files are written with.
func (v *Vault) Scheme() encryption.Scheme {
	return v.cryptor.Scheme()
}

// List returns the stored object names under prefix.
func (v *Vault) List(ctx context.Context, prefix string) ([]string, error) {
	return v.backend.List(ctx, prefix)
}

// operation tracks one vault call for logging and metrics.
type operation struct {
	v     *Vault
	name  string
	log   logging.Logger
	timer *logging.TimedOperation
}

func (v *Vault) begin(name, object string) *operation {
	log := v.logger.With(
		logging.OperationID(uuid.NewString()),
		logging.Operation(name),
		logging.Object(object),
	)
	log.Debug("vault operation started")
	return &operation{
		v:     v,
		name:  name,
		log:   log,
		timer: logging.StartTimer(log, "vault operation"),
	}
}

func (op *operation) finish(err error, fields ...logging.Field) {
	op.v.metrics.RecordOperation(op.name, err, op.timer.Elapsed())
	if err != nil {
		op.timer.EndError(err, fields...)
		return
	}
	op.timer.End(fields...)
}

// authFailure counts err when it is an authentication failure at stage.
func (op *operation) authFailure(err error, stage string) {
	if errors.Is(err, encryption.ErrAuthenticationFailed) {
		op.v.metrics.RecordAuthFailure(op.v.cryptor.Scheme().String(), stage)
		op.log.Warn("authentication failed", logging.String("stage", stage))
	}
}

// contextReader stops a copy loop once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

type contextReaderAt struct {
	ctx context.Context
	r   io.ReaderAt
}

func (c contextReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.ReadAt(p, off)
}

// writeSeeker hides Close and Abort from the EncryptingWriter so the vault
// decides whether the object is committed.
type writeSeeker struct {
	io.WriteSeeker
}
