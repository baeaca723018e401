package keystore

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dd0wney/cluso-vaultcrypt/pkg/audit"
	"github.com/dd0wney/cluso-vaultcrypt/pkg/encryption"
	"github.com/dd0wney/cluso-vaultcrypt/pkg/kdf"
	"github.com/dd0wney/cluso-vaultcrypt/pkg/logging"
	"github.com/dd0wney/cluso-vaultcrypt/pkg/metrics"
)

var (
	ErrKeyNotFound      = errors.New("key not found")
	ErrKeyRevoked       = errors.New("key is revoked")
	ErrWrongKind        = errors.New("operation not supported for key kind")
	ErrEmptyPassphrase  = errors.New("passphrase must not be empty")
	ErrNotRevoked       = errors.New("only revoked keys can be deleted")
	ErrCorruptKeyFile   = errors.New("corrupt key file")
	ErrNoPassphraseFunc = errors.New("no passphrase source configured")
)

// fileVersion is the on-disk key file format version.
const fileVersion = 1

// Kind says which masterkey a key file wraps.
type Kind string

const (
	KindPerpetual Kind = "perpetual"
	KindRevolving Kind = "revolving"
)

// ParseKind accepts a kind name.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindPerpetual, KindRevolving:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("unknown key kind %q", s)
	}
}

// KindForScheme maps a cipher scheme to the masterkey kind it needs.
func KindForScheme(s encryption.Scheme) (Kind, error) {
	switch s {
	case encryption.SchemeCTRHMAC:
		return KindPerpetual, nil
	case encryption.SchemeGCM:
		return KindRevolving, nil
	default:
		return "", fmt.Errorf("%w: %s", encryption.ErrInvalidArgument, s)
	}
}

// Scheme is the inverse of KindForScheme.
func (k Kind) Scheme() encryption.Scheme {
	if k == KindPerpetual {
		return encryption.SchemeCTRHMAC
	}
	return encryption.SchemeGCM
}

// Status of a key file.
type Status string

const (
	StatusActive  Status = "active"  // usable
	StatusRevoked Status = "revoked" // refuses to unlock
)

// keyFile is the JSON document stored as <id>.json.
type keyFile struct {
	Version         int        `json:"version"`
	ID              string     `json:"id"`
	Kind            Kind       `json:"kind"`
	ScryptSalt      []byte     `json:"scrypt_salt"`
	ScryptCostParam int        `json:"scrypt_cost_param"`
	ScryptBlockSize int        `json:"scrypt_block_size"`
	WrappedKey      []byte     `json:"wrapped_key"`
	CreatedAt       time.Time  `json:"created_at"`
	RotatedAt       *time.Time `json:"rotated_at,omitempty"`
	RevokedAt       *time.Time `json:"revoked_at,omitempty"`
	Status          Status     `json:"status"`
	Revision        int32      `json:"revision,omitempty"`
}

// Metadata describes a key without exposing any key material.
type Metadata struct {
	ID        string           `json:"id"`
	Kind      Kind             `json:"kind"`
	Status    Status           `json:"status"`
	CreatedAt time.Time        `json:"created_at"`
	RotatedAt *time.Time       `json:"rotated_at,omitempty"`
	RevokedAt *time.Time       `json:"revoked_at,omitempty"`
	Revision  int32            `json:"revision,omitempty"`
	Scrypt    kdf.ScryptParams `json:"scrypt"`
}

func (f *keyFile) metadata() Metadata {
	return Metadata{
		ID:        f.ID,
		Kind:      f.Kind,
		Status:    f.Status,
		CreatedAt: f.CreatedAt,
		RotatedAt: f.RotatedAt,
		RevokedAt: f.RevokedAt,
		Revision:  f.Revision,
		Scrypt:    kdf.ScryptParams{CostParam: f.ScryptCostParam, BlockSize: f.ScryptBlockSize},
	}
}

// PassphraseFunc supplies the passphrase for a key id. It backs LoadKey.
type PassphraseFunc func(id string) (string, error)

// Config configures a Store.
type Config struct {
	// Dir holds one <id>.json per key. It is created with mode 0700.
	Dir string
	// Scrypt applies to newly written key files; existing files keep theirs.
	Scrypt kdf.ScryptParams
	// Pepper is appended to every scrypt salt. Optional.
	Pepper []byte
	// Passphrase backs LoadKey. Optional.
	Passphrase PassphraseFunc
	Logger     logging.Logger
	Metrics    *metrics.Registry
	// Audit receives key lifecycle events. Optional.
	Audit audit.Recorder
	// Random defaults to crypto/rand.Reader.
	Random io.Reader
	// now is overridden in tests.
	now func() time.Time
}

// Statistics summarizes the store.
type Statistics struct {
	TotalKeys     int           `json:"total_keys"`
	ActiveKeys    int           `json:"active_keys"`
	RevokedKeys   int           `json:"revoked_keys"`
	PerpetualKeys int           `json:"perpetual_keys"`
	RevolvingKeys int           `json:"revolving_keys"`
	MaxRevision   int32         `json:"max_revision"`
	OldestKeyAge  time.Duration `json:"oldest_key_age"`
	NewestKeyAge  time.Duration `json:"newest_key_age"`
}
