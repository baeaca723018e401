// Package kdf derives key-encrypting keys from passphrases and subkeys from seeds.
package kdf

import (
	"crypto/sha512"
	"errors"
	"fmt"
	"io"
	"math"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/scrypt"

	"github.com/dd0wney/cluso-vaultcrypt/pkg/secret"
)

const (
	// KEKSize is the length of a derived key-encrypting key.
	KEKSize = 32

	// DefaultScryptCostParam is the scrypt N used for new keys.
	DefaultScryptCostParam = 1 << 15
	// DefaultScryptBlockSize is the scrypt r used for new keys.
	DefaultScryptBlockSize = 8
	// ScryptParallelization is fixed at 1.
	ScryptParallelization = 1

	// SaltSize is the recommended scrypt salt length.
	SaltSize = 32
)

var ErrInvalidArgument = errors.New("invalid kdf argument")

// ScryptParams holds the tunable scrypt parameters.
type ScryptParams struct {
	CostParam int `json:"cost_param" yaml:"cost_param" validate:"required,min=2,pow2"`
	BlockSize int `json:"block_size" yaml:"block_size" validate:"required,min=1"`
}

// DefaultScryptParams returns the parameters used for new key files.
func DefaultScryptParams() ScryptParams {
	return ScryptParams{
		CostParam: DefaultScryptCostParam,
		BlockSize: DefaultScryptBlockSize,
	}
}

// CheckScryptParams rejects costs that are not a power of two above one, and
// costs large enough to overflow the 128*r*N buffer scrypt allocates.
func CheckScryptParams(costParam, blockSize int) error {
	if blockSize < 1 {
		return fmt.Errorf("%w: block size must be positive, got %d", ErrInvalidArgument, blockSize)
	}
	if costParam <= 1 || costParam&(costParam-1) != 0 {
		return fmt.Errorf("%w: cost param must be a power of two greater than 1, got %d", ErrInvalidArgument, costParam)
	}
	if costParam > math.MaxInt32/128/blockSize {
		return fmt.Errorf("%w: cost param %d too large for block size %d", ErrInvalidArgument, costParam, blockSize)
	}
	return nil
}

// DeriveKEK runs scrypt over passphrase with salt‖pepper. The intermediate
// passphrase and salt buffers are wiped before returning.
func DeriveKEK(passphrase string, salt, pepper []byte, costParam, blockSize int) (*secret.DestroyableKey, error) {
	if err := CheckScryptParams(costParam, blockSize); err != nil {
		return nil, err
	}

	pw := []byte(passphrase)
	saltAndPepper := make([]byte, 0, len(salt)+len(pepper))
	saltAndPepper = append(saltAndPepper, salt...)
	saltAndPepper = append(saltAndPepper, pepper...)
	defer secret.Wipe(pw, saltAndPepper)

	key, err := scrypt.Key(pw, saltAndPepper, costParam, blockSize, ScryptParallelization, KEKSize)
	if err != nil {
		return nil, fmt.Errorf("failed to derive kek: %w", err)
	}
	return secret.Wrap(key, secret.AlgorithmAES)
}

// DeriveKEKWithParams is DeriveKEK taking a ScryptParams.
func DeriveKEKWithParams(passphrase string, salt, pepper []byte, p ScryptParams) (*secret.DestroyableKey, error) {
	return DeriveKEK(passphrase, salt, pepper, p.CostParam, p.BlockSize)
}

// HKDFSHA512 is RFC 5869 extract-and-expand with SHA-512.
func HKDFSHA512(salt, ikm, info []byte, length int) ([]byte, error) {
	if length <= 0 || length > 255*sha512.Size {
		return nil, fmt.Errorf("%w: hkdf output length %d", ErrInvalidArgument, length)
	}
	out := make([]byte, length)
	if _, err := io.ReadFull(hkdf.New(sha512.New, ikm, salt, info), out); err != nil {
		return nil, fmt.Errorf("failed to expand hkdf: %w", err)
	}
	return out, nil
}
