// Package masterkey implements the key hierarchy that feeds the file cryptors:
// a flat encryption+MAC key pair and a revolving family of seeds from which
// purpose-bound subkeys are derived.
package masterkey

import (
	"context"
	"errors"
)

const (
	// SubkeySize is the length of each half of a perpetual masterkey and of
	// every revolving seed.
	SubkeySize = 32
	// RawSize is the exported length of a perpetual masterkey.
	RawSize = 2 * SubkeySize
)

var (
	ErrInvalidKeyLength = errors.New("invalid masterkey length")
	ErrUnknownRevision  = errors.New("unknown seed revision")
	ErrKeyLoadingFailed = errors.New("failed to load masterkey")
	ErrInvalidPayload   = errors.New("invalid masterkey payload")
)

// Masterkey is satisfied by *PerpetualMasterkey and *RevolvingMasterkey.
type Masterkey interface {
	Destroy()
	IsDestroyed() bool
}

// Loader supplies masterkeys by id. Implementations wrap failures in
// ErrKeyLoadingFailed.
type Loader interface {
	LoadKey(ctx context.Context, id string) (Masterkey, error)
}
