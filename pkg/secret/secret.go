// Package secret wraps key material that must be wiped deterministically.
package secret

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/awnumar/memguard"
)

var (
	// ErrDestroyed is returned by every accessor once a key has been destroyed.
	ErrDestroyed = errors.New("key has been destroyed")
	// ErrEmptyKey is returned when a key would be created without material.
	ErrEmptyKey = errors.New("key material is empty")
)

// Common algorithm tags.
const (
	AlgorithmAES  = "AES"
	AlgorithmHMAC = "HMAC"
)

// DestroyableKey owns a copy of secret key bytes plus the algorithm they are
// meant for. After Destroy the backing array is all zero and every accessor
// fails with ErrDestroyed.
type DestroyableKey struct {
	mu        sync.RWMutex
	key       []byte
	algorithm string
	destroyed bool
}

// New copies key into a fresh DestroyableKey. The caller keeps ownership of
// key and may wipe it afterwards.
func New(key []byte, algorithm string) (*DestroyableKey, error) {
	if len(key) == 0 {
		return nil, ErrEmptyKey
	}
	owned := make([]byte, len(key))
	copy(owned, key)
	return &DestroyableKey{key: owned, algorithm: algorithm}, nil
}

// Wrap takes ownership of key without copying. key must not be used by the
// caller afterwards.
func Wrap(key []byte, algorithm string) (*DestroyableKey, error) {
	if len(key) == 0 {
		return nil, ErrEmptyKey
	}
	return &DestroyableKey{key: key, algorithm: algorithm}, nil
}

// Generate reads size bytes from rand.
func Generate(rand io.Reader, size int, algorithm string) (*DestroyableKey, error) {
	if size <= 0 {
		return nil, ErrEmptyKey
	}
	key := make([]byte, size)
	if _, err := io.ReadFull(rand, key); err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return &DestroyableKey{key: key, algorithm: algorithm}, nil
}

// Algorithm returns the algorithm tag.
func (k *DestroyableKey) Algorithm() (string, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.destroyed {
		return "", ErrDestroyed
	}
	return k.algorithm, nil
}

// Len returns the key length in bytes.
func (k *DestroyableKey) Len() (int, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.destroyed {
		return 0, ErrDestroyed
	}
	return len(k.key), nil
}

// Encoded returns a copy of the key bytes. The copy is the caller's to wipe.
func (k *DestroyableKey) Encoded() ([]byte, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.destroyed {
		return nil, ErrDestroyed
	}
	out := make([]byte, len(k.key))
	copy(out, k.key)
	return out, nil
}

// Use calls fn with the live key bytes. fn must not retain the slice.
func (k *DestroyableKey) Use(fn func(key []byte) error) error {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.destroyed {
		return ErrDestroyed
	}
	return fn(k.key)
}

// Copy returns an independent key. Destroying either one leaves the other intact.
func (k *DestroyableKey) Copy() (*DestroyableKey, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.destroyed {
		return nil, ErrDestroyed
	}
	return New(k.key, k.algorithm)
}

// Equal compares two keys in constant time. Destroyed keys are never equal.
func (k *DestroyableKey) Equal(other *DestroyableKey) bool {
	if k == nil || other == nil {
		return false
	}
	if k == other {
		return !k.IsDestroyed()
	}
	k.mu.RLock()
	defer k.mu.RUnlock()
	other.mu.RLock()
	defer other.mu.RUnlock()
	if k.destroyed || other.destroyed || k.algorithm != other.algorithm {
		return false
	}
	return subtle.ConstantTimeCompare(k.key, other.key) == 1
}

// Destroy zeroes the key bytes. Repeated calls are no-ops.
func (k *DestroyableKey) Destroy() {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.destroyed {
		return
	}
	memguard.WipeBytes(k.key)
	k.destroyed = true
}

// IsDestroyed reports whether Destroy has been called.
func (k *DestroyableKey) IsDestroyed() bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.destroyed
}

// Close implements io.Closer so keys can be released with defer.
func (k *DestroyableKey) Close() error {
	k.Destroy()
	return nil
}

// String never prints key material.
func (k *DestroyableKey) String() string {
	if k.IsDestroyed() {
		return "DestroyableKey(destroyed)"
	}
	return fmt.Sprintf("DestroyableKey(%s, %d bytes)", k.algorithm, len(k.key))
}

// Wipe zeroes b in place.
func Wipe(b ...[]byte) {
	for _, s := range b {
		memguard.WipeBytes(s)
	}
}
