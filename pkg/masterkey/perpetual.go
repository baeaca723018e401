package masterkey

import (
	"fmt"
	"io"

	"github.com/dd0wney/cluso-vaultcrypt/pkg/secret"
)

// PerpetualMasterkey is a fixed pair of 32-byte keys: one for encryption, one
// for authentication.
type PerpetualMasterkey struct {
	encKey *secret.DestroyableKey
	macKey *secret.DestroyableKey
}

// Generate fills both subkeys from rand.
func Generate(rand io.Reader) (*PerpetualMasterkey, error) {
	raw := make([]byte, RawSize)
	defer secret.Wipe(raw)
	if _, err := io.ReadFull(rand, raw); err != nil {
		return nil, fmt.Errorf("failed to generate masterkey: %w", err)
	}
	return FromRaw(raw)
}

// FromRaw splits a 64-byte secret into encryption key (first half) and MAC key
// (second half). raw is copied; the caller may wipe it.
func FromRaw(raw []byte) (*PerpetualMasterkey, error) {
	if len(raw) != RawSize {
		return nil, fmt.Errorf("%w: want %d bytes, got %d", ErrInvalidKeyLength, RawSize, len(raw))
	}
	enc, err := secret.New(raw[:SubkeySize], secret.AlgorithmAES)
	if err != nil {
		return nil, err
	}
	mac, err := secret.New(raw[SubkeySize:], secret.AlgorithmHMAC)
	if err != nil {
		enc.Destroy()
		return nil, err
	}
	return &PerpetualMasterkey{encKey: enc, macKey: mac}, nil
}

// EncKey returns the encryption subkey. It shares state with the masterkey.
func (m *PerpetualMasterkey) EncKey() (*secret.DestroyableKey, error) {
	if m.encKey.IsDestroyed() {
		return nil, secret.ErrDestroyed
	}
	return m.encKey, nil
}

// MACKey returns the authentication subkey. It shares state with the masterkey.
func (m *PerpetualMasterkey) MACKey() (*secret.DestroyableKey, error) {
	if m.macKey.IsDestroyed() {
		return nil, secret.ErrDestroyed
	}
	return m.macKey, nil
}

// Raw returns enc‖mac as a fresh 64-byte slice owned by the caller.
func (m *PerpetualMasterkey) Raw() ([]byte, error) {
	enc, err := m.encKey.Encoded()
	if err != nil {
		return nil, err
	}
	defer secret.Wipe(enc)
	mac, err := m.macKey.Encoded()
	if err != nil {
		return nil, err
	}
	defer secret.Wipe(mac)

	raw := make([]byte, 0, RawSize)
	raw = append(raw, enc...)
	return append(raw, mac...), nil
}

// Copy returns an independent masterkey.
func (m *PerpetualMasterkey) Copy() (*PerpetualMasterkey, error) {
	raw, err := m.Raw()
	if err != nil {
		return nil, err
	}
	defer secret.Wipe(raw)
	return FromRaw(raw)
}

// Equal compares both subkeys in constant time.
func (m *PerpetualMasterkey) Equal(other *PerpetualMasterkey) bool {
	if other == nil {
		return false
	}
	encEq := m.encKey.Equal(other.encKey)
	macEq := m.macKey.Equal(other.macKey)
	return encEq && macEq
}

// Destroy wipes both subkeys.
func (m *PerpetualMasterkey) Destroy() {
	m.encKey.Destroy()
	m.macKey.Destroy()
}

// IsDestroyed reports whether the key has been wiped.
func (m *PerpetualMasterkey) IsDestroyed() bool {
	return m.encKey.IsDestroyed() && m.macKey.IsDestroyed()
}
