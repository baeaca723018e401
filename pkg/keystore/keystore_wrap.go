package keystore

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
	"io"

	"github.com/dd0wney/cluso-vaultcrypt/pkg/encryption"
	"github.com/dd0wney/cluso-vaultcrypt/pkg/kdf"
	"github.com/dd0wney/cluso-vaultcrypt/pkg/masterkey"
	"github.com/dd0wney/cluso-vaultcrypt/pkg/secret"
)

const wrapNonceSize = 12

// wrap seals mk under a fresh salt and the store's current scrypt params:
// WrappedKey = nonce ‖ AES-256-GCM(kek, payload, aad = id).
func (s *Store) wrap(f *keyFile, mk masterkey.Masterkey, passphrase string) error {
	payload, err := encodeMasterkey(mk)
	if err != nil {
		return err
	}
	defer secret.Wipe(payload)

	salt := make([]byte, kdf.SaltSize)
	if _, err := io.ReadFull(s.cfg.Random, salt); err != nil {
		return fmt.Errorf("failed to generate salt: %w", err)
	}
	aead, err := s.keyWrapper(passphrase, salt, s.cfg.Scrypt)
	if err != nil {
		return err
	}

	nonce := make([]byte, wrapNonceSize, wrapNonceSize+len(payload)+aead.Overhead())
	if _, err := io.ReadFull(s.cfg.Random, nonce); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}

	f.ScryptSalt = salt
	f.ScryptCostParam = s.cfg.Scrypt.CostParam
	f.ScryptBlockSize = s.cfg.Scrypt.BlockSize
	f.WrappedKey = aead.Seal(nonce, nonce, payload, []byte(f.ID))
	return nil
}

// unwrap opens f with passphrase. A wrong passphrase and a tampered file
// are indistinguishable.
func (s *Store) unwrap(f *keyFile, passphrase string) (masterkey.Masterkey, error) {
	if len(f.WrappedKey) < wrapNonceSize {
		return nil, fmt.Errorf("%w: %w: wrapped key too short", masterkey.ErrKeyLoadingFailed, ErrCorruptKeyFile)
	}
	params := kdf.ScryptParams{CostParam: f.ScryptCostParam, BlockSize: f.ScryptBlockSize}
	aead, err := s.keyWrapper(passphrase, f.ScryptSalt, params)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", masterkey.ErrKeyLoadingFailed, err)
	}

	nonce, sealed := f.WrappedKey[:wrapNonceSize], f.WrappedKey[wrapNonceSize:]
	payload, err := aead.Open(nil, nonce, sealed, []byte(f.ID))
	if err != nil {
		return nil, fmt.Errorf("%w: %w: wrong passphrase or tampered key file", masterkey.ErrKeyLoadingFailed, encryption.ErrAuthenticationFailed)
	}
	defer secret.Wipe(payload)

	mk, err := decodeMasterkey(f.Kind, payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", masterkey.ErrKeyLoadingFailed, err)
	}
	return mk, nil
}

func (s *Store) keyWrapper(passphrase string, salt []byte, params kdf.ScryptParams) (cipher.AEAD, error) {
	kek, err := kdf.DeriveKEKWithParams(passphrase, salt, s.cfg.Pepper, params)
	if err != nil {
		return nil, err
	}
	defer kek.Destroy()

	var aead cipher.AEAD
	err = kek.Use(func(key []byte) error {
		block, err := aes.NewCipher(key)
		if err != nil {
			return err
		}
		aead, err = cipher.NewGCM(block)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create key wrapper: %w", err)
	}
	return aead, nil
}

// encodeMasterkey returns the 64 raw bytes of a perpetual key or the JSON
// payload of a revolving one.
func encodeMasterkey(mk masterkey.Masterkey) ([]byte, error) {
	switch k := mk.(type) {
	case *masterkey.PerpetualMasterkey:
		return k.Raw()
	case *masterkey.RevolvingMasterkey:
		return k.MarshalPayload()
	default:
		return nil, fmt.Errorf("unsupported masterkey type %T", mk)
	}
}

func decodeMasterkey(kind Kind, payload []byte) (masterkey.Masterkey, error) {
	switch kind {
	case KindPerpetual:
		return masterkey.FromRaw(payload)
	case KindRevolving:
		return masterkey.ParseRevolvingPayload(payload)
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrCorruptKeyFile, kind)
	}
}
