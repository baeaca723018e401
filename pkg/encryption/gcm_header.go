package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/dd0wney/cluso-vaultcrypt/pkg/masterkey"
	"github.com/dd0wney/cluso-vaultcrypt/pkg/secret"
)

const (
	gcmSeedIDOffset = len(GCMMagic)
	gcmNonceOffset  = gcmSeedIDOffset + GCMSeedIDSize
	gcmPayloadStart = gcmNonceOffset + GCMNonceSize
)

type gcmHeaderCryptor struct {
	key    *masterkey.RevolvingMasterkey
	random io.Reader
}

func (hc *gcmHeaderCryptor) scheme() Scheme { return SchemeGCM }

func (hc *gcmHeaderCryptor) HeaderSize() int { return GCMHeaderSize }

// Create binds the new header to the masterkey's current revision.
func (hc *gcmHeaderCryptor) Create() (*FileHeader, error) {
	if hc.key.IsDestroyed() {
		return nil, secret.ErrDestroyed
	}
	nonce := make([]byte, GCMNonceSize)
	if _, err := io.ReadFull(hc.random, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	contentKey, err := secret.Generate(hc.random, ContentKeySize, secret.AlgorithmAES)
	if err != nil {
		return nil, err
	}
	seedID, err := hc.key.CurrentRevision()
	if err != nil {
		contentKey.Destroy()
		return nil, err
	}
	h := newFileHeader(SchemeGCM, nonce, contentKey)
	h.seedID = seedID
	return h, nil
}

// EncryptHeader produces magic ‖ seedID ‖ nonce ‖ AES-GCM(contentKey, aad = magic ‖ seedID).
func (hc *gcmHeaderCryptor) EncryptHeader(h *FileHeader) ([]byte, error) {
	if h == nil || h.scheme != SchemeGCM {
		return nil, fmt.Errorf("%w: header does not belong to %s", ErrInvalidArgument, SchemeGCM)
	}
	aead, err := hc.headerAEAD(h.seedID)
	if err != nil {
		return nil, err
	}

	aad := make([]byte, gcmNonceOffset)
	copy(aad, GCMMagic)
	binary.BigEndian.PutUint32(aad[gcmSeedIDOffset:], uint32(h.seedID))

	out := make([]byte, 0, GCMHeaderSize)
	out = append(out, aad...)
	out = append(out, h.nonce...)
	err = h.contentKey.Use(func(key []byte) error {
		out = aead.Seal(out, h.nonce, key, aad)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DecryptHeader selects the header key by the embedded seed id, so files
// written before a rotation stay readable while their revision is known.
func (hc *gcmHeaderCryptor) DecryptHeader(buf []byte) (*FileHeader, error) {
	if len(buf) != GCMHeaderSize {
		return nil, fmt.Errorf("%w: header must be %d bytes, got %d", ErrInvalidArgument, GCMHeaderSize, len(buf))
	}
	if string(buf[:gcmSeedIDOffset]) != GCMMagic {
		return nil, fmt.Errorf("%w: bad header magic", ErrAuthenticationFailed)
	}
	seedID := int32(binary.BigEndian.Uint32(buf[gcmSeedIDOffset:gcmNonceOffset]))
	aead, err := hc.headerAEAD(seedID)
	if errors.Is(err, masterkey.ErrUnknownRevision) {
		return nil, fmt.Errorf("%w: %w", ErrAuthenticationFailed, err)
	}
	if err != nil {
		return nil, err
	}

	nonce := append([]byte(nil), buf[gcmNonceOffset:gcmPayloadStart]...)
	key, err := aead.Open(nil, nonce, buf[gcmPayloadStart:], buf[:gcmNonceOffset])
	if err != nil {
		return nil, fmt.Errorf("%w: header tag mismatch", ErrAuthenticationFailed)
	}
	contentKey, err := secret.Wrap(key, secret.AlgorithmAES)
	if err != nil {
		return nil, err
	}
	h := newFileHeader(SchemeGCM, nonce, contentKey)
	h.seedID = seedID
	return h, nil
}

// headerAEAD derives the header key for revision. The derived key is wiped
// once the AEAD has expanded it.
func (hc *gcmHeaderCryptor) headerAEAD(revision int32) (cipher.AEAD, error) {
	subKey, err := hc.key.SubKey(revision, ContentKeySize, HeaderKeyContext, secret.AlgorithmAES)
	if err != nil {
		return nil, err
	}
	defer subKey.Destroy()

	var aead cipher.AEAD
	err = subKey.Use(func(key []byte) error {
		block, err := aes.NewCipher(key)
		if err != nil {
			return err
		}
		aead, err = cipher.NewGCM(block)
		return err
	})
	if err != nil {
		return nil, err
	}
	return aead, nil
}
