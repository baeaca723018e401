package encryption

import (
	"crypto/cipher"
	"encoding/binary"
	"fmt"
	"io"
)

type gcmContentCryptor struct {
	random io.Reader
}

func (cc *gcmContentCryptor) scheme() Scheme { return SchemeGCM }

func (cc *gcmContentCryptor) CleartextChunkSize() int { return CleartextChunkSize }

func (cc *gcmContentCryptor) CiphertextChunkSize() int {
	return CleartextChunkSize + GCMChunkOverhead
}

func (cc *gcmContentCryptor) ChunkOverhead() int { return GCMChunkOverhead }

func (cc *gcmContentCryptor) CleartextSize(size int64) (int64, error) {
	return cleartextSize(size, CleartextChunkSize, GCMChunkOverhead)
}

func (cc *gcmContentCryptor) CiphertextSize(size int64) (int64, error) {
	return ciphertextSize(size, CleartextChunkSize, GCMChunkOverhead)
}

func (cc *gcmContentCryptor) EncryptChunk(cleartext []byte, chunkIndex uint64, h *FileHeader) ([]byte, error) {
	return cc.EncryptChunkTo(nil, cleartext, chunkIndex, h)
}

// EncryptChunkTo appends nonce ‖ AES-GCM(cleartext, aad = index ‖ headerNonce).
func (cc *gcmContentCryptor) EncryptChunkTo(dst, cleartext []byte, chunkIndex uint64, h *FileHeader) ([]byte, error) {
	if len(cleartext) == 0 || len(cleartext) > CleartextChunkSize {
		return nil, fmt.Errorf("%w: cleartext chunk of %d bytes, want 1..%d", ErrInvalidArgument, len(cleartext), CleartextChunkSize)
	}
	aead, err := cc.check(h)
	if err != nil {
		return nil, err
	}

	ret, nonce := sliceForAppend(dst, GCMNonceSize)
	if _, err := io.ReadFull(cc.random, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return aead.Seal(ret, nonce, cleartext, chunkAAD(chunkIndex, h.nonce)), nil
}

func (cc *gcmContentCryptor) DecryptChunk(ciphertext []byte, chunkIndex uint64, h *FileHeader, authenticate bool) ([]byte, error) {
	return cc.DecryptChunkTo(nil, ciphertext, chunkIndex, h, authenticate)
}

// DecryptChunkTo always authenticates; GCM has no unauthenticated mode here.
func (cc *gcmContentCryptor) DecryptChunkTo(dst, ciphertext []byte, chunkIndex uint64, h *FileHeader, authenticate bool) ([]byte, error) {
	if !authenticate {
		return nil, fmt.Errorf("%w: %s always authenticates chunks", ErrUnsupported, SchemeGCM)
	}
	if len(ciphertext) < GCMChunkOverhead || len(ciphertext) > cc.CiphertextChunkSize() {
		return nil, fmt.Errorf("%w: ciphertext chunk of %d bytes, want %d..%d", ErrInvalidArgument, len(ciphertext), GCMChunkOverhead, cc.CiphertextChunkSize())
	}
	aead, err := cc.check(h)
	if err != nil {
		return nil, err
	}

	out, err := aead.Open(dst, ciphertext[:GCMNonceSize], ciphertext[GCMNonceSize:], chunkAAD(chunkIndex, h.nonce))
	if err != nil {
		return nil, fmt.Errorf("%w: chunk %d tag mismatch", ErrAuthenticationFailed, chunkIndex)
	}
	return out, nil
}

func (cc *gcmContentCryptor) check(h *FileHeader) (cipher.AEAD, error) {
	if h == nil || h.scheme != SchemeGCM {
		return nil, fmt.Errorf("%w: header does not belong to %s", ErrInvalidArgument, SchemeGCM)
	}
	_, aead, err := h.primitives()
	return aead, err
}

func chunkAAD(chunkIndex uint64, headerNonce []byte) []byte {
	aad := make([]byte, 8, 8+len(headerNonce))
	binary.BigEndian.PutUint64(aad, chunkIndex)
	return append(aad, headerNonce...)
}
