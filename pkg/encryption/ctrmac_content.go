package encryption

import (
	"crypto/cipher"
	"crypto/hmac"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/dd0wney/cluso-vaultcrypt/pkg/masterkey"
	"github.com/dd0wney/cluso-vaultcrypt/pkg/secret"
)

type ctrmacContentCryptor struct {
	key    *masterkey.PerpetualMasterkey
	prims  *ctrmacPrimitives
	random io.Reader
}

func (cc *ctrmacContentCryptor) scheme() Scheme { return SchemeCTRHMAC }

func (cc *ctrmacContentCryptor) CleartextChunkSize() int { return CleartextChunkSize }

func (cc *ctrmacContentCryptor) CiphertextChunkSize() int {
	return CleartextChunkSize + CTRMACChunkOverhead
}

func (cc *ctrmacContentCryptor) ChunkOverhead() int { return CTRMACChunkOverhead }

func (cc *ctrmacContentCryptor) CleartextSize(size int64) (int64, error) {
	return cleartextSize(size, CleartextChunkSize, CTRMACChunkOverhead)
}

func (cc *ctrmacContentCryptor) CiphertextSize(size int64) (int64, error) {
	return ciphertextSize(size, CleartextChunkSize, CTRMACChunkOverhead)
}

func (cc *ctrmacContentCryptor) EncryptChunk(cleartext []byte, chunkIndex uint64, h *FileHeader) ([]byte, error) {
	return cc.EncryptChunkTo(nil, cleartext, chunkIndex, h)
}

// EncryptChunkTo appends nonce ‖ AES-CTR(cleartext) ‖ HMAC(headerNonce ‖ index ‖ nonce ‖ ciphertext).
func (cc *ctrmacContentCryptor) EncryptChunkTo(dst, cleartext []byte, chunkIndex uint64, h *FileHeader) ([]byte, error) {
	if len(cleartext) == 0 || len(cleartext) > CleartextChunkSize {
		return nil, fmt.Errorf("%w: cleartext chunk of %d bytes, want 1..%d", ErrInvalidArgument, len(cleartext), CleartextChunkSize)
	}
	block, err := cc.check(h)
	if err != nil {
		return nil, err
	}

	start := len(dst)
	ret, out := sliceForAppend(dst, CTRMACNonceSize+len(cleartext)+CTRMACMACSize)
	nonce := out[:CTRMACNonceSize]
	if _, err := io.ReadFull(cc.random, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	ciphertext := out[CTRMACNonceSize : CTRMACNonceSize+len(cleartext)]
	cipher.NewCTR(block, nonce).XORKeyStream(ciphertext, cleartext)

	lease, err := cc.prims.macs.Lease()
	if err != nil {
		return nil, err
	}
	defer lease.Release()
	mac := lease.Get()
	cc.writeMAC(mac, h, chunkIndex, nonce, ciphertext)
	mac.Sum(ret[:start+CTRMACNonceSize+len(cleartext)])
	return ret, nil
}

func (cc *ctrmacContentCryptor) DecryptChunk(ciphertext []byte, chunkIndex uint64, h *FileHeader, authenticate bool) ([]byte, error) {
	return cc.DecryptChunkTo(nil, ciphertext, chunkIndex, h, authenticate)
}

// DecryptChunkTo verifies the MAC unless authenticate is false. Skipping
// authentication exists only for salvaging damaged files.
func (cc *ctrmacContentCryptor) DecryptChunkTo(dst, ciphertext []byte, chunkIndex uint64, h *FileHeader, authenticate bool) ([]byte, error) {
	if len(ciphertext) < CTRMACChunkOverhead || len(ciphertext) > cc.CiphertextChunkSize() {
		return nil, fmt.Errorf("%w: ciphertext chunk of %d bytes, want %d..%d", ErrInvalidArgument, len(ciphertext), CTRMACChunkOverhead, cc.CiphertextChunkSize())
	}
	block, err := cc.check(h)
	if err != nil {
		return nil, err
	}

	nonce := ciphertext[:CTRMACNonceSize]
	payload := ciphertext[CTRMACNonceSize : len(ciphertext)-CTRMACMACSize]
	expected := ciphertext[len(ciphertext)-CTRMACMACSize:]

	if authenticate {
		lease, err := cc.prims.macs.Lease()
		if err != nil {
			return nil, err
		}
		mac := lease.Get()
		cc.writeMAC(mac, h, chunkIndex, nonce, payload)
		computed := mac.Sum(nil)
		lease.Release()
		if !hmac.Equal(computed, expected) {
			return nil, fmt.Errorf("%w: chunk %d mac mismatch", ErrAuthenticationFailed, chunkIndex)
		}
	}

	ret, out := sliceForAppend(dst, len(payload))
	cipher.NewCTR(block, nonce).XORKeyStream(out, payload)
	return ret, nil
}

func (cc *ctrmacContentCryptor) check(h *FileHeader) (cipher.Block, error) {
	if h == nil || h.scheme != SchemeCTRHMAC {
		return nil, fmt.Errorf("%w: header does not belong to %s", ErrInvalidArgument, SchemeCTRHMAC)
	}
	if cc.key.IsDestroyed() {
		return nil, secret.ErrDestroyed
	}
	block, _, err := h.primitives()
	return block, err
}

func (cc *ctrmacContentCryptor) writeMAC(mac io.Writer, h *FileHeader, chunkIndex uint64, nonce, ciphertext []byte) {
	var idx [8]byte
	binary.BigEndian.PutUint64(idx[:], chunkIndex)
	mac.Write(h.nonce)
	mac.Write(idx[:])
	mac.Write(nonce)
	mac.Write(ciphertext)
}

// sliceForAppend extends in by n bytes, reusing its capacity when possible.
// head is the full result and tail the n new bytes.
func sliceForAppend(in []byte, n int) (head, tail []byte) {
	if total := len(in) + n; cap(in) >= total {
		head = in[:total]
	} else {
		head = make([]byte, total)
		copy(head, in)
	}
	tail = head[len(in):]
	return
}
