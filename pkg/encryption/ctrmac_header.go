package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"hash"
	"io"

	"github.com/dd0wney/cluso-vaultcrypt/pkg/masterkey"
	"github.com/dd0wney/cluso-vaultcrypt/pkg/pool"
	"github.com/dd0wney/cluso-vaultcrypt/pkg/secret"
)

// ctrmacPrimitives are the masterkey-derived contexts shared by the header
// and content cryptors of one CTR+HMAC Cryptor.
type ctrmacPrimitives struct {
	headerBlock cipher.Block
	macs        *pool.Pool[hash.Hash]
}

func newCTRMACPrimitives(mk *masterkey.PerpetualMasterkey) (*ctrmacPrimitives, error) {
	encKey, err := mk.EncKey()
	if err != nil {
		return nil, err
	}
	macKey, err := mk.MACKey()
	if err != nil {
		return nil, err
	}

	p := &ctrmacPrimitives{}
	err = encKey.Use(func(key []byte) error {
		block, err := aes.NewCipher(key)
		p.headerBlock = block
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	p.macs, err = pool.New("HmacSHA256", func() (hash.Hash, error) {
		var h hash.Hash
		err := macKey.Use(func(key []byte) error {
			h = hmac.New(sha256.New, key)
			return nil
		})
		return h, err
	}, func(h hash.Hash) { h.Reset() })
	if err != nil {
		return nil, err
	}
	return p, nil
}

type ctrmacHeaderCryptor struct {
	key    *masterkey.PerpetualMasterkey
	prims  *ctrmacPrimitives
	random io.Reader
}

func (hc *ctrmacHeaderCryptor) scheme() Scheme { return SchemeCTRHMAC }

func (hc *ctrmacHeaderCryptor) HeaderSize() int { return CTRMACHeaderSize }

func (hc *ctrmacHeaderCryptor) Create() (*FileHeader, error) {
	if hc.key.IsDestroyed() {
		return nil, secret.ErrDestroyed
	}
	nonce := make([]byte, CTRMACNonceSize)
	if _, err := io.ReadFull(hc.random, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	contentKey, err := secret.Generate(hc.random, ContentKeySize, secret.AlgorithmAES)
	if err != nil {
		return nil, err
	}
	return newFileHeader(SchemeCTRHMAC, nonce, contentKey), nil
}

// EncryptHeader produces nonce ‖ AES-CTR(reserved ‖ contentKey) ‖ HMAC(nonce ‖ ciphertext).
func (hc *ctrmacHeaderCryptor) EncryptHeader(h *FileHeader) ([]byte, error) {
	if h == nil || h.scheme != SchemeCTRHMAC {
		return nil, fmt.Errorf("%w: header does not belong to %s", ErrInvalidArgument, SchemeCTRHMAC)
	}
	if hc.key.IsDestroyed() {
		return nil, secret.ErrDestroyed
	}

	out := make([]byte, CTRMACHeaderSize)
	nonce := out[:CTRMACNonceSize]
	payload := out[CTRMACNonceSize : CTRMACHeaderSize-CTRMACMACSize]
	copy(nonce, h.nonce)

	binary.BigEndian.PutUint64(payload[:CTRMACReservedSize], h.reserved)
	err := h.contentKey.Use(func(key []byte) error {
		copy(payload[CTRMACReservedSize:], key)
		return nil
	})
	if err != nil {
		return nil, err
	}
	cipher.NewCTR(hc.prims.headerBlock, nonce).XORKeyStream(payload, payload)

	lease, err := hc.prims.macs.Lease()
	if err != nil {
		return nil, err
	}
	defer lease.Release()
	mac := lease.Get()
	mac.Write(out[:CTRMACHeaderSize-CTRMACMACSize])
	mac.Sum(out[:CTRMACHeaderSize-CTRMACMACSize])
	return out, nil
}

// DecryptHeader verifies the MAC before touching the ciphertext.
func (hc *ctrmacHeaderCryptor) DecryptHeader(buf []byte) (*FileHeader, error) {
	if len(buf) != CTRMACHeaderSize {
		return nil, fmt.Errorf("%w: header must be %d bytes, got %d", ErrInvalidArgument, CTRMACHeaderSize, len(buf))
	}
	if hc.key.IsDestroyed() {
		return nil, secret.ErrDestroyed
	}

	authenticated := buf[:CTRMACHeaderSize-CTRMACMACSize]
	expected := buf[CTRMACHeaderSize-CTRMACMACSize:]

	lease, err := hc.prims.macs.Lease()
	if err != nil {
		return nil, err
	}
	mac := lease.Get()
	mac.Write(authenticated)
	computed := mac.Sum(nil)
	lease.Release()
	if !hmac.Equal(computed, expected) {
		return nil, fmt.Errorf("%w: header mac mismatch", ErrAuthenticationFailed)
	}

	nonce := append([]byte(nil), buf[:CTRMACNonceSize]...)
	payload := make([]byte, CTRMACReservedSize+ContentKeySize)
	defer secret.Wipe(payload)
	cipher.NewCTR(hc.prims.headerBlock, nonce).XORKeyStream(payload, buf[CTRMACNonceSize:CTRMACHeaderSize-CTRMACMACSize])

	contentKey, err := secret.New(payload[CTRMACReservedSize:], secret.AlgorithmAES)
	if err != nil {
		return nil, err
	}
	h := newFileHeader(SchemeCTRHMAC, nonce, contentKey)
	h.reserved = binary.BigEndian.Uint64(payload[:CTRMACReservedSize])
	return h, nil
}
