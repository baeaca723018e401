package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"math"
	"sync"

	"github.com/dd0wney/cluso-vaultcrypt/pkg/secret"
)

// reservedUnknownSize marks the CTR+HMAC reserved field as "size not recorded".
const reservedUnknownSize = math.MaxUint64

// FileHeader carries the per-file nonce and content key. It is created by a
// HeaderCryptor and must be destroyed when the file is done with.
type FileHeader struct {
	scheme     Scheme
	nonce      []byte
	contentKey *secret.DestroyableKey

	// seedID is the masterkey revision the header key came from (GCM only).
	seedID int32
	// reserved is the CTR+HMAC reserved field: the cleartext size when the
	// legacy padding mode recorded it, all ones otherwise.
	reserved uint64

	once  sync.Once
	block cipher.Block
	aead  cipher.AEAD
	err   error
}

func newFileHeader(s Scheme, nonce []byte, contentKey *secret.DestroyableKey) *FileHeader {
	return &FileHeader{
		scheme:     s,
		nonce:      nonce,
		contentKey: contentKey,
		reserved:   reservedUnknownSize,
	}
}

// Scheme returns the scheme the header belongs to.
func (h *FileHeader) Scheme() Scheme {
	return h.scheme
}

// Nonce returns a copy of the header nonce.
func (h *FileHeader) Nonce() []byte {
	return append([]byte(nil), h.nonce...)
}

// SeedID returns the masterkey revision of a GCM header.
func (h *FileHeader) SeedID() int32 {
	return h.seedID
}

// CleartextSize returns the size recorded by the legacy padding mode, if any.
func (h *FileHeader) CleartextSize() (int64, bool) {
	if h.reserved == reservedUnknownSize || h.reserved > math.MaxInt64 {
		return 0, false
	}
	return int64(h.reserved), true
}

// SetCleartextSize records the true cleartext size in the reserved field.
// Only CTR+HMAC headers have room for it.
func (h *FileHeader) SetCleartextSize(size int64) error {
	if h.scheme != SchemeCTRHMAC {
		return ErrUnsupported
	}
	if size < 0 {
		return ErrInvalidArgument
	}
	h.reserved = uint64(size)
	return nil
}

// ContentKey exposes the content key for inspection and tests.
func (h *FileHeader) ContentKey() *secret.DestroyableKey {
	return h.contentKey
}

// Destroy wipes the content key.
func (h *FileHeader) Destroy() {
	h.contentKey.Destroy()
}

// IsDestroyed reports whether the content key has been wiped.
func (h *FileHeader) IsDestroyed() bool {
	return h.contentKey.IsDestroyed()
}

// primitives lazily expands the content key once per header. The expanded
// forms are safe for concurrent use.
func (h *FileHeader) primitives() (cipher.Block, cipher.AEAD, error) {
	h.once.Do(func() {
		h.err = h.contentKey.Use(func(key []byte) error {
			block, err := aes.NewCipher(key)
			if err != nil {
				return err
			}
			h.block = block
			if h.scheme == SchemeGCM {
				h.aead, err = cipher.NewGCM(block)
			}
			return err
		})
	})
	if h.err != nil {
		return nil, nil, h.err
	}
	if h.contentKey.IsDestroyed() {
		return nil, nil, secret.ErrDestroyed
	}
	return h.block, h.aead, nil
}
