package encryption

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// CleartextChunkSize is the cleartext payload of every full chunk in both schemes.
	CleartextChunkSize = 32 * 1024

	// ContentKeySize is the length of the per-file content key.
	ContentKeySize = 32

	// CTR+HMAC scheme
	CTRMACNonceSize     = 16
	CTRMACMACSize       = 32
	CTRMACReservedSize  = 8
	CTRMACHeaderSize    = CTRMACNonceSize + CTRMACReservedSize + ContentKeySize + CTRMACMACSize // 88
	CTRMACChunkOverhead = CTRMACNonceSize + CTRMACMACSize                                       // 48

	// GCM scheme
	GCMNonceSize     = 12
	GCMTagSize       = 16
	GCMSeedIDSize    = 4
	GCMHeaderSize    = len(GCMMagic) + GCMSeedIDSize + GCMNonceSize + ContentKeySize + GCMTagSize // 68
	GCMChunkOverhead = GCMNonceSize + GCMTagSize                                                   // 28

	// HeaderKeyContext is the HKDF info string for the GCM header key.
	HeaderKeyContext = "fileHeader"
)

// GCMMagic opens every GCM file header.
const GCMMagic = "uvf\x00"

var (
	ErrAuthenticationFailed = errors.New("authentication failed - data may be tampered")
	ErrInvalidArgument      = errors.New("invalid argument")
	ErrUnsupported          = errors.New("operation not supported by scheme")
	ErrClosed               = errors.New("stream is closed")
)

// Scheme selects one of the two wire formats. The set is closed.
type Scheme int

const (
	// SchemeCTRHMAC is AES-CTR with HMAC-SHA256, keyed by a perpetual masterkey.
	SchemeCTRHMAC Scheme = iota + 1
	// SchemeGCM is AES-GCM with a seed-framed header, keyed by a revolving masterkey.
	SchemeGCM
)

// String returns the persisted name of the scheme.
func (s Scheme) String() string {
	switch s {
	case SchemeCTRHMAC:
		return "SIV_CTRMAC"
	case SchemeGCM:
		return "UVF_GCM"
	default:
		return "UNKNOWN"
	}
}

// ParseScheme converts a persisted scheme name to a Scheme.
func ParseScheme(s string) (Scheme, error) {
	switch strings.ToUpper(s) {
	case "SIV_CTRMAC", "CTRMAC":
		return SchemeCTRHMAC, nil
	case "UVF_GCM", "GCM":
		return SchemeGCM, nil
	default:
		return 0, fmt.Errorf("%w: unknown scheme %q", ErrInvalidArgument, s)
	}
}

// HeaderCryptor creates and (de)serializes per-file headers.
type HeaderCryptor interface {
	// HeaderSize is the fixed encrypted header length.
	HeaderSize() int
	// Create draws a fresh nonce and content key.
	Create() (*FileHeader, error)
	// EncryptHeader returns exactly HeaderSize bytes.
	EncryptHeader(h *FileHeader) ([]byte, error)
	// DecryptHeader authenticates buf before returning the header.
	DecryptHeader(buf []byte) (*FileHeader, error)

	scheme() Scheme
}

// ContentCryptor encrypts and decrypts individual chunks. The chunk index
// is never stored; callers supply it and it is bound into the tag.
type ContentCryptor interface {
	CleartextChunkSize() int
	CiphertextChunkSize() int
	// ChunkOverhead is CiphertextChunkSize - CleartextChunkSize.
	ChunkOverhead() int

	// EncryptChunk requires 0 < len(cleartext) <= CleartextChunkSize.
	EncryptChunk(cleartext []byte, chunkIndex uint64, h *FileHeader) ([]byte, error)
	// EncryptChunkTo appends the ciphertext to dst and returns the extended slice.
	EncryptChunkTo(dst, cleartext []byte, chunkIndex uint64, h *FileHeader) ([]byte, error)

	// DecryptChunk requires ChunkOverhead <= len(ciphertext) <= CiphertextChunkSize.
	DecryptChunk(ciphertext []byte, chunkIndex uint64, h *FileHeader, authenticate bool) ([]byte, error)
	// DecryptChunkTo appends the cleartext to dst and returns the extended slice.
	DecryptChunkTo(dst, ciphertext []byte, chunkIndex uint64, h *FileHeader, authenticate bool) ([]byte, error)

	// CleartextSize converts a total ciphertext payload size (header excluded).
	CleartextSize(ciphertextSize int64) (int64, error)
	// CiphertextSize converts a total cleartext size (header excluded).
	CiphertextSize(cleartextSize int64) (int64, error)

	scheme() Scheme
}
