package encryption

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
)

const (
	// MinPadding is the lower bound of the maximum padding length.
	MinPadding = 4 * 1024
	// MaxPadding is the upper bound of the maximum padding length.
	MaxPadding = 16 * 1024 * 1024
	// paddingRatio targets roughly a tenth of the cleartext size.
	paddingRatio = 10
)

// paddingLength draws a padding length uniformly from
// [0, clamp(size/10, MinPadding, MaxPadding)).
func paddingLength(random io.Reader, size int64) (int64, error) {
	limit := size / paddingRatio
	if limit < MinPadding {
		limit = MinPadding
	}
	if limit > MaxPadding {
		limit = MaxPadding
	}
	n, err := rand.Int(random, big.NewInt(limit))
	if err != nil {
		return 0, fmt.Errorf("failed to draw padding length: %w", err)
	}
	return n.Int64(), nil
}

// writePadding feeds random bytes through the chunk path. They are counted
// in no size the reader will see; the header records the true size.
func (w *EncryptingWriter) writePadding() error {
	random := w.cryptor.random()
	n, err := paddingLength(random, w.written)
	if err != nil {
		return err
	}
	garbage := make([]byte, CleartextChunkSize)
	for n > 0 {
		m := int64(len(garbage))
		if n < m {
			m = n
		}
		if _, err := io.ReadFull(random, garbage[:m]); err != nil {
			return fmt.Errorf("failed to generate padding: %w", err)
		}
		if _, err := w.writeChunks(garbage[:m]); err != nil {
			return err
		}
		n -= m
	}
	return nil
}
