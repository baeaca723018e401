package encryption

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
)

// DecryptingReaderAt serves random access into an encrypted file by
// decrypting only the chunks a read touches. It is safe for concurrent use.
type DecryptingReaderAt struct {
	src     io.ReaderAt
	size    int64
	cryptor *Cryptor

	mu        sync.RWMutex
	header    *FileHeader
	cleartext int64
	closed    bool
	chunks    atomic.Uint64
}

// NewDecryptingReaderAt reads and authenticates the header of the size byte
// file behind src.
func NewDecryptingReaderAt(src io.ReaderAt, size int64, c *Cryptor) (*DecryptingReaderAt, error) {
	hs := c.Header().HeaderSize()
	plain, err := c.CleartextFileSize(size)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, hs)
	if n, err := src.ReadAt(buf, 0); n < hs {
		if err == nil || errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	h, err := c.Header().DecryptHeader(buf)
	if err != nil {
		return nil, err
	}
	if recorded, ok := h.CleartextSize(); ok {
		if recorded > plain {
			h.Destroy()
			return nil, errTruncated(recorded - plain)
		}
		plain = recorded
	}
	return &DecryptingReaderAt{
		src:       src,
		size:      size,
		cryptor:   c,
		header:    h,
		cleartext: plain,
	}, nil
}

// Header returns the file header.
func (r *DecryptingReaderAt) Header() *FileHeader {
	return r.header
}

// Size returns the cleartext size.
func (r *DecryptingReaderAt) Size() int64 {
	return r.cleartext
}

// ChunksRead returns the number of chunks decrypted by all ReadAt calls.
func (r *DecryptingReaderAt) ChunksRead() uint64 {
	return r.chunks.Load()
}

// ReadAt implements io.ReaderAt over the cleartext.
func (r *DecryptingReaderAt) ReadAt(p []byte, off int64) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return 0, ErrClosed
	}
	if off < 0 {
		return 0, fmt.Errorf("%w: negative offset %d", ErrInvalidArgument, off)
	}
	if off >= r.cleartext {
		return 0, io.EOF
	}

	content := r.cryptor.Content()
	payload := int64(content.CleartextChunkSize())
	ctChunk := int64(content.CiphertextChunkSize())
	hs := int64(r.cryptor.Header().HeaderSize())

	ct := make([]byte, ctChunk)
	pt := make([]byte, 0, payload)
	n := 0
	for n < len(p) && off < r.cleartext {
		idx := off / payload
		start := hs + idx*ctChunk
		end := start + ctChunk
		if end > r.size {
			end = r.size
		}
		m, err := r.src.ReadAt(ct[:end-start], start)
		if m < int(end-start) {
			if err == nil || errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return n, fmt.Errorf("failed to read chunk %d: %w", idx, err)
		}

		chunk, err := content.DecryptChunkTo(pt[:0], ct[:m], uint64(idx), r.header, true)
		if err != nil {
			return n, err
		}
		r.chunks.Add(1)
		within := off - idx*payload
		limit := int64(len(chunk))
		if rest := r.cleartext - idx*payload; rest < limit {
			limit = rest
		}
		c := copy(p[n:], chunk[within:limit])
		n += c
		off += int64(c)
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Close destroys the header. src is closed too if it is an io.Closer.
func (r *DecryptingReaderAt) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	r.header.Destroy()
	if c, ok := r.src.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
