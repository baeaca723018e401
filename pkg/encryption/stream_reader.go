package encryption

import (
	"errors"
	"fmt"
	"io"
)

// ReaderOption configures a DecryptingReader.
type ReaderOption func(*DecryptingReader)

// WithSkipAuthentication decrypts chunks without checking their MAC. It is
// meant for salvaging damaged files and only SchemeCTRHMAC supports it.
func WithSkipAuthentication() ReaderOption {
	return func(r *DecryptingReader) {
		r.authenticate = false
	}
}

// DecryptingReader reverses EncryptingWriter. Cleartext of a chunk is only
// served after the whole chunk has been authenticated. It is not safe for
// concurrent use.
type DecryptingReader struct {
	src          io.Reader
	cryptor      *Cryptor
	header       *FileHeader
	authenticate bool

	state      streamState
	ct         []byte
	pt         []byte
	pos        int
	chunkIndex uint64
	// remaining counts cleartext bytes still to serve when the header
	// records the size; -1 means unknown.
	remaining int64
	err       error
}

// NewDecryptingReader wraps src. The header is read on the first Read.
func NewDecryptingReader(src io.Reader, c *Cryptor, opts ...ReaderOption) (*DecryptingReader, error) {
	r := &DecryptingReader{
		src:          src,
		cryptor:      c,
		authenticate: true,
		remaining:    -1,
	}
	for _, opt := range opts {
		opt(r)
	}
	if !r.authenticate && c.Scheme() != SchemeCTRHMAC {
		return nil, fmt.Errorf("%w: %s always authenticates chunks", ErrUnsupported, c.Scheme())
	}
	r.ct = make([]byte, c.Content().CiphertextChunkSize())
	r.pt = make([]byte, 0, c.Content().CleartextChunkSize())
	return r, nil
}

// Header returns the decrypted header, reading it first if necessary.
func (r *DecryptingReader) Header() (*FileHeader, error) {
	if err := r.ensureHeader(); err != nil {
		return nil, err
	}
	return r.header, nil
}

// ChunksRead returns the number of chunks decrypted so far.
func (r *DecryptingReader) ChunksRead() uint64 {
	return r.chunkIndex
}

// Read serves cleartext from the current chunk, pulling the next one as needed.
func (r *DecryptingReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, r.err
	}
	for r.pos >= len(r.pt) {
		if err := r.advance(); err != nil {
			return 0, err
		}
	}
	n := copy(p, r.pt[r.pos:])
	r.pos += n
	return n, nil
}

// WriteTo implements io.WriterTo so io.Copy moves whole chunks.
func (r *DecryptingReader) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for {
		if r.pos < len(r.pt) {
			n, err := w.Write(r.pt[r.pos:])
			r.pos += n
			total += int64(n)
			if err != nil {
				return total, err
			}
			continue
		}
		if err := r.advance(); err != nil {
			if errors.Is(err, io.EOF) {
				return total, nil
			}
			return total, err
		}
	}
}

// Close destroys the header and closes src if it is an io.Closer.
func (r *DecryptingReader) Close() error {
	if r.state == stateFinished {
		return nil
	}
	r.state = stateFinished
	if r.err == nil {
		r.err = ErrClosed
	}
	r.pt = r.pt[:0]
	r.pos = 0
	if r.header != nil {
		r.header.Destroy()
	}
	if c, ok := r.src.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (r *DecryptingReader) ensureHeader() error {
	if r.err != nil {
		return r.err
	}
	if r.state != statePending {
		return nil
	}
	buf := make([]byte, r.cryptor.Header().HeaderSize())
	if _, err := io.ReadFull(r.src, buf); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return r.fail(fmt.Errorf("failed to read header: %w", err))
	}
	h, err := r.cryptor.Header().DecryptHeader(buf)
	if err != nil {
		return r.fail(err)
	}
	r.header = h
	if size, ok := h.CleartextSize(); ok {
		r.remaining = size
	}
	r.state = stateStreaming
	return nil
}

// advance decrypts the next chunk into pt. It returns io.EOF once the input
// or the recorded size is exhausted.
func (r *DecryptingReader) advance() error {
	if err := r.ensureHeader(); err != nil {
		return err
	}
	if r.state == stateEOF {
		return io.EOF
	}
	if r.remaining == 0 {
		r.state = stateEOF
		return io.EOF
	}

	n, err := io.ReadFull(r.src, r.ct)
	switch {
	case n == 0 && errors.Is(err, io.EOF):
		if r.remaining > 0 && r.authenticate {
			return r.fail(errTruncated(r.remaining))
		}
		r.state = stateEOF
		return io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF):
		// final short chunk
	case err != nil:
		return r.fail(fmt.Errorf("failed to read chunk %d: %w", r.chunkIndex, err))
	}

	pt, err := r.cryptor.Content().DecryptChunkTo(r.pt[:0], r.ct[:n], r.chunkIndex, r.header, r.authenticate)
	if err != nil {
		return r.fail(err)
	}
	if r.remaining >= 0 {
		if int64(len(pt)) > r.remaining {
			pt = pt[:r.remaining]
		}
		r.remaining -= int64(len(pt))
	}
	r.pt = pt
	r.pos = 0
	r.chunkIndex++
	return nil
}

// errTruncated reports a padded file that ends before its recorded size.
func errTruncated(missing int64) error {
	return fmt.Errorf("%w: %w: file ends %d bytes before its recorded size", ErrAuthenticationFailed, io.ErrUnexpectedEOF, missing)
}

func (r *DecryptingReader) fail(err error) error {
	if r.err == nil {
		r.err = err
	}
	return err
}
