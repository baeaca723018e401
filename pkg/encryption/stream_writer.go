package encryption

import (
	"errors"
	"fmt"
	"io"
)

type streamState int

const (
	statePending streamState = iota
	stateStreaming
	stateFinished
	stateEOF
)

// WriterOption configures an EncryptingWriter.
type WriterOption func(*EncryptingWriter)

// WithLegacyPadding appends random padding on Close and records the true
// cleartext size in the header. Only SchemeCTRHMAC supports it, and the
// destination must be an io.WriteSeeker so the header can be rewritten.
func WithLegacyPadding() WriterOption {
	return func(w *EncryptingWriter) {
		w.padding = true
	}
}

// WithHeader encrypts with an existing header instead of creating one. The
// writer takes ownership and destroys it on Close.
func WithHeader(h *FileHeader) WriterOption {
	return func(w *EncryptingWriter) {
		w.header = h
	}
}

// EncryptingWriter turns a cleartext byte stream into header ‖ chunk ‖ chunk ...
// It is not safe for concurrent use.
type EncryptingWriter struct {
	dst     io.Writer
	cryptor *Cryptor
	header  *FileHeader
	padding bool

	state        streamState
	headerOffset int64
	buf          []byte
	out          []byte
	chunkIndex   uint64
	written      int64
	err          error
}

// NewEncryptingWriter wraps dst. Nothing is written until the first Write or Close.
func NewEncryptingWriter(dst io.Writer, c *Cryptor, opts ...WriterOption) (*EncryptingWriter, error) {
	w := &EncryptingWriter{
		dst:     dst,
		cryptor: c,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.padding {
		if c.Scheme() != SchemeCTRHMAC {
			return nil, fmt.Errorf("%w: legacy padding requires %s", ErrUnsupported, SchemeCTRHMAC)
		}
		if _, ok := dst.(io.WriteSeeker); !ok {
			return nil, fmt.Errorf("%w: legacy padding requires a seekable destination", ErrUnsupported)
		}
	}
	if w.header != nil && w.header.Scheme() != c.Scheme() {
		return nil, fmt.Errorf("%w: header does not belong to %s", ErrInvalidArgument, c.Scheme())
	}
	w.buf = make([]byte, 0, c.Content().CleartextChunkSize())
	w.out = make([]byte, 0, c.Content().CiphertextChunkSize())
	return w, nil
}

// Header returns the file header once it has been written.
func (w *EncryptingWriter) Header() *FileHeader {
	return w.header
}

// Written returns the number of cleartext bytes accepted so far.
func (w *EncryptingWriter) Written() int64 {
	return w.written
}

// ChunksWritten returns the number of chunks emitted so far.
func (w *EncryptingWriter) ChunksWritten() uint64 {
	return w.chunkIndex
}

// Write buffers p and emits every chunk that fills up.
func (w *EncryptingWriter) Write(p []byte) (int, error) {
	if w.state == stateFinished {
		return 0, ErrClosed
	}
	if w.err != nil {
		return 0, w.err
	}
	if err := w.ensureHeader(); err != nil {
		return 0, err
	}

	n, err := w.writeChunks(p)
	w.written += int64(n)
	return n, err
}

// ReadFrom implements io.ReaderFrom so io.Copy fills whole chunks directly.
func (w *EncryptingWriter) ReadFrom(r io.Reader) (int64, error) {
	if w.state == stateFinished {
		return 0, ErrClosed
	}
	if w.err != nil {
		return 0, w.err
	}
	if err := w.ensureHeader(); err != nil {
		return 0, err
	}

	var total int64
	for {
		free := w.buf[len(w.buf):cap(w.buf)]
		n, err := r.Read(free)
		w.buf = w.buf[:len(w.buf)+n]
		total += int64(n)
		w.written += int64(n)
		if len(w.buf) == cap(w.buf) {
			if ferr := w.flushChunk(); ferr != nil {
				return total, ferr
			}
		}
		if errors.Is(err, io.EOF) {
			return total, nil
		}
		if err != nil {
			return total, err
		}
	}
}

// Close writes the last partial chunk, applies padding if configured,
// destroys the header, and closes dst if it is an io.Closer. Cancelling a
// stream is done by calling Close as well.
func (w *EncryptingWriter) Close() error {
	if w.state == stateFinished {
		return w.err
	}
	err := w.finish()
	if w.header != nil {
		w.header.Destroy()
	}
	if c, ok := w.dst.(io.Closer); ok {
		if cerr := c.Close(); err == nil {
			err = cerr
		}
	}
	w.state = stateFinished
	if w.err == nil {
		w.err = err
	}
	return err
}

func (w *EncryptingWriter) finish() error {
	if w.err != nil {
		return w.err
	}
	if err := w.ensureHeader(); err != nil {
		return err
	}
	if w.padding {
		if err := w.writePadding(); err != nil {
			return w.fail(err)
		}
	}
	if len(w.buf) > 0 {
		if err := w.flushChunk(); err != nil {
			return err
		}
	}
	if w.padding {
		return w.rewriteHeader()
	}
	return nil
}

func (w *EncryptingWriter) ensureHeader() error {
	if w.state != statePending {
		return nil
	}
	if w.header == nil {
		h, err := w.cryptor.Header().Create()
		if err != nil {
			return w.fail(err)
		}
		w.header = h
	}
	if w.padding {
		off, err := w.dst.(io.WriteSeeker).Seek(0, io.SeekCurrent)
		if err != nil {
			return w.fail(fmt.Errorf("failed to locate header: %w", err))
		}
		w.headerOffset = off
	}
	if err := w.writeHeader(); err != nil {
		return err
	}
	w.state = stateStreaming
	return nil
}

func (w *EncryptingWriter) writeHeader() error {
	enc, err := w.cryptor.Header().EncryptHeader(w.header)
	if err != nil {
		return w.fail(err)
	}
	if _, err := w.dst.Write(enc); err != nil {
		return w.fail(fmt.Errorf("failed to write header: %w", err))
	}
	return nil
}

// rewriteHeader stores the true cleartext size in the header in place.
func (w *EncryptingWriter) rewriteHeader() error {
	if err := w.header.SetCleartextSize(w.written); err != nil {
		return w.fail(err)
	}
	ws := w.dst.(io.WriteSeeker)
	end, err := ws.Seek(0, io.SeekCurrent)
	if err != nil {
		return w.fail(fmt.Errorf("failed to locate end of stream: %w", err))
	}
	if _, err := ws.Seek(w.headerOffset, io.SeekStart); err != nil {
		return w.fail(fmt.Errorf("failed to seek to header: %w", err))
	}
	if err := w.writeHeader(); err != nil {
		return err
	}
	if _, err := ws.Seek(end, io.SeekStart); err != nil {
		return w.fail(fmt.Errorf("failed to seek to end of stream: %w", err))
	}
	return nil
}

func (w *EncryptingWriter) writeChunks(p []byte) (int, error) {
	n := 0
	for len(p) > 0 {
		m := copy(w.buf[len(w.buf):cap(w.buf)], p)
		w.buf = w.buf[:len(w.buf)+m]
		p = p[m:]
		n += m
		if len(w.buf) == cap(w.buf) {
			if err := w.flushChunk(); err != nil {
				return n, err
			}
		}
	}
	return n, nil
}

func (w *EncryptingWriter) flushChunk() error {
	out, err := w.cryptor.Content().EncryptChunkTo(w.out[:0], w.buf, w.chunkIndex, w.header)
	if err != nil {
		return w.fail(err)
	}
	if _, err := w.dst.Write(out); err != nil {
		return w.fail(fmt.Errorf("failed to write chunk %d: %w", w.chunkIndex, err))
	}
	w.chunkIndex++
	w.buf = w.buf[:0]
	return nil
}

// fail makes err sticky so a broken stream cannot emit further chunks.
func (w *EncryptingWriter) fail(err error) error {
	if w.err == nil {
		w.err = err
	}
	return err
}
