package vault

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/dd0wney/cluso-vaultcrypt/pkg/encryption"
	"github.com/dd0wney/cluso-vaultcrypt/pkg/logging"
	"github.com/dd0wney/cluso-vaultcrypt/pkg/metrics"
)

// Encrypt streams r into the object name and returns the cleartext bytes
// written. On any error the partial object is discarded.
func (v *Vault) Encrypt(ctx context.Context, name string, r io.Reader) (n int64, err error) {
	op := v.begin(OpEncrypt, name)
	defer func() { op.finish(err, logging.Bytes(n)) }()

	bw, err := v.backend.Create(ctx, name)
	if err != nil {
		return 0, err
	}
	var opts []encryption.WriterOption
	if v.legacyPadding {
		opts = append(opts, encryption.WithLegacyPadding())
	}
	ew, err := encryption.NewEncryptingWriter(writeSeeker{bw}, v.cryptor, opts...)
	if err != nil {
		bw.Abort()
		return 0, err
	}

	n, err = io.Copy(ew, contextReader{ctx: ctx, r: r})
	if err != nil {
		ew.Close()
		bw.Abort()
		return n, fmt.Errorf("failed to encrypt %s: %w", name, err)
	}
	if err = ew.Close(); err != nil {
		bw.Abort()
		return n, fmt.Errorf("failed to finish %s: %w", name, err)
	}
	if err = bw.Close(); err != nil {
		return n, fmt.Errorf("failed to store %s: %w", name, err)
	}

	v.metrics.RecordChunks(metrics.DirectionEncrypt, v.cryptor.Scheme().String(), ew.ChunksWritten())
	v.metrics.RecordBytes(metrics.DirectionEncrypt, n)
	return n, nil
}

// Decrypt writes the cleartext of name to w. Cleartext of a chunk reaches
// w only after the chunk authenticated, but earlier chunks may already have
// been written when a later one fails.
func (v *Vault) Decrypt(ctx context.Context, name string, w io.Writer, opts ...encryption.ReaderOption) (n int64, err error) {
	op := v.begin(OpDecrypt, name)
	defer func() { op.finish(err, logging.Bytes(n)) }()

	obj, err := v.backend.Open(ctx, name)
	if err != nil {
		return 0, err
	}
	defer obj.Close()

	src := contextReader{ctx: ctx, r: io.NewSectionReader(obj, 0, obj.Size())}
	dr, err := encryption.NewDecryptingReader(src, v.cryptor, opts...)
	if err != nil {
		return 0, err
	}
	defer dr.Close()

	if _, err = dr.Header(); err != nil {
		op.authFailure(err, metrics.StageHeader)
		return 0, fmt.Errorf("failed to open %s: %w", name, err)
	}
	n, err = dr.WriteTo(w)
	v.metrics.RecordChunks(metrics.DirectionDecrypt, v.cryptor.Scheme().String(), dr.ChunksRead())
	v.metrics.RecordBytes(metrics.DirectionDecrypt, n)
	if err != nil {
		op.authFailure(err, metrics.StageChunk)
		return n, fmt.Errorf("failed to decrypt %s: %w", name, err)
	}
	return n, nil
}

// ReadRange returns up to length cleartext bytes of name starting at off,
// decrypting only the chunks the range covers. Reading at or past the end
// returns an empty slice.
func (v *Vault) ReadRange(ctx context.Context, name string, off, length int64) (out []byte, err error) {
	op := v.begin(OpReadRange, name)
	defer func() {
		op.finish(err, logging.Int64("offset", off), logging.Bytes(int64(len(out))))
	}()

	if off < 0 || length < 0 {
		return nil, fmt.Errorf("%w: range %d+%d", encryption.ErrInvalidArgument, off, length)
	}
	obj, err := v.backend.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer obj.Close()

	ra, err := encryption.NewDecryptingReaderAt(contextReaderAt{ctx: ctx, r: obj}, obj.Size(), v.cryptor)
	if err != nil {
		op.authFailure(err, metrics.StageHeader)
		return nil, fmt.Errorf("failed to open %s: %w", name, err)
	}
	defer ra.Close()

	if off >= ra.Size() {
		return []byte{}, nil
	}
	if rest := ra.Size() - off; length > rest {
		length = rest
	}
	buf := make([]byte, length)
	m, err := ra.ReadAt(buf, off)
	v.metrics.RecordChunks(metrics.DirectionDecrypt, v.cryptor.Scheme().String(), ra.ChunksRead())
	v.metrics.RecordBytes(metrics.DirectionDecrypt, int64(m))
	if err != nil && !(errors.Is(err, io.EOF) && m == len(buf)) {
		op.authFailure(err, metrics.StageChunk)
		return nil, fmt.Errorf("failed to read %s at %d: %w", name, off, err)
	}
	return buf[:m], nil
}

// Stat returns the cleartext size implied by the ciphertext size. Files
// written with legacy padding report their padded size; Info reads the
// recorded size instead.
func (v *Vault) Stat(ctx context.Context, name string) (size int64, err error) {
	op := v.begin(OpStat, name)
	defer func() { op.finish(err, logging.Bytes(size)) }()

	obj, err := v.backend.Open(ctx, name)
	if err != nil {
		return 0, err
	}
	defer obj.Close()
	return v.cryptor.CleartextFileSize(obj.Size())
}

// Info authenticates the header of name and describes the file.
func (v *Vault) Info(ctx context.Context, name string) (info FileInfo, err error) {
	op := v.begin(OpInfo, name)
	defer func() { op.finish(err) }()

	obj, err := v.backend.Open(ctx, name)
	if err != nil {
		return FileInfo{}, err
	}
	defer obj.Close()

	ra, err := encryption.NewDecryptingReaderAt(contextReaderAt{ctx: ctx, r: obj}, obj.Size(), v.cryptor)
	if err != nil {
		op.authFailure(err, metrics.StageHeader)
		return FileInfo{}, fmt.Errorf("failed to open %s: %w", name, err)
	}
	defer ra.Close()

	h := ra.Header()
	_, padded := h.CleartextSize()
	hs := int64(v.cryptor.Header().HeaderSize())
	ctChunk := int64(v.cryptor.Content().CiphertextChunkSize())
	info = FileInfo{
		Name:           name,
		Scheme:         h.Scheme().String(),
		CiphertextSize: obj.Size(),
		CleartextSize:  ra.Size(),
		Chunks:         (obj.Size() - hs + ctChunk - 1) / ctChunk,
		Padded:         padded,
	}
	if h.Scheme() == encryption.SchemeGCM {
		info.Revision = h.SeedID()
	}
	return info, nil
}

// Delete removes the object name.
func (v *Vault) Delete(ctx context.Context, name string) (err error) {
	op := v.begin(OpDelete, name)
	defer func() { op.finish(err) }()
	return v.backend.Delete(ctx, name)
}
