// Package backend stores ciphertext objects. Backends never see cleartext.
package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
)

var (
	ErrNotFound    = errors.New("object not found")
	ErrInvalidName = errors.New("invalid object name")
)

// Object is an opened ciphertext object with random access.
type Object interface {
	io.ReaderAt
	io.Closer
	Size() int64
}

// Writer receives a new object. Nothing is visible under the final name
// until Close succeeds; Abort discards the partial object instead. Writers
// are seekable so the legacy padding mode can rewrite the header.
type Writer interface {
	io.WriteSeeker
	io.Closer
	Abort() error
}

// Backend is flat storage addressed by slash-separated names.
type Backend interface {
	Create(ctx context.Context, name string) (Writer, error)
	Open(ctx context.Context, name string) (Object, error)
	Delete(ctx context.Context, name string) error
	// List returns the names starting with prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
}

// CleanName validates an object name and returns its canonical form.
// Names are relative, slash-separated, and may not escape the root.
func CleanName(name string) (string, error) {
	if name == "" || strings.HasPrefix(name, "/") || strings.ContainsRune(name, '\\') {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	clean := path.Clean(name)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	for _, part := range strings.Split(clean, "/") {
		if strings.HasPrefix(part, ".") {
			return "", fmt.Errorf("%w: %q has a hidden path element", ErrInvalidName, name)
		}
	}
	return clean, nil
}
