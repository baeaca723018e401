package masterkey

import (
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/dd0wney/cluso-vaultcrypt/pkg/kdf"
	"github.com/dd0wney/cluso-vaultcrypt/pkg/secret"
)

// KDFSaltSize is the length of the HKDF salt shared by all seeds.
const KDFSaltSize = 32

// RevolvingMasterkey holds a family of seeds indexed by revision. New data is
// encrypted under the current revision; older revisions stay available for
// decryption until they are removed from the family.
type RevolvingMasterkey struct {
	mu        sync.RWMutex
	seeds     map[int32][]byte
	kdfSalt   []byte
	first     int32
	current   int32
	destroyed bool
}

// GenerateRevolving creates a masterkey with a single seed at revision 1.
func GenerateRevolving(rand io.Reader) (*RevolvingMasterkey, error) {
	seed := make([]byte, SubkeySize)
	if _, err := io.ReadFull(rand, seed); err != nil {
		return nil, fmt.Errorf("failed to generate seed: %w", err)
	}
	salt := make([]byte, KDFSaltSize)
	if _, err := io.ReadFull(rand, salt); err != nil {
		secret.Wipe(seed)
		return nil, fmt.Errorf("failed to generate kdf salt: %w", err)
	}
	return &RevolvingMasterkey{
		seeds:   map[int32][]byte{1: seed},
		kdfSalt: salt,
		first:   1,
		current: 1,
	}, nil
}

// NewRevolving builds a masterkey from explicit seeds. The inputs are copied.
func NewRevolving(seeds map[int32][]byte, kdfSalt []byte, first, current int32) (*RevolvingMasterkey, error) {
	if len(kdfSalt) != KDFSaltSize {
		return nil, fmt.Errorf("%w: kdf salt must be %d bytes, got %d", ErrInvalidKeyLength, KDFSaltSize, len(kdfSalt))
	}
	if _, ok := seeds[first]; !ok {
		return nil, fmt.Errorf("%w: first revision %d", ErrUnknownRevision, first)
	}
	if _, ok := seeds[current]; !ok {
		return nil, fmt.Errorf("%w: current revision %d", ErrUnknownRevision, current)
	}

	owned := make(map[int32][]byte, len(seeds))
	for rev, seed := range seeds {
		if len(seed) != SubkeySize {
			for _, s := range owned {
				secret.Wipe(s)
			}
			return nil, fmt.Errorf("%w: seed %d must be %d bytes, got %d", ErrInvalidKeyLength, rev, SubkeySize, len(seed))
		}
		owned[rev] = append([]byte(nil), seed...)
	}
	return &RevolvingMasterkey{
		seeds:   owned,
		kdfSalt: append([]byte(nil), kdfSalt...),
		first:   first,
		current: current,
	}, nil
}

// SubKey derives length bytes bound to the given revision and context:
// HKDF-SHA512(salt, seed[revision], context).
func (m *RevolvingMasterkey) SubKey(revision int32, length int, context, algorithm string) (*secret.DestroyableKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.destroyed {
		return nil, secret.ErrDestroyed
	}
	seed, ok := m.seeds[revision]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownRevision, revision)
	}
	key, err := kdf.HKDFSHA512(m.kdfSalt, seed, []byte(context), length)
	if err != nil {
		return nil, err
	}
	return secret.Wrap(key, algorithm)
}

// Rotate adds a fresh seed at current+1 and makes it current. It returns the
// new revision.
func (m *RevolvingMasterkey) Rotate(rand io.Reader) (int32, error) {
	seed := make([]byte, SubkeySize)
	if _, err := io.ReadFull(rand, seed); err != nil {
		return 0, fmt.Errorf("failed to generate seed: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.destroyed {
		secret.Wipe(seed)
		return 0, secret.ErrDestroyed
	}
	next := m.current + 1
	if _, exists := m.seeds[next]; exists {
		secret.Wipe(seed)
		return 0, fmt.Errorf("seed revision %d already present", next)
	}
	m.seeds[next] = seed
	m.current = next
	return next, nil
}

// FirstRevision returns the revision of the initial seed.
func (m *RevolvingMasterkey) FirstRevision() (int32, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.destroyed {
		return 0, secret.ErrDestroyed
	}
	return m.first, nil
}

// CurrentRevision returns the revision used for new encryptions.
func (m *RevolvingMasterkey) CurrentRevision() (int32, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.destroyed {
		return 0, secret.ErrDestroyed
	}
	return m.current, nil
}

// HasRevision reports whether a seed exists for revision.
func (m *RevolvingMasterkey) HasRevision(revision int32) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.seeds[revision]
	return ok && !m.destroyed
}

// Revisions lists the known revisions in ascending order.
func (m *RevolvingMasterkey) Revisions() ([]int32, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.destroyed {
		return nil, secret.ErrDestroyed
	}
	revs := make([]int32, 0, len(m.seeds))
	for rev := range m.seeds {
		revs = append(revs, rev)
	}
	sort.Slice(revs, func(i, j int) bool { return revs[i] < revs[j] })
	return revs, nil
}

// Copy returns an independent masterkey with the same seeds.
func (m *RevolvingMasterkey) Copy() (*RevolvingMasterkey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.destroyed {
		return nil, secret.ErrDestroyed
	}
	return NewRevolving(m.seeds, m.kdfSalt, m.first, m.current)
}

// Destroy wipes every seed and the kdf salt.
func (m *RevolvingMasterkey) Destroy() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.destroyed {
		return
	}
	for _, seed := range m.seeds {
		secret.Wipe(seed)
	}
	secret.Wipe(m.kdfSalt)
	m.destroyed = true
}

// IsDestroyed reports whether Destroy has been called.
func (m *RevolvingMasterkey) IsDestroyed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.destroyed
}
