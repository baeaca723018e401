package masterkey

import (
	"context"
	"fmt"
	"sync"
)

// StaticLoader serves masterkeys held in memory.
type StaticLoader struct {
	mu   sync.RWMutex
	keys map[string]Masterkey
}

// NewStaticLoader returns an empty loader.
func NewStaticLoader() *StaticLoader {
	return &StaticLoader{keys: make(map[string]Masterkey)}
}

// Add registers key under id, replacing any previous entry.
func (l *StaticLoader) Add(id string, key Masterkey) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.keys[id] = key
}

// LoadKey implements Loader.
func (l *StaticLoader) LoadKey(_ context.Context, id string) (Masterkey, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	key, ok := l.keys[id]
	if !ok {
		return nil, fmt.Errorf("%w: no key with id %q", ErrKeyLoadingFailed, id)
	}
	if key.IsDestroyed() {
		return nil, fmt.Errorf("%w: key %q has been destroyed", ErrKeyLoadingFailed, id)
	}
	return key, nil
}

var _ Loader = (*StaticLoader)(nil)
