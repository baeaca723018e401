// Package keystore keeps masterkeys on disk, each wrapped under a
// passphrase-derived key.
package keystore

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dd0wney/cluso-vaultcrypt/pkg/audit"
	"github.com/dd0wney/cluso-vaultcrypt/pkg/kdf"
	"github.com/dd0wney/cluso-vaultcrypt/pkg/logging"
	"github.com/dd0wney/cluso-vaultcrypt/pkg/masterkey"
)

// Store is a directory of wrapped masterkeys. It implements masterkey.Loader.
type Store struct {
	cfg    Config
	logger logging.Logger

	mu   sync.RWMutex
	keys map[string]*keyFile
}

var _ masterkey.Loader = (*Store)(nil)

// Open loads every key file in cfg.Dir, creating the directory if needed.
func Open(cfg Config) (*Store, error) {
	if cfg.Dir == "" {
		return nil, errors.New("key directory is required")
	}
	if cfg.Scrypt == (kdf.ScryptParams{}) {
		cfg.Scrypt = kdf.DefaultScryptParams()
	}
	if err := kdf.CheckScryptParams(cfg.Scrypt.CostParam, cfg.Scrypt.BlockSize); err != nil {
		return nil, err
	}
	if cfg.Random == nil {
		cfg.Random = rand.Reader
	}
	if cfg.now == nil {
		cfg.now = time.Now
	}
	if cfg.Audit == nil {
		cfg.Audit = audit.NopRecorder{}
	}
	if err := os.MkdirAll(cfg.Dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create key directory: %w", err)
	}

	s := &Store{
		cfg:    cfg,
		logger: logging.OrNop(cfg.Logger).With(logging.Component("keystore")),
		keys:   make(map[string]*keyFile),
	}
	if err := s.loadAll(); err != nil {
		return nil, fmt.Errorf("failed to load keys: %w", err)
	}
	s.logger.Debug("keystore opened", logging.String("dir", cfg.Dir), logging.Int("keys", len(s.keys)))
	return s, nil
}

// Create generates a new masterkey of kind, wraps it under passphrase, and
// persists it.
func (s *Store) Create(ctx context.Context, kind Kind, passphrase string) (Metadata, error) {
	if err := ctx.Err(); err != nil {
		return Metadata{}, err
	}
	if passphrase == "" {
		return Metadata{}, ErrEmptyPassphrase
	}

	mk, err := s.generate(kind)
	if err != nil {
		return Metadata{}, err
	}
	defer mk.Destroy()

	now := s.cfg.now().UTC()
	f := &keyFile{
		Version:   fileVersion,
		ID:        uuid.NewString(),
		Kind:      kind,
		CreatedAt: now,
		Status:    StatusActive,
	}
	if rk, ok := mk.(*masterkey.RevolvingMasterkey); ok {
		if f.Revision, err = rk.CurrentRevision(); err != nil {
			return Metadata{}, err
		}
	}
	if err := s.wrap(f, mk, passphrase); err != nil {
		return Metadata{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.save(f); err != nil {
		return Metadata{}, err
	}
	s.keys[f.ID] = f
	s.logger.Info("key created", logging.KeyID(f.ID), logging.String("kind", string(kind)))
	s.recordAudit(audit.ActionCreate, f.ID, f.Revision, nil)
	return f.metadata(), nil
}

func (s *Store) generate(kind Kind) (masterkey.Masterkey, error) {
	switch kind {
	case KindPerpetual:
		return masterkey.Generate(s.cfg.Random)
	case KindRevolving:
		return masterkey.GenerateRevolving(s.cfg.Random)
	default:
		return nil, fmt.Errorf("unknown key kind %q", kind)
	}
}

// Unlock unwraps key id with passphrase. The caller owns the returned
// masterkey and must destroy it.
func (s *Store) Unlock(ctx context.Context, id, passphrase string) (masterkey.Masterkey, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	f, err := s.lookup(id)
	if err == nil {
		c := *f
		f = &c
	}
	s.mu.RUnlock()
	if err != nil {
		err = fmt.Errorf("%w: %w", masterkey.ErrKeyLoadingFailed, err)
		s.recordLoad(err)
		return nil, err
	}
	if f.Status == StatusRevoked {
		err := fmt.Errorf("%w: %w: %s", masterkey.ErrKeyLoadingFailed, ErrKeyRevoked, id)
		s.recordLoad(err)
		s.recordAudit(audit.ActionUnlock, id, f.Revision, err)
		return nil, err
	}

	mk, err := s.unwrap(f, passphrase)
	s.recordLoad(err)
	s.recordAudit(audit.ActionUnlock, id, f.Revision, err)
	if err != nil {
		s.logger.Warn("key unlock failed", logging.KeyID(id), logging.Error(err))
		return nil, err
	}
	return mk, nil
}

// LoadKey unlocks id with the passphrase from Config.Passphrase.
func (s *Store) LoadKey(ctx context.Context, id string) (masterkey.Masterkey, error) {
	if s.cfg.Passphrase == nil {
		return nil, fmt.Errorf("%w: %w", masterkey.ErrKeyLoadingFailed, ErrNoPassphraseFunc)
	}
	passphrase, err := s.cfg.Passphrase(id)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to obtain passphrase: %w", masterkey.ErrKeyLoadingFailed, err)
	}
	return s.Unlock(ctx, id, passphrase)
}

// Get returns the metadata of one key.
func (s *Store) Get(id string) (Metadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, err := s.lookup(id)
	if err != nil {
		return Metadata{}, err
	}
	return f.metadata(), nil
}

// List returns every key, oldest first.
func (s *Store) List() []Metadata {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Metadata, 0, len(s.keys))
	for _, f := range s.keys {
		out = append(out, f.metadata())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ExportMetadata renders List as indented JSON for auditing.
func (s *Store) ExportMetadata() ([]byte, error) {
	data, err := json.MarshalIndent(s.List(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return data, nil
}

// Close drops the in-memory index. Key files are untouched.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = nil
	return nil
}

func (s *Store) lookup(id string) (*keyFile, error) {
	if s.keys == nil {
		return nil, errors.New("keystore is closed")
	}
	f, ok := s.keys[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, id)
	}
	return f, nil
}

// recordAudit records a lifecycle event. Trail failures are logged, not
// returned.
func (s *Store) recordAudit(action audit.Action, id string, revision int32, err error) {
	event := &audit.Event{
		Timestamp: s.cfg.now().UTC(),
		Action:    action,
		KeyID:     id,
		Revision:  revision,
		Status:    audit.StatusSuccess,
		Severity:  audit.SeverityInfo,
	}
	switch {
	case err != nil:
		event.Status = audit.StatusFailure
		event.Severity = audit.SeverityWarning
		event.ErrorMessage = err.Error()
	case action == audit.ActionRevoke:
		event.Severity = audit.SeverityWarning
	case action == audit.ActionDelete:
		event.Severity = audit.SeverityCritical
	}
	if rerr := s.cfg.Audit.Record(event); rerr != nil {
		s.logger.Error("audit record failed", logging.KeyID(id), logging.String("action", string(action)), logging.Error(rerr))
	}
}

func (s *Store) recordLoad(err error) {
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.RecordKeyLoad(err)
	}
}
