package keystore

import (
	"context"
	"fmt"
	"time"

	"github.com/dd0wney/cluso-vaultcrypt/pkg/audit"
	"github.com/dd0wney/cluso-vaultcrypt/pkg/logging"
	"github.com/dd0wney/cluso-vaultcrypt/pkg/masterkey"
)

// Rotate adds a seed revision to a revolving key and rewraps it. Files
// encrypted under earlier revisions stay readable. It returns the new
// current revision.
func (s *Store) Rotate(ctx context.Context, id, passphrase string) (int32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, mk, err := s.unlockLocked(ctx, id, passphrase)
	if err != nil {
		s.recordAudit(audit.ActionRotate, id, 0, err)
		return 0, err
	}
	defer mk.Destroy()

	rk, ok := mk.(*masterkey.RevolvingMasterkey)
	if !ok {
		return 0, fmt.Errorf("%w: %s keys cannot rotate", ErrWrongKind, f.Kind)
	}
	rev, err := rk.Rotate(s.cfg.Random)
	if err != nil {
		return 0, fmt.Errorf("failed to rotate key: %w", err)
	}

	next := *f
	now := s.cfg.now().UTC()
	next.RotatedAt = &now
	next.Revision = rev
	if err := s.wrap(&next, rk, passphrase); err != nil {
		return 0, err
	}
	if err := s.save(&next); err != nil {
		return 0, err
	}
	s.keys[id] = &next

	if s.cfg.Metrics != nil {
		s.cfg.Metrics.RecordRotation(rev)
	}
	s.logger.Info("key rotated", logging.KeyID(id), logging.Revision(rev))
	s.recordAudit(audit.ActionRotate, id, rev, nil)
	return rev, nil
}

// ChangePassphrase rewraps a key under a new passphrase and fresh salt,
// using the store's current scrypt parameters.
func (s *Store) ChangePassphrase(ctx context.Context, id, oldPassphrase, newPassphrase string) error {
	if newPassphrase == "" {
		return ErrEmptyPassphrase
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	f, mk, err := s.unlockLocked(ctx, id, oldPassphrase)
	if err != nil {
		s.recordAudit(audit.ActionChangePassphrase, id, 0, err)
		return err
	}
	defer mk.Destroy()

	next := *f
	if err := s.wrap(&next, mk, newPassphrase); err != nil {
		return err
	}
	if err := s.save(&next); err != nil {
		return err
	}
	s.keys[id] = &next
	s.logger.Info("key passphrase changed", logging.KeyID(id))
	s.recordAudit(audit.ActionChangePassphrase, id, next.Revision, nil)
	return nil
}

// Revoke marks a key unusable. Revocation is permanent.
func (s *Store) Revoke(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.lookup(id)
	if err != nil {
		return err
	}
	if f.Status == StatusRevoked {
		return nil
	}
	next := *f
	now := s.cfg.now().UTC()
	next.Status = StatusRevoked
	next.RevokedAt = &now
	if err := s.save(&next); err != nil {
		return err
	}
	s.keys[id] = &next
	s.logger.Warn("key revoked", logging.KeyID(id))
	s.recordAudit(audit.ActionRevoke, id, next.Revision, nil)
	return nil
}

// Delete removes a revoked key file. Files encrypted under it become
// unreadable for good.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.lookup(id)
	if err != nil {
		return err
	}
	if f.Status != StatusRevoked {
		return fmt.Errorf("%w: %s is %s", ErrNotRevoked, id, f.Status)
	}
	if err := s.remove(id); err != nil {
		return err
	}
	delete(s.keys, id)
	s.logger.Warn("key deleted", logging.KeyID(id))
	s.recordAudit(audit.ActionDelete, id, f.Revision, nil)
	return nil
}

// ShouldRotate reports whether a key's current revision is older than maxAge.
func (s *Store) ShouldRotate(id string, maxAge time.Duration) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, err := s.lookup(id)
	if err != nil {
		return false, err
	}
	since := f.CreatedAt
	if f.RotatedAt != nil {
		since = *f.RotatedAt
	}
	return s.cfg.now().Sub(since) > maxAge, nil
}

func (s *Store) unlockLocked(ctx context.Context, id, passphrase string) (*keyFile, masterkey.Masterkey, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	f, err := s.lookup(id)
	if err != nil {
		return nil, nil, err
	}
	if f.Status == StatusRevoked {
		return nil, nil, fmt.Errorf("%w: %s", ErrKeyRevoked, id)
	}
	mk, err := s.unwrap(f, passphrase)
	if err != nil {
		return nil, nil, err
	}
	return f, mk, nil
}
