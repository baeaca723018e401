package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/dd0wney/cluso-vaultcrypt/pkg/audit"
	"github.com/dd0wney/cluso-vaultcrypt/pkg/backend"
	"github.com/dd0wney/cluso-vaultcrypt/pkg/config"
	"github.com/dd0wney/cluso-vaultcrypt/pkg/encryption"
	"github.com/dd0wney/cluso-vaultcrypt/pkg/keystore"
	"github.com/dd0wney/cluso-vaultcrypt/pkg/logging"
	"github.com/dd0wney/cluso-vaultcrypt/pkg/metrics"
	"github.com/dd0wney/cluso-vaultcrypt/pkg/vault"
)

var errNoPassphrase = errors.New("VAULT_PASSPHRASE is not set")

// globalFlags are accepted by every command.
type globalFlags struct {
	configPath string
	keyID      string
}

func newFlagSet(name string, streams ioStreams, g *globalFlags) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(streams.err)
	fs.StringVar(&g.configPath, "config", "", "YAML configuration file")
	fs.StringVar(&g.keyID, "key-id", "", "Masterkey id")
	return fs
}

// session holds what a command needs after flags are parsed.
type session struct {
	cfg     *config.Config
	logger  logging.Logger
	metrics *metrics.Registry
	store   *keystore.Store
	trail   *audit.FileTrail
	scheme  encryption.Scheme
	keyID   string
	cryptor *encryption.Cryptor
}

func openSession(g *globalFlags) (*session, error) {
	var cfg *config.Config
	var err error
	if g.configPath != "" {
		cfg, err = config.Load(g.configPath)
	} else {
		cfg = config.Default()
		cfg.ApplyEnv()
		err = cfg.Validate()
	}
	if err != nil {
		return nil, err
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	logger := logging.NewJSONLogger(os.Stderr, level)
	scheme, err := encryption.ParseScheme(cfg.Scheme)
	if err != nil {
		return nil, err
	}
	reg := metrics.NewRegistry()

	if err := os.MkdirAll(filepath.Dir(cfg.AuditPath()), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}
	trail, err := audit.OpenFileTrail(cfg.AuditPath())
	if err != nil {
		return nil, err
	}
	store, err := keystore.Open(keystore.Config{
		Dir:        cfg.KeyDir,
		Scrypt:     cfg.Scrypt,
		Passphrase: envPassphrase,
		Logger:     logger,
		Metrics:    reg,
		Audit:      trail,
	})
	if err != nil {
		trail.Close()
		return nil, err
	}

	keyID := g.keyID
	if keyID == "" {
		keyID = cfg.KeyID
	}
	return &session{
		cfg:     cfg,
		logger:  logger,
		metrics: reg,
		store:   store,
		trail:   trail,
		scheme:  scheme,
		keyID:   keyID,
	}, nil
}

func envPassphrase(string) (string, error) {
	p := os.Getenv("VAULT_PASSPHRASE")
	if p == "" {
		return "", errNoPassphrase
	}
	return p, nil
}

// resolveKey picks the configured key id, or the only active key whose
// kind matches the scheme.
func (s *session) resolveKey() (string, error) {
	if s.keyID != "" {
		return s.keyID, nil
	}
	kind, err := keystore.KindForScheme(s.scheme)
	if err != nil {
		return "", err
	}
	var candidates []string
	for _, md := range s.store.List() {
		if md.Kind == kind && md.Status == keystore.StatusActive {
			candidates = append(candidates, md.ID)
		}
	}
	switch len(candidates) {
	case 0:
		return "", fmt.Errorf("no active %s key in %s; run keygen first", kind, s.cfg.KeyDir)
	case 1:
		return candidates[0], nil
	default:
		return "", fmt.Errorf("%d active %s keys in %s; pass --key-id", len(candidates), kind, s.cfg.KeyDir)
	}
}

// openVault unlocks the key and wires the cryptor to the backend.
func (s *session) openVault(ctx context.Context) (*vault.Vault, error) {
	id, err := s.resolveKey()
	if err != nil {
		return nil, err
	}
	mk, err := s.store.LoadKey(ctx, id)
	if err != nil {
		return nil, err
	}
	c, err := encryption.New(s.scheme, mk, nil)
	if err != nil {
		mk.Destroy()
		return nil, err
	}
	s.cryptor = c
	b, err := backend.FromConfig(ctx, s.cfg.Backend)
	if err != nil {
		return nil, err
	}
	return vault.New(vault.Options{
		Cryptor:       c,
		Backend:       b,
		Logger:        s.logger,
		Metrics:       s.metrics,
		LegacyPadding: s.cfg.LegacyPadding,
	})
}

// close wipes the unlocked key, flushes metrics to the configured textfile,
// and closes the keystore and audit trail.
func (s *session) close() error {
	if s.cryptor != nil {
		s.cryptor.Destroy()
	}
	var errs []error
	if s.cfg.MetricsFile != "" {
		if err := s.metrics.WriteTextfile(s.cfg.MetricsFile); err != nil {
			errs = append(errs, fmt.Errorf("failed to write metrics: %w", err))
		}
	}
	if err := s.store.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := s.trail.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// withSession runs fn with an interrupt-aware context and an open session.
func withSession(g *globalFlags, fn func(ctx context.Context, s *session) error) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	s, err := openSession(g)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.close(); err == nil {
			err = cerr
		}
	}()
	return fn(ctx, s)
}
