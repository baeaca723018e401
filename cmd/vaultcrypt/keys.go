package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dd0wney/cluso-vaultcrypt/pkg/audit"
	"github.com/dd0wney/cluso-vaultcrypt/pkg/keystore"
)

func handleKeygen(args []string, streams ioStreams) error {
	var g globalFlags
	fs := newFlagSet("keygen", streams, &g)
	kindName := fs.String("kind", "", "Key kind: perpetual or revolving (default: matches the scheme)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	return withSession(&g, func(ctx context.Context, s *session) error {
		kind, err := keystore.KindForScheme(s.scheme)
		if err != nil {
			return err
		}
		if *kindName != "" {
			if kind, err = keystore.ParseKind(*kindName); err != nil {
				return err
			}
		}
		pass, err := envPassphrase("")
		if err != nil {
			return err
		}
		md, err := s.store.Create(ctx, kind, pass)
		if err != nil {
			return err
		}
		fmt.Fprintf(streams.out, "Created %s key %s\n", md.Kind, md.ID)
		return nil
	})
}

func handleRotate(args []string, streams ioStreams) error {
	var g globalFlags
	fs := newFlagSet("rotate", streams, &g)
	if err := fs.Parse(args); err != nil {
		return err
	}

	return withSession(&g, func(ctx context.Context, s *session) error {
		id, err := s.resolveKey()
		if err != nil {
			return err
		}
		pass, err := envPassphrase(id)
		if err != nil {
			return err
		}
		rev, err := s.store.Rotate(ctx, id, pass)
		if err != nil {
			return err
		}
		fmt.Fprintf(streams.out, "Rotated key %s to revision %d\n", id, rev)
		return nil
	})
}

func handleRevoke(args []string, streams ioStreams) error {
	var g globalFlags
	fs := newFlagSet("revoke", streams, &g)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 1 {
		g.keyID = fs.Arg(0)
	}
	if g.keyID == "" {
		return fmt.Errorf("usage: vaultcrypt revoke <key-id>")
	}

	return withSession(&g, func(ctx context.Context, s *session) error {
		if err := s.store.Revoke(ctx, g.keyID); err != nil {
			return err
		}
		fmt.Fprintf(streams.out, "Revoked key %s\n", g.keyID)
		return nil
	})
}

type keysReport struct {
	Keys       []keystore.Metadata `json:"keys"`
	Statistics keystore.Statistics `json:"statistics"`
}

func handleKeys(args []string, streams ioStreams) error {
	var g globalFlags
	fs := newFlagSet("keys", streams, &g)
	asJSON := fs.Bool("json", false, "Print JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	return withSession(&g, func(ctx context.Context, s *session) error {
		report := keysReport{Keys: s.store.List(), Statistics: s.store.Statistics()}
		if *asJSON {
			enc := json.NewEncoder(streams.out)
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		}

		fmt.Fprintf(streams.out, "%-36s  %-9s  %-7s  %-8s  %s\n", "ID", "KIND", "STATUS", "REVISION", "CREATED")
		for _, md := range report.Keys {
			rev := "-"
			if md.Kind == keystore.KindRevolving {
				rev = fmt.Sprint(md.Revision)
			}
			fmt.Fprintf(streams.out, "%-36s  %-9s  %-7s  %-8s  %s\n",
				md.ID, md.Kind, md.Status, rev, md.CreatedAt.Format(time.RFC3339))
		}
		st := report.Statistics
		fmt.Fprintf(streams.out, "\n%d keys (%d active, %d revoked)\n", st.TotalKeys, st.ActiveKeys, st.RevokedKeys)
		return nil
	})
}

func handleAudit(args []string, streams ioStreams) error {
	var g globalFlags
	fs := newFlagSet("audit", streams, &g)
	if err := fs.Parse(args); err != nil {
		return err
	}

	return withSession(&g, func(ctx context.Context, s *session) error {
		n, err := audit.Verify(s.cfg.AuditPath())
		if err != nil {
			return err
		}
		fmt.Fprintf(streams.out, "Audit trail intact: %d events in %s\n", n, s.cfg.AuditPath())
		return nil
	})
}
