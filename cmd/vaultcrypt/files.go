package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/dd0wney/cluso-vaultcrypt/pkg/backend"
	"github.com/dd0wney/cluso-vaultcrypt/pkg/encryption"
)

// objectArg returns the single positional object name.
func objectArg(cmd string, args []string) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("usage: vaultcrypt %s [options] <object>", cmd)
	}
	return args[0], nil
}

func handleEncrypt(args []string, streams ioStreams) error {
	var g globalFlags
	fs := newFlagSet("encrypt", streams, &g)
	in := fs.String("in", "", "Cleartext input file (default: stdin)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	name, err := objectArg("encrypt", fs.Args())
	if err != nil {
		return err
	}

	src := streams.in
	if *in != "" {
		f, err := os.Open(*in)
		if err != nil {
			return fmt.Errorf("failed to open input: %w", err)
		}
		defer f.Close()
		src = f
	}

	return withSession(&g, func(ctx context.Context, s *session) error {
		v, err := s.openVault(ctx)
		if err != nil {
			return err
		}
		n, err := v.Encrypt(ctx, name, src)
		if err != nil {
			return err
		}
		fmt.Fprintf(streams.err, "Encrypted %d bytes into %s\n", n, name)
		return nil
	})
}

func handleDecrypt(args []string, streams ioStreams) error {
	var g globalFlags
	fs := newFlagSet("decrypt", streams, &g)
	out := fs.String("out", "", "Cleartext output file (default: stdout)")
	skipAuth := fs.Bool("skip-auth", false, "Do not verify chunk MACs (SIV_CTRMAC only, for salvage)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	name, err := objectArg("decrypt", fs.Args())
	if err != nil {
		return err
	}

	var opts []encryption.ReaderOption
	if *skipAuth {
		opts = append(opts, encryption.WithSkipAuthentication())
	}

	return withSession(&g, func(ctx context.Context, s *session) error {
		v, err := s.openVault(ctx)
		if err != nil {
			return err
		}
		if *out == "" {
			_, err := v.Decrypt(ctx, name, streams.out, opts...)
			return err
		}

		f, err := os.OpenFile(*out, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
		if err != nil {
			return fmt.Errorf("failed to create output: %w", err)
		}
		if _, err := v.Decrypt(ctx, name, f, opts...); err != nil {
			f.Close()
			os.Remove(*out)
			return err
		}
		return f.Close()
	})
}

func handleCat(args []string, streams ioStreams) error {
	var g globalFlags
	fs := newFlagSet("cat", streams, &g)
	offset := fs.Int64("offset", 0, "First cleartext byte")
	length := fs.Int64("length", -1, "Number of bytes (default: to the end)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	name, err := objectArg("cat", fs.Args())
	if err != nil {
		return err
	}
	n := *length
	if n < 0 {
		n = math.MaxInt64
	}

	return withSession(&g, func(ctx context.Context, s *session) error {
		v, err := s.openVault(ctx)
		if err != nil {
			return err
		}
		data, err := v.ReadRange(ctx, name, *offset, n)
		if err != nil {
			return err
		}
		_, err = streams.out.Write(data)
		return err
	})
}

func handleInfo(args []string, streams ioStreams) error {
	var g globalFlags
	fs := newFlagSet("info", streams, &g)
	asJSON := fs.Bool("json", false, "Print JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	name, err := objectArg("info", fs.Args())
	if err != nil {
		return err
	}

	return withSession(&g, func(ctx context.Context, s *session) error {
		v, err := s.openVault(ctx)
		if err != nil {
			return err
		}
		info, err := v.Info(ctx, name)
		if err != nil {
			return err
		}
		if *asJSON {
			enc := json.NewEncoder(streams.out)
			enc.SetIndent("", "  ")
			return enc.Encode(info)
		}
		printInfo(streams.out, info.Name, [][2]string{
			{"Scheme", info.Scheme},
			{"Revision", fmt.Sprint(info.Revision)},
			{"Cleartext size", fmt.Sprint(info.CleartextSize)},
			{"Ciphertext size", fmt.Sprint(info.CiphertextSize)},
			{"Chunks", fmt.Sprint(info.Chunks)},
			{"Legacy padding", fmt.Sprint(info.Padded)},
		})
		return nil
	})
}

func printInfo(w io.Writer, title string, rows [][2]string) {
	fmt.Fprintf(w, "%s\n", title)
	for _, row := range rows {
		fmt.Fprintf(w, "  %-16s %s\n", row[0]+":", row[1])
	}
}

func handleList(args []string, streams ioStreams) error {
	var g globalFlags
	fs := newFlagSet("ls", streams, &g)
	if err := fs.Parse(args); err != nil {
		return err
	}
	prefix := fs.Arg(0)

	return withSession(&g, func(ctx context.Context, s *session) error {
		b, err := backend.FromConfig(ctx, s.cfg.Backend)
		if err != nil {
			return err
		}
		names, err := b.List(ctx, prefix)
		if err != nil {
			return err
		}
		for _, name := range names {
			fmt.Fprintln(streams.out, name)
		}
		return nil
	})
}
