package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
)

const version = "1.0.0"

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// run dispatches one command and returns the process exit code.
func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stderr)
		return 1
	}

	streams := ioStreams{in: stdin, out: stdout, err: stderr}
	var err error
	switch command := args[0]; command {
	case "keygen":
		err = handleKeygen(args[1:], streams)
	case "rotate":
		err = handleRotate(args[1:], streams)
	case "revoke":
		err = handleRevoke(args[1:], streams)
	case "keys":
		err = handleKeys(args[1:], streams)
	case "audit":
		err = handleAudit(args[1:], streams)
	case "encrypt":
		err = handleEncrypt(args[1:], streams)
	case "decrypt":
		err = handleDecrypt(args[1:], streams)
	case "cat":
		err = handleCat(args[1:], streams)
	case "info":
		err = handleInfo(args[1:], streams)
	case "ls":
		err = handleList(args[1:], streams)
	case "help", "--help", "-h":
		printUsage(stdout)
	case "version", "--version", "-v":
		printVersion(stdout)
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n\n", command)
		printUsage(stderr)
		return 1
	}

	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

type ioStreams struct {
	in  io.Reader
	out io.Writer
	err io.Writer
}

func printUsage(w io.Writer) {
	usage := `vaultcrypt - chunked authenticated file encryption

Usage:
  vaultcrypt <command> [options]

Key Commands:
  keygen      Create a masterkey for the configured scheme
  rotate      Add a revision to a revolving masterkey
  revoke      Revoke a masterkey
  keys        List masterkeys and keystore statistics
  audit       Verify the key lifecycle audit trail

File Commands:
  encrypt     Encrypt stdin or --in into a vault object
  decrypt     Decrypt a vault object to stdout or --out
  cat         Decrypt a byte range of a vault object
  info        Show the header and sizes of a vault object
  ls          List vault objects

Other:
  help        Show this help message
  version     Show version information

Global Flags:
  --config PATH   YAML configuration file (default: built-in defaults)
  --key-id ID     Masterkey id (default: key_id from config, or the only active key)

Environment:
  VAULT_PASSPHRASE                 Passphrase protecting the masterkey
  VAULT_SCHEME, VAULT_KEY_DIR,
  VAULT_KEY_ID, VAULT_LOG_LEVEL    Override the configuration file
  VAULT_S3_ACCESS_KEY_ID,
  VAULT_S3_SECRET_ACCESS_KEY       Static credentials for the s3 backend

Examples:
  # Create a key and encrypt a file
  VAULT_PASSPHRASE=... vaultcrypt keygen
  VAULT_PASSPHRASE=... vaultcrypt encrypt --in report.pdf reports/2026.pdf

  # Read 100 bytes at offset 4096
  VAULT_PASSPHRASE=... vaultcrypt cat --offset 4096 --length 100 reports/2026.pdf
`
	fmt.Fprint(w, usage)
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "vaultcrypt v%s\n", version)
}
