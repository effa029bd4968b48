// sealtool generates decryption keys and seals JSON payloads in the envelope
// format the proxy unseals. It is meant for local testing and fixtures.
package main

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/tjfontaine/fingerprint-edge-proxy/internal/sealed"
)

const usage = `Usage:
  sealtool keygen
      Print a random base64 encoded 32-byte key for DECRYPTION_KEY.
  sealtool seal --key <base64> [file]
      Seal a JSON document (stdin when no file is given) and print the
      base64 envelope.
  sealtool unseal --key <base64> [file]
      Reverse of seal.
`

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdin io.Reader, stdout io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("missing command")
	}

	switch args[0] {
	case "keygen":
		key := make([]byte, sealed.KeySize)
		if _, err := rand.Read(key); err != nil {
			return err
		}
		fmt.Fprintln(stdout, base64.StdEncoding.EncodeToString(key))
		return nil
	case "seal", "unseal":
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", args[0])
	}

	var keyB64 string
	flags := pflag.NewFlagSet(args[0], pflag.ContinueOnError)
	flags.StringVarP(&keyB64, "key", "k", os.Getenv("EDGE_SECRET_DECRYPTION_KEY"), "base64 encoded 32-byte key")
	if err := flags.Parse(args[1:]); err != nil {
		return err
	}
	if keyB64 == "" {
		return fmt.Errorf("--key is required")
	}

	input, err := readInput(flags.Args(), stdin)
	if err != nil {
		return err
	}

	if args[0] == "unseal" {
		event, err := sealed.Unseal(strings.TrimSpace(string(input)), keyB64)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(event)
	}

	key, err := base64.StdEncoding.DecodeString(keyB64)
	if err != nil {
		return fmt.Errorf("decode key: %w", err)
	}
	var doc any
	if err := json.Unmarshal(input, &doc); err != nil {
		return fmt.Errorf("parse payload: %w", err)
	}
	out, err := sealed.Seal(doc, key)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, out)
	return nil
}

func readInput(args []string, stdin io.Reader) ([]byte, error) {
	if len(args) == 0 {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(args[0])
}
