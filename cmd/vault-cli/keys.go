package main

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"epochvault/cmd/internal/passphrase"
	"epochvault/crypto"
)

const keyPassEnv = "VAULT_KEY_PASS"

func newPassSource() *passphrase.Source {
	return passphrase.NewSource(keyPassEnv, "keystore")
}

func runKeygen(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("keygen", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var out string
	fs.StringVar(&out, "out", "vault.key", "keystore file to write")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	pass, err := newPassSource().Get()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		fmt.Fprintf(stderr, "Error: generate key: %v\n", err)
		return 1
	}
	if err := crypto.SaveToKeystore(strings.TrimSpace(out), key, pass); err != nil {
		fmt.Fprintf(stderr, "Error: write keystore: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "Saved keystore to %s\n", out)
	fmt.Fprintf(stdout, "Address: %s\n", key.PubKey().Address().String())
	return 0
}

func runAddress(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("address", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var path string
	fs.StringVar(&path, "key", "vault.key", "keystore file")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	addr, err := crypto.KeystoreAddress(strings.TrimSpace(path))
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, addr.String())
	return 0
}

// loadSigners decrypts every keystore with the shared passphrase.
func loadSigners(paths []string) ([]*crypto.PrivateKey, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("at least one --key is required")
	}
	pass, err := newPassSource().Get()
	if err != nil {
		return nil, err
	}
	keys := make([]*crypto.PrivateKey, 0, len(paths))
	for _, path := range paths {
		key, err := crypto.LoadFromKeystore(strings.TrimSpace(path), pass)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
		keys = append(keys, key)
	}
	return keys, nil
}
