package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/pflag"
)

const defaultSecretKeyBytesLen = 32

// Print random hex secret suitable for SECRET_KEY and REFRESH_SECRET_KEY
func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error while generating secret key: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := pflag.NewFlagSet("gensecret", pflag.ContinueOnError)
	length := fs.IntP("bytes", "b", defaultSecretKeyBytesLen, "Secret length in bytes")
	if err := fs.Parse(args); err != nil {
		return err
	}

	secret, err := generate(*length)
	if err != nil {
		return err
	}

	fmt.Println(secret)
	return nil
}

func generate(n int) (string, error) {
	if n < 16 {
		return "", fmt.Errorf("secret must be at least 16 bytes, got %d", n)
	}

	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	return hex.EncodeToString(b), nil
}
