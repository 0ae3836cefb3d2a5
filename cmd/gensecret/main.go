package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/nkiryanov/numrent/internal/service/auth/tokenmanager"
)

const SecretKeyBytesLen = 32

func main() {
	if err := run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// Prints random secret key, or operator token signed with the given key when --admin-token is set
func run(out io.Writer, args []string) error {
	fs := pflag.NewFlagSet("gensecret", pflag.ContinueOnError)
	adminToken := fs.Bool("admin-token", false, "Issue operator access token instead of secret key")
	secretKey := fs.StringP("secret-key", "s", os.Getenv("SECRET_KEY"), "Secret key to sign operator token with")
	ttl := fs.Duration("ttl", 24*time.Hour, "Operator token lifetime")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if !*adminToken {
		b := make([]byte, SecretKeyBytesLen)
		if _, err := rand.Read(b); err != nil {
			return fmt.Errorf("error while generating secret key: %w", err)
		}
		_, err := fmt.Fprintln(out, hex.EncodeToString(b))
		return err
	}

	tm, err := tokenmanager.New(tokenmanager.Config{SecretKey: *secretKey, AccessTTL: *ttl})
	if err != nil {
		return err
	}
	token, err := tm.Issue(uuid.Nil, true)
	if err != nil {
		return fmt.Errorf("error while issuing operator token: %w", err)
	}

	_, err = fmt.Fprintln(out, token.Value)
	return err
}
