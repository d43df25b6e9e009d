// Command issuetoken prints an access token for a steam user, or a fresh secret key to sign tokens with.
//
// Secret key is read from SECRET_KEY (environment or .env file) unless passed with a flag.
package main

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/nkiryanov/fireshare/internal/service/auth/tokenmanager"
)

const SecretKeyBytesLen = 32

func main() {
	if err := run(os.Getenv, os.Getwd, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(getenv func(string) string, getwd func() (string, error), args []string, out io.Writer) error {
	var (
		secretKey string
		steamID   string
		ttl       time.Duration
		genSecret bool
	)

	secretKey, err := envSecretKey(getenv, getwd)
	if err != nil {
		return err
	}

	fs := pflag.NewFlagSet("issuetoken", pflag.ContinueOnError)
	fs.StringVarP(&secretKey, "secret-key", "s", secretKey, "Secret key the server signs tokens with")
	fs.StringVarP(&steamID, "steam-id", "u", "", "Steam id (steam64) of the user")
	fs.DurationVar(&ttl, "ttl", 0, "Token lifetime, server default if not set")
	fs.BoolVar(&genSecret, "gen-secret", false, "Print new random secret key and exit")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if genSecret {
		b := make([]byte, SecretKeyBytesLen)
		if _, err := rand.Read(b); err != nil {
			return fmt.Errorf("error while generating secret key: %w", err)
		}
		_, err := fmt.Fprintln(out, hex.EncodeToString(b))
		return err
	}

	if steamID == "" {
		return errors.New("steam id is required")
	}

	manager, err := tokenmanager.New(tokenmanager.Config{SecretKey: secretKey, AccessTTL: ttl})
	if err != nil {
		return err
	}

	token, err := manager.Issue(steamID)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(out, token.Value)
	return err
}

// Environment wins over .env file
func envSecretKey(getenv func(string) string, getwd func() (string, error)) (string, error) {
	if key := getenv("SECRET_KEY"); key != "" {
		return key, nil
	}

	wd, err := getwd()
	if err != nil {
		return "", err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))
	switch {
	case err == nil:
		return envMap["SECRET_KEY"], nil
	case errors.Is(err, os.ErrNotExist):
		return "", nil
	default:
		return "", err
	}
}
