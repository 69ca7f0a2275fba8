package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

const (
	EnvSenderAddress = "EMAIL"
	EnvSenderSecret  = "EMAIL_PASSWORD"
)

// ErrMissingCredentials is returned when EMAIL or EMAIL_PASSWORD is unset.
var ErrMissingCredentials = errors.New("please set EMAIL and EMAIL_PASSWORD environment variables")

// Credentials authenticate the sender against the relay. They are read once
// per run and shared by every send attempt.
type Credentials struct {
	SenderAddress string
	SenderSecret  string
}

// CredentialsSource produces the credentials of a run.
type CredentialsSource func() (Credentials, error)

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// CredentialsFromLookup reads the credentials through lookup; both values are
// required.
func CredentialsFromLookup(lookup LookupFunc) CredentialsSource {
	return func() (Credentials, error) {
		addr, _ := lookup(EnvSenderAddress)
		secret, _ := lookup(EnvSenderSecret)
		var missing []string
		if strings.TrimSpace(addr) == "" {
			missing = append(missing, EnvSenderAddress)
		}
		if secret == "" {
			missing = append(missing, EnvSenderSecret)
		}
		if len(missing) > 0 {
			return Credentials{}, fmt.Errorf("%w (missing: %s)", ErrMissingCredentials, strings.Join(missing, ", "))
		}
		return Credentials{SenderAddress: strings.TrimSpace(addr), SenderSecret: secret}, nil
	}
}

// LoadDotEnv loads path into the process environment without overriding
// variables that are already set. A missing file is not an error; the
// returned bool reports whether a file was loaded.
func LoadDotEnv(path string) (bool, error) {
	if path == "" {
		return false, nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err := godotenv.Load(path); err != nil {
		return false, fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return true, nil
}

// String hides the secret.
func (c Credentials) String() string {
	return fmt.Sprintf("Credentials{SenderAddress: %s, SenderSecret: <redacted>}", c.SenderAddress)
}
