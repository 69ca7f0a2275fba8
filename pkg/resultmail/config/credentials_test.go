package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookupFrom(env map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestCredentialsFromLookup(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		want    Credentials
		missing string
	}{
		{
			name: "both set",
			env:  map[string]string{"EMAIL": "ksm@example.com", "EMAIL_PASSWORD": "app-pass"},
			want: Credentials{SenderAddress: "ksm@example.com", SenderSecret: "app-pass"},
		},
		{
			name:    "address missing",
			env:     map[string]string{"EMAIL_PASSWORD": "app-pass"},
			missing: "EMAIL",
		},
		{
			name:    "secret missing",
			env:     map[string]string{"EMAIL": "ksm@example.com"},
			missing: "EMAIL_PASSWORD",
		},
		{
			name:    "blank address",
			env:     map[string]string{"EMAIL": "  ", "EMAIL_PASSWORD": "x"},
			missing: "EMAIL",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CredentialsFromLookup(lookupFrom(tt.env))()
			if tt.missing != "" {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrMissingCredentials))
				assert.Contains(t, err.Error(), tt.missing)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCredentials_StringRedactsSecret(t *testing.T) {
	c := Credentials{SenderAddress: "ksm@example.com", SenderSecret: "hunter2"}
	assert.NotContains(t, c.String(), "hunter2")
	assert.Contains(t, c.String(), "ksm@example.com")
}

func TestLoadDotEnv(t *testing.T) {
	t.Setenv("EMAIL", "")
	os.Unsetenv("EMAIL")
	t.Setenv("EMAIL_PASSWORD", "from-shell")

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("EMAIL=dotenv@example.com\nEMAIL_PASSWORD=from-file\n"), 0o600))

	loaded, err := LoadDotEnv(path)
	require.NoError(t, err)
	assert.True(t, loaded)

	creds, err := CredentialsFromLookup(os.LookupEnv)()
	require.NoError(t, err)
	assert.Equal(t, "dotenv@example.com", creds.SenderAddress)
	assert.Equal(t, "from-shell", creds.SenderSecret, "existing environment wins over .env")
}

func TestLoadDotEnv_MissingFileIsFine(t *testing.T) {
	loaded, err := LoadDotEnv(filepath.Join(t.TempDir(), ".env"))
	require.NoError(t, err)
	assert.False(t, loaded)

	loaded, err = LoadDotEnv("")
	require.NoError(t, err)
	assert.False(t, loaded)
}
