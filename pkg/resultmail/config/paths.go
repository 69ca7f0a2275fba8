package config

import "os"

const (
	defaultConfigFile = "resultmail.yaml"
	defaultEnvFile    = ".env"
	envConfigPath     = "RESULTMAIL_CONFIG"
)

// DefaultConfigPath is RESULTMAIL_CONFIG or resultmail.yaml in the working
// directory.
func DefaultConfigPath() string {
	if env := os.Getenv(envConfigPath); env != "" {
		return env
	}
	return defaultConfigFile
}

func DefaultEnvFile() string {
	return defaultEnvFile
}
