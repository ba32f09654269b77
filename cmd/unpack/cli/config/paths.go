// Package config provides configuration management for the unpack CLI.
package config

import (
	"os"
	"path/filepath"
)

// Dir returns the unpack config directory.
// Uses XDG_CONFIG_HOME/unpack, defaulting to ~/.config/unpack.
func Dir() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "unpack"), nil
}
