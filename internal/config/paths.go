// Package config provides configuration management for livelist.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// DefaultConfigPath returns the default path for the livelist config file.
//   - Windows: %USERPROFILE%\.config\livelist\livelist.ini
//   - Unix: $XDG_CONFIG_HOME/livelist/livelist.ini, falling back to ~/.config
func DefaultConfigPath() (string, error) {
	var configDir string

	if runtime.GOOS == "windows" {
		userProfile := os.Getenv("USERPROFILE")
		if userProfile == "" {
			return "", errors.New("USERPROFILE environment variable not set")
		}
		configDir = filepath.Join(userProfile, ".config", "livelist")
	} else {
		dir, err := os.UserConfigDir()
		if err != nil {
			home, herr := os.UserHomeDir()
			if herr != nil {
				return "", fmt.Errorf("failed to get home directory: %w", herr)
			}
			dir = filepath.Join(home, ".config")
		}
		configDir = filepath.Join(dir, "livelist")
	}

	return filepath.Join(configDir, "livelist.ini"), nil
}
