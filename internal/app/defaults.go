package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables:
//   - CONTACTSYNC_CONFIG_PATH: config file location (default: ~/.config/contactsync.toml)
//   - CONTACTSYNC_HOME: base directory for contactsync data (default: ~/.local/share/contactsync)
func GetDefaults() (map[string]string, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}

	baseDir, err := getBaseDir()
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"config_path": configPath,
		"base_dir":    baseDir,
		"log_dir":     filepath.Join(baseDir, "log"),
		"export_dir":  filepath.Join(baseDir, "exports"),
	}, nil
}

// getConfigPath returns the config file path, checking CONTACTSYNC_CONFIG_PATH first,
// then falling back to the default ~/.config/contactsync.toml.
func getConfigPath() (string, error) {
	if path := os.Getenv("CONTACTSYNC_CONFIG_PATH"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "contactsync.toml"), nil
}

// getBaseDir returns the base directory for contactsync data, checking
// CONTACTSYNC_HOME first, then falling back to the XDG default.
func getBaseDir() (string, error) {
	if path := os.Getenv("CONTACTSYNC_HOME"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "contactsync"), nil
}
