// Package config provides TOML configuration file loading and parsing for the
// controller. The configuration file lives at ~/.lyricsync/config.toml by
// default, but can be overridden with the --config flag. CLI flags always take
// precedence over file values.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the controller configuration file structure.
// Field names use Go camelCase internally but map to snake_case in TOML files
// via struct tags.
type Config struct {
	// Addr is the host:port for the WebSocket server.
	// Default: 127.0.0.1:7160
	Addr string `toml:"addr"`

	// TLSCert is the path to the TLS certificate file.
	// Default: ~/.lyricsync/certs/controller.crt (auto-generated if missing)
	TLSCert string `toml:"tls_cert"`

	// TLSKey is the path to the TLS key file.
	// Default: ~/.lyricsync/certs/controller.key
	TLSKey string `toml:"tls_key"`

	// CredentialStore is the path to the SQLite database holding paired
	// outputs and encrypted vault records.
	// Default: ~/.lyricsync/lyricsync.db
	CredentialStore string `toml:"credential_store"`

	// LogLevel controls logging verbosity: debug, info, warn, error.
	// Default: info
	LogLevel string `toml:"log_level"`

	// RequireAuth enables token-based authentication for output connections.
	// Default: true
	RequireAuth bool `toml:"require_auth"`

	// LockoutThreshold is how many consecutive wrong join codes lock the
	// challenge. Default: 5
	LockoutThreshold int `toml:"lockout_threshold"`

	// LockoutDurationMs is how long a lockout lasts, in milliseconds.
	// Default: 30000
	LockoutDurationMs int `toml:"lockout_duration_ms"`

	// CodeExpirySecs is how long a generated join code remains valid.
	// Default: 120
	CodeExpirySecs int `toml:"code_expiry_secs"`

	// MdnsEnabled enables mDNS/Bonjour service advertisement.
	// When true, the controller advertises itself on the local network,
	// allowing outputs to discover it without manual IP entry.
	// Discovery only reveals presence; join codes are still required.
	// Default: false (disabled for security - must be explicitly enabled)
	MdnsEnabled bool `toml:"mdns_enabled"`

	// Pair generates and displays a join code during startup.
	// Default: false
	Pair bool `toml:"pair"`

	// QR displays the join code as a QR code (requires Pair to be true).
	// Default: false
	QR bool `toml:"qr"`
}

// DefaultConfigPath returns the default config file location: ~/.lyricsync/config.toml.
// Returns an error only if the user's home directory cannot be determined.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".lyricsync", "config.toml"), nil
}

// WriteDefault creates a config file with LAN-ready defaults at the given path.
// The config enables LAN access and requires authentication.
//
// Behavior:
//   - If the file already exists, returns without error (does not overwrite).
//   - Creates the parent directory if it doesn't exist.
//   - Returns an error if the file cannot be written.
func WriteDefault(path string) error {
	// Check if file already exists - never overwrite
	if _, err := os.Stat(path); err == nil {
		return nil // File exists, nothing to do
	}

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Build minimal TOML config with LAN-ready defaults
	content := `# Lyric display controller configuration
# Created by 'lyricsync start' for LAN-ready defaults

# Listen on all interfaces so outputs on the LAN can connect
addr = "0.0.0.0:7160"

# Require authentication for security
require_auth = true
`

	// Write with restrictive permissions (owner read/write only)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Load reads a TOML config file from the given path and returns a Config.
//
// Behavior:
//   - If path is empty, attempts to load from the default location
//     (~/.lyricsync/config.toml). Returns an empty Config without error if
//     the default file doesn't exist.
//   - If path is specified, returns an error if the file doesn't exist.
//   - Returns an error if the file exists but cannot be parsed.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path == "" {
		// No explicit path: try default location, but don't error if missing.
		// This allows the controller to start without any config file.
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			// Can't determine home dir, return empty config
			return cfg, nil
		}
		if _, err := os.Stat(defaultPath); os.IsNotExist(err) {
			// Default config doesn't exist, that's fine
			return cfg, nil
		}
		path = defaultPath
	} else {
		// Explicit path provided: error if file doesn't exist.
		// This matches user expectation: if they specify a config file, it should exist.
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
	}

	// Parse the TOML file. Any parse error is fatal since the user expects
	// the config to be applied.
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return cfg, nil
}
