package config

import (
	"os"
	"path/filepath"
	"testing"
)

// TestLoad_AllFields verifies that all config fields are parsed correctly from TOML.
func TestLoad_AllFields(t *testing.T) {
	content := `
addr = "0.0.0.0:8080"
tls_cert = "/path/to/cert.crt"
tls_key = "/path/to/key.key"
credential_store = "/path/to/store.db"
log_level = "debug"
require_auth = true
lockout_threshold = 3
lockout_duration_ms = 60000
code_expiry_secs = 300
mdns_enabled = true
pair = true
qr = true
`
	tmpFile := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(tmpFile, []byte(content), 0600); err != nil {
		t.Fatalf("Failed to write temp config: %v", err)
	}

	cfg, err := Load(tmpFile)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Addr != "0.0.0.0:8080" {
		t.Errorf("Addr = %q, want %q", cfg.Addr, "0.0.0.0:8080")
	}
	if cfg.TLSCert != "/path/to/cert.crt" {
		t.Errorf("TLSCert = %q, want %q", cfg.TLSCert, "/path/to/cert.crt")
	}
	if cfg.TLSKey != "/path/to/key.key" {
		t.Errorf("TLSKey = %q, want %q", cfg.TLSKey, "/path/to/key.key")
	}
	if cfg.CredentialStore != "/path/to/store.db" {
		t.Errorf("CredentialStore = %q, want %q", cfg.CredentialStore, "/path/to/store.db")
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "debug")
	}
	if !cfg.RequireAuth {
		t.Error("RequireAuth = false, want true")
	}
	if cfg.LockoutThreshold != 3 {
		t.Errorf("LockoutThreshold = %d, want 3", cfg.LockoutThreshold)
	}
	if cfg.LockoutDurationMs != 60000 {
		t.Errorf("LockoutDurationMs = %d, want 60000", cfg.LockoutDurationMs)
	}
	if cfg.CodeExpirySecs != 300 {
		t.Errorf("CodeExpirySecs = %d, want 300", cfg.CodeExpirySecs)
	}
	if !cfg.MdnsEnabled {
		t.Error("MdnsEnabled = false, want true")
	}
	if !cfg.Pair {
		t.Error("Pair = false, want true")
	}
	if !cfg.QR {
		t.Error("QR = false, want true")
	}
}

// TestLoad_MissingExplicitFile verifies that an explicit missing path errors.
func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

// TestLoad_InvalidTOML verifies that parse errors are reported.
func TestLoad_InvalidTOML(t *testing.T) {
	tmpFile := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(tmpFile, []byte("addr = [not valid"), 0600); err != nil {
		t.Fatalf("Failed to write temp config: %v", err)
	}

	if _, err := Load(tmpFile); err == nil {
		t.Fatal("expected parse error for invalid TOML")
	}
}

// TestLoad_PartialConfig verifies that unset fields keep zero values.
func TestLoad_PartialConfig(t *testing.T) {
	tmpFile := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(tmpFile, []byte(`addr = "127.0.0.1:9999"`), 0600); err != nil {
		t.Fatalf("Failed to write temp config: %v", err)
	}

	cfg, err := Load(tmpFile)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Addr != "127.0.0.1:9999" {
		t.Errorf("Addr = %q, want %q", cfg.Addr, "127.0.0.1:9999")
	}
	if cfg.LockoutThreshold != 0 {
		t.Errorf("LockoutThreshold = %d, want 0 (unset)", cfg.LockoutThreshold)
	}
	if cfg.RequireAuth {
		t.Error("RequireAuth = true, want false (unset)")
	}
}

// TestWriteDefault verifies default config creation and no-overwrite behavior.
func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault() error: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Addr != "0.0.0.0:7160" {
		t.Errorf("Addr = %q, want %q", cfg.Addr, "0.0.0.0:7160")
	}
	if !cfg.RequireAuth {
		t.Error("RequireAuth = false, want true")
	}

	// Overwrite the file, then call WriteDefault again: it must not clobber.
	if err := os.WriteFile(path, []byte(`addr = "1.2.3.4:1"`), 0600); err != nil {
		t.Fatalf("Failed to overwrite config: %v", err)
	}
	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault() second call error: %v", err)
	}
	cfg, err = Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Addr != "1.2.3.4:1" {
		t.Errorf("WriteDefault overwrote an existing file: Addr = %q", cfg.Addr)
	}
}
