// Package tls handles self-signed certificate generation for the
// controller's WebSocket server and computes certificate fingerprints
// that outputs use for trust-on-first-use verification.
package tls

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// CertConfig holds configuration for certificate generation.
type CertConfig struct {
	// CertPath is where the certificate file is written. If empty,
	// defaults to ~/.lyricsync/certs/controller.crt
	CertPath string

	// KeyPath is where the private key file is written. If empty,
	// defaults to ~/.lyricsync/certs/controller.key
	KeyPath string

	// Hosts lists hostnames and IP addresses for the certificate.
	// Defaults to localhost and 127.0.0.1.
	Hosts []string

	// ValidDuration is the certificate lifetime. Defaults to 365
	// days.
	ValidDuration time.Duration

	// Organization for the certificate subject. Defaults to
	// "lyricsync".
	Organization string
}

// CertInfo describes a loaded or freshly generated certificate.
type CertInfo struct {
	CertPath string
	KeyPath  string

	// Fingerprint is the SHA-256 fingerprint of the certificate as
	// colon-separated uppercase hex bytes.
	Fingerprint string

	NotBefore time.Time
	NotAfter  time.Time

	// IsGenerated is false when the pair was loaded from existing
	// files.
	IsGenerated bool
}

// DefaultCertPath returns ~/.lyricsync/certs/controller.crt.
func DefaultCertPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".lyricsync", "certs", "controller.crt"), nil
}

// DefaultKeyPath returns ~/.lyricsync/certs/controller.key.
func DefaultKeyPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".lyricsync", "certs", "controller.key"), nil
}

// EnsureCertificate loads an existing certificate pair or generates a
// self-signed one when either file is missing.
func EnsureCertificate(cfg CertConfig) (*CertInfo, error) {
	certPath := cfg.CertPath
	keyPath := cfg.KeyPath
	if certPath == "" {
		var err error
		certPath, err = DefaultCertPath()
		if err != nil {
			return nil, err
		}
	}
	if keyPath == "" {
		var err error
		keyPath, err = DefaultKeyPath()
		if err != nil {
			return nil, err
		}
	}

	if fileExists(certPath) && fileExists(keyPath) {
		info, err := LoadCertificate(certPath, keyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load certificate: %w", err)
		}
		return info, nil
	}

	genCfg := cfg
	genCfg.CertPath = certPath
	genCfg.KeyPath = keyPath
	info, err := GenerateCertificate(genCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to generate certificate: %w", err)
	}
	return info, nil
}

// LoadCertificate loads an existing pair and computes its fingerprint.
func LoadCertificate(certPath, keyPath string) (*CertInfo, error) {
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load certificate pair: %w", err)
	}

	x509Cert, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}

	return &CertInfo{
		CertPath:    certPath,
		KeyPath:     keyPath,
		Fingerprint: ComputeFingerprint(x509Cert),
		NotBefore:   x509Cert.NotBefore,
		NotAfter:    x509Cert.NotAfter,
	}, nil
}

// GenerateCertificate creates a new self-signed certificate and writes
// the pair to the configured paths.
func GenerateCertificate(cfg CertConfig) (*CertInfo, error) {
	hosts := cfg.Hosts
	if len(hosts) == 0 {
		hosts = []string{"localhost", "127.0.0.1"}
	}

	validDuration := cfg.ValidDuration
	if validDuration == 0 {
		validDuration = 365 * 24 * time.Hour
	}

	organization := cfg.Organization
	if organization == "" {
		organization = "lyricsync"
	}

	// ECDSA P-256: equivalent security to RSA 3072 with smaller keys
	// and faster handshakes.
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate private key: %w", err)
	}

	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("failed to generate serial number: %w", err)
	}

	notBefore := time.Now()
	notAfter := notBefore.Add(validDuration)

	template := x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			Organization: []string{organization},
			CommonName:   "lyric display controller",
		},
		NotBefore:             notBefore,
		NotAfter:              notAfter,
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}

	for _, host := range hosts {
		if ip := net.ParseIP(host); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else {
			template.DNSNames = append(template.DNSNames, host)
		}
	}

	derBytes, err := x509.CreateCertificate(rand.Reader, &template, &template, &privateKey.PublicKey, privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create certificate: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.CertPath), 0700); err != nil {
		return nil, fmt.Errorf("failed to create certificate directory: %w", err)
	}

	certFile, err := os.OpenFile(cfg.CertPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create certificate file: %w", err)
	}
	defer certFile.Close()

	if err := pem.Encode(certFile, &pem.Block{Type: "CERTIFICATE", Bytes: derBytes}); err != nil {
		return nil, fmt.Errorf("failed to write certificate: %w", err)
	}

	keyFile, err := os.OpenFile(cfg.KeyPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to create key file: %w", err)
	}
	defer keyFile.Close()

	keyBytes, err := x509.MarshalPKCS8PrivateKey(privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal private key: %w", err)
	}

	if err := pem.Encode(keyFile, &pem.Block{Type: "PRIVATE KEY", Bytes: keyBytes}); err != nil {
		return nil, fmt.Errorf("failed to write private key: %w", err)
	}

	x509Cert, err := x509.ParseCertificate(derBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse generated certificate: %w", err)
	}

	return &CertInfo{
		CertPath:    cfg.CertPath,
		KeyPath:     cfg.KeyPath,
		Fingerprint: ComputeFingerprint(x509Cert),
		NotBefore:   notBefore,
		NotAfter:    notAfter,
		IsGenerated: true,
	}, nil
}

// ComputeFingerprint returns the SHA-256 fingerprint of a certificate
// as colon-separated uppercase hex bytes, e.g. "AA:BB:CC:...".
func ComputeFingerprint(cert *x509.Certificate) string {
	hash := sha256.Sum256(cert.Raw)
	hexStr := hex.EncodeToString(hash[:])

	var parts []string
	for i := 0; i < len(hexStr); i += 2 {
		parts = append(parts, strings.ToUpper(hexStr[i:i+2]))
	}
	return strings.Join(parts, ":")
}

// ComputeFingerprintFromPEM computes the fingerprint from PEM-encoded
// certificate bytes, for callers holding the file rather than a parsed
// certificate.
func ComputeFingerprintFromPEM(pemData []byte) (string, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return "", fmt.Errorf("failed to decode PEM block")
	}

	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return "", fmt.Errorf("failed to parse certificate: %w", err)
	}

	return ComputeFingerprint(cert), nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false
	}
	return err == nil && !info.IsDir()
}
