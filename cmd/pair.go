package main

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/skip2/go-qrcode"

	controllerTLS "github.com/PeterAlaks/lyric-display-app-sub003/internal/tls"
)

// PairConfig holds configuration for the pair command.
type PairConfig struct {
	Addr    string
	TLSCert string
	NoTLS   bool
	QR      bool
}

func runPair(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("pair", flag.ContinueOnError)
	fs.SetOutput(stderr)

	cfg := &PairConfig{}
	fs.StringVar(&cfg.Addr, "addr", "", "Controller address to display (default: Tailscale or LAN IP:7160)")
	fs.StringVar(&cfg.TLSCert, "tls-cert", "", "Path to controller TLS certificate (default: ~/.lyricsync/certs/controller.crt)")
	fs.BoolVar(&cfg.NoTLS, "no-tls", false, "Use HTTP instead of HTTPS (insecure, for development only)")
	fs.BoolVar(&cfg.QR, "qr", false, "Display the join code as a QR code")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: lyricsync pair [options]\n\nGenerate a short join code for an output display.\n\nOptions:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nThe join code is single-use and expires after two minutes.\n")
		fmt.Fprintf(stderr, "Enter it on the output display to receive an access token.\n")
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	// The display address must be reachable from the output device;
	// the request address is always localhost because the controller
	// restricts /pair/generate to loopback.
	displayAddr := cfg.Addr
	if displayAddr == "" {
		displayAddr = displayAddress("7160")
	}
	cfg.Addr = "127.0.0.1:7160"

	if cfg.TLSCert == "" && !cfg.NoTLS {
		certPath, err := controllerTLS.DefaultCertPath()
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		cfg.TLSCert = certPath
	}

	code, expiry, fingerprint, err := requestJoinCode(cfg, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		fmt.Fprintf(stderr, "\nThe controller must be running to generate a join code.\n")
		fmt.Fprintf(stderr, "Start it with: lyricsync start --require-auth\n")
		return 1
	}

	if cfg.QR {
		DisplayQRCode(stdout, code, expiry, displayAddr, fingerprint)
	} else {
		DisplayJoinCode(stdout, code, expiry, displayAddr)
	}
	return 0
}

// requestJoinCode asks the running controller for a join code over
// its loopback-only /pair/generate endpoint. Returns the code, its
// expiry, and the certificate fingerprint (empty without TLS).
func requestJoinCode(cfg *PairConfig, stderr io.Writer) (code string, expiry time.Time, fingerprint string, err error) {
	var reqURL string
	var client *http.Client

	if cfg.NoTLS {
		reqURL = fmt.Sprintf("http://%s/pair/generate", cfg.Addr)
		client = &http.Client{Timeout: 5 * time.Second}
	} else {
		reqURL = fmt.Sprintf("https://%s/pair/generate", cfg.Addr)

		tlsConfig, fp, loadErr := loadControllerCertificate(cfg.TLSCert)
		if loadErr != nil {
			return "", time.Time{}, "", fmt.Errorf("failed to load controller certificate: %w", loadErr)
		}
		fingerprint = fp

		fmt.Fprintf(stderr, "Using certificate: %s\n", cfg.TLSCert)
		fmt.Fprintf(stderr, "Fingerprint: %s\n", fingerprint)

		client = &http.Client{
			Timeout: 5 * time.Second,
			Transport: &http.Transport{
				TLSClientConfig: tlsConfig,
			},
		}
	}

	resp, err := client.Post(reqURL, "application/json", nil)
	if err != nil {
		return "", time.Time{}, "", fmt.Errorf("could not connect to controller at %s: %w", cfg.Addr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden {
		return "", time.Time{}, "", fmt.Errorf("join code generation is restricted to localhost")
	}
	if resp.StatusCode != http.StatusOK {
		return "", time.Time{}, "", fmt.Errorf("controller returned status %d", resp.StatusCode)
	}

	var result struct {
		Code   string    `json:"code"`
		Expiry time.Time `json:"expiry"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", time.Time{}, "", err
	}

	return result.Code, result.Expiry, fingerprint, nil
}

// loadControllerCertificate builds a TLS config that trusts only the
// controller's own certificate and returns its fingerprint.
func loadControllerCertificate(certPath string) (*tls.Config, string, error) {
	if _, err := os.Stat(certPath); os.IsNotExist(err) {
		return nil, "", fmt.Errorf("certificate not found at %s (is the controller running with TLS?)", certPath)
	}

	certPEM, err := os.ReadFile(certPath)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read certificate: %w", err)
	}

	certPool := x509.NewCertPool()
	if !certPool.AppendCertsFromPEM(certPEM) {
		return nil, "", fmt.Errorf("failed to parse certificate from %s", certPath)
	}

	fingerprint, err := controllerTLS.ComputeFingerprintFromPEM(certPEM)
	if err != nil {
		return nil, "", fmt.Errorf("failed to compute fingerprint: %w", err)
	}

	return &tls.Config{
		RootCAs:    certPool,
		MinVersion: tls.VersionTLS12,
	}, fingerprint, nil
}

// DisplayJoinCode shows the join code to the operator.
func DisplayJoinCode(w io.Writer, code string, expiry time.Time, addr string) {
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "===========================================")
	fmt.Fprintln(w, "           JOIN CODE")
	fmt.Fprintln(w, "===========================================")
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "           %s\n", FormatCodeWithSpaces(code))
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "  Expires:    %s\n", expiry.Format("15:04:05"))
	fmt.Fprintf(w, "  Controller: %s\n", addr)
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "  Enter this code on the output display to pair.")
	fmt.Fprintln(w, "  The code can only be used once.")
	fmt.Fprintln(w, "===========================================")
	fmt.Fprintln(w, "")
}

// DisplayQRCode shows pairing information as a QR code with a
// plain-text fallback. The payload uses a URL scheme:
// lyricsync://pair?host=<addr>&code=<code>&fp=<fingerprint>
func DisplayQRCode(w io.Writer, code string, expiry time.Time, addr, fingerprint string) {
	payload := fmt.Sprintf("lyricsync://pair?host=%s&code=%s&fp=%s",
		url.QueryEscape(addr),
		code,
		url.QueryEscape(fingerprint))

	qr, err := qrcode.New(payload, qrcode.Medium)
	if err != nil {
		fmt.Fprintf(w, "Error generating QR code: %v\n", err)
		fmt.Fprintf(w, "Falling back to text display.\n\n")
		DisplayJoinCode(w, code, expiry, addr)
		return
	}

	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "===========================================")
	fmt.Fprintln(w, "          SCAN TO PAIR")
	fmt.Fprintln(w, "===========================================")
	fmt.Fprintln(w, "")

	fmt.Fprint(w, qr.ToSmallString(false))

	fmt.Fprintln(w, "-------------------------------------------")
	fmt.Fprintln(w, "  Plain-text fallback:")
	fmt.Fprintf(w, "  Code:        %s\n", FormatCodeWithSpaces(code))
	fmt.Fprintf(w, "  Controller:  %s\n", addr)
	fmt.Fprintf(w, "  Fingerprint: %s\n", fingerprint)
	fmt.Fprintf(w, "  Expires:     %s\n", expiry.Format("15:04:05"))
	fmt.Fprintln(w, "===========================================")
	fmt.Fprintln(w, "")
}

// FormatCodeWithSpaces adds spaces between digits for readability.
// "123456" -> "1 2 3 4 5 6"
func FormatCodeWithSpaces(code string) string {
	result := ""
	for i, c := range code {
		if i > 0 {
			result += " "
		}
		result += string(c)
	}
	return result
}
