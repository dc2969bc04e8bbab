package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/PeterAlaks/lyric-display-app-sub003/internal/auth"
	"github.com/PeterAlaks/lyric-display-app-sub003/internal/broadcast"
	"github.com/PeterAlaks/lyric-display-app-sub003/internal/config"
	"github.com/PeterAlaks/lyric-display-app-sub003/internal/mdns"
	"github.com/PeterAlaks/lyric-display-app-sub003/internal/server"
	"github.com/PeterAlaks/lyric-display-app-sub003/internal/session"
	"github.com/PeterAlaks/lyric-display-app-sub003/internal/state"
	"github.com/PeterAlaks/lyric-display-app-sub003/internal/storage"
	controllerTLS "github.com/PeterAlaks/lyric-display-app-sub003/internal/tls"
	"github.com/PeterAlaks/lyric-display-app-sub003/internal/vault"
)

// StartConfig holds the merged CLI/file configuration for "start".
type StartConfig struct {
	Config            string
	Addr              string
	TLSCert           string
	TLSKey            string
	NoTLS             bool
	CredentialStore   string
	RequireAuth       bool
	LockoutThreshold  int
	LockoutDurationMs int
	CodeExpirySecs    int
	MdnsEnabled       bool
	Pair              bool
	QR                bool
}

func runStart(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	fs.SetOutput(stderr)

	cfg := &StartConfig{}
	fs.StringVar(&cfg.Config, "config", "", "Path to config file (default: ~/.lyricsync/config.toml)")
	fs.StringVar(&cfg.Addr, "addr", "", "Listen address for the WebSocket server (default: 127.0.0.1:7160)")
	fs.StringVar(&cfg.TLSCert, "tls-cert", "", "Path to TLS certificate file (default: ~/.lyricsync/certs/controller.crt)")
	fs.StringVar(&cfg.TLSKey, "tls-key", "", "Path to TLS key file (default: ~/.lyricsync/certs/controller.key)")
	fs.BoolVar(&cfg.NoTLS, "no-tls", false, "Disable TLS (insecure, for development only)")
	fs.StringVar(&cfg.CredentialStore, "credential-store", "", "Path to the SQLite store (default: ~/.lyricsync/lyricsync.db)")
	fs.BoolVar(&cfg.RequireAuth, "require-auth", false, "Require token authentication for output connections")
	fs.IntVar(&cfg.LockoutThreshold, "lockout-threshold", 0, "Consecutive wrong join codes before lockout (default: 5)")
	fs.IntVar(&cfg.LockoutDurationMs, "lockout-duration-ms", 0, "Lockout duration in milliseconds (default: 30000)")
	fs.IntVar(&cfg.CodeExpirySecs, "code-expiry-secs", 0, "Join code validity in seconds (default: 120)")
	fs.BoolVar(&cfg.MdnsEnabled, "mdns", false, "Enable mDNS/Bonjour discovery (LAN-visible)")
	fs.BoolVar(&cfg.Pair, "pair", false, "Generate and display a join code during startup")
	fs.BoolVar(&cfg.QR, "qr", false, "Display the join code as a QR code (implies --pair)")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: lyricsync start [options]\n\nStart the controller: WebSocket server, pairing endpoints, and state broadcast.\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	// Track explicitly set flags so CLI booleans can override config
	// file values in either direction.
	explicitFlags := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		explicitFlags[f.Name] = true
	})

	// First run with no explicit config: seed the default file with
	// LAN-ready defaults so outputs on the network can connect after
	// a restart.
	if cfg.Config == "" {
		configPath, err := config.DefaultConfigPath()
		if err != nil {
			fmt.Fprintf(stderr, "Error: failed to determine config path: %v\n", err)
			return 1
		}
		if err := ensureDefaultConfig(configPath, stdout); err != nil {
			fmt.Fprintf(stderr, "Error: failed to create config file: %v\n", err)
			return 1
		}
	}

	fileCfg, err := config.Load(cfg.Config)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	// CLI flags take precedence over file values.
	if cfg.Addr == "" {
		cfg.Addr = fileCfg.Addr
	}
	if cfg.TLSCert == "" {
		cfg.TLSCert = fileCfg.TLSCert
	}
	if cfg.TLSKey == "" {
		cfg.TLSKey = fileCfg.TLSKey
	}
	if cfg.CredentialStore == "" {
		cfg.CredentialStore = fileCfg.CredentialStore
	}
	if cfg.LockoutThreshold == 0 {
		cfg.LockoutThreshold = fileCfg.LockoutThreshold
	}
	if cfg.LockoutDurationMs == 0 {
		cfg.LockoutDurationMs = fileCfg.LockoutDurationMs
	}
	if cfg.CodeExpirySecs == 0 {
		cfg.CodeExpirySecs = fileCfg.CodeExpirySecs
	}
	if !explicitFlags["require-auth"] {
		cfg.RequireAuth = fileCfg.RequireAuth
	}
	if !explicitFlags["mdns"] {
		cfg.MdnsEnabled = fileCfg.MdnsEnabled
	}
	if !explicitFlags["pair"] {
		cfg.Pair = fileCfg.Pair
	}
	if !explicitFlags["qr"] {
		cfg.QR = fileCfg.QR
	}

	if cfg.Addr == "" {
		cfg.Addr = config.DefaultAddr
	}
	if cfg.QR && !cfg.Pair {
		cfg.Pair = true
	}

	storePath := cfg.CredentialStore
	if storePath == "" {
		storePath, err = defaultStorePath()
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
	}
	if err := os.MkdirAll(filepath.Dir(storePath), 0700); err != nil {
		fmt.Fprintf(stderr, "Error: failed to create data directory: %v\n", err)
		return 1
	}

	store, err := storage.NewSQLiteStore(storePath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: failed to open storage: %v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "WebSocket server address: %s\n", cfg.Addr)
	fmt.Fprintf(stdout, "Credential store: %s\n", storePath)

	// Credential vault: encrypted SQLite records, with the in-memory
	// cache tier always present. No platform keychain integration
	// here, so the native tier stays unwired.
	credVault := vault.New(nil, store)

	pairingManager := auth.NewPairingManager(auth.PairingConfig{
		CodeExpiry:  time.Duration(cfg.CodeExpirySecs) * time.Second,
		OutputStore: store,
	})

	challenge := auth.NewChallenge(auth.ChallengeConfig{
		Threshold:       cfg.LockoutThreshold,
		LockoutDuration: time.Duration(cfg.LockoutDurationMs) * time.Millisecond,
		Authority:       pairingManager,
	})

	syncState := state.New()
	wsServer := server.NewServer(cfg.Addr)
	broadcaster := broadcast.New(wsServer)

	coordinator := session.New(session.Config{
		Vault:       credVault,
		Challenge:   challenge,
		State:       syncState,
		Broadcaster: broadcaster,
	})

	// Authentication.
	tokenValidator := auth.NewTokenValidator(store)
	wsServer.SetRequireAuth(cfg.RequireAuth)
	wsServer.SetTokenValidator(func(token string) (string, string, error) {
		output, err := tokenValidator.ValidateToken(token)
		if err != nil {
			return "", "", err
		}
		return output.ID, output.ClientType, nil
	})

	// Pairing endpoints. The coordinator is the pairing gateway so
	// busy-rejection and lockout state sit in front of the code
	// authority.
	wsServer.SetPairHandler(auth.NewPairHandler(coordinator))
	wsServer.SetGenerateCodeHandler(auth.NewGenerateCodeHandler(pairingManager))

	// Revocation endpoint closes live connections before deleting the
	// output so revoked displays go dark immediately.
	wsServer.SetRevokeOutputHandler(server.NewRevokeOutputHandler(wsServer, &outputStoreAdapter{store}))

	wsServer.SetStatusHandler(server.NewStatusHandler(wsServer, !cfg.NoTLS, cfg.RequireAuth, credVault, pairingManager))

	wsServer.SetOutputActivityTracker(func(outputID string) {
		if err := store.UpdateLastSeen(outputID, time.Now()); err != nil {
			fmt.Fprintf(stderr, "Warning: failed to update last_seen for output %s: %v\n", outputID, err)
		}
	})

	// Replay the current state to outputs on connect and on explicit
	// sync.request, so late joiners render what the operator sees.
	wsServer.SetSnapshotSender(func(clientType string, send func(msg server.Message)) {
		snap := syncState.Snapshot()
		if len(snap.Lyrics) > 0 {
			send(server.NewLyricsSetMessage(snap.Lyrics))
		}
		if snap.SelectedLine != nil {
			send(server.NewLineSelectMessage(*snap.SelectedLine))
		}
		if style, ok := snap.Styles[clientType]; ok {
			send(server.NewStyleUpdateMessage(clientType, style))
		}
		send(server.NewVisibilityMessage(snap.Visible))
	})

	wsServer.SetResyncFunc(func() (bool, string) {
		n := coordinator.Resync()
		return n.Success, n.Message
	})

	// Start the server, TLS by default.
	var wsErrCh <-chan error
	var certInfo *controllerTLS.CertInfo

	if cfg.NoTLS {
		fmt.Fprintln(stdout, "WARNING: TLS disabled (--no-tls). Connections are NOT encrypted.")
		wsErrCh = wsServer.StartAsync()
	} else {
		tlsHosts := []string{"localhost", "127.0.0.1", "0.0.0.0"}
		if listenHost, _, err := net.SplitHostPort(cfg.Addr); err == nil && listenHost != "" {
			found := false
			for _, h := range tlsHosts {
				if h == listenHost {
					found = true
					break
				}
			}
			if !found {
				tlsHosts = append(tlsHosts, listenHost)
			}
		}

		certInfo, err = controllerTLS.EnsureCertificate(controllerTLS.CertConfig{
			CertPath: cfg.TLSCert,
			KeyPath:  cfg.TLSKey,
			Hosts:    tlsHosts,
		})
		if err != nil {
			fmt.Fprintf(stderr, "Error: failed to set up TLS certificate: %v\n", err)
			store.Close()
			return 1
		}

		if certInfo.IsGenerated {
			fmt.Fprintln(stdout, "Generated new self-signed TLS certificate")
		} else {
			fmt.Fprintln(stdout, "Loaded existing TLS certificate")
		}
		fmt.Fprintf(stdout, "Certificate: %s\n", certInfo.CertPath)
		fmt.Fprintf(stdout, "Fingerprint (SHA-256):\n  %s\n", certInfo.Fingerprint)

		wsErrCh = wsServer.StartAsyncTLS(server.TLSConfig{
			CertPath: certInfo.CertPath,
			KeyPath:  certInfo.KeyPath,
		})
	}

	// Fail fast on bind errors.
	if err := <-wsErrCh; err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		store.Close()
		return 1
	}

	if cfg.RequireAuth {
		fmt.Fprintln(stdout, "Authentication: ENABLED (use 'lyricsync pair' to pair outputs)")
	} else {
		fmt.Fprintln(stdout, "Authentication: DISABLED (use --require-auth to enable)")
	}

	if cfg.Pair {
		_, portStr, _ := net.SplitHostPort(cfg.Addr)
		if portStr == "" {
			portStr = "7160"
		}
		displayAddr := displayAddress(portStr)

		code, err := pairingManager.GenerateCode()
		if err != nil {
			fmt.Fprintf(stderr, "Warning: failed to generate join code: %v\n", err)
		} else {
			expiry := pairingManager.GetCodeExpiry()
			fingerprint := ""
			if certInfo != nil {
				fingerprint = certInfo.Fingerprint
			}
			if cfg.QR {
				DisplayQRCode(stdout, code, expiry, displayAddr, fingerprint)
			} else {
				DisplayJoinCode(stdout, code, expiry, displayAddr)
			}
		}
	}

	var mdnsAdvertiser *mdns.Advertiser
	if cfg.MdnsEnabled {
		_, portStr, _ := net.SplitHostPort(cfg.Addr)
		port := 7160
		if portStr != "" {
			if p, err := strconv.Atoi(portStr); err == nil && p > 0 {
				port = p
			}
		}

		fingerprint := ""
		if certInfo != nil {
			fingerprint = certInfo.Fingerprint
		}

		mdnsAdvertiser = mdns.NewAdvertiser(mdns.Config{
			Port:        port,
			Fingerprint: fingerprint,
		})
		if err := mdnsAdvertiser.Start(); err != nil {
			fmt.Fprintf(stderr, "Warning: failed to start mDNS discovery: %v\n", err)
		} else {
			fmt.Fprintln(stdout, "mDNS discovery: ENABLED (visible on LAN)")
		}
	}

	fmt.Fprintln(stdout, "Controller running. Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	fmt.Fprintln(stdout, "\nShutting down...")

	if mdnsAdvertiser != nil {
		mdnsAdvertiser.Stop()
	}
	if err := wsServer.Stop(); err != nil {
		fmt.Fprintf(stderr, "Warning: server shutdown: %v\n", err)
	}
	// Let in-flight vault persists land before the store closes.
	credVault.Flush()
	if err := store.Close(); err != nil {
		fmt.Fprintf(stderr, "Warning: storage close: %v\n", err)
	}

	return 0
}

// ensureDefaultConfig writes a LAN-ready config file on first run.
// An existing file is left untouched.
func ensureDefaultConfig(path string, stdout io.Writer) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := config.WriteDefault(path); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Created config: %s\n", path)
	return nil
}

func defaultStorePath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".lyricsync", "lyricsync.db"), nil
}

// outputStoreAdapter narrows *storage.SQLiteStore to the revoke
// handler's view of the store.
type outputStoreAdapter struct {
	store *storage.SQLiteStore
}

func (a *outputStoreAdapter) GetOutput(id string) (*server.OutputInfo, error) {
	output, err := a.store.GetOutput(id)
	if err != nil {
		return nil, err
	}
	if output == nil {
		return nil, nil
	}
	return &server.OutputInfo{ID: output.ID, Name: output.Name}, nil
}

func (a *outputStoreAdapter) DeleteOutput(id string) error {
	return a.store.DeleteOutput(id)
}
