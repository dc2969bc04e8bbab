// Package mdns provides optional mDNS/Bonjour advertisement of the
// lyric controller.
//
// When enabled, the controller advertises itself on the local network
// using DNS-SD so output displays can discover it without manual IP
// entry. Advertisement is opt-in; discovery only reveals presence, and
// a pairing code is still required to connect.
package mdns

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/grandcat/zeroconf"
)

// ServiceType is the DNS-SD service type advertised by controllers.
const ServiceType = "_lyricdisplay._tcp"

// ProtocolVersion identifies the advertisement format for
// compatibility checks on the output side.
const ProtocolVersion = "1"

// Config holds configuration for mDNS advertisement.
type Config struct {
	// Port is the WebSocket server port to advertise.
	Port int

	// Fingerprint is the TLS certificate fingerprint, included so
	// outputs can verify the controller before pairing.
	Fingerprint string

	// Name is a human-readable name for this controller. Defaults
	// to the system hostname if empty.
	Name string
}

// Advertiser manages DNS-SD service registration for the controller.
type Advertiser struct {
	config Config
	server *zeroconf.Server
	mu     sync.Mutex
}

func NewAdvertiser(cfg Config) *Advertiser {
	return &Advertiser{config: cfg}
}

// Start begins advertising the service. Safe to call multiple times;
// subsequent calls are no-ops while already running.
func (a *Advertiser) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		return nil
	}

	name := a.config.Name
	if name == "" {
		hostname, err := os.Hostname()
		if err != nil {
			name = "lyricsync"
		} else {
			name = hostname
		}
	}

	// TXT records carry metadata outputs read before connecting.
	// A SHA-256 fingerprint is 95 chars, well within the 255-byte
	// per-string TXT limit.
	txtRecords := []string{
		fmt.Sprintf("version=%s", ProtocolVersion),
		fmt.Sprintf("name=%s", name),
	}
	if a.config.Fingerprint != "" {
		txtRecords = append(txtRecords, fmt.Sprintf("fp=%s", a.config.Fingerprint))
	}

	server, err := zeroconf.Register(
		name,
		ServiceType,
		"local.",
		a.config.Port,
		txtRecords,
		nil, // all interfaces
	)
	if err != nil {
		return fmt.Errorf("mdns register: %w", err)
	}

	a.server = server
	return nil
}

// Stop stops the advertisement and unregisters the service. Safe to
// call multiple times or on an advertiser that was never started.
func (a *Advertiser) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}
}

// IsRunning reports whether the advertiser is currently registered.
func (a *Advertiser) IsRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.server != nil
}

// DiscoveredController is a controller found on the local network.
type DiscoveredController struct {
	Name        string
	Host        string
	Port        int
	Fingerprint string
	Version     string
}

// Discover browses the local network for advertised controllers until
// the context is done. The output simulator uses this when no
// controller address is given; real outputs use their platform's
// native service discovery.
func Discover(ctx context.Context) ([]DiscoveredController, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("mdns resolver: %w", err)
	}

	var (
		controllers []DiscoveredController
		mu          sync.Mutex
		wg          sync.WaitGroup
	)

	entries := make(chan *zeroconf.ServiceEntry)

	wg.Add(1)
	go func() {
		defer wg.Done()
		for entry := range entries {
			c := DiscoveredController{
				Name: entry.Instance,
				Port: entry.Port,
			}

			// Prefer IPv4.
			if len(entry.AddrIPv4) > 0 {
				c.Host = entry.AddrIPv4[0].String()
			} else if len(entry.AddrIPv6) > 0 {
				c.Host = entry.AddrIPv6[0].String()
			}

			for _, txt := range entry.Text {
				switch {
				case strings.HasPrefix(txt, "fp="):
					c.Fingerprint = strings.TrimPrefix(txt, "fp=")
				case strings.HasPrefix(txt, "version="):
					c.Version = strings.TrimPrefix(txt, "version=")
				case strings.HasPrefix(txt, "name="):
					c.Name = strings.TrimPrefix(txt, "name=")
				}
			}

			mu.Lock()
			controllers = append(controllers, c)
			mu.Unlock()
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, "local.", entries); err != nil {
		return nil, fmt.Errorf("mdns browse: %w", err)
	}

	// zeroconf closes the entries channel once the context is done.
	<-ctx.Done()
	wg.Wait()

	return controllers, nil
}
