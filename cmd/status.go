package main

import (
	"crypto/tls"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PeterAlaks/lyric-display-app-sub003/internal/server"
)

func runStatus(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	fs.SetOutput(stderr)

	addr := fs.String("addr", "127.0.0.1:7160", "Controller address to query")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: lyricsync status [options]\n\nShow the status of the running controller.\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	status, err := queryControllerStatus(*addr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		fmt.Fprintf(stderr, "\nIs the controller running? Start it with: lyricsync start\n")
		return 1
	}

	fmt.Fprintf(stdout, "Controller Status\n")
	fmt.Fprintf(stdout, "=================\n")
	fmt.Fprintf(stdout, "Listening: %s\n", status.ListeningAddress)
	fmt.Fprintf(stdout, "TLS:       %v\n", status.TLSEnabled)
	fmt.Fprintf(stdout, "Auth:      %v\n", status.RequireAuth)
	fmt.Fprintf(stdout, "Outputs:   %d connected", status.ConnectedOutputs)
	if len(status.ConnectedTypes) > 0 {
		fmt.Fprintf(stdout, " (%s)", strings.Join(status.ConnectedTypes, ", "))
	}
	fmt.Fprintln(stdout)
	fmt.Fprintf(stdout, "Session:   %s\n", status.SessionID)
	fmt.Fprintf(stdout, "Vault:     %s\n", status.VaultBackend)
	if status.PairingActive {
		fmt.Fprintf(stdout, "Pairing:   join code active\n")
	} else {
		fmt.Fprintf(stdout, "Pairing:   no active code\n")
	}
	fmt.Fprintf(stdout, "Uptime:    %s\n", formatUptime(status.UptimeSeconds))

	return 0
}

// queryControllerStatus fetches /status from the running controller.
// Tries HTTPS first, then HTTP for --no-tls controllers.
func queryControllerStatus(addr string) (*server.StatusResponse, error) {
	client := &http.Client{
		Timeout: 3 * time.Second,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}

	var lastErr error
	for _, scheme := range []string{"https", "http"} {
		url := fmt.Sprintf("%s://%s/status", scheme, addr)
		resp, err := client.Get(url)
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			lastErr = fmt.Errorf("controller returned status %d", resp.StatusCode)
			continue
		}

		var status server.StatusResponse
		err = json.NewDecoder(resp.Body).Decode(&status)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to decode status response: %w", err)
			continue
		}
		return &status, nil
	}

	return nil, fmt.Errorf("could not reach controller at %s: %w", addr, lastErr)
}

// formatUptime renders seconds as a compact duration.
// Examples: "45s", "12m 3s", "3h 25m", "2d 4h"
func formatUptime(seconds int64) string {
	if seconds < 60 {
		return fmt.Sprintf("%ds", seconds)
	}
	if seconds < 3600 {
		return fmt.Sprintf("%dm %ds", seconds/60, seconds%60)
	}
	if seconds < 86400 {
		return fmt.Sprintf("%dh %dm", seconds/3600, (seconds%3600)/60)
	}
	return fmt.Sprintf("%dd %dh", seconds/86400, (seconds%86400)/3600)
}
