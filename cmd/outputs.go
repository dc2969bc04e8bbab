package main

import (
	"crypto/tls"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/PeterAlaks/lyric-display-app-sub003/internal/storage"
)

// OutputsConfig holds configuration for output management commands.
type OutputsConfig struct {
	CredentialStore string
	Addr            string
}

// formatDuration renders an age in a human-readable way.
// Examples: "just now", "5m ago", "2h ago", "3d ago"
func formatDuration(d time.Duration) string {
	if d < 0 {
		return "in the future"
	}
	if d < time.Minute {
		return "just now"
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	}
	return fmt.Sprintf("%dd ago", int(d.Hours()/24))
}

func runOutputsList(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("outputs list", flag.ContinueOnError)
	fs.SetOutput(stderr)

	cfg := &OutputsConfig{}
	fs.StringVar(&cfg.CredentialStore, "credential-store", "", "Path to the SQLite store (default: ~/.lyricsync/lyricsync.db)")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: lyricsync outputs list [options]\n\nList all paired outputs.\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	storePath := cfg.CredentialStore
	if storePath == "" {
		var err error
		storePath, err = defaultStorePath()
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
	}

	if _, err := os.Stat(storePath); os.IsNotExist(err) {
		fmt.Fprintln(stdout, "No paired outputs found.")
		return 0
	}

	store, err := storage.NewSQLiteStore(storePath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: failed to open storage: %v\n", err)
		return 1
	}
	defer store.Close()

	outputs, err := store.ListOutputs()
	if err != nil {
		fmt.Fprintf(stderr, "Error: failed to list outputs: %v\n", err)
		return 1
	}

	if len(outputs) == 0 {
		fmt.Fprintln(stdout, "No paired outputs found.")
		return 0
	}

	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "OUTPUT ID\tNAME\tTYPE\tCREATED\tLAST SEEN")
	fmt.Fprintln(w, "---------\t----\t----\t-------\t---------")

	now := time.Now()
	for _, output := range outputs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			output.ID,
			output.Name,
			output.ClientType,
			formatDuration(now.Sub(output.CreatedAt)),
			formatDuration(now.Sub(output.LastSeen)),
		)
	}
	w.Flush()

	return 0
}

func runOutputsRevoke(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("outputs revoke", flag.ContinueOnError)
	fs.SetOutput(stderr)

	cfg := &OutputsConfig{}
	fs.StringVar(&cfg.CredentialStore, "credential-store", "", "Path to the SQLite store (default: ~/.lyricsync/lyricsync.db)")
	fs.StringVar(&cfg.Addr, "addr", "127.0.0.1:7160", "Controller address to notify")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: lyricsync outputs revoke [options] <output-id>\n\nRevoke an output's token and disconnect it immediately.\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	if fs.NArg() < 1 {
		fmt.Fprintln(stderr, "Error: output-id is required")
		fs.Usage()
		return 1
	}
	outputID := fs.Arg(0)

	storePath := cfg.CredentialStore
	if storePath == "" {
		var err error
		storePath, err = defaultStorePath()
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
	}

	if _, err := os.Stat(storePath); os.IsNotExist(err) {
		fmt.Fprintf(stderr, "Error: output %s not found\n", outputID)
		return 1
	}

	store, err := storage.NewSQLiteStore(storePath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: failed to open storage: %v\n", err)
		return 1
	}
	defer store.Close()

	output, err := store.GetOutput(outputID)
	if err != nil {
		fmt.Fprintf(stderr, "Error: failed to look up output: %v\n", err)
		return 1
	}
	if output == nil {
		fmt.Fprintf(stderr, "Error: output %s not found\n", outputID)
		return 1
	}

	// Prefer the running controller's revoke endpoint: it closes the
	// live connection before deleting the row. Fall back to a direct
	// delete when the controller is unreachable.
	closedCount, handled := notifyControllerRevocation(outputID, cfg.Addr)
	if handled {
		fmt.Fprintf(stdout, "Revoked output: %s (%s)\n", output.ID, output.Name)
		fmt.Fprintf(stdout, "Closed %d active connection(s).\n", closedCount)
		return 0
	}

	if err := store.DeleteOutput(outputID); err != nil {
		fmt.Fprintf(stderr, "Error: failed to revoke output: %v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "Revoked output: %s (%s)\n", output.ID, output.Name)
	fmt.Fprintln(stdout, "Note: controller is not running or unreachable. The output will be rejected if it reconnects.")

	return 0
}

// notifyControllerRevocation calls the running controller's revoke
// endpoint. Returns (connections_closed, true) if the controller
// handled the request, or (0, false) if it is unreachable. Tries
// HTTPS first, then HTTP for --no-tls controllers.
func notifyControllerRevocation(outputID, addr string) (int, bool) {
	// Loopback-only endpoint with a self-signed certificate, so
	// certificate verification adds nothing here.
	client := &http.Client{
		Timeout: 2 * time.Second,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}

	for _, scheme := range []string{"https", "http"} {
		url := fmt.Sprintf("%s://%s/outputs/%s/revoke", scheme, addr, outputID)

		req, err := http.NewRequest(http.MethodPost, url, nil)
		if err != nil {
			continue
		}

		resp, err := client.Do(req)
		if err != nil {
			continue
		}

		if resp.StatusCode == http.StatusOK {
			var result struct {
				OutputID          string `json:"output_id"`
				OutputName        string `json:"output_name"`
				ConnectionsClosed int    `json:"connections_closed"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
				resp.Body.Close()
				return result.ConnectionsClosed, true
			}
		}
		resp.Body.Close()
	}

	return 0, false
}
