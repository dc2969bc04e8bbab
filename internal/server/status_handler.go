package server

import (
	"encoding/json"
	"net/http"
	"time"
)

// StatusResponse contains controller status returned by /status.
// Used by the `lyricsync status` CLI command.
type StatusResponse struct {
	// ListeningAddress is the address the controller listens on.
	ListeningAddress string `json:"listening_address"`

	// ConnectedOutputs is the number of currently connected outputs.
	ConnectedOutputs int `json:"connected_outputs"`

	// ConnectedTypes lists the output slots currently online.
	ConnectedTypes []string `json:"connected_types"`

	// SessionID identifies the current controller run.
	SessionID string `json:"session_id"`

	// UptimeSeconds is how long the controller has been running.
	UptimeSeconds int64 `json:"uptime_seconds"`

	// TLSEnabled indicates whether connections are encrypted.
	TLSEnabled bool `json:"tls_enabled"`

	// RequireAuth indicates whether outputs must present a token.
	RequireAuth bool `json:"require_auth"`

	// VaultBackend reports which credential persistence tier is
	// active: native, encrypted, or memory.
	VaultBackend string `json:"vault_backend"`

	// PairingActive reports whether an unredeemed pairing code is
	// outstanding.
	PairingActive bool `json:"pairing_active"`
}

// VaultInspector reports the active credential backend.
type VaultInspector interface {
	ActiveBackend() string
}

// PairingInspector reports whether a pairing code is outstanding.
type PairingInspector interface {
	HasActiveCode() bool
}

// StatusHandler serves controller status to local CLI queries.
type StatusHandler struct {
	server      *Server
	startTime   time.Time
	tlsEnabled  bool
	requireAuth bool
	vault       VaultInspector
	pairing     PairingInspector
}

// NewStatusHandler creates a StatusHandler. The current time is
// captured as the start time for uptime calculation.
func NewStatusHandler(s *Server, tlsEnabled, requireAuth bool, vault VaultInspector, pairing PairingInspector) *StatusHandler {
	return &StatusHandler{
		server:      s,
		startTime:   time.Now(),
		tlsEnabled:  tlsEnabled,
		requireAuth: requireAuth,
		vault:       vault,
		pairing:     pairing,
	}
}

// ServeHTTP handles GET /status requests. Local-only.
func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !isLoopbackRequest(r) {
		http.Error(w, "Forbidden: status endpoint is local-only", http.StatusForbidden)
		return
	}

	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := StatusResponse{
		ListeningAddress: h.server.Addr(),
		ConnectedOutputs: h.server.ClientCount(),
		ConnectedTypes:   h.server.ConnectedTypes(),
		SessionID:        h.server.SessionID(),
		UptimeSeconds:    int64(time.Since(h.startTime).Seconds()),
		TLSEnabled:       h.tlsEnabled,
		RequireAuth:      h.requireAuth,
	}
	if h.vault != nil {
		resp.VaultBackend = h.vault.ActiveBackend()
	}
	if h.pairing != nil {
		resp.PairingActive = h.pairing.HasActiveCode()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}
