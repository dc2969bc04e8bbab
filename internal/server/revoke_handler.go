package server

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
)

// OutputStore is the storage surface needed for revocation. Declared
// here so the server does not import the storage package.
type OutputStore interface {
	GetOutput(id string) (*OutputInfo, error)
	DeleteOutput(id string) error
}

// OutputInfo is the minimal paired-output view the server needs.
type OutputInfo struct {
	ID   string
	Name string
}

// RevokeOutputHandler handles the HTTP endpoint for output
// revocation. It closes active connections for the output and removes
// it from storage, in that order, so the output cannot keep using an
// existing connection after revocation.
type RevokeOutputHandler struct {
	server *Server
	store  OutputStore
}

// NewRevokeOutputHandler creates a handler for /outputs/{id}/revoke.
func NewRevokeOutputHandler(server *Server, store OutputStore) *RevokeOutputHandler {
	return &RevokeOutputHandler{server: server, store: store}
}

// ServeHTTP handles POST /outputs/{id}/revoke requests.
// Restricted to loopback requests only.
func (h *RevokeOutputHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !isLoopbackRequest(r) {
		log.Printf("server: rejected output revoke from non-loopback address: %s", r.RemoteAddr)
		writeJSON(w, http.StatusForbidden, map[string]string{
			"error":   "forbidden",
			"message": "Output revocation is only available from localhost",
		})
		return
	}

	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{
			"error":   "method_not_allowed",
			"message": "Only POST is allowed",
		})
		return
	}

	// Path format: /outputs/{id}/revoke
	pathParts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(pathParts) != 3 || pathParts[0] != "outputs" || pathParts[2] != "revoke" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":   "invalid_path",
			"message": "Expected path format: /outputs/{id}/revoke",
		})
		return
	}
	outputID := pathParts[1]

	output, err := h.store.GetOutput(outputID)
	if err != nil {
		log.Printf("server: failed to lookup output %s: %v", outputID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error":   "lookup_failed",
			"message": "Failed to lookup output",
		})
		return
	}
	if output == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error":   "not_found",
			"message": "Output not found",
		})
		return
	}

	// Close connections before deleting from storage.
	closedCount := h.server.CloseOutputConnections(outputID)

	if err := h.store.DeleteOutput(outputID); err != nil {
		log.Printf("server: failed to delete output %s: %v", outputID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error":   "delete_failed",
			"message": "Failed to delete output",
		})
		return
	}

	log.Printf("server: revoked output %s (%s), closed %d connection(s)", outputID, output.Name, closedCount)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"output_id":          outputID,
		"output_name":        output.Name,
		"connections_closed": closedCount,
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
