package auth

import (
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/PeterAlaks/lyric-display-app-sub003/internal/errors"
)

// PairingGateway runs a pairing attempt end to end: challenge state,
// code redemption, and credential persistence. Implemented by
// session.Coordinator. SubmitCode returns an error only when the
// attempt could not run at all (e.g. another pairing is in progress).
type PairingGateway interface {
	SubmitCode(code, outputName, clientType, deviceID string) (SubmitResult, error)
}

// PairRequest is the JSON body for the /pair endpoint.
type PairRequest struct {
	// Code is the 6-digit pairing code displayed by `lyricsync pair`.
	Code string `json:"code"`

	// OutputName is a friendly name for the display (e.g., "Stage Left").
	OutputName string `json:"output_name"`

	// ClientType is the output slot: output1, output2, or stage.
	ClientType string `json:"client_type"`

	// DeviceID is the client-generated stable device identifier used
	// to key the stored credential.
	DeviceID string `json:"device_id"`
}

// PairResponse is the JSON response from the /pair endpoint on success.
type PairResponse struct {
	// OutputID is the unique identifier for the paired output.
	OutputID string `json:"output_id"`

	// Token is the bearer token for authentication.
	// This is only returned once and should be stored securely by the client.
	Token string `json:"token"`
}

// ErrorResponse is the JSON response for error conditions.
type ErrorResponse struct {
	// Error is a machine-readable short code (e.g., "invalid_code").
	Error string `json:"error"`

	// ErrorCode is the stable dotted taxonomy code (e.g., "pairing.rejected").
	ErrorCode string `json:"error_code"`

	// Message is a human-readable description.
	Message string `json:"message"`

	// RetryAfterMs is the remaining lockout countdown, present only
	// when the pairing is locked.
	RetryAfterMs int64 `json:"retry_after_ms,omitempty"`
}

// PairHandler handles the /pair HTTP endpoint for code-to-token exchange.
type PairHandler struct {
	gateway PairingGateway
}

// NewPairHandler creates a new pair handler.
func NewPairHandler(gateway PairingGateway) *PairHandler {
	return &PairHandler{gateway: gateway}
}

var validClientTypes = map[string]bool{
	"output1": true,
	"output2": true,
	"stage":   true,
}

// ServeHTTP handles POST /pair requests.
func (h *PairHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", apperrors.CodePairingRejected, "Only POST is allowed", 0)
		return
	}

	var req PairRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("auth: failed to parse pair request: %v", err)
		writeError(w, http.StatusBadRequest, "invalid_request", apperrors.CodePairingMalformedCode, "Invalid JSON body", 0)
		return
	}

	if req.Code == "" {
		writeError(w, http.StatusBadRequest, "missing_code", apperrors.CodePairingNoCode, "Pairing code is required", 0)
		return
	}
	if req.DeviceID == "" {
		writeError(w, http.StatusBadRequest, "missing_device_id", apperrors.CodePairingMalformedCode, "Device ID is required", 0)
		return
	}
	if !validClientTypes[req.ClientType] {
		writeError(w, http.StatusBadRequest, "invalid_client_type", apperrors.CodePairingMalformedCode, "client_type must be output1, output2, or stage", 0)
		return
	}

	outputName := strings.TrimSpace(req.OutputName)
	if outputName == "" {
		outputName = "Unknown Output"
	}

	result, err := h.gateway.SubmitCode(req.Code, outputName, req.ClientType, req.DeviceID)
	if err != nil {
		if apperrors.IsCode(err, apperrors.CodePairingBusy) {
			writeError(w, http.StatusConflict, "busy", apperrors.CodePairingBusy, "Another pairing is already in progress", 0)
			return
		}
		log.Printf("auth: unexpected error during pairing: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", apperrors.CodeInternal, "Failed to complete pairing", 0)
		return
	}

	switch result.Outcome {
	case OutcomeAccepted:
		log.Printf("auth: output paired successfully: %s (%s)", result.OutputID, outputName)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(PairResponse{
			OutputID: result.OutputID,
			Token:    result.Token,
		})

	case OutcomeMalformed:
		writeError(w, http.StatusBadRequest, "malformed_code", apperrors.CodePairingMalformedCode, "Pairing code must be exactly 6 digits", 0)

	case OutcomeLocked:
		writeError(w, http.StatusLocked, "locked", apperrors.CodePairingLocked, "Too many wrong codes, please wait", result.RetryAfterMs)

	case OutcomeRejected:
		switch {
		case errors.Is(result.Err, ErrCodeExpired):
			writeError(w, http.StatusUnauthorized, "expired_code", apperrors.CodePairingExpired, "Pairing code has expired", 0)
		case errors.Is(result.Err, ErrCodeUsed):
			writeError(w, http.StatusUnauthorized, "used_code", apperrors.CodePairingUsed, "Pairing code has already been used", 0)
		default:
			writeError(w, http.StatusUnauthorized, "invalid_code", apperrors.CodePairingRejected, "Invalid pairing code", 0)
		}

	default:
		writeError(w, http.StatusInternalServerError, "internal_error", apperrors.CodeInternal, "Failed to complete pairing", 0)
	}
}

// writeError sends a JSON error response with a taxonomy code.
func writeError(w http.ResponseWriter, status int, shortCode, taxonomyCode, message string, retryAfterMs int64) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:        shortCode,
		ErrorCode:    taxonomyCode,
		Message:      message,
		RetryAfterMs: retryAfterMs,
	})
}

// GenerateCodeResponse is the JSON response for /pair/generate.
type GenerateCodeResponse struct {
	Code   string    `json:"code"`
	Expiry time.Time `json:"expiry"`
}

// GenerateCodeHandler handles the /pair/generate endpoint.
// This is called by the `lyricsync pair` CLI command to generate a code.
type GenerateCodeHandler struct {
	pairingManager *PairingManager
}

// NewGenerateCodeHandler creates a new generate code handler.
func NewGenerateCodeHandler(pm *PairingManager) *GenerateCodeHandler {
	return &GenerateCodeHandler{pairingManager: pm}
}

// isLoopbackRequest checks if the request originates from the local machine.
// Used to restrict sensitive endpoints like /pair/generate to local access only.
func isLoopbackRequest(r *http.Request) bool {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// If we can't parse the address, be conservative and reject
		log.Printf("auth: failed to parse RemoteAddr %q: %v", r.RemoteAddr, err)
		return false
	}

	ip := net.ParseIP(host)
	if ip == nil {
		log.Printf("auth: failed to parse IP from host %q", host)
		return false
	}

	return ip.IsLoopback()
}

// ServeHTTP handles POST /pair/generate requests.
// Restricted to loopback requests only: remote access to code
// generation would let an attacker mint codes and race the operator
// to complete pairing.
func (h *GenerateCodeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !isLoopbackRequest(r) {
		log.Printf("auth: rejected /pair/generate from non-loopback address: %s", r.RemoteAddr)
		writeError(w, http.StatusForbidden, "forbidden", apperrors.CodeAuthRequired, "Pairing code generation is only available from localhost", 0)
		return
	}

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", apperrors.CodePairingRejected, "Only POST is allowed", 0)
		return
	}

	code, err := h.pairingManager.GenerateCode()
	if err != nil {
		log.Printf("auth: failed to generate pairing code: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", apperrors.CodeInternal, "Failed to generate pairing code", 0)
		return
	}

	expiry := h.pairingManager.GetCodeExpiry()

	log.Printf("auth: generated pairing code via /pair/generate endpoint")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(GenerateCodeResponse{
		Code:   code,
		Expiry: expiry,
	})
}
