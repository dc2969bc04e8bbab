package server

import (
	"encoding/json"
	"log"
	"net"
	"net/http"

	"golang.org/x/time/rate"
)

// createMux creates the HTTP mux with all endpoints.
func (s *Server) createMux() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket connections from outputs
	mux.HandleFunc("/ws", s.handleWebSocket)

	// Health check endpoint for monitoring
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Manual resync, driven by the controller UI or CLI
	mux.HandleFunc("/resync", s.handleResync)

	s.mu.RLock()
	pairHandler := s.pairHandler
	generateCodeHandler := s.generateCodeHandler
	revokeHandler := s.revokeOutputHandler
	statusHandler := s.statusHandler
	s.mu.RUnlock()

	if pairHandler != nil {
		mux.Handle("/pair", pairHandler)
		log.Printf("server: pairing endpoint registered at /pair")
	}

	if generateCodeHandler != nil {
		mux.Handle("/pair/generate", generateCodeHandler)
		log.Printf("server: generate code endpoint registered at /pair/generate")
	}

	// Output revocation: /outputs/{id}/revoke lets the CLI close a
	// revoked output's connections immediately.
	if revokeHandler != nil {
		mux.Handle("/outputs/", revokeHandler)
		log.Printf("server: output revocation endpoint registered at /outputs/{id}/revoke")
	}

	if statusHandler != nil {
		mux.Handle("/status", statusHandler)
		log.Printf("server: status endpoint registered at /status")
	}

	return mux
}

// handleResync runs a manual resync. Restricted to loopback since it
// is a controller-side operation, not an output-side one.
func (s *Server) handleResync(w http.ResponseWriter, r *http.Request) {
	if !isLoopbackRequest(r) {
		http.Error(w, "Forbidden: resync is local-only", http.StatusForbidden)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.mu.RLock()
	resync := s.resync
	s.mu.RUnlock()

	if resync == nil {
		http.Error(w, "Resync not configured", http.StatusServiceUnavailable)
		return
	}

	success, message := resync()

	w.Header().Set("Content-Type", "application/json")
	if !success {
		w.WriteHeader(http.StatusBadGateway)
	}
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": success,
		"message": message,
	})
}

// handleWebSocket upgrades an HTTP connection to a WebSocket
// connection for one output.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	requireAuth := s.requireAuth
	tokenValidator := s.tokenValidator
	s.mu.RUnlock()

	var outputID, clientType string

	if requireAuth && tokenValidator != nil {
		token := extractBearerToken(r)
		if token == "" {
			log.Printf("server: connection rejected: missing authorization token")
			http.Error(w, "Unauthorized: missing token", http.StatusUnauthorized)
			return
		}

		var err error
		outputID, clientType, err = tokenValidator(token)
		if err != nil {
			log.Printf("server: connection rejected: invalid token: %v", err)
			http.Error(w, "Unauthorized: invalid token", http.StatusUnauthorized)
			return
		}

		log.Printf("server: connection authenticated for output %s (%s)", outputID, clientType)
	}

	// Unauthenticated connections (requireAuth=false) may announce
	// their slot via query parameter so style pushes still route.
	if clientType == "" {
		clientType = r.URL.Query().Get("client_type")
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("server: upgrade failed: %v", err)
		return
	}

	client := &Client{
		conn:       conn,
		send:       make(chan Message, channelBufferSize),
		done:       make(chan struct{}),
		server:     s,
		outputID:   outputID,
		clientType: clientType,
		// 100 inbound messages/sec with a burst of 10 is far beyond
		// anything a well-behaved output sends.
		msgLimiter: rate.NewLimiter(rate.Limit(100), 10),
	}

	s.mu.Lock()
	s.clients[client] = true
	s.mu.Unlock()

	log.Printf("server: output connected (%d total)", s.ClientCount())

	client.send <- NewSessionStatusMessage(s.sessionID, "running")

	// writePump must run before the snapshot replay so the replay's
	// messages are drained as they are queued instead of filling the
	// channel buffer.
	go client.writePump()

	s.mu.RLock()
	sender := s.snapshotSender
	s.mu.RUnlock()

	if sender != nil {
		// A fresh output starts from the full authoritative state so
		// its cached copy converges immediately.
		sender(clientType, client.directSend)
	}

	go client.readPump()
}

// extractBearerToken extracts the token from an Authorization header.
// Returns empty string if no valid bearer token is found. Falls back
// to a "token" query parameter since browser WebSocket clients cannot
// set custom headers.
func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth != "" {
		const bearerPrefix = "Bearer "
		if len(auth) > len(bearerPrefix) {
			prefix := auth[:len(bearerPrefix)]
			if prefix == bearerPrefix || prefix == "bearer " {
				return auth[len(bearerPrefix):]
			}
		}
	}

	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}

	return ""
}

// isLoopbackRequest checks if the HTTP request came from a loopback
// address. Used to restrict controller-side endpoints to localhost.
// Note: this duplicates the function in auth/handler.go to avoid
// circular imports.
func isLoopbackRequest(r *http.Request) bool {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		log.Printf("server: failed to parse RemoteAddr %q: %v", r.RemoteAddr, err)
		return false
	}

	ip := net.ParseIP(host)
	if ip == nil {
		log.Printf("server: failed to parse IP from host %q", host)
		return false
	}

	return ip.IsLoopback()
}
