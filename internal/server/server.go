package server

import (
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	apperrors "github.com/PeterAlaks/lyric-display-app-sub003/internal/errors"
)

// channelBufferSize is the buffer size for the broadcast channel and
// per-client send channels. It balances memory against the ability to
// absorb bursts without blocking senders. If a client's buffer fills
// up, messages are dropped for that client and the push reports
// failure.
const channelBufferSize = 256

// TokenValidator validates authentication tokens for WebSocket
// connections. Returns the output ID and client type for the token,
// or an error if it is invalid.
type TokenValidator func(token string) (outputID, clientType string, err error)

// OutputActivityTracker is called to update output activity
// timestamps. The server calls this when a message is received from
// an authenticated output.
type OutputActivityTracker func(outputID string)

// SnapshotSender replays the current authoritative state to a single
// newly connected or resyncing output. The send function queues
// messages directly on that output's connection.
type SnapshotSender func(clientType string, send func(msg Message))

// ResyncFunc runs a manual resync and reports the operator-facing
// outcome.
type ResyncFunc func() (success bool, message string)

// Server manages WebSocket connections to display outputs and
// broadcasts state updates to them. It handles multiple concurrent
// outputs and ensures messages are delivered without blocking the
// sender.
type Server struct {
	// addr is the address to listen on (e.g., "0.0.0.0:7160")
	addr string

	// upgrader converts HTTP connections to WebSocket connections.
	upgrader websocket.Upgrader

	// clients tracks all connected outputs. Using a map makes
	// add/remove O(1).
	clients map[*Client]bool

	// mu protects the clients map, stopped flag, and handler fields.
	mu sync.RWMutex

	// stopped prevents sending to a closed broadcast channel.
	stopped bool

	// started is set once a listener is up; IsConnected reports it.
	started bool

	// broadcast receives messages to fan out to all outputs.
	broadcast chan Message

	// httpServer is the underlying HTTP server for graceful shutdown.
	httpServer *http.Server

	// sessionID identifies this controller run.
	sessionID string

	// tokenValidator validates tokens for WebSocket authentication.
	// If nil, authentication is disabled (open access).
	tokenValidator TokenValidator

	// requireAuth controls whether authentication is required for
	// WebSocket connections.
	requireAuth bool

	// pairHandler handles the /pair endpoint.
	pairHandler http.Handler

	// generateCodeHandler handles the /pair/generate endpoint.
	generateCodeHandler http.Handler

	// revokeOutputHandler handles the /outputs/{id}/revoke endpoint.
	revokeOutputHandler http.Handler

	// statusHandler handles the /status endpoint.
	statusHandler http.Handler

	// outputActivityTracker updates last_seen on received messages.
	outputActivityTracker OutputActivityTracker

	// snapshotSender replays current state to a connecting output.
	snapshotSender SnapshotSender

	// resync runs a manual resync for the /resync endpoint and for
	// sync.request messages from outputs.
	resync ResyncFunc
}

// Client represents a single connected output. Each client has its
// own write goroutine so a slow output cannot block the broadcaster.
type Client struct {
	// conn is the underlying WebSocket connection.
	conn *websocket.Conn

	// send is a buffered channel for outgoing messages.
	send chan Message

	// done is closed to signal the client should shut down.
	done chan struct{}

	// sendOnce ensures done is only closed once. Both Stop() and
	// readPump() may try to close it.
	sendOnce sync.Once

	// server is a reference back to the parent server.
	server *Server

	// outputID is the paired output for this connection. Empty means
	// unauthenticated (allowed only when requireAuth is false).
	outputID string

	// clientType is the output slot this connection renders:
	// output1, output2, or stage.
	clientType string

	// msgLimiter rate-limits inbound messages so a misbehaving
	// output cannot flood the controller.
	msgLimiter *rate.Limiter
}

// NewServer creates a new WebSocket server.
// Call Start() or StartAsync() to begin accepting connections.
func NewServer(addr string) *Server {
	return &Server{
		addr:      addr,
		clients:   make(map[*Client]bool),
		broadcast: make(chan Message, channelBufferSize),
		sessionID: "session-" + strconv.FormatInt(time.Now().Unix(), 10),
		upgrader: websocket.Upgrader{
			// Outputs connect from browsers on other machines, so
			// origin checking is not useful here; auth is the gate.
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// Addr returns the server's listening address.
func (s *Server) Addr() string {
	return s.addr
}

// SessionID returns the current session identifier.
func (s *Server) SessionID() string {
	return s.sessionID
}

// ClientCount returns the number of connected outputs.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// ConnectedTypes returns the client types currently connected, for
// status reporting.
func (s *Server) ConnectedTypes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	var types []string
	for client := range s.clients {
		if client.clientType != "" && !seen[client.clientType] {
			seen[client.clientType] = true
			types = append(types, client.clientType)
		}
	}
	return types
}

// CloseOutputConnections closes all active connections for the given
// output. Called when an output is revoked to terminate access
// immediately. Returns the number of connections closed.
func (s *Server) CloseOutputConnections(outputID string) int {
	if outputID == "" {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var closed int
	for client := range s.clients {
		if client.outputID == outputID {
			// Best-effort notice so the display can show why it went
			// dark; the connection closes either way.
			select {
			case client.send <- NewErrorMessage(apperrors.CodeAuthOutputRevoked, "output access has been revoked"):
			default:
			}
			client.closeSend()
			closed++
			log.Printf("server: closed connection for revoked output %s", outputID)
		}
	}

	return closed
}

// SetTokenValidator sets the token validation function for WebSocket
// authentication. Call before Start().
func (s *Server) SetTokenValidator(validator TokenValidator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokenValidator = validator
}

// SetRequireAuth controls whether WebSocket connections must present
// a valid token.
func (s *Server) SetRequireAuth(require bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requireAuth = require
}

// SetPairHandler sets the handler for the /pair endpoint.
func (s *Server) SetPairHandler(h http.Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pairHandler = h
}

// SetGenerateCodeHandler sets the handler for the /pair/generate endpoint.
func (s *Server) SetGenerateCodeHandler(h http.Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generateCodeHandler = h
}

// SetRevokeOutputHandler sets the handler for /outputs/{id}/revoke.
func (s *Server) SetRevokeOutputHandler(h http.Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revokeOutputHandler = h
}

// SetStatusHandler sets the handler for the /status endpoint.
func (s *Server) SetStatusHandler(h http.Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statusHandler = h
}

// SetOutputActivityTracker sets the callback for output activity
// updates.
func (s *Server) SetOutputActivityTracker(tracker OutputActivityTracker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outputActivityTracker = tracker
}

// SetSnapshotSender sets the state replay callback used when an
// output connects or requests a resync.
func (s *Server) SetSnapshotSender(sender SnapshotSender) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshotSender = sender
}

// SetResyncFunc sets the manual resync callback used by the /resync
// endpoint.
func (s *Server) SetResyncFunc(fn ResyncFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resync = fn
}
