package server

import (
	"crypto/tls"
	"fmt"
	"log"
	"net"
	"net/http"
)

// TLSConfig holds the TLS configuration for the server.
type TLSConfig struct {
	// CertPath is the path to the TLS certificate file.
	CertPath string
	// KeyPath is the path to the TLS private key file.
	KeyPath string
}

// Start begins listening for connections. Blocks until the server is
// stopped; for non-blocking startup with error handling, use
// StartAsync().
func (s *Server) Start() error {
	mux := s.createMux()

	s.httpServer = &http.Server{
		Addr:    s.addr,
		Handler: mux,
	}

	go s.runBroadcaster()

	s.mu.Lock()
	s.started = true
	s.mu.Unlock()

	log.Printf("server: listening on %s", s.addr)

	return s.httpServer.ListenAndServe()
}

// StartAsync starts the server in a goroutine and reports any startup
// error. The returned channel receives nil once the listener is up,
// or an error if it could not be created (e.g., port already in use).
func (s *Server) StartAsync() <-chan error {
	errCh := make(chan error, 1)

	mux := s.createMux()

	// Create the listener first to detect port conflicts immediately.
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		errCh <- fmt.Errorf("failed to listen on %s: %w", s.addr, err)
		close(errCh)
		return errCh
	}

	s.httpServer = &http.Server{
		Handler: mux,
	}

	go s.runBroadcaster()

	s.mu.Lock()
	s.started = true
	s.mu.Unlock()

	go func() {
		log.Printf("server: listening on %s", s.addr)
		errCh <- nil
		close(errCh)

		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Printf("server: serve error: %v", err)
		}
	}()

	return errCh
}

// StartAsyncTLS starts the server with TLS. When TLS is configured
// the server only accepts HTTPS/WSS connections.
func (s *Server) StartAsyncTLS(tlsCfg TLSConfig) <-chan error {
	errCh := make(chan error, 1)

	mux := s.createMux()

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		errCh <- fmt.Errorf("failed to listen on %s: %w", s.addr, err)
		close(errCh)
		return errCh
	}

	cert, err := tls.LoadX509KeyPair(tlsCfg.CertPath, tlsCfg.KeyPath)
	if err != nil {
		ln.Close()
		errCh <- fmt.Errorf("failed to load TLS certificate: %w", err)
		close(errCh)
		return errCh
	}

	// TLS 1.2 minimum excludes older insecure protocol versions.
	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}

	tlsLn := tls.NewListener(ln, tlsConfig)

	s.httpServer = &http.Server{
		Handler: mux,
	}

	go s.runBroadcaster()

	s.mu.Lock()
	s.started = true
	s.mu.Unlock()

	go func() {
		log.Printf("server: listening on %s (TLS enabled)", s.addr)
		errCh <- nil
		close(errCh)

		if err := s.httpServer.Serve(tlsLn); err != nil && err != http.ErrServerClosed {
			log.Printf("server: serve error: %v", err)
		}
	}()

	return errCh
}

// Stop gracefully shuts down the server: close frames go to all
// outputs, connections are closed, and the broadcast channel is
// closed so runBroadcaster exits.
func (s *Server) Stop() error {
	s.mu.Lock()

	if s.stopped {
		s.mu.Unlock()
		return nil // Already stopped
	}
	s.stopped = true

	// Signal writePump on each client to send the close frame and
	// close the connection. We don't write directly here to avoid
	// racing with writePump.
	for client := range s.clients {
		client.closeSend()
	}

	s.clients = make(map[*Client]bool)

	// Must happen after stopped=true to prevent panics from
	// concurrent Broadcast() calls.
	close(s.broadcast)

	s.mu.Unlock()

	if s.httpServer != nil {
		return s.httpServer.Close()
	}
	return nil
}
