package server

import (
	"log"

	"github.com/PeterAlaks/lyric-display-app-sub003/internal/state"
)

// Broadcast sends a message to all connected outputs. Non-blocking;
// messages are queued for delivery. Does nothing after Stop().
func (s *Server) Broadcast(msg Message) {
	// Hold RLock while checking stopped AND sending to avoid racing
	// with Stop(), which takes the write lock before closing the
	// channel.
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.stopped {
		return
	}

	select {
	case s.broadcast <- msg:
	default:
		log.Printf("server: broadcast channel full, dropping message")
	}
}

// runBroadcaster reads from the broadcast channel and fans out to all
// outputs. Runs in its own goroutine started by Start().
func (s *Server) runBroadcaster() {
	for msg := range s.broadcast {
		s.mu.RLock()
		for client := range s.clients {
			select {
			case <-client.done:
				// Client is shutting down - skip
			case client.send <- msg:
			default:
				log.Printf("server: client send buffer full, dropping message")
			}
		}
		s.mu.RUnlock()
	}
}

// The methods below implement broadcast.Transport, making the server
// the delivery layer the broadcast.Broadcaster drives.

// IsConnected reports whether the server is accepting connections.
func (s *Server) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started && !s.stopped
}

// IsAuthenticated reports whether every connected output passed token
// validation. Vacuously true when auth is disabled.
func (s *Server) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.requireAuth {
		return true
	}
	for client := range s.clients {
		if client.outputID == "" {
			return false
		}
	}
	return true
}

// IsReady reports whether at least one output is connected to receive
// pushes.
func (s *Server) IsReady() bool {
	return s.ClientCount() > 0
}

// PushLyrics delivers the lyric set to every connected output.
func (s *Server) PushLyrics(lines []state.LyricLine) bool {
	return s.sendToClients(nil, NewLyricsSetMessage(lines))
}

// PushLineSelection delivers the active line index to every output.
func (s *Server) PushLineSelection(index int) bool {
	return s.sendToClients(nil, NewLineSelectMessage(index))
}

// PushStyle delivers a style update to the outputs rendering the
// given slot.
func (s *Server) PushStyle(outputID string, style state.Style) bool {
	filter := func(c *Client) bool { return c.clientType == outputID }
	return s.sendToClients(filter, NewStyleUpdateMessage(outputID, style))
}

// PushVisibility delivers the show/hide flag to every output.
func (s *Server) PushVisibility(visible bool) bool {
	return s.sendToClients(nil, NewVisibilityMessage(visible))
}

// sendToClients queues msg on every client matching filter (nil
// matches all). Reports false if any matching client's buffer was
// full, so the broadcaster can record the target as failed.
func (s *Server) sendToClients(filter func(*Client) bool, msg Message) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.stopped {
		return false
	}

	ok := true
	for client := range s.clients {
		if filter != nil && !filter(client) {
			continue
		}
		select {
		case <-client.done:
			// Shutting down; not counted as a delivery failure.
		case client.send <- msg:
		default:
			log.Printf("server: output send buffer full, dropping %s", msg.Type)
			ok = false
		}
	}
	return ok
}
