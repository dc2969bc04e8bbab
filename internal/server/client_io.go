package server

import (
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"

	apperrors "github.com/PeterAlaks/lyric-display-app-sub003/internal/errors"
)

// closeSend safely signals the client to shut down exactly once.
// Only the done channel is closed (not send) to avoid racing with
// ongoing send operations; all senders check done before sending.
func (c *Client) closeSend() {
	c.sendOnce.Do(func() {
		close(c.done)
	})
}

// writePump continuously sends messages from the send channel to the
// WebSocket. It also sends periodic pings to keep the connection
// alive through NATs and detect dead outputs.
func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			// Shutdown signaled; send close frame and exit.
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case msg, ok := <-c.send:
			// Write deadline prevents hanging on slow connections
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))

			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := json.Marshal(msg)
			if err != nil {
				log.Printf("server: failed to marshal message: %v", err)
				continue
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Printf("server: write error: %v", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump reads messages from the WebSocket and handles them. Its
// main job is detecting output disconnects; the only inbound message
// outputs send today is sync.request.
func (c *Client) readPump() {
	defer func() {
		// Unregister the client when this goroutine exits
		c.server.mu.Lock()
		delete(c.server.clients, c)
		c.server.mu.Unlock()

		// closeSend() signals writePump to exit, which closes the
		// connection. Stop() may have already closed done.
		c.closeSend()

		log.Printf("server: output disconnected (%d remaining)", c.server.ClientCount())
	}()

	c.conn.SetReadLimit(64 * 1024)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))

	// A pong in response to our ping proves the output is alive.
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure) {
				log.Printf("server: read error: %v", err)
			}
			return
		}

		// Drop messages from outputs that flood the controller.
		if !c.msgLimiter.Allow() {
			log.Printf("server: rate limit exceeded for output %s, dropping message", c.outputID)
			continue
		}

		// Track output activity for authenticated connections.
		if c.outputID != "" {
			c.server.mu.RLock()
			tracker := c.server.outputActivityTracker
			c.server.mu.RUnlock()

			if tracker != nil {
				tracker(c.outputID)
			}
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("server: failed to parse message: %v", err)
			c.directSend(NewErrorMessage(apperrors.CodeServerInvalidMessage, "message could not be parsed"))
			continue
		}

		switch msg.Type {
		case MessageTypeSyncRequest:
			c.handleSyncRequest()
		case MessageTypeHeartbeat:
			// Nothing to do; the read deadline was already reset.
		default:
			log.Printf("server: received message: type=%s", msg.Type)
		}
	}
}

// handleSyncRequest replays the current state to just this output.
func (c *Client) handleSyncRequest() {
	c.server.mu.RLock()
	sender := c.server.snapshotSender
	c.server.mu.RUnlock()

	if sender == nil {
		log.Printf("server: no snapshot sender configured, ignoring sync.request")
		return
	}

	log.Printf("server: replaying state for output %s (sync.request)", c.outputID)
	sender(c.clientType, c.directSend)
}

// directSend queues a message for this client only, with a blocking
// send and timeout so a full replay is delivered in order as long as
// the output stays responsive.
func (c *Client) directSend(msg Message) {
	select {
	case <-c.done:
		return
	case c.send <- msg:
	case <-time.After(5 * time.Second):
		log.Printf("server: timeout sending replay to output, skipping message")
	}
}
