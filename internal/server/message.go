// Package server provides the WebSocket server for output connections.
// It delivers lyric, selection, style, and visibility updates from the
// controller to paired display outputs.
package server

import (
	"time"

	"github.com/PeterAlaks/lyric-display-app-sub003/internal/state"
)

// MessageType identifies the kind of message being sent over WebSocket.
// Each type has a specific payload structure defined below.
type MessageType string

const (
	// MessageTypeLyricsSet replaces the output's loaded lyric set.
	// Payload: LyricsSetPayload
	MessageTypeLyricsSet MessageType = "lyrics.set"

	// MessageTypeLineSelect moves the active line highlight.
	// Payload: LineSelectPayload
	MessageTypeLineSelect MessageType = "line.select"

	// MessageTypeStyleUpdate carries the rendering style for one output slot.
	// Payload: StyleUpdatePayload
	MessageTypeStyleUpdate MessageType = "style.update"

	// MessageTypeVisibility toggles whether the output renders at all.
	// Payload: VisibilityPayload
	MessageTypeVisibility MessageType = "output.visibility"

	// MessageTypeSessionStatus sends session state updates.
	// Payload: SessionStatusPayload
	MessageTypeSessionStatus MessageType = "session.status"

	// MessageTypeSyncRequest is sent by outputs to ask for a full
	// state replay, e.g. after the output detects it lost updates.
	// Payload: none (empty object)
	MessageTypeSyncRequest MessageType = "sync.request"

	// MessageTypeError sends error information to outputs.
	// Payload: ErrorPayload
	MessageTypeError MessageType = "error"

	// MessageTypeHeartbeat is used to keep the connection alive.
	// Payload: none (empty object)
	MessageTypeHeartbeat MessageType = "heartbeat"
)

// Message is the envelope for all WebSocket messages in both directions.
type Message struct {
	// Type identifies what kind of message this is.
	Type MessageType `json:"type"`

	// ID is an optional message identifier for correlation.
	ID string `json:"id,omitempty"`

	// Payload contains the message-specific data.
	// The structure depends on the Type field.
	Payload interface{} `json:"payload"`
}

// LyricsSetPayload carries the full ordered lyric set.
type LyricsSetPayload struct {
	Lines []state.LyricLine `json:"lines"`
}

// LineSelectPayload carries the active line index.
type LineSelectPayload struct {
	Index int `json:"index"`
}

// StyleUpdatePayload carries the style configuration for one output slot.
type StyleUpdatePayload struct {
	OutputID string      `json:"output_id"`
	Style    state.Style `json:"style"`
}

// VisibilityPayload carries the show/hide flag.
type VisibilityPayload struct {
	Visible bool `json:"visible"`
}

// SessionStatusPayload carries session lifecycle information.
type SessionStatusPayload struct {
	SessionID    string `json:"session_id"`
	Status       string `json:"status"`
	LastActivity int64  `json:"last_activity"`
}

// ErrorPayload carries error information for outputs.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewLyricsSetMessage creates a lyrics.set message.
func NewLyricsSetMessage(lines []state.LyricLine) Message {
	return Message{
		Type:    MessageTypeLyricsSet,
		Payload: LyricsSetPayload{Lines: lines},
	}
}

// NewLineSelectMessage creates a line.select message.
func NewLineSelectMessage(index int) Message {
	return Message{
		Type:    MessageTypeLineSelect,
		Payload: LineSelectPayload{Index: index},
	}
}

// NewStyleUpdateMessage creates a style.update message for one output slot.
func NewStyleUpdateMessage(outputID string, style state.Style) Message {
	return Message{
		Type:    MessageTypeStyleUpdate,
		Payload: StyleUpdatePayload{OutputID: outputID, Style: style},
	}
}

// NewVisibilityMessage creates an output.visibility message.
func NewVisibilityMessage(visible bool) Message {
	return Message{
		Type:    MessageTypeVisibility,
		Payload: VisibilityPayload{Visible: visible},
	}
}

// NewSessionStatusMessage creates a session.status message.
func NewSessionStatusMessage(sessionID, status string) Message {
	return Message{
		Type: MessageTypeSessionStatus,
		Payload: SessionStatusPayload{
			SessionID:    sessionID,
			Status:       status,
			LastActivity: time.Now().UnixMilli(),
		},
	}
}

// NewErrorMessage creates an error message to send to outputs.
func NewErrorMessage(code, message string) Message {
	return Message{
		Type: MessageTypeError,
		Payload: ErrorPayload{
			Code:    code,
			Message: message,
		},
	}
}
