// Package auth provides pairing and token validation for remote
// display outputs.
//
// The pairing flow works as follows:
// 1. Operator runs `lyricsync pair` to generate a 6-digit code (valid for 2 minutes)
// 2. Output device enters the code and POSTs to the /pair endpoint
// 3. Controller validates the code, generates a session token, and stores the output
// 4. Output uses the token for all subsequent WebSocket connections
//
// Security considerations:
// - Pairing codes are short-lived (2 minute expiry)
// - Codes can only be used once (replay prevention)
// - Consecutive wrong codes trigger a wall-clock lockout window
// - Tokens are hashed before storage (bcrypt)
// - All WebSocket connections require a valid token
package auth

import (
	"time"

	"github.com/PeterAlaks/lyric-display-app-sub003/internal/storage"
)

// Output is an alias for storage.Output to avoid import cycles.
type Output = storage.Output

// OutputStore defines the interface for persisting paired outputs.
// Implemented by storage.SQLiteStore. Implementations must be safe
// for concurrent access.
type OutputStore interface {
	// SaveOutput persists an output to storage.
	// If an output with the same ID exists, it is updated.
	SaveOutput(output *Output) error

	// GetOutput retrieves an output by ID.
	// Returns nil, nil if the output does not exist.
	GetOutput(id string) (*Output, error)

	// ListOutputs returns all paired outputs.
	ListOutputs() ([]*Output, error)

	// DeleteOutput removes an output from storage.
	// Returns nil if the output does not exist (idempotent).
	DeleteOutput(id string) error

	// UpdateLastSeen updates the last_seen timestamp for an output.
	// Returns storage.ErrOutputNotFound if the output does not exist.
	UpdateLastSeen(id string, t time.Time) error
}
