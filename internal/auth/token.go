package auth

import (
	"log"
	"time"

	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/PeterAlaks/lyric-display-app-sub003/internal/errors"
)

// TokenValidator validates output session tokens.
// It looks up tokens in the output store and updates last-seen
// timestamps. A revoked output is simply an absent row, so revocation
// takes effect on the next validation.
type TokenValidator struct {
	store   OutputStore
	timeNow func() time.Time
}

// NewTokenValidator creates a new token validator.
func NewTokenValidator(store OutputStore) *TokenValidator {
	return &TokenValidator{
		store:   store,
		timeNow: time.Now,
	}
}

// ValidateToken checks if the given token is valid.
// On success, returns the output and updates its last_seen timestamp.
// A token matching no paired output yields an "auth.invalid" error
// wrapping ErrOutputNotFound.
//
// Note: this does a linear scan of all outputs to find a matching
// hash. For the handful of outputs a single controller drives, this
// is acceptable.
func (tv *TokenValidator) ValidateToken(token string) (*Output, error) {
	outputs, err := tv.store.ListOutputs()
	if err != nil {
		return nil, err
	}

	for _, output := range outputs {
		// bcrypt.CompareHashAndPassword handles timing-safe comparison
		if err := bcrypt.CompareHashAndPassword([]byte(output.TokenHash), []byte(token)); err == nil {
			log.Printf("auth: validated token for output %s (%s)", output.ID, output.Name)

			now := tv.timeNow()
			if err := tv.store.UpdateLastSeen(output.ID, now); err != nil {
				// Log but don't fail - validation succeeded
				log.Printf("auth: failed to update last_seen for output %s: %v", output.ID, err)
			}

			return output, nil
		}
	}

	log.Printf("auth: token validation failed (no matching output)")
	return nil, apperrors.Wrap(apperrors.CodeAuthInvalid, "token matches no paired output", ErrOutputNotFound)
}

// ValidateOutputID checks if an output ID exists.
// Used for output management operations.
func (tv *TokenValidator) ValidateOutputID(id string) (*Output, error) {
	output, err := tv.store.GetOutput(id)
	if err != nil {
		return nil, err
	}
	if output == nil {
		return nil, ErrOutputNotFound
	}
	return output, nil
}
