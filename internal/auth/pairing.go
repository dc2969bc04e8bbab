package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Common errors for the pairing flow.
var (
	// ErrCodeExpired is returned when a pairing code has expired.
	ErrCodeExpired = errors.New("pairing code has expired")

	// ErrCodeInvalid is returned when the code doesn't match the active pairing.
	ErrCodeInvalid = errors.New("invalid pairing code")

	// ErrCodeUsed is returned when trying to use a code that was already redeemed.
	ErrCodeUsed = errors.New("pairing code already used")

	// ErrNoActiveCode is returned when redemption is attempted with no code outstanding.
	ErrNoActiveCode = errors.New("no active pairing code")

	// ErrOutputNotFound is returned when an output lookup fails.
	ErrOutputNotFound = errors.New("output not found")
)

// PairingConfig holds configuration for the pairing manager.
type PairingConfig struct {
	// CodeExpiry is how long a pairing code remains valid.
	// Default: 2 minutes.
	CodeExpiry time.Duration

	// OutputStore is where paired outputs are persisted.
	// Required.
	OutputStore OutputStore

	// TimeNow returns the current time. Useful for testing.
	// Default: time.Now.
	TimeNow func() time.Time
}

// PairingManager is the code authority: it generates 6-digit pairing
// codes and exchanges a correct code for a session token. Brute-force
// protection (consecutive-failure lockout) is layered on top by
// Challenge; this type only knows whether a given code is the one
// outstanding.
type PairingManager struct {
	mu sync.Mutex

	config PairingConfig

	// activeCode is the current pending pairing code.
	// Only one code can be active at a time.
	activeCode *pairingCode
}

// pairingCode represents an active pairing code waiting to be redeemed.
type pairingCode struct {
	// code is the 6-digit code shown to the operator.
	code string

	// expiresAt is when this code becomes invalid.
	expiresAt time.Time

	// used indicates the code has been redeemed.
	used bool
}

// NewPairingManager creates a new pairing manager with the given config.
func NewPairingManager(config PairingConfig) *PairingManager {
	// Apply defaults
	if config.CodeExpiry == 0 {
		config.CodeExpiry = 2 * time.Minute
	}
	if config.TimeNow == nil {
		config.TimeNow = time.Now
	}

	return &PairingManager{config: config}
}

// GenerateCode creates a new 6-digit pairing code.
// Any previously active code is invalidated.
// Returns the code string to display to the operator.
func (pm *PairingManager) GenerateCode() (string, error) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	// crypto/rand keeps the code unpredictable.
	code, err := generateRandomCode(6)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}

	now := pm.config.TimeNow()
	pm.activeCode = &pairingCode{
		code:      code,
		expiresAt: now.Add(pm.config.CodeExpiry),
		used:      false,
	}

	log.Printf("auth: generated pairing code (expires at %s)", pm.activeCode.expiresAt.Format(time.RFC3339))

	return code, nil
}

// RedeemCode checks the given code against the outstanding one and,
// on match, mints an output identity and session token. The code is
// marked used before the output is stored (replay prevention even if
// storage fails).
//
// outputName is a friendly name for the display (e.g., "Stage Left"),
// clientType is the output slot it occupies (output1, output2, stage).
func (pm *PairingManager) RedeemCode(code, outputName, clientType string) (outputID, token string, err error) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	now := pm.config.TimeNow()

	if pm.activeCode == nil {
		log.Printf("auth: pairing attempt with no active code")
		return "", "", ErrNoActiveCode
	}

	if pm.activeCode.used {
		log.Printf("auth: pairing attempt with already-used code")
		return "", "", ErrCodeUsed
	}

	if now.After(pm.activeCode.expiresAt) {
		log.Printf("auth: pairing attempt with expired code")
		return "", "", ErrCodeExpired
	}

	if pm.activeCode.code != code {
		log.Printf("auth: pairing attempt with incorrect code")
		return "", "", ErrCodeInvalid
	}

	pm.activeCode.used = true

	outputID = uuid.New().String()
	token = generateSecureToken()

	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", "", fmt.Errorf("hash token: %w", err)
	}

	output := &Output{
		ID:         outputID,
		Name:       outputName,
		ClientType: clientType,
		TokenHash:  string(hash),
		CreatedAt:  now,
		LastSeen:   now,
	}

	if err := pm.config.OutputStore.SaveOutput(output); err != nil {
		return "", "", fmt.Errorf("save output: %w", err)
	}

	log.Printf("auth: paired output %s (%s, %s)", outputID, outputName, clientType)

	return outputID, token, nil
}

// HasActiveCode returns true if there's a non-expired, unused code.
func (pm *PairingManager) HasActiveCode() bool {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if pm.activeCode == nil {
		return false
	}

	now := pm.config.TimeNow()
	return !pm.activeCode.used && now.Before(pm.activeCode.expiresAt)
}

// GetCodeExpiry returns when the active code expires.
// Returns zero time if no active code exists.
func (pm *PairingManager) GetCodeExpiry() time.Time {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if pm.activeCode == nil {
		return time.Time{}
	}
	return pm.activeCode.expiresAt
}

// generateRandomCode generates a random numeric code of the given length.
func generateRandomCode(length int) (string, error) {
	const digits = "0123456789"
	code := make([]byte, length)

	for i := range code {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(digits))))
		if err != nil {
			return "", err
		}
		code[i] = digits[n.Int64()]
	}

	return string(code), nil
}

// generateSecureToken generates a secure random token for output
// authentication. Returns a hex-encoded string suitable for use as a
// bearer token.
func generateSecureToken() string {
	// 32 bytes = 256 bits of entropy
	const tokenBytes = 32

	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		// This should never happen with crypto/rand
		panic(fmt.Sprintf("crypto/rand failed: %v", err))
	}

	return fmt.Sprintf("%x", b)
}
