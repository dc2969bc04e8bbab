package auth

import (
	"log"
	"strings"
	"sync"
	"time"

	apperrors "github.com/PeterAlaks/lyric-display-app-sub003/internal/errors"
)

// ChallengeState is the lifecycle state of a pairing challenge.
type ChallengeState int

const (
	// StateIdle means no challenge is in progress.
	StateIdle ChallengeState = iota

	// StateAwaitingCode means a challenge is active and waiting for
	// a code submission.
	StateAwaitingCode

	// StateAccepted means a code was accepted and a token minted.
	StateAccepted

	// StateLocked means too many consecutive wrong codes were
	// submitted and submissions are refused until the lock expires.
	StateLocked
)

func (s ChallengeState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingCode:
		return "awaiting_code"
	case StateAccepted:
		return "accepted"
	case StateLocked:
		return "locked"
	default:
		return "unknown"
	}
}

// Outcome classifies the result of a single code submission.
type Outcome int

const (
	// OutcomeAccepted means the code matched and a token was minted.
	OutcomeAccepted Outcome = iota

	// OutcomeMalformed means the submission was not 6 digits and was
	// refused before reaching the code authority. Does not count as
	// a failed attempt.
	OutcomeMalformed

	// OutcomeRejected means the code reached the authority and did
	// not match (wrong, expired, or already used).
	OutcomeRejected

	// OutcomeLocked means submissions are currently refused; the
	// code was not checked.
	OutcomeLocked
)

// PromptReason tells the UI which prompt variant to render.
type PromptReason string

const (
	ReasonFirstAttempt PromptReason = "first_attempt"
	ReasonRejected     PromptReason = "rejected"
	ReasonLocked       PromptReason = "locked"
)

// SubmitResult is the outcome of one code submission.
type SubmitResult struct {
	Outcome Outcome

	// Reason is the prompt variant for the next render.
	Reason PromptReason

	// RetryAfterMs is the remaining lock countdown in milliseconds.
	// Only meaningful when Outcome is OutcomeLocked.
	RetryAfterMs int64

	// OutputID and Token are set only when Outcome is OutcomeAccepted.
	// The token is shown once; only its hash is persisted.
	OutputID string
	Token    string

	// Err carries the authority error on rejection, for logging.
	Err error
}

// CodeAuthority is the collaborator that knows the expected code and
// mints tokens. Implemented by PairingManager.
type CodeAuthority interface {
	RedeemCode(code, outputName, clientType string) (outputID, token string, err error)
}

// Challenge is the state machine guarding join-code entry. It tracks
// consecutive failures and enforces a wall-clock lockout window. The
// lock is a pure function of stored timestamps evaluated on demand,
// so it stays correct across host sleep/wake with no running timer.
type Challenge struct {
	mu sync.Mutex

	state ChallengeState

	// consecutiveFailures counts wrong codes since the last accept
	// or unlock. Malformed submissions never count.
	consecutiveFailures int

	// lockedUntil is the wall-clock unlock time; zero when unlocked.
	lockedUntil time.Time

	threshold       int
	lockoutDuration time.Duration
	authority       CodeAuthority
	timeNow         func() time.Time
}

// ChallengeConfig configures a pairing challenge.
type ChallengeConfig struct {
	// Threshold is how many consecutive wrong codes trigger a lock.
	// Default: 5.
	Threshold int

	// LockoutDuration is how long submissions are refused once
	// locked. Default: 30 seconds.
	LockoutDuration time.Duration

	// Authority validates codes and mints tokens. Required.
	Authority CodeAuthority

	// TimeNow returns the current time. Useful for testing.
	TimeNow func() time.Time
}

// NewChallenge creates an idle challenge.
func NewChallenge(config ChallengeConfig) *Challenge {
	if config.Threshold <= 0 {
		config.Threshold = 5
	}
	if config.LockoutDuration == 0 {
		config.LockoutDuration = 30 * time.Second
	}
	if config.TimeNow == nil {
		config.TimeNow = time.Now
	}

	return &Challenge{
		state:           StateIdle,
		threshold:       config.Threshold,
		lockoutDuration: config.LockoutDuration,
		authority:       config.Authority,
		timeNow:         config.TimeNow,
	}
}

// Begin moves an idle challenge to awaiting-code. Returns false if a
// challenge is already in progress.
func (c *Challenge) Begin() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateAwaitingCode || c.state == StateLocked {
		return false
	}

	c.state = StateAwaitingCode
	c.consecutiveFailures = 0
	c.lockedUntil = time.Time{}
	return true
}

// InProgress reports whether a challenge is awaiting a code or locked.
func (c *Challenge) InProgress() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateAwaitingCode || c.state == StateLocked
}

// State returns the current state, resolving an expired lock first so
// callers never observe a stale LOCKED.
func (c *Challenge) State() ChallengeState {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resolveLock(c.timeNow())
	return c.state
}

// Submit validates one candidate code.
//
// A submission that is not exactly 6 digits after trimming is refused
// locally and never reaches the authority, so it does not consume a
// failure-count increment. While locked, submissions are refused
// without checking the code at all.
func (c *Challenge) Submit(code, outputName, clientType string) SubmitResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.timeNow()
	c.resolveLock(now)

	if c.state == StateLocked {
		remaining := c.lockedUntil.Sub(now).Milliseconds()
		return SubmitResult{
			Outcome:      OutcomeLocked,
			Reason:       ReasonLocked,
			RetryAfterMs: remaining,
			Err:          apperrors.PairingLocked(remaining),
		}
	}

	code = strings.TrimSpace(code)
	if !isSixDigits(code) {
		return SubmitResult{Outcome: OutcomeMalformed, Reason: c.promptReason()}
	}

	outputID, token, err := c.authority.RedeemCode(code, outputName, clientType)
	if err != nil {
		c.consecutiveFailures++
		log.Printf("auth: code rejected (%d/%d consecutive failures): %v",
			c.consecutiveFailures, c.threshold, err)

		if c.consecutiveFailures >= c.threshold {
			return c.enterLock(now, err)
		}
		return SubmitResult{Outcome: OutcomeRejected, Reason: ReasonRejected, Err: err}
	}

	c.state = StateAccepted
	c.consecutiveFailures = 0
	c.lockedUntil = time.Time{}

	return SubmitResult{
		Outcome:  OutcomeAccepted,
		OutputID: outputID,
		Token:    token,
	}
}

// Cancel abandons the challenge. The lock state is left untouched so
// cancelling cannot be used to reset a lockout.
func (c *Challenge) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateAwaitingCode {
		c.state = StateIdle
	}
}

// RetryAfterMs returns the remaining lock countdown, clamped at zero.
func (c *Challenge) RetryAfterMs() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.timeNow()
	c.resolveLock(now)
	if c.state != StateLocked {
		return 0
	}
	return c.lockedUntil.Sub(now).Milliseconds()
}

// enterLock transitions to LOCKED. A non-positive countdown at entry
// falls straight through back to awaiting-code instead of presenting
// a stalled lock screen. Must be called with c.mu held.
func (c *Challenge) enterLock(now time.Time, cause error) SubmitResult {
	c.lockedUntil = now.Add(c.lockoutDuration)
	remaining := c.lockedUntil.Sub(now).Milliseconds()

	if remaining <= 0 {
		c.state = StateAwaitingCode
		c.consecutiveFailures = 0
		c.lockedUntil = time.Time{}
		return SubmitResult{Outcome: OutcomeRejected, Reason: ReasonRejected, Err: cause}
	}

	c.state = StateLocked
	log.Printf("auth: pairing locked for %dms after %d consecutive failures", remaining, c.threshold)

	return SubmitResult{
		Outcome:      OutcomeLocked,
		Reason:       ReasonLocked,
		RetryAfterMs: remaining,
		Err:          cause,
	}
}

// resolveLock clears an expired lock and resets the failure count.
// Must be called with c.mu held.
func (c *Challenge) resolveLock(now time.Time) {
	if c.state != StateLocked {
		return
	}
	if now.Before(c.lockedUntil) {
		return
	}
	c.state = StateAwaitingCode
	c.consecutiveFailures = 0
	c.lockedUntil = time.Time{}
}

// promptReason reports the prompt variant for the current attempt.
// Must be called with c.mu held.
func (c *Challenge) promptReason() PromptReason {
	if c.consecutiveFailures > 0 {
		return ReasonRejected
	}
	return ReasonFirstAttempt
}

func isSixDigits(s string) bool {
	if len(s) != 6 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
