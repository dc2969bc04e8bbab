package auth

import (
	"testing"
	"time"

	apperrors "github.com/PeterAlaks/lyric-display-app-sub003/internal/errors"
)

// fakeAuthority accepts a single expected code and counts how many
// submissions actually reach it.
type fakeAuthority struct {
	expected string
	calls    int
}

func (f *fakeAuthority) RedeemCode(code, outputName, clientType string) (string, string, error) {
	f.calls++
	if code != f.expected {
		return "", "", ErrCodeInvalid
	}
	return "out-1", "tok-1", nil
}

type challengeFixture struct {
	challenge *Challenge
	authority *fakeAuthority
	now       *time.Time
}

func newChallengeFixture(t *testing.T, threshold int, lockout time.Duration) *challengeFixture {
	t.Helper()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := &challengeFixture{
		authority: &fakeAuthority{expected: "123456"},
		now:       &now,
	}
	f.challenge = NewChallenge(ChallengeConfig{
		Threshold:       threshold,
		LockoutDuration: lockout,
		Authority:       f.authority,
		TimeNow:         func() time.Time { return *f.now },
	})
	if !f.challenge.Begin() {
		t.Fatal("Begin() = false on idle challenge")
	}
	return f
}

func (f *challengeFixture) advance(d time.Duration) {
	*f.now = f.now.Add(d)
}

func TestChallengeAccept(t *testing.T) {
	f := newChallengeFixture(t, 3, 30*time.Second)

	result := f.challenge.Submit("123456", "Stage", "output1")
	if result.Outcome != OutcomeAccepted {
		t.Fatalf("Outcome = %v, want OutcomeAccepted", result.Outcome)
	}
	if result.OutputID != "out-1" || result.Token != "tok-1" {
		t.Errorf("identity = (%q, %q), want (out-1, tok-1)", result.OutputID, result.Token)
	}
	if got := f.challenge.State(); got != StateAccepted {
		t.Errorf("State() = %v, want StateAccepted", got)
	}
}

func TestChallengeAcceptTrimsWhitespace(t *testing.T) {
	f := newChallengeFixture(t, 3, 30*time.Second)

	result := f.challenge.Submit("  123456\n", "Stage", "output1")
	if result.Outcome != OutcomeAccepted {
		t.Errorf("Outcome = %v, want OutcomeAccepted for padded code", result.Outcome)
	}
}

func TestChallengeMalformedCodes(t *testing.T) {
	f := newChallengeFixture(t, 3, 30*time.Second)

	malformed := []string{"", "12345", "1234567", "12a456", "12 456", "12345!"}
	for _, code := range malformed {
		result := f.challenge.Submit(code, "Stage", "output1")
		if result.Outcome != OutcomeMalformed {
			t.Errorf("Submit(%q) outcome = %v, want OutcomeMalformed", code, result.Outcome)
		}
	}

	// Malformed submissions never reach the authority and never
	// count toward lockout.
	if f.authority.calls != 0 {
		t.Errorf("authority called %d times for malformed codes, want 0", f.authority.calls)
	}

	// Still below threshold: one wrong code is just rejected.
	result := f.challenge.Submit("999999", "Stage", "output1")
	if result.Outcome != OutcomeRejected {
		t.Errorf("Outcome = %v, want OutcomeRejected", result.Outcome)
	}
}

func TestChallengeMalformedReason(t *testing.T) {
	f := newChallengeFixture(t, 3, 30*time.Second)

	result := f.challenge.Submit("abc", "Stage", "output1")
	if result.Reason != ReasonFirstAttempt {
		t.Errorf("Reason = %q, want %q", result.Reason, ReasonFirstAttempt)
	}

	f.challenge.Submit("999999", "Stage", "output1")

	result = f.challenge.Submit("abc", "Stage", "output1")
	if result.Reason != ReasonRejected {
		t.Errorf("Reason after rejection = %q, want %q", result.Reason, ReasonRejected)
	}
}

func TestChallengeLockoutAfterThreshold(t *testing.T) {
	const threshold = 3
	f := newChallengeFixture(t, threshold, 30*time.Second)

	for i := 0; i < threshold-1; i++ {
		result := f.challenge.Submit("999999", "Stage", "output1")
		if result.Outcome != OutcomeRejected {
			t.Fatalf("attempt %d: Outcome = %v, want OutcomeRejected", i+1, result.Outcome)
		}
	}

	// The Nth wrong code trips the lock.
	result := f.challenge.Submit("999999", "Stage", "output1")
	if result.Outcome != OutcomeLocked {
		t.Fatalf("Outcome = %v, want OutcomeLocked", result.Outcome)
	}
	if result.RetryAfterMs != 30000 {
		t.Errorf("RetryAfterMs = %d, want 30000", result.RetryAfterMs)
	}

	// While locked, even the correct code is refused without being
	// checked against the authority.
	callsBefore := f.authority.calls
	result = f.challenge.Submit("123456", "Stage", "output1")
	if result.Outcome != OutcomeLocked {
		t.Errorf("Outcome while locked = %v, want OutcomeLocked", result.Outcome)
	}
	if f.authority.calls != callsBefore {
		t.Errorf("authority consulted while locked (%d calls, want %d)", f.authority.calls, callsBefore)
	}
	if !apperrors.IsCode(result.Err, apperrors.CodePairingLocked) {
		t.Errorf("Err while locked = %v, want code %q", result.Err, apperrors.CodePairingLocked)
	}
}

func TestChallengeLockCountdown(t *testing.T) {
	f := newChallengeFixture(t, 1, 30*time.Second)

	f.challenge.Submit("999999", "Stage", "output1")

	f.advance(10 * time.Second)
	if got := f.challenge.RetryAfterMs(); got != 20000 {
		t.Errorf("RetryAfterMs() = %d, want 20000", got)
	}
}

func TestChallengeUnlockAfterWindow(t *testing.T) {
	f := newChallengeFixture(t, 1, 30*time.Second)

	f.challenge.Submit("999999", "Stage", "output1")
	if got := f.challenge.State(); got != StateLocked {
		t.Fatalf("State() = %v, want StateLocked", got)
	}

	f.advance(31 * time.Second)

	// Lock self-clears; the next correct code is accepted and the
	// failure count has been reset.
	if got := f.challenge.State(); got != StateAwaitingCode {
		t.Errorf("State() after window = %v, want StateAwaitingCode", got)
	}
	result := f.challenge.Submit("123456", "Stage", "output1")
	if result.Outcome != OutcomeAccepted {
		t.Errorf("Outcome after unlock = %v, want OutcomeAccepted", result.Outcome)
	}
}

func TestChallengeFailureCountResetsOnUnlock(t *testing.T) {
	f := newChallengeFixture(t, 2, 30*time.Second)

	f.challenge.Submit("999999", "Stage", "output1")
	f.challenge.Submit("999999", "Stage", "output1") // locks

	f.advance(time.Minute)

	// One wrong code after unlock must not immediately re-lock.
	result := f.challenge.Submit("999999", "Stage", "output1")
	if result.Outcome != OutcomeRejected {
		t.Errorf("Outcome = %v, want OutcomeRejected (count should have reset)", result.Outcome)
	}
}

func TestChallengeNonPositiveLockoutUnlocksImmediately(t *testing.T) {
	f := newChallengeFixture(t, 1, -time.Second)

	// With a non-positive window the lock entry falls straight back
	// to awaiting-code instead of presenting a stalled lock screen.
	result := f.challenge.Submit("999999", "Stage", "output1")
	if result.Outcome != OutcomeRejected {
		t.Fatalf("Outcome = %v, want OutcomeRejected fall-through", result.Outcome)
	}
	if got := f.challenge.State(); got != StateAwaitingCode {
		t.Errorf("State() = %v, want StateAwaitingCode", got)
	}

	next := f.challenge.Submit("123456", "Stage", "output1")
	if next.Outcome != OutcomeAccepted {
		t.Errorf("Outcome = %v, want OutcomeAccepted immediately after fall-through", next.Outcome)
	}
}

func TestChallengeAcceptResetsFailures(t *testing.T) {
	f := newChallengeFixture(t, 3, 30*time.Second)

	f.challenge.Submit("999999", "Stage", "output1")
	f.challenge.Submit("999999", "Stage", "output1")

	result := f.challenge.Submit("123456", "Stage", "output1")
	if result.Outcome != OutcomeAccepted {
		t.Fatalf("Outcome = %v, want OutcomeAccepted", result.Outcome)
	}

	// A fresh challenge starts with a clean slate.
	if !f.challenge.Begin() {
		t.Fatal("Begin() = false after accept")
	}
	for i := 0; i < 2; i++ {
		r := f.challenge.Submit("999999", "Stage", "output1")
		if r.Outcome != OutcomeRejected {
			t.Errorf("attempt %d after reset: Outcome = %v, want OutcomeRejected", i+1, r.Outcome)
		}
	}
}

func TestChallengeCancel(t *testing.T) {
	f := newChallengeFixture(t, 3, 30*time.Second)

	f.challenge.Submit("999999", "Stage", "output1")
	f.challenge.Cancel()

	if got := f.challenge.State(); got != StateIdle {
		t.Errorf("State() after cancel = %v, want StateIdle", got)
	}
	if f.challenge.InProgress() {
		t.Error("InProgress() = true after cancel")
	}
}

func TestChallengeCancelDoesNotClearLock(t *testing.T) {
	f := newChallengeFixture(t, 1, 30*time.Second)

	f.challenge.Submit("999999", "Stage", "output1")
	f.challenge.Cancel()

	// Cancelling must not be usable to escape a lockout.
	if got := f.challenge.State(); got != StateLocked {
		t.Errorf("State() after cancel while locked = %v, want StateLocked", got)
	}
}

func TestChallengeBeginWhileInProgress(t *testing.T) {
	f := newChallengeFixture(t, 3, 30*time.Second)

	if f.challenge.Begin() {
		t.Error("Begin() = true while awaiting code, want false")
	}
}
