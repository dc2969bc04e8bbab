package auth

import (
	"errors"
	"testing"
	"time"

	apperrors "github.com/PeterAlaks/lyric-display-app-sub003/internal/errors"
)

func pairedFixture(t *testing.T) (*mockOutputStore, string, string) {
	t.Helper()

	store := newMockOutputStore()
	pm := NewPairingManager(PairingConfig{OutputStore: store})

	code, err := pm.GenerateCode()
	if err != nil {
		t.Fatalf("GenerateCode failed: %v", err)
	}
	outputID, token, err := pm.RedeemCode(code, "Stage Left", "output1")
	if err != nil {
		t.Fatalf("RedeemCode failed: %v", err)
	}
	return store, outputID, token
}

func TestValidateToken(t *testing.T) {
	store, outputID, token := pairedFixture(t)

	tv := NewTokenValidator(store)
	output, err := tv.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}
	if output.ID != outputID {
		t.Errorf("output.ID = %q, want %q", output.ID, outputID)
	}
}

func TestValidateToken_Invalid(t *testing.T) {
	store, _, _ := pairedFixture(t)

	tv := NewTokenValidator(store)
	_, err := tv.ValidateToken("not-a-real-token")
	if !errors.Is(err, ErrOutputNotFound) {
		t.Errorf("ValidateToken error = %v, want ErrOutputNotFound", err)
	}
	if !apperrors.IsCode(err, apperrors.CodeAuthInvalid) {
		t.Errorf("ValidateToken error = %v, want code %q", err, apperrors.CodeAuthInvalid)
	}
}

func TestValidateToken_UpdatesLastSeen(t *testing.T) {
	store, outputID, token := pairedFixture(t)

	later := time.Now().Add(time.Hour)
	tv := NewTokenValidator(store)
	tv.timeNow = func() time.Time { return later }

	if _, err := tv.ValidateToken(token); err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}

	output, _ := store.GetOutput(outputID)
	if !output.LastSeen.Equal(later) {
		t.Errorf("LastSeen = %v, want %v", output.LastSeen, later)
	}
}

func TestValidateToken_RevokedOutput(t *testing.T) {
	store, outputID, token := pairedFixture(t)

	// Revocation deletes the row; the token must stop validating.
	if err := store.DeleteOutput(outputID); err != nil {
		t.Fatalf("DeleteOutput failed: %v", err)
	}

	tv := NewTokenValidator(store)
	_, err := tv.ValidateToken(token)
	if !errors.Is(err, ErrOutputNotFound) {
		t.Errorf("ValidateToken error = %v, want ErrOutputNotFound after revocation", err)
	}
}

func TestValidateOutputID(t *testing.T) {
	store, outputID, _ := pairedFixture(t)

	tv := NewTokenValidator(store)
	output, err := tv.ValidateOutputID(outputID)
	if err != nil {
		t.Fatalf("ValidateOutputID failed: %v", err)
	}
	if output.ID != outputID {
		t.Errorf("output.ID = %q, want %q", output.ID, outputID)
	}

	if _, err := tv.ValidateOutputID("missing"); !errors.Is(err, ErrOutputNotFound) {
		t.Errorf("ValidateOutputID(missing) error = %v, want ErrOutputNotFound", err)
	}
}
