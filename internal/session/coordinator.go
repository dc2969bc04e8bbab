// Package session orchestrates pairing, credential storage, and
// state broadcast for one controller instance.
package session

import (
	"log"
	"sync"
	"time"

	"github.com/PeterAlaks/lyric-display-app-sub003/internal/auth"
	"github.com/PeterAlaks/lyric-display-app-sub003/internal/broadcast"
	apperrors "github.com/PeterAlaks/lyric-display-app-sub003/internal/errors"
	"github.com/PeterAlaks/lyric-display-app-sub003/internal/state"
	"github.com/PeterAlaks/lyric-display-app-sub003/internal/vault"
)

// CredentialStore is the vault surface the coordinator uses.
type CredentialStore interface {
	Read(clientType, deviceID string) *vault.Credential
	Write(clientType, deviceID, token string, expiresAt *time.Time)
	Clear(clientType, deviceID string)
}

// Broadcaster delivers a state snapshot to connected outputs.
type Broadcaster interface {
	Broadcast(snap state.Snapshot) (broadcast.Result, error)
}

// AttachResult is the outcome of a device attach attempt.
type AttachResult struct {
	// Admitted is true when a cached credential covered the device
	// and no pairing is needed.
	Admitted bool

	// Token is the session token to present, set only when Admitted.
	Token string

	// PairingRequired is true when the device must complete a
	// pairing challenge before it can attach.
	PairingRequired bool
}

// Notification is the single user-facing outcome of a resync. No
// partial-failure detail is exposed beyond success or failure; the
// operator is not a debugger.
type Notification struct {
	Success bool
	Message string
}

// Coordinator runs the session lifecycle: attach, pairing, credential
// persistence, and manual resync. One logical session per controller;
// concurrent pairing challenges are rejected as busy.
type Coordinator struct {
	mu sync.Mutex

	vault       CredentialStore
	challenge   *auth.Challenge
	syncState   *state.SyncState
	broadcaster Broadcaster

	// activeDevice owns the in-progress challenge; empty when none.
	activeDevice string

	timeNow func() time.Time
}

// Config wires a coordinator's collaborators.
type Config struct {
	Vault       CredentialStore
	Challenge   *auth.Challenge
	State       *state.SyncState
	Broadcaster Broadcaster

	// TimeNow returns the current time. Useful for testing.
	TimeNow func() time.Time
}

// New creates a coordinator.
func New(config Config) *Coordinator {
	if config.TimeNow == nil {
		config.TimeNow = time.Now
	}
	return &Coordinator{
		vault:       config.Vault,
		challenge:   config.Challenge,
		syncState:   config.State,
		broadcaster: config.Broadcaster,
		timeNow:     config.TimeNow,
	}
}

// Attach handles a device connection attempt. A live cached
// credential admits the device directly; otherwise a pairing
// challenge is opened for it. Returns a busy error if another device
// already has a challenge in progress.
func (c *Coordinator) Attach(clientType, deviceID string) (AttachResult, error) {
	if cred := c.vault.Read(clientType, deviceID); cred != nil && !cred.Expired(c.timeNow()) {
		log.Printf("session: device %s attached with cached credential", deviceID)
		return AttachResult{Admitted: true, Token: cred.Token}, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.challenge.InProgress() && c.activeDevice != deviceID {
		log.Printf("session: rejecting attach from %s, pairing busy with %s", deviceID, c.activeDevice)
		return AttachResult{}, apperrors.PairingBusy()
	}

	if !c.challenge.InProgress() {
		c.challenge.Begin()
		c.activeDevice = deviceID
		log.Printf("session: pairing challenge opened for device %s", deviceID)
	}

	return AttachResult{PairingRequired: true}, nil
}

// SubmitCode runs one pairing attempt for a device. Implements
// auth.PairingGateway. On acceptance the minted credential is written
// to the vault before the result is returned, so an immediate
// re-attach sees it.
func (c *Coordinator) SubmitCode(code, outputName, clientType, deviceID string) (auth.SubmitResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.challenge.InProgress() {
		if c.activeDevice != deviceID {
			return auth.SubmitResult{}, apperrors.PairingBusy()
		}
	} else {
		// Direct submission without a prior Attach opens the
		// challenge implicitly.
		c.challenge.Begin()
		c.activeDevice = deviceID
	}

	result := c.challenge.Submit(code, outputName, clientType)

	if result.Outcome == auth.OutcomeAccepted {
		c.vault.Write(clientType, deviceID, result.Token, nil)
		c.activeDevice = ""
		log.Printf("session: device %s paired and credential stored", deviceID)
	}

	return result, nil
}

// CancelPairing abandons the challenge owned by deviceID. Resolves
// with no side effects on lock state; cancelling is not an escape
// hatch from a lockout.
func (c *Coordinator) CancelPairing(deviceID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.activeDevice != deviceID {
		return
	}
	c.challenge.Cancel()
	if c.challenge.State() == auth.StateIdle {
		c.activeDevice = ""
	}
	log.Printf("session: pairing cancelled by device %s", deviceID)
}

// Detach signs a device out, removing its stored credential.
func (c *Coordinator) Detach(clientType, deviceID string) {
	c.vault.Clear(clientType, deviceID)
	log.Printf("session: device %s detached, credential cleared", deviceID)
}

// Resync snapshots the current state and broadcasts it, collapsing
// the result into a single success or failure notification.
func (c *Coordinator) Resync() Notification {
	result, err := c.broadcaster.Broadcast(c.syncState.Snapshot())
	if err != nil {
		log.Printf("session: resync failed: %v", err)
		if apperrors.IsCode(err, apperrors.CodeSyncNotReady) {
			return Notification{Success: false, Message: "Outputs are not connected"}
		}
		return Notification{Success: false, Message: "Resync failed"}
	}

	if !result.Success {
		log.Printf("session: resync partially failed: %v", result.FailedTargets)
		return Notification{Success: false, Message: "Resync failed"}
	}

	return Notification{Success: true, Message: "Outputs synchronized"}
}
