// Package broadcast pushes the controller's authoritative state to
// connected outputs and reports an aggregate result.
package broadcast

import (
	"fmt"
	"log"

	apperrors "github.com/PeterAlaks/lyric-display-app-sub003/internal/errors"
	"github.com/PeterAlaks/lyric-display-app-sub003/internal/state"
)

// Transport is the delivery capability the broadcaster drives. Each
// push reports delivery success as a boolean; retry policy lives in
// the transport, never here.
type Transport interface {
	IsConnected() bool
	IsAuthenticated() bool
	IsReady() bool

	PushLyrics(lines []state.LyricLine) bool
	PushLineSelection(index int) bool
	PushStyle(outputID string, style state.Style) bool
	PushVisibility(visible bool) bool
}

// Push target names reported in Result.FailedTargets.
const (
	TargetLyrics     = "lyrics"
	TargetLine       = "line"
	TargetVisibility = "visibility"
)

// StyleTarget names the style push for one output identifier.
func StyleTarget(outputID string) string {
	return "style:" + outputID
}

// Result is the aggregate outcome of one broadcast.
type Result struct {
	// Success is true only if every push succeeded.
	Success bool

	// FailedTargets names every push that failed, in push order.
	FailedTargets []string
}

// Broadcaster delivers state snapshots over a transport.
type Broadcaster struct {
	transport Transport
}

// New creates a broadcaster over the given transport.
func New(transport Transport) *Broadcaster {
	return &Broadcaster{transport: transport}
}

// Broadcast pushes a snapshot to all connected outputs.
//
// The transport must be connected, authenticated, and ready;
// otherwise the broadcast fails fast with a not-ready error and zero
// pushes are attempted.
//
// Push order is fixed: lyrics, then line selection (if any), then
// styles in canonical output order, then visibility. The visibility
// toggle is always pushed, even with no lyrics loaded, so an empty
// output still reflects whether it should be shown. A failed push
// does not abort the rest of the sequence.
func (b *Broadcaster) Broadcast(snap state.Snapshot) (result Result, err error) {
	if !b.transport.IsConnected() || !b.transport.IsAuthenticated() || !b.transport.IsReady() {
		return Result{}, apperrors.SyncNotReady()
	}

	// A panic anywhere in the push sequence is a full failure, kept
	// for diagnostics but never re-raised into the caller.
	defer func() {
		if r := recover(); r != nil {
			log.Printf("broadcast: panic during push sequence: %v", r)
			result = Result{Success: false, FailedTargets: []string{"panic"}}
			err = apperrors.New(apperrors.CodeSyncPartialFailure, fmt.Sprintf("broadcast panicked: %v", r))
		}
	}()

	var failed []string

	if len(snap.Lyrics) > 0 {
		if !b.transport.PushLyrics(snap.Lyrics) {
			failed = append(failed, TargetLyrics)
		}
		if snap.SelectedLine != nil {
			if !b.transport.PushLineSelection(*snap.SelectedLine) {
				failed = append(failed, TargetLine)
			}
		}
		for _, outputID := range state.CanonicalOutputs {
			style, ok := snap.Styles[outputID]
			if !ok {
				continue
			}
			if !b.transport.PushStyle(outputID, style) {
				failed = append(failed, StyleTarget(outputID))
			}
		}
	}

	if !b.transport.PushVisibility(snap.Visible) {
		failed = append(failed, TargetVisibility)
	}

	if len(failed) > 0 {
		log.Printf("broadcast: %d push(es) failed: %v", len(failed), failed)
	}

	return Result{Success: len(failed) == 0, FailedTargets: failed}, nil
}
