// Package state holds the controller's authoritative display
// snapshot. Outputs keep only cached copies that converge to it.
package state

import "sync"

// Output identifiers in canonical push order. Style updates are
// delivered in this order so partial failures degrade predictably.
var CanonicalOutputs = []string{"output1", "output2", "stage"}

// LyricLine is one line of the loaded lyric set.
type LyricLine struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

// Style is the per-output rendering configuration.
type Style struct {
	FontFamily string `json:"fontFamily,omitempty"`
	FontSize   int    `json:"fontSize,omitempty"`
	FontColor  string `json:"fontColor,omitempty"`
	Background string `json:"background,omitempty"`
	Alignment  string `json:"alignment,omitempty"`
}

// Snapshot is an immutable copy of the sync state, taken under lock
// and safe to read without one.
type Snapshot struct {
	Lyrics       []LyricLine
	SelectedLine *int
	Styles       map[string]Style
	Visible      bool
}

// SyncState is the mutable authoritative state. All methods are safe
// for concurrent use.
type SyncState struct {
	mu sync.RWMutex

	lyrics       []LyricLine
	selectedLine *int
	styles       map[string]Style
	visible      bool
}

// New returns an empty state: no lyrics, no selection, output hidden.
func New() *SyncState {
	return &SyncState{styles: make(map[string]Style)}
}

// SetLyrics replaces the loaded lyric set and clears the selection,
// since line indices from the previous set no longer apply.
func (s *SyncState) SetLyrics(lines []LyricLine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lyrics = append([]LyricLine(nil), lines...)
	s.selectedLine = nil
}

// SelectLine sets the active line index. Returns false if the index
// is out of range for the loaded lyric set.
func (s *SyncState) SelectLine(index int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.lyrics) {
		return false
	}
	s.selectedLine = &index
	return true
}

// ClearSelection removes the active line.
func (s *SyncState) ClearSelection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selectedLine = nil
}

// SetStyle stores the style for one output identifier.
func (s *SyncState) SetStyle(outputID string, style Style) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.styles[outputID] = style
}

// SetVisible toggles whether outputs should currently render.
func (s *SyncState) SetVisible(visible bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visible = visible
}

// Snapshot returns a deep copy of the current state.
func (s *SyncState) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Lyrics:  append([]LyricLine(nil), s.lyrics...),
		Styles:  make(map[string]Style, len(s.styles)),
		Visible: s.visible,
	}
	if s.selectedLine != nil {
		idx := *s.selectedLine
		snap.SelectedLine = &idx
	}
	for id, style := range s.styles {
		snap.Styles[id] = style
	}
	return snap
}
