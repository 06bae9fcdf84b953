// Package control holds the runtime knobs shared by every pipeline stage.
//
// Stages read a Snapshot on every event instead of caching values, so a
// change applied through Update takes effect on the next event.
package control

import "sync"

// Settings is a consistent copy of the control fields.
type Settings struct {
	Paused                 bool    `json:"paused"`
	Speed                  float64 `json:"speed"`
	PendingSeek            *int    `json:"pending_seek,omitempty"`
	DetectionConfThreshold float64 `json:"detection_conf_threshold"`
	TrackerIoUThreshold    float64 `json:"tracker_iou_threshold"`
	FusionCooldownSeconds  float64 `json:"fusion_cooldown_seconds"`
}

// DefaultSettings returns the startup values.
func DefaultSettings() Settings {
	return Settings{
		Paused:                 false,
		Speed:                  1.0,
		DetectionConfThreshold: 0.5,
		TrackerIoUThreshold:    0.3,
		FusionCooldownSeconds:  3.0,
	}
}

// CooldownMs returns the fusion cooldown in milliseconds.
func (s Settings) CooldownMs() int64 {
	return int64(s.FusionCooldownSeconds * 1000)
}

// State is the lock-guarded shared control structure.
type State struct {
	mu sync.Mutex
	s  Settings
}

// New returns a State initialized with DefaultSettings and then opts.
func New(opts ...func(*Settings)) *State {
	st := &State{s: DefaultSettings()}
	for _, opt := range opts {
		opt(&st.s)
	}
	return st
}

// Snapshot returns a copy taken under the lock.
func (st *State) Snapshot() Settings {
	st.mu.Lock()
	defer st.mu.Unlock()
	out := st.s
	if st.s.PendingSeek != nil {
		v := *st.s.PendingSeek
		out.PendingSeek = &v
	}
	return out
}

// Update applies fn to the settings atomically.
func (st *State) Update(fn func(*Settings)) {
	st.mu.Lock()
	defer st.mu.Unlock()
	fn(&st.s)
}

// SetPaused sets the pause flag.
func (st *State) SetPaused(paused bool) {
	st.Update(func(s *Settings) { s.Paused = paused })
}

// SetSpeed sets the playback speed multiplier.
func (st *State) SetSpeed(speed float64) {
	st.Update(func(s *Settings) { s.Speed = speed })
}

// RequestSeek records a pending seek to frameID.
func (st *State) RequestSeek(frameID int) {
	st.Update(func(s *Settings) { s.PendingSeek = &frameID })
}

// TakeSeek returns and clears the pending seek, if any.
func (st *State) TakeSeek() (int, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.s.PendingSeek == nil {
		return 0, false
	}
	v := *st.s.PendingSeek
	st.s.PendingSeek = nil
	return v, true
}
