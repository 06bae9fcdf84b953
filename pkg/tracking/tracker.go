package tracking

import (
	"maps"
	"slices"

	"github.com/teslashibe/go-wayfinder/pkg/events"
)

// HistoryEntry is one observed position of a track.
type HistoryEntry struct {
	BBox        events.BBox
	FrameID     int
	TimestampMs int64
}

// Track is a persistent identity across frames.
type Track struct {
	ID                int
	Label             string
	Confidence        float64
	BBox              events.BBox
	History           []HistoryEntry // oldest first, bounded by Config.HistorySize
	Hits              int            // consecutive successful updates
	FramesSinceUpdate int
	Stable            bool // never reverts once set
}

// Velocity returns the center displacement between the two most recent
// history entries, or nil with fewer than two.
func (t *Track) Velocity() *events.Vec2 {
	n := len(t.History)
	if n < 2 {
		return nil
	}
	x1, y1 := t.History[n-2].BBox.Center()
	x2, y2 := t.History[n-1].BBox.Center()
	return &events.Vec2{DX: x2 - x1, DY: y2 - y1}
}

func (t *Track) push(e HistoryEntry, limit int) {
	t.History = append(t.History, e)
	if over := len(t.History) - limit; over > 0 {
		t.History = slices.Delete(t.History, 0, over)
	}
}

func (t *Track) update(frameID int, ts int64) events.TrackUpdate {
	return events.TrackUpdate{
		TrackID:     t.ID,
		FrameID:     frameID,
		TimestampMs: ts,
		Label:       t.Label,
		Confidence:  t.Confidence,
		BBox:        t.BBox,
		Velocity:    t.Velocity(),
		IsStable:    t.Stable,
	}
}

// StepResult is what one detection cycle produced.
type StepResult struct {
	Updates []events.TrackUpdate
	Lost    []int
}

// Tracker owns the track table. It is not safe for concurrent use; the
// tracking module's single task owns it.
type Tracker struct {
	cfg    Config
	nextID int
	tracks map[int]*Track
}

// New creates a tracker.
func New(opts ...Option) *Tracker {
	cfg := DefaultConfig()
	cfg.Apply(opts...)
	return &Tracker{cfg: cfg, nextID: 1, tracks: make(map[int]*Track)}
}

// Config returns the tracker configuration.
func (tr *Tracker) Config() Config { return tr.cfg }

// Len returns the number of live tracks.
func (tr *Tracker) Len() int { return len(tr.tracks) }

// Get returns a copy of a track.
func (tr *Tracker) Get(id int) (Track, bool) {
	t, ok := tr.tracks[id]
	if !ok {
		return Track{}, false
	}
	out := *t
	out.History = slices.Clone(t.History)
	return out, true
}

// ActiveTracks returns every live track id and box in ascending id order.
func (tr *Tracker) ActiveTracks() []TrackBox {
	out := make([]TrackBox, 0, len(tr.tracks))
	for _, id := range slices.Sorted(maps.Keys(tr.tracks)) {
		out = append(out, TrackBox{ID: id, BBox: tr.tracks[id].BBox})
	}
	return out
}

// Create starts a new track from an unmatched detection.
func (tr *Tracker) Create(det events.Detection, frameID int, ts int64) *Track {
	t := &Track{
		ID:         tr.nextID,
		Label:      det.Label,
		Confidence: det.Confidence,
		BBox:       det.BBox,
		Hits:       1,
	}
	t.Stable = t.Hits >= tr.cfg.StableHits
	t.push(HistoryEntry{BBox: det.BBox, FrameID: frameID, TimestampMs: ts}, tr.cfg.HistorySize)
	tr.tracks[t.ID] = t
	tr.nextID++
	return t
}

// Update applies a matched detection to track id.
func (tr *Tracker) Update(id int, det events.Detection, frameID int, ts int64) (*Track, bool) {
	t, ok := tr.tracks[id]
	if !ok {
		return nil, false
	}
	t.BBox = det.BBox
	t.Label = det.Label
	t.Confidence = det.Confidence
	t.push(HistoryEntry{BBox: det.BBox, FrameID: frameID, TimestampMs: ts}, tr.cfg.HistorySize)
	t.Hits++
	t.FramesSinceUpdate = 0
	if t.Hits >= tr.cfg.StableHits {
		t.Stable = true
	}
	return t, true
}

// MarkMissed ages every track not in matched and resets its hit streak.
func (tr *Tracker) MarkMissed(matched map[int]bool) {
	for id, t := range tr.tracks {
		if matched[id] {
			continue
		}
		t.FramesSinceUpdate++
		t.Hits = 0
	}
}

// EvictStale removes tracks that missed more than MaxAge cycles and returns
// their ids in ascending order.
func (tr *Tracker) EvictStale() []int {
	var evicted []int
	for id, t := range tr.tracks {
		if t.FramesSinceUpdate > tr.cfg.MaxAge {
			evicted = append(evicted, id)
		}
	}
	slices.Sort(evicted)
	for _, id := range evicted {
		delete(tr.tracks, id)
	}
	return evicted
}

// Step runs one full detection cycle: match, update, create, age, evict.
// Updates come out in detection order. Only matched tracks escape aging, so
// a track created this cycle ends it with no hit streak and one miss.
func (tr *Tracker) Step(res events.DetectionResult, iouThreshold float64) StepResult {
	boxes := make([]events.BBox, len(res.Detections))
	for i, d := range res.Detections {
		boxes[i] = d.BBox
	}
	m := Match(boxes, tr.ActiveTracks(), iouThreshold)

	out := StepResult{Updates: make([]events.TrackUpdate, 0, len(res.Detections))}
	matched := make(map[int]bool, len(m.Matches))
	for i, det := range res.Detections {
		var t *Track
		if id, ok := m.Matches[i]; ok {
			t, _ = tr.Update(id, det, res.FrameID, res.TimestampMs)
			matched[id] = true
		} else {
			t = tr.Create(det, res.FrameID, res.TimestampMs)
		}
		out.Updates = append(out.Updates, t.update(res.FrameID, res.TimestampMs))
	}

	tr.MarkMissed(matched)
	out.Lost = tr.EvictStale()
	return out
}
