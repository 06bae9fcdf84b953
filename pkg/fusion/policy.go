// Package fusion decides which navigation readings become spoken announcements.
package fusion

import "github.com/teslashibe/go-wayfinder/pkg/events"

// Policy rate-limits announcements per track. It is owned by one goroutine.
type Policy struct {
	lastAnnounced map[int]int64
	count         int
}

// NewPolicy returns an empty policy.
func NewPolicy() *Policy {
	return &Policy{lastAnnounced: make(map[int]int64)}
}

// ShouldAnnounce reports whether a reading for trackID at timestampMs should
// be spoken. Critical readings always pass. Otherwise the track must be
// stable and outside its cooldown.
func (p *Policy) ShouldAnnounce(trackID int, timestampMs int64, urgency events.Urgency, stable bool, cooldownMs int64) bool {
	if urgency == events.UrgencyCritical {
		return true
	}
	if !stable {
		return false
	}
	if last, ok := p.lastAnnounced[trackID]; ok && timestampMs-last < cooldownMs {
		return false
	}
	return true
}

// Record notes an announcement and returns the running total.
func (p *Policy) Record(trackID int, timestampMs int64) int {
	p.lastAnnounced[trackID] = timestampMs
	p.count++
	return p.count
}

// Forget drops the cooldown entry of a track.
func (p *Policy) Forget(trackID int) {
	delete(p.lastAnnounced, trackID)
}

// Count returns the number of recorded announcements.
func (p *Policy) Count() int { return p.count }

// PriorityOf maps urgency to announcement priority, 1 being the most urgent.
func PriorityOf(u events.Urgency) int {
	switch u {
	case events.UrgencyCritical:
		return 1
	case events.UrgencyHigh:
		return 2
	case events.UrgencyMedium:
		return 3
	case events.UrgencyLow:
		return 4
	default:
		return 5
	}
}

// KindOf classifies an announcement by the object label.
func KindOf(label string) events.Kind {
	switch label {
	case "hazard", "obstacle":
		return events.KindHazard
	case "person", "vehicle":
		return events.KindObject
	default:
		return events.KindNavigation
	}
}
