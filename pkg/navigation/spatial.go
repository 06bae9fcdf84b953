// Package navigation turns track geometry into direction, distance, movement
// and urgency readings plus a short guidance phrase.
//
// The classifiers are pure functions. The Module keeps the only state: a
// short per-track box history it hands to the classifiers.
package navigation

import "github.com/teslashibe/go-wayfinder/pkg/events"

// Classification thresholds.
const (
	LeftBound   = 0.33 // center x below this is left
	CenterBound = 0.66 // center x below this is center

	NearArea = 0.15 // area above this is near
	MidArea  = 0.05 // area above this is mid

	GrowthRatio = 1.05 // area growth beyond this is approaching
	ShrinkRatio = 0.95 // area below this ratio is receding
)

// DirectionOf classifies the horizontal position of a box.
func DirectionOf(b events.BBox) events.Direction {
	cx, _ := b.Center()
	switch {
	case cx < LeftBound:
		return events.DirectionLeft
	case cx < CenterBound:
		return events.DirectionCenter
	default:
		return events.DirectionRight
	}
}

// ZoneOf classifies distance from box area.
func ZoneOf(b events.BBox) events.Zone {
	a := b.Area()
	switch {
	case a > NearArea:
		return events.ZoneNear
	case a > MidArea:
		return events.ZoneMid
	default:
		return events.ZoneFar
	}
}

// MovementOf compares the current area with the second most recent history
// entry. history must include current as its last element.
func MovementOf(current events.BBox, history []events.BBox) events.Movement {
	if len(history) < 2 {
		return events.MovementStationary
	}
	prev := history[len(history)-2].Area()
	cur := current.Area()
	switch {
	case cur > prev*GrowthRatio:
		return events.MovementApproaching
	case cur < prev*ShrinkRatio:
		return events.MovementReceding
	default:
		return events.MovementStationary
	}
}

// UrgencyOf combines zone and movement.
func UrgencyOf(zone events.Zone, mv events.Movement) events.Urgency {
	switch {
	case zone == events.ZoneNear && mv == events.MovementApproaching:
		return events.UrgencyCritical
	case zone == events.ZoneNear:
		return events.UrgencyHigh
	case zone == events.ZoneMid && mv == events.MovementApproaching:
		return events.UrgencyMedium
	default:
		return events.UrgencyLow
	}
}
