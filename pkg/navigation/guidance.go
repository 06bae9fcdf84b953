package navigation

import (
	"fmt"

	"github.com/teslashibe/go-wayfinder/pkg/events"
)

// GuidanceText renders the phrase spoken for a reading.
func GuidanceText(label string, dir events.Direction, zone events.Zone, mv events.Movement) string {
	switch mv {
	case events.MovementApproaching:
		switch zone {
		case events.ZoneNear:
			return fmt.Sprintf("%s very close, %s", label, dir)
		case events.ZoneMid:
			return fmt.Sprintf("%s approaching on %s", label, dir)
		default:
			return fmt.Sprintf("%s detected %s", label, dir)
		}
	case events.MovementReceding:
		return fmt.Sprintf("%s moving away", label)
	default:
		switch zone {
		case events.ZoneNear:
			return fmt.Sprintf("%s nearby on %s", label, dir)
		case events.ZoneMid:
			return fmt.Sprintf("%s ahead on %s", label, dir)
		default:
			return fmt.Sprintf("%s %s", label, dir)
		}
	}
}

// Analyze classifies a track update. history holds the track's recent boxes,
// oldest first, ending with u.BBox.
func Analyze(u events.TrackUpdate, history []events.BBox) events.NavigationGuidance {
	dir := DirectionOf(u.BBox)
	zone := ZoneOf(u.BBox)
	mv := MovementOf(u.BBox, history)

	return events.NavigationGuidance{
		TimestampMs:  u.TimestampMs,
		TrackID:      u.TrackID,
		Label:        u.Label,
		Direction:    dir,
		Zone:         zone,
		Movement:     mv,
		Urgency:      UrgencyOf(zone, mv),
		GuidanceText: GuidanceText(u.Label, dir, zone, mv),
	}
}
