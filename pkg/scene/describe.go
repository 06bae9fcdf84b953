// Package scene periodically summarizes everything currently in view.
package scene

import (
	"fmt"
	"slices"
	"strings"

	"github.com/teslashibe/go-wayfinder/pkg/events"
)

// ClearPath is spoken when a description is requested and nothing is in view.
const ClearPath = "Path is clear"

// Describe renders a summary of the given readings, for example
// "3 objects detected: a chair ahead, 2 persons on the left. a chair nearby".
// It returns "" when entries is empty.
func Describe(entries []events.NavigationGuidance) string {
	if len(entries) == 0 {
		return ""
	}

	byDir := make(map[events.Direction][]string)
	var near []string
	for _, e := range entries {
		dir := e.Direction
		if dir == "" {
			dir = events.DirectionCenter
		}
		byDir[dir] = append(byDir[dir], e.Label)
		if e.Zone == events.ZoneNear {
			near = append(near, e.Label)
		}
	}

	var b strings.Builder
	if len(entries) == 1 {
		b.WriteString("One object detected")
	} else {
		fmt.Fprintf(&b, "%d objects detected", len(entries))
	}

	var parts []string
	for _, dir := range []events.Direction{events.DirectionCenter, events.DirectionLeft, events.DirectionRight} {
		labels, ok := byDir[dir]
		if !ok {
			continue
		}
		if dir == events.DirectionCenter {
			parts = append(parts, summarize(labels)+" ahead")
		} else {
			parts = append(parts, fmt.Sprintf("%s on the %s", summarize(labels), dir))
		}
	}
	if len(parts) > 0 {
		b.WriteString(": ")
		b.WriteString(strings.Join(parts, ", "))
	}

	if len(near) > 0 {
		b.WriteString(". ")
		b.WriteString(summarize(near))
		b.WriteString(" nearby")
	}
	return b.String()
}

// summarize counts labels in first-seen order: "a chair and 2 persons".
func summarize(labels []string) string {
	counts := make(map[string]int)
	var order []string
	for _, l := range labels {
		if counts[l] == 0 {
			order = append(order, l)
		}
		counts[l]++
	}

	items := make([]string, 0, len(order))
	for _, l := range order {
		if n := counts[l]; n == 1 {
			items = append(items, "a "+l)
		} else {
			items = append(items, fmt.Sprintf("%d %ss", n, l))
		}
	}

	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	case 2:
		return items[0] + " and " + items[1]
	default:
		return strings.Join(items[:len(items)-1], ", ") + ", and " + items[len(items)-1]
	}
}

// trackIDs returns the ids of entries in ascending order.
func trackIDs(entries []events.NavigationGuidance) []int {
	ids := make([]int, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.TrackID)
	}
	slices.Sort(ids)
	return ids
}
