// Package tracking assigns detections to persistent tracks across frames.
package tracking

import (
	"slices"
	"sort"

	"github.com/teslashibe/go-wayfinder/pkg/events"
)

// IoU returns the intersection-over-union of two boxes. Disjoint boxes and
// boxes whose union has no area score 0.
func IoU(a, b events.BBox) float64 {
	x1 := max(a.X, b.X)
	y1 := max(a.Y, b.Y)
	x2 := min(a.X+a.W, b.X+b.W)
	y2 := min(a.Y+a.H, b.Y+b.H)

	if x2 <= x1 || y2 <= y1 {
		return 0
	}

	inter := (x2 - x1) * (y2 - y1)
	union := a.Area() + b.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// TrackBox is a track id with its current box.
type TrackBox struct {
	ID   int
	BBox events.BBox
}

// MatchResult is the outcome of one assignment round.
type MatchResult struct {
	Matches             map[int]int // detection index -> track id
	UnmatchedDetections []int       // ascending detection indices
	UnmatchedTracks     []int       // ascending track ids
}

type candidate struct {
	det   int
	track int
	iou   float64
}

// Match greedily pairs detections with tracks by descending IoU. Pairs below
// threshold are never considered. Equal IoU keeps generation order: detection
// index first, then the order of tracks as given.
func Match(dets []events.BBox, tracks []TrackBox, threshold float64) MatchResult {
	var pairs []candidate
	for i, d := range dets {
		for _, t := range tracks {
			if iou := IoU(d, t.BBox); iou >= threshold && iou > 0 {
				pairs = append(pairs, candidate{det: i, track: t.ID, iou: iou})
			}
		}
	}

	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].iou > pairs[j].iou })

	res := MatchResult{Matches: make(map[int]int)}
	usedTracks := make(map[int]bool)
	for _, p := range pairs {
		if _, taken := res.Matches[p.det]; taken || usedTracks[p.track] {
			continue
		}
		res.Matches[p.det] = p.track
		usedTracks[p.track] = true
	}

	for i := range dets {
		if _, ok := res.Matches[i]; !ok {
			res.UnmatchedDetections = append(res.UnmatchedDetections, i)
		}
	}
	for _, t := range tracks {
		if !usedTracks[t.ID] {
			res.UnmatchedTracks = append(res.UnmatchedTracks, t.ID)
		}
	}
	slices.Sort(res.UnmatchedTracks)
	return res
}
