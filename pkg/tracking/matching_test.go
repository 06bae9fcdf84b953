package tracking

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	"github.com/teslashibe/go-wayfinder/pkg/events"
)

func box(x, y, w, h float64) events.BBox { return events.BBox{X: x, Y: y, W: w, H: h} }

func TestIoU(t *testing.T) {
	tests := []struct {
		name string
		a, b events.BBox
		want float64
	}{
		{"identical", box(0.1, 0.1, 0.2, 0.2), box(0.1, 0.1, 0.2, 0.2), 1},
		{"disjoint", box(0, 0, 0.1, 0.1), box(0.5, 0.5, 0.1, 0.1), 0},
		{"touching edges", box(0, 0, 0.1, 0.1), box(0.1, 0, 0.1, 0.1), 0},
		{"half overlap", box(0, 0, 0.2, 0.1), box(0.1, 0, 0.2, 0.1), 1.0 / 3},
		{"contained", box(0, 0, 0.4, 0.4), box(0.1, 0.1, 0.2, 0.2), 0.25},
		{"degenerate", box(0.2, 0.2, 0, 0), box(0.2, 0.2, 0, 0), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, IoU(tt.a, tt.b), 1e-9)
			assert.InDelta(t, IoU(tt.a, tt.b), IoU(tt.b, tt.a), 1e-12, "IoU is symmetric")
		})
	}
}

func TestMatchSingleOverlap(t *testing.T) {
	res := Match(
		[]events.BBox{box(0.1, 0.1, 0.1, 0.1)},
		[]TrackBox{{ID: 1, BBox: box(0.12, 0.12, 0.1, 0.1)}},
		0.3,
	)
	want := MatchResult{Matches: map[int]int{0: 1}}
	if diff := cmp.Diff(want, res); diff != "" {
		t.Errorf("Match mismatch (-want +got):\n%s", diff)
	}
}

func TestMatchGreedyByIoU(t *testing.T) {
	// Detection 0 overlaps both tracks; track 2 is the better fit, so detection 1
	// has to settle for nothing even though it overlaps track 2 a little.
	dets := []events.BBox{box(0.50, 0.5, 0.2, 0.2), box(0.62, 0.5, 0.2, 0.2)}
	tracks := []TrackBox{
		{ID: 1, BBox: box(0.40, 0.5, 0.2, 0.2)},
		{ID: 2, BBox: box(0.51, 0.5, 0.2, 0.2)},
	}
	res := Match(dets, tracks, 0.3)

	want := MatchResult{
		Matches:             map[int]int{0: 2},
		UnmatchedDetections: []int{1},
		UnmatchedTracks:     []int{1},
	}
	if diff := cmp.Diff(want, res); diff != "" {
		t.Errorf("Match mismatch (-want +got):\n%s", diff)
	}
}

func TestMatchTieKeepsGenerationOrder(t *testing.T) {
	// Two identical detections against one track: the first detection wins.
	d := box(0.2, 0.2, 0.2, 0.2)
	res := Match([]events.BBox{d, d}, []TrackBox{{ID: 9, BBox: d}}, 0.3)
	assert.Equal(t, map[int]int{0: 9}, res.Matches)
	assert.Equal(t, []int{1}, res.UnmatchedDetections)

	// One detection against two identical tracks: the first listed track wins.
	res = Match([]events.BBox{d}, []TrackBox{{ID: 3, BBox: d}, {ID: 4, BBox: d}}, 0.3)
	assert.Equal(t, map[int]int{0: 3}, res.Matches)
	assert.Equal(t, []int{4}, res.UnmatchedTracks)
}

func TestMatchBelowThreshold(t *testing.T) {
	res := Match([]events.BBox{box(0, 0, 0.2, 0.2)}, []TrackBox{{ID: 1, BBox: box(0.15, 0.15, 0.2, 0.2)}}, 0.3)
	assert.Empty(t, res.Matches)
	assert.Equal(t, []int{0}, res.UnmatchedDetections)
	assert.Equal(t, []int{1}, res.UnmatchedTracks)
}

func TestMatchZeroThresholdIgnoresDisjoint(t *testing.T) {
	res := Match([]events.BBox{box(0, 0, 0.1, 0.1)}, []TrackBox{{ID: 1, BBox: box(0.8, 0.8, 0.1, 0.1)}}, 0)
	assert.Empty(t, res.Matches)
}

func TestMatchIsDeterministic(t *testing.T) {
	dets := []events.BBox{box(0.1, 0.1, 0.2, 0.2), box(0.15, 0.1, 0.2, 0.2), box(0.6, 0.6, 0.2, 0.2)}
	tracks := []TrackBox{{ID: 1, BBox: box(0.12, 0.1, 0.2, 0.2)}, {ID: 2, BBox: box(0.13, 0.1, 0.2, 0.2)}}
	first := Match(dets, tracks, 0.3)
	for i := 0; i < 50; i++ {
		if diff := cmp.Diff(first, Match(dets, tracks, 0.3)); diff != "" {
			t.Fatalf("run %d differs:\n%s", i, diff)
		}
	}
}
