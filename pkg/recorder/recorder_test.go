package recorder

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-wayfinder/internal/log"
	"github.com/teslashibe/go-wayfinder/pkg/control"
	"github.com/teslashibe/go-wayfinder/pkg/events"
	"github.com/teslashibe/go-wayfinder/pkg/resultbus"
	"github.com/teslashibe/go-wayfinder/pkg/stage"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "wayfinder.db"), log.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordRequiresRun(t *testing.T) {
	s := openStore(t)
	err := s.RecordAnnouncement(context.Background(), events.FusionAnnouncement{Text: "x"})
	assert.ErrorIs(t, err, ErrNoRun)
	_, err = s.RecentAnnouncements(context.Background(), 10)
	assert.ErrorIs(t, err, ErrNoRun)
}

func TestAnnouncementsNewestFirst(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	_, err := s.StartRun(ctx, "clip")
	require.NoError(t, err)

	require.NoError(t, s.RecordAnnouncement(ctx, events.FusionAnnouncement{
		TimestampMs: 100, Text: "chair ahead", Kind: events.KindObject, Priority: 3, SourceTrackIDs: []int{1},
	}))
	require.NoError(t, s.RecordAnnouncement(ctx, events.FusionAnnouncement{
		TimestampMs: 200, Text: "Stop! person", Kind: events.KindHazard, Priority: 1, SourceTrackIDs: []int{2, 3},
	}))
	require.NoError(t, s.RecordAnnouncement(ctx, events.FusionAnnouncement{
		TimestampMs: 300, Text: "Path is clear", Kind: events.KindStatus, Priority: 5,
	}))

	got, err := s.RecentAnnouncements(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Path is clear", got[0].Text)
	assert.Empty(t, got[0].SourceTrackIDs)
	assert.Equal(t, events.KindHazard, got[1].Kind)
	assert.Equal(t, []int{2, 3}, got[1].SourceTrackIDs)
}

func TestRunsAreIsolated(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	first, err := s.StartRun(ctx, "a")
	require.NoError(t, err)
	require.NoError(t, s.RecordMetric(ctx, events.SystemMetric{TimestampMs: 1, Name: "fps", Value: 30}))
	require.NoError(t, s.EndRun(ctx))

	second, err := s.StartRun(ctx, "b")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
	assert.Equal(t, second, s.RunID())

	metrics, err := s.Metrics(ctx, "fps", 10)
	require.NoError(t, err)
	assert.Empty(t, metrics)

	runs, err := s.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	ids := []string{runs[0].ID, runs[1].ID}
	assert.ElementsMatch(t, []string{first, second}, ids)
	for _, r := range runs {
		if r.ID == first {
			assert.NotNil(t, r.EndedAt)
		} else {
			assert.Nil(t, r.EndedAt)
		}
	}
}

func TestMetricTags(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	_, err := s.StartRun(ctx, "clip")
	require.NoError(t, err)

	require.NoError(t, s.RecordMetric(ctx, events.SystemMetric{
		TimestampMs: 5, Name: "detection.latency_ms", Value: 12.5, Tags: map[string]string{"model": "stub"},
	}))
	got, err := s.Metrics(ctx, "detection.latency_ms", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 12.5, got[0].Value)
	assert.Equal(t, "stub", got[0].Tags["model"])
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wayfinder.db")
	s, err := Open(path, log.Discard())
	require.NoError(t, err)
	_, err = s.StartRun(context.Background(), "clip")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path, log.Discard())
	require.NoError(t, err)
	defer s.Close()
	runs, err := s.Runs(context.Background())
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestModulePersistsEvents(t *testing.T) {
	s := openStore(t)
	_, err := s.StartRun(context.Background(), "clip")
	require.NoError(t, err)

	env := stage.Env{
		Results: resultbus.New(resultbus.WithLogger(log.Discard())),
		Control: control.New(),
	}
	m := NewModule(s, log.Discard())
	tasks, err := m.Start(context.Background(), env)
	require.NoError(t, err)

	env.Results.Publish(events.TrackUpdate{TrackID: 1})
	env.Results.Publish(events.FusionAnnouncement{TimestampMs: 10, Text: "door on the left", Priority: 3})
	env.Results.Publish(events.SceneDescription{TimestampMs: 20, Description: "Ahead: chair", ObjectCount: 1})
	env.Results.Publish(events.SystemMetric{TimestampMs: 30, Name: "fps", Value: 29.5})

	assert.Eventually(t, func() bool {
		n, err := s.SceneCount(context.Background())
		return err == nil && n == 1
	}, time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool {
		got, err := s.Metrics(context.Background(), "fps", 1)
		return err == nil && len(got) == 1
	}, time.Second, 10*time.Millisecond)

	got, err := s.RecentAnnouncements(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "door on the left", got[0].Text)

	m.Stop()
	for _, task := range tasks {
		<-task.Done()
	}
}
