package evaluate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meteorwatch/internal/track"
)

func mkCandidate(startT, endT time.Time, sx, sy, ex, ey float64) Candidate {
	duration := endT.Sub(startT).Seconds()
	length := euclid(sx, sy, ex, ey)
	return Candidate{
		Start:      track.Point{Time: startT, X: sx, Y: sy},
		End:        track.Point{Time: endT, X: ex, Y: ey},
		Duration:   duration,
		Length:     length,
		Speed:      length / duration,
		Confidence: 0.5,
	}
}

func TestMergerMergesContiguousColinearSegments(t *testing.T) {
	p := Defaults()
	p.MergeMaxGapTimeSeconds = 1.0
	p.MergeMaxDistance = 50
	p.MergeMaxSpeedRatio = 0.5
	m := NewMerger(p)

	t0 := time.Unix(0, 0)
	a := mkCandidate(t0, t0.Add(200*time.Millisecond), 0, 0, 20, 0)
	b := mkCandidate(t0.Add(700*time.Millisecond), t0.Add(900*time.Millisecond), 20, 0, 40, 0)

	m.Add(a)
	out := m.Add(b)
	assert.Empty(t, out, "merged event should not flush until its gap window elapses")

	flushed := m.Flush()
	require.Len(t, flushed, 1)
	assert.Equal(t, 0.0, flushed[0].Start.Start.X)
	assert.Equal(t, 40.0, flushed[0].End.End.X)
}

func TestMergerKeepsSegmentsSeparateWhenGapTooLarge(t *testing.T) {
	p := Defaults()
	p.MergeMaxGapTimeSeconds = 0.1
	m := NewMerger(p)

	t0 := time.Unix(0, 0)
	a := mkCandidate(t0, t0.Add(200*time.Millisecond), 0, 0, 20, 0)
	b := mkCandidate(t0.Add(2*time.Second), t0.Add(2200*time.Millisecond), 20, 0, 40, 0)

	// b arrives 1.8s after a ends, so Add(b) already flushes a as aged out;
	// Flush then returns b. Together they are two separate events.
	events := m.Add(a)
	events = append(events, m.Add(b)...)
	events = append(events, m.Flush()...)
	require.Len(t, events, 2)
}

func TestMergerFlushesAgedEvents(t *testing.T) {
	p := Defaults()
	p.MergeMaxGapTimeSeconds = 0.1
	m := NewMerger(p)

	t0 := time.Unix(0, 0)
	a := mkCandidate(t0, t0.Add(200*time.Millisecond), 0, 0, 20, 0)
	out := m.Add(a)
	assert.Empty(t, out)

	later := mkCandidate(t0.Add(5*time.Second), t0.Add(5200*time.Millisecond), 500, 500, 520, 500)
	out2 := m.Add(later)
	require.Len(t, out2, 1, "the stale first event should flush once a later Add observes it has aged out")
}
