package track

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cfg() Config {
	return Config{MaxGapTime: 500 * time.Millisecond, MaxDistance: 10}
}

func TestUpdateStartsNewTrackForUnmatchedObservation(t *testing.T) {
	tr := New(cfg())
	now := time.Unix(0, 0)
	finalized := tr.Update([]Observation{{X: 5, Y: 5, Brightness: 200}}, now)
	assert.Empty(t, finalized)
	assert.Equal(t, 1, tr.ActiveCount())
}

func TestUpdateExtendsTrackWithinGate(t *testing.T) {
	tr := New(cfg())
	t0 := time.Unix(0, 0)
	tr.Update([]Observation{{X: 0, Y: 0}}, t0)

	t1 := t0.Add(50 * time.Millisecond)
	tr.Update([]Observation{{X: 3, Y: 0}}, t1)

	require.Equal(t, 1, tr.ActiveCount())
	finalized := tr.FinalizeAll()
	require.Len(t, finalized, 1)
	assert.Len(t, finalized[0].Points, 2)
}

func TestUpdateStartsSeparateTrackWhenOutsideGate(t *testing.T) {
	tr := New(cfg())
	t0 := time.Unix(0, 0)
	tr.Update([]Observation{{X: 0, Y: 0}}, t0)

	t1 := t0.Add(100 * time.Millisecond)
	tr.Update([]Observation{{X: 50, Y: 50}}, t1) // far beyond MaxDistance

	assert.Equal(t, 2, tr.ActiveCount())
}

func TestUpdateFinalizesOnGapTimeout(t *testing.T) {
	tr := New(cfg())
	t0 := time.Unix(0, 0)
	tr.Update([]Observation{{X: 0, Y: 0}}, t0)

	t1 := t0.Add(time.Second) // exceeds MaxGapTime
	finalized := tr.Update(nil, t1)

	require.Len(t, finalized, 1)
	assert.Len(t, finalized[0].Points, 1)
	assert.Equal(t, 0, tr.ActiveCount())
}

func TestUpdatePredictsAlongVelocity(t *testing.T) {
	tr := New(Config{MaxGapTime: time.Second, MaxDistance: 15})
	t0 := time.Unix(0, 0)
	tr.Update([]Observation{{X: 0, Y: 0}}, t0)

	t1 := t0.Add(100 * time.Millisecond)
	tr.Update([]Observation{{X: 10, Y: 0}}, t1) // within gate; establishes velocity 100 px/s

	// Next observation is 20px from the last raw point (outside the 15px
	// gate) but exactly on the velocity-predicted point (10 + 100*0.2), so
	// gated association should still succeed.
	t2 := t1.Add(200 * time.Millisecond)
	tr.Update([]Observation{{X: 30, Y: 0}}, t2)

	require.Equal(t, 1, tr.ActiveCount())
	finalized := tr.FinalizeAll()
	require.Len(t, finalized, 1)
	assert.Len(t, finalized[0].Points, 3)
}

func TestFinalizeAllFlushesEverything(t *testing.T) {
	tr := New(cfg())
	now := time.Unix(0, 0)
	tr.Update([]Observation{{X: 0, Y: 0}, {X: 100, Y: 100}}, now)
	assert.Equal(t, 2, tr.ActiveCount())

	finalized := tr.FinalizeAll()
	assert.Len(t, finalized, 2)
	assert.Equal(t, 0, tr.ActiveCount())
}
