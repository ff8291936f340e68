package evaluate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meteorwatch/internal/track"
)

func straightTrack(n int, brightness float64) track.Track {
	t0 := time.Unix(0, 0)
	pts := make([]track.Point, n)
	for i := 0; i < n; i++ {
		frac := float64(i) / float64(n-1)
		pts[i] = track.Point{
			Time:       t0.Add(time.Duration(float64(i)*100) * time.Millisecond),
			X:          10 + frac*80,
			Y:          10 + frac*80,
			Brightness: brightness,
		}
	}
	return track.Track{ID: "t1", Points: pts}
}

func TestEvaluateAcceptsStraightFastTrack(t *testing.T) {
	p := Defaults()
	p.MinDuration = 0
	c, reason := Evaluate(AcceptanceContext{Track: straightTrack(6, 220), Params: p, Realtime: true})
	require.Equal(t, RejectNone, reason)
	require.NotNil(t, c)
	assert.InDelta(t, 113.1, c.Length, 1.0)
	assert.Greater(t, c.Linearity, 0.99)
	assert.Greater(t, c.Confidence, 0.5)
}

func TestEvaluateRejectsStationaryTrack(t *testing.T) {
	t0 := time.Unix(0, 0)
	pts := make([]track.Point, 50)
	for i := range pts {
		pts[i] = track.Point{Time: t0.Add(time.Duration(i) * 100 * time.Millisecond), X: 50, Y: 50, Brightness: 220}
	}
	tr := track.Track{ID: "t2", Points: pts}

	p := Defaults()
	p.MinDuration = 0
	_, reason := Evaluate(AcceptanceContext{Track: tr, Params: p, Realtime: true})
	assert.Equal(t, RejectStationary, reason)
}

func TestEvaluateRejectsBelowMinTrackPoints(t *testing.T) {
	p := Defaults()
	p.MinTrackPoints = 10
	_, reason := Evaluate(AcceptanceContext{Track: straightTrack(3, 220), Params: p})
	assert.Equal(t, RejectPointCount, reason)
}

func TestEvaluateRejectsShortDuration(t *testing.T) {
	p := Defaults()
	p.MinDuration = 10 // track lasts far less than 10s
	_, reason := Evaluate(AcceptanceContext{Track: straightTrack(6, 220), Params: p, Realtime: true})
	assert.Equal(t, RejectDuration, reason)
}

func TestEvaluateRejectsSlowTrack(t *testing.T) {
	p := Defaults()
	p.MinDuration = 0
	p.MinSpeed = 1e7 // unreachable
	_, reason := Evaluate(AcceptanceContext{Track: straightTrack(6, 220), Params: p, Realtime: true})
	assert.Equal(t, RejectSpeed, reason)
}
