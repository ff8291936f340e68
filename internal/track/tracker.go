// Package track implements the Tracker (spec.md §4.5): it maintains the
// collection of active tracks, associates new per-frame Observations to
// them by gated nearest-neighbor with last-step-velocity prediction, and
// emits finalized tracks on timeout gap or shutdown.
//
// Grounded on the pack's LiDAR multi-object tracker
// (internal/lidar/velocity_coherent_tracking.go): predict → gate →
// associate → update → finalize-on-miss, simplified to a 2-D
// constant-velocity predictor since spec.md §4.5 specifies only
// last-step-velocity extrapolation, not full Kalman covariance
// propagation.
package track

import (
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Observation is the Tracker's input, mirroring vision.Observation without
// creating a package dependency (engine.go does the trivial field copy).
type Observation struct {
	X, Y       float64
	Brightness float64
}

// Point is one timestamped sample of a Track (spec.md §3 Data Model).
type Point struct {
	Time       time.Time
	X, Y       float64
	Brightness float64
}

// Track is a stable-id ordered sequence of points.
type Track struct {
	ID     string
	Points []Point
}

func (t *Track) last() Point { return t.Points[len(t.Points)-1] }

// velocity returns the last-step velocity in units/second, derived from the
// final two points; zero if fewer than two points exist.
func (t *Track) velocity() (vx, vy float64) {
	n := len(t.Points)
	if n < 2 {
		return 0, 0
	}
	a, b := t.Points[n-2], t.Points[n-1]
	dt := b.Time.Sub(a.Time).Seconds()
	if dt <= 0 {
		return 0, 0
	}
	return (b.X - a.X) / dt, (b.Y - a.Y) / dt
}

// predict extrapolates the track's position to time at using last-step
// velocity.
func (t *Track) predict(at time.Time) (x, y float64) {
	last := t.last()
	vx, vy := t.velocity()
	dt := at.Sub(last.Time).Seconds()
	return last.X + vx*dt, last.Y + vy*dt
}

func dist(x1, y1, x2, y2 float64) float64 {
	dx, dy := x2-x1, y2-y1
	return math.Sqrt(dx*dx + dy*dy)
}

// Config holds the Tracker's gating parameters, drawn from DetectionParams
// at call time (spec.md §4.9 live-updatable).
type Config struct {
	MaxGapTime  time.Duration
	MaxDistance float64
}

// Tracker holds the active-track collection and is the sole owner of it
// (spec.md §3 Ownership).
type Tracker struct {
	cfg    Config
	tracks map[string]*Track
}

// New returns an empty Tracker.
func New(cfg Config) *Tracker {
	return &Tracker{cfg: cfg, tracks: make(map[string]*Track)}
}

// SetConfig replaces the gating parameters for subsequent Update calls.
func (tr *Tracker) SetConfig(cfg Config) { tr.cfg = cfg }

// ActiveCount returns the number of tracks currently open.
func (tr *Tracker) ActiveCount() int { return len(tr.tracks) }

// Update runs one tracking step (spec.md §4.5 steps 1–4): it finalizes
// tracks whose gap exceeds MaxGapTime, associates obs to the remaining
// tracks by gated nearest-neighbor, starts new tracks for unmatched
// observations, and returns the finalized tracks (deep copies, safe to
// retain past further Update calls).
func (tr *Tracker) Update(obs []Observation, now time.Time) []Track {
	var toFinalize []*Track
	var ids []string
	for id, t := range tr.tracks {
		if now.Sub(t.last().Time) > tr.cfg.MaxGapTime {
			toFinalize = append(toFinalize, t)
			delete(tr.tracks, id)
		} else {
			ids = append(ids, id)
		}
	}
	// Deterministic processing order keeps association results reproducible
	// across runs with identical input, independent of map iteration order.
	sort.Strings(ids)

	used := make([]bool, len(obs))
	for _, id := range ids {
		t := tr.tracks[id]
		best, bestDist := -1, math.Inf(1)
		for i, o := range obs {
			if used[i] {
				continue
			}
			last := t.last()
			raw := dist(last.X, last.Y, o.X, o.Y)
			px, py := t.predict(now)
			predicted := dist(px, py, o.X, o.Y)
			d := math.Min(raw, predicted)
			if d < bestDist {
				bestDist, best = d, i
			}
		}
		if best >= 0 && bestDist < tr.cfg.MaxDistance {
			used[best] = true
			t.Points = append(t.Points, Point{Time: now, X: obs[best].X, Y: obs[best].Y, Brightness: obs[best].Brightness})
		}
	}

	for i, o := range obs {
		if used[i] {
			continue
		}
		id := uuid.NewString()
		tr.tracks[id] = &Track{
			ID:     id,
			Points: []Point{{Time: now, X: o.X, Y: o.Y, Brightness: o.Brightness}},
		}
	}

	finalized := make([]Track, len(toFinalize))
	for i, t := range toFinalize {
		finalized[i] = Track{ID: t.ID, Points: append([]Point(nil), t.Points...)}
	}
	return finalized
}

// FinalizeAll flushes every remaining active track, for use at engine
// shutdown (spec.md §4.5 "Finalize marked tracks", applied unconditionally).
func (tr *Tracker) FinalizeAll() []Track {
	finalized := make([]Track, 0, len(tr.tracks))
	for id, t := range tr.tracks {
		finalized = append(finalized, Track{ID: t.ID, Points: append([]Point(nil), t.Points...)})
		delete(tr.tracks, id)
	}
	sort.Slice(finalized, func(i, j int) bool { return finalized[i].ID < finalized[j].ID })
	return finalized
}
