// Package evaluate implements the Candidate Evaluator and Merger (spec.md
// §4.6–§4.7): it holds the live DetectionParams block, scores finalized
// tracks against an ordered predicate chain, and merges adjoining
// candidates into Events.
package evaluate

import "math"

// Sensitivity is one of the documented presets (spec.md §6).
type Sensitivity string

const (
	SensitivityLow      Sensitivity = "low"
	SensitivityMedium   Sensitivity = "medium"
	SensitivityHigh     Sensitivity = "high"
	SensitivityFireball Sensitivity = "fireball"
)

// DetectionParams is the full set of live-tunable detection parameters
// (spec.md §6 "DetectionParams"). Clamp bounds every field to its
// documented range. /settings accepts the sensitivity preset and the fields
// from DiffThreshold through MaxDistance plus MinTrackPoints and
// MaxStationaryRatio; the Merge*, Exclude*, Nuisance* and
// SmallAreaThreshold fields are not settable there.
type DetectionParams struct {
	DiffThreshold         uint8
	MinBrightness         uint8
	MinBrightnessTracking uint8

	MinLength float64
	MaxLength float64

	MinDuration float64
	MaxDuration float64

	MinSpeed float64

	MinLinearity float64

	MinArea float64
	MaxArea float64

	MaxGapTimeSeconds float64
	MaxDistance       float64

	MergeMaxGapTimeSeconds float64
	MergeMaxDistance       float64
	MergeMaxSpeedRatio     float64

	ExcludeBottomRatio float64
	ExcludeEdgeRatio   float64

	NuisanceOverlapThreshold     float64
	NuisancePathOverlapThreshold float64
	SmallAreaThreshold           float64

	MinTrackPoints    int
	MaxStationaryRatio float64
}

// Defaults returns the baseline (non-preset) DetectionParams, grounded on
// the original's DetectionParams dataclass (spec.md §6).
func Defaults() DetectionParams {
	return DetectionParams{
		DiffThreshold:         30,
		MinBrightness:         200,
		MinBrightnessTracking: 160,

		MinLength: 20,
		MaxLength: 5000,

		MinDuration: 0.1,
		MaxDuration: 10.0,

		MinSpeed: 50.0,

		MinLinearity: 0.7,

		MinArea: 5,
		MaxArea: 10000,

		MaxGapTimeSeconds: 0.2,
		MaxDistance:       80,

		MergeMaxGapTimeSeconds: 0.5,
		MergeMaxDistance:       80,
		MergeMaxSpeedRatio:     0.5,

		ExcludeBottomRatio: 1.0 / 16,
		ExcludeEdgeRatio:   0,

		NuisanceOverlapThreshold:     0.6,
		NuisancePathOverlapThreshold: 0.5,
		SmallAreaThreshold:           30,

		MinTrackPoints:     3,
		MaxStationaryRatio: 0.8,
	}
}

// ApplySensitivity overwrites the documented subset of fields for the
// named preset (spec.md §6), then recomputes MinBrightnessTracking from the
// new MinBrightness. Per the §9 Open Question decision, this always runs
// before any explicit per-field override in the same settings update.
func (p *DetectionParams) ApplySensitivity(s Sensitivity) {
	switch s {
	case SensitivityLow:
		p.DiffThreshold, p.MinBrightness = 40, 220
		p.MaxDuration, p.MinSpeed, p.MinLinearity = 12.0, 50.0, 0.7
	case SensitivityMedium:
		p.DiffThreshold, p.MinBrightness = 30, 200
		p.MaxDuration, p.MinSpeed, p.MinLinearity = 12.0, 50.0, 0.7
	case SensitivityHigh:
		p.DiffThreshold, p.MinBrightness = 20, 180
		p.MaxDuration, p.MinSpeed, p.MinLinearity = 12.0, 50.0, 0.7
	case SensitivityFireball:
		p.DiffThreshold, p.MinBrightness = 15, 150
		p.MaxDuration, p.MinSpeed, p.MinLinearity = 20.0, 20.0, 0.6
	default:
		return
	}
	mbt := int(math.Round(float64(p.MinBrightness) * 0.8))
	if mbt < 1 {
		mbt = 1
	}
	if mbt > 255 {
		mbt = 255
	}
	p.MinBrightnessTracking = uint8(mbt)
}

func clampU8(v, lo, hi uint8) uint8 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampF(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampI(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Clamp constrains every field to its documented range (spec.md §6), in
// place, implementing the ParamOutOfRange error kind's "clamp and return
// the effective value; never fails hard" policy (spec.md §7).
func (p *DetectionParams) Clamp() {
	p.DiffThreshold = clampU8(p.DiffThreshold, 0, 255)
	p.MinBrightness = clampU8(p.MinBrightness, 0, 255)
	p.MinBrightnessTracking = clampU8(p.MinBrightnessTracking, 0, 255)

	p.MinLength = clampF(p.MinLength, 0, 100000)
	p.MaxLength = clampF(p.MaxLength, 0, 100000)

	p.MinDuration = clampF(p.MinDuration, 0, 3600)
	p.MaxDuration = clampF(p.MaxDuration, 0, 3600)

	p.MinSpeed = clampF(p.MinSpeed, 0, 1e6)

	p.MinLinearity = clampF(p.MinLinearity, 0, 1)

	p.MinArea = clampF(p.MinArea, 0, 1e8)
	p.MaxArea = clampF(p.MaxArea, 0, 1e8)

	p.MaxGapTimeSeconds = clampF(p.MaxGapTimeSeconds, 0, 60)
	p.MaxDistance = clampF(p.MaxDistance, 0, 100000)

	p.MergeMaxGapTimeSeconds = clampF(p.MergeMaxGapTimeSeconds, 0, 60)
	p.MergeMaxDistance = clampF(p.MergeMaxDistance, 0, 100000)
	p.MergeMaxSpeedRatio = clampF(p.MergeMaxSpeedRatio, 0, 1e6)

	p.ExcludeBottomRatio = clampF(p.ExcludeBottomRatio, 0, 1)
	p.ExcludeEdgeRatio = clampF(p.ExcludeEdgeRatio, 0, 1)

	p.NuisanceOverlapThreshold = clampF(p.NuisanceOverlapThreshold, 0, 1)
	p.NuisancePathOverlapThreshold = clampF(p.NuisancePathOverlapThreshold, 0, 1)
	p.SmallAreaThreshold = clampF(p.SmallAreaThreshold, 0, 1e8)

	p.MinTrackPoints = clampI(p.MinTrackPoints, 1, 100000)
	p.MaxStationaryRatio = clampF(p.MaxStationaryRatio, 0, 1)
}
