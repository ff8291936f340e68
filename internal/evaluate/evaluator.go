package evaluate

import (
	"math"

	"meteorwatch/internal/mask"
	"meteorwatch/internal/track"
)

// RejectReason names why a finalized track failed acceptance (spec.md §4.6
// "dropped silently ... with a structured DEBUG log noting the rejection
// reason"). Replaces the original's exception-driven early-return style
// with explicit tagged values (spec.md §9).
type RejectReason string

const (
	RejectNone            RejectReason = ""
	RejectPointCount      RejectReason = "point_count"
	RejectDuration        RejectReason = "duration"
	RejectStationary      RejectReason = "stationary_ratio"
	RejectNuisancePath    RejectReason = "nuisance_path_overlap"
	RejectLength          RejectReason = "length"
	RejectSpeed           RejectReason = "speed"
	RejectLinearity       RejectReason = "linearity"
)

// Candidate is an accepted finalized track (spec.md §4.6).
type Candidate struct {
	Start, End     track.Point
	Points         []track.Point
	Duration       float64
	Length         float64
	Speed          float64
	Linearity      float64
	PeakBrightness float64
	Confidence     float64
}

// AcceptanceContext bundles everything a predicate needs to judge a
// finalized track (spec.md §9 redesign note).
type AcceptanceContext struct {
	Track    track.Track
	Params   DetectionParams
	Nuisance *mask.Mask // nil if no nuisance mask is installed
	Realtime bool        // selects the confidence normalization constants
}

type evalState struct {
	duration         float64
	stationaryRatio  float64
	start, end       track.Point
	length           float64
	speed            float64
	linearity        float64
	peakBrightness   float64
	pathOverlapRatio float64
}

type predicate struct {
	reason RejectReason
	check  func(ctx *AcceptanceContext, s *evalState) bool
}

// Evaluate scores a finalized track against the fixed ordered predicate
// chain of spec.md §4.6, returning the accepted Candidate or the reject
// reason of the first failing predicate.
func Evaluate(ctx AcceptanceContext) (*Candidate, RejectReason) {
	pts := ctx.Track.Points
	if len(pts) < ctx.Params.MinTrackPoints {
		return nil, RejectPointCount
	}

	s := buildEvalState(pts, ctx.Nuisance)

	for _, p := range predicateChain() {
		if !p.check(&ctx, &s) {
			return nil, p.reason
		}
	}

	confidence := computeConfidence(s, ctx.Realtime)

	return &Candidate{
		Start:          s.start,
		End:            s.end,
		Points:         pts,
		Duration:       s.duration,
		Length:         s.length,
		Speed:          s.speed,
		Linearity:      s.linearity,
		PeakBrightness: s.peakBrightness,
		Confidence:     confidence,
	}, RejectNone
}

func predicateChain() []predicate {
	return []predicate{
		{RejectDuration, func(ctx *AcceptanceContext, s *evalState) bool {
			return s.duration >= ctx.Params.MinDuration && s.duration <= ctx.Params.MaxDuration
		}},
		{RejectStationary, func(ctx *AcceptanceContext, s *evalState) bool {
			return s.stationaryRatio <= ctx.Params.MaxStationaryRatio
		}},
		{RejectNuisancePath, func(ctx *AcceptanceContext, s *evalState) bool {
			if ctx.Nuisance == nil {
				return true
			}
			return s.pathOverlapRatio <= ctx.Params.NuisancePathOverlapThreshold
		}},
		{RejectLength, func(ctx *AcceptanceContext, s *evalState) bool {
			return s.length >= ctx.Params.MinLength && s.length <= ctx.Params.MaxLength
		}},
		{RejectSpeed, func(ctx *AcceptanceContext, s *evalState) bool {
			return s.speed >= ctx.Params.MinSpeed
		}},
		{RejectLinearity, func(ctx *AcceptanceContext, s *evalState) bool {
			return s.linearity >= ctx.Params.MinLinearity
		}},
	}
}

func buildEvalState(pts []track.Point, nuisance *mask.Mask) evalState {
	first, last := pts[0], pts[len(pts)-1]
	duration := last.Time.Sub(first.Time).Seconds()

	stationary := 0
	steps := len(pts) - 1
	peak := 0.0
	pcaPoints := make([]point2D, len(pts))
	for i, p := range pts {
		pcaPoints[i] = point2D{X: p.X, Y: p.Y}
		if p.Brightness > peak {
			peak = p.Brightness
		}
		if i > 0 {
			d := euclid(pts[i-1].X, pts[i-1].Y, p.X, p.Y)
			if d <= 2 {
				stationary++
			}
		}
	}
	stationaryRatio := 0.0
	if steps > 0 {
		stationaryRatio = float64(stationary) / float64(steps)
	}

	length := euclid(first.X, first.Y, last.X, last.Y)
	speed := length / math.Max(duration, 0.001)
	lin := linearity(pcaPoints)

	overlap := 0.0
	if nuisance != nil {
		overlap = pathOverlap(first.X, first.Y, last.X, last.Y, nuisance)
	}

	return evalState{
		duration:         duration,
		stationaryRatio:  stationaryRatio,
		start:            first,
		end:              last,
		length:           length,
		speed:            speed,
		linearity:        lin,
		peakBrightness:   peak,
		pathOverlapRatio: overlap,
	}
}

func euclid(x1, y1, x2, y2 float64) float64 {
	dx, dy := x2-x1, y2-y1
	return math.Sqrt(dx*dx + dy*dy)
}

// pathOverlap samples 65 evenly spaced points on the line from (x1,y1) to
// (x2,y2), each rounded to its nearest pixel (a cheap stand-in for
// antialiasing, spec.md §4.6), and returns the fraction of sampled points
// that fall on excluded nuisance pixels.
func pathOverlap(x1, y1, x2, y2 float64, nuisance *mask.Mask) float64 {
	const samples = 64
	hits := 0
	for i := 0; i <= samples; i++ {
		t := float64(i) / float64(samples)
		x := x1 + (x2-x1)*t
		y := y1 + (y2-y1)*t
		if nuisance.At(int(math.Round(x)), int(math.Round(y))) != 0 {
			hits++
		}
	}
	return float64(hits) / float64(samples+1)
}

// confidenceNorms holds the LN/SN/DN normalization constants (spec.md
// §4.6), distinct between the real-time path and the offline re-detection
// path (out of scope here, but the constant set is carried for
// completeness since Evaluate's Realtime flag already selects it).
type confidenceNorms struct{ LN, SN, DN float64 }

func computeConfidence(s evalState, realtime bool) float64 {
	norms := confidenceNorms{LN: 100, SN: 500, DN: 1.0}
	if !realtime {
		norms = confidenceNorms{LN: 100, SN: 20, DN: 100}
	}

	lengthTerm := 0.25 * math.Min(s.length/norms.LN, 1.0)
	speedTerm := 0.20 * math.Min(s.speed/norms.SN, 1.0)
	linTerm := 0.25 * s.linearity
	brightnessTerm := 0.20 * math.Min(s.peakBrightness/255.0, 1.0)
	bonus := math.Min(0.2*s.duration/norms.DN, 0.2)

	confidence := lengthTerm + speedTerm + linTerm + brightnessTerm + bonus
	return math.Min(confidence, 1.0)
}
