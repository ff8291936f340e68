// Package vision implements the Motion Extractor (spec.md §4.4):
// frame-pair differencing, thresholding, morphology, connected-component
// analysis, and brightness/area/nuisance filtering. Grounded on the
// original Python's detect_bright_objects (absdiff → threshold → bottom
// exclusion → morphological open/close → findContours → area/brightness
// gates), generalized from a single whole-frame change-ratio check into
// per-contour Observations as spec.md requires.
package vision

import (
	"image"

	"meteorwatch/internal/imgproc"
)

// Params is the subset of DetectionParams the Motion Extractor consumes,
// passed in fresh on every call so parameter updates (spec.md §4.9) take
// effect on the very next frame pair.
type Params struct {
	DiffThreshold            uint8
	ExcludeBottomRatio       float64
	ExcludeEdgeRatio         float64
	MinArea                  float64
	MaxArea                  float64
	MinBrightness            float64
	MinBrightnessTracking    float64
	SmallAreaThreshold       float64
	NuisanceOverlapThreshold float64
	ProcessScale             float64 // 1.0 = no pre-resize
}

// Observation is a single accepted motion blob, in source-image
// coordinates (spec.md §3 Data Model).
type Observation struct {
	X, Y            float64
	Area            float64
	Brightness      float64
	NuisanceOverlap float64
}

// Extractor runs the per-frame-pair pipeline. It carries no state of its
// own; all configuration arrives via Params on each call.
type Extractor struct{}

// NewExtractor returns a stateless Motion Extractor.
func NewExtractor() *Extractor { return &Extractor{} }

// Extract implements spec.md §4.4 steps 1–10. prev and curr must already be
// grayscale at processing resolution (step 1 is the caller's
// responsibility, since resizing is shared with the reader/mask pipeline).
// exclusion and nuisance may be nil. trackingMode selects the tracking
// brightness gate (step 8).
func (e *Extractor) Extract(prev, curr *image.Gray, exclusion, nuisance *imgproc.Binary, trackingMode bool, p Params) []Observation {
	diff := absDiffThreshold(prev, curr, p.DiffThreshold)

	excludeBottomRows(diff, p.ExcludeBottomRatio)
	excludeEdgeBorder(diff, p.ExcludeEdgeRatio)

	if exclusion != nil {
		applyExclusionMask(diff, exclusion)
	}

	kernel := imgproc.EllipseKernel(3)
	diff = imgproc.Open(diff, kernel)
	diff = imgproc.Close(diff, kernel)

	minBrightness := p.MinBrightness
	if trackingMode {
		minBrightness = p.MinBrightnessTracking
	}

	scale := p.ProcessScale
	if scale <= 0 {
		scale = 1
	}

	var observations []Observation
	for _, comp := range imgproc.LabelComponents(diff) {
		area := float64(comp.Area())
		if area < p.MinArea || area > p.MaxArea {
			continue
		}

		brightness := comp.MeanBrightness(curr)
		if brightness < minBrightness {
			continue
		}

		overlap := 0.0
		if nuisance != nil && area <= p.SmallAreaThreshold {
			overlap = overlapRatio(comp, nuisance)
			if overlap >= p.NuisanceOverlapThreshold {
				continue
			}
		}

		cx, cy := comp.Centroid()
		observations = append(observations, Observation{
			X:               cx / scale,
			Y:               cy / scale,
			Area:            area / (scale * scale),
			Brightness:      brightness,
			NuisanceOverlap: overlap,
		})
	}

	return observations
}

func absDiffThreshold(prev, curr *image.Gray, threshold uint8) *imgproc.Binary {
	w, h := curr.Bounds().Dx(), curr.Bounds().Dy()
	out := imgproc.NewBinary(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			a := prev.GrayAt(x, y).Y
			b := curr.GrayAt(x, y).Y
			var d uint8
			if a > b {
				d = a - b
			} else {
				d = b - a
			}
			if d > threshold {
				out.Set(x, y, 255)
			}
		}
	}
	return out
}

func excludeBottomRows(b *imgproc.Binary, ratio float64) {
	if ratio <= 0 {
		return
	}
	if ratio > 1 {
		ratio = 1
	}
	maxY := int(float64(b.H) * (1 - ratio))
	for y := maxY; y < b.H; y++ {
		for x := 0; x < b.W; x++ {
			b.Set(x, y, 0)
		}
	}
}

func excludeEdgeBorder(b *imgproc.Binary, ratio float64) {
	if ratio <= 0 {
		return
	}
	if ratio > 0.5 {
		ratio = 0.5
	}
	marginX := int(float64(b.W) * ratio)
	marginY := int(float64(b.H) * ratio)
	for y := 0; y < b.H; y++ {
		for x := 0; x < marginX; x++ {
			b.Set(x, y, 0)
			b.Set(b.W-1-x, y, 0)
		}
	}
	for x := 0; x < b.W; x++ {
		for y := 0; y < marginY; y++ {
			b.Set(x, y, 0)
			b.Set(x, b.H-1-y, 0)
		}
	}
}

func applyExclusionMask(b *imgproc.Binary, exclusion *imgproc.Binary) {
	for i := range b.Pix {
		if i < len(exclusion.Pix) && exclusion.Pix[i] != 0 {
			b.Pix[i] = 0
		}
	}
}

func overlapRatio(comp imgproc.Component, nuisance *imgproc.Binary) float64 {
	if comp.Area() == 0 {
		return 0
	}
	hit := 0
	for _, pt := range comp.Points {
		if nuisance.At(pt.X, pt.Y) != 0 {
			hit++
		}
	}
	return float64(hit) / float64(comp.Area())
}
