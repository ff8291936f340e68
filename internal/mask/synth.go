package mask

import (
	"image"
	"math"

	"meteorwatch/internal/imgproc"
)

// hsv holds 8-bit-scaled HSV components matching OpenCV's convention used
// by the original thresholds: H ∈ [0,180], S,V ∈ [0,255].
type hsv struct {
	H, S, V float64
}

func rgbToHSV(r, g, b uint8) hsv {
	rf, gf, bf := float64(r)/255, float64(g)/255, float64(b)/255
	max := math.Max(rf, math.Max(gf, bf))
	min := math.Min(rf, math.Min(gf, bf))
	delta := max - min

	v := max
	s := 0.0
	if max > 0 {
		s = delta / max
	}

	h := 0.0
	switch {
	case delta == 0:
		h = 0
	case max == rf:
		h = 60 * math.Mod((gf-bf)/delta, 6)
	case max == gf:
		h = 60 * ((bf-rf)/delta + 2)
	default:
		h = 60 * ((rf-gf)/delta + 4)
	}
	if h < 0 {
		h += 360
	}

	// Scale to OpenCV's 8-bit HSV convention: H halved into [0,180].
	return hsv{H: h / 2, S: s * 255, V: v * 255}
}

func inRange(p hsv, hLo, hHi, sLo, sHi, vLo, vHi float64) bool {
	return p.H >= hLo && p.H <= hHi && p.S >= sLo && p.S <= sHi && p.V >= vLo && p.V <= vHi
}

// skyMask marks sky-blue and bright-cloud pixels, grounded on the original
// constants: sky_blue = inRange(H:90-140, S:20-200, V:80-255), sky_white =
// inRange(H:0-180, S:0-40, V:160-255).
func skyMask(img image.Image) *imgproc.Binary {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := imgproc.NewBinary(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, bb, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			p := rgbToHSV(uint8(r>>8), uint8(g>>8), uint8(bb>>8))
			if inRange(p, 90, 140, 20, 200, 80, 255) || inRange(p, 0, 180, 0, 40, 160, 255) {
				out.Set(x, y, 255)
			}
		}
	}
	return out
}

// Synthesize builds an exclusion mask from a reference image at the given
// processing size: sky pixels are detected by HSV range, restricted to the
// component(s) touching the top edge, inverted, and everything below the
// lowest remaining sky pixel per column is forced into exclusion, then
// closed and dilated by an elliptical disc of radius dilatePx (spec.md
// §4.3).
func Synthesize(src image.Image, procW, procH, dilatePx int) *Mask {
	resized := imgproc.Resize(src, procW, procH)
	sky := skyMask(resized)

	components := imgproc.LabelComponents(sky)
	keep := imgproc.NewBinary(procW, procH)
	for _, c := range components {
		if c.TouchesRow(0) {
			for _, p := range c.Points {
				keep.Set(p.X, p.Y, 255)
			}
		}
	}
	if keep.CountNonZero() == 0 {
		keep = sky // no component touches the top edge; fall back to raw sky mask
	}

	exclusion := imgproc.NewBinary(procW, procH)
	for x := 0; x < procW; x++ {
		lowestSky := -1
		for y := 0; y < procH; y++ {
			if keep.At(x, y) != 0 {
				lowestSky = y
			}
		}
		if lowestSky == -1 {
			for y := 0; y < procH; y++ {
				exclusion.Set(x, y, 255)
			}
			continue
		}
		for y := 0; y < procH; y++ {
			if keep.At(x, y) == 0 {
				exclusion.Set(x, y, 255)
			}
		}
		for y := lowestSky + 1; y < procH; y++ {
			exclusion.Set(x, y, 255)
		}
	}

	closeKernel := imgproc.EllipseKernel(5)
	exclusion = imgproc.Close(exclusion, closeKernel)
	if dilatePx > 0 {
		exclusion = imgproc.Dilate(exclusion, imgproc.EllipseKernel(2*dilatePx+1))
	}

	return FromBinary(exclusion)
}
