// Package evidence implements the Evidence Writer (spec.md §4.8): on each
// finalized Event it slices the Ring Buffer, writes a clip and two
// composite stills, and appends a JSONL detection record.
package evidence

import (
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"math"
	"os"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"meteorwatch/internal/frame"
)

// brightenMaxComposite computes a per-pixel maximum across frames (spec.md
// §4.8 step 4), grounded on the original's "比較明合成"
// (np.maximum accumulation), adapted here to image/draw's RGBA model.
func brightenMaxComposite(frames []*frame.Frame) *image.RGBA {
	if len(frames) == 0 {
		return nil
	}
	b := frames[0].Img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), frames[0].Img, b.Min, draw.Src)

	for _, f := range frames[1:] {
		fb := f.Img.Bounds()
		for y := 0; y < out.Bounds().Dy(); y++ {
			for x := 0; x < out.Bounds().Dx(); x++ {
				sr, sg, sb, sa := f.Img.At(fb.Min.X+x, fb.Min.Y+y).RGBA()
				dr, dg, db, _ := out.At(x, y).RGBA()
				out.SetRGBA(x, y, color.RGBA{
					R: maxU8(uint8(sr>>8), uint8(dr>>8)),
					G: maxU8(uint8(sg>>8), uint8(dg>>8)),
					B: maxU8(uint8(sb>>8), uint8(db>>8)),
					A: uint8(sa >> 8),
				})
			}
		}
	}
	return out
}

func maxU8(a, b uint8) uint8 {
	if a > b {
		return a
	}
	return b
}

// annotate draws the start→end line, start/end markers, and a caption onto
// a copy of composite (spec.md §4.8 step 4), using font.Drawer + basicfont
// for the caption text.
func annotate(composite *image.RGBA, startX, startY, endX, endY float64, caption string) *image.RGBA {
	out := image.NewRGBA(composite.Bounds())
	draw.Draw(out, out.Bounds(), composite, composite.Bounds().Min, draw.Src)

	drawLine(out, startX, startY, endX, endY, color.RGBA{0, 255, 255, 255})
	drawCircle(out, startX, startY, 6, color.RGBA{0, 255, 0, 255})
	drawCircle(out, endX, endY, 6, color.RGBA{0, 0, 255, 255})

	if caption != "" {
		d := &font.Drawer{
			Dst:  out,
			Src:  image.NewUniform(color.White),
			Face: basicfont.Face7x13,
			Dot:  fixed.Point26_6{X: fixed.I(10), Y: fixed.I(20)},
		}
		d.DrawString(caption)
	}
	return out
}

// drawLine rasterizes a simple non-antialiased line by stepping evenly
// along its longer axis and stamping a 3×3 pixel block at each step,
// sufficient for an annotation overlay.
func drawLine(img *image.RGBA, x0, y0, x1, y1 float64, c color.Color) {
	steps := int(math.Max(math.Abs(x1-x0), math.Abs(y1-y0)))
	if steps == 0 {
		img.Set(int(x0), int(y0), c)
		return
	}
	for i := 0; i <= steps; i++ {
		t := float64(i) / float64(steps)
		x := x0 + (x1-x0)*t
		y := y0 + (y1-y0)*t
		for dx := -1; dx <= 1; dx++ {
			for dy := -1; dy <= 1; dy++ {
				img.Set(int(x)+dx, int(y)+dy, c)
			}
		}
	}
}

func drawCircle(img *image.RGBA, cx, cy, r float64, c color.Color) {
	const segments = 32
	for i := 0; i < segments; i++ {
		theta := 2 * math.Pi * float64(i) / segments
		x := cx + r*math.Cos(theta)
		y := cy + r*math.Sin(theta)
		img.Set(int(x), int(y), c)
	}
}

// writeJPEG writes img to path as a JPEG at quality 90 (spec.md §4.8 step 4).
func writeJPEG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return jpeg.Encode(f, img, &jpeg.Options{Quality: 90})
}
