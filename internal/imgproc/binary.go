// Package imgproc provides the small set of pixel-level primitives the
// Motion Extractor and Mask Store both need: binary thresholding,
// morphological open/close, and connected-component labeling with moments.
//
// No connected-components/morphology library exists anywhere in the
// retrieved corpus (no gocv, no OpenCV cgo bindings, no gortsplib); these
// primitives are therefore a deliberate, documented standard-library-only
// implementation (see DESIGN.md) built on image/image.Gray rather than a
// third-party dependency, since none of the retrieved repos wire one for
// this concern. The one exception in this package is Resize, which uses
// golang.org/x/image/draw.
package imgproc

import "image"

// Binary is a single-channel 0/255 image, the working representation for
// thresholded motion maps and masks throughout this package.
type Binary struct {
	W, H int
	Pix  []uint8 // 0 or 255, row-major
}

// NewBinary allocates a cleared (all-zero) binary image.
func NewBinary(w, h int) *Binary {
	return &Binary{W: w, H: h, Pix: make([]uint8, w*h)}
}

// At returns the pixel value (0 or 255) at (x,y); out-of-range reads as 0.
func (b *Binary) At(x, y int) uint8 {
	if x < 0 || y < 0 || x >= b.W || y >= b.H {
		return 0
	}
	return b.Pix[y*b.W+x]
}

// Set writes v (expected 0 or 255) at (x,y); out-of-range writes are ignored.
func (b *Binary) Set(x, y int, v uint8) {
	if x < 0 || y < 0 || x >= b.W || y >= b.H {
		return
	}
	b.Pix[y*b.W+x] = v
}

// ToGray converts the grayscale source image into a *image.Gray, a
// normalization step that lets every downstream stage assume 8-bit
// single-channel input regardless of the decoder's native color model.
func ToGray(src image.Image) *image.Gray {
	if g, ok := src.(*image.Gray); ok {
		return g
	}
	b := src.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			dst.Set(x-b.Min.X, y-b.Min.Y, src.At(x, y))
		}
	}
	return dst
}

// Clone returns a deep copy of b.
func (b *Binary) Clone() *Binary {
	out := &Binary{W: b.W, H: b.H, Pix: make([]uint8, len(b.Pix))}
	copy(out.Pix, b.Pix)
	return out
}

// And returns the element-wise logical AND of two same-sized binary images.
func And(a, b *Binary) *Binary {
	out := NewBinary(a.W, a.H)
	for i := range out.Pix {
		if a.Pix[i] != 0 && b.Pix[i] != 0 {
			out.Pix[i] = 255
		}
	}
	return out
}

// CountNonZero returns the number of non-zero pixels.
func (b *Binary) CountNonZero() int {
	n := 0
	for _, v := range b.Pix {
		if v != 0 {
			n++
		}
	}
	return n
}
