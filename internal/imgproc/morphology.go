package imgproc

import "math"

// EllipseKernel returns the (dx,dy) offsets of an elliptical structuring
// element inscribed in a size×size square, using the same row-by-row
// half-width construction OpenCV's getStructuringElement(MORPH_ELLIPSE, ...)
// uses. At size=3 this reduces to the 3×3 "plus" shape (corners excluded)
// spec.md §4.4 calls for; at larger sizes (e.g. the mask dilation radius,
// spec.md §4.3) it approximates a disc.
func EllipseKernel(size int) [][2]int {
	if size < 1 {
		size = 1
	}
	if size%2 == 0 {
		size++
	}
	r := size / 2
	offsets := make([][2]int, 0, size*size)
	for dy := -r; dy <= r; dy++ {
		dxMax := 0
		if r > 0 {
			ratio := float64(dy) / float64(r)
			if ratio < -1 {
				ratio = -1
			}
			if ratio > 1 {
				ratio = 1
			}
			dxMax = int(math.Round(float64(r) * math.Sqrt(1-ratio*ratio)))
		}
		for dx := -dxMax; dx <= dxMax; dx++ {
			offsets = append(offsets, [2]int{dx, dy})
		}
	}
	return offsets
}

// Dilate sets a pixel if any kernel-offset neighbor is non-zero.
func Dilate(b *Binary, kernel [][2]int) *Binary {
	out := NewBinary(b.W, b.H)
	for y := 0; y < b.H; y++ {
		for x := 0; x < b.W; x++ {
			hit := false
			for _, k := range kernel {
				if b.At(x+k[0], y+k[1]) != 0 {
					hit = true
					break
				}
			}
			if hit {
				out.Set(x, y, 255)
			}
		}
	}
	return out
}

// Erode clears a pixel unless every kernel-offset neighbor is non-zero.
// Neighbors that fall outside the image are ignored, so foreground touching
// the border does not erode away (OpenCV's default erosion border).
func Erode(b *Binary, kernel [][2]int) *Binary {
	out := NewBinary(b.W, b.H)
	for y := 0; y < b.H; y++ {
		for x := 0; x < b.W; x++ {
			all := true
			for _, k := range kernel {
				nx, ny := x+k[0], y+k[1]
				if nx < 0 || ny < 0 || nx >= b.W || ny >= b.H {
					continue
				}
				if b.Pix[ny*b.W+nx] == 0 {
					all = false
					break
				}
			}
			if all {
				out.Set(x, y, 255)
			}
		}
	}
	return out
}

// Open is erode-then-dilate: removes small isolated specks.
func Open(b *Binary, kernel [][2]int) *Binary {
	return Dilate(Erode(b, kernel), kernel)
}

// Close is dilate-then-erode: fills small holes and gaps.
func Close(b *Binary, kernel [][2]int) *Binary {
	return Erode(Dilate(b, kernel), kernel)
}
