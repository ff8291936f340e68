package imgproc

import (
	"image"

	"golang.org/x/image/draw"
)

// Resize rescales src to w×h using nearest-neighbor interpolation, the same
// idiom the Mask Store uses for its own prebuilt-mask resizing
// (internal/mask/resize.go), shared here so the Motion Extractor's
// processing-resolution downscale (spec.md §4.4 step 1) does not duplicate
// the draw.NearestNeighbor call site.
func Resize(src image.Image, w, h int) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}
