// Package frame defines the pixel-buffer type shared by every stage of the
// per-camera pipeline, from capture through evidence writing.
package frame

import (
	"image"
	"time"
)

// Frame is a single decoded video frame together with the metadata the rest
// of the pipeline needs: a monotonically increasing sequence number and a
// capture timestamp expressed in seconds since the stream's first frame.
type Frame struct {
	Seq       uint64
	Timestamp float64 // seconds since stream start
	Img       image.Image
	Captured  time.Time // wall-clock time of capture; the engine timestamps track points with it
}

// Clone returns an independent copy of the frame. The Ring Buffer must hand
// out copies so that a consumer holding a frame past its eviction from the
// buffer never observes a mutation.
func (f *Frame) Clone() *Frame {
	if f == nil {
		return nil
	}
	return &Frame{
		Seq:       f.Seq,
		Timestamp: f.Timestamp,
		Img:       cloneImage(f.Img),
		Captured:  f.Captured,
	}
}

func cloneImage(src image.Image) image.Image {
	if src == nil {
		return nil
	}
	b := src.Bounds()
	switch s := src.(type) {
	case *image.RGBA:
		dst := image.NewRGBA(b)
		copy(dst.Pix, s.Pix)
		return dst
	case *image.NRGBA:
		dst := image.NewNRGBA(b)
		copy(dst.Pix, s.Pix)
		return dst
	case *image.Gray:
		dst := image.NewGray(b)
		copy(dst.Pix, s.Pix)
		return dst
	case *image.YCbCr:
		dst := image.NewYCbCr(b, s.SubsampleRatio)
		copy(dst.Y, s.Y)
		copy(dst.Cb, s.Cb)
		copy(dst.Cr, s.Cr)
		return dst
	default:
		dst := image.NewRGBA(b)
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				dst.Set(x, y, src.At(x, y))
			}
		}
		return dst
	}
}

// SanitizeFPS clamps a source-reported frame rate to a sane range, replacing
// non-finite or out-of-range values with the 30fps default. Grounded on the
// reader's fps handling (spec.md §4.1, §8 "Sanitizer" testable property).
func SanitizeFPS(fps float64) float64 {
	if fps != fps || fps < 1 || fps > 120 { // fps != fps catches NaN
		return 30.0
	}
	return fps
}
