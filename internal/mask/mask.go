// Package mask implements the Mask Store (spec.md §4.3): it holds the
// current exclusion and nuisance masks, permits atomic live replacement,
// and can synthesize an exclusion mask from a reference image by detecting
// sky pixels. Grounded on the original Python's build_exclusion_mask /
// build_exclusion_mask_from_frame (HSV sky-blue/sky-white thresholds,
// connected components touching the top edge, below-sky-line fill,
// morphological close + dilation).
package mask

import (
	"image"
	"sync"

	"meteorwatch/internal/imgproc"
)

// Mask is a binary image at processing resolution; non-zero means exclude
// (spec.md §3 Data Model).
type Mask struct {
	*imgproc.Binary
}

// Store holds zero or one exclusion mask and zero or one nuisance mask,
// each swapped atomically under a short-held lock (spec.md §3 Ownership:
// "the Mask Store shares its current mask with the Extractor by a
// versioned pointer under a short-held lock").
type Store struct {
	mu        sync.RWMutex
	exclusion *Mask
	nuisance  *Mask
	version   uint64
}

// NewStore returns an empty mask store.
func NewStore() *Store {
	return &Store{}
}

// UpdateExclusion atomically replaces the exclusion mask. A nil mask clears
// it (spec.md §4.3 "update(mask?)").
func (s *Store) UpdateExclusion(m *Mask) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exclusion = m
	s.version++
}

// UpdateNuisance atomically replaces the nuisance mask.
func (s *Store) UpdateNuisance(m *Mask) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nuisance = m
	s.version++
}

// Snapshot returns the current exclusion and nuisance masks (read-only
// views; callers must not mutate the returned masks).
func (s *Store) Snapshot() (exclusion, nuisance *Mask) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.exclusion, s.nuisance
}

// Active reports whether an exclusion mask is currently installed, for the
// Control Surface's "mask active flag" (spec.md §4.9).
func (s *Store) Active() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.exclusion != nil
}

// Version returns a monotonically increasing counter bumped on every
// replacement, useful for cheap change detection by callers that cache a
// derived view of the mask.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// FromBinary wraps a raw binary image as a Mask.
func FromBinary(b *imgproc.Binary) *Mask {
	if b == nil {
		return nil
	}
	return &Mask{Binary: b}
}

// FromImage builds a Mask from an arbitrary grayscale-ish source image,
// thresholding at the midpoint (non-zero = exclude), used for loading a
// prebuilt mask file (spec.md §6 "Optional prebuilt mask image path").
func FromImage(src image.Image) *Mask {
	gray := imgproc.ToGray(src)
	b := imgproc.NewBinary(gray.Bounds().Dx(), gray.Bounds().Dy())
	bounds := gray.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			if gray.GrayAt(x, y).Y >= 128 {
				b.Set(x-bounds.Min.X, y-bounds.Min.Y, 255)
			}
		}
	}
	return &Mask{Binary: b}
}

// ToGrayImage renders the mask as a standard *image.Gray for persistence
// (spec.md §6 "masks/<camera>_mask.png").
func (m *Mask) ToGrayImage() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, m.W, m.H))
	copy(img.Pix, m.Pix)
	return img
}
