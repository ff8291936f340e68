package mask

import "meteorwatch/internal/imgproc"

// ResizeMask rescales an existing mask to a new processing size using
// nearest-neighbor interpolation and re-thresholds at the midpoint so the
// result stays strictly binary.
func ResizeMask(m *Mask, w, h int) *Mask {
	gray := m.ToGrayImage()
	resized := imgproc.Resize(gray, w, h)
	return FromImage(resized)
}
