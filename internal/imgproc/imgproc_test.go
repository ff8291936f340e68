package imgproc

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEllipseKernel3x3IsPlusShape(t *testing.T) {
	k := EllipseKernel(3)
	set := map[[2]int]bool{}
	for _, o := range k {
		set[o] = true
	}
	assert.True(t, set[[2]int{0, 0}])
	assert.True(t, set[[2]int{1, 0}])
	assert.True(t, set[[2]int{-1, 0}])
	assert.True(t, set[[2]int{0, 1}])
	assert.True(t, set[[2]int{0, -1}])
	assert.False(t, set[[2]int{1, 1}])
	assert.False(t, set[[2]int{-1, -1}])
	assert.Len(t, k, 5)
}

func TestOpenRemovesIsolatedSpeck(t *testing.T) {
	b := NewBinary(10, 10)
	b.Set(5, 5, 255) // single isolated pixel
	k := EllipseKernel(3)
	opened := Open(b, k)
	assert.Equal(t, 0, opened.CountNonZero())
}

func TestCloseFillsSmallGap(t *testing.T) {
	// A 3-row bar, so the hole's four plus-kernel neighbors are foreground
	// and survive the erode step of the close.
	b := NewBinary(10, 10)
	for y := 4; y <= 6; y++ {
		for x := 2; x <= 6; x++ {
			b.Set(x, y, 255)
		}
	}
	b.Set(4, 5, 0) // punch a 1px hole in the middle
	k := EllipseKernel(3)
	closed := Close(b, k)
	assert.Equal(t, uint8(255), closed.At(4, 5))
}

func TestLabelComponentsFindsDisjointBlobs(t *testing.T) {
	b := NewBinary(10, 10)
	// Blob 1: a 2x2 square
	b.Set(1, 1, 255)
	b.Set(2, 1, 255)
	b.Set(1, 2, 255)
	b.Set(2, 2, 255)
	// Blob 2: a single far-away pixel
	b.Set(8, 8, 255)

	comps := LabelComponents(b)
	require.Len(t, comps, 2)

	areas := []int{comps[0].Area(), comps[1].Area()}
	assert.Contains(t, areas, 4)
	assert.Contains(t, areas, 1)
}

func TestComponentCentroidAndBrightness(t *testing.T) {
	b := NewBinary(4, 4)
	b.Set(1, 1, 255)
	b.Set(2, 1, 255)
	comps := LabelComponents(b)
	require.Len(t, comps, 1)

	cx, cy := comps[0].Centroid()
	assert.InDelta(t, 1.5, cx, 1e-9)
	assert.InDelta(t, 1.0, cy, 1e-9)

	gray := image.NewGray(image.Rect(0, 0, 4, 4))
	gray.SetGray(1, 1, color.Gray{Y: 100})
	gray.SetGray(2, 1, color.Gray{Y: 200})
	assert.InDelta(t, 150.0, comps[0].MeanBrightness(gray), 1e-9)
}
