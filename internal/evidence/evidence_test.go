package evidence

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meteorwatch/internal/frame"
)

func solidFrame(seq uint64, ts float64, v uint8) *frame.Frame {
	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	for i := range img.Pix {
		img.Pix[i] = v
	}
	return &frame.Frame{Seq: seq, Timestamp: ts, Img: img}
}

func TestBrightenMaxCompositeTakesPerPixelMax(t *testing.T) {
	a := solidFrame(0, 0, 50)
	b := solidFrame(1, 1.0/30, 200)
	out := brightenMaxComposite([]*frame.Frame{a, b})
	require.NotNil(t, out)
	r, _, _, _ := out.At(5, 5).RGBA()
	assert.Equal(t, uint32(200), r>>8)
}

func TestAnnotateDoesNotPanicAndPreservesSize(t *testing.T) {
	base := image.NewRGBA(image.Rect(0, 0, 20, 20))
	for i := range base.Pix {
		base.Pix[i] = 30
	}
	out := annotate(base, 2, 2, 18, 18, "12:00:00 | Conf: 80%")
	assert.Equal(t, base.Bounds(), out.Bounds())
}

func TestWriteJPEGProducesReadableFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.jpg")
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for i := range img.Pix {
		img.Pix[i] = 128
	}
	require.NoError(t, writeJPEG(path, img))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestEstimateFPSFromMedianDelta(t *testing.T) {
	frames := []*frame.Frame{
		solidFrame(0, 0.0, 0),
		solidFrame(1, 1.0/30, 0),
		solidFrame(2, 2.0/30, 0),
		solidFrame(3, 3.0/30, 0),
	}
	fps := estimateFPS(frames, 25)
	assert.InDelta(t, 30, fps, 0.5)
}

func TestEstimateFPSFallsBackWithTooFewFrames(t *testing.T) {
	fps := estimateFPS([]*frame.Frame{solidFrame(0, 0, 0)}, 24)
	assert.Equal(t, 24.0, fps)
}

func TestAppendJSONLCreatesAndAppends(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "detections.jsonl")

	rec1 := DetectionRecord{Timestamp: "t1", Confidence: 0.9}
	rec2 := DetectionRecord{Timestamp: "t2", Confidence: 0.8}
	require.NoError(t, appendJSONL(path, rec1))
	require.NoError(t, appendJSONL(path, rec2))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, countLines(string(data)))
}

func countLines(s string) int {
	n := 0
	for _, c := range s {
		if c == '\n' {
			n++
		}
	}
	return n
}

func TestDrawCircleStaysWithinBoundsAndSetsColor(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 40, 40))
	drawCircle(img, 20, 20, 5, color.RGBA{255, 0, 0, 255})
	r, _, _, _ := img.At(25, 20).RGBA()
	assert.Greater(t, r, uint32(0))
}
