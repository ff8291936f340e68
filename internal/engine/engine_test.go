package engine

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meteorwatch/internal/evaluate"
	"meteorwatch/internal/frame"
)

func solidGray(w, h int, v uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = v
	}
	return img
}

func square(img *image.Gray, cx, cy, half int, v uint8) {
	for y := cy - half; y <= cy+half; y++ {
		for x := cx - half; x <= cx+half; x++ {
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(Config{
		Camera:            "cam0",
		StreamURL:         "rtsp://example.invalid/stream",
		ProcessWidth:      100,
		ProcessHeight:     100,
		RingBufferSeconds: 10,
		Params:            evaluate.Defaults(),
		OutputDir:         t.TempDir(),
	})
	require.NoError(t, err)
	return e
}

func TestNewRequiresStreamURL(t *testing.T) {
	_, err := New(Config{Camera: "cam0", OutputDir: t.TempDir()})
	assert.ErrorIs(t, err, ErrMissingStreamURL)
}

// Each call below diffs against a fixed, object-free background rather than
// the previous frame in the sequence, so a moving blob never leaves a
// "disappearing" ghost at its prior position for the extractor to pick up
// as a second observation — the frame-to-frame differencing semantics
// themselves are already covered by internal/vision's own tests.
func TestEngineAcceptsStraightBrightStreak(t *testing.T) {
	e := newTestEngine(t)
	bg := solidGray(100, 100, 10)

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 6; i++ {
		img := solidGray(100, 100, 10)
		frac := float64(i) / 5.0
		cx := 10 + int(frac*80)
		cy := 10 + int(frac*80)
		square(img, cx, cy, 2, 220)

		f := &frame.Frame{
			Seq:       uint64(i),
			Timestamp: float64(i) * 0.033,
			Img:       img,
			Captured:  base.Add(time.Duration(i) * 33 * time.Millisecond),
		}
		e.ring.Add(f)
		e.processFrame(f, bg)
	}

	e.drainFinalization()
	assert.EqualValues(t, 1, e.surface.Stats().DetectionCount)
}

func TestEngineRejectsStationaryFlicker(t *testing.T) {
	e := newTestEngine(t)
	bg := solidGray(100, 100, 10)

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		img := solidGray(100, 100, 10)
		if i%2 == 0 {
			square(img, 50, 50, 2, 220)
		}

		f := &frame.Frame{
			Seq:       uint64(i),
			Timestamp: float64(i) * 0.066,
			Img:       img,
			Captured:  base.Add(time.Duration(i) * 66 * time.Millisecond),
		}
		e.ring.Add(f)
		e.processFrame(f, bg)
	}

	e.drainFinalization()
	assert.EqualValues(t, 0, e.surface.Stats().DetectionCount)
}

func TestLoadInitialMaskFromPrebuiltPath(t *testing.T) {
	dir := t.TempDir()
	maskImg := image.NewGray(image.Rect(0, 0, 10, 10))
	for y := 0; y < 5; y++ {
		for x := 0; x < 10; x++ {
			maskImg.SetGray(x, y, color.Gray{Y: 255})
		}
	}
	maskPath := dir + "/prebuilt.png"
	writePNG(t, maskPath, maskImg)

	e, err := New(Config{
		Camera:           "cam1",
		StreamURL:        "rtsp://example.invalid/stream",
		ProcessWidth:     10,
		ProcessHeight:    10,
		OutputDir:        t.TempDir(),
		PrebuiltMaskPath: maskPath,
	})
	require.NoError(t, err)
	assert.True(t, e.surface.Masks().Active())
}

func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}
