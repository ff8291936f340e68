// Package control implements the Control Surface boundary (spec.md §4.9):
// a thread-safe handle exposing the current display frame, a stats
// snapshot, mask replacement, and live DetectionParams updates to HTTP (and
// optionally websocket) collaborators, plus the net/http wiring itself.
//
// Implements the §9 design note's "per-engine handle... shared read
// access via a lightweight snapshot pattern", replacing the original's
// module-level globals (current_frame, current_settings,
// current_detector) with fields of a per-camera handle.
package control

import (
	"image"
	"image/png"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"meteorwatch/internal/evaluate"
	"meteorwatch/internal/frame"
	"meteorwatch/internal/mask"
)

// Stats is the JSON payload of GET /stats (spec.md §4.9, §6).
type Stats struct {
	DetectionCount int64                    `json:"detection_count"`
	UptimeSeconds  float64                  `json:"uptime_seconds"`
	RuntimeFPS     float64                  `json:"runtime_fps"`
	StreamAlive    bool                     `json:"stream_alive"`
	Detecting      bool                     `json:"detecting"`
	MaskActive     bool                     `json:"mask_active"`
	Params         evaluate.DetectionParams `json:"params"`
}

// Surface is the single per-camera handle shared between the engine's
// worker goroutines and the HTTP/websocket handlers. Each field group is
// behind its own short-critical-section lock (spec.md §5 "Masks, current
// frame snapshot, parameters: each behind its own short-critical-section
// lock; readers clone small views rather than hold the lock").
type Surface struct {
	startTime time.Time

	frameMu sync.RWMutex
	current *frame.Frame

	statsMu sync.RWMutex
	stats   Stats

	paramsMu sync.RWMutex
	params   evaluate.DetectionParams

	masks    *mask.Store
	maskPath string

	detectionCount int64
	streamAlive    int32
	detecting      int32
	restartFlag    int32

	processingSize struct {
		w, h int
	}
}

// New returns a Surface seeded with the given initial parameters and
// processing-resolution (used when synthesizing a mask from the live
// frame).
func New(initial evaluate.DetectionParams, masks *mask.Store, procW, procH int) *Surface {
	s := &Surface{
		startTime: time.Now(),
		params:    initial,
		masks:     masks,
	}
	s.processingSize.w, s.processingSize.h = procW, procH
	return s
}

// UpdateFrame replaces the current display frame (spec.md §4.9 "current
// display frame (atomic get)").
func (s *Surface) UpdateFrame(f *frame.Frame) {
	s.frameMu.Lock()
	s.current = f
	s.frameMu.Unlock()
}

// CurrentFrame returns the current display frame, or nil if none has
// arrived yet.
func (s *Surface) CurrentFrame() *frame.Frame {
	s.frameMu.RLock()
	defer s.frameMu.RUnlock()
	return s.current
}

// SetStreamAlive records the Reader's connection state, surfaced in Stats.
func (s *Surface) SetStreamAlive(alive bool) {
	if alive {
		atomic.StoreInt32(&s.streamAlive, 1)
	} else {
		atomic.StoreInt32(&s.streamAlive, 0)
	}
}

// SetDetecting records whether the detector worker is actively processing.
func (s *Surface) SetDetecting(v bool) {
	if v {
		atomic.StoreInt32(&s.detecting, 1)
	} else {
		atomic.StoreInt32(&s.detecting, 0)
	}
}

// IncrementDetections bumps the lifetime detection counter by one.
func (s *Surface) IncrementDetections() {
	atomic.AddInt64(&s.detectionCount, 1)
}

// SetRuntimeFPS records the frame rate reported as runtime_fps in Stats.
// The engine feeds it the Stream Reader's FPS figure; no processing rate is
// measured.
func (s *Surface) SetRuntimeFPS(fps float64) {
	s.statsMu.Lock()
	s.stats.RuntimeFPS = fps
	s.statsMu.Unlock()
}

// Stats assembles a point-in-time stats snapshot (spec.md §4.9).
func (s *Surface) Stats() Stats {
	s.statsMu.RLock()
	fps := s.stats.RuntimeFPS
	s.statsMu.RUnlock()

	return Stats{
		DetectionCount: atomic.LoadInt64(&s.detectionCount),
		UptimeSeconds:  time.Since(s.startTime).Seconds(),
		RuntimeFPS:     fps,
		StreamAlive:    atomic.LoadInt32(&s.streamAlive) != 0,
		Detecting:      atomic.LoadInt32(&s.detecting) != 0,
		MaskActive:     s.masks.Active(),
		Params:         s.Params(),
	}
}

// Params returns the current effective DetectionParams.
func (s *Surface) Params() evaluate.DetectionParams {
	s.paramsMu.RLock()
	defer s.paramsMu.RUnlock()
	return s.params
}

// UpdateParams applies a partial update function to the current params
// (e.g. a sensitivity preset followed by field overrides, per §9's "apply
// preset then apply explicit overrides" decision), clamps the result, and
// returns the effective values (spec.md §7 ParamOutOfRange: "clamp and
// return the effective value; never fails hard").
func (s *Surface) UpdateParams(mutate func(*evaluate.DetectionParams)) evaluate.DetectionParams {
	s.paramsMu.Lock()
	defer s.paramsMu.Unlock()
	mutate(&s.params)
	s.params.Clamp()
	return s.params
}

// Masks returns the Mask Store backing this camera.
func (s *Surface) Masks() *mask.Store { return s.masks }

// SetMaskPath configures the on-disk location used by PersistMask (spec.md
// §6 "masks/<camera>_mask.png"). Optional; PersistMask is a no-op until
// this is set.
func (s *Surface) SetMaskPath(path string) { s.maskPath = path }

// MaskPath returns the currently configured mask persistence path, or the
// empty string if none was set.
func (s *Surface) MaskPath() string { return s.maskPath }

// PersistMask writes the current exclusion mask to the configured mask
// path, or removes the file if no exclusion mask is installed. A no-op if
// SetMaskPath was never called.
func (s *Surface) PersistMask() error {
	if s.maskPath == "" {
		return nil
	}
	exclusion, _ := s.masks.Snapshot()
	if exclusion == nil {
		if err := os.Remove(s.maskPath); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	}
	f, err := os.Create(s.maskPath)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, exclusion.ToGrayImage())
}

// SynthesizeMaskFromCurrent builds a new exclusion mask from the current
// display frame (spec.md §4.9 "mask-replace (from live frame...)").
func (s *Surface) SynthesizeMaskFromCurrent(dilatePx int) (*mask.Mask, error) {
	f := s.CurrentFrame()
	if f == nil {
		return nil, errFrameUnavailable
	}
	return mask.Synthesize(f.Img, s.processingSize.w, s.processingSize.h, dilatePx), nil
}

// SynthesizeMaskFromImage builds a new exclusion mask from an arbitrary
// reference image (spec.md §6 "Optional daytime reference image").
func (s *Surface) SynthesizeMaskFromImage(src image.Image, dilatePx int) *mask.Mask {
	return mask.Synthesize(src, s.processingSize.w, s.processingSize.h, dilatePx)
}

// RequestRestart sets the shutdown flag (spec.md §4.9 "POST /restart").
func (s *Surface) RequestRestart() { atomic.StoreInt32(&s.restartFlag, 1) }

// RestartRequested reports whether a restart has been requested.
func (s *Surface) RestartRequested() bool { return atomic.LoadInt32(&s.restartFlag) != 0 }
