// Package engine wires the per-camera pipeline of spec.md §2 end to end:
// Stream Reader → {Ring Buffer, Motion Extractor} → Tracker → Evaluator →
// Merger → Evidence Writer, alongside the Control Surface's HTTP/websocket
// boundary (§4.9). It is the Go realization of §5's four cooperating
// threads: goroutines selecting on a shared context, joined by a
// sync.WaitGroup at shutdown.
package engine

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"meteorwatch/internal/auth"
	"meteorwatch/internal/capture"
	"meteorwatch/internal/control"
	"meteorwatch/internal/evaluate"
	"meteorwatch/internal/evidence"
	"meteorwatch/internal/frame"
	"meteorwatch/internal/imgproc"
	"meteorwatch/internal/mask"
	"meteorwatch/internal/ringbuffer"
	"meteorwatch/internal/track"
	"meteorwatch/internal/vision"
)

// Config configures one camera's Engine (spec.md §5, §6).
type Config struct {
	Camera    string
	StreamURL string

	ProcessWidth  int
	ProcessHeight int
	ProcessScale  float64

	RingBufferSeconds float64

	Params evaluate.DetectionParams

	OutputDir        string
	ClipMarginBefore float64
	ClipMarginAfter  float64
	CompositeAfter   float64
	FallbackFPS      float64

	// MaskDilatePx is the dilation radius applied after synthesizing an
	// exclusion mask (spec.md §4.3, default 20).
	MaskDilatePx int
	// ReferenceImagePath, if set, synthesizes the startup exclusion mask
	// from a daytime reference image (spec.md §6 Inputs).
	ReferenceImagePath string
	// PrebuiltMaskPath, if set, loads a ready-made mask image instead of
	// synthesizing one; takes precedence over ReferenceImagePath.
	PrebuiltMaskPath string

	HTTPAddr string

	Logger *log.Logger
}

func (c *Config) setDefaults() {
	if c.ProcessWidth <= 0 {
		c.ProcessWidth = 640
	}
	if c.ProcessHeight <= 0 {
		c.ProcessHeight = 360
	}
	if c.ProcessScale <= 0 {
		c.ProcessScale = 1.0
	}
	if c.RingBufferSeconds <= 0 {
		c.RingBufferSeconds = 10
	}
	if c.OutputDir == "" {
		c.OutputDir = "."
	}
	if c.ClipMarginBefore <= 0 {
		c.ClipMarginBefore = 1
	}
	if c.ClipMarginAfter <= 0 {
		c.ClipMarginAfter = 1
	}
	if c.CompositeAfter <= 0 {
		c.CompositeAfter = 0.5
	}
	if c.FallbackFPS <= 0 {
		c.FallbackFPS = 15
	}
	if c.MaskDilatePx <= 0 {
		c.MaskDilatePx = 20
	}
	if c.HTTPAddr == "" {
		c.HTTPAddr = ":8080"
	}
	if c.Logger == nil {
		c.Logger = log.New(os.Stderr, fmt.Sprintf("[meteorwatch:%s] ", c.Camera), log.LstdFlags|log.Lmicroseconds)
	}
}

// Engine is one camera's detection pipeline plus its Control Surface.
type Engine struct {
	cfg    Config
	logger *log.Logger

	reader    *capture.StreamReader
	ring      *ringbuffer.RingBuffer
	masks     *mask.Store
	extractor *vision.Extractor
	tracker   *track.Tracker
	merger    *evaluate.Merger
	writer    *evidence.Writer

	surface *control.Surface
	hub     *control.EventHub
	httpSrv *http.Server

	frames chan *frame.Frame
}

// New builds an Engine for one camera. The only fatal initialization
// failure is a missing stream URL or an unwritable output directory
// (spec.md §7 propagation policy); everything else is logged and
// tolerated at runtime.
func New(cfg Config) (*Engine, error) {
	cfg.setDefaults()
	if cfg.StreamURL == "" {
		return nil, fmt.Errorf("engine: camera %s: %w", cfg.Camera, ErrMissingStreamURL)
	}

	maskDir := filepath.Join(cfg.OutputDir, "masks")
	if err := os.MkdirAll(maskDir, 0o755); err != nil {
		return nil, fmt.Errorf("engine: camera %s: create mask dir: %w", cfg.Camera, err)
	}

	masks := mask.NewStore()
	surface := control.New(cfg.Params, masks, cfg.ProcessWidth, cfg.ProcessHeight)
	surface.SetMaskPath(filepath.Join(maskDir, cfg.Camera+"_mask.png"))

	hub := control.NewEventHub(cfg.Camera, cfg.Logger)
	authenticator := auth.NewAuthenticator()
	server := control.NewServer(surface, hub, authenticator, cfg.Logger)

	e := &Engine{
		cfg:       cfg,
		logger:    cfg.Logger,
		reader:    capture.NewStreamReader(capture.Config{URL: cfg.StreamURL, Logger: cfg.Logger}),
		ring:      ringbuffer.New(cfg.RingBufferSeconds, 30),
		masks:     masks,
		extractor: vision.NewExtractor(),
		tracker: track.New(track.Config{
			MaxGapTime:  secondsToDuration(cfg.Params.MaxGapTimeSeconds),
			MaxDistance: cfg.Params.MaxDistance,
		}),
		merger: evaluate.NewMerger(cfg.Params),
		writer: evidence.New(evidence.Config{
			OutputDir:        cfg.OutputDir,
			ClipMarginBefore: cfg.ClipMarginBefore,
			ClipMarginAfter:  cfg.ClipMarginAfter,
			CompositeAfter:   cfg.CompositeAfter,
			FallbackFPS:      cfg.FallbackFPS,
		}, cfg.Logger),
		surface: surface,
		hub:     hub,
		httpSrv: control.NewHTTPServer(cfg.HTTPAddr, server),
		frames:  make(chan *frame.Frame, 4),
	}

	if err := e.loadInitialMask(); err != nil {
		e.logger.Printf("engine: %v (MaskUnreadable, continuing without mask)", err)
	}

	return e, nil
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func (e *Engine) loadInitialMask() error {
	switch {
	case e.cfg.PrebuiltMaskPath != "":
		img, err := loadImageFile(e.cfg.PrebuiltMaskPath)
		if err != nil {
			return fmt.Errorf("load prebuilt mask: %w", err)
		}
		resized := mask.ResizeMask(mask.FromImage(img), e.cfg.ProcessWidth, e.cfg.ProcessHeight)
		e.masks.UpdateExclusion(resized)
	case e.cfg.ReferenceImagePath != "":
		img, err := loadImageFile(e.cfg.ReferenceImagePath)
		if err != nil {
			return fmt.Errorf("load reference image: %w", err)
		}
		e.masks.UpdateExclusion(mask.Synthesize(img, e.cfg.ProcessWidth, e.cfg.ProcessHeight, e.cfg.MaskDilatePx))
	default:
		if img, err := loadImageFile(e.surface.MaskPath()); err == nil {
			e.masks.UpdateExclusion(mask.FromImage(img))
		}
	}
	return e.surface.PersistMask()
}

func loadImageFile(path string) (image.Image, error) {
	if path == "" {
		return nil, os.ErrNotExist
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	return img, err
}

// Run drives the engine until ctx is cancelled or a restart is requested
// through the Control Surface. It always returns nil: a panic inside a
// worker goroutine is recovered and logged at that goroutine's entry point
// (spec.md §7 recover()-guarded goroutine wrappers) rather than returned.
func (e *Engine) Run(ctx context.Context) error {
	childCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := e.reader.Start(childCtx); err != nil {
		if errors.Is(err, capture.ErrStreamClosed) {
			return nil
		}
		e.logger.Printf("engine: %v (StreamUnavailable, retrying in background)", err)
	}

	var wg sync.WaitGroup
	wg.Add(4)
	go e.serveHTTP(childCtx, &wg)
	go e.watchRestart(childCtx, cancel, &wg)
	go e.ingestLoop(childCtx, &wg)
	go e.detectLoop(childCtx, &wg)

	wg.Wait()
	e.reader.Stop()
	return nil
}

func (e *Engine) serveHTTP(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	defer e.guardPanic("http server")

	errCh := make(chan error, 1)
	go func() { errCh <- e.httpSrv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.logger.Printf("engine: http server error: %v", err)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := e.httpSrv.Shutdown(shutdownCtx); err != nil {
			e.logger.Printf("engine: http shutdown error: %v", err)
		}
		<-errCh
	}
}

// watchRestart polls the Control Surface's restart flag and cancels the
// per-camera context when it is set, satisfying spec.md §5's "per-camera
// child context cancelled additionally by the /restart handler" without
// giving the control package a handle back into the engine.
func (e *Engine) watchRestart(ctx context.Context, cancel context.CancelFunc, wg *sync.WaitGroup) {
	defer wg.Done()
	defer e.guardPanic("restart watcher")

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if e.surface.RestartRequested() {
				e.logger.Printf("engine: %v for camera %s", ErrShutdownRequested, e.cfg.Camera)
				cancel()
				return
			}
		}
	}
}

func (e *Engine) ingestLoop(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	defer e.guardPanic("ingest loop")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		f, err := e.reader.ReadFrame()
		if err != nil {
			if errors.Is(err, capture.ErrStreamClosed) {
				return
			}
			e.logger.Printf("engine: %v", err)
			continue
		}

		e.surface.SetStreamAlive(e.reader.IsConnected())
		e.surface.SetRuntimeFPS(e.reader.FPS())
		if f == nil {
			continue // 1s poll timeout, no frame yet; loop and recheck ctx
		}

		e.ring.Add(f)
		e.surface.UpdateFrame(f)

		select {
		case e.frames <- f:
		case <-ctx.Done():
			return
		}
	}
}

func (e *Engine) detectLoop(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	defer e.drainFinalization()
	defer e.guardPanic("detect loop")

	var prevGray *image.Gray
	for {
		select {
		case <-ctx.Done():
			return
		case f := <-e.frames:
			prevGray = e.processFrame(f, prevGray)
		}
	}
}

// processFrame runs one frame through the Motion Extractor, Tracker, and
// Evaluator/Merger, returning the grayscale frame to use as "previous" on
// the next call (spec.md §4.4 steps 1–10).
func (e *Engine) processFrame(f *frame.Frame, prevGray *image.Gray) *image.Gray {
	resized := imgproc.Resize(f.Img, e.cfg.ProcessWidth, e.cfg.ProcessHeight)
	curr := imgproc.ToGray(resized)
	if prevGray == nil {
		return curr
	}

	params := e.surface.Params()
	exclusionMask, nuisanceMask := e.masks.Snapshot()

	var exclusion, nuisance *imgproc.Binary
	if exclusionMask != nil {
		exclusion = exclusionMask.Binary
	}
	if nuisanceMask != nil {
		nuisance = nuisanceMask.Binary
	}

	// A track already in flight uses the more permissive tracking-mode
	// brightness gate for its continuation frames (spec.md §4.4 step 8);
	// idle cameras use the full threshold to avoid seeding tracks on noise.
	trackingMode := e.tracker.ActiveCount() > 0

	observations := e.extractor.Extract(prevGray, curr, exclusion, nuisance, trackingMode, vision.Params{
		DiffThreshold:            params.DiffThreshold,
		ExcludeBottomRatio:       params.ExcludeBottomRatio,
		ExcludeEdgeRatio:         params.ExcludeEdgeRatio,
		MinArea:                  params.MinArea,
		MaxArea:                  params.MaxArea,
		MinBrightness:            float64(params.MinBrightness),
		MinBrightnessTracking:    float64(params.MinBrightnessTracking),
		SmallAreaThreshold:       params.SmallAreaThreshold,
		NuisanceOverlapThreshold: params.NuisanceOverlapThreshold,
		ProcessScale:             e.cfg.ProcessScale,
	})

	trackObs := make([]track.Observation, len(observations))
	for i, o := range observations {
		trackObs[i] = track.Observation{X: o.X, Y: o.Y, Brightness: o.Brightness}
	}

	e.tracker.SetConfig(track.Config{
		MaxGapTime:  secondsToDuration(params.MaxGapTimeSeconds),
		MaxDistance: params.MaxDistance,
	})
	finalized := e.tracker.Update(trackObs, f.Captured)
	e.surface.SetDetecting(e.tracker.ActiveCount() > 0)

	e.merger.SetParams(params)
	for _, t := range finalized {
		e.evaluateAndEmit(t, params, nuisanceMask)
	}

	return curr
}

func (e *Engine) evaluateAndEmit(t track.Track, params evaluate.DetectionParams, nuisance *mask.Mask) {
	cand, reason := evaluate.Evaluate(evaluate.AcceptanceContext{
		Track:    t,
		Params:   params,
		Nuisance: nuisance,
		Realtime: true,
	})
	if cand == nil {
		e.logger.Printf("engine: track %s rejected: %s", t.ID, reason)
		return
	}
	for _, ev := range e.merger.Add(*cand) {
		e.emitEvent(ev)
	}
}

func (e *Engine) emitEvent(ev evaluate.Event) {
	e.surface.IncrementDetections()

	if err := e.writer.Write(context.Background(), ev, e.reader.StartTime(), e.ring); err != nil {
		e.logger.Printf("engine: evidence write failed: %v", err)
	}

	dx := ev.End.End.X - ev.Start.Start.X
	dy := ev.End.End.Y - ev.Start.Start.Y
	e.hub.Broadcast(control.EventRecord{
		Camera:         e.cfg.Camera,
		Timestamp:      ev.End.End.Time.Format(time.RFC3339),
		StartPoint:     [2]float64{ev.Start.Start.X, ev.Start.Start.Y},
		EndPoint:       [2]float64{ev.End.End.X, ev.End.End.Y},
		LengthPixels:   math.Hypot(dx, dy),
		Confidence:     ev.Confidence,
		PeakBrightness: ev.PeakBrightness,
	})
}

// drainFinalization flushes the Tracker and Merger unconditionally at
// shutdown (spec.md §4.5 "Finalize marked tracks", §4.7 "at shutdown, any
// queued item is flushed downstream"), guaranteeing Thread B's
// drain-then-exit ordering completes before Run returns.
func (e *Engine) drainFinalization() {
	params := e.surface.Params()
	_, nuisanceMask := e.masks.Snapshot()

	for _, t := range e.tracker.FinalizeAll() {
		e.evaluateAndEmit(t, params, nuisanceMask)
	}
	for _, ev := range e.merger.Flush() {
		e.emitEvent(ev)
	}
}

// guardPanic recovers a worker goroutine's panic so one bad frame cannot
// bring down the process (spec.md §7 "nothing in the hot path calls panic
// except for unrecoverable programmer-error invariant violations converted
// to recover()-guarded goroutine wrappers").
func (e *Engine) guardPanic(who string) {
	if r := recover(); r != nil {
		e.logger.Printf("engine: recovered panic in %s: %v", who, r)
	}
}
