package evidence

import (
	"context"
	"fmt"
	"log"
	"math"
	"path/filepath"
	"sort"
	"time"

	"meteorwatch/internal/evaluate"
	"meteorwatch/internal/frame"
	"meteorwatch/internal/ringbuffer"
)

// Config holds the Evidence Writer's margins and output location (spec.md
// §4.8).
type Config struct {
	OutputDir        string
	ClipMarginBefore float64 // seconds
	ClipMarginAfter  float64 // seconds
	CompositeAfter   float64 // seconds
	FallbackFPS      float64
}

// Writer turns a finalized Event into the on-disk artifacts of spec.md §6
// Outputs, grounded on the original's save_meteor_event.
type Writer struct {
	cfg    Config
	logger *log.Logger
}

// New returns an Evidence Writer using logger for its ambient log lines
// (spec.md §10).
func New(cfg Config, logger *log.Logger) *Writer {
	return &Writer{cfg: cfg, logger: logger}
}

// Write slices ring for the event's time range, writes a clip (best effort)
// and two composite stills, and appends a detections.jsonl record. epoch
// converts the Candidate's wall-clock timestamps into the ring buffer's
// stream-relative seconds (spec.md §9 "Timestamp base").
func (w *Writer) Write(ctx context.Context, event evaluate.Event, epoch time.Time, ring *ringbuffer.RingBuffer) error {
	startTS := event.Start.Start.Time.Sub(epoch).Seconds()
	endTS := event.End.End.Time.Sub(epoch).Seconds()

	clipFrames := ring.GetRange(startTS-w.cfg.ClipMarginBefore, endTS+w.cfg.ClipMarginAfter)
	if len(clipFrames) == 0 {
		w.logger.Printf("evidence: no frames available for event ending %s, skipping", event.End.End.Time.Format(time.RFC3339))
		return fmt.Errorf("evidence: empty frame range")
	}

	baseName := "meteor_" + event.End.End.Time.Local().Format("20060102_150405")
	fps := estimateFPS(clipFrames, frame.SanitizeFPS(w.cfg.FallbackFPS))

	clipFile := ""
	clipPath := filepath.Join(w.cfg.OutputDir, baseName+".mp4")
	if codec, err := writeClip(ctx, clipPath, clipFrames, fps); err != nil {
		w.logger.Printf("evidence: clip encode failed for %s: %v (CodecInitFailure, skipping clip)", baseName, err)
	} else {
		w.logger.Printf("evidence: wrote clip %s using codec %s", clipPath, codec)
		clipFile = filepath.Base(clipPath)
	}

	compositeFile := ""
	compositeFrames := ring.GetRange(startTS, endTS+w.cfg.CompositeAfter)
	if len(compositeFrames) > 0 {
		composite := brightenMaxComposite(compositeFrames)
		caption := fmt.Sprintf("%s | Conf: %.0f%%", event.End.End.Time.Local().Format("15:04:05"), event.Confidence*100)
		marked := annotate(composite, event.Start.Start.X, event.Start.Start.Y, event.End.End.X, event.End.End.Y, caption)

		annotatedPath := filepath.Join(w.cfg.OutputDir, baseName+"_composite.jpg")
		originalPath := filepath.Join(w.cfg.OutputDir, baseName+"_composite_original.jpg")
		if err := writeJPEG(annotatedPath, marked); err != nil {
			w.logger.Printf("evidence: failed writing annotated composite for %s: %v (WriterIOError)", baseName, err)
		} else if err := writeJPEG(originalPath, composite); err != nil {
			w.logger.Printf("evidence: failed writing composite for %s: %v (WriterIOError)", baseName, err)
		} else {
			compositeFile = filepath.Base(annotatedPath)
		}
	}

	rec := DetectionRecord{
		Timestamp:      isoLocal(event.End.End.Time),
		StartTime:      startTS,
		EndTime:        endTS,
		Duration:       endTS - startTS,
		StartPoint:     [2]float64{event.Start.Start.X, event.Start.Start.Y},
		EndPoint:       [2]float64{event.End.End.X, event.End.End.Y},
		LengthPixels:   eventLength(event),
		PeakBrightness: event.PeakBrightness,
		Confidence:     event.Confidence,
		ClipFile:       clipFile,
		CompositeFile:  compositeFile,
	}

	jsonlPath := filepath.Join(w.cfg.OutputDir, "detections.jsonl")
	if err := appendJSONL(jsonlPath, rec); err != nil {
		w.logger.Printf("evidence: failed appending %s: %v (WriterIOError)", jsonlPath, err)
		return err
	}
	return nil
}

func eventLength(event evaluate.Event) float64 {
	dx := event.End.End.X - event.Start.Start.X
	dy := event.End.End.Y - event.Start.Start.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// estimateFPS computes the median inter-frame delta across frames and
// returns its reciprocal, falling back to fallback when fewer than two
// frames are available (spec.md §4.8 step 2).
func estimateFPS(frames []*frame.Frame, fallback float64) float64 {
	if len(frames) < 2 {
		return fallback
	}
	deltas := make([]float64, 0, len(frames)-1)
	for i := 1; i < len(frames); i++ {
		d := frames[i].Timestamp - frames[i-1].Timestamp
		if d > 0 {
			deltas = append(deltas, d)
		}
	}
	if len(deltas) == 0 {
		return fallback
	}
	sort.Float64s(deltas)
	median := deltas[len(deltas)/2]
	if median <= 0 {
		return fallback
	}
	return frame.SanitizeFPS(1.0 / median)
}
