// Package capture implements the Stream Reader (spec.md §4.1): it opens an
// RTSP connection via an ffmpeg subprocess, decodes the MJPEG frames ffmpeg
// emits on stdout, and feeds them into a bounded drop-oldest queue for the
// detector worker to consume: drop the oldest queued frame instead of the
// newest (spec.md explicitly requires drop-oldest) and track a
// reconnect-safe timestamp base across outages (spec.md §4.1, §9
// "Timestamp base").
package capture

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"image/jpeg"
	"io"
	"log"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"meteorwatch/internal/frame"
)

// Config configures a StreamReader.
type Config struct {
	URL            string
	QueueCapacity  int           // default 30
	ReconnectDelay time.Duration // default 5s
	ConnectTimeout time.Duration // default 10s
	MaxFailures    int           // default 30 consecutive read failures before reconnect
	FPS            int           // requested capture fps, default 15
	Logger         *log.Logger
}

func (c *Config) setDefaults() {
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = 30
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = 5 * time.Second
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.MaxFailures <= 0 {
		c.MaxFailures = 30
	}
	if c.FPS <= 0 {
		c.FPS = 15
	}
	if c.Logger == nil {
		c.Logger = log.New(io.Discard, "", 0)
	}
}

// StreamReader is the Thread-A component: it owns the ffmpeg subprocess and
// is the exclusive owner of the underlying capture handle (spec.md §3
// Ownership).
type StreamReader struct {
	cfg   Config
	queue *FrameQueue

	mu         sync.Mutex
	connected  bool
	startTime  time.Time
	haveStart  bool
	width      int
	height     int
	fps        float64
	seq        uint64
	stopped    atomic.Bool
	connSignal chan struct{}

	cancel context.CancelFunc
	done   chan struct{}
}

// NewStreamReader constructs a reader for the given configuration. Start
// must be called to begin capture.
func NewStreamReader(cfg Config) *StreamReader {
	cfg.setDefaults()
	return &StreamReader{
		cfg:        cfg,
		queue:      NewFrameQueue(cfg.QueueCapacity),
		fps:        30,
		connSignal: make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
}

// Start launches the capture goroutine and waits up to ConnectTimeout for
// the first successful connection. The capture loop keeps running (and
// retrying) in the background even if this call returns ErrConnectTimeout:
// StreamUnavailable is surfaced via stats, never fatal (spec.md §7).
func (r *StreamReader) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	go r.runLoop(runCtx)

	select {
	case <-r.connSignal:
		return nil
	case <-time.After(r.cfg.ConnectTimeout):
		return ErrConnectTimeout
	case <-runCtx.Done():
		return ErrStreamClosed
	}
}

// Stop requests shutdown and waits for the capture goroutine to exit.
func (r *StreamReader) Stop() {
	if r.stopped.Swap(true) {
		return
	}
	if r.cancel != nil {
		r.cancel()
	}
	<-r.done
}

// ReadFrame pops the next frame from the bounded queue, blocking up to 1s.
// A nil frame with a nil error means "timeout, no frame yet, keep polling"
// (spec.md §4.1 "read() → (ok, timestamp, frame?)").
func (r *StreamReader) ReadFrame() (*frame.Frame, error) {
	if r.stopped.Load() {
		return nil, ErrStreamClosed
	}
	f, ok := r.queue.Pop(1 * time.Second)
	if !ok {
		return nil, nil
	}
	return f, nil
}

// IsConnected reports whether the underlying ffmpeg subprocess currently
// has an open stream.
func (r *StreamReader) IsConnected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connected
}

// FPS returns the reader's frame-rate figure passed through SanitizeFPS
// (spec.md §4.1). The reader does not probe the source: the figure is the
// 30 fps set at construction and is not derived from Config.FPS.
func (r *StreamReader) FPS() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return frame.SanitizeFPS(r.fps)
}

// FrameSize returns the last observed frame dimensions.
func (r *StreamReader) FrameSize() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.width, r.height
}

// Dropped returns the number of frames evicted from the bounded queue under
// backpressure (spec.md §7 FrameQueueBackpressure).
func (r *StreamReader) Dropped() uint64 {
	return r.queue.Dropped()
}

// StartTime returns the wall-clock instant of the first delivered frame,
// persisted across reconnects (spec.md §9 "Timestamp base"). Zero until the
// first frame arrives.
func (r *StreamReader) StartTime() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.startTime
}

func (r *StreamReader) runLoop(ctx context.Context) {
	defer close(r.done)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := r.captureOnce(ctx); err != nil {
			r.cfg.Logger.Printf("capture: session ended: %v", err)
		}

		r.mu.Lock()
		r.connected = false
		r.mu.Unlock()

		if ctx.Err() != nil {
			return
		}

		r.cfg.Logger.Printf("capture: reconnecting in %s", r.cfg.ReconnectDelay)
		select {
		case <-ctx.Done():
			return
		case <-time.After(r.cfg.ReconnectDelay):
		}
	}
}

func (r *StreamReader) ffmpegArgs() []string {
	url := r.cfg.URL
	switch {
	case strings.HasPrefix(url, "rtsp://"):
		return []string{
			"-rtsp_transport", "tcp", "-i", url,
			"-f", "image2pipe", "-vcodec", "mjpeg",
			"-r", fmt.Sprintf("%d", r.cfg.FPS), "-q:v", "5", "-",
		}
	default:
		// http(s) or local file source: no -rtsp_transport flag needed.
		return []string{
			"-i", url,
			"-f", "image2pipe", "-vcodec", "mjpeg",
			"-r", fmt.Sprintf("%d", r.cfg.FPS), "-q:v", "5", "-",
		}
	}
}

func (r *StreamReader) captureOnce(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, "ffmpeg", r.ffmpegArgs()...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("capture: stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("capture: start ffmpeg: %w", err)
	}

	r.cfg.Logger.Printf("capture: connected to %s", r.cfg.URL)
	r.mu.Lock()
	r.connected = true
	r.mu.Unlock()
	select {
	case r.connSignal <- struct{}{}:
	default:
	}

	consecutiveFailures := 0
	frameBuf := make([]byte, 0, 1<<16)
	chunk := make([]byte, 8192)
	reader := bufio.NewReaderSize(stdout, 1<<16)

	for {
		select {
		case <-ctx.Done():
			_ = cmd.Process.Kill()
			return ctx.Err()
		default:
		}

		n, readErr := reader.Read(chunk)
		if n > 0 {
			frameBuf = append(frameBuf, chunk[:n]...)
			for {
				jpegBytes := extractJPEGFrame(&frameBuf)
				if jpegBytes == nil {
					break
				}
				consecutiveFailures = 0
				r.deliverFrame(jpegBytes)
			}
		}
		if readErr != nil {
			consecutiveFailures++
			if readErr == io.EOF || consecutiveFailures > r.cfg.MaxFailures {
				_ = cmd.Wait()
				return fmt.Errorf("capture: stream interrupted: %w", readErr)
			}
			time.Sleep(10 * time.Millisecond)
		}
	}
}

func (r *StreamReader) deliverFrame(jpegBytes []byte) {
	img, err := jpeg.Decode(bytes.NewReader(jpegBytes))
	if err != nil {
		return
	}

	now := time.Now()
	r.mu.Lock()
	if !r.haveStart {
		r.startTime = now
		r.haveStart = true
	}
	ts := now.Sub(r.startTime).Seconds()
	r.seq++
	seq := r.seq
	b := img.Bounds()
	r.width, r.height = b.Dx(), b.Dy()
	r.mu.Unlock()

	r.queue.Push(&frame.Frame{
		Seq:       seq,
		Timestamp: ts,
		Img:       img,
		Captured:  now,
	})
}
