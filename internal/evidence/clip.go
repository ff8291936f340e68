package evidence

import (
	"bufio"
	"context"
	"fmt"
	"image/jpeg"
	"os/exec"

	"meteorwatch/internal/frame"
)

// clipCodecs lists ffmpeg encoder names attempted in preferred order,
// grounded on the original's open_video_writer codec list ("avc1", "H264",
// "mp4v" — OpenCV fourccs), translated to their Go-idiomatic ffmpeg
// equivalents: libx264 and then libopenh264 for H.264, then mpeg4 as the
// last fallback (spec.md §7 CodecInitFailure: "attempt codecs in preferred
// order, fall back to raw-compressed codec if none available"). No codec
// beyond these three is tried.
var clipCodecs = []string{"libx264", "libopenh264", "mpeg4"}

// writeClip encodes frames as an MP4 at fps by piping JPEG-reencoded
// frames into ffmpeg over stdin (spec.md §4.8 step 3), trying each codec
// in clipCodecs until one starts successfully. Returns the codec name used,
// or an error if every codec failed to initialize (CodecInitFailure).
func writeClip(ctx context.Context, path string, frames []*frame.Frame, fps float64) (string, error) {
	if len(frames) == 0 {
		return "", fmt.Errorf("evidence: no frames to encode")
	}

	var lastErr error
	for _, codec := range clipCodecs {
		if err := encodeWithCodec(ctx, path, frames, fps, codec); err != nil {
			lastErr = err
			continue
		}
		return codec, nil
	}
	return "", fmt.Errorf("evidence: all clip codecs failed to initialize: %w", lastErr)
}

func encodeWithCodec(ctx context.Context, path string, frames []*frame.Frame, fps float64, codec string) error {
	args := []string{
		"-y",
		"-f", "image2pipe",
		"-framerate", fmt.Sprintf("%.3f", fps),
		"-i", "-",
		"-c:v", codec,
		"-pix_fmt", "yuv420p",
		"-movflags", "+faststart",
		path,
	}
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return err
	}

	if err := cmd.Start(); err != nil {
		return err
	}

	w := bufio.NewWriter(stdin)
	var encodeErr error
	for _, f := range frames {
		if err := jpeg.Encode(w, f.Img, &jpeg.Options{Quality: 92}); err != nil {
			encodeErr = err
			break
		}
	}
	flushErr := w.Flush()
	closeErr := stdin.Close()
	waitErr := cmd.Wait()

	if encodeErr != nil {
		return encodeErr
	}
	if flushErr != nil {
		return flushErr
	}
	if closeErr != nil {
		return closeErr
	}
	return waitErr
}
