package capture

// extractJPEGFrame scans buf for one complete JPEG image delimited by the
// standard SOI (0xFFD8) / EOI (0xFFD9) markers and, if found, returns its
// bytes and advances buf past the frame, extracting discrete MJPEG frames
// from ffmpeg's image2pipe stdout.
func extractJPEGFrame(buf *[]byte) []byte {
	b := *buf

	start := -1
	for i := 0; i+1 < len(b); i++ {
		if b[i] == 0xFF && b[i+1] == 0xD8 {
			start = i
			break
		}
	}
	if start == -1 {
		// No start marker yet; keep at most the last byte in case it is a
		// split 0xFF of a marker that will complete on the next read.
		if len(b) > 1 {
			*buf = b[len(b)-1:]
		}
		return nil
	}

	end := -1
	for i := start + 2; i+1 < len(b); i++ {
		if b[i] == 0xFF && b[i+1] == 0xD9 {
			end = i + 2
			break
		}
	}
	if end == -1 {
		// Incomplete frame; keep everything from the start marker onward.
		*buf = b[start:]
		return nil
	}

	frame := make([]byte, end-start)
	copy(frame, b[start:end])
	*buf = b[end:]
	return frame
}
