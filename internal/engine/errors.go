package engine

import "errors"

// Error kinds from spec.md §7 not already scoped to a narrower package
// (Stream Reader owns ErrConnectTimeout/ErrStreamClosed; Mask Store and
// Evidence Writer log their own MaskUnreadable/CodecInitFailure/
// WriterIOError conditions at their boundary rather than returning them).
var (
	// ErrMissingStreamURL is returned by New when a camera is configured
	// without a source URL; this is the one persistent initialization
	// failure in this package and is fatal (spec.md §7, §6 "Exit codes").
	ErrMissingStreamURL = errors.New("engine: stream URL is required")

	// ErrShutdownRequested is logged when the /restart endpoint triggers a
	// cooperative exit (spec.md §7 ShutdownRequested).
	ErrShutdownRequested = errors.New("engine: shutdown requested")
)
