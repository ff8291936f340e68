package capture

import "errors"

// Error kinds from spec.md §7, scoped to the Stream Reader.
var (
	// ErrConnectTimeout is returned by Start when the initial connection
	// does not come up within the configured connect timeout. The reader
	// keeps retrying in the background regardless of this error.
	ErrConnectTimeout = errors.New("capture: connect timeout")
	// ErrStreamClosed is returned by ReadFrame once Stop has been called.
	ErrStreamClosed = errors.New("capture: stream closed")
)
