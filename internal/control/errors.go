package control

import "errors"

// errFrameUnavailable is returned when a mask-synthesis request arrives
// before the engine has delivered its first frame.
var errFrameUnavailable = errors.New("control: no current frame available yet")
