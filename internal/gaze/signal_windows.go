//go:build windows

package gaze

import "os"

// Windows has no SIGTERM delivery for console children; Kill is the
// only option, so Terminate degrades to it.
var terminateSignal = os.Kill
