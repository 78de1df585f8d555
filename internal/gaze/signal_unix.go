//go:build !windows

package gaze

import "syscall"

var terminateSignal = syscall.SIGTERM
