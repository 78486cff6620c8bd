//go:build !unix

package instance

import "syscall"

// FlushSignal is unused where POSIX signals are unavailable.
const FlushSignal syscall.Signal = 0

const signalSupported = false
