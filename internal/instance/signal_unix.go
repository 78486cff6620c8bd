//go:build unix

package instance

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// FlushSignal asks a running agent to persist its state.
const FlushSignal syscall.Signal = unix.SIGUSR1

const signalSupported = true
