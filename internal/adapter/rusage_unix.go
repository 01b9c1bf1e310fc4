//go:build unix

package adapter

import (
	"os"
	"runtime"
	"syscall"
)

// peakRSSKB reads the child's maximum resident set size from its rusage.
// Linux reports Maxrss in kilobytes, Darwin in bytes.
func peakRSSKB(state *os.ProcessState) int64 {
	rusage, ok := state.SysUsage().(*syscall.Rusage)
	if !ok {
		return 0
	}

	if runtime.GOOS == "darwin" {
		return rusage.Maxrss / 1024
	}

	return rusage.Maxrss
}
