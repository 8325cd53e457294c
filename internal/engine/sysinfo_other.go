//go:build !linux && !windows

package engine

import "errors"

func memoryStats() (memoryInfo, error) {
	return memoryInfo{}, errors.New("memory statistics not supported on this platform")
}
