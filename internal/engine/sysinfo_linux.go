//go:build linux

package engine

import (
	"fmt"

	"golang.org/x/sys/unix"
)

func memoryStats() (memoryInfo, error) {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return memoryInfo{}, fmt.Errorf("sysinfo: %w", err)
	}
	unit := uint64(info.Unit)
	if unit == 0 {
		unit = 1
	}
	return memoryInfo{
		total:     uint64(info.Totalram) * unit,
		available: uint64(info.Freeram) * unit,
	}, nil
}
