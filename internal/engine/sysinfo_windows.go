//go:build windows

package engine

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

func memoryStats() (memoryInfo, error) {
	var status windows.MemoryStatusEx
	status.Length = uint32(unsafe.Sizeof(status))
	if err := windows.GlobalMemoryStatusEx(&status); err != nil {
		return memoryInfo{}, fmt.Errorf("memory status: %w", err)
	}
	return memoryInfo{
		total:     status.TotalPhys,
		available: status.AvailPhys,
	}, nil
}
