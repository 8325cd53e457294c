//go:build windows

package engine

import (
	"fmt"
	"sort"
	"unsafe"

	"golang.org/x/sys/windows"
)

// processSnapshot enumerates processes through the Toolhelp32 snapshot
// API. Owner lookup needs per-process token access and is skipped; the
// field is reported where available only.
func processSnapshot() ([]processInfo, error) {
	snapshot, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPPROCESS, 0)
	if err != nil {
		return nil, fmt.Errorf("create process snapshot: %w", err)
	}
	defer windows.CloseHandle(snapshot)

	var entry windows.ProcessEntry32
	entry.Size = uint32(unsafe.Sizeof(entry))
	if err := windows.Process32First(snapshot, &entry); err != nil {
		return nil, fmt.Errorf("read process snapshot: %w", err)
	}

	var procs []processInfo
	for {
		procs = append(procs, processInfo{
			pid:  int(entry.ProcessID),
			name: windows.UTF16ToString(entry.ExeFile[:]),
		})
		if err := windows.Process32Next(snapshot, &entry); err != nil {
			break
		}
	}
	sort.Slice(procs, func(i, j int) bool { return procs[i].pid < procs[j].pid })
	return procs, nil
}
