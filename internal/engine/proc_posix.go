//go:build !windows

package engine

import (
	"errors"
	"os"
	"os/user"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"
)

// processSnapshot enumerates processes by walking /proc. This covers Linux
// and other procfs systems; no external binary is ever invoked.
func processSnapshot() ([]processInfo, error) {
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return nil, errors.New("procfs not available on this system")
	}

	owners := make(map[uint32]string)
	var procs []processInfo
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		pid, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}
		dir := filepath.Join("/proc", entry.Name())
		name := readProcName(dir)
		if name == "" {
			continue // process vanished mid-walk
		}
		procs = append(procs, processInfo{
			pid:   pid,
			name:  name,
			owner: procOwner(dir, owners),
		})
	}
	sort.Slice(procs, func(i, j int) bool { return procs[i].pid < procs[j].pid })
	return procs, nil
}

func readProcName(dir string) string {
	if data, err := os.ReadFile(filepath.Join(dir, "comm")); err == nil {
		if name := strings.TrimSpace(string(data)); name != "" {
			return name
		}
	}
	// Kernel threads and short-lived processes may lack comm; fall back
	// to the stat field.
	data, err := os.ReadFile(filepath.Join(dir, "stat"))
	if err != nil {
		return ""
	}
	open := strings.IndexByte(string(data), '(')
	close := strings.LastIndexByte(string(data), ')')
	if open < 0 || close < open {
		return ""
	}
	return string(data)[open+1 : close]
}

func procOwner(dir string, cache map[uint32]string) string {
	info, err := os.Stat(dir)
	if err != nil {
		return ""
	}
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return ""
	}
	if name, ok := cache[st.Uid]; ok {
		return name
	}
	name := strconv.FormatUint(uint64(st.Uid), 10)
	if u, err := user.LookupId(name); err == nil && u.Username != "" {
		name = u.Username
	}
	cache[st.Uid] = name
	return name
}
