package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"webterm/internal/logging"
)

// Handlers operate on pre-resolved paths only and talk to the filesystem
// through direct OS calls. None of them shells out.

func listHandler(ctx context.Context, inv invocation) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	info, err := os.Stat(inv.target.abs)
	if err != nil {
		return Result{}, failOS("list", inv.target.rel, err)
	}
	if !info.IsDir() {
		// Listing a file just echoes its name.
		return Result{Stdout: filepath.Base(inv.target.abs)}, nil
	}
	entries, err := os.ReadDir(inv.target.abs)
	if err != nil {
		return Result{}, listError(inv.target.rel, err)
	}
	// os.ReadDir returns entries sorted by name already.
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		lines = append(lines, name)
	}
	return Result{Stdout: strings.Join(lines, "\n")}, nil
}

func listError(display string, err error) *Error {
	if isNotDir(err) {
		return failf(err, "list: %s: not a directory", display)
	}
	return failOS("list", display, err)
}

func pwdHandler(ctx context.Context, inv invocation) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	return Result{Stdout: inv.cwd.abs}, nil
}

func readFileHandler(ctx context.Context, inv invocation) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	info, err := os.Stat(inv.target.abs)
	if err != nil {
		return Result{}, failOS("read-file", inv.target.rel, err)
	}
	if info.IsDir() {
		return Result{}, failf(nil, "read-file: %s: is a directory", inv.target.rel)
	}
	data, err := os.ReadFile(inv.target.abs)
	if err != nil {
		return Result{}, failOS("read-file", inv.target.rel, err)
	}
	return Result{Stdout: string(data)}, nil
}

func makeDirHandler(ctx context.Context, inv invocation) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	// MkdirAll succeeds when the directory already exists, which is the
	// wanted idempotent behavior. It fails when a file is in the way.
	if err := os.MkdirAll(inv.target.abs, 0o755); err != nil {
		if isNotDir(err) || errors.Is(err, fs.ErrExist) {
			return Result{}, failf(err, "make-dir: %s: a file with that name exists", inv.target.rel)
		}
		return Result{}, failOS("make-dir", inv.target.rel, err)
	}
	return Result{Stdout: "created directory: " + inv.target.rel}, nil
}

func touchHandler(ctx context.Context, inv invocation) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if info, err := os.Stat(inv.target.abs); err == nil {
		if info.IsDir() {
			return Result{}, failf(nil, "touch: %s: is a directory", inv.target.rel)
		}
		now := time.Now()
		if err := os.Chtimes(inv.target.abs, now, now); err != nil {
			return Result{}, failOS("touch", inv.target.rel, err)
		}
		return Result{}, nil
	}
	if err := os.MkdirAll(filepath.Dir(inv.target.abs), 0o755); err != nil {
		return Result{}, failOS("touch", inv.target.rel, err)
	}
	f, err := os.OpenFile(inv.target.abs, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return Result{}, failOS("touch", inv.target.rel, err)
	}
	if err := f.Close(); err != nil {
		return Result{}, failOS("touch", inv.target.rel, err)
	}
	return Result{}, nil
}

func removeHandler(ctx context.Context, inv invocation) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	arg := inv.args[0]
	if strings.HasPrefix(arg, "-") {
		// The ancestor of this command accepted -r; this one never
		// deletes recursively, so flag-looking arguments are refused
		// outright instead of being treated as filenames.
		return Result{}, failf(nil, "remove: flags are not supported (recursive delete is not available)")
	}
	info, err := os.Stat(inv.target.abs)
	if err != nil {
		return Result{}, failOS("remove", inv.target.rel, err)
	}
	if info.IsDir() {
		entries, err := os.ReadDir(inv.target.abs)
		if err != nil {
			return Result{}, failOS("remove", inv.target.rel, err)
		}
		if len(entries) > 0 {
			return Result{}, failf(nil, "remove: %s: directory not empty", inv.target.rel)
		}
		if err := os.Remove(inv.target.abs); err != nil {
			return Result{}, failOS("remove", inv.target.rel, err)
		}
		return Result{Stdout: "removed directory: " + inv.target.rel}, nil
	}
	if err := os.Remove(inv.target.abs); err != nil {
		return Result{}, failOS("remove", inv.target.rel, err)
	}
	return Result{Stdout: "removed file: " + inv.target.rel}, nil
}

func listProcessesHandler(ctx context.Context, inv invocation) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	procs, err := processSnapshot()
	if err != nil {
		logging.DevLog("engine: process snapshot failed: %v", err)
		return Result{}, failf(err, "list-processes: process enumeration unavailable")
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%6s  %-30s %s", "PID", "NAME", "OWNER")
	for _, p := range procs {
		name := p.name
		if len(name) > 30 {
			name = name[:30]
		}
		fmt.Fprintf(&b, "\n%6d  %-30s %s", p.pid, name, p.owner)
	}
	return Result{Stdout: b.String()}, nil
}

func sysInfoHandler(ctx context.Context, inv invocation) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "os: %s\narch: %s\ncpus: %d", runtime.GOOS, runtime.GOARCH, runtime.NumCPU())
	mem, err := memoryStats()
	if err != nil {
		logging.DevLog("engine: memory stats unavailable: %v", err)
		return Result{Stdout: b.String()}, nil
	}
	usedMB := float64(mem.total-mem.available) / (1024 * 1024)
	totalMB := float64(mem.total) / (1024 * 1024)
	fmt.Fprintf(&b, "\nmemory: %.1fMB used / %.1fMB total", usedMB, totalMB)
	return Result{Stdout: b.String()}, nil
}

// processInfo is the normalized per-process record shared by the platform
// snapshot implementations.
type processInfo struct {
	pid   int
	name  string
	owner string
}

type memoryInfo struct {
	total     uint64
	available uint64
}

func isNotDir(err error) bool {
	return errors.Is(err, syscall.ENOTDIR)
}
