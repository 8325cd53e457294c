package engine

import (
	"context"
)

// Capability names the category of OS effect a command may produce. It is
// carried for audit and display; the allowlist itself is the enforcement.
type Capability string

const (
	CapNone        Capability = ""
	CapReadDir     Capability = "READ_DIR"
	CapReadFile    Capability = "READ_FILE"
	CapWriteDir    Capability = "WRITE_DIR"
	CapWriteFile   Capability = "WRITE_FILE"
	CapDelete      Capability = "DELETE"
	CapProcessInfo Capability = "PROCESS_INFO"
	CapSystemInfo  Capability = "SYSTEM_INFO"
)

// invocation carries everything a handler may act on. target is the
// resolved first path argument when the command takes one, otherwise the
// resolved cwd. Handlers never see raw path arguments.
type invocation struct {
	args   []string
	cwd    resolvedPath
	target resolvedPath
}

type handlerFunc func(ctx context.Context, inv invocation) (Result, error)

// descriptor is one allowlist entry. The table is compiled in: there is no
// dynamic registration and no user-supplied command definition.
type descriptor struct {
	name       string
	summary    string
	capability Capability
	minArgs    int
	maxArgs    int
	pathArg    bool // first argument (or cwd when absent) is a filesystem path
	run        handlerFunc
}

type registry struct {
	commands map[string]*descriptor
	order    []string
}

// newRegistry builds the allowlist. Platform-divergent handlers
// (list-processes, sys-info) bind to their Windows or POSIX implementation
// here, once, through the build-tagged snapshot functions; nothing is
// selected per request.
func newRegistry() *registry {
	table := []*descriptor{
		{
			name:       "list",
			summary:    "List directory entries; directories carry a trailing slash",
			capability: CapReadDir,
			minArgs:    0, maxArgs: 1,
			pathArg: true,
			run:     listHandler,
		},
		{
			name:    "pwd",
			summary: "Print the current working directory",
			minArgs: 0, maxArgs: 0,
			run: pwdHandler,
		},
		{
			name:       "read-file",
			summary:    "Print the contents of a text file",
			capability: CapReadFile,
			minArgs:    1, maxArgs: 1,
			pathArg: true,
			run:     readFileHandler,
		},
		{
			name:       "make-dir",
			summary:    "Create a directory, including missing parents",
			capability: CapWriteDir,
			minArgs:    1, maxArgs: 1,
			pathArg: true,
			run:     makeDirHandler,
		},
		{
			name:       "touch",
			summary:    "Create an empty file or update its modification time",
			capability: CapWriteFile,
			minArgs:    1, maxArgs: 1,
			pathArg: true,
			run:     touchHandler,
		},
		{
			name:       "remove",
			summary:    "Delete a file or an empty directory",
			capability: CapDelete,
			minArgs:    1, maxArgs: 1,
			pathArg: true,
			run:     removeHandler,
		},
		{
			name:       "list-processes",
			summary:    "Show a snapshot of running processes",
			capability: CapProcessInfo,
			minArgs:    0, maxArgs: 0,
			run: listProcessesHandler,
		},
		{
			name:       "sys-info",
			summary:    "Show OS, architecture, CPU and memory summary",
			capability: CapSystemInfo,
			minArgs:    0, maxArgs: 0,
			run: sysInfoHandler,
		},
	}

	reg := &registry{commands: make(map[string]*descriptor, len(table))}
	for _, d := range table {
		reg.commands[d.name] = d
		reg.order = append(reg.order, d.name)
	}
	return reg
}

// lookup is an exact, case-sensitive match against the compiled-in table.
func (r *registry) lookup(name string) (*descriptor, error) {
	d, ok := r.commands[name]
	if !ok {
		return nil, errUnknownCommand(name)
	}
	return d, nil
}

func (d *descriptor) checkArity(got int) error {
	if got < d.minArgs || got > d.maxArgs {
		return errArity(d.name, d.minArgs, d.maxArgs, got)
	}
	return nil
}
