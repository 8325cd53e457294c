// Package engine executes a small allowlist of pseudo-shell commands on
// behalf of a remote caller. It is the only security boundary in the
// system: input is tokenized without any shell grammar, command names are
// matched against a compiled-in table, every path argument is confined to
// a permitted root, and each invocation runs under a wall-clock timeout
// with bounded output capture.
package engine

import (
	"context"
	"errors"
	"os"
	"time"
	"unicode/utf8"

	"webterm/internal/logging"
)

// TruncationMarker is appended whenever captured output exceeds the
// configured bound, so clipped output is never silently shortened.
const TruncationMarker = "\n[output truncated]"

const (
	DefaultTimeout        = 10 * time.Second
	DefaultMaxOutputBytes = 64 * 1024
)

// Request is one untrusted command line plus the caller's logical working
// directory. Cwd is expected to sit under the permitted root; the engine
// re-validates it regardless of what the transport promised.
type Request struct {
	Raw string
	Cwd string
}

// Result is the normalized outcome of a successfully dispatched command.
type Result struct {
	Stdout     string
	Stderr     string
	ExitCode   int
	DurationMS int64
	Truncated  bool
}

// Options configures an Engine at initialization. None of it can change
// afterwards.
type Options struct {
	Root           string
	Timeout        time.Duration
	MaxOutputBytes int
}

// Engine holds only immutable state after New returns, so concurrent Run
// calls need no synchronization.
type Engine struct {
	resolver  *resolver
	registry  *registry
	timeout   time.Duration
	maxOutput int
}

func New(opts Options) (*Engine, error) {
	res, err := newResolver(opts.Root)
	if err != nil {
		return nil, err
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	maxOutput := opts.MaxOutputBytes
	if maxOutput <= 0 {
		maxOutput = DefaultMaxOutputBytes
	}
	return &Engine{
		resolver:  res,
		registry:  newRegistry(),
		timeout:   timeout,
		maxOutput: maxOutput,
	}, nil
}

// Root returns the canonical permitted root directory.
func (e *Engine) Root() string { return e.resolver.root }

// Run evaluates one request exactly once: tokenize, look up, check arity,
// resolve paths, dispatch, capture. Every failure comes back as *Error.
func (e *Engine) Run(ctx context.Context, req Request) (Result, error) {
	start := time.Now()

	parsed, err := tokenize(req.Raw)
	if err != nil {
		return Result{}, err
	}
	if parsed.name == "" {
		// Blank input is a no-op, not an error.
		return Result{DurationMS: time.Since(start).Milliseconds()}, nil
	}

	desc, err := e.registry.lookup(parsed.name)
	if err != nil {
		return Result{}, err
	}
	if err := desc.checkArity(len(parsed.args)); err != nil {
		return Result{}, err
	}

	cwd, err := e.resolver.Cwd(req.Cwd)
	if err != nil {
		return Result{}, err
	}
	inv := invocation{args: parsed.args, cwd: cwd, target: cwd}
	if desc.pathArg && len(parsed.args) > 0 {
		target, err := e.resolver.Resolve(parsed.args[0], cwd)
		if err != nil {
			return Result{}, err
		}
		inv.target = target
	}

	result, err := e.dispatch(ctx, desc, inv)
	if err != nil {
		return Result{}, err
	}
	result.DurationMS = time.Since(start).Milliseconds()
	logging.DevLog("engine: %s completed in %dms (exit %d)", desc.name, result.DurationMS, result.ExitCode)
	return result, nil
}

// dispatch races the handler against the per-request deadline. Filesystem
// calls cannot be preempted, so cancellation is best-effort: on timeout
// the engine stops waiting and the straggling goroutine's result is
// discarded when it eventually arrives.
func (e *Engine) dispatch(ctx context.Context, desc *descriptor, inv invocation) (Result, error) {
	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	type outcome struct {
		result Result
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := desc.run(runCtx, inv)
		done <- outcome{result: res, err: err}
	}()

	select {
	case <-runCtx.Done():
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			logging.WarnLog("engine: %s abandoned after %s timeout", desc.name, e.timeout)
			return Result{}, errTimeout(e.timeout)
		}
		return Result{}, errCanceled()
	case out := <-done:
		if out.err != nil {
			return Result{}, e.normalizeError(out.err)
		}
		return e.capOutput(out.result), nil
	}
}

func (e *Engine) normalizeError(err error) error {
	if ee, ok := AsEngineError(err); ok {
		return ee
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errTimeout(e.timeout)
	}
	if errors.Is(err, context.Canceled) {
		return errCanceled()
	}
	// Handlers are supposed to return typed errors; anything else gets a
	// generic summary so platform error text never reaches the caller.
	logging.ErrorLog("engine: untyped handler error: %v", err)
	return failf(err, "command failed")
}

func (e *Engine) capOutput(res Result) Result {
	res.Stdout, res.Truncated = e.clamp(res.Stdout, res.Truncated)
	res.Stderr, res.Truncated = e.clamp(res.Stderr, res.Truncated)
	return res
}

func (e *Engine) clamp(s string, already bool) (string, bool) {
	if len(s) <= e.maxOutput {
		return s, already
	}
	// Back off to the previous rune boundary so the cut never leaves a
	// partial UTF-8 sequence in front of the marker.
	cut := e.maxOutput
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + TruncationMarker, true
}

// ValidateDir resolves arg against cwd and confirms it names an existing
// directory under the permitted root. The returned value is root-relative,
// ready to be used as the next cwd. Front ends use this to move a session
// working directory; the engine itself keeps no session state.
func (e *Engine) ValidateDir(arg, cwd string) (string, error) {
	base, err := e.resolver.Cwd(cwd)
	if err != nil {
		return "", err
	}
	if arg == "" {
		return "", nil
	}
	target, err := e.resolver.Resolve(arg, base)
	if err != nil {
		return "", err
	}
	info, statErr := os.Stat(target.abs)
	if statErr != nil {
		return "", failOS("cd", target.rel, statErr)
	}
	if !info.IsDir() {
		return "", failf(nil, "cd: %s: not a directory", target.rel)
	}
	if target.rel == "." {
		return "", nil
	}
	return target.rel, nil
}

// CommandInfo describes one allowlist entry for help screens and
// completion. The engine exposes nothing else about its internals.
type CommandInfo struct {
	Name       string
	Summary    string
	Capability Capability
}

func (e *Engine) Commands() []CommandInfo {
	infos := make([]CommandInfo, 0, len(e.registry.order))
	for _, name := range e.registry.order {
		d := e.registry.commands[name]
		infos = append(infos, CommandInfo{Name: d.name, Summary: d.summary, Capability: d.capability})
	}
	return infos
}
