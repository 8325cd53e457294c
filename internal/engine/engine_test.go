package engine

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

func newTestEngine(t *testing.T, opts Options) (*Engine, string) {
	t.Helper()
	if opts.Root == "" {
		opts.Root = t.TempDir()
	}
	e, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e, e.Root()
}

func run(t *testing.T, e *Engine, raw, cwd string) Result {
	t.Helper()
	res, err := e.Run(context.Background(), Request{Raw: raw, Cwd: cwd})
	if err != nil {
		t.Fatalf("Run(%q): %v", raw, err)
	}
	return res
}

func runErr(t *testing.T, e *Engine, raw, cwd string) *Error {
	t.Helper()
	_, err := e.Run(context.Background(), Request{Raw: raw, Cwd: cwd})
	if err == nil {
		t.Fatalf("Run(%q) unexpectedly succeeded", raw)
	}
	ee, ok := AsEngineError(err)
	if !ok {
		t.Fatalf("Run(%q) returned untyped error %v", raw, err)
	}
	return ee
}

func TestRunUnknownCommand(t *testing.T) {
	e, _ := newTestEngine(t, Options{})
	for _, raw := range []string{"ls", "cat x", "rm -rf /", "shell echo hi", "LIST"} {
		if ee := runErr(t, e, raw, ""); ee.Kind != KindUnknownCommand {
			t.Fatalf("Run(%q) kind = %s, want unknown_command", raw, ee.Kind)
		}
	}
}

func TestRunBlankInputIsTrivialSuccess(t *testing.T) {
	e, _ := newTestEngine(t, Options{})
	res := run(t, e, "   ", "")
	if res.Stdout != "" || res.Stderr != "" || res.ExitCode != 0 {
		t.Fatalf("blank input result = %+v, want empty success", res)
	}
}

func TestRunArityMismatch(t *testing.T) {
	e, _ := newTestEngine(t, Options{})
	cases := []string{"pwd extra", "read-file", "read-file a b", "remove", "list a b", "sys-info verbose"}
	for _, raw := range cases {
		if ee := runErr(t, e, raw, ""); ee.Kind != KindArityMismatch {
			t.Fatalf("Run(%q) kind = %s, want arity_mismatch", raw, ee.Kind)
		}
	}
}

func TestPwdEchoesCwd(t *testing.T) {
	e, root := newTestEngine(t, Options{})
	sub := filepath.Join(root, "sub")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	res := run(t, e, "pwd", sub)
	if res.Stdout != sub {
		t.Fatalf("pwd = %q, want %q", res.Stdout, sub)
	}
	if res.ExitCode != 0 {
		t.Fatalf("exit code = %d, want 0", res.ExitCode)
	}
}

func TestListSortedWithDirSuffix(t *testing.T) {
	e, root := newTestEngine(t, Options{})
	if err := os.MkdirAll(filepath.Join(root, "beta"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	for _, name := range []string{"alpha.txt", "gamma.txt"} {
		if err := os.WriteFile(filepath.Join(root, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	res := run(t, e, "list", "")
	want := "alpha.txt\nbeta/\ngamma.txt"
	if res.Stdout != want {
		t.Fatalf("list = %q, want %q", res.Stdout, want)
	}
}

func TestListQuotedDirectoryName(t *testing.T) {
	e, root := newTestEngine(t, Options{})
	if err := os.MkdirAll(filepath.Join(root, "my dir"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "my dir", "inner.txt"), nil, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	res := run(t, e, `list "my dir"`, "")
	if res.Stdout != "inner.txt" {
		t.Fatalf("list = %q, want %q", res.Stdout, "inner.txt")
	}
}

func TestListFileEchoesItsName(t *testing.T) {
	e, root := newTestEngine(t, Options{})
	if err := os.MkdirAll(filepath.Join(root, "docs"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "docs", "note.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	res := run(t, e, "list docs/note.txt", "")
	if res.Stdout != "note.txt" {
		t.Fatalf("list on file = %q, want %q", res.Stdout, "note.txt")
	}
	if _, err := e.Run(context.Background(), Request{Raw: "list missing"}); err == nil {
		t.Fatal("list on missing path succeeded")
	}
}

func TestReadFile(t *testing.T) {
	e, root := newTestEngine(t, Options{})
	if err := os.WriteFile(filepath.Join(root, "hello.txt"), []byte("hello\nworld\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	res := run(t, e, "read-file hello.txt", "")
	if res.Stdout != "hello\nworld\n" {
		t.Fatalf("read-file = %q", res.Stdout)
	}

	if ee := runErr(t, e, "read-file missing.txt", ""); ee.Kind != KindHandlerFailure {
		t.Fatalf("missing file kind = %s, want handler_failure", ee.Kind)
	}
	if err := os.MkdirAll(filepath.Join(root, "adir"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	ee := runErr(t, e, "read-file adir", "")
	if ee.Kind != KindHandlerFailure || !strings.Contains(ee.Message, "is a directory") {
		t.Fatalf("directory read error = %v", ee)
	}
}

func TestMakeDirIdempotent(t *testing.T) {
	e, root := newTestEngine(t, Options{})
	for i := 0; i < 2; i++ {
		res := run(t, e, "make-dir nested/child", "")
		if res.ExitCode != 0 {
			t.Fatalf("attempt %d exit code = %d", i, res.ExitCode)
		}
	}
	info, err := os.Stat(filepath.Join(root, "nested", "child"))
	if err != nil || !info.IsDir() {
		t.Fatalf("directory not created: %v", err)
	}
}

func TestRemoveFileAndEmptyDir(t *testing.T) {
	e, root := newTestEngine(t, Options{})
	file := filepath.Join(root, "gone.txt")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	run(t, e, "remove gone.txt", "")
	if _, err := os.Stat(file); !os.IsNotExist(err) {
		t.Fatalf("file still present: %v", err)
	}

	if err := os.MkdirAll(filepath.Join(root, "emptydir"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	run(t, e, "remove emptydir", "")
	if _, err := os.Stat(filepath.Join(root, "emptydir")); !os.IsNotExist(err) {
		t.Fatalf("empty dir still present: %v", err)
	}
}

func TestRemoveNonEmptyDirKeepsContents(t *testing.T) {
	e, root := newTestEngine(t, Options{})
	inner := filepath.Join(root, "full", "keep.txt")
	if err := os.MkdirAll(filepath.Dir(inner), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(inner, []byte("precious"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	ee := runErr(t, e, "remove full", "")
	if ee.Kind != KindHandlerFailure || !strings.Contains(ee.Message, "not empty") {
		t.Fatalf("remove error = %v", ee)
	}
	data, err := os.ReadFile(inner)
	if err != nil || string(data) != "precious" {
		t.Fatalf("contents were touched: %q, %v", data, err)
	}
}

func TestRemoveRejectsFlags(t *testing.T) {
	e, root := newTestEngine(t, Options{})
	if err := os.MkdirAll(filepath.Join(root, "full"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	ee := runErr(t, e, "remove -r", "")
	if ee.Kind != KindHandlerFailure {
		t.Fatalf("remove -r kind = %s, want handler_failure", ee.Kind)
	}
}

func TestTouchCreatesAndUpdates(t *testing.T) {
	e, root := newTestEngine(t, Options{})
	run(t, e, "touch notes/today.txt", "")
	target := filepath.Join(root, "notes", "today.txt")
	before, err := os.Stat(target)
	if err != nil {
		t.Fatalf("touch did not create file: %v", err)
	}
	if before.Size() != 0 {
		t.Fatalf("touched file not empty: %d bytes", before.Size())
	}
	time.Sleep(10 * time.Millisecond)
	run(t, e, "touch notes/today.txt", "")
	after, err := os.Stat(target)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if !after.ModTime().After(before.ModTime()) {
		t.Fatalf("mtime not advanced: %v vs %v", before.ModTime(), after.ModTime())
	}
}

func TestPathEscapeBeforeAnyMutation(t *testing.T) {
	e, _ := newTestEngine(t, Options{})
	outside := t.TempDir()
	marker := filepath.Join(outside, "marker")

	for _, raw := range []string{
		"make-dir ../escape",
		"remove ../../etc",
		"touch ../marker",
		"read-file ../marker",
		"list ..",
	} {
		ee := runErr(t, e, raw, "")
		if ee.Kind != KindPathEscape {
			t.Fatalf("Run(%q) kind = %s, want path_escape", raw, ee.Kind)
		}
	}
	if _, err := os.Stat(marker); !os.IsNotExist(err) {
		t.Fatalf("side effect escaped the root: %v", err)
	}
}

func TestTimeoutAbandonsSlowHandlerAndRecovers(t *testing.T) {
	e, _ := newTestEngine(t, Options{Timeout: 50 * time.Millisecond})
	release := make(chan struct{})
	e.registry.commands["stall"] = &descriptor{
		name: "stall", minArgs: 0, maxArgs: 0,
		run: func(ctx context.Context, inv invocation) (Result, error) {
			select {
			case <-release:
			case <-time.After(5 * time.Second):
			}
			return Result{Stdout: "late"}, nil
		},
	}

	start := time.Now()
	_, err := e.Run(context.Background(), Request{Raw: "stall"})
	elapsed := time.Since(start)
	ee, ok := AsEngineError(err)
	if !ok || ee.Kind != KindTimeout {
		t.Fatalf("error = %v, want timeout", err)
	}
	if elapsed > time.Second {
		t.Fatalf("timeout took %s, far beyond the configured limit", elapsed)
	}
	close(release)

	// The engine must be fully usable for the next request.
	res := run(t, e, "pwd", "")
	if res.Stdout == "" {
		t.Fatal("follow-up request failed after a timeout")
	}
}

func TestOutputTruncation(t *testing.T) {
	e, root := newTestEngine(t, Options{MaxOutputBytes: 32})
	big := strings.Repeat("0123456789", 10)
	if err := os.WriteFile(filepath.Join(root, "big.txt"), []byte(big), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	res := run(t, e, "read-file big.txt", "")
	if !res.Truncated {
		t.Fatal("result not flagged as truncated")
	}
	if !strings.HasSuffix(res.Stdout, TruncationMarker) {
		t.Fatalf("missing truncation marker: %q", res.Stdout)
	}
	if len(res.Stdout) != 32+len(TruncationMarker) {
		t.Fatalf("clamped length = %d", len(res.Stdout))
	}
}

func TestOutputTruncationKeepsRunesWhole(t *testing.T) {
	e, root := newTestEngine(t, Options{MaxOutputBytes: 33})
	// Two-byte runes, so an odd byte limit lands inside a sequence.
	content := strings.Repeat("é", 40)
	if err := os.WriteFile(filepath.Join(root, "accents.txt"), []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	res := run(t, e, "read-file accents.txt", "")
	if !res.Truncated {
		t.Fatal("result not flagged as truncated")
	}
	if !utf8.ValidString(res.Stdout) {
		t.Fatalf("clamped output is not valid UTF-8: %q", res.Stdout)
	}
	kept := strings.TrimSuffix(res.Stdout, TruncationMarker)
	if kept != strings.Repeat("é", 16) {
		t.Fatalf("kept prefix = %q", kept)
	}
}

func TestSystemCommandsProduceFields(t *testing.T) {
	e, _ := newTestEngine(t, Options{})

	res := run(t, e, "sys-info", "")
	for _, field := range []string{"os: ", "arch: ", "cpus: "} {
		if !strings.Contains(res.Stdout, field) {
			t.Fatalf("sys-info missing %q in %q", field, res.Stdout)
		}
	}

	procs, err := e.Run(context.Background(), Request{Raw: "list-processes"})
	if err != nil {
		t.Skipf("process enumeration unavailable here: %v", err)
	}
	lines := strings.Split(procs.Stdout, "\n")
	if len(lines) < 2 {
		t.Fatalf("process listing suspiciously short: %q", procs.Stdout)
	}
	if !strings.Contains(lines[0], "PID") || !strings.Contains(lines[0], "NAME") {
		t.Fatalf("missing header: %q", lines[0])
	}
}

func TestValidateDir(t *testing.T) {
	e, root := newTestEngine(t, Options{})
	if err := os.MkdirAll(filepath.Join(root, "ws"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	got, err := e.ValidateDir("ws", "")
	if err != nil {
		t.Fatalf("ValidateDir: %v", err)
	}
	if got != "ws" {
		t.Fatalf("ValidateDir = %q, want ws", got)
	}
	if _, err := e.ValidateDir("../elsewhere", ""); err == nil {
		t.Fatal("escaping cd target accepted")
	}
	if _, err := e.ValidateDir("nosuch", ""); err == nil {
		t.Fatal("missing cd target accepted")
	}
	if back, err := e.ValidateDir("..", "ws"); err != nil || back != "" {
		t.Fatalf("parent of ws = %q, %v; want root", back, err)
	}
	if back, err := e.ValidateDir("", "ws"); err != nil || back != "" {
		t.Fatalf("empty target = %q, %v; want root", back, err)
	}
}

func TestRunConcurrentRequests(t *testing.T) {
	e, root := newTestEngine(t, Options{})
	if err := os.WriteFile(filepath.Join(root, "f.txt"), []byte("data"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	done := make(chan error, 16)
	for i := 0; i < 16; i++ {
		go func() {
			_, err := e.Run(context.Background(), Request{Raw: "read-file f.txt"})
			done <- err
		}()
	}
	for i := 0; i < 16; i++ {
		if err := <-done; err != nil {
			t.Fatalf("concurrent run: %v", err)
		}
	}
}
