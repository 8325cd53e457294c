package engine

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"webterm/internal/logging"
)

// resolvedPath is a path proven to live inside the permitted root. Values
// are only constructed by the resolver, so holding one is the proof.
type resolvedPath struct {
	abs string // canonical absolute form, native separators
	rel string // form relative to the root, for display
}

// resolver constrains every filesystem path the engine touches to a single
// permitted subtree. The root is canonicalized once at construction and is
// immutable afterwards.
type resolver struct {
	root string
}

func newResolver(root string) (*resolver, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("permitted root must be set")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve permitted root: %w", err)
	}
	canon, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("canonicalize permitted root: %w", err)
	}
	info, err := os.Stat(canon)
	if err != nil {
		return nil, fmt.Errorf("stat permitted root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("permitted root is not a directory: %s", canon)
	}
	return &resolver{root: canon}, nil
}

// Cwd validates a caller-supplied working directory. An empty value means
// the root itself. The caller's transport is supposed to send only paths
// under the root; this re-checks anyway.
func (r *resolver) Cwd(cwd string) (resolvedPath, error) {
	if strings.TrimSpace(cwd) == "" {
		return resolvedPath{abs: r.root, rel: "."}, nil
	}
	return r.Resolve(cwd, resolvedPath{abs: r.root, rel: "."})
}

// Resolve turns a raw path argument into a canonical absolute path under
// the root. Relative arguments are joined with cwd; "." and ".." segments
// are normalized; symlinks are followed before the containment check so a
// link pointing outside the root is caught, not just literal traversal.
func (r *resolver) Resolve(arg string, cwd resolvedPath) (resolvedPath, error) {
	target := normalizeSeparators(arg)
	if !filepath.IsAbs(target) {
		target = filepath.Join(cwd.abs, target)
	}
	target = filepath.Clean(target)

	if !r.contains(target) {
		logging.WarnLog("engine: rejected path outside permitted root: %q", arg)
		return resolvedPath{}, errEscape(arg)
	}

	canon, err := canonicalize(target)
	if err != nil {
		// Nothing on disk to resolve through; the lexical check above
		// already passed.
		canon = target
	}
	if !r.contains(canon) {
		logging.WarnLog("engine: rejected symlink escaping permitted root: %q", arg)
		return resolvedPath{}, errEscape(arg)
	}

	rel, relErr := filepath.Rel(r.root, canon)
	if relErr != nil {
		rel = canon
	}
	return resolvedPath{abs: canon, rel: rel}, nil
}

func (r *resolver) contains(abs string) bool {
	return abs == r.root || strings.HasPrefix(abs, r.root+string(os.PathSeparator))
}

// canonicalize resolves symlinks for the deepest existing ancestor of path
// and reattaches the non-existent remainder, so targets that do not exist
// yet (make-dir, touch) are still checked through any links on the way.
func canonicalize(path string) (string, error) {
	resolved, err := filepath.EvalSymlinks(path)
	if err == nil {
		return resolved, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return "", err
	}

	var tail []string
	current := path
	for {
		parent := filepath.Dir(current)
		if parent == current {
			return "", err
		}
		tail = append(tail, filepath.Base(current))
		current = parent
		resolved, rerr := filepath.EvalSymlinks(current)
		if rerr == nil {
			for i := len(tail) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, tail[i])
			}
			return resolved, nil
		}
		if !errors.Is(rerr, fs.ErrNotExist) {
			return "", rerr
		}
	}
}

// normalizeSeparators accepts both Windows and POSIX separators in input
// and rewrites them to the host platform's native form. Drive-letter syntax
// on a POSIX host ends up treated as a relative name, which then falls
// under the usual containment check.
func normalizeSeparators(path string) string {
	path = strings.ReplaceAll(path, "\\", "/")
	return filepath.FromSlash(path)
}
