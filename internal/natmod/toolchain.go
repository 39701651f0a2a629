package natmod

import (
	"context"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// SearchPath is an executable search path. It is handed to child processes
// explicitly through Env; the process environment is never modified.
type SearchPath []string

// NewSearchPath splits a PATH-style value on the platform list separator.
func NewSearchPath(value string) SearchPath {
	return SearchPath(filepath.SplitList(value))
}

func (p SearchPath) String() string {
	return strings.Join(p, string(os.PathListSeparator))
}

// Prepend returns a copy of p with dir first and every other entry that
// resolves to the same absolute directory removed.
func (p SearchPath) Prepend(dir string) (SearchPath, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", dir, err)
	}
	if info, err := os.Stat(abs); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("path does not exist: %s", abs)
	}

	out := SearchPath{abs}
	for _, entry := range p {
		entryAbs, err := filepath.Abs(entry)
		if err == nil && samePath(entryAbs, abs) {
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}

// Env returns a copy of environ whose PATH is replaced by p.
func (p SearchPath) Env(environ []string) []string {
	out := make([]string, 0, len(environ)+1)
	for _, kv := range environ {
		key, _, _ := strings.Cut(kv, "=")
		if isPathKey(key) {
			continue
		}
		out = append(out, kv)
	}
	return append(out, "PATH="+p.String())
}

func samePath(a, b string) bool {
	if runtime.GOOS == "windows" {
		return strings.EqualFold(a, b)
	}
	return a == b
}

func isPathKey(key string) bool {
	if runtime.GOOS == "windows" {
		return strings.EqualFold(key, "PATH")
	}
	return key == "PATH"
}

// CompilerPresent walks root looking for a file named compiler (or
// compiler.exe), compared case-insensitively. Unreadable directories and a
// missing root count as "not found".
func CompilerPresent(root, compiler string) bool {
	found := false
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return nil
		}
		name := d.Name()
		if strings.EqualFold(name, compiler) || strings.EqualFold(name, compiler+".exe") {
			debugf("found compiler at %s", path)
			found = true
			return fs.SkipAll
		}
		return nil
	})
	return found
}

// ToolchainSpec describes where the cross compiler lives and where to get it.
type ToolchainSpec struct {
	Dir      string // searched for Compiler, and extraction target
	Bin      string // directory prepended to the search path
	URL      string
	Digest   string // optional BLAKE3 of the archive
	Compiler string
	Timeout  time.Duration
	Quiet    bool
}

// ProvisionToolchain makes sure the compiler exists under spec.Dir,
// downloading and extracting the archive when it does not, and returns base
// with spec.Bin prepended.
func ProvisionToolchain(ctx context.Context, client *http.Client, spec ToolchainSpec, base SearchPath) (SearchPath, error) {
	printBlock("Installing GCC")

	if CompilerPresent(spec.Dir, spec.Compiler) {
		infof("GCC already installed.")
		return base.Prepend(spec.Bin)
	}

	if err := installToolchain(ctx, client, spec); err != nil {
		errorf("GCC installation failed: %v", err)
		return nil, err
	}
	return base.Prepend(spec.Bin)
}

func installToolchain(ctx context.Context, client *http.Client, spec ToolchainSpec) error {
	if err := os.MkdirAll(spec.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", spec.Dir, err)
	}
	archivePath := filepath.Join(spec.Dir, archiveName(spec.URL))

	ctx, cancel := withTimeout(ctx, spec.Timeout)
	defer cancel()

	infof("Downloading GCC archive from %s", spec.URL)
	if err := downloadFile(ctx, client, spec.URL, archivePath, downloadOptions{Quiet: spec.Quiet}); err != nil {
		return err
	}

	if err := verifyBlake3(archivePath, spec.Digest); err != nil {
		_ = os.Remove(archivePath)
		return err
	}

	infof("Extracting GCC to %s", spec.Dir)
	if err := extractArchive(archivePath, spec.Dir); err != nil {
		return err
	}
	if err := os.Remove(archivePath); err != nil {
		return fmt.Errorf("failed to remove %s: %w", archivePath, err)
	}

	infof("GCC installation complete.")
	return nil
}
