package natmod

import (
	"os"
	"path/filepath"
	"strings"
)

// Directories natmod will never delete, whatever the configuration says.
var forbiddenDirs = map[string]struct{}{
	"/bin":   {},
	"/boot":  {},
	"/dev":   {},
	"/etc":   {},
	"/home":  {},
	"/lib":   {},
	"/lib64": {},
	"/opt":   {},
	"/proc":  {},
	"/root":  {},
	"/sbin":  {},
	"/sys":   {},
	"/tmp":   {},
	"/usr":   {},
	"/var":   {},
	"/Users": {},
}

// isProtectedPath reports whether removing path would take out a filesystem
// root, a system directory, the user's home or the current working directory.
func isProtectedPath(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return true
	}
	abs = filepath.Clean(abs)

	if filepath.Dir(abs) == abs {
		return true
	}
	if _, ok := forbiddenDirs[filepath.ToSlash(abs)]; ok {
		return true
	}
	if home, err := os.UserHomeDir(); err == nil && samePath(filepath.Clean(home), abs) {
		return true
	}
	if wd, err := os.Getwd(); err == nil && isWithin(wd, abs) {
		return true
	}
	return false
}

// isWithin reports whether path equals dir or lies beneath it.
func isWithin(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(os.PathSeparator)))
}
