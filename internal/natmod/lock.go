package natmod

import (
	"fmt"
	"os"
	"path/filepath"
)

// workspaceLock is an advisory lock held for the duration of a run so two
// invocations never clone, build or delete the same tree at once.
type workspaceLock struct {
	f    *os.File
	path string
}

func acquireWorkspaceLock(root string) (*workspaceLock, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create project root %s: %w", root, err)
	}
	path := filepath.Join(root, LockName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}
	if err := lockFile(f); err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, ErrLocked)
	}
	debugf("acquired workspace lock %s", path)
	return &workspaceLock{f: f, path: path}, nil
}

func (l *workspaceLock) Release() {
	if l == nil || l.f == nil {
		return
	}
	_ = unlockFile(l.f)
	l.f.Close()
	_ = os.Remove(l.path)
	l.f = nil
}
