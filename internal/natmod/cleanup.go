package natmod

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// CleanupWorkTree asks confirm whether dir should go and removes it if so.
// A missing dir is skipped without asking. Failures are reported to the
// operator and returned; the pipeline does not escalate them.
func CleanupWorkTree(dir string, confirm func(prompt string) bool) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		debugf("Folder '%s' does not exist. Nothing to clean up.", dir)
		return nil
	}

	if !confirm(fmt.Sprintf("Do you want to delete the entire '%s' folder?", dir)) {
		infof("Cleanup skipped.")
		return nil
	}

	if isProtectedPath(dir) {
		errorf("Refusing to delete '%s'.", dir)
		return fmt.Errorf("%w: %s", ErrProtectedPath, dir)
	}

	infof("Removing entire folder: %s ...", dir)
	if err := removeAllForce(dir); err != nil {
		warnf("Failed to cleanup '%s': %v", dir, err)
		return err
	}
	infof("Cleanup complete.")
	return nil
}

// removeAllForce removes dir. If the first attempt fails, write permission is
// restored on everything beneath dir and the removal retried. Git object
// packs are read-only, which is enough to break a plain RemoveAll on Windows.
func removeAllForce(dir string) error {
	err := os.RemoveAll(dir)
	if err == nil {
		return nil
	}
	debugf("RemoveAll %s failed (%v), clearing read-only attributes", dir, err)

	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		mode := info.Mode().Perm() | 0o200
		if d.IsDir() {
			mode |= 0o700
		}
		_ = os.Chmod(path, mode)
		return nil
	})
	return os.RemoveAll(dir)
}
