package natmod

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"lukechampine.com/blake3"
)

// fileBlake3 returns the hex BLAKE3-256 digest of path.
func fileBlake3(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := blake3.New(32, nil)
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// verifyBlake3 compares the digest of path with want. An empty want skips
// the check.
func verifyBlake3(path, want string) error {
	if want == "" {
		return nil
	}
	got, err := fileBlake3(path)
	if err != nil {
		return err
	}
	if !strings.EqualFold(got, want) {
		return fmt.Errorf("checksum mismatch for %s: expected %s, got %s", path, want, got)
	}
	debugf("checksum ok for %s", path)
	return nil
}
