package natmod

import (
	"encoding/hex"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"lukechampine.com/blake3"
)

func blake3Hex(t *testing.T, data []byte) string {
	t.Helper()
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func TestVerifyBlake3(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.bin")
	writeFile(t, path, "payload")

	got, err := fileBlake3(path)
	require.NoError(t, err)
	require.Equal(t, blake3Hex(t, []byte("payload")), got)

	require.NoError(t, verifyBlake3(path, ""))
	require.NoError(t, verifyBlake3(path, got))
	require.Error(t, verifyBlake3(path, blake3Hex(t, []byte("other"))))
}
