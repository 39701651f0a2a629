package natmod

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// runCLI executes natmod against a project root in a temp dir, never
// prompting.
func runCLI(t *testing.T, root string, args ...string) (int, string) {
	t.Helper()
	conf := filepath.Join(root, "natmod.conf")
	writeFile(t, conf, "NATMOD_PROJECT_ROOT="+root+"\nNATMOD_MAKE="+filepath.Join(root, "make")+"\n")

	var out bytes.Buffer
	full := append([]string{"--config", conf, "--env-file", filepath.Join(root, ".env"), "--non-interactive"}, args...)
	code := Execute(context.Background(), full, Streams{In: strings.NewReader(""), Out: &out})
	return code, out.String()
}

func TestExecuteVersion(t *testing.T) {
	code, _ := runCLI(t, t.TempDir(), "version")
	require.Zero(t, code)
}

func TestExecuteUnknownCommand(t *testing.T) {
	code, _ := runCLI(t, t.TempDir(), "frobnicate")
	require.Equal(t, 1, code)
}

func TestExecutePatch(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "model.c")
	writeFile(t, file, "static int a;\n")

	code, _ := runCLI(t, root, "patch", file)
	require.Zero(t, code)
	require.Equal(t, "int a;\n", readFile(t, file))

	code, _ = runCLI(t, root, "patch", filepath.Join(root, "absent.c"))
	require.Equal(t, 1, code)
}

func TestExecuteBuildWithoutTree(t *testing.T) {
	root := t.TempDir()
	code, _ := runCLI(t, root, "build")
	require.Equal(t, 1, code)
	require.NoFileExists(t, filepath.Join(root, "deepcraft_model.mpy"))
}

func TestExecuteStage(t *testing.T) {
	root := t.TempDir()
	build := filepath.Join(root, "mpy", "examples", "natmod", "deepcraft")
	writeFile(t, filepath.Join(build, "Makefile"), "all:\n")
	src := filepath.Join(root, "export")
	writeModelPair(t, src, "cli")

	code, _ := runCLI(t, root, "stage", src)
	require.Zero(t, code)
	require.Contains(t, readFile(t, filepath.Join(build, "model.c")), "cli")
}

func TestExecuteCleanupNonInteractiveKeepsTree(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "mpy", "py", "obj.h"), "")

	code, _ := runCLI(t, root, "cleanup")
	require.Zero(t, code)
	require.DirExists(t, filepath.Join(root, "mpy"))

	code, _ = runCLI(t, root, "--yes", "cleanup")
	require.Zero(t, code)
	require.NoDirExists(t, filepath.Join(root, "mpy"))
}

func TestExecutePublishWithoutCredentials(t *testing.T) {
	for _, k := range []string{"R2_ACCOUNT_ID", "R2_ACCESS_KEY_ID", "R2_SECRET_ACCESS_KEY", "R2_BUCKET_NAME"} {
		t.Setenv(k, "")
	}
	code, _ := runCLI(t, t.TempDir(), "publish")
	require.Equal(t, 1, code)
}

func TestExecuteRunPublishWithoutCredentials(t *testing.T) {
	for _, k := range []string{"R2_ACCOUNT_ID", "R2_ACCESS_KEY_ID", "R2_SECRET_ACCESS_KEY", "R2_BUCKET_NAME"} {
		t.Setenv(k, "")
	}
	root := t.TempDir()
	code, _ := runCLI(t, root, "run", "--publish")
	require.Equal(t, 1, code)
	// The pipeline is never built, so nothing is cloned.
	require.NoDirExists(t, filepath.Join(root, "mpy"))
}
