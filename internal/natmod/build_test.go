package natmod

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// buildFixture lays out a build dir with a makefile and a stand-in make.
func buildFixture(t *testing.T) (root, dir, tool string) {
	t.Helper()
	root = t.TempDir()
	dir = filepath.Join(root, "mpy", "examples", "natmod", "deepcraft")
	writeFile(t, filepath.Join(dir, "Makefile"), "all:\n")
	tool = filepath.Join(root, "tools", "make")
	writeFile(t, tool, "")
	return root, dir, tool
}

func TestRunBuildMissingMakefile(t *testing.T) {
	root, dir, tool := buildFixture(t)
	require.NoError(t, os.Remove(filepath.Join(dir, "Makefile")))
	runner := &fakeRunner{}

	_, err := RunBuild(context.Background(), runner, BuildSpec{
		Dir: dir, Tool: tool, Artifact: "deepcraft_model.mpy",
		Dest: filepath.Join(root, "deepcraft_model.mpy"),
	})
	require.ErrorIs(t, err, ErrMakefileMissing)
	require.Empty(t, runner.calls)
}

func TestRunBuildPreconditionOrder(t *testing.T) {
	root := t.TempDir()
	runner := &fakeRunner{}

	_, err := RunBuild(context.Background(), runner, BuildSpec{
		Dir: filepath.Join(root, "absent"), Tool: filepath.Join(root, "absent-make"),
	})
	require.ErrorIs(t, err, ErrBuildDirMissing)

	_, dir, _ := buildFixture(t)
	_, err = RunBuild(context.Background(), runner, BuildSpec{
		Dir: dir, Tool: filepath.Join(root, "absent-make"),
	})
	require.ErrorIs(t, err, ErrBuildToolMissing)
	require.Empty(t, runner.calls)
}

func TestRunBuildLowercaseMakefile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "makefile"), "all:\n")
	require.True(t, hasMakefile(dir))
	require.False(t, hasMakefile(filepath.Join(dir, "absent")))
}

func TestRunBuildSuccess(t *testing.T) {
	root, dir, tool := buildFixture(t)
	runner := &fakeRunner{hook: func(cmd *exec.Cmd) error {
		_, _ = cmd.Stdout.Write([]byte("CC model.c\r\nLINK "))
		_, _ = cmd.Stderr.Write([]byte("deepcraft_model.mpy\n"))
		return os.WriteFile(filepath.Join(cmd.Dir, "deepcraft_model.mpy"), []byte("mpy"), 0o644)
	}}
	var out bytes.Buffer
	logPath := filepath.Join(root, LogName)
	path := SearchPath{filepath.Join(dir, "gcc", "bin")}

	res, err := RunBuild(context.Background(), runner, BuildSpec{
		Dir:      dir,
		Tool:     tool,
		Args:     []string{"ARCH=armv7emsp", "OS=Windows_NT"},
		Path:     path,
		Artifact: "deepcraft_model.mpy",
		Dest:     filepath.Join(root, "deepcraft_model.mpy"),
		LogPath:  logPath,
		Output:   &out,
	})
	require.NoError(t, err)
	require.Equal(t, filepath.Join(root, "deepcraft_model.mpy"), res.Artifact)
	require.Equal(t, 2, res.Lines)
	require.FileExists(t, res.Artifact)
	require.NoFileExists(t, filepath.Join(dir, "deepcraft_model.mpy"))

	require.Equal(t, []string{"make ARCH=armv7emsp OS=Windows_NT"}, runner.commandLines())
	require.Equal(t, dir, runner.dirs[0])
	require.Contains(t, runner.envs[0], "PATH="+path.String())

	require.Contains(t, out.String(), "CC model.c")
	require.Contains(t, out.String(), "LINK deepcraft_model.mpy")

	lines, err := readBuildLog(logPath)
	require.NoError(t, err)
	require.Equal(t, []string{"CC model.c", "LINK deepcraft_model.mpy"}, lines)
}

func TestRunBuildMissingArtifactIsSoft(t *testing.T) {
	root, dir, tool := buildFixture(t)
	runner := &fakeRunner{}

	res, err := RunBuild(context.Background(), runner, BuildSpec{
		Dir: dir, Tool: tool, Artifact: "deepcraft_model.mpy",
		Dest: filepath.Join(root, "deepcraft_model.mpy"), Output: &bytes.Buffer{},
	})
	require.NoError(t, err)
	require.Empty(t, res.Artifact)
	require.NoFileExists(t, filepath.Join(root, "deepcraft_model.mpy"))
}

func TestRunBuildNonZeroExit(t *testing.T) {
	root, dir, _ := buildFixture(t)
	tool := filepath.Join(root, "tools", "failing-make")
	writeScript(t, tool, "echo compiling\ntouch deepcraft_model.mpy\necho 'model.c:1: error' >&2\nexit 2")
	var out bytes.Buffer

	_, err := RunBuild(context.Background(), NewExecutor(), BuildSpec{
		Dir: dir, Tool: tool, Artifact: "deepcraft_model.mpy",
		Dest: filepath.Join(root, "deepcraft_model.mpy"), Output: &out,
	})
	var failed *BuildFailedError
	require.True(t, errors.As(err, &failed))
	require.Equal(t, 2, failed.Code)
	require.Contains(t, out.String(), "model.c:1: error")
	// No relocation after a failed build.
	require.FileExists(t, filepath.Join(dir, "deepcraft_model.mpy"))
	require.NoFileExists(t, filepath.Join(root, "deepcraft_model.mpy"))
}

func TestRunBuildTimeout(t *testing.T) {
	root, dir, _ := buildFixture(t)
	tool := filepath.Join(root, "tools", "slow-make")
	writeScript(t, tool, "sleep 5")

	start := time.Now()
	_, err := RunBuild(context.Background(), NewExecutor(), BuildSpec{
		Dir: dir, Tool: tool, Artifact: "deepcraft_model.mpy",
		Dest: filepath.Join(root, "deepcraft_model.mpy"), Output: &bytes.Buffer{},
		Timeout: 200 * time.Millisecond,
	})
	require.ErrorIs(t, err, ErrTimeout)
	require.Less(t, time.Since(start), 4*time.Second)
}

func TestLineWriter(t *testing.T) {
	var got []string
	w := newLineWriter(func(s string) { got = append(got, s) })
	_, _ = w.Write([]byte("a\r\nb"))
	_, _ = w.Write([]byte("c\n\nd"))
	w.Flush()
	require.Equal(t, []string{"a", "bc", "", "d"}, got)
}

func TestFormatLogLines(t *testing.T) {
	got := formatLogLines([]string{"CC model.c", "model.c:3: error: bad", "warning: unused"})
	require.Contains(t, got, "[gray]1[-] CC model.c\n")
	require.Contains(t, got, "[red]model.c:3: error: bad[-]")
	require.Contains(t, got, "[yellow]warning: unused[-]")
}

func TestNextErrorRow(t *testing.T) {
	require.Equal(t, -1, nextErrorRow(nil, 0))
	require.Equal(t, 5, nextErrorRow([]int{2, 5}, 2))
	require.Equal(t, 2, nextErrorRow([]int{2, 5}, 7))
}

func TestShowBuildLogPlain(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, ShowBuildLog(&out, "build log", []string{"a", "b"}))
	require.Equal(t, "a\nb\n", out.String())
}
