package natmod

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/require"
)

// fakeRunner records every command instead of running it. hook, when set,
// decides the outcome and may touch the filesystem the way the real tool
// would.
type fakeRunner struct {
	calls [][]string
	dirs  []string
	envs  [][]string
	hook  func(cmd *exec.Cmd) error
}

func (f *fakeRunner) Run(ctx context.Context, cmd *exec.Cmd) error {
	args := append([]string{filepath.Base(cmd.Args[0])}, cmd.Args[1:]...)
	f.calls = append(f.calls, args)
	f.dirs = append(f.dirs, cmd.Dir)
	f.envs = append(f.envs, cmd.Env)
	if f.hook != nil {
		return f.hook(cmd)
	}
	return nil
}

func (f *fakeRunner) commandLines() []string {
	var out []string
	for _, c := range f.calls {
		out = append(out, strings.Join(c, " "))
	}
	return out
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := readFileErr(path)
	require.NoError(t, err)
	return data
}

func readFileErr(path string) (string, error) {
	data, err := os.ReadFile(path)
	return string(data), err
}

// writeScript creates an executable shell script standing in for make.
func writeScript(t *testing.T, path, body string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not executable on windows")
	}
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
}

// zipArchive builds an in-memory zip from name -> content.
func zipArchive(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// scriptedPrompter answers prompts from input as if typed on a terminal.
func scriptedPrompter(input string) (*Prompter, *bytes.Buffer) {
	var out bytes.Buffer
	return NewPrompter(strings.NewReader(input), &out, true), &out
}
