package natmod

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/ulikunitz/xz"
)

// BuildSpec describes one invocation of the native-module makefile.
type BuildSpec struct {
	Dir      string     // directory holding the makefile
	Tool     string     // path to make
	Args     []string   // target selection, e.g. ARCH=armv7emsp OS=Windows_NT
	Path     SearchPath // search path for the child; nil inherits PATH
	Artifact string     // file name produced in Dir
	Dest     string     // where the artifact is moved
	LogPath  string     // optional xz-compressed copy of the output
	Timeout  time.Duration
	Output   io.Writer // relay target, os.Stdout when nil
}

// BuildResult reports the relocated artifact. Artifact is empty when the
// build succeeded without producing it.
type BuildResult struct {
	Artifact string
	Lines    int
}

// BuildFailedError is returned when the build tool exits non-zero.
type BuildFailedError struct {
	Code int
}

func (e *BuildFailedError) Error() string {
	return fmt.Sprintf("makefile failed with exit code %d", e.Code)
}

func hasMakefile(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(e.Name(), "makefile") {
			return true
		}
	}
	return false
}

// checkBuildPreconditions validates, in order, the build directory, the
// makefile inside it and the build tool.
func checkBuildPreconditions(spec BuildSpec) error {
	if !dirExists(spec.Dir) {
		return fmt.Errorf("%w: %s", ErrBuildDirMissing, spec.Dir)
	}
	if !hasMakefile(spec.Dir) {
		return fmt.Errorf("%w in %s", ErrMakefileMissing, spec.Dir)
	}
	if _, err := os.Stat(spec.Tool); err != nil {
		return fmt.Errorf("%w at %s", ErrBuildToolMissing, spec.Tool)
	}
	return nil
}

// RunBuild runs the build tool in spec.Dir, relaying its merged output line by
// line, and moves the artifact to spec.Dest on success.
func RunBuild(ctx context.Context, runner Runner, spec BuildSpec) (BuildResult, error) {
	printBlock("Start model conversion to .mpy")

	if err := checkBuildPreconditions(spec); err != nil {
		errorf("%v", err)
		return BuildResult{}, err
	}

	out := spec.Output
	if out == nil {
		out = os.Stdout
	}

	var logSink io.Writer = io.Discard
	var closeLog func() error
	if spec.LogPath != "" {
		w, closer, err := openBuildLog(spec.LogPath)
		if err != nil {
			warnf("Build log disabled: %v", err)
		} else {
			logSink, closeLog = w, closer
		}
	}

	var res BuildResult
	relay := newLineWriter(func(line string) {
		res.Lines++
		fmt.Fprintln(out, colRelay.Sprint(line))
		fmt.Fprintln(logSink, line)
	})

	ctx, cancel := withTimeout(ctx, spec.Timeout)
	defer cancel()

	cmd := exec.Command(spec.Tool, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Stdout = relay
	cmd.Stderr = relay
	if spec.Path != nil {
		cmd.Env = spec.Path.Env(os.Environ())
	}

	runErr := runner.Run(ctx, cmd)
	relay.Flush()
	if closeLog != nil {
		if err := closeLog(); err != nil {
			warnf("Failed to finalize build log: %v", err)
		}
	}

	if runErr != nil {
		if errors.Is(runErr, ErrTimeout) || errors.Is(runErr, context.Canceled) {
			errorf("Make aborted: %v", runErr)
			return res, runErr
		}
		if code := exitCode(runErr); code >= 0 {
			errorf("Makefile failed with exit code %d", code)
			return res, &BuildFailedError{Code: code}
		}
		errorf("Exception during make: %v", runErr)
		return res, fmt.Errorf("build tool failed: %w", runErr)
	}

	infof("Makefile executed successfully.")
	printBlock(fmt.Sprintf("Extracting %s to root location", spec.Artifact))

	src := filepath.Join(spec.Dir, spec.Artifact)
	if !fileExists(src) {
		warnf("%s not found at %s", spec.Artifact, src)
		return res, nil
	}

	dst, err := filepath.Abs(spec.Dest)
	if err != nil {
		return res, err
	}
	if err := moveFile(src, dst); err != nil {
		errorf("Exception during make: %v", err)
		return res, fmt.Errorf("failed to relocate artifact: %w", err)
	}
	infof("Moved %s to %s", spec.Artifact, dst)
	res.Artifact = dst
	return res, nil
}

// openBuildLog creates an xz-compressed log file. The returned closer flushes
// the compressor and closes the file.
func openBuildLog(path string) (io.Writer, func() error, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	xw, err := xz.NewWriter(f)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	closer := func() error {
		if err := xw.Close(); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	}
	return xw, closer, nil
}
