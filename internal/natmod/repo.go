package natmod

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// RepoSpec names the remote tree, where it lands and which subdirectories are
// materialized.
type RepoSpec struct {
	URL    string
	Dir    string
	Branch string
	Paths  []string
}

// FetchRepository sparsely clones spec.URL into spec.Dir. An existing Dir is
// taken as already fetched: nothing is run and its content is not checked.
func FetchRepository(ctx context.Context, runner Runner, spec RepoSpec) error {
	printBlock("Cloning MicroPython Repo")

	if _, err := os.Stat(spec.Dir); err == nil {
		infof("Repo already exists at %s, skipping clone.", spec.Dir)
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to stat %s: %w", spec.Dir, err)
	}

	steps := []struct {
		dir  string
		args []string
	}{
		{"", []string{"clone", "--filter=blob:none", "--no-checkout", spec.URL, spec.Dir}},
		{spec.Dir, []string{"checkout", spec.Branch}},
		{spec.Dir, []string{"sparse-checkout", "init"}},
		{spec.Dir, append([]string{"sparse-checkout", "set"}, spec.Paths...)},
		{spec.Dir, []string{"checkout", "HEAD"}},
	}

	for _, step := range steps {
		cmd := exec.Command("git", step.args...)
		cmd.Dir = step.dir
		if err := runner.Run(ctx, cmd); err != nil {
			return fmt.Errorf("git %s failed: %w", step.args[0], err)
		}
	}

	infof("Cloned sparse folders: %s", strings.Join(spec.Paths, ", "))
	return nil
}

// RepoHead returns the commit checked out in dir.
func RepoHead(ctx context.Context, runner Runner, dir string) (string, error) {
	var out bytes.Buffer
	cmd := exec.Command("git", "rev-parse", "HEAD")
	cmd.Dir = dir
	cmd.Stdout = &out
	cmd.Stderr = &bytes.Buffer{}
	if err := runner.Run(ctx, cmd); err != nil {
		return "", fmt.Errorf("git rev-parse failed: %w", err)
	}
	return strings.TrimSpace(out.String()), nil
}
