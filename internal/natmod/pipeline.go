package natmod

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
)

// Pipeline runs the stages that turn a generated model into a MicroPython
// native module. The zero value is not usable; see newPipeline.
type Pipeline struct {
	Settings  *Settings
	Runner    Runner
	// GitRunner runs the fetch commands; nil means Runner. It is interactive
	// when the operator is, so git can ask for credentials.
	GitRunner Runner
	Client    *http.Client
	Prompter  *Prompter
	Publisher Publisher // required when Publish is set
	Publish   bool

	// BasePath is the search path the toolchain is prepended to. Nil means
	// the PATH of this process.
	BasePath SearchPath
	// Output receives relayed build output; nil means os.Stdout.
	Output io.Writer

	tool string // build tool chosen by the operator
}

func newPipeline(s *Settings, prompter *Prompter) *Pipeline {
	git := NewExecutor()
	git.Interactive = prompter.Interactive
	return &Pipeline{
		Settings:  s,
		Runner:    NewExecutor(),
		GitRunner: git,
		Client:    newHttpClient(),
		Prompter:  prompter,
	}
}

// Run executes every stage in order. The first fatal error stops the run;
// soft failures are reported and the run continues.
func (p *Pipeline) Run(ctx context.Context) error {
	printBlock("Starting Script")

	lock, err := acquireWorkspaceLock(p.Settings.ProjectRoot)
	if err != nil {
		errorf("%v", err)
		return err
	}
	defer lock.Release()

	if err := p.Fetch(ctx); err != nil {
		return err
	}

	path, err := p.Toolchain(ctx)
	if err != nil {
		return err
	}

	staged, err := p.Stage("")
	if err != nil {
		return err
	}

	if _, err := p.Patch(""); err != nil {
		return err
	}

	res, err := p.Build(ctx, path)
	if err != nil {
		return err
	}

	if res.Artifact != "" {
		p.recordBuild(ctx, res.Artifact, staged.From)
		if p.Publish {
			if _, err := p.PublishArtifact(ctx, res.Artifact); err != nil {
				return err
			}
		}
	}

	// Cleanup failures are reported inside and never fail the run.
	_ = p.Cleanup()

	printBlock("Script Finished")
	return nil
}

// Fetch clones the sparse MicroPython tree.
func (p *Pipeline) Fetch(ctx context.Context) error {
	ctx, cancel := withTimeout(ctx, p.Settings.GitTimeout)
	defer cancel()

	if err := FetchRepository(ctx, p.gitRunner(), p.Settings.Repo); err != nil {
		errorf("%v", err)
		return err
	}
	return nil
}

// Toolchain provisions the cross compiler and returns the search path the
// build runs with.
func (p *Pipeline) Toolchain(ctx context.Context) (SearchPath, error) {
	base := p.BasePath
	if base == nil {
		base = NewSearchPath(os.Getenv("PATH"))
	}
	client := p.Client
	if client == nil {
		client = newHttpClient()
	}
	s := p.Settings
	return ProvisionToolchain(ctx, client, ToolchainSpec{
		Dir:      s.ToolchainDir,
		Bin:      s.ToolchainBin,
		URL:      s.ToolchainURL,
		Digest:   s.ToolchainDigest,
		Compiler: s.Compiler,
		Timeout:  s.DownloadTimeout,
		Quiet:    !p.Prompter.Interactive,
	}, base)
}

// Stage copies the model pair into the build directory. An empty source asks
// the operator, defaulting to the configured models directory.
func (p *Pipeline) Stage(source string) (StageResult, error) {
	if source == "" {
		source = p.Prompter.AskWithDefault("Enter path to model files or base dir to search for Gen", p.Settings.ModelsDir)
	}
	res, err := StageModelFiles(source, p.Settings.BuildDir, p.Prompter.modelSelector())
	if err != nil {
		errorf("%v", err)
		return res, err
	}
	return res, nil
}

// Patch rewrites static declarations in file, by default the staged model.c.
func (p *Pipeline) Patch(file string) (int, error) {
	if file == "" {
		file = filepath.Join(p.Settings.BuildDir, modelSource)
	}
	n, err := PatchStaticDecls(file)
	if err != nil {
		return 0, err
	}
	infof("Patched %d declaration(s) in %s", n, file)
	return n, nil
}

// Build asks for the make executable and runs the native module build with
// path as the child's search path.
func (p *Pipeline) Build(ctx context.Context, path SearchPath) (BuildResult, error) {
	s := p.Settings
	printBlock("Setup make path")
	p.tool = p.Prompter.AskWithDefault("Enter full path to make", s.MakePath)

	return RunBuild(ctx, p.Runner, BuildSpec{
		Dir:      s.BuildDir,
		Tool:     p.tool,
		Args:     s.MakeArgs,
		Path:     path,
		Artifact: s.ArtifactName,
		Dest:     s.ArtifactDest,
		LogPath:  p.logPath(),
		Timeout:  s.BuildTimeout,
		Output:   p.Output,
	})
}

// BuildOnly runs Build without provisioning. The toolchain bin directory is
// put first on the search path when it exists.
func (p *Pipeline) BuildOnly(ctx context.Context) (BuildResult, error) {
	path := p.BasePath
	if path == nil {
		path = NewSearchPath(os.Getenv("PATH"))
	}
	if dirExists(p.Settings.ToolchainBin) {
		withBin, err := path.Prepend(p.Settings.ToolchainBin)
		if err != nil {
			return BuildResult{}, err
		}
		path = withBin
	} else {
		debugf("toolchain bin %s not found, building with inherited PATH", p.Settings.ToolchainBin)
	}

	res, err := p.Build(ctx, path)
	if err == nil && res.Artifact != "" {
		p.recordBuild(ctx, res.Artifact, "")
	}
	return res, err
}

// Cleanup offers to delete the cloned tree.
func (p *Pipeline) Cleanup() error {
	printBlock("Cleanup")
	return CleanupWorkTree(p.Settings.Repo.Dir, p.Prompter.Confirm)
}

// PublishArtifact uploads the artifact and its build record.
func (p *Pipeline) PublishArtifact(ctx context.Context, artifact string) ([]string, error) {
	if p.Publisher == nil {
		errorf("%v", ErrNoPublisher)
		return nil, ErrNoPublisher
	}
	return PublishArtifact(ctx, p.Publisher, p.Settings.PublishPrefix, artifact)
}

func (p *Pipeline) gitRunner() Runner {
	if p.GitRunner != nil {
		return p.GitRunner
	}
	return p.Runner
}

func (p *Pipeline) logPath() string {
	return filepath.Join(filepath.Dir(p.Settings.ArtifactDest), LogName)
}

// recordBuild writes the build record next to artifact. Failures only warn.
func (p *Pipeline) recordBuild(ctx context.Context, artifact, model string) {
	s := p.Settings
	rec, err := newBuildRecord(artifact)
	if err != nil {
		warnf("Build record skipped: %v", err)
		return
	}
	rec.Tool = p.tool
	rec.MakeArgs = s.MakeArgs
	rec.Toolchain = s.ToolchainURL
	rec.Model = model
	rec.Repo.URL = s.Repo.URL
	rec.Repo.Branch = s.Repo.Branch
	if dirExists(s.Repo.Dir) {
		if head, err := RepoHead(ctx, p.Runner, s.Repo.Dir); err == nil {
			rec.Repo.Commit = head
		} else {
			debugf("commit lookup failed: %v", err)
		}
	}

	path, err := writeBuildRecord(rec)
	if err != nil {
		warnf("%v", err)
		return
	}
	debugf("build record written to %s", path)
}
