package natmod

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultRepoURL      = "https://github.com/Infineon/micropython.git"
	defaultRepoBranch   = "ports-psoc6-main"
	defaultRepoPaths    = "examples/natmod/deepcraft,py,tools"
	defaultToolchainURL = "https://github.com/Infineon/arduino-core-psoc6/releases/download/mtb-tools/mtb-gcc-arm-none-eabi-11.3.1.67-windows.zip"
	defaultMakeArgs     = "ARCH=armv7emsp,OS=Windows_NT"
	windowsMakePath     = `C:\Program Files (x86)\GnuWin32\bin\make.exe`
)

// Config holds the raw KEY=value pairs from the config file and environment.
type Config struct {
	Values map[string]string
}

// Settings is the resolved, typed view of a Config. Every path is absolute
// or relative to the process working directory.
type Settings struct {
	ProjectRoot string
	Repo        RepoSpec
	BuildDir    string

	ToolchainDir    string
	ToolchainBin    string
	ToolchainURL    string
	ToolchainDigest string
	Compiler        string

	MakePath     string
	MakeArgs     []string
	ModelsDir    string
	ArtifactName string
	ArtifactDest string

	NonInteractive bool
	AssumeYes      bool
	Debug          bool

	GitTimeout      time.Duration
	DownloadTimeout time.Duration
	BuildTimeout    time.Duration
	PromptTimeout   time.Duration

	PublishPrefix string
}

// loadConfig reads a KEY=value file (missing file is not an error) and merges
// NATMOD_* and R2_* environment overrides on top.
func loadConfig(path string) (*Config, error) {
	cfg := &Config{Values: make(map[string]string)}

	values, err := godotenv.Read(path)
	switch {
	case err == nil:
		for k, v := range values {
			cfg.Values[k] = v
		}
	case errors.Is(err, fs.ErrNotExist):
		debugf("no config file at %s, using defaults", path)
	default:
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	mergeEnvOverrides(cfg)
	return cfg, nil
}

// loadDotEnv exports a .env file into the process environment without
// overriding variables that are already set.
func loadDotEnv(path string) {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		debugf("ignoring %s: %v", path, err)
	}
}

// Merge NATMOD_* and R2_* env overrides
func mergeEnvOverrides(cfg *Config) {
	for _, env := range os.Environ() {
		if strings.HasPrefix(env, "NATMOD_") || strings.HasPrefix(env, "R2_") {
			parts := strings.SplitN(env, "=", 2)
			if len(parts) == 2 {
				cfg.Values[parts[0]] = parts[1]
			}
		}
	}
}

func (c *Config) get(key, def string) string {
	if v := strings.TrimSpace(c.Values[key]); v != "" {
		return v
	}
	return def
}

func (c *Config) flag(key string) bool {
	switch strings.ToLower(strings.TrimSpace(c.Values[key])) {
	case "1", "true", "yes", "y", "on":
		return true
	}
	return false
}

func (c *Config) duration(key string) (time.Duration, error) {
	v := strings.TrimSpace(c.Values[key])
	if v == "" || v == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid %s %q: negative duration", key, v)
	}
	return d, nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// resolve joins rel onto root unless rel is already absolute.
func resolve(root, rel string) string {
	if filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(root, rel)
}

func defaultMakePath() string {
	if runtime.GOOS == "windows" {
		return windowsMakePath
	}
	if p, err := exec.LookPath("make"); err == nil {
		return p
	}
	return "/usr/bin/make"
}

func initSettings(cfg *Config) (*Settings, error) {
	root := cfg.get("NATMOD_PROJECT_ROOT", "..")
	workDir := resolve(root, cfg.get("NATMOD_WORK_DIR", "mpy"))
	buildDir := resolve(workDir, cfg.get("NATMOD_BUILD_SUBDIR", filepath.Join("examples", "natmod", "deepcraft")))
	toolchainDir := buildDir
	if v := cfg.get("NATMOD_TOOLCHAIN_DIR", ""); v != "" {
		toolchainDir = resolve(root, v)
	}
	toolchainBin := filepath.Join(toolchainDir, "gcc", "bin")
	if v := cfg.get("NATMOD_TOOLCHAIN_BIN", ""); v != "" {
		toolchainBin = resolve(root, v)
	}
	artifact := cfg.get("NATMOD_ARTIFACT", "deepcraft_model.mpy")

	s := &Settings{
		ProjectRoot: root,
		Repo: RepoSpec{
			URL:    cfg.get("NATMOD_REPO_URL", defaultRepoURL),
			Dir:    workDir,
			Branch: cfg.get("NATMOD_REPO_BRANCH", defaultRepoBranch),
			Paths:  splitList(cfg.get("NATMOD_REPO_PATHS", defaultRepoPaths)),
		},
		BuildDir:        buildDir,
		ToolchainDir:    toolchainDir,
		ToolchainBin:    toolchainBin,
		ToolchainURL:    cfg.get("NATMOD_TOOLCHAIN_URL", defaultToolchainURL),
		ToolchainDigest: strings.ToLower(cfg.get("NATMOD_TOOLCHAIN_BLAKE3", "")),
		Compiler:        cfg.get("NATMOD_COMPILER", "arm-none-eabi-gcc"),
		MakePath:        cfg.get("NATMOD_MAKE", defaultMakePath()),
		MakeArgs:        splitList(cfg.get("NATMOD_MAKE_ARGS", defaultMakeArgs)),
		ModelsDir:       resolve(root, cfg.get("NATMOD_MODELS_DIR", "Models")),
		ArtifactName:    artifact,
		ArtifactDest:    resolve(root, cfg.get("NATMOD_ARTIFACT_DEST", artifact)),
		NonInteractive:  cfg.flag("NATMOD_NONINTERACTIVE"),
		AssumeYes:       cfg.flag("NATMOD_ASSUME_YES"),
		Debug:           cfg.flag("NATMOD_DEBUG"),
		PublishPrefix:   strings.Trim(cfg.get("NATMOD_PUBLISH_PREFIX", "natmod"), "/"),
	}

	if len(s.Repo.Paths) == 0 {
		return nil, fmt.Errorf("NATMOD_REPO_PATHS must name at least one directory")
	}

	var err error
	if s.GitTimeout, err = cfg.duration("NATMOD_GIT_TIMEOUT"); err != nil {
		return nil, err
	}
	if s.DownloadTimeout, err = cfg.duration("NATMOD_DOWNLOAD_TIMEOUT"); err != nil {
		return nil, err
	}
	if s.BuildTimeout, err = cfg.duration("NATMOD_BUILD_TIMEOUT"); err != nil {
		return nil, err
	}
	if s.PromptTimeout, err = cfg.duration("NATMOD_PROMPT_TIMEOUT"); err != nil {
		return nil, err
	}

	return s, nil
}
