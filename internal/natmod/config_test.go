package natmod

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestInitSettingsDefaults(t *testing.T) {
	root := t.TempDir()
	cfg := &Config{Values: map[string]string{"NATMOD_PROJECT_ROOT": root}}

	s, err := initSettings(cfg)
	require.NoError(t, err)

	build := filepath.Join(root, "mpy", "examples", "natmod", "deepcraft")
	require.Equal(t, filepath.Join(root, "mpy"), s.Repo.Dir)
	require.Equal(t, build, s.BuildDir)
	require.Equal(t, build, s.ToolchainDir)
	require.Equal(t, filepath.Join(build, "gcc", "bin"), s.ToolchainBin)
	require.Equal(t, filepath.Join(root, "deepcraft_model.mpy"), s.ArtifactDest)
	require.Equal(t, filepath.Join(root, "Models"), s.ModelsDir)
	require.Equal(t, "arm-none-eabi-gcc", s.Compiler)
	require.Equal(t, defaultRepoURL, s.Repo.URL)
	require.Equal(t, "ports-psoc6-main", s.Repo.Branch)

	if diff := cmp.Diff([]string{"examples/natmod/deepcraft", "py", "tools"}, s.Repo.Paths); diff != "" {
		t.Errorf("repo paths (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"ARCH=armv7emsp", "OS=Windows_NT"}, s.MakeArgs); diff != "" {
		t.Errorf("make args (-want +got):\n%s", diff)
	}
	require.Zero(t, s.BuildTimeout)
	require.False(t, s.NonInteractive)
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "natmod.conf")
	writeFile(t, path, "# natmod settings\n"+
		"NATMOD_PROJECT_ROOT="+dir+"\n"+
		"NATMOD_REPO_BRANCH=from-file\n"+
		"NATMOD_MAKE_ARGS=ARCH=armv7emsp, OS=Linux\n"+
		"NATMOD_BUILD_TIMEOUT=90s\n"+
		"NATMOD_NONINTERACTIVE=true\n"+
		"NATMOD_TOOLCHAIN_DIR=toolchain\n")
	t.Setenv("NATMOD_REPO_BRANCH", "from-env")

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	s, err := initSettings(cfg)
	require.NoError(t, err)

	require.Equal(t, "from-env", s.Repo.Branch)
	require.Equal(t, []string{"ARCH=armv7emsp", "OS=Linux"}, s.MakeArgs)
	require.Equal(t, 90*time.Second, s.BuildTimeout)
	require.True(t, s.NonInteractive)
	require.Equal(t, filepath.Join(dir, "toolchain"), s.ToolchainDir)
	require.Equal(t, filepath.Join(dir, "toolchain", "gcc", "bin"), s.ToolchainBin)
}

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := loadConfig(filepath.Join(t.TempDir(), "absent.conf"))
	require.NoError(t, err)
	require.NotNil(t, cfg.Values)
}

func TestInitSettingsRejectsBadValues(t *testing.T) {
	cases := map[string]map[string]string{
		"bad duration":      {"NATMOD_GIT_TIMEOUT": "soon"},
		"negative duration": {"NATMOD_PROMPT_TIMEOUT": "-1s"},
		"empty paths":       {"NATMOD_REPO_PATHS": " , "},
	}
	for name, values := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := initSettings(&Config{Values: values})
			require.Error(t, err)
		})
	}
}
