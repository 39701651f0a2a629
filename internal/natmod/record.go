package natmod

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"
)

// BuildRecord is written next to the artifact and describes how it was made.
type BuildRecord struct {
	Artifact  string    `yaml:"artifact"`
	Size      int64     `yaml:"size"`
	Blake3    string    `yaml:"blake3"`
	BuiltAt   time.Time `yaml:"built_at"`
	Host      string    `yaml:"host"`
	Tool      string    `yaml:"tool"`
	MakeArgs  []string  `yaml:"make_args,flow"`
	Toolchain string    `yaml:"toolchain"`
	Model     string    `yaml:"model_source,omitempty"`
	Repo      struct {
		URL    string `yaml:"url"`
		Branch string `yaml:"branch"`
		Commit string `yaml:"commit,omitempty"`
	} `yaml:"repo"`
}

func recordPath(artifact string) string {
	return artifact + ".yaml"
}

// newBuildRecord fills the artifact fields of a record from the file on disk.
func newBuildRecord(artifact string) (*BuildRecord, error) {
	info, err := os.Stat(artifact)
	if err != nil {
		return nil, err
	}
	sum, err := fileBlake3(artifact)
	if err != nil {
		return nil, err
	}
	return &BuildRecord{
		Artifact: artifact,
		Size:     info.Size(),
		Blake3:   sum,
		BuiltAt:  time.Now().UTC().Truncate(time.Second),
		Host:     fmt.Sprintf("natmod %s %s/%s", version, runtime.GOOS, arch),
	}, nil
}

func writeBuildRecord(rec *BuildRecord) (string, error) {
	data, err := yaml.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("failed to encode build record: %w", err)
	}
	path := recordPath(rec.Artifact)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write build record: %w", err)
	}
	return path, nil
}

func readBuildRecord(path string) (*BuildRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rec BuildRecord
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("invalid build record %s: %w", path, err)
	}
	return &rec, nil
}
